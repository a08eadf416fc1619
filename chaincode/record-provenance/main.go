package main

import (
	"log"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/anchoring"
	"github.com/medrex/record-provenance/chaincode/record-provenance/permissions"
	"github.com/medrex/record-provenance/chaincode/record-provenance/registry"
	"github.com/medrex/record-provenance/chaincode/record-provenance/roles"
)

func main() {
	provenanceChaincode, err := contractapi.NewChaincode(
		registry.NewContract(),
		roles.NewContract(),
		permissions.NewContract(),
		anchoring.NewContract(),
	)
	if err != nil {
		log.Panicf("Error creating RecordProvenance chaincode: %v", err)
	}

	provenanceChaincode.Info.Title = "RecordProvenance"
	provenanceChaincode.Info.Version = "1.0.0"
	provenanceChaincode.DefaultContract = registry.ContractName

	if err := provenanceChaincode.Start(); err != nil {
		log.Panicf("Error starting RecordProvenance chaincode: %v", err)
	}
}
