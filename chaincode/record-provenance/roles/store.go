package roles

import (
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/pkg/types"
)

// LoadRole reads the role entry of an identity on a record, active or not
func LoadRole(ctx contractapi.TransactionContextInterface, recordID, identityID string) (*types.RecordRole, bool, error) {
	key, err := ledger.Key(ctx, ledger.ObjRole, recordID, identityID)
	if err != nil {
		return nil, false, err
	}
	var role types.RecordRole
	found, err := ledger.GetJSON(ctx, key, &role)
	if err != nil || !found {
		return nil, found, err
	}
	return &role, true, nil
}

// ActiveRole returns the identity's active role on the record
func ActiveRole(ctx contractapi.TransactionContextInterface, recordID, identityID string) (types.Role, bool, error) {
	role, found, err := LoadRole(ctx, recordID, identityID)
	if err != nil || !found || !role.IsActive {
		return "", false, err
	}
	return role.Role, true, nil
}

func loadSummary(ctx contractapi.TransactionContextInterface, recordID string) (*types.RoleSummary, error) {
	key, err := ledger.Key(ctx, ledger.ObjRoleSummary, recordID)
	if err != nil {
		return nil, err
	}
	summary := &types.RoleSummary{RecordID: recordID}
	if _, err := ledger.GetJSON(ctx, key, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

func putSummary(ctx contractapi.TransactionContextInterface, summary *types.RoleSummary) error {
	key, err := ledger.Key(ctx, ledger.ObjRoleSummary, summary.RecordID)
	if err != nil {
		return err
	}
	return ledger.PutJSON(ctx, key, summary)
}

func putRole(ctx contractapi.TransactionContextInterface, role *types.RecordRole) error {
	key, err := ledger.Key(ctx, ledger.ObjRole, role.RecordID, role.IdentityID)
	if err != nil {
		return err
	}
	return ledger.PutJSON(ctx, key, role)
}

// activate writes an active role entry together with its membership indexes
// and the summary count
func activate(ctx contractapi.TransactionContextInterface, summary *types.RoleSummary, role *types.RecordRole) error {
	if err := putRole(ctx, role); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjRecordMember, role.RecordID, string(role.Role), role.IdentityID); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjIdentityRecord, role.IdentityID, role.RecordID); err != nil {
		return err
	}
	summary.Adjust(role.Role, 1)
	return putSummary(ctx, summary)
}

// deactivate marks a role inactive and drops it from the membership indexes
func deactivate(ctx contractapi.TransactionContextInterface, summary *types.RoleSummary, role *types.RecordRole, now int64) error {
	role.IsActive = false
	role.LastModified = now
	if err := putRole(ctx, role); err != nil {
		return err
	}
	if err := ledger.DeleteIndex(ctx, ledger.ObjRecordMember, role.RecordID, string(role.Role), role.IdentityID); err != nil {
		return err
	}
	if err := ledger.DeleteIndex(ctx, ledger.ObjIdentityRecord, role.IdentityID, role.RecordID); err != nil {
		return err
	}
	summary.Adjust(role.Role, -1)
	return putSummary(ctx, summary)
}

// switchRole moves an active role entry from one role to another
func switchRole(ctx contractapi.TransactionContextInterface, summary *types.RoleSummary, role *types.RecordRole, next types.Role, now int64) error {
	if err := ledger.DeleteIndex(ctx, ledger.ObjRecordMember, role.RecordID, string(role.Role), role.IdentityID); err != nil {
		return err
	}
	summary.Adjust(role.Role, -1)

	role.Role = next
	role.LastModified = now
	if err := putRole(ctx, role); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjRecordMember, role.RecordID, string(next), role.IdentityID); err != nil {
		return err
	}
	summary.Adjust(next, 1)
	return putSummary(ctx, summary)
}

func members(ctx contractapi.TransactionContextInterface, recordID string, role types.Role) ([]string, error) {
	keys, err := ledger.IndexKeys(ctx, ledger.ObjRecordMember, recordID, string(role))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, parts := range keys {
		out = append(out, parts[2])
	}
	return out, nil
}
