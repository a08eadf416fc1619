// Package ledgertest runs contract functions against an in-memory world state.
package ledgertest

import (
	"crypto/x509"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/hyperledger/fabric-chaincode-go/shimtest"
	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ClientIdentity is a mock of the submitting client's identity
type ClientIdentity struct {
	mock.Mock
}

func (m *ClientIdentity) GetID() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *ClientIdentity) GetMSPID() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

func (m *ClientIdentity) GetAttributeValue(attrName string) (string, bool, error) {
	args := m.Called(attrName)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *ClientIdentity) AssertAttributeValue(attrName, attrValue string) error {
	args := m.Called(attrName, attrValue)
	return args.Error(0)
}

func (m *ClientIdentity) GetX509Certificate() (*x509.Certificate, error) {
	args := m.Called()
	cert, _ := args.Get(0).(*x509.Certificate)
	return cert, args.Error(1)
}

// Harness holds a mock stub shared by every call of a test
type Harness struct {
	Stub *shimtest.MockStub
	txs  int
}

// New creates a harness with an empty world state
func New() *Harness {
	return &Harness{Stub: shimtest.NewMockStub("record-provenance", nil)}
}

// Context returns a transaction context whose client identity is wallet
func (h *Harness) Context(wallet string) *contractapi.TransactionContext {
	id := &ClientIdentity{}
	id.On("GetID").Return(wallet, nil)
	id.On("GetMSPID").Return("Org1MSP", nil)

	ctx := &contractapi.TransactionContext{}
	ctx.SetStub(h.Stub)
	ctx.SetClientIdentity(id)
	return ctx
}

// Invoke runs fn as wallet inside its own transaction and returns the event
// the transaction emitted, if any
func (h *Harness) Invoke(wallet string, fn func(contractapi.TransactionContextInterface) error) (*types.LedgerEvent, error) {
	h.txs++
	h.Stub.MockTransactionStart(fmt.Sprintf("tx-%04d", h.txs))
	defer h.Stub.MockTransactionEnd(fmt.Sprintf("tx-%04d", h.txs))

	err := fn(h.Context(wallet))
	return h.drain(), err
}

// Must runs fn as wallet and fails the test on error
func (h *Harness) Must(t *testing.T, wallet string, fn func(contractapi.TransactionContextInterface) error) *types.LedgerEvent {
	t.Helper()
	event, err := h.Invoke(wallet, fn)
	require.NoError(t, err)
	return event
}

// Query runs a read-only fn as wallet
func (h *Harness) Query(wallet string) contractapi.TransactionContextInterface {
	return h.Context(wallet)
}

func (h *Harness) drain() *types.LedgerEvent {
	var last *types.LedgerEvent
	for {
		select {
		case ev := <-h.Stub.ChaincodeEventsChannel:
			var e types.LedgerEvent
			if err := json.Unmarshal(ev.Payload, &e); err == nil {
				last = &e
			}
		default:
			return last
		}
	}
}
