// Package ledger holds the world-state helpers shared by the record
// provenance contracts: composite keys, JSON documents, the transaction
// clock, caller identity and event emission.
//
// All timestamps come from the transaction proposal, never the local clock,
// so every endorsing peer computes the same write set.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/pkg/types"
)

// Composite key object types
const (
	ObjRegistry       = "registry"
	ObjWallet         = "wallet"
	ObjIdentity       = "identity"
	ObjIdentityWallet = "identity~wallet"

	ObjRole           = "role"
	ObjRoleSummary    = "record~summary"
	ObjRecordMember   = "record~member"
	ObjIdentityRecord = "identity~record"

	ObjPermission         = "permission"
	ObjSharerPermission   = "sharer~permission"
	ObjReceiverPermission = "receiver~permission"

	ObjAnchor        = "anchor"
	ObjRecordAnchor  = "record~anchor"
	ObjSubjectAnchor = "subject~anchor"

	ObjReview         = "review"
	ObjReviewStats    = "review~stats"
	ObjReviewActive   = "review~active"
	ObjReviewerReview = "reviewer~review"

	ObjReaction      = "reaction"
	ObjReactionBy    = "reaction~by"
	ObjReactionStats = "reaction~stats"
)

// marker is stored under index keys. Fabric treats an empty value as a delete.
var marker = []byte{0x00}

// Key builds a composite key
func Key(ctx contractapi.TransactionContextInterface, objectType string, attrs ...string) (string, error) {
	key, err := ctx.GetStub().CreateCompositeKey(objectType, attrs)
	if err != nil {
		return "", types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("invalid key attributes for %s: %v", objectType, err))
	}
	return key, nil
}

// GetJSON loads the document under key into v. It reports false when the key
// does not exist.
func GetJSON(ctx contractapi.TransactionContextInterface, key string, v interface{}) (bool, error) {
	data, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, types.NewInternalError(types.ErrCodeInternalError, "failed to read from world state", err)
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, types.NewInternalError(types.ErrCodeInternalError, "failed to decode world state document", err)
	}
	return true, nil
}

// PutJSON stores v as a JSON document under key
func PutJSON(ctx contractapi.TransactionContextInterface, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to encode world state document", err)
	}
	if err := ctx.GetStub().PutState(key, data); err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to put to world state", err)
	}
	return nil
}

// PutIndex writes an index entry for the composite key
func PutIndex(ctx contractapi.TransactionContextInterface, objectType string, attrs ...string) error {
	key, err := Key(ctx, objectType, attrs...)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().PutState(key, marker); err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to put index entry", err)
	}
	return nil
}

// DeleteIndex removes an index entry for the composite key
func DeleteIndex(ctx contractapi.TransactionContextInterface, objectType string, attrs ...string) error {
	key, err := Key(ctx, objectType, attrs...)
	if err != nil {
		return err
	}
	if err := ctx.GetStub().DelState(key); err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to delete index entry", err)
	}
	return nil
}

// Exists reports whether a value is stored under key
func Exists(ctx contractapi.TransactionContextInterface, key string) (bool, error) {
	data, err := ctx.GetStub().GetState(key)
	if err != nil {
		return false, types.NewInternalError(types.ErrCodeInternalError, "failed to read from world state", err)
	}
	return data != nil, nil
}

// IndexKeys returns the attributes of every composite key that starts with
// the given partial attributes. Order is the lexicographic key order, which is
// unrelated to insertion order.
func IndexKeys(ctx contractapi.TransactionContextInterface, objectType string, attrs ...string) ([][]string, error) {
	iter, err := ctx.GetStub().GetStateByPartialCompositeKey(objectType, attrs)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to query index", err)
	}
	defer iter.Close()

	var out [][]string
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to iterate index", err)
		}
		_, parts, err := ctx.GetStub().SplitCompositeKey(kv.Key)
		if err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to split index key", err)
		}
		out = append(out, parts)
	}
	return out, nil
}

// IndexValues returns the raw values of every composite key that starts with
// the given partial attributes
func IndexValues(ctx contractapi.TransactionContextInterface, objectType string, attrs ...string) ([][]byte, error) {
	iter, err := ctx.GetStub().GetStateByPartialCompositeKey(objectType, attrs)
	if err != nil {
		return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to query index", err)
	}
	defer iter.Close()

	var out [][]byte
	for iter.HasNext() {
		kv, err := iter.Next()
		if err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to iterate index", err)
		}
		out = append(out, kv.Value)
	}
	return out, nil
}

// PadIndex renders a sequence number so that key order matches numeric order
func PadIndex(i int) string {
	return fmt.Sprintf("%010d", i)
}

// Now returns the transaction timestamp in unix seconds
func Now(ctx contractapi.TransactionContextInterface) (int64, error) {
	ts, err := ctx.GetStub().GetTxTimestamp()
	if err != nil {
		return 0, types.NewInternalError(types.ErrCodeInternalError, "failed to read transaction timestamp", err)
	}
	return ts.AsTime().Unix(), nil
}

// CallerID returns the client identity of the transaction submitter
func CallerID(ctx contractapi.TransactionContextInterface) (string, error) {
	id, err := ctx.GetClientIdentity().GetID()
	if err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to get client ID", err)
	}
	return id, nil
}

// RequireNonEmpty rejects blank identifiers. Arguments are name/value pairs.
func RequireNonEmpty(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		name, value := pairs[i], pairs[i+1]
		if strings.TrimSpace(value) == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, fmt.Sprintf("%s must not be empty", name)).
				With("field", name)
		}
	}
	return nil
}

// Doc renders a document for an event payload. A nil input yields nil.
func Doc(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Emit publishes the single event of the transaction. Fabric keeps only the
// last SetEvent call, so every contract function calls Emit exactly once.
func Emit(ctx contractapi.TransactionContextInterface, event types.LedgerEvent) error {
	now, err := Now(ctx)
	if err != nil {
		return err
	}
	event.TxID = ctx.GetStub().GetTxID()
	event.Timestamp = now

	payload, err := json.Marshal(event)
	if err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to encode event", err)
	}
	if err := ctx.GetStub().SetEvent(string(event.Name), payload); err != nil {
		return types.NewInternalError(types.ErrCodeInternalError, "failed to set event", err)
	}
	return nil
}
