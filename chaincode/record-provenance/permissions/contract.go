package permissions

import (
	"fmt"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/chaincode/record-provenance/registry"
	"github.com/medrex/record-provenance/pkg/types"
)

// ContractName is the namespace of the permission transactions
const ContractName = "permissions"

// Contract records one-to-one disclosure grants. It does not consult record
// roles: a grant is the sharer's own act, not a management right.
type Contract struct {
	contractapi.Contract
}

// NewContract creates the access permission contract
func NewContract() *Contract {
	return &Contract{Contract: contractapi.Contract{Name: ContractName}}
}

// GrantAccess shares recordID with receiver under a caller-supplied hash
func (c *Contract) GrantAccess(ctx contractapi.TransactionContextInterface, permissionHash, recordID, receiver string) error {
	if err := ledger.RequireNonEmpty("permission_hash", permissionHash, "record_id", recordID, "receiver", receiver); err != nil {
		return err
	}
	if isZeroHash(permissionHash) {
		return types.NewValidationError(types.ErrCodeInvalidInput, "permission_hash must not be zero")
	}
	sharer, err := registry.ResolveMember(ctx)
	if err != nil {
		return err
	}
	if sharer == receiver {
		return types.NewValidationError(types.ErrCodeSelfShare, "a record cannot be shared with oneself").
			With("identity_id", sharer)
	}
	if err := registry.RequireIdentity(ctx, receiver); err != nil {
		return err
	}

	key, err := ledger.Key(ctx, ledger.ObjPermission, permissionHash)
	if err != nil {
		return err
	}
	exists, err := ledger.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return types.NewConflictError(types.ErrCodePermissionExists,
			fmt.Sprintf("permission %s already exists", permissionHash)).With("permission_hash", permissionHash)
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	perm := &types.AccessPermission{
		PermissionHash: permissionHash,
		Sharer:         sharer,
		Receiver:       receiver,
		RecordID:       recordID,
		GrantedAt:      now,
		IsActive:       true,
	}
	if err := ledger.PutJSON(ctx, key, perm); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjSharerPermission, sharer, permissionHash); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjReceiverPermission, receiver, recordID, permissionHash); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventAccessGranted,
		Actor:      sharer,
		RecordID:   recordID,
		SubjectKey: permissionHash,
		After:      ledger.Doc(perm),
	})
}

// RevokeAccess permanently revokes a permission. Only its sharer may revoke it.
func (c *Contract) RevokeAccess(ctx contractapi.TransactionContextInterface, permissionHash string) error {
	if err := ledger.RequireNonEmpty("permission_hash", permissionHash); err != nil {
		return err
	}
	caller, err := registry.ResolveMember(ctx)
	if err != nil {
		return err
	}

	perm, err := c.GetPermission(ctx, permissionHash)
	if err != nil {
		return err
	}
	if !perm.IsActive {
		return types.NewConflictError(types.ErrCodePermissionRevoked,
			fmt.Sprintf("permission %s is already revoked", permissionHash)).With("permission_hash", permissionHash)
	}
	if perm.Sharer != caller {
		return types.NewAuthorizationError(types.ErrCodeNotSharer, "only the sharer can revoke a permission").
			With("permission_hash", permissionHash).With("caller", caller)
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	before := *perm
	perm.IsActive = false
	perm.RevokedAt = now

	key, err := ledger.Key(ctx, ledger.ObjPermission, permissionHash)
	if err != nil {
		return err
	}
	if err := ledger.PutJSON(ctx, key, perm); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventAccessRevoked,
		Actor:      caller,
		RecordID:   perm.RecordID,
		SubjectKey: permissionHash,
		Before:     ledger.Doc(before),
		After:      ledger.Doc(perm),
	})
}

// GetPermission returns a permission, active or revoked
func (c *Contract) GetPermission(ctx contractapi.TransactionContextInterface, permissionHash string) (*types.AccessPermission, error) {
	key, err := ledger.Key(ctx, ledger.ObjPermission, permissionHash)
	if err != nil {
		return nil, err
	}
	var perm types.AccessPermission
	found, err := ledger.GetJSON(ctx, key, &perm)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewNotFoundError(types.ErrCodePermissionNotFound,
			fmt.Sprintf("permission %s does not exist", permissionHash)).With("permission_hash", permissionHash)
	}
	return &perm, nil
}

// CheckAccess reports whether receiver holds at least one active permission on recordID
func (c *Contract) CheckAccess(ctx contractapi.TransactionContextInterface, recordID, receiver string) (bool, error) {
	keys, err := ledger.IndexKeys(ctx, ledger.ObjReceiverPermission, receiver, recordID)
	if err != nil {
		return false, err
	}
	for _, parts := range keys {
		perm, err := c.GetPermission(ctx, parts[2])
		if err != nil {
			return false, err
		}
		if perm.IsActive {
			return true, nil
		}
	}
	return false, nil
}

// GetPermissionsBySharer lists every permission granted by sharer
func (c *Contract) GetPermissionsBySharer(ctx contractapi.TransactionContextInterface, sharer string) ([]*types.AccessPermission, error) {
	keys, err := ledger.IndexKeys(ctx, ledger.ObjSharerPermission, sharer)
	if err != nil {
		return nil, err
	}
	return c.collect(ctx, keys, 1)
}

// GetPermissionsByReceiver lists every permission granted to receiver
func (c *Contract) GetPermissionsByReceiver(ctx contractapi.TransactionContextInterface, receiver string) ([]*types.AccessPermission, error) {
	keys, err := ledger.IndexKeys(ctx, ledger.ObjReceiverPermission, receiver)
	if err != nil {
		return nil, err
	}
	return c.collect(ctx, keys, 2)
}

func (c *Contract) collect(ctx contractapi.TransactionContextInterface, keys [][]string, hashAt int) ([]*types.AccessPermission, error) {
	out := make([]*types.AccessPermission, 0, len(keys))
	for _, parts := range keys {
		perm, err := c.GetPermission(ctx, parts[hashAt])
		if err != nil {
			return nil, err
		}
		out = append(out, perm)
	}
	return out, nil
}

// isZeroHash matches hashes made only of zero digits, with or without a 0x
// prefix. A bare prefix has no digits and counts as zero.
func isZeroHash(h string) bool {
	if strings.HasPrefix(h, "0x") || strings.HasPrefix(h, "0X") {
		h = h[2:]
	}
	return strings.Trim(h, "0") == ""
}
