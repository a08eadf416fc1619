package roles

import (
	"encoding/json"
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/chaincode/record-provenance/registry"
	"github.com/medrex/record-provenance/pkg/types"
)

// ContractName is the namespace of the role transactions
const ContractName = "roles"

// Contract manages per-record owner, administrator and viewer roles.
//
// A record that has been initialized always keeps at least one active owner
// or administrator. Owners are never demoted or revoked by anyone else; they
// leave through VoluntarilyLeaveOwnership.
type Contract struct {
	contractapi.Contract
}

// NewContract creates the role authorization contract
func NewContract() *Contract {
	return &Contract{Contract: contractapi.Contract{Name: ContractName}}
}

// InitializeRecordRole bootstraps the first owner or administrator of a record
func (c *Contract) InitializeRecordRole(ctx contractapi.TransactionContextInterface, recordID, identityID, role string) error {
	if err := ledger.RequireNonEmpty("record_id", recordID, "identity_id", identityID); err != nil {
		return err
	}
	r, err := types.ParseRole(role)
	if err != nil {
		return err
	}
	if r == types.RoleViewer {
		return types.NewValidationError(types.ErrCodeInvalidInput, "a record can only be initialized with an owner or administrator")
	}
	admin, err := registry.RequireAdmin(ctx)
	if err != nil {
		return err
	}
	if err := registry.RequireIdentity(ctx, identityID); err != nil {
		return err
	}

	summary, err := loadSummary(ctx, recordID)
	if err != nil {
		return err
	}
	if summary.Initialized() {
		return types.NewConflictError(types.ErrCodeRecordInitialized,
			fmt.Sprintf("record %s already has an owner or administrator", recordID)).With("record_id", recordID)
	}

	existing, found, err := LoadRole(ctx, recordID, identityID)
	if err != nil {
		return err
	}
	if found && existing.IsActive {
		return roleExists(recordID, identityID)
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	entry := &types.RecordRole{
		RecordID:     recordID,
		IdentityID:   identityID,
		Role:         r,
		IsActive:     true,
		GrantedAt:    now,
		LastModified: now,
	}
	if err := activate(ctx, summary, entry); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventRoleInitialized,
		Actor:      admin,
		RecordID:   recordID,
		SubjectKey: identityID,
		Before:     docOrNil(existing),
		After:      ledger.Doc(entry),
	})
}

// GrantRole gives target an active role on the record. A target whose
// previous role was revoked is reactivated with the new role.
func (c *Contract) GrantRole(ctx contractapi.TransactionContextInterface, recordID, target, role string) error {
	if err := ledger.RequireNonEmpty("record_id", recordID, "target", target); err != nil {
		return err
	}
	r, err := types.ParseRole(role)
	if err != nil {
		return err
	}
	caller, callerRole, err := resolveCaller(ctx, recordID)
	if err != nil {
		return err
	}
	if err := registry.RequireIdentity(ctx, target); err != nil {
		return err
	}

	existing, found, err := LoadRole(ctx, recordID, target)
	if err != nil {
		return err
	}
	if found && existing.IsActive {
		return roleExists(recordID, target)
	}

	summary, err := loadSummary(ctx, recordID)
	if err != nil {
		return err
	}
	if !canGrant(callerRole, r, summary.HasOwner()) {
		return forbidden(fmt.Sprintf("%s may not grant %s on record %s", callerRole, r, recordID), caller, recordID)
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	var before *types.RecordRole
	entry := &types.RecordRole{RecordID: recordID, IdentityID: target}
	if found {
		prev := *existing
		before = &prev
		entry = existing
	}
	entry.Role = r
	entry.IsActive = true
	entry.GrantedAt = now
	entry.LastModified = now
	if err := activate(ctx, summary, entry); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventRoleGranted,
		Actor:      caller,
		RecordID:   recordID,
		SubjectKey: target,
		Before:     docOrNil(before),
		After:      ledger.Doc(entry),
	})
}

// ChangeRole moves target's active role to newRole
func (c *Contract) ChangeRole(ctx contractapi.TransactionContextInterface, recordID, target, newRole string) error {
	if err := ledger.RequireNonEmpty("record_id", recordID, "target", target); err != nil {
		return err
	}
	next, err := types.ParseRole(newRole)
	if err != nil {
		return err
	}
	caller, err := registry.ResolveMember(ctx)
	if err != nil {
		return err
	}

	entry, err := requireActive(ctx, recordID, target)
	if err != nil {
		return err
	}
	if entry.Role == next {
		return types.NewConflictError(types.ErrCodeRoleUnchanged,
			fmt.Sprintf("%s already holds %s on record %s", target, next, recordID))
	}
	if entry.Role == types.RoleOwner {
		return types.NewAuthorizationError(types.ErrCodeOwnerImmutable,
			"an owner's role can only be given up by the owner through VoluntarilyLeaveOwnership").
			With("record_id", recordID).With("target", target)
	}

	summary, err := loadSummary(ctx, recordID)
	if err != nil {
		return err
	}
	if entry.Role == types.RoleAdministrator && next == types.RoleViewer &&
		!summary.HasOwner() && summary.Administrators < 2 {
		return antiLockout(recordID, "demoting the last administrator of a record without an owner")
	}

	callerRole, ok, err := ActiveRole(ctx, recordID, caller)
	if err != nil {
		return err
	}
	if !ok {
		return noRole(caller, recordID)
	}
	if !canChange(callerRole, caller == target, entry.Role, next, summary.HasOwner()) {
		return forbidden(fmt.Sprintf("%s may not change %s from %s to %s", callerRole, target, entry.Role, next), caller, recordID)
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	before := *entry
	if err := switchRole(ctx, summary, entry, next, now); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventRoleChanged,
		Actor:      caller,
		RecordID:   recordID,
		SubjectKey: target,
		Before:     ledger.Doc(before),
		After:      ledger.Doc(entry),
	})
}

// VoluntarilyLeaveOwnership deactivates the caller's own owner role
func (c *Contract) VoluntarilyLeaveOwnership(ctx contractapi.TransactionContextInterface, recordID string) error {
	if err := ledger.RequireNonEmpty("record_id", recordID); err != nil {
		return err
	}
	caller, callerRole, err := resolveCaller(ctx, recordID)
	if err != nil {
		return err
	}
	if callerRole != types.RoleOwner {
		return forbidden("only an owner can leave ownership", caller, recordID)
	}

	summary, err := loadSummary(ctx, recordID)
	if err != nil {
		return err
	}
	if !leavesAdministered(summary, types.RoleOwner) {
		return antiLockout(recordID, "the last owner cannot leave a record without an administrator")
	}

	entry, err := requireActive(ctx, recordID, caller)
	if err != nil {
		return err
	}
	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	before := *entry
	if err := deactivate(ctx, summary, entry, now); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventOwnershipLeft,
		Actor:      caller,
		RecordID:   recordID,
		SubjectKey: caller,
		Before:     ledger.Doc(before),
		After:      ledger.Doc(entry),
	})
}

// RevokeRole deactivates target's role on the record
func (c *Contract) RevokeRole(ctx contractapi.TransactionContextInterface, recordID, target string) error {
	if err := ledger.RequireNonEmpty("record_id", recordID, "target", target); err != nil {
		return err
	}
	caller, err := registry.ResolveMember(ctx)
	if err != nil {
		return err
	}

	entry, err := requireActive(ctx, recordID, target)
	if err != nil {
		return err
	}
	if entry.Role == types.RoleOwner {
		return types.NewAuthorizationError(types.ErrCodeOwnerImmutable,
			"owners cannot be revoked; the owner must use VoluntarilyLeaveOwnership").
			With("record_id", recordID).With("target", target)
	}

	summary, err := loadSummary(ctx, recordID)
	if err != nil {
		return err
	}
	if entry.Role == types.RoleAdministrator && !leavesAdministered(summary, types.RoleAdministrator) {
		return antiLockout(recordID, "revoking the last administrator of a record without an owner")
	}

	self := caller == target
	var callerRole types.Role
	if !self {
		var ok bool
		callerRole, ok, err = ActiveRole(ctx, recordID, caller)
		if err != nil {
			return err
		}
		if !ok {
			return noRole(caller, recordID)
		}
	}
	if !canRevoke(callerRole, self, entry.Role, summary.HasOwner()) {
		return forbidden(fmt.Sprintf("%s may not revoke %s %s", callerRole, entry.Role, target), caller, recordID)
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	before := *entry
	if err := deactivate(ctx, summary, entry, now); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventRoleRevoked,
		Actor:      caller,
		RecordID:   recordID,
		SubjectKey: target,
		Before:     ledger.Doc(before),
		After:      ledger.Doc(entry),
	})
}

// GetRecordRole returns the role entry of an identity on a record
func (c *Contract) GetRecordRole(ctx contractapi.TransactionContextInterface, recordID, identityID string) (*types.RecordRole, error) {
	entry, found, err := LoadRole(ctx, recordID, identityID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewNotFoundError(types.ErrCodeRoleNotFound,
			fmt.Sprintf("%s has no role on record %s", identityID, recordID))
	}
	return entry, nil
}

// HasActiveRole reports whether the identity holds any active role on the record
func (c *Contract) HasActiveRole(ctx contractapi.TransactionContextInterface, recordID, identityID string) (bool, error) {
	_, ok, err := ActiveRole(ctx, recordID, identityID)
	return ok, err
}

// GetRoleSummary returns the active role counts of a record
func (c *Contract) GetRoleSummary(ctx contractapi.TransactionContextInterface, recordID string) (*types.RoleSummary, error) {
	return loadSummary(ctx, recordID)
}

// GetOwners lists the active owners of a record
func (c *Contract) GetOwners(ctx contractapi.TransactionContextInterface, recordID string) ([]string, error) {
	return members(ctx, recordID, types.RoleOwner)
}

// GetAdministrators lists the active administrators of a record
func (c *Contract) GetAdministrators(ctx contractapi.TransactionContextInterface, recordID string) ([]string, error) {
	return members(ctx, recordID, types.RoleAdministrator)
}

// GetViewers lists the active viewers of a record
func (c *Contract) GetViewers(ctx contractapi.TransactionContextInterface, recordID string) ([]string, error) {
	return members(ctx, recordID, types.RoleViewer)
}

// GetRecordsByIdentity lists the records on which the identity holds an active role
func (c *Contract) GetRecordsByIdentity(ctx contractapi.TransactionContextInterface, identityID string) ([]string, error) {
	keys, err := ledger.IndexKeys(ctx, ledger.ObjIdentityRecord, identityID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, parts := range keys {
		out = append(out, parts[1])
	}
	return out, nil
}

// resolveCaller returns the calling identity and its active role on the record
func resolveCaller(ctx contractapi.TransactionContextInterface, recordID string) (string, types.Role, error) {
	caller, err := registry.ResolveMember(ctx)
	if err != nil {
		return "", "", err
	}
	role, ok, err := ActiveRole(ctx, recordID, caller)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", noRole(caller, recordID)
	}
	return caller, role, nil
}

func requireActive(ctx contractapi.TransactionContextInterface, recordID, identityID string) (*types.RecordRole, error) {
	entry, found, err := LoadRole(ctx, recordID, identityID)
	if err != nil {
		return nil, err
	}
	if !found || !entry.IsActive {
		return nil, types.NewNotFoundError(types.ErrCodeRoleNotFound,
			fmt.Sprintf("%s has no active role on record %s", identityID, recordID)).
			With("record_id", recordID).With("identity_id", identityID)
	}
	return entry, nil
}

func docOrNil(role *types.RecordRole) json.RawMessage {
	if role == nil {
		return nil
	}
	return ledger.Doc(role)
}

func noRole(caller, recordID string) error {
	return types.NewAuthorizationError(types.ErrCodeRoleForbidden,
		fmt.Sprintf("caller holds no active role on record %s", recordID)).
		With("caller", caller).With("record_id", recordID)
}

func roleExists(recordID, identityID string) error {
	return types.NewConflictError(types.ErrCodeRoleExists,
		fmt.Sprintf("%s already holds an active role on record %s; use ChangeRole", identityID, recordID)).
		With("record_id", recordID).With("identity_id", identityID)
}

func forbidden(message, caller, recordID string) error {
	return types.NewAuthorizationError(types.ErrCodeRoleForbidden, message).
		With("caller", caller).With("record_id", recordID)
}

func antiLockout(recordID, message string) error {
	return types.NewInvariantError(types.ErrCodeAntiLockout, message).With("record_id", recordID)
}
