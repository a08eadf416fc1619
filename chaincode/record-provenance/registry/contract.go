package registry

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/pkg/types"
)

// ContractName is the namespace of the registry transactions
const ContractName = "registry"

// Contract binds external wallets to stable identities and tracks identity
// lifecycle status. Every mutating call is restricted to the registry admin.
type Contract struct {
	contractapi.Contract
}

// NewContract creates the identity registry contract
func NewContract() *Contract {
	return &Contract{Contract: contractapi.Contract{Name: ContractName}}
}

// adminRecord is the registry's administrative credential
type adminRecord struct {
	Admin     string `json:"admin"`
	UpdatedAt int64  `json:"updated_at"`
}

// InitLedger records the invoking client as the registry admin. It can run once.
func (c *Contract) InitLedger(ctx contractapi.TransactionContextInterface) error {
	key, err := ledger.Key(ctx, ledger.ObjRegistry, "admin")
	if err != nil {
		return err
	}
	var existing adminRecord
	found, err := ledger.GetJSON(ctx, key, &existing)
	if err != nil {
		return err
	}
	if found {
		return types.NewConflictError(types.ErrCodeAlreadyInitialized, "registry admin already set")
	}

	callerID, err := ledger.CallerID(ctx)
	if err != nil {
		return err
	}
	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}

	rec := adminRecord{Admin: callerID, UpdatedAt: now}
	if err := ledger.PutJSON(ctx, key, rec); err != nil {
		return err
	}
	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventAdminTransferred,
		Actor:      callerID,
		SubjectKey: "admin",
		After:      ledger.Doc(rec),
	})
}

// TransferAdmin rotates the registry admin credential
func (c *Contract) TransferAdmin(ctx contractapi.TransactionContextInterface, newAdmin string) error {
	if err := ledger.RequireNonEmpty("new_admin", newAdmin); err != nil {
		return err
	}
	current, err := RequireAdmin(ctx)
	if err != nil {
		return err
	}
	if current == newAdmin {
		return types.NewValidationError(types.ErrCodeInvalidInput, "new admin is already the registry admin")
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	key, err := ledger.Key(ctx, ledger.ObjRegistry, "admin")
	if err != nil {
		return err
	}
	before := adminRecord{Admin: current}
	after := adminRecord{Admin: newAdmin, UpdatedAt: now}
	if err := ledger.PutJSON(ctx, key, after); err != nil {
		return err
	}
	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventAdminTransferred,
		Actor:      current,
		SubjectKey: "admin",
		Before:     ledger.Doc(before),
		After:      ledger.Doc(after),
	})
}

// GetAdmin returns the current registry admin
func (c *Contract) GetAdmin(ctx contractapi.TransactionContextInterface) (string, error) {
	return loadAdmin(ctx)
}

// RegisterWallet binds a wallet to an identity. An unknown identity is
// created in Active status; a known identity gains another wallet.
func (c *Contract) RegisterWallet(ctx contractapi.TransactionContextInterface, wallet, identityHint string) error {
	if err := ledger.RequireNonEmpty("wallet", wallet, "identity_id", identityHint); err != nil {
		return err
	}
	admin, err := RequireAdmin(ctx)
	if err != nil {
		return err
	}

	if _, found, err := LoadWallet(ctx, wallet); err != nil {
		return err
	} else if found {
		return types.NewConflictError(types.ErrCodeWalletExists,
			fmt.Sprintf("wallet %s is already bound to an identity", wallet)).With("wallet", wallet)
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}

	identity, found, err := LoadIdentity(ctx, identityHint)
	if err != nil {
		return err
	}
	if !found {
		identity = &types.Identity{
			IdentityID: identityHint,
			Status:     types.StatusActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := putIdentity(ctx, identity); err != nil {
			return err
		}
	}

	w := &types.Wallet{
		Address:        wallet,
		IdentityID:     identity.IdentityID,
		IsWalletActive: true,
		RegisteredAt:   now,
		UpdatedAt:      now,
	}
	if err := putWallet(ctx, w); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjIdentityWallet, identity.IdentityID, wallet); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventWalletRegistered,
		Actor:      admin,
		SubjectKey: wallet,
		After:      ledger.Doc(w),
	})
}

// SetIdentityStatus moves an identity to a new lifecycle status
func (c *Contract) SetIdentityStatus(ctx contractapi.TransactionContextInterface, identityID, status string) error {
	if err := ledger.RequireNonEmpty("identity_id", identityID); err != nil {
		return err
	}
	newStatus, err := types.ParseIdentityStatus(status)
	if err != nil {
		return err
	}
	admin, err := RequireAdmin(ctx)
	if err != nil {
		return err
	}

	identity, found, err := LoadIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	if !found {
		return types.NewNotFoundError(types.ErrCodeIdentityNotFound,
			fmt.Sprintf("identity %s does not exist", identityID)).With("identity_id", identityID)
	}
	if identity.Status == newStatus {
		return types.NewConflictError(types.ErrCodeStatusUnchanged,
			fmt.Sprintf("identity %s already has status %s", identityID, newStatus))
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	before := *identity
	identity.Status = newStatus
	identity.UpdatedAt = now
	if err := putIdentity(ctx, identity); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventIdentityStatusChanged,
		Actor:      admin,
		SubjectKey: identityID,
		Before:     ledger.Doc(before),
		After:      ledger.Doc(identity),
	})
}

// DeactivateWallet disables a single wallet without touching its siblings
func (c *Contract) DeactivateWallet(ctx contractapi.TransactionContextInterface, wallet string) error {
	return c.setWalletActive(ctx, wallet, false)
}

// ReactivateWallet re-enables a previously deactivated wallet
func (c *Contract) ReactivateWallet(ctx contractapi.TransactionContextInterface, wallet string) error {
	return c.setWalletActive(ctx, wallet, true)
}

func (c *Contract) setWalletActive(ctx contractapi.TransactionContextInterface, wallet string, active bool) error {
	if err := ledger.RequireNonEmpty("wallet", wallet); err != nil {
		return err
	}
	admin, err := RequireAdmin(ctx)
	if err != nil {
		return err
	}

	w, found, err := LoadWallet(ctx, wallet)
	if err != nil {
		return err
	}
	if !found {
		return types.NewNotFoundError(types.ErrCodeWalletNotFound,
			fmt.Sprintf("wallet %s is not registered", wallet)).With("wallet", wallet)
	}
	if w.IsWalletActive == active {
		return types.NewConflictError(types.ErrCodeWalletState,
			fmt.Sprintf("wallet %s active state is already %t", wallet, active))
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	before := *w
	w.IsWalletActive = active
	w.UpdatedAt = now
	if err := putWallet(ctx, w); err != nil {
		return err
	}

	name := types.EventWalletDeactivated
	if active {
		name = types.EventWalletReactivated
	}
	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       name,
		Actor:      admin,
		SubjectKey: wallet,
		Before:     ledger.Doc(before),
		After:      ledger.Doc(w),
	})
}

// IsActiveMember reports whether the wallet is active and its identity status
// is neither Inactive nor unset
func (c *Contract) IsActiveMember(ctx contractapi.TransactionContextInterface, wallet string) (bool, error) {
	_, ok, err := memberIdentity(ctx, wallet)
	return ok, err
}

// IsVerifiedMember reports whether the wallet is active and its identity is Verified
func (c *Contract) IsVerifiedMember(ctx contractapi.TransactionContextInterface, wallet string) (bool, error) {
	identity, ok, err := memberIdentity(ctx, wallet)
	if err != nil || !ok {
		return false, err
	}
	return identity.Status == types.StatusVerified, nil
}

// IdentityOf resolves a wallet to its identity
func (c *Contract) IdentityOf(ctx contractapi.TransactionContextInterface, wallet string) (string, error) {
	w, found, err := LoadWallet(ctx, wallet)
	if err != nil {
		return "", err
	}
	if !found {
		return "", types.NewNotFoundError(types.ErrCodeWalletNotFound,
			fmt.Sprintf("wallet %s is not registered", wallet)).With("wallet", wallet)
	}
	return w.IdentityID, nil
}

// GetIdentity returns an identity
func (c *Contract) GetIdentity(ctx contractapi.TransactionContextInterface, identityID string) (*types.Identity, error) {
	identity, found, err := LoadIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewNotFoundError(types.ErrCodeIdentityNotFound,
			fmt.Sprintf("identity %s does not exist", identityID))
	}
	return identity, nil
}

// GetWallet returns a wallet binding
func (c *Contract) GetWallet(ctx contractapi.TransactionContextInterface, wallet string) (*types.Wallet, error) {
	w, found, err := LoadWallet(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewNotFoundError(types.ErrCodeWalletNotFound,
			fmt.Sprintf("wallet %s is not registered", wallet))
	}
	return w, nil
}

// WalletsOf lists the wallets bound to an identity
func (c *Contract) WalletsOf(ctx contractapi.TransactionContextInterface, identityID string) ([]string, error) {
	keys, err := ledger.IndexKeys(ctx, ledger.ObjIdentityWallet, identityID)
	if err != nil {
		return nil, err
	}
	wallets := make([]string, 0, len(keys))
	for _, parts := range keys {
		wallets = append(wallets, parts[1])
	}
	return wallets, nil
}
