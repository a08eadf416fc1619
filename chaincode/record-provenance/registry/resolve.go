package registry

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/pkg/types"
)

// The functions in this file are the registry's query surface for the other
// contracts in the chaincode.

// RequireAdmin returns the caller's client ID if it is the registry admin
func RequireAdmin(ctx contractapi.TransactionContextInterface) (string, error) {
	admin, err := loadAdmin(ctx)
	if err != nil {
		return "", err
	}
	callerID, err := ledger.CallerID(ctx)
	if err != nil {
		return "", err
	}
	if callerID != admin {
		return "", types.NewAuthorizationError(types.ErrCodeNotAdmin, "caller is not the registry admin").
			With("caller", callerID)
	}
	return callerID, nil
}

// ResolveMember resolves the caller's wallet to an identity, requiring the
// caller to be an active member
func ResolveMember(ctx contractapi.TransactionContextInterface) (string, error) {
	wallet, err := ledger.CallerID(ctx)
	if err != nil {
		return "", err
	}
	identity, ok, err := memberIdentity(ctx, wallet)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", types.NewAuthorizationError(types.ErrCodeNotActiveMember,
			"caller wallet is not an active member").With("wallet", wallet)
	}
	return identity.IdentityID, nil
}

// RequireIdentity fails with not-found when the identity was never registered
func RequireIdentity(ctx contractapi.TransactionContextInterface, identityID string) error {
	_, found, err := LoadIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	if !found {
		return types.NewNotFoundError(types.ErrCodeIdentityNotFound,
			fmt.Sprintf("identity %s does not exist", identityID)).With("identity_id", identityID)
	}
	return nil
}

// LoadIdentity reads an identity
func LoadIdentity(ctx contractapi.TransactionContextInterface, identityID string) (*types.Identity, bool, error) {
	key, err := ledger.Key(ctx, ledger.ObjIdentity, identityID)
	if err != nil {
		return nil, false, err
	}
	var identity types.Identity
	found, err := ledger.GetJSON(ctx, key, &identity)
	if err != nil || !found {
		return nil, found, err
	}
	return &identity, true, nil
}

// LoadWallet reads a wallet binding
func LoadWallet(ctx contractapi.TransactionContextInterface, wallet string) (*types.Wallet, bool, error) {
	key, err := ledger.Key(ctx, ledger.ObjWallet, wallet)
	if err != nil {
		return nil, false, err
	}
	var w types.Wallet
	found, err := ledger.GetJSON(ctx, key, &w)
	if err != nil || !found {
		return nil, found, err
	}
	return &w, true, nil
}

func memberIdentity(ctx contractapi.TransactionContextInterface, wallet string) (*types.Identity, bool, error) {
	w, found, err := LoadWallet(ctx, wallet)
	if err != nil || !found {
		return nil, false, err
	}
	if !w.IsWalletActive {
		return nil, false, nil
	}
	identity, found, err := LoadIdentity(ctx, w.IdentityID)
	if err != nil || !found {
		return nil, false, err
	}
	return identity, identity.Status.IsMember(), nil
}

func loadAdmin(ctx contractapi.TransactionContextInterface) (string, error) {
	key, err := ledger.Key(ctx, ledger.ObjRegistry, "admin")
	if err != nil {
		return "", err
	}
	var rec adminRecord
	found, err := ledger.GetJSON(ctx, key, &rec)
	if err != nil {
		return "", err
	}
	if !found {
		return "", types.NewNotFoundError(types.ErrCodeNotInitialized, "registry admin has not been set")
	}
	return rec.Admin, nil
}

func putIdentity(ctx contractapi.TransactionContextInterface, identity *types.Identity) error {
	key, err := ledger.Key(ctx, ledger.ObjIdentity, identity.IdentityID)
	if err != nil {
		return err
	}
	return ledger.PutJSON(ctx, key, identity)
}

func putWallet(ctx contractapi.TransactionContextInterface, w *types.Wallet) error {
	key, err := ledger.Key(ctx, ledger.ObjWallet, w.Address)
	if err != nil {
		return err
	}
	return ledger.PutJSON(ctx, key, w)
}
