package ledgerclient

import (
	"context"
	"strings"

	"github.com/medrex/record-provenance/pkg/types"
)

// InitLedger makes the calling identity the registry admin
func (c *Client) InitLedger(ctx context.Context) error {
	_, err := c.submit(ctx, RegistryContract, "InitLedger")
	return err
}

// TransferAdmin hands the admin role to another client identity
func (c *Client) TransferAdmin(ctx context.Context, newAdmin string) error {
	_, err := c.submit(ctx, RegistryContract, "TransferAdmin", newAdmin)
	return err
}

// GetAdmin returns the current registry admin
func (c *Client) GetAdmin(ctx context.Context) (string, error) {
	payload, err := c.evaluate(ctx, RegistryContract, "GetAdmin")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(payload)), nil
}

// RegisterWallet binds wallet to the identity named by hint, creating the
// identity on first use
func (c *Client) RegisterWallet(ctx context.Context, wallet, identityHint string) error {
	_, err := c.submit(ctx, RegistryContract, "RegisterWallet", wallet, identityHint)
	return err
}

// SetIdentityStatus moves an identity between Inactive, Active and Verified
func (c *Client) SetIdentityStatus(ctx context.Context, identityID string, status types.IdentityStatus) error {
	_, err := c.submit(ctx, RegistryContract, "SetIdentityStatus", identityID, string(status))
	return err
}

func (c *Client) DeactivateWallet(ctx context.Context, wallet string) error {
	_, err := c.submit(ctx, RegistryContract, "DeactivateWallet", wallet)
	return err
}

func (c *Client) ReactivateWallet(ctx context.Context, wallet string) error {
	_, err := c.submit(ctx, RegistryContract, "ReactivateWallet", wallet)
	return err
}

func (c *Client) IsActiveMember(ctx context.Context, wallet string) (bool, error) {
	payload, err := c.evaluate(ctx, RegistryContract, "IsActiveMember", wallet)
	if err != nil {
		return false, err
	}
	return parseBool(payload)
}

func (c *Client) IsVerifiedMember(ctx context.Context, wallet string) (bool, error) {
	payload, err := c.evaluate(ctx, RegistryContract, "IsVerifiedMember", wallet)
	if err != nil {
		return false, err
	}
	return parseBool(payload)
}

// IdentityOf resolves the identity a wallet belongs to
func (c *Client) IdentityOf(ctx context.Context, wallet string) (string, error) {
	payload, err := c.evaluate(ctx, RegistryContract, "IdentityOf", wallet)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(payload)), nil
}

func (c *Client) GetIdentity(ctx context.Context, identityID string) (*types.Identity, error) {
	payload, err := c.evaluate(ctx, RegistryContract, "GetIdentity", identityID)
	if err != nil {
		return nil, err
	}
	var identity types.Identity
	if err := decode(payload, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (c *Client) GetWallet(ctx context.Context, wallet string) (*types.Wallet, error) {
	payload, err := c.evaluate(ctx, RegistryContract, "GetWallet", wallet)
	if err != nil {
		return nil, err
	}
	var w types.Wallet
	if err := decode(payload, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// WalletsOf lists every wallet ever bound to an identity
func (c *Client) WalletsOf(ctx context.Context, identityID string) ([]string, error) {
	payload, err := c.evaluate(ctx, RegistryContract, "WalletsOf", identityID)
	if err != nil {
		return nil, err
	}
	return decodeList[string](payload)
}
