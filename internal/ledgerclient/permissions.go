package ledgerclient

import (
	"context"

	"github.com/medrex/record-provenance/pkg/types"
)

// GrantAccess records a one-to-one disclosure from the caller to receiver
func (c *Client) GrantAccess(ctx context.Context, permissionHash, recordID, receiver string) error {
	_, err := c.submit(ctx, PermissionsContract, "GrantAccess", permissionHash, recordID, receiver)
	return err
}

// RevokeAccess ends a permission previously granted by the caller
func (c *Client) RevokeAccess(ctx context.Context, permissionHash string) error {
	_, err := c.submit(ctx, PermissionsContract, "RevokeAccess", permissionHash)
	return err
}

func (c *Client) GetPermission(ctx context.Context, permissionHash string) (*types.AccessPermission, error) {
	payload, err := c.evaluate(ctx, PermissionsContract, "GetPermission", permissionHash)
	if err != nil {
		return nil, err
	}
	var permission types.AccessPermission
	if err := decode(payload, &permission); err != nil {
		return nil, err
	}
	return &permission, nil
}

// CheckAccess reports whether receiver holds an active permission on recordID
func (c *Client) CheckAccess(ctx context.Context, recordID, receiver string) (bool, error) {
	payload, err := c.evaluate(ctx, PermissionsContract, "CheckAccess", recordID, receiver)
	if err != nil {
		return false, err
	}
	return parseBool(payload)
}

func (c *Client) GetPermissionsBySharer(ctx context.Context, sharer string) ([]*types.AccessPermission, error) {
	payload, err := c.evaluate(ctx, PermissionsContract, "GetPermissionsBySharer", sharer)
	if err != nil {
		return nil, err
	}
	return decodeList[*types.AccessPermission](payload)
}

func (c *Client) GetPermissionsByReceiver(ctx context.Context, receiver string) ([]*types.AccessPermission, error) {
	payload, err := c.evaluate(ctx, PermissionsContract, "GetPermissionsByReceiver", receiver)
	if err != nil {
		return nil, err
	}
	return decodeList[*types.AccessPermission](payload)
}
