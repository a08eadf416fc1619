package ledgerclient

import (
	"context"

	"github.com/medrex/record-provenance/pkg/types"
)

// InitializeRecordRole bootstraps the first owner or administrator of a
// record. Registry admin only.
func (c *Client) InitializeRecordRole(ctx context.Context, recordID, identityID string, role types.Role) error {
	_, err := c.submit(ctx, RolesContract, "InitializeRecordRole", recordID, identityID, string(role))
	return err
}

func (c *Client) GrantRole(ctx context.Context, recordID, target string, role types.Role) error {
	_, err := c.submit(ctx, RolesContract, "GrantRole", recordID, target, string(role))
	return err
}

func (c *Client) ChangeRole(ctx context.Context, recordID, target string, newRole types.Role) error {
	_, err := c.submit(ctx, RolesContract, "ChangeRole", recordID, target, string(newRole))
	return err
}

// VoluntarilyLeaveOwnership drops the caller's owner role on a record
func (c *Client) VoluntarilyLeaveOwnership(ctx context.Context, recordID string) error {
	_, err := c.submit(ctx, RolesContract, "VoluntarilyLeaveOwnership", recordID)
	return err
}

func (c *Client) RevokeRole(ctx context.Context, recordID, target string) error {
	_, err := c.submit(ctx, RolesContract, "RevokeRole", recordID, target)
	return err
}

// GetRecordRole returns the role row for (record, identity), active or not
func (c *Client) GetRecordRole(ctx context.Context, recordID, identityID string) (*types.RecordRole, error) {
	payload, err := c.evaluate(ctx, RolesContract, "GetRecordRole", recordID, identityID)
	if err != nil {
		return nil, err
	}
	var role types.RecordRole
	if err := decode(payload, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (c *Client) HasActiveRole(ctx context.Context, recordID, identityID string) (bool, error) {
	payload, err := c.evaluate(ctx, RolesContract, "HasActiveRole", recordID, identityID)
	if err != nil {
		return false, err
	}
	return parseBool(payload)
}

func (c *Client) GetRoleSummary(ctx context.Context, recordID string) (*types.RoleSummary, error) {
	payload, err := c.evaluate(ctx, RolesContract, "GetRoleSummary", recordID)
	if err != nil {
		return nil, err
	}
	var summary types.RoleSummary
	if err := decode(payload, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Members lists the identities holding role on a record
func (c *Client) Members(ctx context.Context, recordID string, role types.Role) ([]string, error) {
	var function string
	switch role {
	case types.RoleOwner:
		function = "GetOwners"
	case types.RoleAdministrator:
		function = "GetAdministrators"
	case types.RoleViewer:
		function = "GetViewers"
	default:
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "invalid role: "+string(role))
	}

	payload, err := c.evaluate(ctx, RolesContract, function, recordID)
	if err != nil {
		return nil, err
	}
	return decodeList[string](payload)
}

// GetRecordsByIdentity lists the records an identity holds an active role on
func (c *Client) GetRecordsByIdentity(ctx context.Context, identityID string) ([]string, error) {
	payload, err := c.evaluate(ctx, RolesContract, "GetRecordsByIdentity", identityID)
	if err != nil {
		return nil, err
	}
	return decodeList[string](payload)
}
