package cmd

import (
	"context"

	"github.com/medrex/record-provenance/pkg/types"
)

// ledgerAPI is the chaincode surface provctl drives. *ledgerclient.Client
// implements it.
type ledgerAPI interface {
	Close()

	InitLedger(ctx context.Context) error
	TransferAdmin(ctx context.Context, newAdmin string) error
	GetAdmin(ctx context.Context) (string, error)
	RegisterWallet(ctx context.Context, wallet, identityHint string) error
	SetIdentityStatus(ctx context.Context, identityID string, status types.IdentityStatus) error
	DeactivateWallet(ctx context.Context, wallet string) error
	ReactivateWallet(ctx context.Context, wallet string) error
	IsActiveMember(ctx context.Context, wallet string) (bool, error)
	IsVerifiedMember(ctx context.Context, wallet string) (bool, error)
	GetIdentity(ctx context.Context, identityID string) (*types.Identity, error)
	GetWallet(ctx context.Context, wallet string) (*types.Wallet, error)
	WalletsOf(ctx context.Context, identityID string) ([]string, error)

	InitializeRecordRole(ctx context.Context, recordID, identityID string, role types.Role) error
	GrantRole(ctx context.Context, recordID, target string, role types.Role) error
	ChangeRole(ctx context.Context, recordID, target string, newRole types.Role) error
	VoluntarilyLeaveOwnership(ctx context.Context, recordID string) error
	RevokeRole(ctx context.Context, recordID, target string) error
	GetRecordRole(ctx context.Context, recordID, identityID string) (*types.RecordRole, error)
	GetRoleSummary(ctx context.Context, recordID string) (*types.RoleSummary, error)
	Members(ctx context.Context, recordID string, role types.Role) ([]string, error)
	GetRecordsByIdentity(ctx context.Context, identityID string) ([]string, error)

	GrantAccess(ctx context.Context, permissionHash, recordID, receiver string) error
	RevokeAccess(ctx context.Context, permissionHash string) error
	GetPermission(ctx context.Context, permissionHash string) (*types.AccessPermission, error)
	CheckAccess(ctx context.Context, recordID, receiver string) (bool, error)
	GetPermissionsBySharer(ctx context.Context, sharer string) ([]*types.AccessPermission, error)
	GetPermissionsByReceiver(ctx context.Context, receiver string) ([]*types.AccessPermission, error)

	AnchorRecord(ctx context.Context, recordHash, recordID, subject string) error
	VerifyRecord(ctx context.Context, recordHash, notes string) error
	DisputeRecord(ctx context.Context, recordHash string, severity, culpability int, notes string) error
	RetractReview(ctx context.Context, recordHash string) error
	ModifyDispute(ctx context.Context, recordHash string, severity, culpability int) error
	ReactToDispute(ctx context.Context, recordHash, disputer string, supportsDispute bool) error
	GetAnchor(ctx context.Context, recordHash string) (*types.AnchoredRecord, error)
	GetAnchorsByRecord(ctx context.Context, recordID string) ([]*types.AnchoredRecord, error)
	GetAnchorsBySubject(ctx context.Context, subject string) ([]*types.AnchoredRecord, error)
	GetReviews(ctx context.Context, recordHash string) ([]*types.Review, error)
	GetReviewStats(ctx context.Context, recordHash string) (*types.ReviewStats, error)
	GetReactions(ctx context.Context, recordHash, disputer string) ([]*types.Reaction, error)
	GetReactionStats(ctx context.Context, recordHash, disputer string) (*types.ReactionStats, error)
	GetAttestationHistory(ctx context.Context, identityID string) ([]*types.AttestationEntry, error)
}
