package types

import "fmt"

// IdentityStatus is the lifecycle status of a registered identity
type IdentityStatus string

const (
	StatusInactive IdentityStatus = "Inactive"
	StatusActive   IdentityStatus = "Active"
	StatusVerified IdentityStatus = "Verified"
)

// ParseIdentityStatus converts a wire value into an IdentityStatus
func ParseIdentityStatus(s string) (IdentityStatus, error) {
	switch IdentityStatus(s) {
	case StatusInactive, StatusActive, StatusVerified:
		return IdentityStatus(s), nil
	}
	return "", NewValidationError(ErrCodeInvalidInput, fmt.Sprintf("invalid identity status: %q", s))
}

// IsMember reports whether the status allows acting on the ledger
func (s IdentityStatus) IsMember() bool {
	switch s {
	case StatusActive, StatusVerified:
		return true
	case StatusInactive:
		return false
	}
	return false
}

// Role is a per-record role
type Role string

const (
	RoleOwner         Role = "owner"
	RoleAdministrator Role = "administrator"
	RoleViewer        Role = "viewer"
)

// ParseRole converts a wire value into a Role
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdministrator, RoleViewer:
		return Role(s), nil
	}
	return "", NewValidationError(ErrCodeInvalidInput, fmt.Sprintf("invalid role: %q", s))
}

// Manages reports whether the role may grant, change or revoke other roles
func (r Role) Manages() bool {
	switch r {
	case RoleOwner, RoleAdministrator:
		return true
	case RoleViewer:
		return false
	}
	return false
}

// ReviewType distinguishes verifications from disputes
type ReviewType string

const (
	ReviewVerification ReviewType = "Verification"
	ReviewDispute      ReviewType = "Dispute"
)

// Attestation bounds
const (
	MinSeverity    = 1
	MaxSeverity    = 3
	MinCulpability = 1
	MaxCulpability = 5
	MaxNotesLength = 2048
)

// Identity is a stable logical party controlling one or more wallets
type Identity struct {
	IdentityID string         `json:"identity_id"`
	Status     IdentityStatus `json:"status"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Wallet binds an external address to exactly one identity
type Wallet struct {
	Address        string `json:"address"`
	IdentityID     string `json:"identity_id"`
	IsWalletActive bool   `json:"is_wallet_active"`
	RegisteredAt   int64  `json:"registered_at"`
	UpdatedAt      int64  `json:"updated_at"`
}

// RecordRole is an identity's role on one record
type RecordRole struct {
	RecordID     string `json:"record_id"`
	IdentityID   string `json:"identity_id"`
	Role         Role   `json:"role"`
	IsActive     bool   `json:"is_active"`
	GrantedAt    int64  `json:"granted_at"`
	LastModified int64  `json:"last_modified"`
}

// RoleSummary holds the active role counts of one record. It is updated in
// the same transaction as every role mutation.
type RoleSummary struct {
	RecordID       string `json:"record_id"`
	Owners         int    `json:"owners"`
	Administrators int    `json:"administrators"`
	Viewers        int    `json:"viewers"`
}

// HasOwner reports whether the record has at least one active owner
func (s *RoleSummary) HasOwner() bool {
	return s.Owners > 0
}

// Initialized reports whether the record currently has an owner or administrator
func (s *RoleSummary) Initialized() bool {
	return s.Owners > 0 || s.Administrators > 0
}

// Adjust moves the count for role by delta
func (s *RoleSummary) Adjust(role Role, delta int) {
	switch role {
	case RoleOwner:
		s.Owners += delta
	case RoleAdministrator:
		s.Administrators += delta
	case RoleViewer:
		s.Viewers += delta
	}
}

// AccessPermission is a one-to-one disclosure grant, independent of roles
type AccessPermission struct {
	PermissionHash string `json:"permission_hash"`
	Sharer         string `json:"sharer"`
	Receiver       string `json:"receiver"`
	RecordID       string `json:"record_id"`
	GrantedAt      int64  `json:"granted_at"`
	RevokedAt      int64  `json:"revoked_at,omitempty"`
	IsActive       bool   `json:"is_active"`
}

// AnchoredRecord is an immutable binding of a content hash to a record
type AnchoredRecord struct {
	RecordHash string `json:"record_hash"`
	RecordID   string `json:"record_id"`
	Subject    string `json:"subject"`
	CreatedAt  int64  `json:"created_at"`
	CreatedBy  string `json:"created_by"`
}

// Review is one attestation in the append-only sequence of a record hash
type Review struct {
	RecordHash  string     `json:"record_hash"`
	Index       int        `json:"index"`
	Reviewer    string     `json:"reviewer"`
	ReviewType  ReviewType `json:"review_type"`
	Severity    int        `json:"severity"`
	Culpability int        `json:"culpability"`
	Timestamp   int64      `json:"timestamp"`
	Notes       string     `json:"notes"`
	IsActive    bool       `json:"is_active"`
	Amendments  int        `json:"amendments"`
}

// ReviewStats summarises the review sequence of a record hash
type ReviewStats struct {
	RecordHash          string `json:"record_hash"`
	Total               int    `json:"total"`
	ActiveVerifications int    `json:"active_verifications"`
	ActiveDisputes      int    `json:"active_disputes"`
	Retracted           int    `json:"retracted"`
	Amendments          int    `json:"amendments"`
}

// Reaction is a peer's response to a dispute
type Reaction struct {
	RecordHash      string `json:"record_hash"`
	Disputer        string `json:"disputer"`
	Index           int    `json:"index"`
	Reactor         string `json:"reactor"`
	SupportsDispute bool   `json:"supports_dispute"`
	Timestamp       int64  `json:"timestamp"`
}

// ReactionStats counts reactions to one dispute
type ReactionStats struct {
	RecordHash string `json:"record_hash"`
	Disputer   string `json:"disputer"`
	Supports   int    `json:"supports"`
	Opposes    int    `json:"opposes"`
}

// AttestationEntry points at one review authored by an identity
type AttestationEntry struct {
	RecordHash string `json:"record_hash"`
	Index      int    `json:"index"`
}
