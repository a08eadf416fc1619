package types

import "encoding/json"

// EventName identifies a chaincode event
type EventName string

const (
	EventAdminTransferred      EventName = "AdminTransferred"
	EventWalletRegistered      EventName = "WalletRegistered"
	EventIdentityStatusChanged EventName = "IdentityStatusChanged"
	EventWalletDeactivated     EventName = "WalletDeactivated"
	EventWalletReactivated     EventName = "WalletReactivated"
	EventRoleInitialized       EventName = "RoleInitialized"
	EventRoleGranted           EventName = "RoleGranted"
	EventRoleChanged           EventName = "RoleChanged"
	EventRoleRevoked           EventName = "RoleRevoked"
	EventOwnershipLeft         EventName = "OwnershipLeft"
	EventAccessGranted         EventName = "AccessGranted"
	EventAccessRevoked         EventName = "AccessRevoked"
	EventRecordAnchored        EventName = "RecordAnchored"
	EventReviewSubmitted       EventName = "ReviewSubmitted"
	EventReviewRetracted       EventName = "ReviewRetracted"
	EventDisputeModified       EventName = "DisputeModified"
	EventDisputeReaction       EventName = "DisputeReaction"
)

// LedgerEvent is the payload of every chaincode event. Before and After hold
// the JSON document of the mutated object; Before is null on creation.
type LedgerEvent struct {
	Name       EventName       `json:"name"`
	TxID       string          `json:"tx_id"`
	Timestamp  int64           `json:"timestamp"`
	Actor      string          `json:"actor"`
	RecordID   string          `json:"record_id,omitempty"`
	RecordHash string          `json:"record_hash,omitempty"`
	SubjectKey string          `json:"subject_key,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}
