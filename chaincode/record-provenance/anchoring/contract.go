package anchoring

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/chaincode/record-provenance/registry"
	"github.com/medrex/record-provenance/chaincode/record-provenance/roles"
	"github.com/medrex/record-provenance/pkg/types"
)

// ContractName is the namespace of the anchoring transactions
const ContractName = "anchoring"

// Contract binds content hashes to records and collects attestations on them.
//
// Anchors are write-once. Reviews form an append-only sequence per hash in
// which each reviewer has at most one active entry; retraction deactivates
// the entry in place and lets the reviewer attest again.
type Contract struct {
	contractapi.Contract
}

// NewContract creates the anchoring and attestation contract
func NewContract() *Contract {
	return &Contract{Contract: contractapi.Contract{Name: ContractName}}
}

// AnchorRecord commits recordHash to recordID and its subject. The first
// anchor of a hash wins; anchors are never updated.
func (c *Contract) AnchorRecord(ctx contractapi.TransactionContextInterface, recordHash, recordID, subject string) error {
	if err := ledger.RequireNonEmpty("record_hash", recordHash, "record_id", recordID, "subject", subject); err != nil {
		return err
	}
	caller, err := registry.ResolveMember(ctx)
	if err != nil {
		return err
	}

	key, err := ledger.Key(ctx, ledger.ObjAnchor, recordHash)
	if err != nil {
		return err
	}
	exists, err := ledger.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return types.NewConflictError(types.ErrCodeAnchorExists,
			fmt.Sprintf("record hash %s is already anchored", recordHash)).With("record_hash", recordHash)
	}
	if err := requireRole(ctx, recordID, caller); err != nil {
		return err
	}

	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	anchor := &types.AnchoredRecord{
		RecordHash: recordHash,
		RecordID:   recordID,
		Subject:    subject,
		CreatedAt:  now,
		CreatedBy:  caller,
	}
	if err := ledger.PutJSON(ctx, key, anchor); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjRecordAnchor, recordID, recordHash); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjSubjectAnchor, subject, recordHash); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventRecordAnchored,
		Actor:      caller,
		RecordID:   recordID,
		RecordHash: recordHash,
		SubjectKey: recordHash,
		After:      ledger.Doc(anchor),
	})
}

// VerifyRecord attests that the anchored content is correct
func (c *Contract) VerifyRecord(ctx contractapi.TransactionContextInterface, recordHash, notes string) error {
	return c.submitReview(ctx, recordHash, types.ReviewVerification, 0, 0, notes)
}

// DisputeRecord attests that the anchored content is wrong, rating the
// severity (1-3) and culpability (1-5) of the problem
func (c *Contract) DisputeRecord(ctx contractapi.TransactionContextInterface, recordHash string, severity, culpability int, notes string) error {
	if err := validateRatings(severity, culpability); err != nil {
		return err
	}
	return c.submitReview(ctx, recordHash, types.ReviewDispute, severity, culpability, notes)
}

func (c *Contract) submitReview(ctx contractapi.TransactionContextInterface, recordHash string, reviewType types.ReviewType, severity, culpability int, notes string) error {
	if err := ledger.RequireNonEmpty("record_hash", recordHash); err != nil {
		return err
	}
	if len(notes) > types.MaxNotesLength {
		return types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("notes exceed %d bytes", types.MaxNotesLength))
	}
	anchor, err := loadAnchor(ctx, recordHash)
	if err != nil {
		return err
	}
	caller, err := registry.ResolveMember(ctx)
	if err != nil {
		return err
	}
	if err := requireRole(ctx, anchor.RecordID, caller); err != nil {
		return err
	}
	if _, active, err := activeIndex(ctx, recordHash, caller); err != nil {
		return err
	} else if active {
		return types.NewConflictError(types.ErrCodeAlreadyReviewed,
			fmt.Sprintf("caller already has an active review on %s; retract it first", recordHash)).
			With("record_hash", recordHash).With("reviewer", caller)
	}

	stats, err := loadReviewStats(ctx, recordHash)
	if err != nil {
		return err
	}
	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	review := &types.Review{
		RecordHash:  recordHash,
		Index:       stats.Total,
		Reviewer:    caller,
		ReviewType:  reviewType,
		Severity:    severity,
		Culpability: culpability,
		Timestamp:   now,
		Notes:       notes,
		IsActive:    true,
	}
	if err := putReview(ctx, review); err != nil {
		return err
	}
	if err := setActiveIndex(ctx, recordHash, caller, review.Index); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjReviewerReview, caller, recordHash, ledger.PadIndex(review.Index)); err != nil {
		return err
	}
	stats.Total++
	countActive(stats, reviewType, 1)
	if err := putReviewStats(ctx, stats); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventReviewSubmitted,
		Actor:      caller,
		RecordID:   anchor.RecordID,
		RecordHash: recordHash,
		SubjectKey: caller,
		After:      ledger.Doc(review),
	})
}

// requireRole rejects callers without an active role on the record
func requireRole(ctx contractapi.TransactionContextInterface, recordID, identityID string) error {
	_, ok, err := roles.ActiveRole(ctx, recordID, identityID)
	if err != nil {
		return err
	}
	if !ok {
		return types.NewAuthorizationError(types.ErrCodeRoleForbidden,
			fmt.Sprintf("caller holds no active role on record %s", recordID)).
			With("record_id", recordID).With("caller", identityID)
	}
	return nil
}

func validateRatings(severity, culpability int) error {
	if severity < types.MinSeverity || severity > types.MaxSeverity {
		return types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("severity must be between %d and %d", types.MinSeverity, types.MaxSeverity)).
			With("severity", severity)
	}
	if culpability < types.MinCulpability || culpability > types.MaxCulpability {
		return types.NewValidationError(types.ErrCodeInvalidInput,
			fmt.Sprintf("culpability must be between %d and %d", types.MinCulpability, types.MaxCulpability)).
			With("culpability", culpability)
	}
	return nil
}
