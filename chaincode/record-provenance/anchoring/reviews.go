package anchoring

import (
	"fmt"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/chaincode/record-provenance/registry"
	"github.com/medrex/record-provenance/pkg/types"
)

// RetractReview deactivates the caller's active review on recordHash. The
// entry stays in the sequence.
func (c *Contract) RetractReview(ctx contractapi.TransactionContextInterface, recordHash string) error {
	if err := ledger.RequireNonEmpty("record_hash", recordHash); err != nil {
		return err
	}
	caller, err := registry.ResolveMember(ctx)
	if err != nil {
		return err
	}
	anchor, err := loadAnchor(ctx, recordHash)
	if err != nil {
		return err
	}
	review, err := requireActiveReview(ctx, recordHash, caller)
	if err != nil {
		return err
	}
	stats, err := loadReviewStats(ctx, recordHash)
	if err != nil {
		return err
	}

	before := *review
	review.IsActive = false
	if err := putReview(ctx, review); err != nil {
		return err
	}
	if err := ledger.DeleteIndex(ctx, ledger.ObjReviewActive, recordHash, caller); err != nil {
		return err
	}
	countActive(stats, review.ReviewType, -1)
	stats.Retracted++
	if err := putReviewStats(ctx, stats); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventReviewRetracted,
		Actor:      caller,
		RecordID:   anchor.RecordID,
		RecordHash: recordHash,
		SubjectKey: caller,
		Before:     ledger.Doc(before),
		After:      ledger.Doc(review),
	})
}

// ModifyDispute amends the ratings of the caller's active dispute
func (c *Contract) ModifyDispute(ctx contractapi.TransactionContextInterface, recordHash string, severity, culpability int) error {
	if err := ledger.RequireNonEmpty("record_hash", recordHash); err != nil {
		return err
	}
	if err := validateRatings(severity, culpability); err != nil {
		return err
	}
	anchor, err := loadAnchor(ctx, recordHash)
	if err != nil {
		return err
	}
	caller, err := registry.ResolveMember(ctx)
	if err != nil {
		return err
	}
	review, err := requireActiveReview(ctx, recordHash, caller)
	if err != nil {
		return err
	}
	if review.ReviewType != types.ReviewDispute {
		return types.NewConflictError(types.ErrCodeNotDispute, "only a dispute can be modified").
			With("record_hash", recordHash).With("review_type", string(review.ReviewType))
	}

	stats, err := loadReviewStats(ctx, recordHash)
	if err != nil {
		return err
	}

	before := *review
	review.Severity = severity
	review.Culpability = culpability
	review.Amendments++
	if err := putReview(ctx, review); err != nil {
		return err
	}
	stats.Amendments++
	if err := putReviewStats(ctx, stats); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventDisputeModified,
		Actor:      caller,
		RecordID:   anchor.RecordID,
		RecordHash: recordHash,
		SubjectKey: caller,
		Before:     ledger.Doc(before),
		After:      ledger.Doc(review),
	})
}

// ReactToDispute records the caller's support for or opposition to another
// identity's active dispute
func (c *Contract) ReactToDispute(ctx contractapi.TransactionContextInterface, recordHash, disputer string, supportsDispute bool) error {
	if err := ledger.RequireNonEmpty("record_hash", recordHash, "disputer", disputer); err != nil {
		return err
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
	if caller == disputer {
		return types.NewValidationError(types.ErrCodeSelfReaction, "cannot react to your own dispute").
			With("record_hash", recordHash)
	}

	dispute, err := requireActiveReview(ctx, recordHash, disputer)
	if err != nil {
		return err
	}
	if dispute.ReviewType != types.ReviewDispute {
		return types.NewConflictError(types.ErrCodeNotDispute,
			fmt.Sprintf("the active review of %s is not a dispute", disputer)).With("record_hash", recordHash)
	}

	byKey, err := ledger.Key(ctx, ledger.ObjReactionBy, recordHash, disputer, caller)
	if err != nil {
		return err
	}
	reacted, err := ledger.Exists(ctx, byKey)
	if err != nil {
		return err
	}
	if reacted {
		return types.NewConflictError(types.ErrCodeAlreadyReacted, "caller already reacted to this dispute").
			With("record_hash", recordHash).With("disputer", disputer)
	}

	stats, err := loadReactionStats(ctx, recordHash, disputer)
	if err != nil {
		return err
	}
	now, err := ledger.Now(ctx)
	if err != nil {
		return err
	}
	reaction := &types.Reaction{
		RecordHash:      recordHash,
		Disputer:        disputer,
		Index:           stats.Supports + stats.Opposes,
		Reactor:         caller,
		SupportsDispute: supportsDispute,
		Timestamp:       now,
	}
	key, err := ledger.Key(ctx, ledger.ObjReaction, recordHash, disputer, ledger.PadIndex(reaction.Index))
	if err != nil {
		return err
	}
	if err := ledger.PutJSON(ctx, key, reaction); err != nil {
		return err
	}
	if err := ledger.PutIndex(ctx, ledger.ObjReactionBy, recordHash, disputer, caller); err != nil {
		return err
	}
	if supportsDispute {
		stats.Supports++
	} else {
		stats.Opposes++
	}
	if err := putReactionStats(ctx, stats); err != nil {
		return err
	}

	return ledger.Emit(ctx, types.LedgerEvent{
		Name:       types.EventDisputeReaction,
		Actor:      caller,
		RecordID:   anchor.RecordID,
		RecordHash: recordHash,
		SubjectKey: disputer,
		After:      ledger.Doc(reaction),
	})
}

func requireActiveReview(ctx contractapi.TransactionContextInterface, recordHash, reviewer string) (*types.Review, error) {
	idx, active, err := activeIndex(ctx, recordHash, reviewer)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, types.NewNotFoundError(types.ErrCodeReviewNotFound,
			fmt.Sprintf("%s has no active review on %s", reviewer, recordHash)).
			With("record_hash", recordHash).With("reviewer", reviewer)
	}
	return loadReview(ctx, recordHash, idx)
}

func countActive(stats *types.ReviewStats, reviewType types.ReviewType, delta int) {
	switch reviewType {
	case types.ReviewVerification:
		stats.ActiveVerifications += delta
	case types.ReviewDispute:
		stats.ActiveDisputes += delta
	}
}
