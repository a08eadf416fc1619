package anchoring

import (
	"encoding/json"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/pkg/types"
)

// GetAnchor returns the anchor of a content hash
func (c *Contract) GetAnchor(ctx contractapi.TransactionContextInterface, recordHash string) (*types.AnchoredRecord, error) {
	return loadAnchor(ctx, recordHash)
}

// GetAnchorsByRecord lists the anchors of a record
func (c *Contract) GetAnchorsByRecord(ctx contractapi.TransactionContextInterface, recordID string) ([]*types.AnchoredRecord, error) {
	return anchorsBy(ctx, ledger.ObjRecordAnchor, recordID)
}

// GetAnchorsBySubject lists the anchors about a subject
func (c *Contract) GetAnchorsBySubject(ctx contractapi.TransactionContextInterface, subject string) ([]*types.AnchoredRecord, error) {
	return anchorsBy(ctx, ledger.ObjSubjectAnchor, subject)
}

// GetReviews returns the full review sequence of a hash in submission order,
// retracted entries included
func (c *Contract) GetReviews(ctx contractapi.TransactionContextInterface, recordHash string) ([]*types.Review, error) {
	values, err := ledger.IndexValues(ctx, ledger.ObjReview, recordHash)
	if err != nil {
		return nil, err
	}
	reviews := make([]*types.Review, 0, len(values))
	for _, v := range values {
		var r types.Review
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode review", err)
		}
		reviews = append(reviews, &r)
	}
	return reviews, nil
}

// GetActiveReview returns the reviewer's active review on a hash
func (c *Contract) GetActiveReview(ctx contractapi.TransactionContextInterface, recordHash, reviewer string) (*types.Review, error) {
	return requireActiveReview(ctx, recordHash, reviewer)
}

// GetReviewStats returns the review counters of a hash
func (c *Contract) GetReviewStats(ctx contractapi.TransactionContextInterface, recordHash string) (*types.ReviewStats, error) {
	return loadReviewStats(ctx, recordHash)
}

// GetReactions returns the reactions to one dispute in submission order
func (c *Contract) GetReactions(ctx contractapi.TransactionContextInterface, recordHash, disputer string) ([]*types.Reaction, error) {
	values, err := ledger.IndexValues(ctx, ledger.ObjReaction, recordHash, disputer)
	if err != nil {
		return nil, err
	}
	reactions := make([]*types.Reaction, 0, len(values))
	for _, v := range values {
		var r types.Reaction
		if err := json.Unmarshal(v, &r); err != nil {
			return nil, types.NewInternalError(types.ErrCodeInternalError, "failed to decode reaction", err)
		}
		reactions = append(reactions, &r)
	}
	return reactions, nil
}

// GetReactionStats returns the support and opposition counts of a dispute
func (c *Contract) GetReactionStats(ctx contractapi.TransactionContextInterface, recordHash, disputer string) (*types.ReactionStats, error) {
	return loadReactionStats(ctx, recordHash, disputer)
}

// GetAttestationHistory lists every review an identity has submitted
func (c *Contract) GetAttestationHistory(ctx contractapi.TransactionContextInterface, identityID string) ([]*types.AttestationEntry, error) {
	keys, err := ledger.IndexKeys(ctx, ledger.ObjReviewerReview, identityID)
	if err != nil {
		return nil, err
	}
	history := make([]*types.AttestationEntry, 0, len(keys))
	for _, parts := range keys {
		idx, err := parseIndex(parts[2])
		if err != nil {
			return nil, err
		}
		history = append(history, &types.AttestationEntry{RecordHash: parts[1], Index: idx})
	}
	return history, nil
}

func anchorsBy(ctx contractapi.TransactionContextInterface, objectType, attr string) ([]*types.AnchoredRecord, error) {
	keys, err := ledger.IndexKeys(ctx, objectType, attr)
	if err != nil {
		return nil, err
	}
	anchors := make([]*types.AnchoredRecord, 0, len(keys))
	for _, parts := range keys {
		anchor, err := loadAnchor(ctx, parts[1])
		if err != nil {
			return nil, err
		}
		anchors = append(anchors, anchor)
	}
	return anchors, nil
}
