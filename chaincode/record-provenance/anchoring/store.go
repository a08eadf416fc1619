package anchoring

import (
	"fmt"
	"strconv"

	"github.com/hyperledger/fabric-contract-api-go/contractapi"
	"github.com/medrex/record-provenance/chaincode/record-provenance/ledger"
	"github.com/medrex/record-provenance/pkg/types"
)

func loadAnchor(ctx contractapi.TransactionContextInterface, recordHash string) (*types.AnchoredRecord, error) {
	key, err := ledger.Key(ctx, ledger.ObjAnchor, recordHash)
	if err != nil {
		return nil, err
	}
	var anchor types.AnchoredRecord
	found, err := ledger.GetJSON(ctx, key, &anchor)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewNotFoundError(types.ErrCodeAnchorNotFound,
			fmt.Sprintf("record hash %s is not anchored", recordHash)).With("record_hash", recordHash)
	}
	return &anchor, nil
}

func loadReview(ctx contractapi.TransactionContextInterface, recordHash string, index int) (*types.Review, error) {
	key, err := ledger.Key(ctx, ledger.ObjReview, recordHash, ledger.PadIndex(index))
	if err != nil {
		return nil, err
	}
	var review types.Review
	found, err := ledger.GetJSON(ctx, key, &review)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewInternalError(types.ErrCodeInternalError,
			fmt.Sprintf("review %d of %s is missing", index, recordHash), nil)
	}
	return &review, nil
}

func putReview(ctx contractapi.TransactionContextInterface, review *types.Review) error {
	key, err := ledger.Key(ctx, ledger.ObjReview, review.RecordHash, ledger.PadIndex(review.Index))
	if err != nil {
		return err
	}
	return ledger.PutJSON(ctx, key, review)
}

// activeIndex returns the position of the reviewer's active review, if any
func activeIndex(ctx contractapi.TransactionContextInterface, recordHash, reviewer string) (int, bool, error) {
	key, err := ledger.Key(ctx, ledger.ObjReviewActive, recordHash, reviewer)
	if err != nil {
		return 0, false, err
	}
	var idx int
	found, err := ledger.GetJSON(ctx, key, &idx)
	if err != nil || !found {
		return 0, false, err
	}
	return idx, true, nil
}

func setActiveIndex(ctx contractapi.TransactionContextInterface, recordHash, reviewer string, index int) error {
	key, err := ledger.Key(ctx, ledger.ObjReviewActive, recordHash, reviewer)
	if err != nil {
		return err
	}
	return ledger.PutJSON(ctx, key, index)
}

func loadReviewStats(ctx contractapi.TransactionContextInterface, recordHash string) (*types.ReviewStats, error) {
	key, err := ledger.Key(ctx, ledger.ObjReviewStats, recordHash)
	if err != nil {
		return nil, err
	}
	stats := &types.ReviewStats{RecordHash: recordHash}
	if _, err := ledger.GetJSON(ctx, key, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func putReviewStats(ctx contractapi.TransactionContextInterface, stats *types.ReviewStats) error {
	key, err := ledger.Key(ctx, ledger.ObjReviewStats, stats.RecordHash)
	if err != nil {
		return err
	}
	return ledger.PutJSON(ctx, key, stats)
}

func loadReactionStats(ctx contractapi.TransactionContextInterface, recordHash, disputer string) (*types.ReactionStats, error) {
	key, err := ledger.Key(ctx, ledger.ObjReactionStats, recordHash, disputer)
	if err != nil {
		return nil, err
	}
	stats := &types.ReactionStats{RecordHash: recordHash, Disputer: disputer}
	if _, err := ledger.GetJSON(ctx, key, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func putReactionStats(ctx contractapi.TransactionContextInterface, stats *types.ReactionStats) error {
	key, err := ledger.Key(ctx, ledger.ObjReactionStats, stats.RecordHash, stats.Disputer)
	if err != nil {
		return err
	}
	return ledger.PutJSON(ctx, key, stats)
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, types.NewInternalError(types.ErrCodeInternalError, "malformed review index "+s, err)
	}
	return i, nil
}
