package ledgerclient

import (
	"context"
	"strconv"

	"github.com/medrex/record-provenance/pkg/types"
)

// AnchorRecord binds a content hash to a record and its subject
func (c *Client) AnchorRecord(ctx context.Context, recordHash, recordID, subject string) error {
	_, err := c.submit(ctx, AnchoringContract, "AnchorRecord", recordHash, recordID, subject)
	return err
}

func (c *Client) VerifyRecord(ctx context.Context, recordHash, notes string) error {
	_, err := c.submit(ctx, AnchoringContract, "VerifyRecord", recordHash, notes)
	return err
}

func (c *Client) DisputeRecord(ctx context.Context, recordHash string, severity, culpability int, notes string) error {
	_, err := c.submit(ctx, AnchoringContract, "DisputeRecord", recordHash, strconv.Itoa(severity), strconv.Itoa(culpability), notes)
	return err
}

// RetractReview withdraws the caller's active review on a record hash
func (c *Client) RetractReview(ctx context.Context, recordHash string) error {
	_, err := c.submit(ctx, AnchoringContract, "RetractReview", recordHash)
	return err
}

// ModifyDispute rewrites the ratings of the caller's active dispute
func (c *Client) ModifyDispute(ctx context.Context, recordHash string, severity, culpability int) error {
	_, err := c.submit(ctx, AnchoringContract, "ModifyDispute", recordHash, strconv.Itoa(severity), strconv.Itoa(culpability))
	return err
}

func (c *Client) ReactToDispute(ctx context.Context, recordHash, disputer string, supportsDispute bool) error {
	_, err := c.submit(ctx, AnchoringContract, "ReactToDispute", recordHash, disputer, strconv.FormatBool(supportsDispute))
	return err
}

func (c *Client) GetAnchor(ctx context.Context, recordHash string) (*types.AnchoredRecord, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetAnchor", recordHash)
	if err != nil {
		return nil, err
	}
	var anchor types.AnchoredRecord
	if err := decode(payload, &anchor); err != nil {
		return nil, err
	}
	return &anchor, nil
}

func (c *Client) GetAnchorsByRecord(ctx context.Context, recordID string) ([]*types.AnchoredRecord, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetAnchorsByRecord", recordID)
	if err != nil {
		return nil, err
	}
	return decodeList[*types.AnchoredRecord](payload)
}

func (c *Client) GetAnchorsBySubject(ctx context.Context, subject string) ([]*types.AnchoredRecord, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetAnchorsBySubject", subject)
	if err != nil {
		return nil, err
	}
	return decodeList[*types.AnchoredRecord](payload)
}

// GetReviews returns the full review sequence of a record hash in index order
func (c *Client) GetReviews(ctx context.Context, recordHash string) ([]*types.Review, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetReviews", recordHash)
	if err != nil {
		return nil, err
	}
	return decodeList[*types.Review](payload)
}

func (c *Client) GetActiveReview(ctx context.Context, recordHash, reviewer string) (*types.Review, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetActiveReview", recordHash, reviewer)
	if err != nil {
		return nil, err
	}
	var review types.Review
	if err := decode(payload, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

func (c *Client) GetReviewStats(ctx context.Context, recordHash string) (*types.ReviewStats, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetReviewStats", recordHash)
	if err != nil {
		return nil, err
	}
	var stats types.ReviewStats
	if err := decode(payload, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) GetReactions(ctx context.Context, recordHash, disputer string) ([]*types.Reaction, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetReactions", recordHash, disputer)
	if err != nil {
		return nil, err
	}
	return decodeList[*types.Reaction](payload)
}

func (c *Client) GetReactionStats(ctx context.Context, recordHash, disputer string) (*types.ReactionStats, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetReactionStats", recordHash, disputer)
	if err != nil {
		return nil, err
	}
	var stats types.ReactionStats
	if err := decode(payload, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetAttestationHistory lists every review an identity has authored
func (c *Client) GetAttestationHistory(ctx context.Context, identityID string) ([]*types.AttestationEntry, error) {
	payload, err := c.evaluate(ctx, AnchoringContract, "GetAttestationHistory", identityID)
	if err != nil {
		return nil, err
	}
	return decodeList[*types.AttestationEntry](payload)
}
