package mirror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/medrex/record-provenance/pkg/database"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/types"
)

const maxAttempts = 3

// Store is the write side of the off-ledger mirror
type Store interface {
	UpsertIdentity(ctx context.Context, identity *types.Identity) error
	UpsertWallet(ctx context.Context, wallet *types.Wallet) error
	UpsertRecordRole(ctx context.Context, role *types.RecordRole) error
	UpsertPermission(ctx context.Context, permission *types.AccessPermission) error
	UpsertAnchor(ctx context.Context, anchor *types.AnchoredRecord) error
	UpsertReview(ctx context.Context, review *types.Review) error
	UpsertReaction(ctx context.Context, reaction *types.Reaction) error
	ReplaceReviews(ctx context.Context, recordHash string, reviews []*types.Review) error
	ReplaceReactions(ctx context.Context, recordHash, disputer string, reactions []*types.Reaction) error
	ReviewCount(ctx context.Context, recordHash string) (int, error)
	ReactionCount(ctx context.Context, recordHash, disputer string) (int, error)
	ReviewStats(ctx context.Context, recordHash string) (*types.ReviewStats, error)
	Disputers(ctx context.Context, recordHash string) ([]string, error)
	AnchorHashes(ctx context.Context) ([]string, error)
	StartSyncRun(ctx context.Context, kind string) (uuid.UUID, error)
	FinishSyncRun(ctx context.Context, runID uuid.UUID, applied, failed int, runErr error) error
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Repository mirrors ledger documents into PostgreSQL. Every write is an
// upsert keyed like the ledger object, so replays are harmless.
type Repository struct {
	db     *database.DB
	logger *logger.Logger
}

// NewRepository creates a new mirror repository
func NewRepository(db *database.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, logger: log}
}

const (
	upsertIdentitySQL = `
		INSERT INTO mirror_identities (identity_id, status, created_at, updated_at, synced_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (identity_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at,
			synced_at = NOW()`

	upsertWalletSQL = `
		INSERT INTO mirror_wallets (address, identity_id, is_wallet_active, registered_at, updated_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (address) DO UPDATE SET
			is_wallet_active = EXCLUDED.is_wallet_active,
			updated_at = EXCLUDED.updated_at,
			synced_at = NOW()`

	upsertRecordRoleSQL = `
		INSERT INTO mirror_record_roles (record_id, identity_id, role, is_active, granted_at, last_modified, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (record_id, identity_id) DO UPDATE SET
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			granted_at = EXCLUDED.granted_at,
			last_modified = EXCLUDED.last_modified,
			synced_at = NOW()`

	upsertPermissionSQL = `
		INSERT INTO mirror_permissions (permission_hash, sharer, receiver, record_id, granted_at, revoked_at, is_active, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (permission_hash) DO UPDATE SET
			revoked_at = EXCLUDED.revoked_at,
			is_active = EXCLUDED.is_active,
			synced_at = NOW()`

	upsertAnchorSQL = `
		INSERT INTO mirror_anchors (record_hash, record_id, subject, created_at, created_by, synced_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (record_hash) DO NOTHING`

	upsertReviewSQL = `
		INSERT INTO mirror_reviews (record_hash, idx, reviewer, review_type, severity, culpability, reviewed_at, notes, is_active, amendments, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (record_hash, idx) DO UPDATE SET
			severity = EXCLUDED.severity,
			culpability = EXCLUDED.culpability,
			is_active = EXCLUDED.is_active,
			amendments = EXCLUDED.amendments,
			synced_at = NOW()`

	upsertReactionSQL = `
		INSERT INTO mirror_reactions (record_hash, disputer, idx, reactor, supports_dispute, reacted_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (record_hash, disputer, idx) DO NOTHING`

	reviewStatsSQL = `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_active AND review_type = $2),
			COUNT(*) FILTER (WHERE is_active AND review_type = $3),
			COUNT(*) FILTER (WHERE NOT is_active),
			COALESCE(SUM(amendments), 0)
		FROM mirror_reviews WHERE record_hash = $1`

	disputersSQL = `
		SELECT reviewer FROM mirror_reviews WHERE record_hash = $1 AND review_type = $2
		UNION
		SELECT disputer FROM mirror_reactions WHERE record_hash = $1
		ORDER BY 1`
)

func (r *Repository) UpsertIdentity(ctx context.Context, identity *types.Identity) error {
	return r.write(ctx, "upsert", "mirror_identities", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, upsertIdentitySQL,
			identity.IdentityID, string(identity.Status), identity.CreatedAt, identity.UpdatedAt)
		return err
	})
}

func (r *Repository) UpsertWallet(ctx context.Context, wallet *types.Wallet) error {
	return r.write(ctx, "upsert", "mirror_wallets", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, upsertWalletSQL,
			wallet.Address, wallet.IdentityID, wallet.IsWalletActive, wallet.RegisteredAt, wallet.UpdatedAt)
		return err
	})
}

func (r *Repository) UpsertRecordRole(ctx context.Context, role *types.RecordRole) error {
	return r.write(ctx, "upsert", "mirror_record_roles", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, upsertRecordRoleSQL,
			role.RecordID, role.IdentityID, string(role.Role), role.IsActive, role.GrantedAt, role.LastModified)
		return err
	})
}

func (r *Repository) UpsertPermission(ctx context.Context, permission *types.AccessPermission) error {
	return r.write(ctx, "upsert", "mirror_permissions", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, upsertPermissionSQL,
			permission.PermissionHash, permission.Sharer, permission.Receiver, permission.RecordID,
			permission.GrantedAt, permission.RevokedAt, permission.IsActive)
		return err
	})
}

// UpsertAnchor inserts an anchor. Anchors never change once written.
func (r *Repository) UpsertAnchor(ctx context.Context, anchor *types.AnchoredRecord) error {
	return r.write(ctx, "insert", "mirror_anchors", func(ctx context.Context) error {
		_, err := r.db.ExecContext(ctx, upsertAnchorSQL,
			anchor.RecordHash, anchor.RecordID, anchor.Subject, anchor.CreatedAt, anchor.CreatedBy)
		return err
	})
}

func (r *Repository) UpsertReview(ctx context.Context, review *types.Review) error {
	return r.write(ctx, "upsert", "mirror_reviews", func(ctx context.Context) error {
		return execReview(ctx, r.db, review)
	})
}

func (r *Repository) UpsertReaction(ctx context.Context, reaction *types.Reaction) error {
	return r.write(ctx, "insert", "mirror_reactions", func(ctx context.Context) error {
		return execReaction(ctx, r.db, reaction)
	})
}

// ReplaceReviews writes the authoritative review sequence of a hash in one
// transaction
func (r *Repository) ReplaceReviews(ctx context.Context, recordHash string, reviews []*types.Review) error {
	return r.write(ctx, "replace", "mirror_reviews", func(ctx context.Context) error {
		return r.db.WithTx(ctx, func(tx *sql.Tx) error {
			for _, review := range reviews {
				if review.RecordHash != recordHash {
					return fmt.Errorf("review %d belongs to %s, not %s", review.Index, review.RecordHash, recordHash)
				}
				if err := execReview(ctx, tx, review); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// ReplaceReactions writes the authoritative reactions to one dispute in one
// transaction
func (r *Repository) ReplaceReactions(ctx context.Context, recordHash, disputer string, reactions []*types.Reaction) error {
	return r.write(ctx, "replace", "mirror_reactions", func(ctx context.Context) error {
		return r.db.WithTx(ctx, func(tx *sql.Tx) error {
			for _, reaction := range reactions {
				if reaction.RecordHash != recordHash || reaction.Disputer != disputer {
					return fmt.Errorf("reaction %d does not belong to %s/%s", reaction.Index, recordHash, disputer)
				}
				if err := execReaction(ctx, tx, reaction); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func execReview(ctx context.Context, db execer, review *types.Review) error {
	_, err := db.ExecContext(ctx, upsertReviewSQL,
		review.RecordHash, review.Index, review.Reviewer, string(review.ReviewType),
		review.Severity, review.Culpability, review.Timestamp, review.Notes, review.IsActive, review.Amendments)
	return err
}

func execReaction(ctx context.Context, db execer, reaction *types.Reaction) error {
	_, err := db.ExecContext(ctx, upsertReactionSQL,
		reaction.RecordHash, reaction.Disputer, reaction.Index, reaction.Reactor,
		reaction.SupportsDispute, reaction.Timestamp)
	return err
}

// ReviewCount returns the number of mirrored reviews of a hash
func (r *Repository) ReviewCount(ctx context.Context, recordHash string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mirror_reviews WHERE record_hash = $1`, recordHash).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}
	return count, nil
}

// ReactionCount returns the number of mirrored reactions to one dispute
func (r *Repository) ReactionCount(ctx context.Context, recordHash, disputer string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mirror_reactions WHERE record_hash = $1 AND disputer = $2`, recordHash, disputer).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count reactions: %w", err)
	}
	return count, nil
}

// ReviewStats aggregates the mirrored reviews of a hash the way the ledger
// counts them
func (r *Repository) ReviewStats(ctx context.Context, recordHash string) (*types.ReviewStats, error) {
	stats := &types.ReviewStats{RecordHash: recordHash}
	err := r.db.QueryRowContext(ctx, reviewStatsSQL, recordHash,
		string(types.ReviewVerification), string(types.ReviewDispute)).Scan(
		&stats.Total, &stats.ActiveVerifications, &stats.ActiveDisputes, &stats.Retracted, &stats.Amendments)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate reviews: %w", err)
	}
	return stats, nil
}

// Disputers lists every identity that has filed a dispute on a hash or has
// mirrored reactions against it
func (r *Repository) Disputers(ctx context.Context, recordHash string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, disputersSQL, recordHash, string(types.ReviewDispute))
	if err != nil {
		return nil, fmt.Errorf("failed to list disputers: %w", err)
	}
	defer rows.Close()

	var disputers []string
	for rows.Next() {
		var disputer string
		if err := rows.Scan(&disputer); err != nil {
			return nil, fmt.Errorf("failed to scan disputer: %w", err)
		}
		disputers = append(disputers, disputer)
	}
	return disputers, rows.Err()
}

// AnchorHashes lists every mirrored record hash
func (r *Repository) AnchorHashes(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT record_hash FROM mirror_anchors ORDER BY record_hash`)
	if err != nil {
		return nil, fmt.Errorf("failed to list anchors: %w", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("failed to scan anchor: %w", err)
		}
		hashes = append(hashes, hash)
	}
	return hashes, rows.Err()
}

// StartSyncRun records the beginning of a sync or reconcile pass
func (r *Repository) StartSyncRun(ctx context.Context, kind string) (uuid.UUID, error) {
	runID := uuid.New()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mirror_sync_runs (run_id, kind, started_at) VALUES ($1, $2, $3)`,
		runID, kind, time.Now().UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to start sync run: %w", err)
	}
	return runID, nil
}

// FinishSyncRun closes a sync run with its counters
func (r *Repository) FinishSyncRun(ctx context.Context, runID uuid.UUID, applied, failed int, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE mirror_sync_runs SET finished_at = $2, applied = $3, failed = $4, error = $5 WHERE run_id = $1`,
		runID, time.Now().UTC(), applied, failed, errText)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

// write runs fn, retrying serialization failures and deadlocks
func (r *Repository) write(ctx context.Context, operation, table string, fn func(context.Context) error) error {
	start := time.Now()
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx); err == nil || !retryable(err) {
			break
		}
		r.logger.WithContext(ctx).WithField("attempt", attempt).WithError(err).Warn("Retrying mirror write")
	}

	r.logger.DatabaseOperation(ctx, operation, table, time.Since(start).Milliseconds(), 0, err == nil, nil)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", operation, table, err)
	}
	return nil
}

// retryable reports whether err is a PostgreSQL transaction rollback
// (class 40: serialization failure, deadlock)
func retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "40"
	}
	return false
}
