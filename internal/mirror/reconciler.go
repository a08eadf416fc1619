package mirror

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/monitoring"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/sirupsen/logrus"
)

// Reconcile reasons
const (
	ReasonDecode    = "decode"
	ReasonGap       = "gap"
	ReasonDependent = "dependent"
	ReasonSweep     = "sweep"
)

// LedgerReader is the read side of the ledger client the reconciler needs
type LedgerReader interface {
	GetIdentity(ctx context.Context, identityID string) (*types.Identity, error)
	GetWallet(ctx context.Context, wallet string) (*types.Wallet, error)
	GetRecordRole(ctx context.Context, recordID, identityID string) (*types.RecordRole, error)
	GetPermission(ctx context.Context, permissionHash string) (*types.AccessPermission, error)
	GetAnchor(ctx context.Context, recordHash string) (*types.AnchoredRecord, error)
	GetReviews(ctx context.Context, recordHash string) ([]*types.Review, error)
	GetReviewStats(ctx context.Context, recordHash string) (*types.ReviewStats, error)
	GetReactions(ctx context.Context, recordHash, disputer string) ([]*types.Reaction, error)
	GetReactionStats(ctx context.Context, recordHash, disputer string) (*types.ReactionStats, error)
}

// Reconciler overwrites mirror rows with authoritative ledger state
type Reconciler struct {
	ledger  LedgerReader
	store   Store
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewReconciler creates a new reconciler
func NewReconciler(ledger LedgerReader, store Store, log *logger.Logger, metrics *monitoring.MetricsCollector) *Reconciler {
	return &Reconciler{ledger: ledger, store: store, logger: log, metrics: metrics}
}

// ReconcileEvent re-reads the object an event refers to. Only the keys of the
// event are trusted, so it also serves events whose documents failed to decode.
func (r *Reconciler) ReconcileEvent(ctx context.Context, ev *types.LedgerEvent, reason string) error {
	err := r.reconcileEvent(ctx, ev)
	r.record(ctx, reason, string(ev.Name), err)
	return err
}

func (r *Reconciler) reconcileEvent(ctx context.Context, ev *types.LedgerEvent) error {
	switch ev.Name {
	case types.EventAdminTransferred:
		return nil

	case types.EventWalletRegistered, types.EventWalletDeactivated, types.EventWalletReactivated:
		wallet, err := r.ledger.GetWallet(ctx, ev.SubjectKey)
		if err != nil {
			return err
		}
		if err := r.store.UpsertWallet(ctx, wallet); err != nil {
			return err
		}
		return r.ReconcileIdentity(ctx, wallet.IdentityID)

	case types.EventIdentityStatusChanged:
		return r.ReconcileIdentity(ctx, ev.SubjectKey)

	case types.EventRoleInitialized, types.EventRoleGranted, types.EventRoleChanged,
		types.EventRoleRevoked, types.EventOwnershipLeft:
		role, err := r.ledger.GetRecordRole(ctx, ev.RecordID, ev.SubjectKey)
		if err != nil {
			return err
		}
		return r.store.UpsertRecordRole(ctx, role)

	case types.EventAccessGranted, types.EventAccessRevoked:
		permission, err := r.ledger.GetPermission(ctx, ev.SubjectKey)
		if err != nil {
			return err
		}
		return r.store.UpsertPermission(ctx, permission)

	case types.EventRecordAnchored:
		anchor, err := r.ledger.GetAnchor(ctx, ev.RecordHash)
		if err != nil {
			return err
		}
		return r.store.UpsertAnchor(ctx, anchor)

	case types.EventReviewSubmitted, types.EventReviewRetracted, types.EventDisputeModified:
		return r.ReconcileReviews(ctx, ev.RecordHash)

	case types.EventDisputeReaction:
		return r.ReconcileReactions(ctx, ev.RecordHash, ev.SubjectKey)
	}

	return fmt.Errorf("unknown event %q", ev.Name)
}

// ReconcileIdentity refreshes one identity row
func (r *Reconciler) ReconcileIdentity(ctx context.Context, identityID string) error {
	identity, err := r.ledger.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	return r.store.UpsertIdentity(ctx, identity)
}

// ReconcileReviews rewrites the full review sequence of a hash, together with
// its anchor
func (r *Reconciler) ReconcileReviews(ctx context.Context, recordHash string) error {
	anchor, err := r.ledger.GetAnchor(ctx, recordHash)
	if err != nil {
		return err
	}
	if err := r.store.UpsertAnchor(ctx, anchor); err != nil {
		return err
	}

	reviews, err := r.ledger.GetReviews(ctx, recordHash)
	if err != nil {
		return err
	}
	return r.store.ReplaceReviews(ctx, recordHash, reviews)
}

// ReconcileReactions rewrites the reactions to one dispute
func (r *Reconciler) ReconcileReactions(ctx context.Context, recordHash, disputer string) error {
	reactions, err := r.ledger.GetReactions(ctx, recordHash, disputer)
	if err != nil {
		return err
	}
	return r.store.ReplaceReactions(ctx, recordHash, disputer, reactions)
}

// Sweep compares the review and reaction aggregates of every mirrored anchor
// against the ledger and rewrites the ones that drifted. It returns the number
// of hashes fixed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	runID, err := r.store.StartSyncRun(ctx, ReasonSweep)
	if err != nil {
		return 0, err
	}

	hashes, err := r.store.AnchorHashes(ctx)
	if err != nil {
		r.finish(ctx, runID, 0, 0, err)
		return 0, err
	}

	fixed, failed := 0, 0
	var lastErr error
	for _, hash := range hashes {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		repaired, err := r.sweepAnchor(ctx, hash)
		if repaired {
			fixed++
		}
		if err != nil {
			failed++
			lastErr = err
			r.logger.WithContext(ctx).WithError(err).WithField("record_hash", hash).Warn("Sweep failed for anchor")
		}
	}

	r.finish(ctx, runID, fixed, failed, lastErr)
	r.logger.WithComponent("reconciler").WithFields(logrus.Fields{
		"run_id":  runID.String(),
		"anchors": len(hashes),
		"fixed":   fixed,
		"failed":  failed,
	}).Info("Reconcile sweep finished")

	return fixed, lastErr
}

// sweepAnchor repairs the reviews of a hash and then the reactions to each of
// its disputes, reporting whether anything was rewritten
func (r *Reconciler) sweepAnchor(ctx context.Context, recordHash string) (bool, error) {
	repaired := false

	drifted, err := r.reviewsDrifted(ctx, recordHash)
	if err != nil {
		return false, err
	}
	if drifted {
		err := r.ReconcileReviews(ctx, recordHash)
		r.record(ctx, ReasonSweep, recordHash, err)
		if err != nil {
			return false, err
		}
		repaired = true
	}

	disputers, err := r.store.Disputers(ctx, recordHash)
	if err != nil {
		return repaired, err
	}
	for _, disputer := range disputers {
		drifted, err := r.reactionsDrifted(ctx, recordHash, disputer)
		if err != nil {
			return repaired, err
		}
		if !drifted {
			continue
		}
		err = r.ReconcileReactions(ctx, recordHash, disputer)
		r.record(ctx, ReasonSweep, recordHash+"/"+disputer, err)
		if err != nil {
			return repaired, err
		}
		repaired = true
	}
	return repaired, nil
}

// reviewsDrifted compares every ledger counter, so retractions and dispute
// amendments register even when the sequence length is unchanged
func (r *Reconciler) reviewsDrifted(ctx context.Context, recordHash string) (bool, error) {
	onLedger, err := r.ledger.GetReviewStats(ctx, recordHash)
	if err != nil {
		return false, err
	}
	mirrored, err := r.store.ReviewStats(ctx, recordHash)
	if err != nil {
		return false, err
	}
	return onLedger.Total != mirrored.Total ||
		onLedger.ActiveVerifications != mirrored.ActiveVerifications ||
		onLedger.ActiveDisputes != mirrored.ActiveDisputes ||
		onLedger.Retracted != mirrored.Retracted ||
		onLedger.Amendments != mirrored.Amendments, nil
}

func (r *Reconciler) reactionsDrifted(ctx context.Context, recordHash, disputer string) (bool, error) {
	onLedger, err := r.ledger.GetReactionStats(ctx, recordHash, disputer)
	if err != nil {
		return false, err
	}
	mirrored, err := r.store.ReactionCount(ctx, recordHash, disputer)
	if err != nil {
		return false, err
	}
	return mirrored != onLedger.Supports+onLedger.Opposes, nil
}

func (r *Reconciler) finish(ctx context.Context, runID uuid.UUID, applied, failed int, runErr error) {
	if err := r.store.FinishSyncRun(ctx, runID, applied, failed, runErr); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to close sync run")
	}
}

func (r *Reconciler) record(ctx context.Context, reason, subject string, err error) {
	r.metrics.RecordReconciliation(reason, err == nil)
	entry := r.logger.WithContext(ctx).WithFields(logrus.Fields{"reason": reason, "subject": subject})
	if err != nil {
		entry.WithError(err).Error("Reconcile failed")
		return
	}
	entry.Debug("Reconciled from ledger")
}
