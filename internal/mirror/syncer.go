package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/hyperledger/fabric-sdk-go/pkg/common/providers/fab"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/monitoring"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/sirupsen/logrus"
)

// Event outcomes, used as metric labels
const (
	resultApplied    = "applied"
	resultReplayed   = "replayed"
	resultReconciled = "reconciled"
	resultIgnored    = "ignored"
	resultFailed     = "failed"
)

var (
	errMissingDocument = errors.New("event carries no document")
	errGap             = errors.New("sequence gap")
)

// EventSource delivers chaincode events
type EventSource interface {
	RegisterEvent(eventFilter string) (fab.Registration, <-chan *fab.CCEvent, error)
	Unregister(registration fab.Registration)
}

// Syncer applies chaincode events to the mirror in delivery order
type Syncer struct {
	source     EventSource
	store      Store
	reconciler *Reconciler
	checkpoint *Checkpoint
	logger     *logger.Logger
	metrics    *monitoring.MetricsCollector
	tracing    *monitoring.TracingManager
	filter     string
}

// NewSyncer creates a syncer subscribing to events whose name matches filter
func NewSyncer(source EventSource, store Store, reconciler *Reconciler, checkpoint *Checkpoint, filter string,
	log *logger.Logger, metrics *monitoring.MetricsCollector, tracing *monitoring.TracingManager) (*Syncer, error) {
	if _, err := regexp.Compile(filter); err != nil {
		return nil, fmt.Errorf("invalid event filter %q: %w", filter, err)
	}
	if tracing == nil {
		tracing = monitoring.NewNoopTracingManager()
	}
	return &Syncer{
		source:     source,
		store:      store,
		reconciler: reconciler,
		checkpoint: checkpoint,
		logger:     log,
		metrics:    metrics,
		tracing:    tracing,
		filter:     filter,
	}, nil
}

// Run consumes events until ctx is cancelled or the stream closes
func (s *Syncer) Run(ctx context.Context) error {
	registration, events, err := s.source.RegisterEvent(s.filter)
	if err != nil {
		return fmt.Errorf("failed to register for chaincode events: %w", err)
	}
	defer s.source.Unregister(registration)

	pos := s.checkpoint.Position()
	s.logger.WithComponent("syncer").WithFields(logrus.Fields{
		"filter":  s.filter,
		"block":   pos.Block,
		"last_tx": pos.TxID,
	}).Info("Mirror syncer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errors.New("chaincode event stream closed")
			}
			if err := s.Handle(ctx, ev); err != nil {
				s.metrics.RecordSystemError("mirror_apply", "syncer")
				s.logger.WithContext(ctx).WithError(err).WithField("transaction_id", ev.TxID).Error("Failed to apply chaincode event")
			}
		}
	}
}

// Handle applies one chaincode event and advances the checkpoint
func (s *Syncer) Handle(ctx context.Context, ev *fab.CCEvent) error {
	applied, err := s.checkpoint.Applied(ev.BlockNumber, ev.TxID)
	if err != nil {
		return err
	}
	if applied {
		s.metrics.RecordMirrorEvent(ev.EventName, resultReplayed)
		return nil
	}

	ctx, span := s.tracing.StartEventSpan(ctx, ev.EventName, ev.TxID, ev.BlockNumber)
	defer span.End()

	result, err := s.apply(ctx, ev)
	if err != nil {
		s.tracing.RecordError(span, err)
		result = resultFailed
	}

	s.metrics.RecordMirrorEvent(ev.EventName, result)
	s.logger.LedgerEvent(ctx, ev.EventName, ev.TxID, ev.BlockNumber, err == nil, map[string]interface{}{"result": result})
	if err != nil {
		return err
	}

	if err := s.checkpoint.MarkApplied(ev.BlockNumber, ev.TxID); err != nil {
		return err
	}
	s.metrics.SetMirrorBlock(ev.BlockNumber)
	return nil
}

func (s *Syncer) apply(ctx context.Context, ev *fab.CCEvent) (string, error) {
	var le types.LedgerEvent
	if err := json.Unmarshal(ev.Payload, &le); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("event", ev.EventName).Warn("Undecodable event payload, sweeping")
		if _, sweepErr := s.reconciler.Sweep(ctx); sweepErr != nil {
			return "", sweepErr
		}
		return resultReconciled, nil
	}
	if le.Name == "" {
		le.Name = types.EventName(ev.EventName)
	}

	err := s.applyDocument(ctx, &le)
	switch {
	case err == nil:
		if le.Name == types.EventAdminTransferred {
			return resultIgnored, nil
		}
		return resultApplied, nil
	case errors.Is(err, errGap):
		return resultReconciled, s.reconciler.ReconcileEvent(ctx, &le, ReasonGap)
	case errors.Is(err, errMissingDocument), isDecodeError(err):
		return resultReconciled, s.reconciler.ReconcileEvent(ctx, &le, ReasonDecode)
	}
	return "", err
}

func (s *Syncer) applyDocument(ctx context.Context, le *types.LedgerEvent) error {
	switch le.Name {
	case types.EventAdminTransferred:
		return nil

	case types.EventWalletRegistered:
		var wallet types.Wallet
		if err := decodeDocument(le.After, &wallet); err != nil {
			return err
		}
		if err := s.store.UpsertWallet(ctx, &wallet); err != nil {
			return err
		}
		// the identity may have been created in the same transaction
		return s.dependent(ctx, s.reconciler.ReconcileIdentity(ctx, wallet.IdentityID))

	case types.EventWalletDeactivated, types.EventWalletReactivated:
		var wallet types.Wallet
		if err := decodeDocument(le.After, &wallet); err != nil {
			return err
		}
		return s.store.UpsertWallet(ctx, &wallet)

	case types.EventIdentityStatusChanged:
		var identity types.Identity
		if err := decodeDocument(le.After, &identity); err != nil {
			return err
		}
		return s.store.UpsertIdentity(ctx, &identity)

	case types.EventRoleInitialized, types.EventRoleGranted, types.EventRoleChanged,
		types.EventRoleRevoked, types.EventOwnershipLeft:
		var role types.RecordRole
		if err := decodeDocument(le.After, &role); err != nil {
			return err
		}
		return s.store.UpsertRecordRole(ctx, &role)

	case types.EventAccessGranted, types.EventAccessRevoked:
		var permission types.AccessPermission
		if err := decodeDocument(le.After, &permission); err != nil {
			return err
		}
		return s.store.UpsertPermission(ctx, &permission)

	case types.EventRecordAnchored:
		var anchor types.AnchoredRecord
		if err := decodeDocument(le.After, &anchor); err != nil {
			return err
		}
		return s.store.UpsertAnchor(ctx, &anchor)

	case types.EventReviewSubmitted, types.EventReviewRetracted, types.EventDisputeModified:
		var review types.Review
		if err := decodeDocument(le.After, &review); err != nil {
			return err
		}
		mirrored, err := s.store.ReviewCount(ctx, review.RecordHash)
		if err != nil {
			return err
		}
		if review.Index > mirrored {
			return fmt.Errorf("review %d of %s after %d mirrored: %w", review.Index, review.RecordHash, mirrored, errGap)
		}
		return s.store.UpsertReview(ctx, &review)

	case types.EventDisputeReaction:
		var reaction types.Reaction
		if err := decodeDocument(le.After, &reaction); err != nil {
			return err
		}
		mirrored, err := s.store.ReactionCount(ctx, reaction.RecordHash, reaction.Disputer)
		if err != nil {
			return err
		}
		if reaction.Index > mirrored {
			return fmt.Errorf("reaction %d after %d mirrored: %w", reaction.Index, mirrored, errGap)
		}
		return s.store.UpsertReaction(ctx, &reaction)
	}

	return fmt.Errorf("unknown event %q", le.Name)
}

// dependent records a follow-up read of an object the event did not carry
func (s *Syncer) dependent(ctx context.Context, err error) error {
	s.metrics.RecordReconciliation(ReasonDependent, err == nil)
	return err
}

func decodeDocument(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errMissingDocument
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &decodeError{err: err}
	}
	return nil
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return "malformed event document: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}
