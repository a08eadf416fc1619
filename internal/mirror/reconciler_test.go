package mirror

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/monitoring"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupTestReconciler() (*Reconciler, *MockStore, *MockLedger) {
	store := &MockStore{}
	ledger := &MockLedger{}
	r := NewReconciler(ledger, store, logger.NewWithOutput("error", io.Discard), monitoring.NewMetricsCollector("reconciler-test"))
	return r, store, ledger
}

func TestReconciler_SweepRewritesDriftedAnchors(t *testing.T) {
	r, store, ledger := setupTestReconciler()
	runID := uuid.New()

	store.On("StartSyncRun", mock.Anything, ReasonSweep).Return(runID, nil).Once()
	store.On("AnchorHashes", mock.Anything).Return([]string{"H1", "H2"}, nil).Once()

	settled := &types.ReviewStats{RecordHash: "H1", Total: 2, ActiveVerifications: 2}
	ledger.On("GetReviewStats", mock.Anything, "H1").Return(settled, nil).Once()
	store.On("ReviewStats", mock.Anything, "H1").Return(settled, nil).Once()
	store.On("Disputers", mock.Anything, "H1").Return([]string{}, nil).Once()

	anchor := &types.AnchoredRecord{RecordHash: "H2", RecordID: "rec-2"}
	reviews := []*types.Review{{RecordHash: "H2", Index: 0}, {RecordHash: "H2", Index: 1}, {RecordHash: "H2", Index: 2}}
	ledger.On("GetReviewStats", mock.Anything, "H2").Return(&types.ReviewStats{RecordHash: "H2", Total: 3, ActiveVerifications: 3}, nil).Once()
	store.On("ReviewStats", mock.Anything, "H2").Return(&types.ReviewStats{RecordHash: "H2", Total: 1, ActiveVerifications: 1}, nil).Once()
	ledger.On("GetAnchor", mock.Anything, "H2").Return(anchor, nil).Once()
	store.On("UpsertAnchor", mock.Anything, anchor).Return(nil).Once()
	ledger.On("GetReviews", mock.Anything, "H2").Return(reviews, nil).Once()
	store.On("ReplaceReviews", mock.Anything, "H2", reviews).Return(nil).Once()
	store.On("Disputers", mock.Anything, "H2").Return([]string{}, nil).Once()

	store.On("FinishSyncRun", mock.Anything, runID, 1, 0, nil).Return(nil).Once()

	fixed, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	store.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestReconciler_SweepContinuesPastFailures(t *testing.T) {
	r, store, ledger := setupTestReconciler()
	runID := uuid.New()
	ledgerDown := errors.New("ledger unavailable")

	store.On("StartSyncRun", mock.Anything, ReasonSweep).Return(runID, nil).Once()
	store.On("AnchorHashes", mock.Anything).Return([]string{"H1", "H2"}, nil).Once()
	ledger.On("GetReviewStats", mock.Anything, "H1").Return(nil, ledgerDown).Once()
	ledger.On("GetReviewStats", mock.Anything, "H2").Return(&types.ReviewStats{RecordHash: "H2"}, nil).Once()
	store.On("ReviewStats", mock.Anything, "H2").Return(&types.ReviewStats{RecordHash: "H2"}, nil).Once()
	store.On("Disputers", mock.Anything, "H2").Return([]string{}, nil).Once()
	store.On("FinishSyncRun", mock.Anything, runID, 0, 1, ledgerDown).Return(nil).Once()

	fixed, err := r.Sweep(context.Background())
	assert.ErrorIs(t, err, ledgerDown)
	assert.Zero(t, fixed)
	store.AssertExpectations(t)
}

func TestReconciler_SweepRepairsInPlaceReviewChanges(t *testing.T) {
	tests := []struct {
		name     string
		onLedger *types.ReviewStats
		mirrored *types.ReviewStats
	}{
		{
			name:     "retraction",
			onLedger: &types.ReviewStats{RecordHash: "H1", Total: 1, Retracted: 1},
			mirrored: &types.ReviewStats{RecordHash: "H1", Total: 1, ActiveVerifications: 1},
		},
		{
			name:     "dispute amendment",
			onLedger: &types.ReviewStats{RecordHash: "H1", Total: 1, ActiveDisputes: 1, Amendments: 1},
			mirrored: &types.ReviewStats{RecordHash: "H1", Total: 1, ActiveDisputes: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, ledger := setupTestReconciler()
			runID := uuid.New()
			anchor := &types.AnchoredRecord{RecordHash: "H1", RecordID: "rec-1"}
			reviews := []*types.Review{{RecordHash: "H1", Index: 0, Reviewer: "bob"}}

			store.On("StartSyncRun", mock.Anything, ReasonSweep).Return(runID, nil).Once()
			store.On("AnchorHashes", mock.Anything).Return([]string{"H1"}, nil).Once()
			ledger.On("GetReviewStats", mock.Anything, "H1").Return(tt.onLedger, nil).Once()
			store.On("ReviewStats", mock.Anything, "H1").Return(tt.mirrored, nil).Once()
			ledger.On("GetAnchor", mock.Anything, "H1").Return(anchor, nil).Once()
			store.On("UpsertAnchor", mock.Anything, anchor).Return(nil).Once()
			ledger.On("GetReviews", mock.Anything, "H1").Return(reviews, nil).Once()
			store.On("ReplaceReviews", mock.Anything, "H1", reviews).Return(nil).Once()
			store.On("Disputers", mock.Anything, "H1").Return([]string{}, nil).Once()
			store.On("FinishSyncRun", mock.Anything, runID, 1, 0, nil).Return(nil).Once()

			fixed, err := r.Sweep(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, fixed)
			store.AssertExpectations(t)
			ledger.AssertExpectations(t)
		})
	}
}

func TestReconciler_SweepRepairsReactions(t *testing.T) {
	r, store, ledger := setupTestReconciler()
	runID := uuid.New()
	settled := &types.ReviewStats{RecordHash: "H1", Total: 2, ActiveDisputes: 2}
	reactions := []*types.Reaction{
		{RecordHash: "H1", Disputer: "carol", Index: 0, Reactor: "bob", SupportsDispute: true},
		{RecordHash: "H1", Disputer: "carol", Index: 1, Reactor: "erin"},
	}

	store.On("StartSyncRun", mock.Anything, ReasonSweep).Return(runID, nil).Once()
	store.On("AnchorHashes", mock.Anything).Return([]string{"H1"}, nil).Once()
	ledger.On("GetReviewStats", mock.Anything, "H1").Return(settled, nil).Once()
	store.On("ReviewStats", mock.Anything, "H1").Return(settled, nil).Once()
	store.On("Disputers", mock.Anything, "H1").Return([]string{"bob", "carol"}, nil).Once()

	ledger.On("GetReactionStats", mock.Anything, "H1", "bob").
		Return(&types.ReactionStats{RecordHash: "H1", Disputer: "bob"}, nil).Once()
	store.On("ReactionCount", mock.Anything, "H1", "bob").Return(0, nil).Once()

	ledger.On("GetReactionStats", mock.Anything, "H1", "carol").
		Return(&types.ReactionStats{RecordHash: "H1", Disputer: "carol", Supports: 1, Opposes: 1}, nil).Once()
	store.On("ReactionCount", mock.Anything, "H1", "carol").Return(1, nil).Once()
	ledger.On("GetReactions", mock.Anything, "H1", "carol").Return(reactions, nil).Once()
	store.On("ReplaceReactions", mock.Anything, "H1", "carol", reactions).Return(nil).Once()

	store.On("FinishSyncRun", mock.Anything, runID, 1, 0, nil).Return(nil).Once()

	fixed, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)
	store.AssertExpectations(t)
	ledger.AssertExpectations(t)
	ledger.AssertNotCalled(t, "GetReviews", mock.Anything, mock.Anything)
}

func TestReconciler_ReconcileEventByKeys(t *testing.T) {
	r, store, ledger := setupTestReconciler()
	ctx := context.Background()

	role := &types.RecordRole{RecordID: "rec-1", IdentityID: "carol", Role: types.RoleAdministrator}
	ledger.On("GetRecordRole", mock.Anything, "rec-1", "carol").Return(role, nil).Once()
	store.On("UpsertRecordRole", mock.Anything, role).Return(nil).Once()

	identity := &types.Identity{IdentityID: "carol", Status: types.StatusVerified}
	ledger.On("GetIdentity", mock.Anything, "carol").Return(identity, nil).Once()
	store.On("UpsertIdentity", mock.Anything, identity).Return(nil).Once()

	require.NoError(t, r.ReconcileEvent(ctx, &types.LedgerEvent{Name: types.EventRoleChanged, RecordID: "rec-1", SubjectKey: "carol"}, ReasonDecode))
	require.NoError(t, r.ReconcileEvent(ctx, &types.LedgerEvent{Name: types.EventIdentityStatusChanged, SubjectKey: "carol"}, ReasonDecode))
	require.NoError(t, r.ReconcileEvent(ctx, &types.LedgerEvent{Name: types.EventAdminTransferred}, ReasonDecode))

	assert.Error(t, r.ReconcileEvent(ctx, &types.LedgerEvent{Name: "Unknown"}, ReasonDecode))

	store.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestReconciler_PropagatesLedgerNotFound(t *testing.T) {
	r, store, ledger := setupTestReconciler()

	notFound := types.NewNotFoundError(types.ErrCodePermissionNotFound, "permission 0xp9 not found")
	ledger.On("GetPermission", mock.Anything, "0xp9").Return(nil, notFound).Once()

	err := r.ReconcileEvent(context.Background(), &types.LedgerEvent{Name: types.EventAccessGranted, SubjectKey: "0xp9"}, ReasonGap)
	assert.Equal(t, types.ErrorTypeNotFound, types.ErrorTypeOf(err))
	store.AssertNotCalled(t, "UpsertPermission", mock.Anything, mock.Anything)
}
