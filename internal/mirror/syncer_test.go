package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/fabric-sdk-go/pkg/common/providers/fab"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/monitoring"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) UpsertIdentity(ctx context.Context, identity *types.Identity) error {
	return m.Called(ctx, identity).Error(0)
}

func (m *MockStore) UpsertWallet(ctx context.Context, wallet *types.Wallet) error {
	return m.Called(ctx, wallet).Error(0)
}

func (m *MockStore) UpsertRecordRole(ctx context.Context, role *types.RecordRole) error {
	return m.Called(ctx, role).Error(0)
}

func (m *MockStore) UpsertPermission(ctx context.Context, permission *types.AccessPermission) error {
	return m.Called(ctx, permission).Error(0)
}

func (m *MockStore) UpsertAnchor(ctx context.Context, anchor *types.AnchoredRecord) error {
	return m.Called(ctx, anchor).Error(0)
}

func (m *MockStore) UpsertReview(ctx context.Context, review *types.Review) error {
	return m.Called(ctx, review).Error(0)
}

func (m *MockStore) UpsertReaction(ctx context.Context, reaction *types.Reaction) error {
	return m.Called(ctx, reaction).Error(0)
}

func (m *MockStore) ReplaceReviews(ctx context.Context, recordHash string, reviews []*types.Review) error {
	return m.Called(ctx, recordHash, reviews).Error(0)
}

func (m *MockStore) ReplaceReactions(ctx context.Context, recordHash, disputer string, reactions []*types.Reaction) error {
	return m.Called(ctx, recordHash, disputer, reactions).Error(0)
}

func (m *MockStore) ReviewCount(ctx context.Context, recordHash string) (int, error) {
	args := m.Called(ctx, recordHash)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ReactionCount(ctx context.Context, recordHash, disputer string) (int, error) {
	args := m.Called(ctx, recordHash, disputer)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) ReviewStats(ctx context.Context, recordHash string) (*types.ReviewStats, error) {
	args := m.Called(ctx, recordHash)
	stats, _ := args.Get(0).(*types.ReviewStats)
	return stats, args.Error(1)
}

func (m *MockStore) Disputers(ctx context.Context, recordHash string) ([]string, error) {
	args := m.Called(ctx, recordHash)
	disputers, _ := args.Get(0).([]string)
	return disputers, args.Error(1)
}

func (m *MockStore) AnchorHashes(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	hashes, _ := args.Get(0).([]string)
	return hashes, args.Error(1)
}

func (m *MockStore) StartSyncRun(ctx context.Context, kind string) (uuid.UUID, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockStore) FinishSyncRun(ctx context.Context, runID uuid.UUID, applied, failed int, runErr error) error {
	return m.Called(ctx, runID, applied, failed, runErr).Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) GetIdentity(ctx context.Context, identityID string) (*types.Identity, error) {
	args := m.Called(ctx, identityID)
	identity, _ := args.Get(0).(*types.Identity)
	return identity, args.Error(1)
}

func (m *MockLedger) GetWallet(ctx context.Context, wallet string) (*types.Wallet, error) {
	args := m.Called(ctx, wallet)
	w, _ := args.Get(0).(*types.Wallet)
	return w, args.Error(1)
}

func (m *MockLedger) GetRecordRole(ctx context.Context, recordID, identityID string) (*types.RecordRole, error) {
	args := m.Called(ctx, recordID, identityID)
	role, _ := args.Get(0).(*types.RecordRole)
	return role, args.Error(1)
}

func (m *MockLedger) GetPermission(ctx context.Context, permissionHash string) (*types.AccessPermission, error) {
	args := m.Called(ctx, permissionHash)
	permission, _ := args.Get(0).(*types.AccessPermission)
	return permission, args.Error(1)
}

func (m *MockLedger) GetAnchor(ctx context.Context, recordHash string) (*types.AnchoredRecord, error) {
	args := m.Called(ctx, recordHash)
	anchor, _ := args.Get(0).(*types.AnchoredRecord)
	return anchor, args.Error(1)
}

func (m *MockLedger) GetReviews(ctx context.Context, recordHash string) ([]*types.Review, error) {
	args := m.Called(ctx, recordHash)
	reviews, _ := args.Get(0).([]*types.Review)
	return reviews, args.Error(1)
}

func (m *MockLedger) GetReviewStats(ctx context.Context, recordHash string) (*types.ReviewStats, error) {
	args := m.Called(ctx, recordHash)
	stats, _ := args.Get(0).(*types.ReviewStats)
	return stats, args.Error(1)
}

func (m *MockLedger) GetReactions(ctx context.Context, recordHash, disputer string) ([]*types.Reaction, error) {
	args := m.Called(ctx, recordHash, disputer)
	reactions, _ := args.Get(0).([]*types.Reaction)
	return reactions, args.Error(1)
}

func (m *MockLedger) GetReactionStats(ctx context.Context, recordHash, disputer string) (*types.ReactionStats, error) {
	args := m.Called(ctx, recordHash, disputer)
	stats, _ := args.Get(0).(*types.ReactionStats)
	return stats, args.Error(1)
}

type fakeSource struct {
	events       chan *fab.CCEvent
	filter       string
	unregistered bool
}

func (f *fakeSource) RegisterEvent(filter string) (fab.Registration, <-chan *fab.CCEvent, error) {
	f.filter = filter
	return "registration", f.events, nil
}

func (f *fakeSource) Unregister(registration fab.Registration) {
	f.unregistered = true
}

type syncerFixture struct {
	syncer     *Syncer
	store      *MockStore
	ledger     *MockLedger
	checkpoint *Checkpoint
	source     *fakeSource
}

func setupTestSyncer(t *testing.T) *syncerFixture {
	cp, err := OpenMemoryCheckpoint()
	require.NoError(t, err)
	t.Cleanup(func() { cp.Close() })

	log := logger.NewWithOutput("error", io.Discard)
	metrics := monitoring.NewMetricsCollector("mirror-test")
	store := &MockStore{}
	ledger := &MockLedger{}
	source := &fakeSource{events: make(chan *fab.CCEvent, 8)}

	reconciler := NewReconciler(ledger, store, log, metrics)
	syncer, err := NewSyncer(source, store, reconciler, cp, ".*", log, metrics, nil)
	require.NoError(t, err)

	return &syncerFixture{syncer: syncer, store: store, ledger: ledger, checkpoint: cp, source: source}
}

func chaincodeEvent(t *testing.T, block uint64, txID string, name types.EventName, after interface{}, keys func(*types.LedgerEvent)) *fab.CCEvent {
	le := types.LedgerEvent{Name: name, TxID: txID, Timestamp: 1700000000}
	if after != nil {
		raw, err := json.Marshal(after)
		require.NoError(t, err)
		le.After = raw
	}
	if keys != nil {
		keys(&le)
	}
	payload, err := json.Marshal(le)
	require.NoError(t, err)
	return &fab.CCEvent{TxID: txID, ChaincodeID: "record-provenance", EventName: string(name), Payload: payload, BlockNumber: block}
}

func TestSyncer_AppliesDocuments(t *testing.T) {
	f := setupTestSyncer(t)
	ctx := context.Background()

	role := &types.RecordRole{RecordID: "rec-1", IdentityID: "bob", Role: types.RoleViewer, IsActive: true}
	f.store.On("UpsertRecordRole", mock.Anything, role).Return(nil).Once()

	permission := &types.AccessPermission{PermissionHash: "0xp1", Sharer: "alice", Receiver: "bob", RecordID: "rec-1", IsActive: true}
	f.store.On("UpsertPermission", mock.Anything, permission).Return(nil).Once()

	anchor := &types.AnchoredRecord{RecordHash: "H1", RecordID: "rec-1", Subject: "patient-7", CreatedBy: "alice"}
	f.store.On("UpsertAnchor", mock.Anything, anchor).Return(nil).Once()

	require.NoError(t, f.syncer.Handle(ctx, chaincodeEvent(t, 5, "tx-1", types.EventRoleGranted, role, nil)))
	require.NoError(t, f.syncer.Handle(ctx, chaincodeEvent(t, 5, "tx-2", types.EventAccessGranted, permission, nil)))
	require.NoError(t, f.syncer.Handle(ctx, chaincodeEvent(t, 6, "tx-3", types.EventRecordAnchored, anchor, nil)))

	f.store.AssertExpectations(t)
	assert.Equal(t, uint64(6), f.checkpoint.Position().Block)
	assert.Equal(t, "tx-3", f.checkpoint.Position().TxID)
}

func TestSyncer_SkipsReplayedEvents(t *testing.T) {
	f := setupTestSyncer(t)
	ctx := context.Background()

	role := &types.RecordRole{RecordID: "rec-1", IdentityID: "bob", Role: types.RoleViewer, IsActive: true}
	f.store.On("UpsertRecordRole", mock.Anything, role).Return(nil).Once()

	ev := chaincodeEvent(t, 5, "tx-1", types.EventRoleGranted, role, nil)
	require.NoError(t, f.syncer.Handle(ctx, ev))
	require.NoError(t, f.syncer.Handle(ctx, ev))

	f.store.AssertNumberOfCalls(t, "UpsertRecordRole", 1)
}

func TestSyncer_WalletRegistrationRefreshesIdentity(t *testing.T) {
	f := setupTestSyncer(t)

	wallet := &types.Wallet{Address: "w-alice", IdentityID: "alice", IsWalletActive: true}
	identity := &types.Identity{IdentityID: "alice", Status: types.StatusActive}

	f.store.On("UpsertWallet", mock.Anything, wallet).Return(nil).Once()
	f.ledger.On("GetIdentity", mock.Anything, "alice").Return(identity, nil).Once()
	f.store.On("UpsertIdentity", mock.Anything, identity).Return(nil).Once()

	require.NoError(t, f.syncer.Handle(context.Background(), chaincodeEvent(t, 1, "tx-1", types.EventWalletRegistered, wallet, nil)))

	f.store.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestSyncer_ReviewInSequence(t *testing.T) {
	f := setupTestSyncer(t)

	review := &types.Review{RecordHash: "H1", Index: 2, Reviewer: "carol", ReviewType: types.ReviewVerification, IsActive: true}
	f.store.On("ReviewCount", mock.Anything, "H1").Return(2, nil).Once()
	f.store.On("UpsertReview", mock.Anything, review).Return(nil).Once()

	require.NoError(t, f.syncer.Handle(context.Background(), chaincodeEvent(t, 9, "tx-9", types.EventReviewSubmitted, review, nil)))

	f.store.AssertExpectations(t)
	f.ledger.AssertNotCalled(t, "GetReviews", mock.Anything, mock.Anything)
}

func TestSyncer_ReviewGapReconciles(t *testing.T) {
	f := setupTestSyncer(t)

	review := &types.Review{RecordHash: "H1", Index: 4, Reviewer: "carol", ReviewType: types.ReviewDispute, Severity: 1, Culpability: 1, IsActive: true}
	anchor := &types.AnchoredRecord{RecordHash: "H1", RecordID: "rec-1"}
	authoritative := []*types.Review{{RecordHash: "H1", Index: 0}, {RecordHash: "H1", Index: 1}, {RecordHash: "H1", Index: 2}, {RecordHash: "H1", Index: 3}, review}

	f.store.On("ReviewCount", mock.Anything, "H1").Return(2, nil).Once()
	f.ledger.On("GetAnchor", mock.Anything, "H1").Return(anchor, nil).Once()
	f.store.On("UpsertAnchor", mock.Anything, anchor).Return(nil).Once()
	f.ledger.On("GetReviews", mock.Anything, "H1").Return(authoritative, nil).Once()
	f.store.On("ReplaceReviews", mock.Anything, "H1", authoritative).Return(nil).Once()

	ev := chaincodeEvent(t, 9, "tx-9", types.EventReviewSubmitted, review, func(le *types.LedgerEvent) { le.RecordHash = "H1" })
	require.NoError(t, f.syncer.Handle(context.Background(), ev))

	f.store.AssertExpectations(t)
	f.store.AssertNotCalled(t, "UpsertReview", mock.Anything, mock.Anything)
}

func TestSyncer_ReactionGapReconciles(t *testing.T) {
	f := setupTestSyncer(t)

	reaction := &types.Reaction{RecordHash: "H1", Disputer: "bob", Index: 3, Reactor: "dave", SupportsDispute: true}
	authoritative := []*types.Reaction{{RecordHash: "H1", Disputer: "bob", Index: 0}, reaction}

	f.store.On("ReactionCount", mock.Anything, "H1", "bob").Return(1, nil).Once()
	f.ledger.On("GetReactions", mock.Anything, "H1", "bob").Return(authoritative, nil).Once()
	f.store.On("ReplaceReactions", mock.Anything, "H1", "bob", authoritative).Return(nil).Once()

	ev := chaincodeEvent(t, 3, "tx-3", types.EventDisputeReaction, reaction, func(le *types.LedgerEvent) {
		le.RecordHash = "H1"
		le.SubjectKey = "bob"
	})
	require.NoError(t, f.syncer.Handle(context.Background(), ev))
	f.store.AssertExpectations(t)
}

func TestSyncer_MalformedDocumentReconcilesFromKeys(t *testing.T) {
	f := setupTestSyncer(t)

	le := types.LedgerEvent{
		Name:       types.EventAccessRevoked,
		TxID:       "tx-4",
		SubjectKey: "0xp1",
		After:      json.RawMessage(`{"permission_hash": 12}`),
	}
	payload, err := json.Marshal(le)
	require.NoError(t, err)

	permission := &types.AccessPermission{PermissionHash: "0xp1", RevokedAt: 99}
	f.ledger.On("GetPermission", mock.Anything, "0xp1").Return(permission, nil).Once()
	f.store.On("UpsertPermission", mock.Anything, permission).Return(nil).Once()

	ev := &fab.CCEvent{TxID: "tx-4", EventName: string(types.EventAccessRevoked), Payload: payload, BlockNumber: 4}
	require.NoError(t, f.syncer.Handle(context.Background(), ev))

	f.store.AssertExpectations(t)
	f.ledger.AssertExpectations(t)
}

func TestSyncer_UndecodablePayloadSweeps(t *testing.T) {
	f := setupTestSyncer(t)
	runID := uuid.New()

	f.store.On("StartSyncRun", mock.Anything, ReasonSweep).Return(runID, nil).Once()
	f.store.On("AnchorHashes", mock.Anything).Return([]string{"H1"}, nil).Once()
	stats := &types.ReviewStats{RecordHash: "H1", Total: 1, ActiveVerifications: 1}
	f.ledger.On("GetReviewStats", mock.Anything, "H1").Return(stats, nil).Once()
	f.store.On("ReviewStats", mock.Anything, "H1").Return(stats, nil).Once()
	f.store.On("Disputers", mock.Anything, "H1").Return([]string{}, nil).Once()
	f.store.On("FinishSyncRun", mock.Anything, runID, 0, 0, nil).Return(nil).Once()

	ev := &fab.CCEvent{TxID: "tx-5", EventName: "ReviewSubmitted", Payload: []byte("not-json"), BlockNumber: 5}
	require.NoError(t, f.syncer.Handle(context.Background(), ev))

	f.store.AssertExpectations(t)
	assert.Equal(t, uint64(5), f.checkpoint.Position().Block)
}

func TestSyncer_FailedApplyKeepsCheckpoint(t *testing.T) {
	f := setupTestSyncer(t)

	role := &types.RecordRole{RecordID: "rec-1", IdentityID: "bob", Role: types.RoleViewer}
	f.store.On("UpsertRecordRole", mock.Anything, role).Return(errors.New("connection reset")).Once()

	err := f.syncer.Handle(context.Background(), chaincodeEvent(t, 7, "tx-7", types.EventRoleRevoked, role, nil))
	require.Error(t, err)

	applied, err := f.checkpoint.Applied(7, "tx-7")
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestSyncer_Run(t *testing.T) {
	f := setupTestSyncer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	anchor := &types.AnchoredRecord{RecordHash: "H1", RecordID: "rec-1"}
	done := make(chan struct{})
	f.store.On("UpsertAnchor", mock.Anything, anchor).Return(nil).Once().Run(func(mock.Arguments) { close(done) })

	errCh := make(chan error, 1)
	go func() { errCh <- f.syncer.Run(ctx) }()

	f.source.events <- chaincodeEvent(t, 2, "tx-2", types.EventRecordAnchored, anchor, nil)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event was not applied")
	}
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, ".*", f.source.filter)
	assert.True(t, f.source.unregistered)
}

func TestSyncer_RunStopsWhenStreamCloses(t *testing.T) {
	f := setupTestSyncer(t)
	close(f.source.events)

	err := f.syncer.Run(context.Background())
	assert.EqualError(t, err, "chaincode event stream closed")
}

func TestNewSyncer_RejectsBadFilter(t *testing.T) {
	cp, err := OpenMemoryCheckpoint()
	require.NoError(t, err)
	defer cp.Close()

	_, err = NewSyncer(&fakeSource{}, &MockStore{}, nil, cp, "(", logger.NewWithOutput("error", io.Discard), monitoring.NewMetricsCollector("x"), nil)
	assert.Error(t, err)
}
