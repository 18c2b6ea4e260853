package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/aggregator"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/repository"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

type mockRepository struct {
	mu     sync.Mutex
	assets map[string]*types.Asset
	status map[string]*types.SyncStatus
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		assets: make(map[string]*types.Asset),
		status: make(map[string]*types.SyncStatus),
	}
}

func (m *mockRepository) UpsertAsset(ctx context.Context, asset *types.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *asset
	m.assets[asset.AssetID] = &copied
	return nil
}

func (m *mockRepository) FindAsset(ctx context.Context, criteria repository.AssetCriteria) (*types.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.assets[criteria.AssetID]; ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockRepository) FindAssets(ctx context.Context, criteria repository.AssetCriteria) ([]*types.Asset, error) {
	return nil, nil
}

func (m *mockRepository) GetSyncStatus(ctx context.Context, domain string) (*types.SyncStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.status[domain]; ok {
		copied := *s
		return &copied, nil
	}
	return &types.SyncStatus{Domain: domain, State: types.SyncIdle}, nil
}

func (m *mockRepository) SetSyncStatus(ctx context.Context, s *types.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *s
	m.status[s.Domain] = &copied
	return nil
}

func (m *mockRepository) Ping(ctx context.Context) error { return nil }
func (m *mockRepository) Close()                         {}

// blockingSyncer holds the run open until released.
type blockingSyncer struct {
	release chan struct{}
	count   int
	err     error
}

func (b *blockingSyncer) Sync(ctx context.Context) (int, error) {
	if b.release != nil {
		<-b.release
	}
	return b.count, b.err
}

type stubRefresher struct {
	idx aggregator.SupportIndex
}

func (s *stubRefresher) RefreshIndex(ctx context.Context) aggregator.SupportIndex {
	if s.idx == nil {
		return aggregator.SupportIndex{}
	}
	return s.idx
}

func waitForState(t *testing.T, repo *mockRepository, want types.SyncState) *types.SyncStatus {
	t.Helper()
	var got *types.SyncStatus
	require.Eventually(t, func() bool {
		st, err := repo.GetSyncStatus(context.Background(), SyncDomainAssets)
		if err != nil {
			return false
		}
		got = st
		return st.State == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestStartSyncSingleFlight(t *testing.T) {
	repo := newMockRepository()
	syncer := &blockingSyncer{release: make(chan struct{}), count: 10}
	m := NewSyncManager(syncer, &stubRefresher{}, repo, nil, zerolog.Nop())

	st, err := m.StartSync(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, types.SyncRunning, st.State)

	// Second start while running must conflict.
	_, err = m.StartSync(context.Background(), nil)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	close(syncer.release)
	final := waitForState(t, repo, types.SyncIdle)
	require.NotNil(t, final.LastSuccessAt)
	assert.Empty(t, final.ErrorMessage)

	// After completion a new run is accepted again.
	require.Eventually(t, func() bool {
		_, err := m.StartSync(context.Background(), nil)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
	waitForState(t, repo, types.SyncIdle)
}

func TestStartSyncFailureRecordsError(t *testing.T) {
	repo := newMockRepository()
	syncer := &blockingSyncer{err: errors.New("registry unreachable")}
	m := NewSyncManager(syncer, &stubRefresher{}, repo, nil, zerolog.Nop())

	_, err := m.StartSync(context.Background(), []string{SyncDomainAssets})
	require.NoError(t, err)

	final := waitForState(t, repo, types.SyncError)
	assert.Equal(t, "registry unreachable", final.ErrorMessage)
	require.NotNil(t, final.LastErrorAt)
	assert.Nil(t, final.LastSuccessAt)
}

func TestStartSyncErrorStateClearsOnNextSuccess(t *testing.T) {
	repo := newMockRepository()
	syncer := &blockingSyncer{err: errors.New("boom")}
	m := NewSyncManager(syncer, &stubRefresher{}, repo, nil, zerolog.Nop())

	_, err := m.StartSync(context.Background(), nil)
	require.NoError(t, err)
	waitForState(t, repo, types.SyncError)

	syncer.err = nil
	require.Eventually(t, func() bool {
		_, err := m.StartSync(context.Background(), nil)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	final := waitForState(t, repo, types.SyncIdle)
	assert.Empty(t, final.ErrorMessage)
	require.NotNil(t, final.LastSuccessAt)
	require.NotNil(t, final.LastErrorAt, "error history is kept, not erased")
}

func TestStartSyncPreservesHistoryWhileRunning(t *testing.T) {
	// Starting a run must not wipe the persisted history: a poller seeing
	// state=running still sees when the last run succeeded.
	repo := newMockRepository()
	syncer := &blockingSyncer{}
	m := NewSyncManager(syncer, &stubRefresher{}, repo, nil, zerolog.Nop())

	_, err := m.StartSync(context.Background(), nil)
	require.NoError(t, err)
	first := waitForState(t, repo, types.SyncIdle)
	require.NotNil(t, first.LastSuccessAt)

	syncer.release = make(chan struct{})
	var running *types.SyncStatus
	require.Eventually(t, func() bool {
		st, err := m.StartSync(context.Background(), nil)
		if err != nil {
			return false
		}
		running = st
		return true
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, types.SyncRunning, running.State)
	assert.Equal(t, first.LastSuccessAt, running.LastSuccessAt)

	persisted, err := repo.GetSyncStatus(context.Background(), SyncDomainAssets)
	require.NoError(t, err)
	assert.Equal(t, types.SyncRunning, persisted.State)
	require.NotNil(t, persisted.LastSuccessAt, "running row keeps the last success time")
	assert.Equal(t, *first.LastSuccessAt, *persisted.LastSuccessAt)

	close(syncer.release)
	waitForState(t, repo, types.SyncIdle)
}

func TestStartSyncUnknownDomain(t *testing.T) {
	m := NewSyncManager(&blockingSyncer{}, &stubRefresher{}, newMockRepository(), nil, zerolog.Nop())

	_, err := m.StartSync(context.Background(), []string{"volumes"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStatus(t *testing.T) {
	repo := newMockRepository()
	m := NewSyncManager(&blockingSyncer{}, &stubRefresher{}, repo, nil, zerolog.Nop())

	st, err := m.Status(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, types.SyncIdle, st.State)

	_, err = m.Status(context.Background(), "nope")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
