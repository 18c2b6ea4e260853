// Package manager holds the business logic between the transport layer and
// the repository: the sync coordinator that refreshes registries and the
// provider support index, and the event publisher announcing its results.
package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/aggregator"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/repository"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// SyncDomainAssets is the one sync domain: registry sources plus the
// provider support index.
const SyncDomainAssets = "assets"

// syncTimeout bounds one full background refresh.
const syncTimeout = 10 * time.Minute

// sourceSyncer is the registry cascade's bulk-refresh surface.
type sourceSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// indexRefresher rebuilds the provider support index.
type indexRefresher interface {
	RefreshIndex(ctx context.Context) aggregator.SupportIndex
}

// SyncManager coordinates full refreshes with a single-flight guarantee:
// at most one run is in flight, concurrent starts fail with
// FailedPrecondition.
type SyncManager struct {
	cascade    sourceSyncer
	aggregator indexRefresher
	repo       repository.Repository
	events     *EventPublisher
	logger     zerolog.Logger

	running atomic.Bool

	mu     sync.Mutex
	known  map[string]struct{}
	primed bool
}

// NewSyncManager creates a new SyncManager instance.
func NewSyncManager(cascade sourceSyncer, agg indexRefresher, repo repository.Repository, events *EventPublisher, logger zerolog.Logger) *SyncManager {
	return &SyncManager{
		cascade:    cascade,
		aggregator: agg,
		repo:       repo,
		events:     events,
		logger:     logger,
		known:      make(map[string]struct{}),
	}
}

// StartSync begins a background refresh and returns the running status
// immediately. A second start while one is in flight returns
// FailedPrecondition.
func (m *SyncManager) StartSync(ctx context.Context, domains []string) (*types.SyncStatus, error) {
	for _, d := range domains {
		if d != SyncDomainAssets {
			return nil, status.Errorf(codes.InvalidArgument, "unknown sync domain: %q", d)
		}
	}

	if !m.running.CompareAndSwap(false, true) {
		return nil, status.Error(codes.FailedPrecondition, "sync already running")
	}

	// The running row keeps the previous timestamps and error message: the
	// upsert replaces every column, and pollers still need the history.
	prev, err := m.repo.GetSyncStatus(ctx, SyncDomainAssets)
	if err != nil {
		m.running.Store(false)
		return nil, status.Errorf(codes.Internal, "failed to read sync status: %v", err)
	}
	running := &types.SyncStatus{
		Domain:        SyncDomainAssets,
		State:         types.SyncRunning,
		LastSuccessAt: prev.LastSuccessAt,
		LastErrorAt:   prev.LastErrorAt,
		ErrorMessage:  prev.ErrorMessage,
	}
	if err := m.repo.SetSyncStatus(ctx, running); err != nil {
		m.running.Store(false)
		return nil, status.Errorf(codes.Internal, "failed to record sync start: %v", err)
	}

	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), syncTimeout)
		defer cancel()
		m.run(runCtx)
	}()

	return running, nil
}

// Status returns the persisted status of a sync domain.
func (m *SyncManager) Status(ctx context.Context, domain string) (*types.SyncStatus, error) {
	if domain == "" {
		domain = SyncDomainAssets
	}
	if domain != SyncDomainAssets {
		return nil, status.Errorf(codes.InvalidArgument, "unknown sync domain: %q", domain)
	}
	st, err := m.repo.GetSyncStatus(ctx, domain)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to get sync status: %v", err)
	}
	return st, nil
}

// run executes one full refresh and releases the single-flight flag.
func (m *SyncManager) run(ctx context.Context) {
	defer m.running.Store(false)

	started := time.Now()
	synced, syncErr := m.cascade.Sync(ctx)
	idx := m.aggregator.RefreshIndex(ctx)

	result := m.finalStatus(ctx, syncErr)
	if err := m.repo.SetSyncStatus(ctx, result); err != nil {
		m.logger.Error().Err(err).Msg("Failed to persist sync status")
	}

	m.announceDiscoveries(ctx, idx)
	if m.events != nil {
		m.events.PublishSyncCompleted(result, synced)
	}

	m.logger.Info().
		Str("domain", SyncDomainAssets).
		Str("state", string(result.State)).
		Int("synced", synced).
		Int("indexed_assets", len(idx)).
		Dur("elapsed", time.Since(started)).
		Msg("Sync run finished")
}

// finalStatus builds the post-run status, carrying forward the last
// success/error timestamps the run did not touch.
func (m *SyncManager) finalStatus(ctx context.Context, syncErr error) *types.SyncStatus {
	result := &types.SyncStatus{Domain: SyncDomainAssets}
	if prev, err := m.repo.GetSyncStatus(ctx, SyncDomainAssets); err == nil {
		result.LastSuccessAt = prev.LastSuccessAt
		result.LastErrorAt = prev.LastErrorAt
		result.ErrorMessage = prev.ErrorMessage
	}

	now := time.Now().UTC()
	if syncErr != nil {
		result.State = types.SyncError
		result.LastErrorAt = &now
		result.ErrorMessage = syncErr.Error()
		return result
	}
	result.State = types.SyncIdle
	result.LastSuccessAt = &now
	result.ErrorMessage = ""
	return result
}

// announceDiscoveries publishes AssetDiscovered for index entries not seen
// in a previous run. The first run only establishes the baseline.
func (m *SyncManager) announceDiscoveries(ctx context.Context, idx aggregator.SupportIndex) {
	m.mu.Lock()
	primed := m.primed
	fresh := make([]string, 0)
	for assetID := range idx {
		if _, ok := m.known[assetID]; !ok {
			m.known[assetID] = struct{}{}
			fresh = append(fresh, assetID)
		}
	}
	m.primed = true
	m.mu.Unlock()

	if !primed || m.events == nil {
		return
	}

	for _, assetID := range fresh {
		asset, err := m.repo.FindAsset(ctx, repository.AssetCriteria{AssetID: assetID})
		if err != nil {
			m.logger.Debug().Str("asset_id", assetID).Msg("Discovered asset not yet persisted, skipping event")
			continue
		}
		m.events.PublishAssetDiscovered(*asset)
	}
}
