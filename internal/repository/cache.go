package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

var (
	cacheHitCounter      *prometheus.CounterVec
	cacheMissCounter     *prometheus.CounterVec
	cacheSetErrorCounter *prometheus.CounterVec
	metricsInitOnce      sync.Once
)

// initCacheMetrics registers the cache counters lazily on first use. A
// registration conflict (metrics initialized twice across tests) leaves the
// counter nil and the cache keeps working without metrics.
func initCacheMetrics() {
	metricsInitOnce.Do(func() {
		register := func(name, help string) *prometheus.CounterVec {
			c := prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dashboard",
				Subsystem: "cache",
				Name:      name,
				Help:      help,
			}, []string{"entity"})
			if err := prometheus.Register(c); err != nil {
				return nil
			}
			return c
		}
		cacheHitCounter = register("hit_total", "Total number of cache hits")
		cacheMissCounter = register("miss_total", "Total number of cache misses")
		cacheSetErrorCounter = register("set_error_total", "Total number of cache set errors")
	})
}

func recordCacheHit(entity string) {
	if cacheHitCounter != nil {
		cacheHitCounter.WithLabelValues(entity).Inc()
	}
}

func recordCacheMiss(entity string) {
	if cacheMissCounter != nil {
		cacheMissCounter.WithLabelValues(entity).Inc()
	}
}

func recordCacheSetError(entity string) {
	if cacheSetErrorCounter != nil {
		cacheSetErrorCounter.WithLabelValues(entity).Inc()
	}
}

// CacheTTLs holds cache TTL configuration per entity type.
type CacheTTLs struct {
	Asset      time.Duration // Default: 60m
	SyncStatus time.Duration // Default: 30s
}

// CachedRepository decorates a Repository with a Redis cache-aside layer.
// Cache failures never fail the request; the store remains authoritative.
type CachedRepository struct {
	Repository
	rdb  *redis.Client
	ttls CacheTTLs
}

// NewCachedRepository wraps repo with the cache-aside pattern. A nil client
// passes everything straight through.
func NewCachedRepository(repo Repository, rdb *redis.Client, ttls CacheTTLs) Repository {
	return &CachedRepository{
		Repository: repo,
		rdb:        rdb,
		ttls:       ttls,
	}
}

func assetCacheKey(assetID string) string {
	return "asset:" + assetID
}

// FindAsset serves canonical-id lookups cache-first. Criteria without an
// asset id (symbol or address searches) go straight to the store: their
// result set depends on ordering the cache cannot reproduce.
func (r *CachedRepository) FindAsset(ctx context.Context, criteria AssetCriteria) (*types.Asset, error) {
	if r.rdb == nil || criteria.AssetID == "" {
		return r.Repository.FindAsset(ctx, criteria)
	}
	initCacheMetrics()

	key := assetCacheKey(criteria.AssetID)
	if payload, err := r.rdb.Get(ctx, key).Bytes(); err == nil {
		var asset types.Asset
		if err := json.Unmarshal(payload, &asset); err == nil {
			recordCacheHit("asset")
			return &asset, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// Redis unreachable: fall through to the store without caching.
		return r.Repository.FindAsset(ctx, criteria)
	}

	recordCacheMiss("asset")
	asset, err := r.Repository.FindAsset(ctx, criteria)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(asset); err == nil {
		if err := r.rdb.Set(ctx, key, payload, r.ttls.Asset).Err(); err != nil {
			recordCacheSetError("asset")
		}
	}
	return asset, nil
}

// UpsertAsset writes through and invalidates the cached row so the next
// read observes the new metadata.
func (r *CachedRepository) UpsertAsset(ctx context.Context, asset *types.Asset) error {
	if err := r.Repository.UpsertAsset(ctx, asset); err != nil {
		return err
	}
	if r.rdb != nil && asset != nil && asset.AssetID != "" {
		// Invalidation errors are ignored: the entry expires on TTL anyway.
		_ = r.rdb.Del(ctx, assetCacheKey(asset.AssetID)).Err()
	}
	return nil
}

// SetSyncStatus writes through and invalidates the cached status.
func (r *CachedRepository) SetSyncStatus(ctx context.Context, status *types.SyncStatus) error {
	if err := r.Repository.SetSyncStatus(ctx, status); err != nil {
		return err
	}
	if r.rdb != nil && status != nil {
		_ = r.rdb.Del(ctx, "sync_status:"+status.Domain).Err()
	}
	return nil
}

// GetSyncStatus serves status polls cache-first with a short TTL so
// frequent pollers do not hit the store.
func (r *CachedRepository) GetSyncStatus(ctx context.Context, domain string) (*types.SyncStatus, error) {
	if r.rdb == nil {
		return r.Repository.GetSyncStatus(ctx, domain)
	}
	initCacheMetrics()

	key := "sync_status:" + domain
	if payload, err := r.rdb.Get(ctx, key).Bytes(); err == nil {
		var status types.SyncStatus
		if err := json.Unmarshal(payload, &status); err == nil {
			recordCacheHit("sync_status")
			return &status, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return r.Repository.GetSyncStatus(ctx, domain)
	}

	recordCacheMiss("sync_status")
	status, err := r.Repository.GetSyncStatus(ctx, domain)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(status); err == nil {
		if err := r.rdb.Set(ctx, key, payload, r.ttls.SyncStatus).Err(); err != nil {
			recordCacheSetError("sync_status")
		}
	}
	return status, nil
}
