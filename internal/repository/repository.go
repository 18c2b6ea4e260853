// Package repository is the persistent store for enriched canonical assets
// and sync status, with a PostgreSQL implementation and an optional Redis
// cache-aside decorator.
package repository

import (
	"context"
	"errors"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// ErrNotFound means no row matched the criteria.
var ErrNotFound = errors.New("repository: not found")

// AssetCriteria filters asset lookups. AssetID wins when set; otherwise
// blockchain+reference, then symbol.
type AssetCriteria struct {
	AssetID    string
	Blockchain string
	Reference  string
	Symbol     string
	Verified   *bool
	Limit      int
}

// Repository is the store contract the core consumes. Writes are idempotent
// upserts keyed by canonical asset id, so concurrent writers for the same
// key are safe without locking.
type Repository interface {
	// UpsertAsset inserts or replaces the asset keyed by AssetID.
	UpsertAsset(ctx context.Context, asset *types.Asset) error
	// FindAsset returns the best match for the criteria or ErrNotFound.
	FindAsset(ctx context.Context, criteria AssetCriteria) (*types.Asset, error)
	// FindAssets returns all matches for the criteria.
	FindAssets(ctx context.Context, criteria AssetCriteria) ([]*types.Asset, error)
	// GetSyncStatus returns the status row for a sync domain, or an idle
	// zero status when the domain has never synced.
	GetSyncStatus(ctx context.Context, domain string) (*types.SyncStatus, error)
	// SetSyncStatus persists the status row for a sync domain.
	SetSyncStatus(ctx context.Context, status *types.SyncStatus) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close()
}
