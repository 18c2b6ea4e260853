package registry

import (
	"context"
	"errors"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/repository"
)

// StoreSource adapts the local persistent store as the highest-priority
// cascade source: no network, and only verified rows count as resolved so
// a persisted fallback never blocks later registry enrichment.
type StoreSource struct {
	repo repository.Repository
}

// NewStoreSource wraps the repository as a cascade source.
func NewStoreSource(repo repository.Repository) *StoreSource {
	return &StoreSource{repo: repo}
}

// Name implements Source.
func (s *StoreSource) Name() string { return "store" }

// Lookup implements Source.
func (s *StoreSource) Lookup(ctx context.Context, criteria Criteria) (Metadata, error) {
	verified := true
	asset, err := s.repo.FindAsset(ctx, repository.AssetCriteria{
		AssetID:    criteria.AssetID,
		Blockchain: criteria.Blockchain,
		Reference:  criteria.Reference,
		Symbol:     criteria.Symbol,
		Verified:   &verified,
	})
	if errors.Is(err, repository.ErrNotFound) {
		return Metadata{}, ErrNotFound
	}
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{
		Symbol:   asset.Symbol,
		Name:     asset.Name,
		Decimals: asset.Decimals,
		IconURL:  asset.IconURL,
	}, nil
}

// Sync is a no-op for the store: rows arrive through resolver upserts, not
// bulk refresh.
func (s *StoreSource) Sync(ctx context.Context) (int, error) {
	return 0, nil
}
