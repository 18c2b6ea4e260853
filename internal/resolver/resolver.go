// Package resolver turns any asset descriptor or canonical id string into a
// fully enriched Asset. It never returns an unresolved descriptor: when no
// registry source resolves, it constructs a documented fallback Asset and
// persists it as unverified so later enrichment can override it.
package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/assetid"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/registry"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/repository"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// burstTTL absorbs repeated lookups for the same criteria within one
// aggregation call without re-walking the cascade.
const burstTTL = 5 * time.Minute

// Resolver orchestrates the identity codec and the registry cascade.
type Resolver struct {
	cascade *registry.Cascade
	repo    repository.Repository
	burst   *registry.Cache[string, types.Asset]
	logger  zerolog.Logger
}

// New creates a Resolver. repo may be nil in tests; upserts are then
// skipped.
func New(cascade *registry.Cascade, repo repository.Repository, logger zerolog.Logger) *Resolver {
	return &Resolver{
		cascade: cascade,
		repo:    repo,
		burst:   registry.NewCache[string, types.Asset](burstTTL),
		logger:  logger,
	}
}

// Enrich resolves a descriptor into an Asset. The identity comes from the
// codec; metadata comes from the cascade, the descriptor itself, or the
// fallback table, in that order of confidence.
func (r *Resolver) Enrich(ctx context.Context, descriptor types.AssetDescriptor) (types.Asset, error) {
	identity, err := r.identityFor(descriptor)
	if err != nil {
		return types.Asset{}, err
	}

	if asset, ok := r.burst.Get(identity.AssetID); ok {
		return asset, nil
	}

	asset := r.resolve(ctx, identity, descriptor)
	r.burst.Set(identity.AssetID, asset)
	return asset, nil
}

// FromCanonicalID decodes a canonical id and enriches it like Enrich.
func (r *Resolver) FromCanonicalID(ctx context.Context, assetID string) (types.Asset, error) {
	identity, err := assetid.Decode(assetID)
	if err != nil {
		return types.Asset{}, err
	}
	return r.Enrich(ctx, types.AssetDescriptor{
		Blockchain: identity.Blockchain,
		Namespace:  identity.Namespace,
		Reference:  identity.Reference,
	})
}

// ToCanonicalID is the codec-only entry point for callers that already
// know the identity parts.
func (r *Resolver) ToCanonicalID(blockchain, namespace, reference string) (string, error) {
	return assetid.Encode(blockchain, namespace, reference, "")
}

func (r *Resolver) identityFor(d types.AssetDescriptor) (types.CanonicalIdentity, error) {
	if d.Namespace != "" && d.Reference != "" {
		id, err := assetid.Encode(d.Blockchain, d.Namespace, d.Reference, "")
		if err != nil {
			return types.CanonicalIdentity{}, err
		}
		return assetid.Decode(id)
	}
	return assetid.Derive(d.Blockchain, d.Reference)
}

func (r *Resolver) resolve(ctx context.Context, identity types.CanonicalIdentity, d types.AssetDescriptor) types.Asset {
	criteria := registry.Criteria{
		AssetID:    identity.AssetID,
		Blockchain: identity.Blockchain,
		Symbol:     d.Symbol,
	}
	if identity.Reference != assetid.NativeReference {
		criteria.Reference = identity.Reference
	}

	meta, source, err := r.cascade.Lookup(ctx, criteria)
	if err == nil {
		asset := types.Asset{
			CanonicalIdentity: identity,
			Symbol:            meta.Symbol,
			Name:              meta.Name,
			Decimals:          meta.Decimals,
			IconURL:           meta.IconURL,
			ChainID:           d.ChainID,
			Source:            source,
			Verified:          true,
		}
		r.persist(ctx, asset)
		return asset
	}

	return r.fallback(ctx, identity, d)
}

// fallback constructs an Asset from caller-supplied fields plus the
// namespace-keyed fallback-decimals table, persisted as unverified.
func (r *Resolver) fallback(ctx context.Context, identity types.CanonicalIdentity, d types.AssetDescriptor) types.Asset {
	symbol := strings.ToUpper(strings.TrimSpace(d.Symbol))
	reason := "no registry source resolved"
	if symbol == "" {
		if identity.Reference == assetid.NativeReference {
			symbol = strings.ToUpper(identity.Blockchain)
		} else {
			symbol = "UNKNOWN"
		}
		reason += ", no caller symbol"
	}

	decimals := d.Decimals
	if decimals == 0 {
		decimals = assetid.FallbackDecimals(identity.Namespace)
		reason += ", decimals from fallback table"
	}

	asset := types.Asset{
		CanonicalIdentity: identity,
		Symbol:            symbol,
		Decimals:          decimals,
		ChainID:           d.ChainID,
		Source:            "fallback",
		Verified:          false,
	}

	r.logger.Warn().
		Str("asset_id", identity.AssetID).
		Str("blockchain", identity.Blockchain).
		Str("reference", identity.Reference).
		Str("descriptor_symbol", d.Symbol).
		Str("reason", reason).
		Str("fallback_symbol", symbol).
		Int32("fallback_decimals", decimals).
		Msg("Asset resolution fell back to defaults")

	r.persist(ctx, asset)
	return asset
}

// persist upserts the asset. Store failures are logged, never fatal: the
// in-memory result is still correct for this call.
func (r *Resolver) persist(ctx context.Context, asset types.Asset) {
	if r.repo == nil {
		return
	}
	if err := r.repo.UpsertAsset(ctx, &asset); err != nil {
		r.logger.Error().
			Err(err).
			Str("asset_id", asset.AssetID).
			Msg("Failed to persist resolved asset")
	}
}
