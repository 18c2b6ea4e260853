package aggregator

import (
	"context"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/provider"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// SupportIndex maps canonical asset id to the set of providers listing it.
// Built fresh per aggregation session or cached by the sync coordinator;
// a build always produces a new map, never mutates a shared one.
type SupportIndex map[string]map[provider.ID]struct{}

// Providers returns the providers listing assetID, in stable order.
func (idx SupportIndex) Providers(assetID string) []provider.ID {
	set, ok := idx[assetID]
	if !ok {
		return nil
	}
	out := make([]provider.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Supports reports whether the provider lists both legs of the route.
func (idx SupportIndex) Supports(id provider.ID, route types.Route) bool {
	src, ok := idx[route.Source.AssetID]
	if !ok {
		return false
	}
	if _, ok := src[id]; !ok {
		return false
	}
	dst, ok := idx[route.Destination.AssetID]
	if !ok {
		return false
	}
	_, ok = dst[id]
	return ok
}

// ProvidersForRoute intersects the provider sets of both route legs. An
// empty intersection is a valid result: no provider can service the route.
func ProvidersForRoute(route types.Route, idx SupportIndex) []provider.ID {
	src := idx[route.Source.AssetID]
	dst := idx[route.Destination.AssetID]
	if len(src) == 0 || len(dst) == 0 {
		return nil
	}

	var out []provider.ID
	for id := range src {
		if _, ok := dst[id]; ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// assetNormalizer narrows the resolver to what index building needs.
type assetNormalizer interface {
	Enrich(ctx context.Context, descriptor types.AssetDescriptor) (types.Asset, error)
}

// BuildIndex queries every given provider's listed assets concurrently and
// indexes them by canonical id. A provider that errors or times out is
// omitted from the index, never fatal.
func BuildIndex(ctx context.Context, reg *provider.Registry, normalizer assetNormalizer, ids []provider.ID, logger zerolog.Logger) SupportIndex {
	type listing struct {
		id     provider.ID
		assets []types.Asset
	}

	results := make(chan listing, len(ids))
	var g errgroup.Group
	for _, id := range ids {
		client, ok := reg.Get(id)
		if !ok {
			continue
		}
		g.Go(func() error {
			assets, err := client.GetListedAssets(ctx)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("provider", string(id)).
					Msg("Provider listed-assets call failed, omitting from index")
				return nil
			}
			results <- listing{id: id, assets: assets}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	idx := make(SupportIndex)
	for l := range results {
		for _, raw := range l.assets {
			asset, err := normalizeListed(ctx, normalizer, raw)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("provider", string(l.id)).
					Str("blockchain", raw.Blockchain).
					Str("reference", raw.Reference).
					Msg("Skipping unresolvable listed asset")
				continue
			}
			set, ok := idx[asset.AssetID]
			if !ok {
				set = make(map[provider.ID]struct{})
				idx[asset.AssetID] = set
			}
			set[l.id] = struct{}{}
		}
	}
	return idx
}

// normalizeListed canonicalizes a provider-reported asset. Assets already
// carrying a canonical id pass through; everything else goes through the
// resolver.
func normalizeListed(ctx context.Context, normalizer assetNormalizer, raw types.Asset) (types.Asset, error) {
	if raw.AssetID != "" {
		return raw, nil
	}
	return normalizer.Enrich(ctx, types.AssetDescriptor{
		Blockchain: raw.Blockchain,
		ChainID:    raw.ChainID,
		Namespace:  raw.Namespace,
		Reference:  raw.Reference,
		Symbol:     raw.Symbol,
		Decimals:   raw.Decimals,
	})
}
