// Package aggregator fans requests out to every matched provider
// concurrently, tolerates individual provider failures, and merges
// successes keyed by provider identity.
package aggregator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/liquidity"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/provider"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// Result is the merged output of one fan-out. Providers lists only the ids
// whose calls succeeded; an omitted provider is the only failure signal
// exposed to callers.
type Result[T any] struct {
	Providers []provider.ID       `json:"providers"`
	Data      map[provider.ID][]T `json:"data"`
}

// Aggregator coordinates provider fan-out over the support index.
type Aggregator struct {
	registry   *provider.Registry
	normalizer assetNormalizer
	prober     *liquidity.Prober
	timeout    time.Duration
	logger     zerolog.Logger

	mu    sync.RWMutex
	index SupportIndex
}

// New creates an Aggregator. timeout bounds each outbound provider call.
func New(reg *provider.Registry, normalizer assetNormalizer, prober *liquidity.Prober, timeout time.Duration, logger zerolog.Logger) *Aggregator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Aggregator{
		registry:   reg,
		normalizer: normalizer,
		prober:     prober,
		timeout:    timeout,
		logger:     logger,
	}
}

// RefreshIndex rebuilds the support index from every registered provider
// and swaps it in. Builds never mutate the index readers hold.
func (a *Aggregator) RefreshIndex(ctx context.Context) SupportIndex {
	idx := BuildIndex(ctx, a.registry, a.normalizer, a.registry.Available(), a.logger)
	a.mu.Lock()
	a.index = idx
	a.mu.Unlock()
	return idx
}

// Index returns the current support index, building one on first use.
func (a *Aggregator) Index(ctx context.Context) SupportIndex {
	a.mu.RLock()
	idx := a.index
	a.mu.RUnlock()
	if idx != nil {
		return idx
	}
	return a.RefreshIndex(ctx)
}

// MatchRoute returns the providers able to service both legs of the route.
func (a *Aggregator) MatchRoute(ctx context.Context, route types.Route) []provider.ID {
	return ProvidersForRoute(route, a.Index(ctx))
}

// fanOut runs fn once per provider with an isolated per-call timeout and
// merges the successes. A provider failure is logged and the provider
// omitted; it never aborts or corrupts the rest of the batch.
func fanOut[T any](a *Aggregator, ctx context.Context, ids []provider.ID, op string, fn func(ctx context.Context, id provider.ID, client provider.Client) ([]T, error)) Result[T] {
	result := Result[T]{
		Providers: make([]provider.ID, 0, len(ids)),
		Data:      make(map[provider.ID][]T, len(ids)),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, id := range ids {
		client, ok := a.registry.Get(id)
		if !ok {
			a.logger.Debug().Str("provider", string(id)).Msg("Provider not registered, skipping")
			continue
		}
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			data, err := fn(callCtx, id, client)
			if err != nil {
				a.logger.Warn().
					Err(err).
					Str("provider", string(id)).
					Str("operation", op).
					Msg("Provider call failed, omitting from result")
				return nil
			}

			mu.Lock()
			result.Providers = append(result.Providers, id)
			result.Data[id] = data
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(result.Providers, func(i, j int) bool { return result.Providers[i] < result.Providers[j] })
	return result
}

// Rates fans a rate-quote request out to every matched provider. routes
// and notionals are parallel slices; notionals are input amounts in the
// source asset's smallest units.
func (a *Aggregator) Rates(ctx context.Context, routes []types.Route, notionals []string, requested []provider.ID) (Result[types.RateQuote], error) {
	if len(routes) == 0 {
		return Result[types.RateQuote]{}, status.Error(codes.InvalidArgument, "at least one route is required")
	}
	if len(notionals) != len(routes) {
		return Result[types.RateQuote]{}, status.Error(codes.InvalidArgument, "notionals must match routes")
	}

	ids := a.registry.Resolve(requested)
	idx := a.Index(ctx)

	return fanOut(a, ctx, ids, "rates", func(ctx context.Context, id provider.ID, client provider.Client) ([]types.RateQuote, error) {
		supported, supportedNotionals := filterRoutes(idx, id, routes, notionals)
		if len(supported) == 0 {
			return nil, nil
		}
		return client.GetRates(ctx, supported, supportedNotionals)
	}), nil
}

// Liquidity measures depth for each route on each matched provider. A
// provider-native depth report wins when available; otherwise the prober
// derives thresholds from static limits or quote probing.
func (a *Aggregator) Liquidity(ctx context.Context, routes []types.Route, requested []provider.ID) (Result[types.LiquidityDepth], error) {
	if len(routes) == 0 {
		return Result[types.LiquidityDepth]{}, status.Error(codes.InvalidArgument, "at least one route is required")
	}

	ids := a.registry.Resolve(requested)
	idx := a.Index(ctx)

	return fanOut(a, ctx, ids, "liquidity", func(ctx context.Context, id provider.ID, client provider.Client) ([]types.LiquidityDepth, error) {
		supported, _ := filterRoutes(idx, id, routes, nil)
		if len(supported) == 0 {
			return nil, nil
		}

		if depths, err := client.GetLiquidity(ctx, supported); err == nil && len(depths) > 0 {
			return depths, nil
		}

		out := make([]types.LiquidityDepth, 0, len(supported))
		for _, route := range supported {
			depth, err := a.prober.Measure(ctx, client, route)
			if err != nil {
				return nil, err
			}
			out = append(out, depth)
		}
		return out, nil
	}), nil
}

// Volumes fans a traded-volume request out to the requested providers.
// Route matching does not apply: volume is a provider-level series.
func (a *Aggregator) Volumes(ctx context.Context, window types.DateRange, requested []provider.ID) Result[types.VolumeWindow] {
	ids := a.registry.Resolve(requested)
	return fanOut(a, ctx, ids, "volumes", func(ctx context.Context, id provider.ID, client provider.Client) ([]types.VolumeWindow, error) {
		return client.GetVolumes(ctx, window)
	})
}

// ListedAssets fans a listed-assets request out and canonicalizes every
// reported asset through the resolver.
func (a *Aggregator) ListedAssets(ctx context.Context, requested []provider.ID) Result[types.Asset] {
	ids := a.registry.Resolve(requested)
	return fanOut(a, ctx, ids, "assets", func(ctx context.Context, id provider.ID, client provider.Client) ([]types.Asset, error) {
		raw, err := client.GetListedAssets(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]types.Asset, 0, len(raw))
		for _, r := range raw {
			asset, err := normalizeListed(ctx, a.normalizer, r)
			if err != nil {
				a.logger.Warn().
					Err(err).
					Str("provider", string(id)).
					Str("reference", r.Reference).
					Msg("Skipping unresolvable listed asset")
				continue
			}
			out = append(out, asset)
		}
		return out, nil
	})
}

// filterRoutes keeps the routes (and parallel notionals) the provider
// supports on both legs.
func filterRoutes(idx SupportIndex, id provider.ID, routes []types.Route, notionals []string) ([]types.Route, []string) {
	var outRoutes []types.Route
	var outNotionals []string
	for i, route := range routes {
		if !idx.Supports(id, route) {
			continue
		}
		outRoutes = append(outRoutes, route)
		if notionals != nil {
			outNotionals = append(outNotionals, notionals[i])
		}
	}
	return outRoutes, outNotionals
}
