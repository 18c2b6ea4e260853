// Package liquidity measures route depth by probing provider quotes: how
// much input can be swapped before the quoted rate drifts past a slippage
// budget. Providers exposing static deposit limits skip probing entirely.
package liquidity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/provider"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

const (
	// ladderFactor spaces the probe amounts geometrically above the
	// baseline reference amount.
	ladderFactor = 4
	ladderSize   = 6

	maxBisections = 10
)

// slippageBudgets are the measured thresholds, in basis points, ascending.
var slippageBudgets = []int32{50, 100}

var bpsScale = decimal.NewFromInt(10000)

// Prober measures LiquidityDepth for one route on one provider client.
type Prober struct {
	logger zerolog.Logger
}

func NewProber(logger zerolog.Logger) *Prober {
	return &Prober{logger: logger}
}

// probe is one quoted amount and its slippage against the baseline rate.
// ok is false when the quote failed; a failed probe counts as a violation.
type probe struct {
	amount      decimal.Decimal
	slippageBps decimal.Decimal
	ok          bool
}

// Measure determines the route's depth thresholds. A provider advertising a
// static deposit ceiling gets its thresholds derived from the ceiling; all
// others are probed. A failed baseline yields empty thresholds, never a
// fabricated one.
func (p *Prober) Measure(ctx context.Context, client provider.Client, route types.Route) (types.LiquidityDepth, error) {
	depth := types.LiquidityDepth{Route: route, MeasuredAt: time.Now().UTC()}

	if limits, ok := client.(provider.StaticLimits); ok {
		if ceiling := limits.DepositCeiling(route); ceiling != "" {
			for _, bps := range slippageBudgets {
				depth.Thresholds = append(depth.Thresholds, types.LiquidityThreshold{
					MaxAmountIn: ceiling,
					SlippageBps: bps,
				})
			}
			return depth, nil
		}
	}

	reference := referenceAmount(route)
	baseline, err := p.quoteRate(ctx, client, route, reference)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("source", route.Source.AssetID).
			Str("destination", route.Destination.AssetID).
			Msg("Baseline quote failed, emitting empty thresholds")
		return depth, nil
	}
	if baseline.IsZero() {
		return depth, nil
	}

	probes := p.runLadder(ctx, client, route, reference, baseline)

	for _, bps := range slippageBudgets {
		if max, ok := p.refine(ctx, client, route, baseline, probes, bps); ok {
			depth.Thresholds = append(depth.Thresholds, types.LiquidityThreshold{
				MaxAmountIn: max.String(),
				SlippageBps: bps,
			})
		}
	}

	enforceMonotonic(depth.Thresholds)
	return depth, nil
}

// runLadder quotes the geometric amount ladder concurrently and returns the
// probes in ascending amount order.
func (p *Prober) runLadder(ctx context.Context, client provider.Client, route types.Route, reference, baseline decimal.Decimal) []probe {
	factor := decimal.NewFromInt(ladderFactor)
	amounts := make([]decimal.Decimal, ladderSize)
	amount := reference
	for i := range amounts {
		amount = amount.Mul(factor)
		amounts[i] = amount
	}

	probes := make([]probe, ladderSize)
	var mu sync.Mutex
	var g errgroup.Group
	for i, amt := range amounts {
		g.Go(func() error {
			rate, err := p.quoteRate(ctx, client, route, amt)
			result := probe{amount: amt}
			if err == nil && !rate.IsZero() {
				result.ok = true
				result.slippageBps = slippage(rate, baseline)
			}
			mu.Lock()
			probes[i] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return probes
}

// refine finds the largest amount within the bps budget. The last satisfying
// ladder probe is accepted as-is when it is the final rung; otherwise the
// satisfying/violating bracket is bisected, with failed or converged
// midpoints pulling the upper bound down.
func (p *Prober) refine(ctx context.Context, client provider.Client, route types.Route, baseline decimal.Decimal, probes []probe, bps int32) (decimal.Decimal, bool) {
	budget := decimal.NewFromInt(int64(bps))

	lastSat := -1
	for i, pr := range probes {
		if pr.ok && pr.slippageBps.LessThanOrEqual(budget) {
			lastSat = i
		}
	}
	if lastSat == -1 {
		return decimal.Decimal{}, false
	}
	if lastSat == len(probes)-1 {
		return probes[lastSat].amount, true
	}

	lo := probes[lastSat].amount
	hi := probes[lastSat+1].amount

	for i := 0; i < maxBisections; i++ {
		mid := lo.Add(hi).Div(decimal.NewFromInt(2)).Floor()
		if mid.LessThanOrEqual(lo) || mid.GreaterThanOrEqual(hi) {
			break
		}

		rate, err := p.quoteRate(ctx, client, route, mid)
		if err != nil || rate.IsZero() {
			hi = mid
			continue
		}
		if slippage(rate, baseline).LessThanOrEqual(budget) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo, true
}

// quoteRate fetches a single quote and returns the decimals-normalized rate
// amountOut/amountIn.
func (p *Prober) quoteRate(ctx context.Context, client provider.Client, route types.Route, amount decimal.Decimal) (decimal.Decimal, error) {
	quotes, err := client.GetRates(ctx, []types.Route{route}, []string{amount.String()})
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(quotes) == 0 {
		return decimal.Decimal{}, fmt.Errorf("no quote for amount %s", amount)
	}

	q := quotes[0]
	in, err := decimal.NewFromString(q.AmountIn)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount_in %q: %w", q.AmountIn, err)
	}
	out, err := decimal.NewFromString(q.AmountOut)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse amount_out %q: %w", q.AmountOut, err)
	}
	if in.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("quote has zero amount_in")
	}

	normalizedIn := in.Shift(-route.Source.Decimals)
	normalizedOut := out.Shift(-route.Destination.Decimals)
	return normalizedOut.Div(normalizedIn), nil
}

// referenceAmount is one whole unit of the source asset in smallest units.
func referenceAmount(route types.Route) decimal.Decimal {
	return decimal.New(1, route.Source.Decimals)
}

// slippage is |rate/baseline - 1| in basis points.
func slippage(rate, baseline decimal.Decimal) decimal.Decimal {
	return rate.Div(baseline).Sub(decimal.NewFromInt(1)).Abs().Mul(bpsScale)
}

// enforceMonotonic clamps tighter budgets down so a 50 bps amount never
// exceeds the 100 bps one.
func enforceMonotonic(thresholds []types.LiquidityThreshold) {
	sort.Slice(thresholds, func(i, j int) bool {
		return thresholds[i].SlippageBps < thresholds[j].SlippageBps
	})
	for i := len(thresholds) - 2; i >= 0; i-- {
		cur, err := decimal.NewFromString(thresholds[i].MaxAmountIn)
		if err != nil {
			continue
		}
		next, err := decimal.NewFromString(thresholds[i+1].MaxAmountIn)
		if err != nil {
			continue
		}
		if cur.GreaterThan(next) {
			thresholds[i].MaxAmountIn = thresholds[i+1].MaxAmountIn
		}
	}
}
