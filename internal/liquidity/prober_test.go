package liquidity

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// curveClient quotes a constant-product style curve: the effective rate
// degrades linearly with input size, rate(in) = 1 - in/depth.
type curveClient struct {
	depth decimal.Decimal
	fail  bool
}

func (c *curveClient) GetListedAssets(ctx context.Context) ([]types.Asset, error) { return nil, nil }

func (c *curveClient) GetRates(ctx context.Context, routes []types.Route, notionals []string) ([]types.RateQuote, error) {
	if c.fail {
		return nil, errors.New("quote endpoint down")
	}
	out := make([]types.RateQuote, 0, len(routes))
	for i := range routes {
		in, err := decimal.NewFromString(notionals[i])
		if err != nil {
			return nil, err
		}
		rate := decimal.NewFromInt(1).Sub(in.Div(c.depth))
		out = append(out, types.RateQuote{
			AmountIn:  in.String(),
			AmountOut: in.Mul(rate).String(),
		})
	}
	return out, nil
}

func (c *curveClient) GetLiquidity(ctx context.Context, routes []types.Route) ([]types.LiquidityDepth, error) {
	return nil, errors.New("not supported")
}

func (c *curveClient) GetVolumes(ctx context.Context, window types.DateRange) ([]types.VolumeWindow, error) {
	return nil, nil
}

// cappedClient advertises a deposit ceiling instead of a quotable curve.
type cappedClient struct {
	curveClient
	ceiling string
}

func (c *cappedClient) DepositCeiling(route types.Route) string { return c.ceiling }

func testRoute() types.Route {
	mk := func(id string) types.Asset {
		return types.Asset{
			CanonicalIdentity: types.CanonicalIdentity{AssetID: id},
			Decimals:          6,
		}
	}
	return types.Route{Source: mk("v1:eth:erc20:0xusdc"), Destination: mk("v1:eth:erc20:0xusdt")}
}

func thresholdAmount(t *testing.T, depth types.LiquidityDepth, bps int32) decimal.Decimal {
	t.Helper()
	for _, th := range depth.Thresholds {
		if th.SlippageBps == bps {
			amount, err := decimal.NewFromString(th.MaxAmountIn)
			require.NoError(t, err)
			return amount
		}
	}
	t.Fatalf("no %dbps threshold in %+v", bps, depth.Thresholds)
	return decimal.Decimal{}
}

func TestMeasureBaselineFailure(t *testing.T) {
	prober := NewProber(zerolog.Nop())

	depth, err := prober.Measure(context.Background(), &curveClient{fail: true}, testRoute())
	require.NoError(t, err, "a dead provider is empty thresholds, not an error")
	assert.Empty(t, depth.Thresholds)
	assert.False(t, depth.MeasuredAt.IsZero())
}

func TestMeasureBracketsAndRefines(t *testing.T) {
	// depth 2e10 puts both budget boundaries between the 64e6 and 256e6
	// ladder rungs: ~1e8 for 50bps, ~2e8 for 100bps.
	prober := NewProber(zerolog.Nop())
	client := &curveClient{depth: decimal.New(2, 10)}

	depth, err := prober.Measure(context.Background(), client, testRoute())
	require.NoError(t, err)
	require.Len(t, depth.Thresholds, 2)

	t50 := thresholdAmount(t, depth, 50)
	t100 := thresholdAmount(t, depth, 100)

	lastSat := decimal.New(64, 6)
	firstViol := decimal.New(256, 6)
	assert.True(t, t50.GreaterThanOrEqual(lastSat), "refinement must not shrink below the bracket floor")
	assert.True(t, t50.LessThan(firstViol))
	assert.True(t, t100.GreaterThan(t50))

	assert.True(t, t50.LessThanOrEqual(t100), "50bps amount must never exceed the 100bps amount")
}

func TestMeasureAcceptsFinalLadderProbe(t *testing.T) {
	// A pool so deep the last rung still satisfies: accepted directly, no
	// refinement past the ladder.
	prober := NewProber(zerolog.Nop())
	client := &curveClient{depth: decimal.New(1, 16)}

	depth, err := prober.Measure(context.Background(), client, testRoute())
	require.NoError(t, err)
	require.Len(t, depth.Thresholds, 2)

	lastRung := decimal.New(4096, 6)
	assert.True(t, thresholdAmount(t, depth, 50).Equal(lastRung))
	assert.True(t, thresholdAmount(t, depth, 100).Equal(lastRung))
}

func TestMeasureNoSatisfyingProbe(t *testing.T) {
	// Pool so shallow even the first rung blows both budgets: no
	// thresholds are fabricated.
	prober := NewProber(zerolog.Nop())
	client := &curveClient{depth: decimal.New(1, 8)}

	depth, err := prober.Measure(context.Background(), client, testRoute())
	require.NoError(t, err)
	assert.Empty(t, depth.Thresholds)
}

func TestMeasureStaticCeiling(t *testing.T) {
	prober := NewProber(zerolog.Nop())
	client := &cappedClient{ceiling: "750000000"}
	client.fail = true // quoting must never be attempted

	depth, err := prober.Measure(context.Background(), client, testRoute())
	require.NoError(t, err)
	require.Len(t, depth.Thresholds, 2)
	for _, th := range depth.Thresholds {
		assert.Equal(t, "750000000", th.MaxAmountIn)
	}
}

func TestEnforceMonotonic(t *testing.T) {
	thresholds := []types.LiquidityThreshold{
		{MaxAmountIn: "200", SlippageBps: 100},
		{MaxAmountIn: "300", SlippageBps: 50},
	}
	enforceMonotonic(thresholds)

	assert.Equal(t, int32(50), thresholds[0].SlippageBps)
	assert.Equal(t, "200", thresholds[0].MaxAmountIn, "tighter budget clamped to the looser one")
	assert.Equal(t, "200", thresholds[1].MaxAmountIn)
}
