package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is a scriptable cascade source that counts lookups.
type fakeSource struct {
	name        string
	meta        Metadata
	err         error
	lookupCalls int
	syncCalls   int
	syncCount   int
	syncErr     error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Lookup(ctx context.Context, criteria Criteria) (Metadata, error) {
	f.lookupCalls++
	if f.err != nil {
		return Metadata{}, f.err
	}
	return f.meta, nil
}

func (f *fakeSource) Sync(ctx context.Context) (int, error) {
	f.syncCalls++
	return f.syncCount, f.syncErr
}

func testCriteria() Criteria {
	return Criteria{Blockchain: "eth", Reference: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"}
}

func TestCascadeShortCircuit(t *testing.T) {
	first := &fakeSource{name: "store", meta: Metadata{Symbol: "USDC", Decimals: 6}}
	second := &fakeSource{name: "coingecko", meta: Metadata{Symbol: "USDC", Decimals: 6}}

	cascade := NewCascade(zerolog.Nop(), first, second)

	meta, source, err := cascade.Lookup(context.Background(), testCriteria())
	require.NoError(t, err)
	assert.Equal(t, "USDC", meta.Symbol)
	assert.Equal(t, "store", source)

	// Once the higher-priority source resolves, lower-priority sources
	// must not be queried.
	assert.Equal(t, 1, first.lookupCalls)
	assert.Equal(t, 0, second.lookupCalls)
}

func TestCascadeSkipsUnknownDecimals(t *testing.T) {
	// Decimals 0 is the unknown sentinel: a source returning it must not
	// terminate the cascade.
	partial := &fakeSource{name: "partial", meta: Metadata{Symbol: "USDC", Decimals: 0}}
	complete := &fakeSource{name: "complete", meta: Metadata{Symbol: "USDC", Decimals: 6}}

	cascade := NewCascade(zerolog.Nop(), partial, complete)

	meta, source, err := cascade.Lookup(context.Background(), testCriteria())
	require.NoError(t, err)
	assert.Equal(t, "complete", source)
	assert.Equal(t, int32(6), meta.Decimals)
	assert.Equal(t, 1, partial.lookupCalls)
}

func TestCascadeContinuesPastFailures(t *testing.T) {
	broken := &fakeSource{name: "broken", err: errors.New("connection refused")}
	missing := &fakeSource{name: "missing", err: ErrNotFound}
	good := &fakeSource{name: "good", meta: Metadata{Symbol: "WETH", Decimals: 18}}

	cascade := NewCascade(zerolog.Nop(), broken, missing, good)

	meta, source, err := cascade.Lookup(context.Background(), testCriteria())
	require.NoError(t, err)
	assert.Equal(t, "good", source)
	assert.Equal(t, "WETH", meta.Symbol)
}

func TestCascadeNotFound(t *testing.T) {
	cascade := NewCascade(zerolog.Nop(), &fakeSource{name: "a", err: ErrNotFound})

	_, _, err := cascade.Lookup(context.Background(), testCriteria())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCascadeSyncToleratesFailures(t *testing.T) {
	ok := &fakeSource{name: "ok", syncCount: 100}
	bad := &fakeSource{name: "bad", syncErr: errors.New("boom")}
	alsoOK := &fakeSource{name: "also-ok", syncCount: 50}

	cascade := NewCascade(zerolog.Nop(), ok, bad, alsoOK)

	total, err := cascade.Sync(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 150, total)
	assert.Equal(t, 1, alsoOK.syncCalls)
}

func remoteConfigForTest() RemoteConfig {
	return RemoteConfig{
		LookupsPerWindow: 1000,
		Window:           time.Second,
		PositiveTTL:      time.Minute,
		NegativeTTL:      time.Minute,
	}
}

func TestRemoteSourcePositiveCache(t *testing.T) {
	inner := &fakeSource{name: "remote", meta: Metadata{Symbol: "USDT", Decimals: 6}}
	src := NewRemoteSource(inner, remoteConfigForTest(), zerolog.Nop())

	for i := 0; i < 3; i++ {
		meta, err := src.Lookup(context.Background(), testCriteria())
		require.NoError(t, err)
		assert.Equal(t, "USDT", meta.Symbol)
	}
	assert.Equal(t, 1, inner.lookupCalls, "repeat lookups must be served from cache")
}

func TestRemoteSourceZeroConfigDefaultsTTLs(t *testing.T) {
	// A zero-value config must not come up with TTL 0 caches, which would
	// pass every lookup through to the upstream.
	inner := &fakeSource{name: "remote", meta: Metadata{Symbol: "DAI", Decimals: 18}}
	src := NewRemoteSource(inner, RemoteConfig{}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := src.Lookup(context.Background(), testCriteria())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, inner.lookupCalls, "positive cache must hold with defaulted TTLs")

	miss := &fakeSource{name: "remote", err: ErrNotFound}
	src = NewRemoteSource(miss, RemoteConfig{}, zerolog.Nop())
	for i := 0; i < 3; i++ {
		_, err := src.Lookup(context.Background(), Criteria{Symbol: "nope"})
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, miss.lookupCalls, "negative cache must hold with defaulted TTLs")
}

func TestRemoteSourceNegativeCache(t *testing.T) {
	inner := &fakeSource{name: "remote", err: ErrNotFound}
	src := NewRemoteSource(inner, remoteConfigForTest(), zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := src.Lookup(context.Background(), testCriteria())
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, inner.lookupCalls, "repeated misses must be absorbed by the negative cache")
}

func TestRemoteSourceBackoffOn429(t *testing.T) {
	inner := &fakeSource{name: "remote", err: ErrRateLimited}
	src := NewRemoteSource(inner, remoteConfigForTest(), zerolog.Nop())

	_, err := src.Lookup(context.Background(), testCriteria())
	assert.ErrorIs(t, err, ErrNotFound, "rate limiting is NotFound to the caller")
	assert.Equal(t, 1, inner.lookupCalls)

	// While backing off, lookups short-circuit without touching the source.
	_, err = src.Lookup(context.Background(), Criteria{Symbol: "eth"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, inner.lookupCalls)

	// Sync is short-circuited too, and reports the throttle to its caller.
	_, err = src.Sync(context.Background())
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 0, inner.syncCalls)
}

func TestRemoteSourceBackoffEscalatesAndResets(t *testing.T) {
	inner := &fakeSource{name: "remote"}
	src := NewRemoteSource(inner, remoteConfigForTest(), zerolog.Nop())

	// Walk the whole ladder and past its end: the level caps at the last
	// rung instead of running off the slice.
	for i := 0; i < len(backoffLadder)+2; i++ {
		src.escalateBackoff()
	}
	assert.Equal(t, len(backoffLadder)-1, src.backoffLevel)
	assert.True(t, src.inBackoff())

	src.resetBackoff()
	assert.Equal(t, 0, src.backoffLevel)
	assert.False(t, src.inBackoff())
}

func TestRemoteSourceSuccessResetsBackoffLevel(t *testing.T) {
	inner := &fakeSource{name: "remote", err: ErrRateLimited}
	src := NewRemoteSource(inner, remoteConfigForTest(), zerolog.Nop())

	_, _ = src.Lookup(context.Background(), testCriteria())
	assert.Equal(t, 1, src.backoffLevel)

	// Window elapses, next call succeeds: ladder resets to the bottom.
	src.resetBackoff()
	inner.err = nil
	inner.meta = Metadata{Symbol: "ETH", Decimals: 18}
	_, err := src.Lookup(context.Background(), Criteria{Symbol: "eth2"})
	require.NoError(t, err)
	assert.Equal(t, 0, src.backoffLevel)
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache[string, int](20 * time.Millisecond)
	cache.Set("k", 42)

	v, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	time.Sleep(30 * time.Millisecond)
	_, ok = cache.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Purge())
}

func TestCacheGetOrLoad(t *testing.T) {
	cache := NewCache[string, string](time.Minute)
	calls := 0
	load := func() (string, error) {
		calls++
		return "loaded", nil
	}

	for i := 0; i < 3; i++ {
		v, err := cache.GetOrLoad("key", load)
		require.NoError(t, err)
		assert.Equal(t, "loaded", v)
	}
	assert.Equal(t, 1, calls)

	_, err := cache.GetOrLoad("other", func() (string, error) {
		return "", errors.New("load failed")
	})
	assert.Error(t, err)
	_, ok := cache.Get("other")
	assert.False(t, ok, "failed loads must not be cached")
}

func TestCriteriaKeyNormalization(t *testing.T) {
	a := Criteria{Blockchain: "ETH", Reference: "0xABC", Symbol: "Usdc"}
	b := Criteria{Blockchain: "eth", Reference: "0xabc", Symbol: "usdc"}
	assert.Equal(t, a.Key(), b.Key())
}
