package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// backoffLadder is the escalation sequence applied on repeated upstream 429
// signals, capped at the final value. A successful non-429 call resets it.
var backoffLadder = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

// RemoteConfig tunes the wrapper around one remote registry.
type RemoteConfig struct {
	// LookupsPerWindow admits at most this many lookups per Window.
	LookupsPerWindow int
	Window           time.Duration
	// PositiveTTL caches successful lookups (hours to days, by volatility).
	PositiveTTL time.Duration
	// NegativeTTL caches "source had no match" (shorter, ~1h).
	NegativeTTL time.Duration
}

// DefaultRemoteConfig is a conservative baseline for public registries.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		LookupsPerWindow: 30,
		Window:           time.Minute,
		PositiveTTL:      12 * time.Hour,
		NegativeTTL:      time.Hour,
	}
}

// RemoteSource wraps a raw remote Source with rate limiting, a positive
// cache, a negative cache, and 429 backoff. It satisfies Source itself so
// the cascade treats wrapped and unwrapped sources alike.
type RemoteSource struct {
	inner    Source
	limiter  *rate.Limiter
	positive *Cache[string, Metadata]
	negative *Cache[string, time.Time]
	logger   zerolog.Logger

	mu           sync.Mutex
	backoffUntil time.Time
	backoffLevel int
}

// NewRemoteSource wraps inner with the given limits and cache TTLs.
func NewRemoteSource(inner Source, cfg RemoteConfig, logger zerolog.Logger) *RemoteSource {
	defaults := DefaultRemoteConfig()
	if cfg.LookupsPerWindow <= 0 {
		cfg.LookupsPerWindow = defaults.LookupsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.PositiveTTL <= 0 {
		cfg.PositiveTTL = defaults.PositiveTTL
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = defaults.NegativeTTL
	}
	interval := cfg.Window / time.Duration(cfg.LookupsPerWindow)
	return &RemoteSource{
		inner:    inner,
		limiter:  rate.NewLimiter(rate.Every(interval), cfg.LookupsPerWindow),
		positive: NewCache[string, Metadata](cfg.PositiveTTL),
		negative: NewCache[string, time.Time](cfg.NegativeTTL),
		logger:   logger.With().Str("source", inner.Name()).Logger(),
	}
}

// Name returns the wrapped source's name.
func (s *RemoteSource) Name() string { return s.inner.Name() }

// Lookup serves from cache when possible, short-circuits to ErrNotFound
// while backing off, and otherwise rate-limits through to the raw source.
func (s *RemoteSource) Lookup(ctx context.Context, criteria Criteria) (Metadata, error) {
	key := criteria.Key()

	if meta, ok := s.positive.Get(key); ok {
		return meta, nil
	}
	if _, ok := s.negative.Get(key); ok {
		return Metadata{}, ErrNotFound
	}
	if s.inBackoff() {
		return Metadata{}, ErrNotFound
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return Metadata{}, err
	}

	meta, err := s.inner.Lookup(ctx, criteria)
	switch {
	case errors.Is(err, ErrRateLimited):
		until := s.escalateBackoff()
		s.logger.Warn().
			Time("backoff_until", until).
			Str("criteria", key).
			Msg("Registry source throttled, entering backoff")
		return Metadata{}, ErrNotFound
	case errors.Is(err, ErrNotFound):
		s.resetBackoff()
		s.negative.Set(key, time.Now())
		return Metadata{}, ErrNotFound
	case err != nil:
		return Metadata{}, err
	}

	s.resetBackoff()
	s.positive.Set(key, meta)
	return meta, nil
}

// Sync refreshes the raw source. Bulk refreshes bypass the lookup caches
// but still honor backoff so a throttled upstream is not hammered.
func (s *RemoteSource) Sync(ctx context.Context) (int, error) {
	if s.inBackoff() {
		return 0, ErrRateLimited
	}
	n, err := s.inner.Sync(ctx)
	if errors.Is(err, ErrRateLimited) {
		s.escalateBackoff()
		return 0, err
	}
	if err == nil {
		s.resetBackoff()
	}
	return n, err
}

func (s *RemoteSource) inBackoff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.backoffUntil)
}

// escalateBackoff advances one step up the ladder and returns the new
// deadline.
func (s *RemoteSource) escalateBackoff() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := backoffLadder[s.backoffLevel]
	if s.backoffLevel < len(backoffLadder)-1 {
		s.backoffLevel++
	}
	s.backoffUntil = time.Now().Add(d)
	return s.backoffUntil
}

func (s *RemoteSource) resetBackoff() {
	s.mu.Lock()
	s.backoffLevel = 0
	s.backoffUntil = time.Time{}
	s.mu.Unlock()
}
