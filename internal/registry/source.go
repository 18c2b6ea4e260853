// Package registry resolves asset metadata through an ordered cascade of
// sources: the local persistent store first, then remote registries, each
// remote wrapped with rate limiting, positive/negative caching, and
// rate-limit backoff.
package registry

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
)

// ErrNotFound means a source has no match for the criteria. The cascade
// moves on; the resolver falls back. Never surfaced as a hard error.
var ErrNotFound = errors.New("registry: no match")

// ErrRateLimited is returned by a raw remote source when the upstream
// signals throttling (HTTP 429). The wrapper turns it into backoff.
var ErrRateLimited = errors.New("registry: rate limited")

// Criteria is a metadata lookup request. Any subset of fields may be set.
type Criteria struct {
	AssetID    string
	Blockchain string
	Reference  string
	Symbol     string
}

// Key returns the normalized cache key for the criteria.
func (c Criteria) Key() string {
	return strings.ToLower(strings.Join([]string{c.AssetID, c.Blockchain, c.Reference, c.Symbol}, "|"))
}

// Metadata is what a source knows about an asset. Decimals of 0 means the
// source does not know the decimals; such a result does not stop the
// cascade.
type Metadata struct {
	Symbol   string
	Name     string
	Decimals int32
	IconURL  string
}

// Resolved reports whether the metadata is complete enough to stop the
// cascade: a symbol plus a decimals value other than the unknown sentinel.
func (m Metadata) Resolved() bool {
	return m.Symbol != "" && m.Decimals != 0
}

// Source is one metadata provider in the cascade.
type Source interface {
	// Name identifies the source in logs and Asset.Source attribution.
	Name() string
	// Lookup resolves metadata for the criteria or returns ErrNotFound.
	Lookup(ctx context.Context, criteria Criteria) (Metadata, error)
	// Sync bulk-refreshes whatever the source caches and returns the
	// number of entries refreshed.
	Sync(ctx context.Context) (int, error)
}

// Cascade tries sources in priority order until one resolves.
type Cascade struct {
	sources []Source
	logger  zerolog.Logger
}

// NewCascade builds a cascade. Order is priority order: index 0 is tried
// first. Adding a registry is appending to this list.
func NewCascade(logger zerolog.Logger, sources ...Source) *Cascade {
	return &Cascade{sources: sources, logger: logger}
}

// Lookup returns the first resolved metadata together with the name of the
// source that produced it. Lower-priority sources are not queried once a
// source resolves. Source errors other than ErrNotFound are logged and
// treated as a miss for that source.
func (c *Cascade) Lookup(ctx context.Context, criteria Criteria) (Metadata, string, error) {
	for _, src := range c.sources {
		meta, err := src.Lookup(ctx, criteria)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				c.logger.Warn().
					Err(err).
					Str("source", src.Name()).
					Str("criteria", criteria.Key()).
					Msg("Registry source lookup failed, trying next source")
			}
			continue
		}
		if meta.Resolved() {
			return meta, src.Name(), nil
		}
		// Partial metadata (missing symbol or unknown decimals) is not a
		// terminal result; keep cascading.
	}
	return Metadata{}, "", ErrNotFound
}

// Sync refreshes every source, tolerating individual failures. Returns the
// total refreshed count and the first error encountered, if any.
func (c *Cascade) Sync(ctx context.Context) (int, error) {
	var total int
	var firstErr error
	for _, src := range c.sources {
		n, err := src.Sync(ctx)
		if err != nil {
			c.logger.Error().
				Err(err).
				Str("source", src.Name()).
				Msg("Registry source sync failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}
	return total, firstErr
}

// Sources returns the configured source names in priority order.
func (c *Cascade) Sources() []string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return names
}
