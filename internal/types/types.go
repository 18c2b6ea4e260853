// Package types holds the domain model shared by every layer: canonical
// asset identities, enriched assets, routes, and the quote/liquidity/volume
// shapes returned by provider clients.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetDescriptor is a partial, caller-supplied reference to an asset.
// Any field except Blockchain may be empty.
type AssetDescriptor struct {
	Blockchain string `json:"blockchain"`
	ChainID    string `json:"chain_id,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	Reference  string `json:"reference,omitempty"`
	Symbol     string `json:"symbol,omitempty"`
	Decimals   int32  `json:"decimals,omitempty"`
}

// CanonicalIdentity is the decoded form of a canonical asset id.
// Blockchain is always lower-cased; Reference is lower-cased for
// address-like values.
type CanonicalIdentity struct {
	AssetID    string `json:"asset_id"`
	Blockchain string `json:"blockchain"`
	Namespace  string `json:"namespace"`
	Reference  string `json:"reference"`
	Selector   string `json:"selector,omitempty"`
}

// Asset is a fully enriched canonical asset. Decimals of 0 means "unknown"
// and is never a valid resolved value; resolution must not terminate
// successfully on it.
type Asset struct {
	CanonicalIdentity
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals int32  `json:"decimals"`
	IconURL  string `json:"icon_url,omitempty"`
	ChainID  string `json:"chain_id,omitempty"`
	Source   string `json:"source"`
	Verified bool   `json:"verified"`
}

// Route is a (source, destination) asset pair. Immutable once constructed
// for a single aggregation call.
type Route struct {
	Source      Asset `json:"source"`
	Destination Asset `json:"destination"`
}

// RateQuote is a provider-quoted swap rate for a route. AmountIn/AmountOut
// are arbitrary-precision integer strings in smallest units.
type RateQuote struct {
	Source        string    `json:"source"`
	Destination   string    `json:"destination"`
	AmountIn      string    `json:"amount_in"`
	AmountOut     string    `json:"amount_out"`
	EffectiveRate float64   `json:"effective_rate"`
	QuotedAt      time.Time `json:"quoted_at"`
}

// LiquidityThreshold is the maximum input amount that keeps slippage within
// SlippageBps of the baseline rate.
type LiquidityThreshold struct {
	MaxAmountIn string `json:"max_amount_in"`
	SlippageBps int32  `json:"slippage_bps"`
}

// LiquidityDepth is the measured depth for one route on one provider.
// Thresholds are monotonic: the 50bps amount never exceeds the 100bps one.
type LiquidityDepth struct {
	Route      Route                `json:"route"`
	Thresholds []LiquidityThreshold `json:"thresholds"`
	MeasuredAt time.Time            `json:"measured_at"`
}

// DateRange is a half-open [From, To) window over wall-clock days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range. A zero From or To
// leaves that side unbounded.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// VolumeWindow is one day of traded volume reported by a provider.
type VolumeWindow struct {
	Date      time.Time       `json:"date"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// VolumeBucket is an aggregated volume bucket keyed by an ISO date string:
// the day itself for daily granularity, the Monday of the ISO week for
// weekly, the first of the month for monthly.
type VolumeBucket struct {
	Key       string          `json:"key"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// SyncState is the coordinator state machine: idle -> running -> {idle, error}.
type SyncState string

const (
	SyncIdle    SyncState = "idle"
	SyncRunning SyncState = "running"
	SyncError   SyncState = "error"
)

// SyncStatus is the persisted state of one sync domain (e.g. "assets").
type SyncStatus struct {
	Domain        string     `json:"domain"`
	State         SyncState  `json:"state"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastErrorAt   *time.Time `json:"last_error_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}
