// Package provider defines the fixed set of bridge/aggregator identifiers,
// the client contract the core consumes, and the startup-populated registry
// that maps one to the other.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

// ID identifies one bridge or swap aggregator. The set is closed: new
// providers are added here, not invented at runtime.
type ID string

const (
	Across     ID = "across"
	Allbridge  ID = "allbridge"
	Axelar     ID = "axelar"
	Bungee     ID = "bungee"
	Celer      ID = "celer"
	Chainflip  ID = "chainflip"
	Connext    ID = "connext"
	DeBridge   ID = "debridge"
	Hop        ID = "hop"
	Jumper     ID = "jumper"
	LiFi       ID = "lifi"
	Mayan      ID = "mayan"
	Meson      ID = "meson"
	Multichain ID = "multichain"
	OmniBridge ID = "omnibridge"
	Orbiter    ID = "orbiter"
	Owlto      ID = "owlto"
	Rango      ID = "rango"
	RouterProt ID = "router"
	Socket     ID = "socket"
	Squid      ID = "squid"
	Stargate   ID = "stargate"
	Symbiosis  ID = "symbiosis"
	Synapse    ID = "synapse"
	Thorchain  ID = "thorchain"
	Wormhole   ID = "wormhole"
)

var all = []ID{
	Across, Allbridge, Axelar, Bungee, Celer, Chainflip, Connext, DeBridge,
	Hop, Jumper, LiFi, Mayan, Meson, Multichain, OmniBridge, Orbiter, Owlto,
	Rango, RouterProt, Socket, Squid, Stargate, Symbiosis, Synapse,
	Thorchain, Wormhole,
}

// All returns every known provider identifier in stable order.
func All() []ID {
	out := make([]ID, len(all))
	copy(out, all)
	return out
}

// Parse converts a string to a known ID, case-insensitively.
func Parse(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range all {
		if id == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown provider: %q", s)
}

// Client is the per-provider data contract. Every implementation is a black
// box that may fail or be slow; callers impose per-call timeouts and treat
// any error as "this provider has no data right now".
type Client interface {
	// GetListedAssets returns the assets the provider can bridge or swap.
	GetListedAssets(ctx context.Context) ([]types.Asset, error)
	// GetRates quotes each route at the matching notional input amount.
	GetRates(ctx context.Context, routes []types.Route, notionals []string) ([]types.RateQuote, error)
	// GetLiquidity reports liquidity depth for each route.
	GetLiquidity(ctx context.Context, routes []types.Route) ([]types.LiquidityDepth, error)
	// GetVolumes reports daily traded volume inside the range.
	GetVolumes(ctx context.Context, window types.DateRange) ([]types.VolumeWindow, error)
}

// StaticLimits is implemented by providers that expose a protocol-level
// deposit ceiling instead of a quotable amount curve. The liquidity prober
// derives thresholds from the ceiling rather than probing such providers.
type StaticLimits interface {
	// DepositCeiling returns the maximum accepted input amount for the
	// route in smallest units, or "" when no ceiling applies.
	DepositCeiling(route types.Route) string
}

// Registry is a fixed-size table of provider clients keyed by ID,
// populated once at startup.
type Registry struct {
	clients map[ID]Client
}

// NewRegistry builds a registry from the given clients. Unknown ids are
// rejected so a typo cannot silently create an orphan entry.
func NewRegistry(clients map[ID]Client) (*Registry, error) {
	reg := &Registry{clients: make(map[ID]Client, len(clients))}
	for id, c := range clients {
		if _, err := Parse(string(id)); err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("nil client for provider %s", id)
		}
		reg.clients[id] = c
	}
	return reg, nil
}

// Get returns the client for id, with an explicit presence check.
func (r *Registry) Get(id ID) (Client, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Available returns the registered provider ids in stable order.
func (r *Registry) Available() []ID {
	out := make([]ID, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Resolve narrows a requested provider list to those actually registered.
// An empty request means "all available".
func (r *Registry) Resolve(requested []ID) []ID {
	if len(requested) == 0 {
		return r.Available()
	}
	out := make([]ID, 0, len(requested))
	for _, id := range requested {
		if _, ok := r.clients[id]; ok {
			out = append(out, id)
		}
	}
	return out
}
