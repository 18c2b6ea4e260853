package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// coinGeckoPlatforms maps canonical blockchain names to CoinGecko asset
// platform ids for contract lookups.
var coinGeckoPlatforms = map[string]string{
	"eth":       "ethereum",
	"ethereum":  "ethereum",
	"arbitrum":  "arbitrum-one",
	"optimism":  "optimistic-ethereum",
	"base":      "base",
	"polygon":   "polygon-pos",
	"bsc":       "binance-smart-chain",
	"avalanche": "avalanche",
	"gnosis":    "xdai",
	"solana":    "solana",
	"near":      "near-protocol",
	"ton":       "the-open-network",
	"tron":      "tron",
}

// CoinGeckoSource resolves asset metadata from the CoinGecko API. Contract
// lookups hit /coins/{platform}/contract/{address}; symbol lookups are
// served from the market index built by Sync.
type CoinGeckoSource struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu       sync.RWMutex
	bySymbol map[string]Metadata
}

// NewCoinGeckoSource creates the raw source. Wrap it with NewRemoteSource
// before handing it to the cascade.
func NewCoinGeckoSource(baseURL, apiKey string) *CoinGeckoSource {
	return &CoinGeckoSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		bySymbol: make(map[string]Metadata),
	}
}

// Name implements Source.
func (c *CoinGeckoSource) Name() string { return "coingecko" }

// Lookup implements Source.
func (c *CoinGeckoSource) Lookup(ctx context.Context, criteria Criteria) (Metadata, error) {
	if criteria.Blockchain != "" && criteria.Reference != "" && criteria.Reference != "coin" {
		platform, ok := coinGeckoPlatforms[criteria.Blockchain]
		if !ok {
			return Metadata{}, ErrNotFound
		}
		return c.lookupContract(ctx, platform, criteria.Reference)
	}
	if criteria.Symbol != "" {
		c.mu.RLock()
		meta, ok := c.bySymbol[strings.ToLower(criteria.Symbol)]
		c.mu.RUnlock()
		if ok {
			return meta, nil
		}
	}
	return Metadata{}, ErrNotFound
}

func (c *CoinGeckoSource) lookupContract(ctx context.Context, platform, address string) (Metadata, error) {
	endpoint := fmt.Sprintf("%s/coins/%s/contract/%s", c.baseURL, platform, url.PathEscape(address))

	var payload struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Image  struct {
			Large string `json:"large"`
		} `json:"image"`
		DetailPlatforms map[string]struct {
			Decimals int32 `json:"decimal_place"`
		} `json:"detail_platforms"`
	}

	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return Metadata{}, err
	}

	meta := Metadata{
		Symbol:  strings.ToUpper(payload.Symbol),
		Name:    payload.Name,
		IconURL: payload.Image.Large,
	}
	if dp, ok := payload.DetailPlatforms[platform]; ok {
		meta.Decimals = dp.Decimals
	}
	return meta, nil
}

// Sync fetches the top markets by cap into the in-memory symbol index.
func (c *CoinGeckoSource) Sync(ctx context.Context) (int, error) {
	log.Debug().Msg("Refreshing CoinGecko market index")

	endpoint := fmt.Sprintf("%s/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=250&page=1&sparkline=false", c.baseURL)

	var markets []struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Image  string `json:"image"`
	}
	if err := c.getJSON(ctx, endpoint, &markets); err != nil {
		return 0, err
	}

	index := make(map[string]Metadata, len(markets))
	for _, m := range markets {
		sym := strings.ToLower(m.Symbol)
		if _, seen := index[sym]; seen {
			// First entry wins: markets are cap-ordered, and the largest
			// asset is the right match for a bare-symbol lookup.
			continue
		}
		index[sym] = Metadata{
			Symbol:  strings.ToUpper(m.Symbol),
			Name:    m.Name,
			IconURL: m.Image,
		}
	}

	c.mu.Lock()
	c.bySymbol = index
	c.mu.Unlock()

	log.Info().Int("count", len(index)).Msg("Refreshed CoinGecko market index")
	return len(index), nil
}

func (c *CoinGeckoSource) getJSON(ctx context.Context, endpoint string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusNotFound:
		return ErrNotFound
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
