package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// tokenListChains maps the numeric chain ids used by hosted token lists to
// canonical blockchain names.
var tokenListChains = map[int64]string{
	1:      "eth",
	10:     "optimism",
	56:     "bsc",
	100:    "gnosis",
	137:    "polygon",
	8453:   "base",
	42161:  "arbitrum",
	43114:  "avalanche",
	59144:  "linea",
	534352: "scroll",
}

// TokenListSource resolves metadata from a hosted Uniswap-style token list.
// The whole list is fetched by Sync (or lazily on first lookup) and served
// from memory, keyed by blockchain plus lower-cased contract address.
type TokenListSource struct {
	name       string
	listURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	loaded    bool
	byAddress map[string]Metadata
	bySymbol  map[string]Metadata
}

// NewTokenListSource creates the raw source for one token list URL.
func NewTokenListSource(name, listURL string) *TokenListSource {
	return &TokenListSource{
		name:    name,
		listURL: listURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		byAddress: make(map[string]Metadata),
		bySymbol:  make(map[string]Metadata),
	}
}

// Name implements Source.
func (t *TokenListSource) Name() string { return t.name }

// Lookup implements Source.
func (t *TokenListSource) Lookup(ctx context.Context, criteria Criteria) (Metadata, error) {
	t.mu.RLock()
	loaded := t.loaded
	t.mu.RUnlock()

	if !loaded {
		if _, err := t.Sync(ctx); err != nil {
			return Metadata{}, err
		}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if criteria.Blockchain != "" && criteria.Reference != "" {
		if meta, ok := t.byAddress[addressKey(criteria.Blockchain, criteria.Reference)]; ok {
			return meta, nil
		}
	}
	if criteria.Symbol != "" {
		if meta, ok := t.bySymbol[strings.ToLower(criteria.Symbol)]; ok {
			return meta, nil
		}
	}
	return Metadata{}, ErrNotFound
}

// Sync fetches and re-indexes the token list.
func (t *TokenListSource) Sync(ctx context.Context) (int, error) {
	log.Debug().Str("source", t.name).Str("url", t.listURL).Msg("Fetching token list")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.listURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return 0, ErrRateLimited
	default:
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("token list returned status %d: %s", resp.StatusCode, string(body))
	}

	var list struct {
		Tokens []struct {
			ChainID  int64  `json:"chainId"`
			Address  string `json:"address"`
			Symbol   string `json:"symbol"`
			Name     string `json:"name"`
			Decimals int32  `json:"decimals"`
			LogoURI  string `json:"logoURI"`
		} `json:"tokens"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return 0, fmt.Errorf("decode token list: %w", err)
	}

	byAddress := make(map[string]Metadata, len(list.Tokens))
	bySymbol := make(map[string]Metadata, len(list.Tokens))
	for _, tok := range list.Tokens {
		blockchain, ok := tokenListChains[tok.ChainID]
		if !ok {
			continue
		}
		meta := Metadata{
			Symbol:   strings.ToUpper(tok.Symbol),
			Name:     tok.Name,
			Decimals: tok.Decimals,
			IconURL:  tok.LogoURI,
		}
		byAddress[addressKey(blockchain, tok.Address)] = meta
		if _, seen := bySymbol[strings.ToLower(tok.Symbol)]; !seen {
			bySymbol[strings.ToLower(tok.Symbol)] = meta
		}
	}

	t.mu.Lock()
	t.byAddress = byAddress
	t.bySymbol = bySymbol
	t.loaded = true
	t.mu.Unlock()

	log.Info().Str("source", t.name).Int("count", len(byAddress)).Msg("Indexed token list")
	return len(byAddress), nil
}

func addressKey(blockchain, address string) string {
	return strings.ToLower(blockchain) + "/" + strings.ToLower(address)
}
