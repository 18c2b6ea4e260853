// Command bootstrap warms the asset store offline: it refreshes the remote
// registries and optionally enriches a seed file of asset descriptors so the
// service starts with a populated cache.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/config"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/registry"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/repository"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/resolver"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/types"
)

var (
	configPath = flag.String("config", "config.yaml", "path to configuration file")
	seedPath   = flag.String("seed", "", "optional JSON file of asset descriptors to enrich")
	timeout    = flag.Duration("timeout", 10*time.Minute, "overall run timeout")
)

func main() {
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg := config.MustLoad(*configPath, "DASH")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	repo, err := repository.NewPostgresRepository(ctx, cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to store")
	}
	defer repo.Close()

	cascade := buildCascade(cfg, repo)

	log.Info().Msg("Refreshing registry sources")
	synced, err := cascade.Sync(ctx)
	if err != nil {
		log.Warn().Err(err).Int("synced", synced).Msg("Registry refresh finished with errors")
	} else {
		log.Info().Int("synced", synced).Msg("Registry refresh complete")
	}

	if *seedPath != "" {
		if err := enrichSeedFile(ctx, cascade, repo, *seedPath); err != nil {
			log.Fatal().Err(err).Str("path", *seedPath).Msg("Seed enrichment failed")
		}
	}

	log.Info().Msg("Bootstrap complete")
}

func buildCascade(cfg *config.Config, repo repository.Repository) *registry.Cascade {
	cg := cfg.Registry.CoinGecko
	sources := []registry.Source{
		registry.NewStoreSource(repo),
		registry.NewRemoteSource(
			registry.NewCoinGeckoSource(cg.BaseURL, cg.APIKey),
			registry.RemoteConfig{
				LookupsPerWindow: cg.LookupsPerWindow,
				Window:           cg.Window,
				PositiveTTL:      cg.PositiveTTL,
				NegativeTTL:      cg.NegativeTTL,
			},
			log.Logger,
		),
	}
	if url := cfg.Registry.TokenList.URL; url != "" {
		sources = append(sources, registry.NewRemoteSource(
			registry.NewTokenListSource("tokenlist", url),
			registry.DefaultRemoteConfig(),
			log.Logger,
		))
	}
	return registry.NewCascade(log.Logger, sources...)
}

func enrichSeedFile(ctx context.Context, cascade *registry.Cascade, repo repository.Repository, path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var descriptors []types.AssetDescriptor
	if err := json.Unmarshal(payload, &descriptors); err != nil {
		return err
	}

	res := resolver.New(cascade, repo, log.Logger)
	enriched, fallbacks := 0, 0
	for _, d := range descriptors {
		asset, err := res.Enrich(ctx, d)
		if err != nil {
			log.Warn().Err(err).Str("blockchain", d.Blockchain).Str("reference", d.Reference).Msg("Skipping invalid descriptor")
			continue
		}
		if asset.Verified {
			enriched++
		} else {
			fallbacks++
		}
	}
	log.Info().
		Int("descriptors", len(descriptors)).
		Int("enriched", enriched).
		Int("fallbacks", fallbacks).
		Msg("Seed enrichment complete")
	return nil
}
