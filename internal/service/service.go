// Package service wires every component together and owns the process
// lifecycle: connect, serve, and shut down in reverse order.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/aggregator"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/config"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/liquidity"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/manager"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/provider"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/registry"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/repository"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/resolver"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/server"
)

// Service manages the lifecycle of all components: store, cache, event bus,
// registries, resolver, aggregator, sync manager, and the HTTP server.
type Service struct {
	cfg     *config.Config
	logger  zerolog.Logger
	clients map[provider.ID]provider.Client

	repo     repository.Repository
	rdb      *redis.Client
	natsConn *nats.Conn
	syncMgr  *manager.SyncManager

	httpCancel context.CancelFunc
	httpDone   chan error
}

// New creates a new Service. clients is the startup-populated provider
// table; the core never discovers providers at runtime.
func New(cfg *config.Config, logger zerolog.Logger, clients map[provider.ID]provider.Client) *Service {
	return &Service{
		cfg:     cfg,
		logger:  logger,
		clients: clients,
	}
}

// Start initializes all components and starts the HTTP server.
// Initialization order:
// 1. Postgres store
// 2. Redis cache decorator
// 3. NATS event bus
// 4. Registry cascade and resolver
// 5. Provider registry, prober, aggregator
// 6. Sync manager
// 7. HTTP server
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info().Msg("Initializing service components")

	if err := s.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := s.initEventBus(); err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}

	cascade := s.buildCascade()
	res := resolver.New(cascade, s.repo, s.logger)

	reg, err := provider.NewRegistry(s.clients)
	if err != nil {
		return fmt.Errorf("invalid provider table: %w", err)
	}
	prober := liquidity.NewProber(s.logger)
	agg := aggregator.New(reg, res, prober, s.cfg.Aggregator.ProviderTimeout, s.logger)

	events := manager.NewEventPublisher(s.natsConn, s.logger)
	s.syncMgr = manager.NewSyncManager(cascade, agg, s.repo, events, s.logger)

	srv := server.New(agg, res, s.syncMgr, s.repo, s.logger)
	addr := fmt.Sprintf(":%d", s.cfg.Server.HTTPPort)

	httpCtx, cancel := context.WithCancel(context.Background())
	s.httpCancel = cancel
	s.httpDone = make(chan error, 1)
	go func() {
		s.httpDone <- srv.ListenAndServe(httpCtx, addr,
			s.cfg.Server.ReadTimeout,
			s.cfg.Server.WriteTimeout,
			s.cfg.Server.ShutdownTimeout)
	}()

	s.logger.Info().
		Int("http_port", s.cfg.Server.HTTPPort).
		Int("providers", len(s.clients)).
		Msg("Service started")
	return nil
}

// Stop shuts components down in reverse order of initialization.
func (s *Service) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down service")

	if s.httpCancel != nil {
		s.httpCancel()
		select {
		case err := <-s.httpDone:
			if err != nil {
				s.logger.Error().Err(err).Msg("HTTP server shutdown failed")
			}
		case <-ctx.Done():
			s.logger.Warn().Msg("Timed out waiting for HTTP server shutdown")
		}
	}

	if s.natsConn != nil {
		if err := s.natsConn.Drain(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to drain event bus")
		} else {
			s.logger.Info().Msg("Event bus drained")
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to close redis client")
		}
	}

	if s.repo != nil {
		s.repo.Close()
		s.logger.Info().Msg("Store closed")
	}

	s.logger.Info().Msg("Service stopped")
	return nil
}

// Name returns the service name for identification.
func (s *Service) Name() string {
	return s.cfg.Service.Name
}

// Health checks store connectivity.
func (s *Service) Health() error {
	if s.repo == nil {
		return fmt.Errorf("store not initialized")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Database.ConnectTimeout)
	defer cancel()
	return s.repo.Ping(ctx)
}

// SyncManager exposes the coordinator so callers can trigger a refresh on
// startup.
func (s *Service) SyncManager() *manager.SyncManager {
	return s.syncMgr
}

func (s *Service) initStore(ctx context.Context) error {
	if s.cfg.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, s.cfg.Database.ConnectTimeout)
	defer cancel()
	repo, err := repository.NewPostgresRepository(connectCtx, s.cfg.Database.DSN)
	if err != nil {
		return err
	}
	s.repo = repo
	s.logger.Info().Msg("Store connection established")

	if s.cfg.Redis.Addr == "" {
		return nil
	}
	s.rdb = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		// The cache is an optimization: a dead redis degrades, not fails.
		s.logger.Warn().Err(err).Str("addr", s.cfg.Redis.Addr).Msg("Redis unreachable, continuing without cache")
		_ = s.rdb.Close()
		s.rdb = nil
		return nil
	}
	s.repo = repository.NewCachedRepository(s.repo, s.rdb, repository.CacheTTLs{
		Asset:      s.cfg.CacheTTL.Asset,
		SyncStatus: s.cfg.CacheTTL.SyncStatus,
	})
	s.logger.Info().Str("addr", s.cfg.Redis.Addr).Msg("Cache layer enabled")
	return nil
}

func (s *Service) initEventBus() error {
	if s.cfg.EventBus.URL == "" {
		s.logger.Info().Msg("Event bus not configured, events disabled")
		return nil
	}
	conn, err := nats.Connect(s.cfg.EventBus.URL,
		nats.Name(s.cfg.Service.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to event bus: %w", err)
	}
	s.natsConn = conn
	s.logger.Info().Str("url", s.cfg.EventBus.URL).Msg("Event bus connection established")
	return nil
}

// buildCascade assembles the registry chain in priority order: the local
// store first, then rate-limited remote registries.
func (s *Service) buildCascade() *registry.Cascade {
	sources := []registry.Source{registry.NewStoreSource(s.repo)}

	cg := s.cfg.Registry.CoinGecko
	sources = append(sources, registry.NewRemoteSource(
		registry.NewCoinGeckoSource(cg.BaseURL, cg.APIKey),
		registry.RemoteConfig{
			LookupsPerWindow: cg.LookupsPerWindow,
			Window:           cg.Window,
			PositiveTTL:      cg.PositiveTTL,
			NegativeTTL:      cg.NegativeTTL,
		},
		s.logger,
	))

	if url := s.cfg.Registry.TokenList.URL; url != "" {
		sources = append(sources, registry.NewRemoteSource(
			registry.NewTokenListSource("tokenlist", url),
			registry.DefaultRemoteConfig(),
			s.logger,
		))
	}

	return registry.NewCascade(s.logger, sources...)
}
