package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/config"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/provider"
	"github.com/NEARBuilders/intents-data-dashboard-sub000/internal/service"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
	gitCommit = "unknown"

	configPath = flag.String("config", "config.yaml", "path to configuration file")
	showHelp   = flag.Bool("help", false, "show help message")
	showVer    = flag.Bool("version", false, "show version information")
)

func main() {
	flag.Parse()

	if *showHelp {
		printHelp()
		os.Exit(0)
	}
	if *showVer {
		printVersion()
		os.Exit(0)
	}

	cfg := config.MustLoad(*configPath, "DASH")
	logger := newLogger(cfg)

	logger.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Str("git_commit", gitCommit).
		Str("environment", cfg.Service.Environment).
		Msg("Starting dashboard service")

	// Provider clients live outside the core; the table is registered here.
	// TODO: register provider clients as their implementations land.
	clients := map[provider.ID]provider.Client{}
	if len(clients) == 0 {
		logger.Warn().Msg("No provider clients registered, aggregation results will be empty")
	}

	svc := service.New(cfg, logger, clients)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start service")
	}

	logger.Info().Msg("Service ready, waiting for shutdown signal")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown finished with errors")
		os.Exit(1)
	}
	logger.Info().Msg("Dashboard service stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", cfg.Service.Name).Logger()
	if cfg.Logging.Pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger
}

func printHelp() {
	fmt.Fprintf(os.Stdout, "dashboard - cross-chain market data aggregation service\n\n")
	fmt.Fprintf(os.Stdout, "Aggregates listed assets, swap rates, liquidity depth, and traded volume\n")
	fmt.Fprintf(os.Stdout, "across bridge and swap providers behind one canonical asset identity.\n\n")
	fmt.Fprintf(os.Stdout, "USAGE:\n")
	fmt.Fprintf(os.Stdout, "    dashboard [OPTIONS]\n\n")
	fmt.Fprintf(os.Stdout, "OPTIONS:\n")
	fmt.Fprintf(os.Stdout, "    -config <path>     Path to configuration file (default: config.yaml)\n")
	fmt.Fprintf(os.Stdout, "    -help              Show this help message\n")
	fmt.Fprintf(os.Stdout, "    -version           Show version information\n\n")
	fmt.Fprintf(os.Stdout, "ENVIRONMENT VARIABLES:\n")
	fmt.Fprintf(os.Stdout, "    DASH_DATABASE_DSN                Postgres connection string\n")
	fmt.Fprintf(os.Stdout, "    DASH_REDIS_ADDR                  Redis cache address\n")
	fmt.Fprintf(os.Stdout, "    DASH_EVENT_BUS_URL               NATS URL\n")
	fmt.Fprintf(os.Stdout, "    DASH_REGISTRY_COINGECKO_API_KEY  CoinGecko API key\n")
}

func printVersion() {
	fmt.Fprintf(os.Stdout, "dashboard %s\n", version)
	fmt.Fprintf(os.Stdout, "Build Time: %s\n", buildTime)
	fmt.Fprintf(os.Stdout, "Git Commit: %s\n", gitCommit)
}
