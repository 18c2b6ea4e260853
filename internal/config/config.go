// Package config loads service configuration from a YAML file plus
// environment overrides and applies defaults for anything unset.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	CacheTTL   CacheTTLConfig   `mapstructure:"cache_ttl"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name"`        // Default: dashboard
	Environment string `mapstructure:"environment"` // Default: development
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"` // Default: 8080
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN            string        `mapstructure:"dsn"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"` // Default: 5s
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // Empty disables the cache layer
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EventBusConfig struct {
	URL string `mapstructure:"url"` // Empty disables event publishing
}

// RegistryConfig configures the external metadata registries the resolver
// cascades through.
type RegistryConfig struct {
	CoinGecko RemoteRegistryConfig `mapstructure:"coingecko"`
	TokenList TokenListConfig      `mapstructure:"token_list"`
}

type RemoteRegistryConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	LookupsPerWindow int           `mapstructure:"lookups_per_window"` // Default: 30
	Window           time.Duration `mapstructure:"window"`             // Default: 1m
	PositiveTTL      time.Duration `mapstructure:"positive_ttl"`       // Default: 60m
	NegativeTTL      time.Duration `mapstructure:"negative_ttl"`       // Default: 60m
}

type TokenListConfig struct {
	URL string `mapstructure:"url"`
}

type AggregatorConfig struct {
	ProviderTimeout time.Duration `mapstructure:"provider_timeout"` // Default: 30s
}

// CacheTTLConfig contains cache TTL settings per entity type.
type CacheTTLConfig struct {
	Asset      time.Duration `mapstructure:"asset"`       // Default: 60m
	SyncStatus time.Duration `mapstructure:"sync_status"` // Default: 15s
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"` // Default: info
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from file and environment variables.
// Environment keys use the prefix and underscores, e.g. DASH_SERVER_HTTP_PORT.
func Load(configPath, envPrefix string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Every key needs a registered default so environment overrides are
	// visible to Unmarshal.
	applyDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// This is useful in main() where configuration errors should be fatal.
func MustLoad(configPath, envPrefix string) *Config {
	cfg, err := Load(configPath, envPrefix)
	if err != nil {
		panic(err)
	}
	return cfg
}

// applyDefaults registers the default for every configuration key.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "dashboard")
	v.SetDefault("service.environment", "development")

	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("event_bus.url", "")

	v.SetDefault("registry.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("registry.coingecko.api_key", "")
	v.SetDefault("registry.coingecko.lookups_per_window", 30)
	v.SetDefault("registry.coingecko.window", time.Minute)
	v.SetDefault("registry.coingecko.positive_ttl", 60*time.Minute)
	v.SetDefault("registry.coingecko.negative_ttl", 60*time.Minute)
	v.SetDefault("registry.token_list.url", "https://tokens.uniswap.org")

	v.SetDefault("aggregator.provider_timeout", 30*time.Second)

	v.SetDefault("cache_ttl.asset", 60*time.Minute)
	v.SetDefault("cache_ttl.sync_status", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
}
