// Package config loads the service configuration from defaults, an optional
// YAML file, a .env file and SELECTOR_* environment variables, in increasing
// precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"solana-round-selector/internal/aggregator"
	"solana-round-selector/internal/selector"
)

// EnvPrefix prefixes every environment override, e.g. SELECTOR_SOLANA_RPC_ENDPOINT.
const EnvPrefix = "SELECTOR"

var validate = validator.New()

// Config is the complete service configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	HTTP       HTTPConfig       `mapstructure:"http" yaml:"http"`
	Round      RoundConfig      `mapstructure:"round" yaml:"round"`
	Solana     SolanaConfig     `mapstructure:"solana" yaml:"solana"`
	Market     MarketConfig     `mapstructure:"market" yaml:"market"`
	Aggregator AggregatorConfig `mapstructure:"aggregator" yaml:"aggregator"`
	Selector   selector.Config  `mapstructure:"selector" yaml:"selector"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
}

// RoundConfig configures scheduling and re-draws.
type RoundConfig struct {
	// Schedule is a cron spec; descriptors such as "@every 5m" are accepted.
	Schedule string        `mapstructure:"schedule" yaml:"schedule" validate:"required"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	MaxDraws int           `mapstructure:"max_draws" yaml:"max_draws" validate:"gte=1"`
}

// SolanaConfig configures the ground-truth RPC and the launch feed.
type SolanaConfig struct {
	RPCEndpoint    string        `mapstructure:"rpc_endpoint" yaml:"rpc_endpoint" validate:"required,url"`
	WSEndpoint     string        `mapstructure:"ws_endpoint" yaml:"ws_endpoint" validate:"omitempty,url"`
	RPCTimeout     time.Duration `mapstructure:"rpc_timeout" yaml:"rpc_timeout" validate:"gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`
	LaunchFeed     bool          `mapstructure:"launch_feed" yaml:"launch_feed"`
	LaunchCapacity int           `mapstructure:"launch_capacity" yaml:"launch_capacity" validate:"gte=1"`
}

// MarketConfig configures the market index client and both primary sources.
type MarketConfig struct {
	BaseURL          string        `mapstructure:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	RateLimit        float64       `mapstructure:"rate_limit" yaml:"rate_limit" validate:"gt=0"`
	Burst            int           `mapstructure:"burst" yaml:"burst" validate:"gte=1"`
	FeedLimit        int           `mapstructure:"feed_limit" yaml:"feed_limit" validate:"gte=1"`
	BatchConcurrency int           `mapstructure:"batch_concurrency" yaml:"batch_concurrency" validate:"gte=1"`
	KeywordQueries   []string      `mapstructure:"keyword_queries" yaml:"keyword_queries"`
}

// AggregatorConfig configures fan-out and health tracking.
type AggregatorConfig struct {
	SourceTimeout  time.Duration `mapstructure:"source_timeout" yaml:"source_timeout" validate:"gte=0"`
	ConflictPolicy string        `mapstructure:"conflict_policy" yaml:"conflict_policy" validate:"oneof=prefer_priced prefer_liquid"`
	DownAfter      int           `mapstructure:"down_after" yaml:"down_after" validate:"gte=1"`
}

// StorageConfig selects the stores. Empty DSNs fall back to in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn" yaml:"clickhouse_dsn"`
	RedisURL      string `mapstructure:"redis_url" yaml:"redis_url"`
	RedisPrefix   string `mapstructure:"redis_prefix" yaml:"redis_prefix"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Log:  LogConfig{Level: "info"},
		HTTP: HTTPConfig{Addr: ":9090"},
		Round: RoundConfig{
			Schedule: "@every 5m",
			Timeout:  2 * time.Minute,
			MaxDraws: 3,
		},
		Solana: SolanaConfig{
			RPCEndpoint:    "https://api.mainnet-beta.solana.com",
			RPCTimeout:     30 * time.Second,
			MaxRetries:     3,
			LaunchCapacity: 256,
		},
		Market: MarketConfig{
			BaseURL:          "https://api.dexscreener.com",
			Timeout:          10 * time.Second,
			RateLimit:        5,
			Burst:            10,
			FeedLimit:        30,
			BatchConcurrency: 4,
			KeywordQueries:   []string{"pump", "sol", "meme", "new"},
		},
		Aggregator: AggregatorConfig{
			SourceTimeout:  20 * time.Second,
			ConflictPolicy: "prefer_priced",
			DownAfter:      3,
		},
		Selector: selector.DefaultConfig(),
		Storage:  StorageConfig{RedisPrefix: "selector"},
	}
}

// Load reads .env (if present), the YAML file at path (if not empty) and the
// environment over Default, then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("encode defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags, the selector weights, the cron spec and the
// conflict policy name.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := c.Selector.Validate(); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Round.Schedule); err != nil {
		return fmt.Errorf("config validation failed: round.schedule %q: %w", c.Round.Schedule, err)
	}
	if aggregator.PolicyByName(c.Aggregator.ConflictPolicy) == nil {
		return fmt.Errorf("config validation failed: unknown conflict policy %q", c.Aggregator.ConflictPolicy)
	}
	if c.Solana.LaunchFeed && c.Solana.WSEndpoint == "" {
		return fmt.Errorf("config validation failed: solana.launch_feed requires solana.ws_endpoint")
	}
	return nil
}
