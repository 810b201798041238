package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL     string
	RPCTimeout time.Duration

	Storage    string
	PGDSN      string
	SQLitePath string

	PodManagerAddress      string
	DepositContractAddress string
	PodKnownBlock          uint64
	DepositKnownBlock      uint64
	FallbackBlockOffset    uint64

	BatchSize       uint64
	Interval        time.Duration
	RefreshInterval time.Duration

	MaxRetries          int
	RetryBaseDelay      time.Duration
	RetryMaxDelay       time.Duration
	RetryMultiplier     float64
	RateLimitMultiplier float64

	HTTPAddr string
	LogLevel string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("STAKESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("rpc-timeout", 30*time.Second)
	v.SetDefault("storage", StorageSQLite)
	v.SetDefault("sqlite-path", "./data/stakescope.db")
	v.SetDefault("pod-manager-address", "0x91E677b07F7AF907ec9a428aafA9fc14a0d3A338")
	v.SetDefault("deposit-contract-address", "0x00000000219ab540356cBB839Cbe05303d7705Fa")
	v.SetDefault("deposit-known-block", uint64(11052984))
	v.SetDefault("fallback-block-offset", uint64(50000))
	v.SetDefault("batch-size", uint64(500))
	v.SetDefault("interval", "1m")
	v.SetDefault("refresh-interval", "1m")
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-base-delay", 500*time.Millisecond)
	v.SetDefault("retry-max-delay", 30*time.Second)
	v.SetDefault("retry-multiplier", 2.0)
	v.SetDefault("rate-limit-multiplier", 2.0)
	v.SetDefault("http-addr", ":8080")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	interval, err := ParseInterval(v.GetString("interval"))
	if err != nil {
		return Config{}, fmt.Errorf("interval: %w", err)
	}
	refreshInterval, err := ParseInterval(v.GetString("refresh-interval"))
	if err != nil {
		return Config{}, fmt.Errorf("refresh-interval: %w", err)
	}

	cfg := Config{
		RPCURL:                 v.GetString("rpc"),
		RPCTimeout:             v.GetDuration("rpc-timeout"),
		Storage:                strings.ToLower(strings.TrimSpace(v.GetString("storage"))),
		PGDSN:                  v.GetString("pg-dsn"),
		SQLitePath:             v.GetString("sqlite-path"),
		PodManagerAddress:      v.GetString("pod-manager-address"),
		DepositContractAddress: v.GetString("deposit-contract-address"),
		PodKnownBlock:          v.GetUint64("pod-known-block"),
		DepositKnownBlock:      v.GetUint64("deposit-known-block"),
		FallbackBlockOffset:    v.GetUint64("fallback-block-offset"),
		BatchSize:              v.GetUint64("batch-size"),
		Interval:               interval,
		RefreshInterval:        refreshInterval,
		MaxRetries:             v.GetInt("max-retries"),
		RetryBaseDelay:         v.GetDuration("retry-base-delay"),
		RetryMaxDelay:          v.GetDuration("retry-max-delay"),
		RetryMultiplier:        v.GetFloat64("retry-multiplier"),
		RateLimitMultiplier:    v.GetFloat64("rate-limit-multiplier"),
		HTTPAddr:               v.GetString("http-addr"),
		LogLevel:               v.GetString("log-level"),
	}

	return cfg, nil
}

// ValidateStorage checks the storage engine settings.
func (c Config) ValidateStorage() error {
	switch c.Storage {
	case StoragePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg dsn is required for postgres storage")
		}
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unknown storage %q (want %s or %s)", c.Storage, StoragePostgres, StorageSQLite)
	}
	return nil
}

// ValidateChain checks the settings needed to talk to the node.
func (c Config) ValidateChain() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}
	return nil
}

// ParseInterval accepts a Go duration ("30s") or a schedule expression
// ("@every 30s", "@hourly", "@daily").
func ParseInterval(input string) (time.Duration, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return 0, fmt.Errorf("interval is required")
	case input == "@hourly":
		return time.Hour, nil
	case input == "@daily":
		return 24 * time.Hour, nil
	case strings.HasPrefix(input, "@every "):
		input = strings.TrimSpace(strings.TrimPrefix(input, "@every "))
	}

	d, err := time.ParseDuration(input)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", input, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %s", input)
	}
	return d, nil
}
