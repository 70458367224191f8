package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/pkg/logger"
)

// Config holds all configuration values for the application, loaded from
// config.toml via viper the way the teacher does it (SetDefault +
// ReadInConfig + Unmarshal), extended to cover the full cluster.Options
// surface (spec §6.2) alongside the original server/CORS/body-limit knobs.
type Config struct {
	ServerPort             int      `mapstructure:"server_port"`
	ShutdownDrainSeconds   int      `mapstructure:"shutdown_drain_seconds"`
	ShutdownTimeoutSeconds int      `mapstructure:"shutdown_timeout_seconds"`
	AllowedOrigins         []string `mapstructure:"allowed_origins"`
	MaxRequestSizeMB       int      `mapstructure:"max_request_size_mb"`

	// Concurrency selects one of the four built-in resource-provider
	// strategies by name; normalized into a cluster.Concurrency below.
	Concurrency string `mapstructure:"concurrency"`

	MaxConcurrency        int  `mapstructure:"max_concurrency"`
	WorkerCreationDelayMs int  `mapstructure:"worker_creation_delay_ms"`
	TimeoutSeconds        int  `mapstructure:"timeout_seconds"`
	RetryLimit            int  `mapstructure:"retry_limit"`
	RetryDelayMs          int  `mapstructure:"retry_delay_ms"`
	SkipDuplicateUrls     bool `mapstructure:"skip_duplicate_urls"`
	SameDomainDelayMs     int  `mapstructure:"same_domain_delay_ms"`
	WorkerShutdownTimeoutSeconds int `mapstructure:"worker_shutdown_timeout_seconds"`

	Monitor             bool `mapstructure:"monitor"`
	MonitorIntervalSecs int  `mapstructure:"monitor_interval_seconds"`

	// ResolvedConcurrency is populated by Load after normalizing
	// Concurrency; handlers/main should read this, not the raw string.
	ResolvedConcurrency cluster.Concurrency `mapstructure:"-"`
}

// Load reads configuration from config.toml, exactly as the teacher's
// Load does, extended with defaults for the cluster options.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetDefault("shutdown_drain_seconds", 2)
	viper.SetDefault("shutdown_timeout_seconds", 10)
	viper.SetDefault("server_port", 8080)
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("max_request_size_mb", 1)

	viper.SetDefault("concurrency", "percontext")
	viper.SetDefault("max_concurrency", 4)
	viper.SetDefault("worker_creation_delay_ms", 0)
	viper.SetDefault("timeout_seconds", 30)
	viper.SetDefault("retry_limit", 0)
	viper.SetDefault("retry_delay_ms", 0)
	viper.SetDefault("skip_duplicate_urls", false)
	viper.SetDefault("same_domain_delay_ms", 0)
	viper.SetDefault("worker_shutdown_timeout_seconds", 30)
	viper.SetDefault("monitor", false)
	viper.SetDefault("monitor_interval_seconds", 5)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.ResolvedConcurrency = normalizeConcurrency(config.Concurrency)

	if config.MaxConcurrency <= 0 {
		logger.Warn("max_concurrency <= 0 (%d), defaulting to 4", config.MaxConcurrency)
		config.MaxConcurrency = 4
	}

	logger.Info("Configuration loaded successfully from %s", viper.ConfigFileUsed())
	logger.Info("  server_port: %d", config.ServerPort)
	logger.Info("  shutdown_drain_seconds: %d", config.ShutdownDrainSeconds)
	logger.Info("  shutdown_timeout_seconds: %d", config.ShutdownTimeoutSeconds)
	logger.Info("  allowed_origins: %v", config.AllowedOrigins)
	logger.Info("  max_request_size_mb: %d", config.MaxRequestSizeMB)
	logger.Info("  concurrency: %s", config.Concurrency)
	logger.Info("  max_concurrency: %d", config.MaxConcurrency)
	logger.Info("  timeout_seconds: %d", config.TimeoutSeconds)
	logger.Info("  retry_limit: %d", config.RetryLimit)
	logger.Info("  skip_duplicate_urls: %v", config.SkipDuplicateUrls)
	logger.Info("  same_domain_delay_ms: %d", config.SameDomainDelayMs)
	logger.Info("  monitor: %v", config.Monitor)

	return &config, nil
}

// normalizeConcurrency maps the config string onto cluster.Concurrency,
// warning and defaulting to ConcurrencyPerContext on an unknown value
// rather than failing Load outright — an unrecognized strategy name is a
// config typo, not a reason to refuse to start.
func normalizeConcurrency(raw string) cluster.Concurrency {
	switch raw {
	case "sharedpage":
		return cluster.ConcurrencySharedPage
	case "percontext", "":
		return cluster.ConcurrencyPerContext
	case "perbrowser":
		return cluster.ConcurrencyPerBrowser
	case "pergroup":
		return cluster.ConcurrencyPerGroup
	default:
		logger.Warn("unknown concurrency=%q, defaulting to 'percontext'", raw)
		return cluster.ConcurrencyPerContext
	}
}

// ToOptions builds cluster.Options from the loaded config. groupFunc is
// supplied by the caller (internal/app) since it is a property of the job
// payload shape, not something expressible in TOML.
func (c *Config) ToOptions(groupFunc func(data any) (string, bool)) cluster.Options {
	return cluster.Options{
		Concurrency:           c.ResolvedConcurrency,
		MaxConcurrency:        c.MaxConcurrency,
		WorkerCreationDelay:   time.Duration(c.WorkerCreationDelayMs) * time.Millisecond,
		Timeout:               time.Duration(c.TimeoutSeconds) * time.Second,
		RetryLimit:            c.RetryLimit,
		RetryDelay:            time.Duration(c.RetryDelayMs) * time.Millisecond,
		SkipDuplicateUrls:     c.SkipDuplicateUrls,
		SameDomainDelay:       time.Duration(c.SameDomainDelayMs) * time.Millisecond,
		WorkerShutdownTimeout: time.Duration(c.WorkerShutdownTimeoutSeconds) * time.Second,
		Monitor:               c.Monitor,
		MonitorInterval:       time.Duration(c.MonitorIntervalSecs) * time.Second,
		GroupFunc:             groupFunc,
	}
}
