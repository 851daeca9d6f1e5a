package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/javanstorm/capledger/internal/store"
	"github.com/javanstorm/capledger/internal/structs"
	"github.com/spf13/viper"
)

// Config holds all capledger configuration.
type Config struct {
	// DataDir is where the ledger records live.
	DataDir string `mapstructure:"data_dir"`

	// StoreBackend selects the persistence backend: json or bolt.
	StoreBackend string `mapstructure:"store_backend"`

	// LockTimeout bounds the wait for another process holding the ledger
	// database. Only the bolt backend takes a file lock.
	LockTimeout time.Duration `mapstructure:"lock_timeout"`

	// HTTPAddr is the listen address for `capledger serve`.
	HTTPAddr string `mapstructure:"http_addr"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// MetricsEnabled exposes /metrics on the HTTP server.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// Default totals written the first time the ledger is initialized.
	// They have no effect on an existing ledger.
	DefaultCPU     int64 `mapstructure:"default_cpu"`
	DefaultMemory  int64 `mapstructure:"default_memory"`
	DefaultStorage int64 `mapstructure:"default_storage"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	paths, err := GetPaths()
	if err != nil {
		// Fallback if we can't determine home directory
		paths = &Paths{
			DataDir: filepath.Join("/tmp", "capledger"),
		}
	}

	return &Config{
		DataDir:        paths.DataDir,
		StoreBackend:   store.BackendJSON,
		LockTimeout:    5 * time.Second,
		HTTPAddr:       "127.0.0.1:8080",
		LogLevel:       "info",
		LogJSON:        false,
		MetricsEnabled: true,
		DefaultCPU:     structs.DefaultCPU,
		DefaultMemory:  structs.DefaultMemory,
		DefaultStorage: structs.DefaultStorage,
	}
}

// DefaultResources returns the totals a fresh ledger starts with.
func (c *Config) DefaultResources() structs.Resources {
	return structs.NewResources(structs.Amounts{
		CPU:     c.DefaultCPU,
		Memory:  c.DefaultMemory,
		Storage: c.DefaultStorage,
	})
}

// LoadOptions overrides where configuration comes from.
type LoadOptions struct {
	// ConfigFile, when set, is read instead of searching the default paths.
	// Unlike the searched file it must exist.
	ConfigFile string

	// DataDir, when set, takes precedence over every other source.
	DataDir string
}

// Load reads configuration from file, environment, and defaults.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()

	// Set defaults
	defaults := DefaultConfig()
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("store_backend", defaults.StoreBackend)
	v.SetDefault("lock_timeout", defaults.LockTimeout)
	v.SetDefault("http_addr", defaults.HTTPAddr)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_json", defaults.LogJSON)
	v.SetDefault("metrics_enabled", defaults.MetricsEnabled)
	v.SetDefault("default_cpu", defaults.DefaultCPU)
	v.SetDefault("default_memory", defaults.DefaultMemory)
	v.SetDefault("default_storage", defaults.DefaultStorage)

	// Config file settings
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		paths, err := GetPaths()
		if err != nil {
			return nil, fmt.Errorf("failed to determine paths: %w", err)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(paths.DataDir)
		v.AddConfigPath(paths.ConfigDir)
	}

	// Environment variable support: CAPLEDGER_DATA_DIR, CAPLEDGER_STORE_BACKEND, etc.
	v.SetEnvPrefix("CAPLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional when searched)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if opts.DataDir != "" {
		v.Set("data_dir", opts.DataDir)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))

	return cfg, nil
}
