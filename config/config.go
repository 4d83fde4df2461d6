// Package config provides the streamroute configuration surface: typed
// configuration structs, file loading, environment overrides, and a
// thread-safe wrapper for runtime access.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kadledav/streamroute/errors"
)

// Catalogue mode constants
const (
	CatalogueModeMemory = "memory" // In-process catalogue (tests, demos)
	CatalogueModeKV     = "kv"     // NATS JetStream KV-backed catalogue
)

// Config represents the complete application configuration
type Config struct {
	Router    RouterConfig    `json:"router" yaml:"router"`
	Catalogue CatalogueConfig `json:"catalogue" yaml:"catalogue"`
	NATS      NATSConfig      `json:"nats,omitempty" yaml:"nats,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// RouterConfig holds the routing engine tunables
type RouterConfig struct {
	// StreamProcessingTimeout bounds each rule evaluation submission
	StreamProcessingTimeout Duration `json:"stream_processing_timeout" yaml:"stream_processing_timeout"`

	// StreamProcessingMaxFaults quarantines a stream after this many faults
	StreamProcessingMaxFaults int `json:"stream_processing_max_faults" yaml:"stream_processing_max_faults"`

	// EngineRebuildPeriod is the engine updater tick interval
	EngineRebuildPeriod Duration `json:"engine_rebuild_period" yaml:"engine_rebuild_period"`

	// RecordingStrategy controls per-message timing/counter recordings
	// ("always" or "never")
	RecordingStrategy string `json:"detailed_recording_strategy" yaml:"detailed_recording_strategy"`

	// Evaluation worker pool sizing
	WorkerCount int `json:"worker_count" yaml:"worker_count"`
	QueueSize   int `json:"queue_size" yaml:"queue_size"`
}

// CatalogueConfig selects and configures the stream catalogue backend
type CatalogueConfig struct {
	Mode   string `json:"mode" yaml:"mode"`
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string `json:"urls,omitempty" yaml:"urls,omitempty"`
	MaxReconnects int      `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectWait Duration `json:"reconnect_wait,omitempty" yaml:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty" yaml:"username,omitempty"`
	Password      string        `json:"password,omitempty" yaml:"password,omitempty"`
	Token         string        `json:"token,omitempty" yaml:"token,omitempty"`
}

// MetricsConfig configures the metrics exposition endpoint
type MetricsConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		Router: RouterConfig{
			StreamProcessingTimeout:   Duration(2 * time.Second),
			StreamProcessingMaxFaults: 3,
			EngineRebuildPeriod:       Duration(time.Second),
			RecordingStrategy:         "never",
			WorkerCount:               4,
			QueueSize:                 1024,
		},
		Catalogue: CatalogueConfig{
			Mode:   CatalogueModeMemory,
			Bucket: "streamroute_catalogue",
		},
		NATS: NATSConfig{
			URLs:          []string{"nats://127.0.0.1:4222"},
			MaxReconnects: -1,
			ReconnectWait: Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{
			Addr: ":9451",
		},
	}
}

// Load reads a configuration file (YAML or JSON by extension), applies
// environment overrides, validates, and returns the result. An empty path
// yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
		}

		if strings.HasSuffix(path, ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, errors.WrapInvalid(err, "Config", "Load", "parse JSON config")
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.WrapInvalid(err, "Config", "Load", "parse YAML config")
			}
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies STREAMROUTE_* environment variables on top of
// the loaded configuration
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STREAMROUTE_PROCESSING_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Router.StreamProcessingTimeout = Duration(time.Duration(ms) * time.Millisecond)
		}
	}
	if v := os.Getenv("STREAMROUTE_MAX_FAULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Router.StreamProcessingMaxFaults = n
		}
	}
	if v := os.Getenv("STREAMROUTE_REBUILD_PERIOD_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Router.EngineRebuildPeriod = Duration(time.Duration(ms) * time.Millisecond)
		}
	}
	if v := os.Getenv("STREAMROUTE_RECORDING_STRATEGY"); v != "" {
		cfg.Router.RecordingStrategy = v
	}
	if v := os.Getenv("STREAMROUTE_CATALOGUE_MODE"); v != "" {
		cfg.Catalogue.Mode = v
	}
	if v := os.Getenv("STREAMROUTE_NATS_URLS"); v != "" {
		cfg.NATS.URLs = strings.Split(v, ",")
	}
	if v := os.Getenv("STREAMROUTE_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Router.StreamProcessingTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"router.stream_processing_timeout must be positive")
	}
	if c.Router.StreamProcessingMaxFaults <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"router.stream_processing_max_faults must be positive")
	}
	if c.Router.EngineRebuildPeriod <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			"router.engine_rebuild_period must be positive")
	}
	switch c.Router.RecordingStrategy {
	case "always", "never":
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("router.detailed_recording_strategy must be always or never, got %q",
				c.Router.RecordingStrategy))
	}

	switch c.Catalogue.Mode {
	case CatalogueModeMemory:
	case CatalogueModeKV:
		if len(c.NATS.URLs) == 0 {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"catalogue.mode=kv requires nats.urls")
		}
		if c.Catalogue.Bucket == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate",
				"catalogue.mode=kv requires catalogue.bucket")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("unknown catalogue.mode %q", c.Catalogue.Mode))
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "SafeConfig", "Update",
			"config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
