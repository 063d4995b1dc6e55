package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/marmos91/dittostore/pkg/access"
)

// Config represents the complete DittoStore configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (DITTOSTORE_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each backend defines its own configuration type. The object_store and
// catalog sections carry one map per backend and only the map matching the
// selected type is decoded, by the factories in factories.go.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ObjectStore selects and configures where bytes are kept
	ObjectStore ObjectStoreConfig `mapstructure:"object_store" yaml:"object_store"`

	// Catalog selects and configures where metadata rows are kept
	Catalog CatalogConfig `mapstructure:"catalog" yaml:"catalog"`

	// Layout tunes storage key generation
	Layout LayoutConfig `mapstructure:"layout" yaml:"layout"`

	// Uploads holds upload limits and default permission policy
	Uploads UploadsConfig `mapstructure:"uploads" yaml:"uploads"`

	// Shares tunes share grant hashing and throttling
	Shares SharesConfig `mapstructure:"shares" yaml:"shares"`

	// Naming supplies entity folder labels
	Naming NamingConfig `mapstructure:"naming" yaml:"naming"`

	// GC configures orphan reconciliation
	GC GCConfig `mapstructure:"gc" yaml:"gc"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Server contains settings for the long-running serve command
	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ObjectStoreConfig specifies object store configuration.
type ObjectStoreConfig struct {
	// Type specifies which object store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem is used when Type = "filesystem" (keys: path)
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// Memory is used when Type = "memory" (keys: max_size_bytes)
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// S3 is used when Type = "s3" (keys: region, bucket, key_prefix,
	// endpoint, access_key_id, secret_access_key, max_retries)
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`
}

// CatalogConfig specifies catalog configuration.
type CatalogConfig struct {
	// Type specifies which catalog implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger"`

	// Memory is used when Type = "memory" (no keys)
	Memory map[string]any `mapstructure:"memory" yaml:"memory"`

	// Badger is used when Type = "badger" (keys: path, in_memory,
	// block_cache_size_mb, index_cache_size_mb)
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`
}

// LayoutConfig tunes storage key generation.
type LayoutConfig struct {
	// MaxPathLength bounds the full storage path, root included
	MaxPathLength int `mapstructure:"max_path_length" yaml:"max_path_length" validate:"gte=64"`

	// TokenLength is the length of the random filename prefix
	TokenLength int `mapstructure:"token_length" yaml:"token_length" validate:"gte=6,lte=32"`
}

// UploadsConfig holds upload limits and default permissions.
type UploadsConfig struct {
	// MaxSize is the upload size ceiling as a human string ("100MB").
	// "0" disables the ceiling.
	MaxSize string `mapstructure:"max_size" yaml:"max_size" validate:"required"`

	// PublicRead lists (module, entity type) pairs whose uploads are
	// readable by everyone by default
	PublicRead []access.PublicRead `mapstructure:"public_read" yaml:"public_read"`
}

// MaxSizeBytes parses MaxSize.
func (u UploadsConfig) MaxSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(u.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("uploads.max_size: %w", err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("uploads.max_size: %s is too large", u.MaxSize)
	}
	return int64(n), nil
}

// SharesConfig tunes share grants.
type SharesConfig struct {
	// CodeHashCost is the bcrypt cost for access codes
	CodeHashCost int `mapstructure:"code_hash_cost" yaml:"code_hash_cost" validate:"gte=4,lte=31"`

	// AttemptsPerSecond throttles resolution per grant
	AttemptsPerSecond float64 `mapstructure:"attempts_per_second" yaml:"attempts_per_second" validate:"gt=0"`

	// AttemptBurst is the number of attempts allowed at once
	AttemptBurst uint `mapstructure:"attempt_burst" yaml:"attempt_burst"`
}

// NamingConfig supplies entity folder labels.
type NamingConfig struct {
	// LookupTimeout bounds a single label lookup
	LookupTimeout time.Duration `mapstructure:"lookup_timeout" yaml:"lookup_timeout" validate:"gt=0"`

	// Labels is a static label table. It is a list rather than a map
	// because configuration keys are case-insensitive and entity ids are
	// not.
	Labels []LabelConfig `mapstructure:"labels" yaml:"labels" validate:"dive"`
}

// LabelConfig names one entity.
type LabelConfig struct {
	EntityType string `mapstructure:"entity_type" yaml:"entity_type" validate:"required"`
	EntityID   string `mapstructure:"entity_id" yaml:"entity_id" validate:"required"`
	Label      string `mapstructure:"label" yaml:"label" validate:"required"`
}

// LabelTable returns the labels as entity type -> entity id -> label.
func (n NamingConfig) LabelTable() map[string]map[string]string {
	table := make(map[string]map[string]string)
	for _, l := range n.Labels {
		if table[l.EntityType] == nil {
			table[l.EntityType] = make(map[string]string)
		}
		table[l.EntityType][l.EntityID] = l.Label
	}
	return table
}

// GCConfig configures orphan reconciliation. It maps one to one onto
// gc.Config.
type GCConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval    time.Duration `mapstructure:"interval" yaml:"interval" validate:"gt=0"`
	GracePeriod time.Duration `mapstructure:"grace_period" yaml:"grace_period" validate:"gt=0"`
	FullSweep   bool          `mapstructure:"full_sweep" yaml:"full_sweep"`
	DryRun      bool          `mapstructure:"dry_run" yaml:"dry_run"`
	BatchSize   int           `mapstructure:"batch_size" yaml:"batch_size" validate:"gt=0"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns on metric collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port to listen on for HTTP requests
	Port int `mapstructure:"port" yaml:"port" validate:"gte=1,lte=65535"`
}

// ServerConfig contains settings for the serve command.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

// flagBindings maps CLI flag names onto configuration keys.
var flagBindings = map[string]string{
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"log-output":   "logging.output",
	"store":        "object_store.type",
	"catalog":      "catalog.type",
	"max-size":     "uploads.max_size",
	"metrics":      "metrics.enabled",
	"metrics-port": "metrics.port",
	"gc-dry-run":   "gc.dry_run",
	"gc-full":      "gc.full_sweep",
}

// envKeys are the scalar keys that may be overridden from the environment.
// Viper only consults the environment for keys it already knows about.
var envKeys = []string{
	"logging.level", "logging.format", "logging.output",
	"object_store.type", "object_store.filesystem.path", "object_store.memory.max_size_bytes",
	"object_store.s3.region", "object_store.s3.bucket", "object_store.s3.key_prefix",
	"object_store.s3.endpoint", "object_store.s3.access_key_id", "object_store.s3.secret_access_key",
	"catalog.type", "catalog.badger.path", "catalog.badger.in_memory",
	"layout.max_path_length", "layout.token_length",
	"uploads.max_size",
	"shares.code_hash_cost", "shares.attempts_per_second", "shares.attempt_burst",
	"naming.lookup_timeout",
	"gc.enabled", "gc.interval", "gc.grace_period", "gc.full_sweep", "gc.dry_run", "gc.batch_size",
	"metrics.enabled", "metrics.port",
	"server.shutdown_timeout",
}

// Load loads configuration from file, environment, flags and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//   - flags: Parsed command-line flags; may be nil
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath, flags); err != nil {
		return nil, err
	}
	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper wires environment variables, flags and the config file
// location.
func setupViper(v *viper.Viper, configPath string, flags *pflag.FlagSet) error {
	// DITTOSTORE_LOGGING_LEVEL=DEBUG overrides logging.level
	v.SetEnvPrefix("DITTOSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind environment for %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

// readConfigFile reads the configuration file if it exists. A missing file
// at the default location is not an error; an explicit path must exist.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/dittostore, ~/.config/dittostore,
// or "." when neither can be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittostore")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittostore")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
