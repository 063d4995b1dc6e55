package config

import (
	"strings"
	"time"

	"github.com/marmos91/dittostore/pkg/layout"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults for the unselected backends are still filled
//     in, so switching type in the file only needs one line
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyObjectStoreDefaults(&cfg.ObjectStore)
	applyCatalogDefaults(&cfg.Catalog)
	applyLayoutDefaults(&cfg.Layout)
	applyUploadsDefaults(&cfg.Uploads)
	applySharesDefaults(&cfg.Shares)
	applyNamingDefaults(&cfg.Naming)
	applyGCDefaults(&cfg.GC)
	applyMetricsDefaults(&cfg.Metrics)
	applyServerDefaults(&cfg.Server)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyObjectStoreDefaults(cfg *ObjectStoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "/tmp/dittostore/objects"
	}
	if _, ok := cfg.Memory["max_size_bytes"]; !ok {
		cfg.Memory["max_size_bytes"] = "1GB"
	}
	if _, ok := cfg.S3["region"]; !ok {
		cfg.S3["region"] = "us-east-1"
	}
}

func applyCatalogDefaults(cfg *CatalogConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}

	if _, ok := cfg.Badger["path"]; !ok {
		cfg.Badger["path"] = "/tmp/dittostore/catalog"
	}
}

func applyLayoutDefaults(cfg *LayoutConfig) {
	if cfg.MaxPathLength == 0 {
		cfg.MaxPathLength = layout.DefaultMaxPathLength
	}
	if cfg.TokenLength == 0 {
		cfg.TokenLength = layout.DefaultTokenLength
	}
}

func applyUploadsDefaults(cfg *UploadsConfig) {
	if cfg.MaxSize == "" {
		cfg.MaxSize = "100MB"
	}
}

func applySharesDefaults(cfg *SharesConfig) {
	if cfg.CodeHashCost == 0 {
		cfg.CodeHashCost = 10
	}
	if cfg.AttemptsPerSecond == 0 {
		cfg.AttemptsPerSecond = 1
	}
	if cfg.AttemptBurst == 0 {
		cfg.AttemptBurst = 5
	}
}

func applyNamingDefaults(cfg *NamingConfig) {
	if cfg.LookupTimeout == 0 {
		cfg.LookupTimeout = 2 * time.Second
	}
}

func applyGCDefaults(cfg *GCConfig) {
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.GracePeriod == 0 {
		cfg.GracePeriod = time.Hour
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 1000
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config with every default applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
