// Package config holds process-wide configuration for the storage engine
// and query core: page sizing overrides used only by tests, WAL sync
// policy, blob overflow thresholds, compaction horizon policy, and cache
// sizing.
//
// Configuration loads from YAML with sensible defaults, following the same
// DefaultXConfig() constructor pattern the storage engine uses for its own
// sub-configs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SyncMode controls when WAL writes are flushed to stable storage.
type SyncMode string

const (
	// SyncImmediate fsyncs after every commit. Safest, slowest.
	SyncImmediate SyncMode = "immediate"
	// SyncBatch is accepted as a setting; the engine fsyncs on every commit
	// in this mode as well.
	SyncBatch SyncMode = "batch"
)

// Config is the top-level engine configuration.
type Config struct {
	// PageSize overrides the default 8192-byte page size. Zero means use
	// the default. Only meaningful to tests; production deployments should
	// not change this after a database has been created.
	PageSize int `yaml:"page_size"`

	// WALSyncMode records the configured fsync discipline. The engine does
	// not read it: every commit fsyncs the WAL.
	WALSyncMode SyncMode `yaml:"wal_sync_mode"`

	// BlobInlineThreshold is the property-value size, in bytes, above which
	// a value spills to the blob store instead of being stored inline.
	BlobInlineThreshold int `yaml:"blob_inline_threshold"`

	// CompactionHorizonRuns is the number of L0 runs that accumulate before
	// a commit starts a background compaction. Compaction
	// can always be triggered manually regardless of this value.
	CompactionHorizonRuns int `yaml:"compaction_horizon_runs"`

	// CacheSize is the approximate number of decoded property values the
	// read-side cache keeps resident.
	CacheSize int64 `yaml:"cache_size"`
}

// DefaultConfig returns sensible defaults for a fresh engine.
func DefaultConfig() *Config {
	return &Config{
		PageSize:              8192,
		WALSyncMode:           SyncBatch,
		BlobInlineThreshold:   4096,
		CompactionHorizonRuns: 8,
		CacheSize:             10000,
	}
}

// Load reads a YAML configuration file, filling in defaults for any field
// left at its zero value.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PageSize == 0 {
		c.PageSize = d.PageSize
	}
	if c.WALSyncMode == "" {
		c.WALSyncMode = d.WALSyncMode
	}
	if c.BlobInlineThreshold == 0 {
		c.BlobInlineThreshold = d.BlobInlineThreshold
	}
	if c.CompactionHorizonRuns == 0 {
		c.CompactionHorizonRuns = d.CompactionHorizonRuns
	}
	if c.CacheSize == 0 {
		c.CacheSize = d.CacheSize
	}
}
