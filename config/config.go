package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brettbedarf/zexplorer/internal/util"
	"gopkg.in/yaml.v3"
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	// DefaultFetchWorkers bounds how many listings run at once across all queries
	DefaultFetchWorkers = 4

	// DefaultPageSize is the number of children requested per listing page
	DefaultPageSize = 100

	// DefaultParallelTransfers enables the parallel path for batches without
	// shared destinations
	DefaultParallelTransfers = false

	// DefaultTransferParallelism is the max operations in flight on the parallel path
	DefaultTransferParallelism = 4

	DefaultLocalRoot = "."

	DefaultMetricsNamespace = "zexplorer"
)

// CLI verbosity values accepted by ConfigOverride.LogLvl
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Config contains runtime configuration values for an explorer session.
type Config struct {
	LogLvl              util.LogLevel // (Default info)
	FetchWorkers        int           // Max concurrent listings (Default 4)
	PageSize            int           // Children requested per listing page (Default 100)
	ParallelTransfers   bool          // Allow parallel execution of non overlapping operations (Default false)
	TransferParallelism int           // Max operations in flight on the parallel path (Default 4)
	LocalRoot           string        // Root directory served by the local provider (Default ".")
	MetricsNamespace    string        // Prometheus namespace (Default "zexplorer")
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
//
// LogLvl is CLI verbosity between 1 (error) and 5 (trace).
type ConfigOverride struct {
	LogLvl              *int    `yaml:"log_lvl,omitempty" json:"log_lvl,omitempty"`
	FetchWorkers        *int    `yaml:"fetch_workers,omitempty" json:"fetch_workers,omitempty"`
	PageSize            *int    `yaml:"page_size,omitempty" json:"page_size,omitempty"`
	ParallelTransfers   *bool   `yaml:"parallel_transfers,omitempty" json:"parallel_transfers,omitempty"`
	TransferParallelism *int    `yaml:"transfer_parallelism,omitempty" json:"transfer_parallelism,omitempty"`
	LocalRoot           *string `yaml:"local_root,omitempty" json:"local_root,omitempty"`
	MetricsNamespace    *string `yaml:"metrics_namespace,omitempty" json:"metrics_namespace,omitempty"`
}

// NewConfig creates a Config from defaults with override applied. A nil
// override yields all defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := &Config{
		LogLvl:              DefaultLogLvl,
		FetchWorkers:        DefaultFetchWorkers,
		PageSize:            DefaultPageSize,
		ParallelTransfers:   DefaultParallelTransfers,
		TransferParallelism: DefaultTransferParallelism,
		LocalRoot:           DefaultLocalRoot,
		MetricsNamespace:    DefaultMetricsNamespace,
	}
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = util.LevelFromVerbosity(*override.LogLvl)
	}
	if override.FetchWorkers != nil {
		c.FetchWorkers = *override.FetchWorkers
	}
	if override.PageSize != nil {
		c.PageSize = *override.PageSize
	}
	if override.ParallelTransfers != nil {
		c.ParallelTransfers = *override.ParallelTransfers
	}
	if override.TransferParallelism != nil {
		c.TransferParallelism = *override.TransferParallelism
	}
	if override.LocalRoot != nil {
		c.LocalRoot = *override.LocalRoot
	}
	if override.MetricsNamespace != nil {
		c.MetricsNamespace = *override.MetricsNamespace
	}
}

// Validate rejects values the cache and executor cannot run with
func (c *Config) Validate() error {
	if c.FetchWorkers < 1 {
		return fmt.Errorf("fetch_workers must be at least 1, got %d", c.FetchWorkers)
	}
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be at least 1, got %d", c.PageSize)
	}
	if c.ParallelTransfers && c.TransferParallelism < 1 {
		return fmt.Errorf("transfer_parallelism must be at least 1 when parallel_transfers is set, got %d", c.TransferParallelism)
	}
	return nil
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
