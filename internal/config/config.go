// Package config provides configuration for the shardsplit planner and
// split server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shardsplit/shardsplit/internal/planner"
	"github.com/shardsplit/shardsplit/pkg/settings"
)

// Mode selects what the process does.
type Mode string

const (
	ModeAll   Mode = "all"
	ModePlan  Mode = "plan"
	ModeServe Mode = "serve"
)

// Assignment strategies for distributing splits over workers.
const (
	StrategyContiguous = "contiguous"
	StrategyHash       = "hash"
)

// Config holds the full shardsplit configuration.
type Config struct {
	// Mode is one of plan, serve or all
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir holds the catalog and, for local storage, the split files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	GRPC    GRPCConfig    `json:"grpc" yaml:"grpc"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Job     JobConfig     `json:"job" yaml:"job"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// StorageConfig selects where split files are written.
type StorageConfig struct {
	// Type is local or s3
	Type string `json:"type" yaml:"type"`

	// Path is the root directory for local storage
	Path string `json:"path" yaml:"path"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// JobConfig describes the index to plan and how to spread it over workers.
type JobConfig struct {
	Index  string              `json:"index" yaml:"index"`
	Shards []planner.ShardInfo `json:"shards" yaml:"shards"`

	// Workers is the number of workers splits are assigned to
	Workers int `json:"workers" yaml:"workers"`

	// Strategy is contiguous or hash
	Strategy string `json:"strategy" yaml:"strategy"`

	// MaxDocsPerPartition slices shards larger than this; 0 disables slicing
	MaxDocsPerPartition int64 `json:"max_docs_per_partition" yaml:"max_docs_per_partition"`

	// Settings are extra connector properties shipped with every split
	Settings map[string]string `json:"settings" yaml:"settings"`

	// MappingFile is an optional JSON or YAML mapping document
	MappingFile string `json:"mapping_file" yaml:"mapping_file"`

	// VerifyConcurrency bounds parallel reads when checking written splits
	VerifyConcurrency int `json:"verify_concurrency" yaml:"verify_concurrency"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/shardsplit",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Job: JobConfig{
			Workers:           1,
			Strategy:          StrategyContiguous,
			VerifyConcurrency: 8,
		},
	}
}

// Resolve fills paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/shardsplit"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// CatalogPath returns the path to the split catalog database.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.DataDir, "catalog.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModePlan, ModeServe:
	default:
		return fmt.Errorf("invalid mode: %s (must be plan, serve, or all)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	if c.ShouldPlan() {
		if c.Job.Index == "" {
			return fmt.Errorf("job.index is required in %s mode", c.Mode)
		}
		if len(c.Job.Shards) == 0 {
			return fmt.Errorf("job.shards must list at least one shard")
		}
		if c.Job.Workers < 1 {
			return fmt.Errorf("job.workers must be at least 1, got %d", c.Job.Workers)
		}
		if c.Job.Strategy != StrategyContiguous && c.Job.Strategy != StrategyHash {
			return fmt.Errorf("invalid job.strategy: %s (must be contiguous or hash)", c.Job.Strategy)
		}
		if c.Job.MaxDocsPerPartition < 0 {
			return fmt.Errorf("job.max_docs_per_partition must not be negative")
		}
	}

	return nil
}

// ShouldPlan returns true if a job should be planned on startup.
func (c *Config) ShouldPlan() bool {
	return c.Mode == ModeAll || c.Mode == ModePlan
}

// ShouldServe returns true if the HTTP and gRPC servers should run.
func (c *Config) ShouldServe() bool {
	return c.Mode == ModeAll || c.Mode == ModeServe
}

// JobSettings builds the settings shipped with every planned split. The
// index and the max-docs limit from the job section override the free-form
// properties.
func (c *Config) JobSettings() *settings.Settings {
	s := settings.FromMap(c.Job.Settings)
	if c.Job.Index != "" {
		s.Set(settings.KeyResource, c.Job.Index)
	}
	if c.Job.MaxDocsPerPartition > 0 {
		s.Set(settings.KeyMaxDocsPerPartition, strconv.FormatInt(c.Job.MaxDocsPerPartition, 10))
	}
	return s
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies SHARDSPLIT_* environment overrides.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SHARDSPLIT_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("SHARDSPLIT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("SHARDSPLIT_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("SHARDSPLIT_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("SHARDSPLIT_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("SHARDSPLIT_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SHARDSPLIT_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SHARDSPLIT_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("SHARDSPLIT_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("SHARDSPLIT_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	if v := os.Getenv("SHARDSPLIT_JOB_INDEX"); v != "" {
		cfg.Job.Index = v
	}
	if v := os.Getenv("SHARDSPLIT_JOB_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Job.Workers)
	}
	if v := os.Getenv("SHARDSPLIT_JOB_STRATEGY"); v != "" {
		cfg.Job.Strategy = v
	}
	if v := os.Getenv("SHARDSPLIT_JOB_MAX_DOCS_PER_PARTITION"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Job.MaxDocsPerPartition)
	}
	if v := os.Getenv("SHARDSPLIT_JOB_MAPPING_FILE"); v != "" {
		cfg.Job.MappingFile = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
