package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shardsplit/shardsplit/internal/planner"
	"github.com/shardsplit/shardsplit/pkg/settings"
)

func validJob(cfg *Config) {
	cfg.Job.Index = "logs"
	cfg.Job.Shards = []planner.ShardInfo{{Index: "logs", ShardID: 0, Docs: 10}}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Mode != ModeAll {
		t.Errorf("expected mode all, got %s", cfg.Mode)
	}
	if cfg.GRPC.Addr != ":9090" || !cfg.GRPC.Enabled {
		t.Errorf("unexpected grpc defaults: %+v", cfg.GRPC)
	}
	if cfg.Job.Strategy != StrategyContiguous || cfg.Job.Workers != 1 {
		t.Errorf("unexpected job defaults: %+v", cfg.Job)
	}
}

func TestResolve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/tmp/ss"
	cfg.Resolve()
	if cfg.Storage.Path != filepath.Join("/tmp/ss", "storage") {
		t.Errorf("storage path = %s", cfg.Storage.Path)
	}
	if cfg.CatalogPath() != filepath.Join("/tmp/ss", "catalog.db") {
		t.Errorf("catalog path = %s", cfg.CatalogPath())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Mode = "ingest" }, "invalid mode"},
		{"bad storage", func(c *Config) { c.Storage.Type = "gcs" }, "invalid storage type"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }, "s3.bucket"},
		{"missing index", func(c *Config) { c.Job.Index = "" }, "job.index"},
		{"no shards", func(c *Config) { c.Job.Shards = nil }, "job.shards"},
		{"no workers", func(c *Config) { c.Job.Workers = 0 }, "job.workers"},
		{"bad strategy", func(c *Config) { c.Job.Strategy = "random" }, "job.strategy"},
		{"negative max docs", func(c *Config) { c.Job.MaxDocsPerPartition = -1 }, "max_docs"},
		{"serve needs no job", func(c *Config) { c.Mode = ModeServe; c.Job = JobConfig{} }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			validJob(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shardsplit.yaml")
	doc := `
mode: plan
data_dir: /var/lib/shardsplit
http:
  read_timeout: 5s
job:
  index: logs
  workers: 3
  strategy: hash
  max_docs_per_partition: 1000
  shards:
    - {index: logs, shard: 0, docs: 400}
    - {index: logs, shard: 1, docs: 2500}
  settings:
    es.nodes: es-1
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Mode != ModePlan || cfg.DataDir != "/var/lib/shardsplit" {
		t.Errorf("unexpected top level: %s %s", cfg.Mode, cfg.DataDir)
	}
	if cfg.HTTP.ReadTimeout != 5*time.Second {
		t.Errorf("read timeout = %v", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("unset fields should keep defaults, got addr %q", cfg.HTTP.Addr)
	}
	if len(cfg.Job.Shards) != 2 || cfg.Job.Shards[1].ShardID != 1 || cfg.Job.Shards[1].Docs != 2500 {
		t.Errorf("unexpected shards: %+v", cfg.Job.Shards)
	}
	if cfg.Job.Workers != 3 || cfg.Job.Strategy != StrategyHash {
		t.Errorf("unexpected job: %+v", cfg.Job)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shardsplit.json")
	doc := `{"mode": "serve", "grpc": {"addr": ":7000", "enabled": false}}`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Mode != ModeServe || cfg.GRPC.Addr != ":7000" || cfg.GRPC.Enabled {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadFromFile_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shardsplit.toml")
	if err := os.WriteFile(path, []byte("mode = 'all'"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for .toml file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHARDSPLIT_MODE", "serve")
	t.Setenv("SHARDSPLIT_GRPC_ENABLED", "0")
	t.Setenv("SHARDSPLIT_JOB_WORKERS", "4")
	t.Setenv("SHARDSPLIT_JOB_MAX_DOCS_PER_PARTITION", "5000")
	t.Setenv("SHARDSPLIT_S3_BUCKET", "splits")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.Mode != ModeServe {
		t.Errorf("mode = %s", cfg.Mode)
	}
	if cfg.GRPC.Enabled {
		t.Error("grpc should be disabled")
	}
	if cfg.Job.Workers != 4 || cfg.Job.MaxDocsPerPartition != 5000 {
		t.Errorf("unexpected job: %+v", cfg.Job)
	}
	if cfg.Storage.S3.Bucket != "splits" {
		t.Errorf("bucket = %s", cfg.Storage.S3.Bucket)
	}
}

func TestJobSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Job.Index = "logs"
	cfg.Job.MaxDocsPerPartition = 1000
	cfg.Job.Settings = map[string]string{
		settings.KeyResource: "ignored",
		settings.KeyNodes:    "es-1",
	}

	s := cfg.JobSettings()
	if s.Resource() != "logs" {
		t.Errorf("resource = %s, want logs", s.Resource())
	}
	if s.Nodes() != "es-1" {
		t.Errorf("nodes = %s", s.Nodes())
	}
	n, ok, err := s.MaxDocsPerPartition()
	if err != nil || !ok || n != 1000 {
		t.Errorf("max docs = %d %v %v", n, ok, err)
	}
	if cfg.Job.Settings[settings.KeyResource] != "ignored" {
		t.Error("JobSettings must not modify the config map")
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Storage.Path} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", dir)
		}
	}
}
