// Package main implements the shardsplit binary. It plans an index into
// partition definitions, serves them to workers over HTTP and gRPC, or both,
// depending on the -mode flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/shardsplit/shardsplit/internal/app"
	"github.com/shardsplit/shardsplit/internal/config"
	"github.com/shardsplit/shardsplit/pkg/split"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		mode        string
		httpAddr    string
		grpcAddr    string
		inspectFile string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Directory for the catalog and local split files")
	flag.StringVar(&mode, "mode", "", "Mode: plan, serve, or all")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address")
	flag.StringVar(&inspectFile, "inspect", "", "Decode a split file and print it")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "shardsplit - plan index shards into worker-sized splits\n\n")
		fmt.Fprintf(os.Stderr, "Usage: shardsplit [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  shardsplit -config /etc/shardsplit/job.yaml -mode plan\n")
		fmt.Fprintf(os.Stderr, "  shardsplit -data-dir /data/shardsplit -mode serve\n")
		fmt.Fprintf(os.Stderr, "  shardsplit -inspect jobs/<job>/splits/logs%%2F1.split\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SHARDSPLIT_MODE         Mode (plan, serve, all)\n")
		fmt.Fprintf(os.Stderr, "  SHARDSPLIT_DATA_DIR     Data directory\n")
		fmt.Fprintf(os.Stderr, "  SHARDSPLIT_HTTP_ADDR    HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  SHARDSPLIT_GRPC_ADDR    gRPC listen address\n")
		fmt.Fprintf(os.Stderr, "  SHARDSPLIT_STORAGE_TYPE Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  SHARDSPLIT_JOB_*        Job overrides (INDEX, WORKERS, STRATEGY, ...)\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("shardsplit version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if inspectFile != "" {
		if err := inspect(os.Stdout, inspectFile); err != nil {
			log.Fatalf("Failed to inspect %s: %v", inspectFile, err)
		}
		return
	}

	cfg, err := loadConfig(configFile, dataDir, mode, httpAddr, grpcAddr)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ShouldPlan() {
		res, err := application.Plan(ctx)
		if err != nil {
			application.Stop(ctx)
			log.Fatalf("Planning failed: %v", err)
		}
		log.Printf("Planned job %s: %d splits, per worker %v", res.JobID, len(res.Definitions), res.PerWorker)
	}

	if cfg.ShouldServe() {
		if err := application.Start(ctx); err != nil {
			application.Stop(ctx)
			log.Fatalf("Failed to start application: %v", err)
		}
		if err := application.WaitForShutdown(ctx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}

	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Stop error: %v", err)
		os.Exit(1)
	}
}

// loadConfig layers the config file, environment and flags, in that order.
func loadConfig(configFile, dataDir, mode, httpAddr, grpcAddr string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
	}

	return cfg, nil
}

// inspect decodes one split file and prints its identity and payloads.
func inspect(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	d, err := split.Unmarshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s\n", d)
	fmt.Fprintf(w, "key:      %s\n", d.Key())
	fmt.Fprintf(w, "hash:     %d\n", d.Hash())
	if s, ok := d.SerializedSettings(); ok {
		fmt.Fprintf(w, "settings: %d bytes\n", len(s))
	} else {
		fmt.Fprintf(w, "settings: absent\n")
	}
	if m, ok := d.SerializedMapping(); ok {
		fmt.Fprintf(w, "mapping:  %d bytes\n", len(m))
	} else {
		fmt.Fprintf(w, "mapping:  absent\n")
	}
	return nil
}
