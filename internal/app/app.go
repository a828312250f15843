// Package app wires the planner, catalog, object storage and the HTTP and
// gRPC front ends into one process.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/shardsplit/shardsplit/internal/api/grpc"
	httpapi "github.com/shardsplit/shardsplit/internal/api/http"
	"github.com/shardsplit/shardsplit/internal/catalog"
	"github.com/shardsplit/shardsplit/internal/config"
	serrors "github.com/shardsplit/shardsplit/internal/errors"
	"github.com/shardsplit/shardsplit/internal/notify"
	"github.com/shardsplit/shardsplit/internal/planner"
	"github.com/shardsplit/shardsplit/internal/server"
	"github.com/shardsplit/shardsplit/internal/storage"
	"github.com/shardsplit/shardsplit/pkg/mapping"
	"github.com/shardsplit/shardsplit/pkg/split"
)

// App manages the shardsplit lifecycle.
type App struct {
	cfg *config.Config

	// Shared resources
	storage  storage.ObjectStorage
	catalog  catalog.Catalog
	shutdown *server.ShutdownManager
	events   *notify.Notifier

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// PlanResult summarizes one planning run.
type PlanResult struct {
	JobID       string
	Stats       planner.Stats
	Definitions []*split.PartitionDefinition

	// PerWorker holds the number of splits assigned to each worker
	PerWorker []int
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg, events: notify.NewNotifier(16)}, nil
}

// Subscribe returns a subscriber for job events on indices matching filters.
func (a *App) Subscribe(filters ...string) *notify.Subscriber {
	return a.events.Subscribe(filters...)
}

// Unsubscribe removes a subscriber returned by Subscribe.
func (a *App) Unsubscribe(id string) {
	a.events.Unsubscribe(id)
}

// initSharedResources opens storage, the catalog and the shutdown manager.
// Later calls are no-ops.
func (a *App) initSharedResources(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.shutdown != nil {
		return nil
	}

	var err error
	switch a.cfg.Storage.Type {
	case "local":
		a.storage, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.storage, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Storage initialized: type=%s", a.cfg.Storage.Type)

	cat, err := catalog.NewCatalog(a.cfg.CatalogPath())
	if err != nil {
		return fmt.Errorf("failed to initialize catalog: %w", err)
	}
	a.catalog = cat
	log.Printf("Catalog initialized: %s", a.cfg.CatalogPath())

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())
	a.shutdown.RegisterCloser(cat)
	a.shutdown.RegisterCloser(a.events)
	return nil
}

// Plan splits the configured index into definitions, assigns them to
// workers, writes one split file per definition and registers the job in
// the catalog. The written files are read back before the job is reported.
func (a *App) Plan(ctx context.Context) (*PlanResult, error) {
	if err := a.initSharedResources(ctx); err != nil {
		return nil, err
	}
	job := a.cfg.Job

	var m *mapping.Field
	if job.MappingFile != "" {
		var err error
		if m, err = mapping.ParseFile(job.MappingFile); err != nil {
			return nil, serrors.Wrap(serrors.ErrCategoryValidation, serrors.CodeInvalidConfig,
				"failed to load mapping", err)
		}
	}

	p := planner.New(planner.NewStaticShardSource(job.Shards), a.cfg.JobSettings(), m)
	defs, err := p.Plan(ctx, job.Index)
	if err != nil {
		return nil, err
	}

	groups, err := a.assign(defs)
	if err != nil {
		return nil, err
	}

	jobID, err := a.catalog.CreateJob(ctx, job.Index)
	if err != nil {
		return nil, err
	}

	result, err := a.store(ctx, jobID, p.LastStats(), defs, groups)
	if err != nil {
		a.discard(context.WithoutCancel(ctx), jobID)
		a.events.Publish(notify.Event{Type: notify.JobFailed, JobID: jobID, Index: job.Index,
			Err: err, Timestamp: time.Now().UnixNano()})
		return nil, err
	}

	a.events.Publish(notify.Event{Type: notify.JobPlanned, JobID: jobID, Index: job.Index,
		Splits: len(defs), Timestamp: time.Now().UnixNano()})
	log.Printf("Job %s: %d splits for index %s over %d workers (%s)",
		jobID, len(defs), job.Index, len(groups), job.Strategy)
	return result, nil
}

// store writes the split files of a created job, registers them with their
// workers and verifies the written files.
func (a *App) store(ctx context.Context, jobID string, stats planner.Stats, defs []*split.PartitionDefinition, groups [][]*split.PartitionDefinition) (*PlanResult, error) {
	paths, err := storage.NewSplitWriter(a.storage).WriteAll(ctx, jobID, defs)
	if err != nil {
		return nil, fmt.Errorf("failed to write split files: %w", err)
	}

	result := &PlanResult{
		JobID:       jobID,
		Stats:       stats,
		Definitions: defs,
		PerWorker:   make([]int, len(groups)),
	}
	var assignments []catalog.Assignment
	for worker, group := range groups {
		result.PerWorker[worker] = len(group)
		for _, d := range group {
			assignments = append(assignments, catalog.Assignment{
				Definition: d,
				Worker:     worker,
				ObjectPath: paths[d.Key()],
			})
		}
	}

	if _, err := a.catalog.RegisterSplits(ctx, jobID, assignments); err != nil {
		return nil, err
	}
	if err := a.verify(ctx, jobID, defs); err != nil {
		return nil, err
	}
	return result, nil
}

// discard removes the split files and catalog entry of a job whose store
// step failed, so only complete jobs stay listed.
func (a *App) discard(ctx context.Context, jobID string) {
	if n, err := storage.NewSplitWriter(a.storage).DeleteJob(ctx, jobID); err != nil {
		log.Printf("Job %s: failed to remove split files after %d: %v", jobID, n, err)
	}
	if err := a.catalog.DeleteJob(ctx, jobID); err != nil {
		log.Printf("Job %s: failed to remove catalog entry: %v", jobID, err)
	}
}

// assign distributes defs over the configured workers.
func (a *App) assign(defs []*split.PartitionDefinition) ([][]*split.PartitionDefinition, error) {
	workers := a.cfg.Job.Workers
	if a.cfg.Job.Strategy == config.StrategyHash {
		return planner.AssignByHash(defs, workers)
	}

	groups := make([][]*split.PartitionDefinition, workers)
	for task := 0; task < workers; task++ {
		group, err := planner.Assign(defs, task, workers)
		if err != nil {
			return nil, err
		}
		groups[task] = group
	}
	return groups, nil
}

// verify reads the job's split files back and checks they decode to the
// planned definitions.
func (a *App) verify(ctx context.Context, jobID string, defs []*split.PartitionDefinition) error {
	res, err := storage.NewBatchReader(a.storage, a.cfg.Job.VerifyConcurrency).ReadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		paths := make([]string, 0, len(res.Errors))
		for p := range res.Errors {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		return fmt.Errorf("%d split files failed verification, first %s: %w",
			len(paths), paths[0], res.Errors[paths[0]])
	}
	if len(res.Definitions) != len(defs) {
		return serrors.NewStorageError(serrors.CodeDownloadFailed,
			fmt.Sprintf("job %s: read back %d split files, planned %d", jobID, len(res.Definitions), len(defs)), nil)
	}
	for i, d := range res.Definitions {
		if !d.Equal(defs[i]) || !samePayloads(d, defs[i]) {
			return serrors.NewCatalogError(serrors.CodeCorruptSplit,
				fmt.Sprintf("job %s: split file %s does not match plan", jobID, d.Key()), nil)
		}
	}
	return nil
}

// samePayloads compares the serialized settings and mapping of a and b.
// Equal ignores them.
func samePayloads(a, b *split.PartitionDefinition) bool {
	as, aok := a.SerializedSettings()
	bs, bok := b.SerializedSettings()
	if aok != bok || as != bs {
		return false
	}
	am, aok := a.SerializedMapping()
	bm, bok := b.SerializedMapping()
	return aok == bok && am == bm
}

// Start starts the HTTP and gRPC servers when the mode serves.
func (a *App) Start(ctx context.Context) error {
	if err := a.initSharedResources(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	if !a.cfg.ShouldServe() {
		return nil
	}

	if err := a.startHTTP(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	log.Printf("shardsplit started in %s mode", a.cfg.Mode)
	return nil
}

func (a *App) startHTTP() error {
	mux := http.NewServeMux()
	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.DefaultMiddleware(),
	)
	httpapi.NewJobsHandler(a.catalog).Register(mux, middleware)
	mux.HandleFunc("/health", httpapi.HealthHandler("shardsplit", string(a.cfg.Mode)))

	a.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	var err error
	a.httpListener, err = net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on HTTP address: %w", err)
	}
	a.shutdown.RegisterCloser(&server.HTTPServerCloser{Server: a.httpServer})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP server listening on %s", a.httpListener.Addr())
		if err := a.httpServer.Serve(a.httpListener); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	opts := append(grpcapi.ServerOptions(),
		grpc.ChainUnaryInterceptor(server.UnaryShutdownInterceptor(a.shutdown)),
		grpc.ChainStreamInterceptor(server.StreamShutdownInterceptor(a.shutdown)),
	)
	a.grpcServer = grpc.NewServer(opts...)
	grpcapi.RegisterSplitServiceServer(a.grpcServer, grpcapi.NewSplitServer(a.catalog))

	var err error
	a.grpcListener, err = net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		a.grpcServer.GracefulStop()
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("gRPC server listening on %s", a.grpcListener.Addr())
		if err := a.grpcServer.Serve(a.grpcListener); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// HTTPAddr returns the bound HTTP address, or "" when not serving.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when not serving.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Stop drains in-flight requests, stops the servers and closes the catalog.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	sm := a.shutdown
	a.running = false
	a.mu.Unlock()
	if sm == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := sm.Shutdown(shutdownCtx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Printf("Shutdown timeout, some goroutines may not have finished")
	}

	log.Printf("shardsplit stopped")
	return err
}

// WaitForShutdown blocks until a shutdown signal is received or ctx ends.
func (a *App) WaitForShutdown(ctx context.Context) error {
	if err := a.initSharedResources(ctx); err != nil {
		return err
	}
	return a.shutdown.ListenForSignals(ctx)
}
