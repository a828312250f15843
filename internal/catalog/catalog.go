package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	serrors "github.com/shardsplit/shardsplit/internal/errors"
	"github.com/shardsplit/shardsplit/pkg/split"
)

// Catalog stores jobs and their split assignments.
type Catalog interface {
	// CreateJob registers a new planning job for index and returns its id.
	CreateJob(ctx context.Context, index string) (string, error)

	// RegisterSplits stores assignments for a job. Splits already registered
	// under the same identity key are skipped; the number inserted is returned.
	RegisterSplits(ctx context.Context, jobID string, assignments []Assignment) (int, error)

	// ListSplits returns every split of a job in definition order.
	ListSplits(ctx context.Context, jobID string) ([]*SplitRecord, error)

	// SplitsForWorker returns the splits assigned to one worker.
	SplitsForWorker(ctx context.Context, jobID string, worker int) ([]*SplitRecord, error)

	// GetJob retrieves a single job.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// ListJobs returns all jobs, newest first.
	ListJobs(ctx context.Context) ([]*Job, error)

	// DeleteJob removes a job and all of its splits.
	DeleteJob(ctx context.Context, jobID string) error

	// Close closes the catalog database connections.
	Close() error
}

// Job is a single planning run.
type Job struct {
	JobID      string    `json:"job_id"`
	Index      string    `json:"index"`
	SplitCount int       `json:"split_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Assignment pairs a definition with the worker that should run it.
type Assignment struct {
	Definition *split.PartitionDefinition
	Worker     int
	ObjectPath string
}

// SplitRecord is a stored assignment with its definition decoded.
type SplitRecord struct {
	JobID      string
	Key        string
	Worker     int
	ObjectPath string
	Definition *split.PartitionDefinition
	CreatedAt  time.Time
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // single writer
	readDB *sql.DB // concurrent readers
	dbPath string
	mu     sync.Mutex
}

// NewCatalog opens (or creates) the catalog database at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	// Opened after the schema exists so the read pool never sees an empty file.
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_query_only=true")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)
	c.readDB = readDB

	log.Printf("Catalog opened at %s", dbPath)
	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// CreateJob registers a new job with a random uuid id.
func (c *SQLiteCatalog) CreateJob(ctx context.Context, index string) (string, error) {
	if index == "" {
		return "", serrors.NewValidationError(serrors.CodeInvalidIndex, "index must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	jobID := uuid.New().String()
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO jobs (job_id, index_name, split_count, created_at) VALUES (?, ?, 0, ?)",
		jobID, index, time.Now().UnixNano())
	if err != nil {
		return "", classify("failed to create job", err)
	}
	return jobID, nil
}

// RegisterSplits inserts assignments in one transaction. A split whose
// (job, key) pair is already present is left untouched, so re-running a
// registration is harmless.
func (c *SQLiteCatalog) RegisterSplits(ctx context.Context, jobID string, assignments []Assignment) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("failed to begin transaction", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT 1 FROM jobs WHERE job_id = ?", jobID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, jobNotFound(jobID)
		}
		return 0, classify("failed to look up job", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO splits (
			job_id, split_key, index_name, shard_id, slice_id, slice_max,
			worker, object_path, definition, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, classify("failed to prepare insert", err)
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	inserted := 0
	for _, a := range assignments {
		blob, err := a.Definition.Marshal()
		if err != nil {
			return 0, fmt.Errorf("catalog: failed to encode %s: %w", a.Definition.Key(), err)
		}

		var sliceID, sliceMax sql.NullInt32
		if s, ok := a.Definition.Slice(); ok {
			sliceID = sql.NullInt32{Int32: s.ID, Valid: true}
			sliceMax = sql.NullInt32{Int32: s.Max, Valid: true}
		}
		objectPath := sql.NullString{String: a.ObjectPath, Valid: a.ObjectPath != ""}

		res, err := stmt.ExecContext(ctx,
			jobID, a.Definition.Key(), a.Definition.Index(), a.Definition.ShardID(),
			sliceID, sliceMax, a.Worker, objectPath, blob, now)
		if err != nil {
			return 0, classify("failed to insert split", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, classify("failed to read rows affected", err)
		}
		inserted += int(n)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE jobs SET split_count = (SELECT COUNT(*) FROM splits WHERE job_id = ?) WHERE job_id = ?",
		jobID, jobID); err != nil {
		return 0, classify("failed to update split count", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("failed to commit splits", err)
	}
	return inserted, nil
}

// ListSplits returns every split of jobID in definition order.
func (c *SQLiteCatalog) ListSplits(ctx context.Context, jobID string) ([]*SplitRecord, error) {
	if _, err := c.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return c.querySplits(ctx,
		"SELECT job_id, split_key, worker, object_path, definition, created_at FROM splits WHERE job_id = ?",
		jobID)
}

// SplitsForWorker returns the splits of jobID assigned to worker, in
// definition order.
func (c *SQLiteCatalog) SplitsForWorker(ctx context.Context, jobID string, worker int) ([]*SplitRecord, error) {
	if _, err := c.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return c.querySplits(ctx,
		"SELECT job_id, split_key, worker, object_path, definition, created_at FROM splits WHERE job_id = ? AND worker = ?",
		jobID, worker)
}

func (c *SQLiteCatalog) querySplits(ctx context.Context, query string, args ...interface{}) ([]*SplitRecord, error) {
	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("failed to query splits", err)
	}
	defer rows.Close()

	var records []*SplitRecord
	for rows.Next() {
		var (
			rec        SplitRecord
			objectPath sql.NullString
			blob       []byte
			createdAt  int64
		)
		if err := rows.Scan(&rec.JobID, &rec.Key, &rec.Worker, &objectPath, &blob, &createdAt); err != nil {
			return nil, classify("failed to scan split", err)
		}
		def, err := split.Unmarshal(blob)
		if err != nil {
			return nil, serrors.NewCatalogError(serrors.CodeCorruptSplit,
				fmt.Sprintf("split %s of job %s does not decode", rec.Key, rec.JobID), err)
		}
		rec.Definition = def
		rec.ObjectPath = objectPath.String
		rec.CreatedAt = time.Unix(0, createdAt)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("failed to iterate splits", err)
	}

	sortRecords(records)
	return records, nil
}

// GetJob retrieves a single job by id.
func (c *SQLiteCatalog) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := c.readDB.QueryRowContext(ctx,
		"SELECT job_id, index_name, split_count, created_at FROM jobs WHERE job_id = ?", jobID)

	var (
		job       Job
		createdAt int64
	)
	if err := row.Scan(&job.JobID, &job.Index, &job.SplitCount, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobNotFound(jobID)
		}
		return nil, classify("failed to get job", err)
	}
	job.CreatedAt = time.Unix(0, createdAt)
	return &job, nil
}

// ListJobs returns all jobs, newest first.
func (c *SQLiteCatalog) ListJobs(ctx context.Context) ([]*Job, error) {
	rows, err := c.readDB.QueryContext(ctx,
		"SELECT job_id, index_name, split_count, created_at FROM jobs ORDER BY created_at DESC, job_id")
	if err != nil {
		return nil, classify("failed to list jobs", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var (
			job       Job
			createdAt int64
		)
		if err := rows.Scan(&job.JobID, &job.Index, &job.SplitCount, &createdAt); err != nil {
			return nil, classify("failed to scan job", err)
		}
		job.CreatedAt = time.Unix(0, createdAt)
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("failed to iterate jobs", err)
	}
	return jobs, nil
}

// DeleteJob removes jobID and its splits in one transaction.
func (c *SQLiteCatalog) DeleteJob(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM splits WHERE job_id = ?", jobID); err != nil {
		return classify("failed to delete splits", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE job_id = ?", jobID)
	if err != nil {
		return classify("failed to delete job", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return classify("failed to read rows affected", err)
	} else if n == 0 {
		return jobNotFound(jobID)
	}

	if err := tx.Commit(); err != nil {
		return classify("failed to commit job deletion", err)
	}
	return nil
}

// Close closes both database connections.
func (c *SQLiteCatalog) Close() error {
	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func sortRecords(records []*SplitRecord) {
	defs := make([]*split.PartitionDefinition, len(records))
	byDef := make(map[*split.PartitionDefinition]*SplitRecord, len(records))
	for i, r := range records {
		defs[i] = r.Definition
		byDef[r.Definition] = r
	}
	split.Sort(defs)
	for i, d := range defs {
		records[i] = byDef[d]
	}
}

func jobNotFound(jobID string) error {
	return serrors.NewCatalogError(serrors.CodeJobNotFound, fmt.Sprintf("job %s not found", jobID), nil).
		WithDetails(map[string]interface{}{"job_id": jobID})
}

// classify maps lock contention to a retryable write conflict.
func classify(msg string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
		return serrors.NewCatalogError(serrors.CodeWriteConflict, msg, err)
	}
	return serrors.NewInternalError("catalog: "+msg, err)
}
