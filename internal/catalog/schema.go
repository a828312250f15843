// Package catalog records planned jobs and the partition definitions
// assigned to each worker in a SQLite database (catalog.db).
package catalog

// CreateJobsTableSQL creates the jobs table. split_count is maintained by
// RegisterSplits.
const CreateJobsTableSQL = `
CREATE TABLE IF NOT EXISTS jobs (
    job_id TEXT PRIMARY KEY,
    index_name TEXT NOT NULL,
    split_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
)`

// CreateSplitsTableSQL creates the splits table. The identity columns mirror
// the encoded definition so rows can be filtered without decoding.
const CreateSplitsTableSQL = `
CREATE TABLE IF NOT EXISTS splits (
    job_id TEXT NOT NULL,
    split_key TEXT NOT NULL,
    index_name TEXT NOT NULL,
    shard_id INTEGER NOT NULL,
    slice_id INTEGER,
    slice_max INTEGER,
    worker INTEGER NOT NULL,
    object_path TEXT,
    definition BLOB NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (job_id, split_key),
    FOREIGN KEY (job_id) REFERENCES jobs(job_id)
)`

var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_splits_worker ON splits(job_id, worker)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at)`,
}

// AllSchemaSQL returns the schema statements in execution order.
func AllSchemaSQL() []string {
	stmts := []string{CreateJobsTableSQL, CreateSplitsTableSQL}
	return append(stmts, CreateIndexesSQL...)
}
