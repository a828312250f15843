package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	serrors "github.com/shardsplit/shardsplit/internal/errors"
	"github.com/shardsplit/shardsplit/pkg/split"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to create catalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func def(index string, shard int32, sl *split.Slice) *split.PartitionDefinition {
	settings := "es.resource=" + index + "\n"
	return split.NewFromPayloads(index, shard, sl, &settings, nil)
}

func TestCatalog_CreateAndGetJob(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	jobID, err := c.CreateJob(ctx, "logs")
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if _, err := uuid.Parse(jobID); err != nil {
		t.Errorf("job id %q is not a uuid: %v", jobID, err)
	}

	job, err := c.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Index != "logs" || job.SplitCount != 0 {
		t.Errorf("unexpected job: %+v", job)
	}

	if _, err := c.GetJob(ctx, "nope"); serrors.GetCode(err) != serrors.CodeJobNotFound {
		t.Errorf("expected JOB_NOT_FOUND, got %v", err)
	}
	if _, err := c.CreateJob(ctx, ""); serrors.GetCode(err) != serrors.CodeInvalidIndex {
		t.Errorf("expected INVALID_INDEX, got %v", err)
	}
}

func TestCatalog_RegisterSplitsIsIdempotent(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	jobID, err := c.CreateJob(ctx, "logs")
	if err != nil {
		t.Fatal(err)
	}

	s0 := split.NewSlice(0, 2)
	s1 := split.NewSlice(1, 2)
	assignments := []Assignment{
		{Definition: def("logs", 1, &s1), Worker: 1, ObjectPath: "jobs/x/splits/logs_1_1_of_2.split"},
		{Definition: def("logs", 0, nil), Worker: 0},
		{Definition: def("logs", 1, &s0), Worker: 0},
	}

	n, err := c.RegisterSplits(ctx, jobID, assignments)
	if err != nil {
		t.Fatalf("RegisterSplits failed: %v", err)
	}
	if n != 3 {
		t.Errorf("inserted %d, want 3", n)
	}

	n, err = c.RegisterSplits(ctx, jobID, assignments)
	if err != nil {
		t.Fatalf("second RegisterSplits failed: %v", err)
	}
	if n != 0 {
		t.Errorf("re-registration inserted %d, want 0", n)
	}

	job, err := c.GetJob(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if job.SplitCount != 3 {
		t.Errorf("split count = %d, want 3", job.SplitCount)
	}

	records, err := c.ListSplits(ctx, jobID)
	if err != nil {
		t.Fatalf("ListSplits failed: %v", err)
	}
	wantKeys := []string{"logs/0", "logs/1/0_of_2", "logs/1/1_of_2"}
	if len(records) != len(wantKeys) {
		t.Fatalf("got %d records, want %d", len(records), len(wantKeys))
	}
	for i, k := range wantKeys {
		if records[i].Key != k || records[i].Definition.Key() != k {
			t.Errorf("record %d: key %s / %s, want %s", i, records[i].Key, records[i].Definition.Key(), k)
		}
	}
	if records[2].ObjectPath == "" || records[0].ObjectPath != "" {
		t.Errorf("object paths not preserved: %q, %q", records[0].ObjectPath, records[2].ObjectPath)
	}
	if p, ok := records[0].Definition.SerializedSettings(); !ok || p != "es.resource=logs\n" {
		t.Errorf("payload not preserved: %q present=%v", p, ok)
	}
}

func TestCatalog_SplitsForWorker(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	jobID, err := c.CreateJob(ctx, "logs")
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.RegisterSplits(ctx, jobID, []Assignment{
		{Definition: def("logs", 2, nil), Worker: 1},
		{Definition: def("logs", 0, nil), Worker: 1},
		{Definition: def("logs", 1, nil), Worker: 0},
	})
	if err != nil {
		t.Fatal(err)
	}

	records, err := c.SplitsForWorker(ctx, jobID, 1)
	if err != nil {
		t.Fatalf("SplitsForWorker failed: %v", err)
	}
	if len(records) != 2 || records[0].Key != "logs/0" || records[1].Key != "logs/2" {
		t.Errorf("unexpected worker 1 splits: %v", records)
	}

	empty, err := c.SplitsForWorker(ctx, jobID, 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("worker 9 should have no splits, got %d", len(empty))
	}

	if _, err := c.SplitsForWorker(ctx, "missing", 0); serrors.GetCode(err) != serrors.CodeJobNotFound {
		t.Errorf("expected JOB_NOT_FOUND, got %v", err)
	}
}

func TestCatalog_RegisterSplitsUnknownJob(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.RegisterSplits(context.Background(), "missing", []Assignment{{Definition: def("a", 0, nil)}})
	if serrors.GetCode(err) != serrors.CodeJobNotFound {
		t.Errorf("expected JOB_NOT_FOUND, got %v", err)
	}
}

func TestCatalog_CorruptBlob(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	jobID, err := c.CreateJob(ctx, "logs")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.RegisterSplits(ctx, jobID, []Assignment{{Definition: def("logs", 0, nil)}}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.db.Exec("UPDATE splits SET definition = X'0003' WHERE job_id = ?", jobID); err != nil {
		t.Fatal(err)
	}

	_, err = c.ListSplits(ctx, jobID)
	if serrors.GetCode(err) != serrors.CodeCorruptSplit {
		t.Errorf("expected CORRUPT_SPLIT, got %v", err)
	}
}

func TestCatalog_ListJobs(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	for _, idx := range []string{"a", "b", "c"} {
		if _, err := c.CreateJob(ctx, idx); err != nil {
			t.Fatal(err)
		}
	}

	jobs, err := c.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i-1].CreatedAt.Before(jobs[i].CreatedAt) {
			t.Error("jobs should be listed newest first")
		}
	}
}

func TestCatalog_DeleteJob(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	jobID, err := c.CreateJob(ctx, "logs")
	if err != nil {
		t.Fatal(err)
	}
	keep, err := c.CreateJob(ctx, "logs")
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{jobID, keep} {
		if _, err := c.RegisterSplits(ctx, id, []Assignment{{Definition: def("logs", 0, nil)}}); err != nil {
			t.Fatal(err)
		}
	}

	if err := c.DeleteJob(ctx, jobID); err != nil {
		t.Fatalf("DeleteJob failed: %v", err)
	}
	if _, err := c.GetJob(ctx, jobID); serrors.GetCode(err) != serrors.CodeJobNotFound {
		t.Errorf("expected JOB_NOT_FOUND after delete, got %v", err)
	}
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM splits WHERE job_id = ?", jobID).Scan(&n); err != nil || n != 0 {
		t.Errorf("splits left behind: %d (%v)", n, err)
	}

	records, err := c.ListSplits(ctx, keep)
	if err != nil || len(records) != 1 {
		t.Errorf("other job should be untouched, got %d splits (%v)", len(records), err)
	}

	if err := c.DeleteJob(ctx, jobID); serrors.GetCode(err) != serrors.CodeJobNotFound {
		t.Errorf("expected JOB_NOT_FOUND on second delete, got %v", err)
	}
}

func TestCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	c, err := NewCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	jobID, err := c.CreateJob(ctx, "logs")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.RegisterSplits(ctx, jobID, []Assignment{{Definition: def("logs", 0, nil)}}); err != nil {
		t.Fatal(err)
	}
	c.Close()

	reopened, err := NewCatalog(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.ListSplits(ctx, jobID)
	if err != nil {
		t.Fatalf("ListSplits after reopen failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("got %d records after reopen, want 1", len(records))
	}
}
