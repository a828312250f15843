package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/shardsplit/shardsplit/pkg/split"
)

// BatchReader reads and decodes many split files in parallel.
type BatchReader struct {
	storage     ObjectStorage
	concurrency int
}

// BatchResult contains the outcome of a batch read. Definitions are sorted;
// failures are keyed by object path.
type BatchResult struct {
	Definitions []*split.PartitionDefinition
	Errors      map[string]error
}

// NewBatchReader creates a reader allowing at most concurrency reads in
// flight. Values below 1 are treated as 1.
func NewBatchReader(storage ObjectStorage, concurrency int) *BatchReader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchReader{storage: storage, concurrency: concurrency}
}

// ReadJob reads every split file stored for jobID.
func (b *BatchReader) ReadJob(ctx context.Context, jobID string) (*BatchResult, error) {
	objects, err := b.storage.ListObjects(ctx, SplitPrefix(jobID))
	if err != nil {
		return nil, fmt.Errorf("storage: failed to list splits of job %s: %w", jobID, err)
	}
	var paths []string
	for _, o := range objects {
		if strings.HasSuffix(o, SplitExt) {
			paths = append(paths, o)
		}
	}
	return b.Read(ctx, paths)
}

// Read fetches and decodes objectPaths. A failure on one path does not stop
// the others; the returned error is non-nil only if the context ends.
func (b *BatchReader) Read(ctx context.Context, objectPaths []string) (*BatchResult, error) {
	result := &BatchResult{Errors: make(map[string]error)}
	if len(objectPaths) == 0 {
		return result, nil
	}

	sem := semaphore.NewWeighted(int64(b.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, p := range objectPaths {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(objectPath string) {
			defer sem.Release(1)
			defer wg.Done()

			d, err := ReadSplit(ctx, b.storage, objectPath)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[objectPath] = err
				return
			}
			result.Definitions = append(result.Definitions, d)
		}(p)
	}

	wg.Wait()
	split.Sort(result.Definitions)
	return result, nil
}
