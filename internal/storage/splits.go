package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"

	serrors "github.com/shardsplit/shardsplit/internal/errors"
	"github.com/shardsplit/shardsplit/pkg/split"
)

// SplitExt is the file extension of an encoded definition.
const SplitExt = ".split"

// SplitPrefix returns the object prefix holding the split files of a job.
func SplitPrefix(jobID string) string {
	return path.Join("jobs", jobID, "splits") + "/"
}

// SplitPath returns the object path of one definition. The identity key is
// path-escaped so index names and slice separators stay within one segment.
func SplitPath(jobID string, d *split.PartitionDefinition) string {
	return SplitPrefix(jobID) + url.PathEscape(d.Key()) + SplitExt
}

// SplitWriter writes encoded definitions to object storage.
type SplitWriter struct {
	storage ObjectStorage
}

// NewSplitWriter creates a writer over storage.
func NewSplitWriter(storage ObjectStorage) *SplitWriter {
	return &SplitWriter{storage: storage}
}

// Write stores d under the job's split prefix and returns its object path.
func (w *SplitWriter) Write(ctx context.Context, jobID string, d *split.PartitionDefinition) (string, error) {
	data, err := d.Marshal()
	if err != nil {
		return "", fmt.Errorf("storage: failed to encode %s: %w", d.Key(), err)
	}
	objectPath := SplitPath(jobID, d)
	if err := w.storage.Put(ctx, objectPath, data); err != nil {
		return "", err
	}
	return objectPath, nil
}

// WriteAll stores every definition and returns their object paths keyed by
// identity key.
func (w *SplitWriter) WriteAll(ctx context.Context, jobID string, defs []*split.PartitionDefinition) (map[string]string, error) {
	paths := make(map[string]string, len(defs))
	for _, d := range defs {
		p, err := w.Write(ctx, jobID, d)
		if err != nil {
			return nil, err
		}
		paths[d.Key()] = p
	}
	return paths, nil
}

// DeleteJob removes every split file of jobID and returns how many were
// removed.
func (w *SplitWriter) DeleteJob(ctx context.Context, jobID string) (int, error) {
	paths, err := w.storage.ListObjects(ctx, SplitPrefix(jobID))
	if err != nil {
		return 0, err
	}
	for i, p := range paths {
		if err := w.storage.Delete(ctx, p); err != nil {
			return i, err
		}
	}
	return len(paths), nil
}

// ReadSplit fetches and decodes one split file.
func ReadSplit(ctx context.Context, storage ObjectStorage, objectPath string) (*split.PartitionDefinition, error) {
	data, err := storage.Get(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	d, err := split.Unmarshal(data)
	if err != nil {
		return nil, serrors.NewCatalogError(serrors.CodeCorruptSplit,
			fmt.Sprintf("split file %s does not decode", objectPath), err)
	}
	return d, nil
}
