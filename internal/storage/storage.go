// Package storage provides object storage for encoded split files.
package storage

import (
	"context"

	serrors "github.com/shardsplit/shardsplit/internal/errors"
)

// Sentinel errors for storage operations. Returned errors match them with
// errors.Is and carry the underlying cause.
var (
	ErrObjectNotFound = serrors.New(serrors.ErrCategoryStorage, serrors.CodeObjectNotFound, "object not found")
	ErrUploadFailed   = serrors.New(serrors.ErrCategoryStorage, serrors.CodeUploadFailed, "upload failed")
	ErrDownloadFailed = serrors.New(serrors.ErrCategoryStorage, serrors.CodeDownloadFailed, "download failed")
	ErrDeleteFailed   = serrors.New(serrors.ErrCategoryStorage, serrors.CodeDeleteFailed, "delete failed")
)

// ObjectStorage abstracts object storage over small byte payloads.
// Implementations include S3 and the local filesystem.
type ObjectStorage interface {
	// Put writes data to objectPath, replacing any existing object.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Get reads the object at objectPath. A missing object yields ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// Exists checks if an object exists in storage.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns all object paths under the given prefix, sorted.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

func uploadFailed(objectPath string, cause error) error {
	return serrors.NewStorageError(serrors.CodeUploadFailed, "upload of "+objectPath+" failed", cause)
}

func downloadFailed(objectPath string, cause error) error {
	return serrors.NewStorageError(serrors.CodeDownloadFailed, "download of "+objectPath+" failed", cause)
}

func deleteFailed(objectPath string, cause error) error {
	return serrors.NewStorageError(serrors.CodeDeleteFailed, "delete of "+objectPath+" failed", cause)
}

func notFound(objectPath string) error {
	return serrors.NewStorageError(serrors.CodeObjectNotFound, objectPath+" not found", nil)
}
