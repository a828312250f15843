// Package errors provides structured error types for shardsplit.
// Every error carries a category, a code, a message and a retryable flag so
// callers across the planner, catalog and transports can branch on kind.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategoryCatalog    ErrorCategory = "CATALOG"
	ErrCategoryCodec      ErrorCategory = "CODEC"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidConfig  = "INVALID_CONFIG"
	CodeInvalidIndex   = "INVALID_INDEX"
	CodeNoShards       = "NO_SHARDS"
	CodeInvalidWorkers = "INVALID_WORKERS"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Catalog codes
	CodeWriteConflict = "WRITE_CONFLICT"
	CodeJobNotFound   = "JOB_NOT_FOUND"
	CodeCorruptSplit  = "CORRUPT_SPLIT"

	// Codec codes
	CodeTruncatedInput     = "TRUNCATED_INPUT"
	CodeInconsistentLength = "INCONSISTENT_LENGTH"
	CodeMalformedText      = "MALFORMED_TEXT"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// SplitError is the structured error type used throughout the system.
type SplitError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *SplitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *SplitError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *SplitError) Is(target error) bool {
	var t *SplitError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new SplitError.
func New(category ErrorCategory, code, message string) *SplitError {
	return &SplitError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new SplitError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *SplitError {
	return &SplitError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *SplitError) WithDetails(details map[string]interface{}) *SplitError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var se *SplitError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a SplitError.
func GetCategory(err error) ErrorCategory {
	var se *SplitError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a SplitError.
func GetCode(err error) string {
	var se *SplitError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// isRetryable reports which codes are transient. Codec failures never are:
// the same bytes decode the same way every time.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryCatalog && code == CodeWriteConflict:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *SplitError {
	return New(ErrCategoryValidation, code, message)
}

func NewStorageError(code, message string, cause error) *SplitError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewCatalogError(code, message string, cause error) *SplitError {
	return Wrap(ErrCategoryCatalog, code, message, cause)
}

func NewCodecError(code, message string, cause error) *SplitError {
	return Wrap(ErrCategoryCodec, code, message, cause)
}

func NewInternalError(message string, cause error) *SplitError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
