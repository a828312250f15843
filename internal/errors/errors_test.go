package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestSplitError_Error(t *testing.T) {
	err := New(ErrCategoryCodec, CodeTruncatedInput, "stream ended in shard id")
	expected := "[CODEC:TRUNCATED_INPUT] stream ended in shard id"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSplitError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("unexpected EOF")
	err := Wrap(ErrCategoryCodec, CodeTruncatedInput, "reading settings", cause)
	expected := "[CODEC:TRUNCATED_INPUT] reading settings: unexpected EOF"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestSplitError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("database is locked")
	err := Wrap(ErrCategoryCatalog, CodeWriteConflict, "conflict", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestSplitError_Is(t *testing.T) {
	err1 := New(ErrCategoryCodec, CodeInconsistentLength, "first")
	err2 := New(ErrCategoryCodec, CodeInconsistentLength, "second")
	err3 := New(ErrCategoryCodec, CodeTruncatedInput, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}

	wrapped := fmt.Errorf("split: decode: %w", err1)
	if !errors.Is(wrapped, err2) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategoryStorage, CodeDeleteFailed, false},
		{ErrCategoryCatalog, CodeWriteConflict, true},
		{ErrCategoryCatalog, CodeCorruptSplit, false},
		{ErrCategoryCodec, CodeTruncatedInput, false},
		{ErrCategoryCodec, CodeInconsistentLength, false},
		{ErrCategoryCodec, CodePayloadTooLarge, false},
		{ErrCategoryValidation, CodeInvalidConfig, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategoryAndCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrCategoryCodec, CodeMalformedText, "bad index"))
	if GetCategory(err) != ErrCategoryCodec {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryCodec)
	}
	if GetCode(err) != CodeMalformedText {
		t.Errorf("got %q, want %q", GetCode(err), CodeMalformedText)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-SplitError should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-SplitError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryCodec, CodeInconsistentLength, "bad length")
	detailed := err.WithDetails(map[string]interface{}{"length": -1})

	if detailed.Details["length"] != -1 {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewValidationError(CodeNoShards, "index has no shards")
	if v.Category != ErrCategoryValidation || v.Code != CodeNoShards {
		t.Error("NewValidationError mismatch")
	}

	s := NewStorageError(CodeUploadFailed, "s3 down", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	c := NewCatalogError(CodeWriteConflict, "locked", cause)
	if c.Category != ErrCategoryCatalog {
		t.Error("NewCatalogError mismatch")
	}

	d := NewCodecError(CodeTruncatedInput, "short read", cause)
	if d.Category != ErrCategoryCodec || d.Retryable {
		t.Error("NewCodecError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
