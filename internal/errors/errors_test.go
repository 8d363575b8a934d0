package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestBenchError_Error(t *testing.T) {
	err := New(ErrCategoryIngest, CodeBatchFailed, "batch rejected")
	expected := "[INGEST:BATCH_FAILED] batch rejected"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestBenchError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryConnection, CodeConnectFailed, "clickhouse: ping", cause)
	expected := "[CONNECTION:CONNECT_FAILED] clickhouse: ping: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestBenchError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryQuery, CodeQueryFailed, "query", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestBenchError_Is(t *testing.T) {
	err1 := New(ErrCategoryContent, CodeNotFound, "first")
	err2 := New(ErrCategoryContent, CodeNotFound, "second")
	err3 := New(ErrCategoryContent, CodeDuplicate, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategorySink, CodeUploadFailed, true},
		{ErrCategorySink, CodeDownloadFailed, true},
		{ErrCategorySink, CodeObjectNotFound, false},
		{ErrCategoryConnection, CodeConnectFailed, false},
		{ErrCategoryIngest, CodeBatchFailed, false},
		{ErrCategoryQuery, CodeQueryFailed, false},
		{ErrCategoryProbe, CodeVisibilityFailed, false},
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
	err := fmt.Errorf("ingest likes: %w", New(ErrCategoryIngest, CodeDecodeFailed, "bad line"))
	if GetCategory(err) != ErrCategoryIngest {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryIngest)
	}
	if GetCode(err) != CodeDecodeFailed {
		t.Errorf("got %q, want %q", GetCode(err), CodeDecodeFailed)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-BenchError should return empty category")
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-BenchError should return empty code")
	}
}

func TestAt(t *testing.T) {
	err := Wrap(ErrCategoryIngest, CodeBatchFailed, "batch 3 after 2000 rows", fmt.Errorf("disk full"))
	at := err.At("sqlite", "write batch likes")

	if at.Backend != "sqlite" || at.Op != "write batch likes" {
		t.Errorf("unexpected attribution: %q %q", at.Backend, at.Op)
	}
	if err.Backend != "" || err.Op != "" {
		t.Error("At should not modify original")
	}
	expected := "[INGEST:BATCH_FAILED] sqlite: write batch likes: batch 3 after 2000 rows: disk full"
	if at.Error() != expected {
		t.Errorf("got %q, want %q", at.Error(), expected)
	}
	if !errors.Is(at, New(ErrCategoryIngest, CodeBatchFailed, "")) {
		t.Error("attribution should not change category+code matching")
	}
}

func TestBackendConstructors(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")

	c := NewConnectionError("mongodb", "connect", cause)
	if c.Category != ErrCategoryConnection || !errors.Is(c, cause) {
		t.Error("NewConnectionError mismatch")
	}
	if c.Backend != "mongodb" || c.Op != "connect" {
		t.Errorf("unexpected attribution: %q %q", c.Backend, c.Op)
	}

	b := NewBackendError(ErrCategoryIngest, CodeBatchFailed, "clickhouse", "write batch likes", cause)
	if b.Error() != "[INGEST:BATCH_FAILED] clickhouse: write batch likes: dial tcp: refused" {
		t.Errorf("unexpected message: %s", b.Error())
	}

	s := NewSinkError(CodeUploadFailed, "s3 down", cause)
	if !s.Retryable() {
		t.Error("sink uploads should be retryable")
	}
	if !IsRetryable(fmt.Errorf("publish: %w", s)) {
		t.Error("retryability should survive wrapping")
	}

	n := NewContentError(CodeNotFound, "review not found")
	if n.Category != ErrCategoryContent || n.Code != CodeNotFound {
		t.Error("NewContentError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
