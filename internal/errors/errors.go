// Package errors provides structured error types for the benchmark harness.
// Errors raised by adapter calls also name the backend and operation.
package errors

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrorCategory classifies errors by harness component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategoryGenerator  ErrorCategory = "GENERATOR"
	ErrCategoryConnection ErrorCategory = "CONNECTION"
	ErrCategoryIngest     ErrorCategory = "INGEST"
	ErrCategoryQuery      ErrorCategory = "QUERY"
	ErrCategoryProbe      ErrorCategory = "PROBE"
	ErrCategorySink       ErrorCategory = "SINK"
	ErrCategoryContent    ErrorCategory = "CONTENT"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidConfig  = "INVALID_CONFIG"
	CodeUnknownBackend = "UNKNOWN_BACKEND"
	CodeInvalidField   = "INVALID_FIELD"

	// Generator codes
	CodeWriteFailed    = "WRITE_FAILED"
	CodeDigestMismatch = "DIGEST_MISMATCH"

	// Connection codes
	CodeConnectFailed = "CONNECT_FAILED"
	CodeSetupFailed   = "SETUP_FAILED"

	// Ingest codes
	CodeBatchFailed  = "BATCH_FAILED"
	CodeDecodeFailed = "DECODE_FAILED"

	// Query codes
	CodeQueryFailed = "QUERY_FAILED"

	// Probe codes
	CodeProbeWriteFailed = "PROBE_WRITE_FAILED"
	CodeVisibilityFailed = "VISIBILITY_CHECK_FAILED"

	// Sink codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"

	// Content codes
	CodeNotFound    = "NOT_FOUND"
	CodeDuplicate   = "DUPLICATE"
	CodeStoreFailed = "STORE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// BenchError is the structured error type used throughout the harness.
// Backend and Op are set when the failure is attributable to an adapter
// call; the report keys failures by them.
type BenchError struct {
	Category ErrorCategory
	Code     string
	Backend  string
	Op       string
	Message  string
	Cause    error
}

// retryPolicy lists the only codes the harness itself may retry: report
// sink transfers. Backend operations are measured, never retried.
var retryPolicy = map[ErrorCategory][]string{
	ErrCategorySink: {CodeUploadFailed, CodeDownloadFailed},
}

// Error renders "[CATEGORY:CODE] backend: op: message: cause", skipping
// empty parts.
func (e *BenchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s]", e.Category, e.Code)
	sep := " "
	for _, part := range []string{e.Backend, e.Op, e.Message} {
		if part == "" {
			continue
		}
		b.WriteString(sep)
		b.WriteString(part)
		sep = ": "
	}
	if e.Cause != nil {
		b.WriteString(sep)
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *BenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *BenchError) Is(target error) bool {
	var t *BenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// Retryable reports whether the retry policy allows another attempt.
func (e *BenchError) Retryable() bool {
	return slices.Contains(retryPolicy[e.Category], e.Code)
}

// New creates a new BenchError.
func New(category ErrorCategory, code, message string) *BenchError {
	return &BenchError{Category: category, Code: code, Message: message}
}

// Wrap creates a new BenchError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *BenchError {
	return &BenchError{Category: category, Code: code, Message: message, Cause: cause}
}

// At returns a copy attributed to a backend operation.
func (e *BenchError) At(backend, op string) *BenchError {
	cp := *e
	cp.Backend, cp.Op = backend, op
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var be *BenchError
	return errors.As(err, &be) && be.Retryable()
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCategory(err error) ErrorCategory {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a BenchError.
func GetCode(err error) string {
	var be *BenchError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *BenchError {
	return New(ErrCategoryValidation, code, message)
}

// NewConnectionError reports an unreachable backend.
func NewConnectionError(backend, op string, cause error) *BenchError {
	return &BenchError{Category: ErrCategoryConnection, Code: CodeConnectFailed, Backend: backend, Op: op, Cause: cause}
}

// NewBackendError attributes a failed adapter call to its backend and operation.
func NewBackendError(category ErrorCategory, code, backend, op string, cause error) *BenchError {
	return &BenchError{Category: category, Code: code, Backend: backend, Op: op, Cause: cause}
}

func NewSinkError(code, message string, cause error) *BenchError {
	return Wrap(ErrCategorySink, code, message, cause)
}

func NewContentError(code, message string) *BenchError {
	return New(ErrCategoryContent, code, message)
}

func NewInternalError(message string, cause error) *BenchError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
