package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Sift error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"       // 400
	ErrFileNotFound        ErrorCode = "FILE_NOT_FOUND"        // 404
	ErrNotFound            ErrorCode = "NOT_FOUND"             // 404
	ErrSuperseded          ErrorCode = "SUPERSEDED"            // 409
	ErrPathAmbiguous       ErrorCode = "PATH_AMBIGUOUS"        // 409
	ErrParse               ErrorCode = "PARSE_ERROR"           // 422
	ErrCancelled           ErrorCode = "CANCELLED"             // 499
	ErrInternal            ErrorCode = "INTERNAL"              // 500
	ErrToolExecutionFailed ErrorCode = "TOOL_EXECUTION_FAILED" // 502
	ErrToolUnavailable     ErrorCode = "TOOL_UNAVAILABLE"      // 503
	ErrStoreUnavailable    ErrorCode = "STORE_UNAVAILABLE"     // 503
)

// SiftError represents a structured error with code, status, and details.
type SiftError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
	cause   error
}

// Error implements the error interface.
func (e *SiftError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *SiftError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *SiftError {
	return &SiftError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewFileNotFound creates a 404 error for a missing file on disk.
func NewFileNotFound(path string) *SiftError {
	return &SiftError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewNotFound creates a 404 error for a missing run.
func NewNotFound(identifier string) *SiftError {
	return &SiftError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("run not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewSuperseded creates a 409 error for an invocation replaced by a newer trigger.
func NewSuperseded(tool, file string) *SiftError {
	return &SiftError{
		Code:    ErrSuperseded,
		Status:  409,
		Message: fmt.Sprintf("%s run on %s was superseded by a newer trigger", tool, file),
		Details: map[string]any{"tool": tool, "file": file},
	}
}

// NewPathAmbiguous creates a 409 error when a reported path matches several documents.
func NewPathAmbiguous(path string, candidates []string) *SiftError {
	return &SiftError{
		Code:    ErrPathAmbiguous,
		Status:  409,
		Message: fmt.Sprintf("path %q matches %d documents", path, len(candidates)),
		Details: map[string]any{"path": path, "candidates": candidates},
	}
}

// NewParse creates a 422 error when tool output is not valid structured data.
func NewParse(tool string, err error) *SiftError {
	msg := "invalid tool output"
	if err != nil {
		msg = err.Error()
	}
	return &SiftError{
		Code:    ErrParse,
		Status:  422,
		Message: fmt.Sprintf("cannot parse %s output: %s", tool, msg),
		Details: map[string]any{"tool": tool},
		cause:   err,
	}
}

// NewCancelled creates a 499 error when an operation is cancelled by the caller.
func NewCancelled(operation string) *SiftError {
	return &SiftError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", operation),
		Details: map[string]any{"operation": operation},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message is generic; the original error text is kept in Details for logging.
func NewInternal(err error) *SiftError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &SiftError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
		cause:   err,
	}
}

// NewToolExecutionFailed creates a 502 error for a non-zero exit with no usable output.
func NewToolExecutionFailed(tool string, exitCode int, stderr string) *SiftError {
	return &SiftError{
		Code:    ErrToolExecutionFailed,
		Status:  502,
		Message: fmt.Sprintf("%s exited with code %d and no output", tool, exitCode),
		Details: map[string]any{"tool": tool, "exit_code": exitCode, "stderr": stderr},
	}
}

// NewToolUnavailable creates a 503 error when a tool executable cannot be found or probed.
func NewToolUnavailable(tool string, err error) *SiftError {
	msg := fmt.Sprintf("%s is not available", tool)
	if err != nil {
		msg = fmt.Sprintf("%s is not available: %v", tool, err)
	}
	return &SiftError{
		Code:    ErrToolUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"tool": tool},
		cause:   err,
	}
}

// NewStoreUnavailable creates a 503 error when the project store cannot be opened.
func NewStoreUnavailable(path string, err error) *SiftError {
	msg := fmt.Sprintf("store unavailable: %s", path)
	if err != nil {
		msg = fmt.Sprintf("store unavailable: %s: %v", path, err)
	}
	return &SiftError{
		Code:    ErrStoreUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"path": path},
		cause:   err,
	}
}

// Is checks if an error is (or wraps) a SiftError with the given code.
func Is(err error, code ErrorCode) bool {
	var sErr *SiftError
	if stderrors.As(err, &sErr) {
		return sErr.Code == code
	}
	return false
}

// As returns the SiftError in err's chain, if any.
func As(err error) (*SiftError, bool) {
	var sErr *SiftError
	if stderrors.As(err, &sErr) {
		return sErr, true
	}
	return nil, false
}
