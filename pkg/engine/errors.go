package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for abort and
// recovery decisions during a configuration pass.
type ErrorClass string

const (
	// ErrorClassConflict indicates the computed verdict contradicts an
	// explicit forced user directive. Conflicts are fatal and abort the
	// whole configuration pass.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassProbe indicates a probe failed to execute. Probe errors
	// are recoverable: the engine degrades to the record's pre-probe
	// default and the pass continues.
	ErrorClassProbe ErrorClass = "probe"

	// ErrorClassCatalog indicates malformed catalog input. Catalog
	// errors are fatal at load time, before any evaluation runs.
	ErrorClassCatalog ErrorClass = "catalog"

	// ErrorClassStore indicates a history persistence failure.
	ErrorClassStore ErrorClass = "store"

	// ErrorClassInternal indicates an engine invariant violation.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with package context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for abort logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Package is the package identifier that caused the error, if any.
	Package string `json:"package,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Package != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (package=%s, operation=%s)%s",
			e.Class, e.Message, e.Package, e.Operation, e.unwrapSuffix())
	}
	if e.Package != "" {
		return fmt.Sprintf("[%s] %s (package=%s)%s",
			e.Class, e.Message, e.Package, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConflictError creates a fatal policy-conflict error for a package.
func NewConflictError(pkg, message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Message: message,
		Package: pkg,
	}
}

// NewProbeError creates a recoverable probe-execution error.
func NewProbeError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassProbe,
		Message: message,
		Err:     err,
	}
}

// NewCatalogError creates a fatal catalog-load error.
func NewCatalogError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassCatalog,
		Message: message,
		Err:     err,
	}
}

// NewStoreError creates a history persistence error.
func NewStoreError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassStore,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates an internal invariant-violation error.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassInternal,
		Message: message,
		Err:     err,
	}
}

// WithPackage adds package context to an error.
func (e *EngineError) WithPackage(pkg string) *EngineError {
	e.Package = pkg
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsConflict returns true if the error is a fatal policy conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsProbeFailure returns true if the error is a recoverable probe failure.
func IsProbeFailure(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassProbe
	}
	return false
}

// IsCatalogError returns true if the error is a catalog-load failure.
func IsCatalogError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassCatalog
	}
	return false
}

// IsStoreError returns true if the error is a persistence failure.
func IsStoreError(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassStore
	}
	return false
}

// IsFatal returns true if the error aborts the configuration pass.
// Conflict and catalog errors are fatal; probe errors never are.
func IsFatal(err error) bool {
	return IsConflict(err) || IsCatalogError(err)
}

// Common error codes.
const (
	ErrCodeForcedSystemUnsatisfied = "FORCED_SYSTEM_UNSATISFIED"
	ErrCodeEmptyPackageName        = "EMPTY_PACKAGE_NAME"
	ErrCodeDuplicatePackage        = "DUPLICATE_PACKAGE"
	ErrCodeInvalidProbeSpec        = "INVALID_PROBE_SPEC"
	ErrCodeChecksumMismatch        = "CHECKSUM_MISMATCH"
	ErrCodeProbeTimeout            = "PROBE_TIMEOUT"
	ErrCodeValidation              = "VALIDATION_ERROR"
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeInternal                = "INTERNAL_ERROR"
)
