package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestEngineErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *EngineError
		want string
	}{
		{
			name: "bare",
			err:  &EngineError{Class: ErrorClassInternal, Message: "invariant violated"},
			want: "[internal] invariant violated",
		},
		{
			name: "with package",
			err:  NewConflictError("zlib", "no adequate system copy"),
			want: "[conflict] no adequate system copy (package=zlib)",
		},
		{
			name: "with package and operation",
			err:  NewConflictError("zlib", "no adequate system copy").WithOperation("evaluate"),
			want: "[conflict] no adequate system copy (package=zlib, operation=evaluate)",
		},
		{
			name: "with cause",
			err:  NewProbeError("availability probe failed", errors.New("exit status 127")),
			want: "[probe] availability probe failed: exit status 127",
		},
		{
			name: "with package and cause",
			err:  NewStoreError("insert decision", errors.New("database is locked")).WithPackage("gmp"),
			want: "[store] insert decision (package=gmp): database is locked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestEngineErrorUnwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewCatalogError("read catalog", cause)

	if !errors.Is(err, cause) {
		t.Error("Expected the cause to be reachable through Unwrap")
	}
	if NewConflictError("zlib", "conflict").Unwrap() != nil {
		t.Error("Expected nil for an error without a cause")
	}
}

func TestEngineErrorIs(t *testing.T) {
	conflict := NewConflictError("zlib", "first").WithCode(ErrCodeForcedSystemUnsatisfied)

	match := NewConflictError("gmp", "second").WithCode(ErrCodeForcedSystemUnsatisfied)
	if !errors.Is(conflict, match) {
		t.Error("Expected errors with the same class and code to match")
	}

	otherCode := NewConflictError("zlib", "first").WithCode(ErrCodeValidation)
	if errors.Is(conflict, otherCode) {
		t.Error("Expected different codes not to match")
	}

	otherClass := NewProbeError("first", nil).WithCode(ErrCodeForcedSystemUnsatisfied)
	if errors.Is(conflict, otherClass) {
		t.Error("Expected different classes not to match")
	}

	if errors.Is(conflict, errors.New("plain")) {
		t.Error("Expected a plain error not to match")
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *EngineError
		class ErrorClass
		fatal bool
	}{
		{name: "conflict", err: NewConflictError("zlib", "m"), class: ErrorClassConflict, fatal: true},
		{name: "probe", err: NewProbeError("m", nil), class: ErrorClassProbe, fatal: false},
		{name: "catalog", err: NewCatalogError("m", nil), class: ErrorClassCatalog, fatal: true},
		{name: "store", err: NewStoreError("m", nil), class: ErrorClassStore, fatal: false},
		{name: "internal", err: NewInternalError("m", nil), class: ErrorClassInternal, fatal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Class != tt.class {
				t.Errorf("Expected class %s, got %s", tt.class, tt.err.Class)
			}
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("Expected fatal=%v, got %v", tt.fatal, got)
			}
		})
	}
}

func TestErrorContextChaining(t *testing.T) {
	err := NewProbeError("probe timed out", nil).
		WithPackage("openssl").
		WithOperation("availability").
		WithCode(ErrCodeProbeTimeout).
		WithDetail("timeout_seconds", 30).
		WithDetail("runtime", "wasm")

	if err.Package != "openssl" {
		t.Errorf("Expected package openssl, got %q", err.Package)
	}
	if err.Operation != "availability" {
		t.Errorf("Expected operation availability, got %q", err.Operation)
	}
	if err.Code != ErrCodeProbeTimeout {
		t.Errorf("Expected code %s, got %s", ErrCodeProbeTimeout, err.Code)
	}
	if len(err.Details) != 2 {
		t.Fatalf("Expected two details, got %d", len(err.Details))
	}
	if err.Details["runtime"] != "wasm" {
		t.Errorf("Expected runtime detail, got %v", err.Details["runtime"])
	}
}

func TestErrorPredicates(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		conflict, probe bool
		catalog, store  bool
	}{
		{name: "conflict", err: NewConflictError("zlib", "m"), conflict: true},
		{name: "probe", err: NewProbeError("m", nil), probe: true},
		{name: "catalog", err: NewCatalogError("m", nil), catalog: true},
		{name: "store", err: NewStoreError("m", nil), store: true},
		{name: "plain", err: errors.New("m")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConflict(tt.err); got != tt.conflict {
				t.Errorf("IsConflict: expected %v, got %v", tt.conflict, got)
			}
			if got := IsProbeFailure(tt.err); got != tt.probe {
				t.Errorf("IsProbeFailure: expected %v, got %v", tt.probe, got)
			}
			if got := IsCatalogError(tt.err); got != tt.catalog {
				t.Errorf("IsCatalogError: expected %v, got %v", tt.catalog, got)
			}
			if got := IsStoreError(tt.err); got != tt.store {
				t.Errorf("IsStoreError: expected %v, got %v", tt.store, got)
			}
		})
	}
}

func TestErrorPredicatesThroughWrapping(t *testing.T) {
	inner := NewConflictError("zlib", "forced system copy missing")
	wrapped := fmt.Errorf("pass aborted: %w", inner)

	if !IsConflict(wrapped) {
		t.Error("Expected the conflict to survive wrapping")
	}
	if !IsFatal(wrapped) {
		t.Error("Expected the wrapped conflict to stay fatal")
	}

	var ee *EngineError
	if !errors.As(wrapped, &ee) {
		t.Fatal("Expected errors.As to find the EngineError")
	}
	if ee.Package != "zlib" {
		t.Errorf("Expected the package preserved, got %q", ee.Package)
	}
}
