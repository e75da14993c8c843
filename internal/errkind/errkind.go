// Package errkind defines the closed set of error kinds used across the
// synthesis pipeline (spec §7) and a small wrapper type that carries one of
// them alongside the usual wrapped error chain.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error kinds. Callers use errors.As to recover a
// *Error and switch on Kind rather than string-matching messages.
type Kind string

const (
	InvalidInput            Kind = "InvalidInput"
	ProviderUnavailable      Kind = "ProviderUnavailable"
	ProviderSchemaViolation  Kind = "ProviderSchemaViolation"
	ExternalServiceError     Kind = "ExternalServiceError"
	SchemaInvariant          Kind = "SchemaInvariant"
	Timeout                  Kind = "Timeout"
	Cancelled                Kind = "Cancelled"
	UnknownEntity            Kind = "UnknownEntity"
)

// Error wraps an underlying error with a closed Kind tag.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "stage_3.internal_retrieval"
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a new *Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether the first *Error found in err's chain has the given
// Kind; any further *Error wrapped beneath it is not inspected.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Transient reports whether a Kind is expected to be retried by the caller
// rather than surfaced immediately (§4.A, §7).
func Transient(kind Kind) bool {
	switch kind {
	case Timeout, ExternalServiceError:
		return true
	default:
		return false
	}
}
