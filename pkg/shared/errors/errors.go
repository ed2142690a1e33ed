// Package errors implements the error taxonomy shared by every component:
// an OperationError wrapper for ad-hoc failures, and a Kind taxonomy
// (transient/capacity/validation/permanent/semantic/fatal) that callers use
// to decide retry, circuit-breaker accounting, and DLQ routing.
package errors

import (
	stderrors "errors"
	"fmt"
)

// OperationError describes a failed operation with enough structure for
// logging and for errors.As-based inspection upstream.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	msg := "failed to " + e.Operation
	if e.Component != "" {
		msg += ", component: " + e.Component
	}
	if e.Resource != "" {
		msg += ", resource: " + e.Resource
	}
	if e.Cause != nil {
		msg += ", cause: " + e.Cause.Error()
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FailedTo builds a minimal OperationError when cause is nil; with a
// non-nil cause it returns a "failed to <action>: <cause>" error that wraps
// cause, which is not an OperationError.
func FailedTo(action string, cause error) error {
	if cause == nil {
		return &OperationError{Operation: action}
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a fully-populated OperationError.
func FailedToWithDetails(operation, component, resource string, cause error) error {
	return &OperationError{
		Operation: operation,
		Component: component,
		Resource:  resource,
		Cause:     cause,
	}
}

// Wrapf wraps err with a formatted prefix, or returns nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(fmt.Sprintf(format, args...)+": %w", err)
}

func DatabaseError(operation string, cause error) error {
	return FailedToWithDetails(operation, "database", "", cause)
}

func NetworkError(operation, endpoint string, cause error) error {
	return FailedToWithDetails(operation, "network", endpoint, cause)
}

func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

func ConfigurationError(key, reason string) error {
	return fmt.Errorf("configuration error for %s: %s", key, reason)
}

// Kind is the closed taxonomy from the error-handling design: it decides how
// C1 (retry), C2 (circuit breaker), C4 (DLQ), and C6 (outbox relay) treat a
// failure.
type Kind string

const (
	KindTransient  Kind = "transient"  // timeouts, resets, rate limits, 5xx — retryable
	KindCapacity   Kind = "capacity"   // circuit OPEN, queue saturation — back off
	KindValidation Kind = "validation" // schema mismatch, unknown version — DLQ, non-retryable
	KindPermanent  Kind = "permanent"  // unauthorized, malformed — FAILED, non-retryable
	KindSemantic   Kind = "semantic"   // unresolved merge conflict — skip, emit insight
	KindFatal      Kind = "fatal"      // cannot reach DB/bus on startup — service goes ERROR
)

// Classified is an error tagged with a Kind plus optional retry-after hint
// (used by capacity errors surfaced from an open circuit breaker).
type Classified struct {
	Kind       Kind
	Message    string
	Cause      error
	RetryAfter float64 // seconds; zero unless Kind == KindCapacity
}

func (e *Classified) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Classified) Unwrap() error { return e.Cause }

// IsRetryable reports whether C1 should retry an error of this Kind.
// Only transient failures are retryable; capacity failures are retried by
// the caller's own backoff (the circuit breaker, not C1), everything else
// is terminal.
func (e *Classified) IsRetryable() bool {
	return e.Kind == KindTransient
}

func Transient(message string, cause error) *Classified {
	return &Classified{Kind: KindTransient, Message: message, Cause: cause}
}

func Capacity(message string, retryAfter float64) *Classified {
	return &Classified{Kind: KindCapacity, Message: message, RetryAfter: retryAfter}
}

func Validation(message string, cause error) *Classified {
	return &Classified{Kind: KindValidation, Message: message, Cause: cause}
}

func Permanent(message string, cause error) *Classified {
	return &Classified{Kind: KindPermanent, Message: message, Cause: cause}
}

func Semantic(message string, cause error) *Classified {
	return &Classified{Kind: KindSemantic, Message: message, Cause: cause}
}

func Fatal(message string, cause error) *Classified {
	return &Classified{Kind: KindFatal, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to KindPermanent for errors
// that were never classified (fail closed: treat the unknown as
// non-retryable rather than silently retrying).
func KindOf(err error) Kind {
	var c *Classified
	if stderrors.As(err, &c) {
		return c.Kind
	}
	return KindPermanent
}
