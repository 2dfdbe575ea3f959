// Package apierr defines the tagged-result error taxonomy every
// component of the Intervention Orchestrator returns instead of raising
// exceptions: every operation that can fail returns (value, error), and
// every such error carries one of the seven recognized Kinds so callers
// can decide retry/backoff/surface behavior by switching on Kind rather
// than matching message strings or type-asserting into library-specific
// error types.
package apierr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind is one of the seven propagation categories.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuthz      Kind = "authz"
	KindQuota      Kind = "quota"
	KindTransient  Kind = "transient"
	KindDegraded   Kind = "degraded"
	KindCancelled  Kind = "cancelled"
	KindInternal   Kind = "internal"
)

// Error is the concrete error type returned by every exported operation
// in the core packages. DiagnosticID is only populated for KindInternal,
// giving operators a correlatable token without leaking internals to
// callers.
type Error struct {
	Kind         Kind
	Message      string
	DiagnosticID string
	cause        error
}

func (e *Error) Error() string {
	if e.DiagnosticID != "" {
		return fmt.Sprintf("%s: %s (diagnostic_id=%s)", e.Kind, e.Message, e.DiagnosticID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind without a diagnostic ID.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, preserving cause for errors.Is/As.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Internal builds a KindInternal error stamped with a fresh diagnostic ID.
// The message returned to the caller never includes cause's text, since
// internal failures may carry details (DSNs, stack state) not safe to
// return over the RPC surface; cause is still retrievable via Unwrap for
// the logger at the boundary that generated the DiagnosticID.
func Internal(cause error) *Error {
	return &Error{
		Kind:         KindInternal,
		Message:      "an internal error occurred",
		DiagnosticID: uuid.NewString(),
		cause:        cause,
	}
}

// Validation builds a KindValidation error.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

// Authz builds a KindAuthz error.
func Authz(format string, args ...interface{}) *Error {
	return New(KindAuthz, fmt.Sprintf(format, args...))
}

// Quota builds a KindQuota error.
func Quota(format string, args ...interface{}) *Error {
	return New(KindQuota, fmt.Sprintf(format, args...))
}

// Transient builds a KindTransient error — safe to retry with backoff.
func Transient(format string, args ...interface{}) *Error {
	return New(KindTransient, fmt.Sprintf(format, args...))
}

// Degraded builds a KindDegraded error — a partial result was produced
// and the caller should treat it as best-effort rather than fail closed.
func Degraded(format string, args ...interface{}) *Error {
	return New(KindDegraded, fmt.Sprintf(format, args...))
}

// Cancelled builds a KindCancelled error.
func Cancelled(format string, args ...interface{}) *Error {
	return New(KindCancelled, fmt.Sprintf(format, args...))
}

// As extracts an *Error from err via errors.As, reporting ok=false if err
// does not carry a *apierr.Error anywhere in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to KindInternal for errors
// that did not originate from this package (e.g. a bare driver error that
// escaped a repository boundary without being wrapped).
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether the runtime should retry the node that
// produced err, per the propagation rules: only KindTransient is
// automatically retried by the Workflow Runtime's retry policy.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

var (
	// ErrNotFound is wrapped by stores when a lookup finds nothing; it is
	// not itself a Kind and callers should check kind via KindOf on the
	// wrapping *Error returned by the store.
	ErrNotFound = errors.New("not found")
)
