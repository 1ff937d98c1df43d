// Package fault defines the error taxonomy shared by every component
// boundary. Errors surface to callers as structured values, never as raw
// server errors.
package fault

import (
	"errors"
	"fmt"
)

// Kind is a stable error identifier surfaced in envelopes, logs, and audit.
type Kind string

const (
	KindSessionNotFound  Kind = "SessionNotFound"
	KindSessionClosed    Kind = "SessionClosed"
	KindSessionExpired   Kind = "SessionExpired"
	KindInvalidRequest   Kind = "InvalidRequest"
	KindUnauthorized     Kind = "Unauthorized"
	KindDenied           Kind = "Denied"
	KindToolNotFound     Kind = "ToolNotFound"
	KindToolTimeout      Kind = "ToolTimeout"
	KindToolFailed       Kind = "ToolFailed"
	KindAgentUnreachable Kind = "AgentUnreachable"
	KindAgentFailed      Kind = "AgentFailed"
	KindOverloaded       Kind = "Overloaded"
	KindTimedOut         Kind = "TimedOut"
	KindConfigError      Kind = "ConfigError"
	KindInternal         Kind = "Internal"
)

// Subcodes. All but SubcodeCancelled qualify KindDenied; SubcodeCancelled
// marks a failed invocation that was cancelled.
const (
	SubcodeExplicitDeny       = "ExplicitDeny"
	SubcodeParameterForbidden = "ParameterForbidden"
	SubcodeRateLimited        = "RateLimited"
	SubcodeDefaultDeny        = "DefaultDeny"
	SubcodeNoEligibleAgent    = "NoEligibleAgent"
	SubcodeCancelled          = "Cancelled"
)

// Error is the structured error carried across component boundaries.
type Error struct {
	Kind          Kind   `json:"kind"`
	Subcode       string `json:"subcode,omitempty"`
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id,omitempty"`
	cause         error
}

func (e *Error) Error() string {
	if e.Subcode != "" {
		return fmt.Sprintf("%s/%s: %s", e.Kind, e.Subcode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Denied creates a policy refusal with a subcode.
func Denied(subcode, format string, args ...any) *Error {
	return &Error{Kind: KindDenied, Subcode: subcode, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an error of the given kind.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithTransaction stamps the transaction id, returning the same error.
func (e *Error) WithTransaction(txnID string) *Error {
	e.TransactionID = txnID
	return e
}

// KindOf extracts the Kind from any error chain. Unknown errors are Internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// SubcodeOf extracts the subcode, if any, from an error chain.
func SubcodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Subcode
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// AsError normalizes any error into a *Error, wrapping unknown
// errors as Internal so raw causes never cross a transport boundary.
func AsError(err error, txnID string) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		if fe.TransactionID == "" {
			fe.TransactionID = txnID
		}
		return fe
	}
	return &Error{Kind: KindInternal, Message: err.Error(), TransactionID: txnID, cause: err}
}

// Retriable reports whether an invocation error is worth retrying.
// Policy denials and validation failures are never retried.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindAgentUnreachable, KindOverloaded:
		return true
	default:
		return false
	}
}
