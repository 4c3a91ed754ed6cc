// Package errtax classifies ITRC errors by the policy a caller should
// apply to them: close and reconnect, drop and log, reject and keep
// the current configuration, or exit the process. None of the
// policies live here — errtax only tags an error so the task that
// produced it (and the one that eventually observes it) agree on
// which one applies.
//
// Grounded on the error-code/factory-function pattern in
// pkg/metadata/errors in the teacher repo.
package errtax

import (
	"errors"
	"fmt"
)

// Kind names one of the error classes an ITRC task can produce.
type Kind int

const (
	// KindTransientNetwork covers overlay disconnects and sendto
	// failures: close the socket, schedule a reconnect, never
	// surface the failure upward.
	KindTransientNetwork Kind = iota + 1
	// KindAuthentication covers RSA or threshold signature
	// verification failures: drop the message, log it.
	KindAuthentication
	// KindProtocol covers a message of the wrong type for its
	// arrival stage, or a size mismatch: drop the message, log it.
	KindProtocol
	// KindOrdering covers a duplicate or non-consecutive ordinal:
	// treat as a no-op, never force the watermark backwards.
	KindOrdering
	// KindConfiguration covers a stale or undersized reconfiguration
	// request: reject it and keep the current configuration.
	KindConfiguration
	// KindFatal covers startup failures with no fallback: missing
	// keys, IPC socket creation failure. The process exits.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransientNetwork:
		return "TransientNetwork"
	case KindAuthentication:
		return "Authentication"
	case KindProtocol:
		return "Protocol"
	case KindOrdering:
		return "Ordering"
	case KindConfiguration:
		return "Configuration"
	case KindFatal:
		return "Fatal"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// Error wraps an underlying error with the Kind that determines how
// it must be handled and the operation name that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Transient tags a failure in overlay send/receive or connection
// setup.
func Transient(op string, err error) *Error { return newErr(KindTransientNetwork, op, err) }

// Authentication tags an RSA or threshold signature verification
// failure.
func Authentication(op string, err error) *Error { return newErr(KindAuthentication, op, err) }

// Protocol tags a message rejected by the packet-validation matrix or
// a malformed wire encoding.
func Protocol(op string, err error) *Error { return newErr(KindProtocol, op, err) }

// Ordering tags a duplicate or non-consecutive ordinal.
func Ordering(op string, err error) *Error { return newErr(KindOrdering, op, err) }

// Configuration tags a rejected reconfiguration request.
func Configuration(op string, err error) *Error { return newErr(KindConfiguration, op, err) }

// Fatal tags a startup failure that should terminate the process.
func Fatal(op string, err error) *Error { return newErr(KindFatal, op, err) }

// Is reports whether err (or something it wraps) is an *Error of the
// given kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// IsTransient, IsAuthentication, IsProtocol, IsOrdering,
// IsConfiguration, and IsFatal are Is shorthands for each Kind, for
// callers that branch on a single classification at a time.
func IsTransient(err error) bool     { return Is(err, KindTransientNetwork) }
func IsAuthentication(err error) bool { return Is(err, KindAuthentication) }
func IsProtocol(err error) bool      { return Is(err, KindProtocol) }
func IsOrdering(err error) bool      { return Is(err, KindOrdering) }
func IsConfiguration(err error) bool { return Is(err, KindConfiguration) }
func IsFatal(err error) bool         { return Is(err, KindFatal) }
