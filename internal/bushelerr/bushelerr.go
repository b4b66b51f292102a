// Package bushelerr defines the error-kind taxonomy shared by every bushel
// component: ParseError, NotFound, Transient, Disk, BadArgument and
// ForgivableProtocol. It follows the shape of rclone's fs/fserrors package:
// a Retrier interface implemented by errors that know whether a caller
// should retry them, and a Cause() chain so wrapped errors can be unwrapped
// back to their kind.
package bushelerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind discriminates the error taxonomy every bushel component reports
// through. It is not a Go type hierarchy: every bushel error is a single
// *Error carrying one of these.
type Kind int

const (
	// KindParseError marks a malformed document: tokenizer mismatch, bad
	// state transition, or truncated object block. Locally recovered by
	// the caller treating the document as missing.
	KindParseError Kind = iota
	// KindNotFound marks an absent file or HTTP 404. Expected and
	// recovered silently.
	KindNotFound
	// KindTransient marks a timeout, connection reset, or DNS failure.
	// Recovered by the Fetcher via endpoint failover.
	KindTransient
	// KindDisk marks a permission, disk-full, or I/O error on write.
	// Fatal to the operation, not to the process.
	KindDisk
	// KindBadArgument marks an unknown document kind or malformed
	// digest, a programming error that fails loudly.
	KindBadArgument
	// KindForgivableProtocol marks trailing whitespace or a short
	// terminator: recorded on an item's errors list, and promoted to
	// KindParseError unless whitelisted.
	KindForgivableProtocol
)

func (k Kind) String() string {
	switch k {
	case KindParseError:
		return "parse error"
	case KindNotFound:
		return "not found"
	case KindTransient:
		return "transient network error"
	case KindDisk:
		return "disk error"
	case KindBadArgument:
		return "bad argument"
	case KindForgivableProtocol:
		return "forgivable protocol error"
	default:
		return "unknown error"
	}
}

// Error is the concrete error type returned by every bushel component.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

// Cause implements the informal github.com/pkg/errors Causer interface so
// errors.Cause(err) unwraps to the underlying error, if any.
func (e *Error) Cause() error { return e.cause }

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Retrier is implemented by errors that can tell a pacer whether a retry is
// worthwhile. It mirrors rclone's fs/fserrors.Retrier.
type Retrier interface {
	Retry() (bool, error)
}

// Retry implements Retrier. Only KindTransient errors are retryable; every
// other kind is terminal for the current attempt.
func (e *Error) Retry() (bool, error) {
	return e.Kind == KindTransient, e
}

// New creates a bushel error of the given kind with no further cause.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error, preserving it as
// the cause so errors.As/errors.Cause can still reach it.
func Wrap(kind Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return New(kind, format, args...)
	}
	return &Error{Kind: kind, msg: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

// NotFound is shorthand for New(KindNotFound, ...).
func NotFound(format string, args ...any) error {
	return New(KindNotFound, format, args...)
}

// BadArgument is shorthand for New(KindBadArgument, ...).
func BadArgument(format string, args ...any) error {
	return New(KindBadArgument, format, args...)
}

// Disk wraps a disk-layer error (permission denied, disk full, I/O error).
func Disk(cause error, format string, args ...any) error {
	return Wrap(KindDisk, cause, format, args...)
}

// Transient wraps a network-layer error eligible for endpoint failover.
func Transient(cause error, format string, args ...any) error {
	return Wrap(KindTransient, cause, format, args...)
}

// ParseErrorAt marks a fatal tokenizer/itemizer error, always carrying the
// line and column it occurred at.
func ParseErrorAt(line, column int, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return New(KindParseError, "line %d, column %d: %s", line, column, msg)
}

// Is reports whether err (or any error in its cause chain) is a bushel
// error of the given kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if be, ok := err.(*Error); ok {
			if be.Kind == kind {
				return true
			}
			err = be.cause
			continue
		}
		type causer interface{ Cause() error }
		if c, ok := err.(causer); ok {
			err = c.Cause()
			continue
		}
		return false
	}
	return false
}
