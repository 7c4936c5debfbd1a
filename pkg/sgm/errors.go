/*
Copyright 2018 Intel Corporation.

SPDX-License-Identifier: Apache-2.0
*/

package sgm

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Kind classifies an Error by how the driver must react to it.
type Kind int

const (
	// BadParam covers a null pointer, wrong size, bad channel-map
	// entry or malformed property.
	BadParam Kind = iota
	// MemExhausted covers heap or shared-memory allocation failure.
	MemExhausted
	// Busy means an active command already exists and the new
	// opcode is not GRAPH_CLOSE.
	Busy
	// NotMapped means a master VA has no remote mapping, or handle
	// translation returned the invalid sentinel.
	NotMapped
	// TransportFailed means async_send returned a non-zero status.
	TransportFailed
	// Panic means a cache flush or invalidate failed; the caller
	// must OR the panic bit into the returned result and stop.
	Panic
	// Unsupported means the opcode is not in the dispatch table.
	Unsupported
	// Unexpected is used by the crash sweeper to mark handles that
	// will never receive a real response.
	Unexpected
)

func (k Kind) String() string {
	switch k {
	case BadParam:
		return "BadParam"
	case MemExhausted:
		return "MemExhausted"
	case Busy:
		return "Busy"
	case NotMapped:
		return "NotMapped"
	case TransportFailed:
		return "TransportFailed"
	case Panic:
		return "Panic"
	case Unsupported:
		return "Unsupported"
	case Unexpected:
		return "Unexpected"
	default:
		return "Unknown"
	}
}

// Error is the taxonomy described in the driver's error handling
// design: every failure path carries one Kind plus the wrapped cause
// that produced it.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.cause.Error()
}

// Cause lets github.com/pkg/errors.Cause and errors.Unwrap callers
// reach the wrapped error.
func (e *Error) Cause() error { return e.cause }
func (e *Error) Unwrap() error { return e.cause }

// newErr wraps cause (which may be nil) with errors.Wrap so that a
// stack trace is captured at the point of failure, matching how the
// rest of this module reports errors.
func newErr(kind Kind, cause error, msg string) *Error {
	if cause == nil {
		return &Error{Kind: kind, cause: errors.New(msg)}
	}
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg)}
}

func errBadParam(cause error, msg string) error      { return newErr(BadParam, cause, msg) }
func errMemExhausted(cause error, msg string) error   { return newErr(MemExhausted, cause, msg) }
func errBusy(msg string) error                        { return newErr(Busy, nil, msg) }
func errNotMapped(cause error, msg string) error      { return newErr(NotMapped, cause, msg) }
func errTransportFailed(cause error, msg string) error { return newErr(TransportFailed, cause, msg) }
func errPanic(cause error, msg string) error          { return newErr(Panic, cause, msg) }
func errUnsupported(msg string) error                 { return newErr(Unsupported, nil, msg) }

// KindOf extracts the Kind from err, defaulting to Unexpected for any
// error that did not originate from this package.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Unexpected
}
