// Package faults defines the error kinds shared by the opsdeck core.
// Every error crossing a package boundary is one of these kinds; the
// route layer maps kinds to status codes, the core never does.
package faults

import (
	"context"
	"errors"
	"fmt"
)

type Kind int

const (
	// Validation covers malformed parameters, caught before any network call.
	Validation Kind = iota
	// NotFound covers unknown log, session or connection identifiers.
	NotFound
	// Connection covers authentication and transport failures.
	Connection
	// Deadline covers command or connect timeouts.
	Deadline
	// Internal covers everything unexpected.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not found"
	case Connection:
		return "connection"
	case Deadline:
		return "deadline exceeded"
	case Internal:
		return "internal"
	}
	return "unknown"
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf classifies err. Untyped errors come back as Internal, so callers
// always observe one of the five kinds. Context deadline errors are
// recognized even when they were not wrapped.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Deadline
	}
	return Internal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
