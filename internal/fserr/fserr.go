// Package fserr defines the closed set of error kinds returned by the file
// access layer.
//
// Callers outside the layer map a Kind to a transport status. Error strings
// are for server logs only; Kind.Message is the only text that may reach a
// client.
package fserr

import (
	"errors"
	"fmt"
)

// Kind is the category of a file access failure.
type Kind int

const (
	// Internal indicates an invariant violation inside the server.
	// It is the zero value so unclassified errors never look like client faults.
	Internal Kind = iota

	// BadRequest indicates malformed or escaping input: a bad path, a bad or
	// unsatisfiable range, an invalid or expired share link, an empty query.
	BadRequest

	// NotFound indicates the resolved path does not exist.
	NotFound

	// IO indicates a filesystem failure during stat, read or walk.
	IO
)

func (k Kind) String() string {
	switch k {
	case BadRequest:
		return "bad_request"
	case NotFound:
		return "not_found"
	case IO:
		return "io_error"
	default:
		return "internal_error"
	}
}

// Message returns the client-safe description for the kind.
func (k Kind) Message() string {
	switch k {
	case BadRequest:
		return "bad request"
	case NotFound:
		return "not found"
	case IO:
		return "i/o error"
	default:
		return "internal error"
	}
}

// Sentinel causes. Match them with errors.Is.
var (
	ErrMalformedPath       = errors.New("malformed path")
	ErrPathEscape          = errors.New("path escapes storage root")
	ErrNotDirectory        = errors.New("not a directory")
	ErrNotFile             = errors.New("not a regular file")
	ErrInvalidName         = errors.New("invalid name")
	ErrExists              = errors.New("already exists")
	ErrMalformedRange      = errors.New("malformed range")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
	ErrShareLinkInvalid    = errors.New("share link invalid or expired")
	ErrEmptyQuery          = errors.New("empty search query")
)

// Error is a classified failure. Op names the failing operation and Err the
// underlying cause, which may carry OS detail and must stay server-side.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an Error of the given kind.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error whose cause is formatted like fmt.Errorf, so %w
// wrapping is preserved.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err. Errors not built by this package are
// Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
