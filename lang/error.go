package lang

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Predefined errors (sentinel values).
//
// The first group forms the compile-time and serialization taxonomy. The second
// group is raised while evaluating a template. All of them are matched with
// [errors.Is] regardless of how many times they were wrapped or annotated.
var (
	ErrLexical         = NewError("lexical error")
	ErrSyntax          = NewError("syntax error")
	ErrBlock           = NewError("block structure error")
	ErrUnknownFunction = NewError("unknown function")
	ErrUnknownMethod   = NewError("unknown method")
	ErrVersion         = NewError("invalid version")

	ErrUndefined    = NewError("undefined value")
	ErrType         = NewError("unsupported type")
	ErrArgument     = NewError("invalid arguments")
	ErrZeroDivision = NewError("division by zero")
	ErrValue        = NewError("invalid value")
	ErrRecursion    = NewError("maximum call depth exceeded")
	ErrReadInput    = NewError("failed to read input")
	ErrSerialize    = NewError("serialization failed")
)

// Error represents an error with optional structured logging attributes.
// It implements both error and slog.LogValuer interfaces.
type Error struct {
	msg   string
	err   error       // Wrapped error (for errors.Unwrap)
	attrs []slog.Attr // Attributes for structured logging
	base  *Error      // Sentinel this error was derived from
}

// NewError creates a new Error with a message.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// WrapError wraps a standard error into an Error.
func WrapError(err error) *Error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}

	return &Error{err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	part := make([]string, 0, 2)

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether e was derived from target via [Error.Wrap] or
// [Error.With].
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e == t || (e.base != nil && e.base == t.root())
}

func (e *Error) root() *Error {
	if e.base != nil {
		return e.base
	}

	return e
}

// LogValue implements slog.LogValuer for rich structured logging.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap creates a new Error wrapping another error.
func (e *Error) Wrap(err error) *Error {
	return &Error{
		msg:   e.msg,
		err:   err,
		attrs: e.attrs, // Share attrs
		base:  e.root(),
	}
}

// Wrapf wraps a formatted detail message.
func (e *Error) Wrapf(format string, args ...any) *Error {
	return e.Wrap(fmt.Errorf(format, args...))
}

// With adds attributes to the error for structured logging.
// This creates a new Error instance to maintain immutability.
func (e *Error) With(attrs ...slog.Attr) *Error {
	newAttrs := make([]slog.Attr, len(e.attrs)+len(attrs))
	copy(newAttrs, e.attrs)
	copy(newAttrs[len(e.attrs):], attrs)

	return &Error{
		msg:   e.msg,
		err:   e.err,
		attrs: newAttrs,
		base:  e.root(),
	}
}

// LocationError attributes an error to the tag that raised it.
//
// A template call stack produces one LocationError per template frame; the
// outermost frame comes first in the error chain.
type LocationError struct {
	Location *Location
	Err      error

	owner any
}

// Error implements the error interface.
func (e *LocationError) Error() string {
	return e.Location.String() + ": " + e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *LocationError) Unwrap() error { return e.Err }

// LogValue implements slog.LogValuer.
func (e *LocationError) LogValue() slog.Value {
	pos := e.Location.Position()

	return slog.GroupValue(
		slog.String("tag", e.Location.Type),
		slog.Int("offset", pos.Offset),
		slog.Int("line", pos.Line),
		slog.Int("column", pos.Column),
		slog.Any("cause", e.Err),
	)
}

// decorate attaches loc to err unless err has already been attributed within
// the same owner (compile run or template frame).
func decorate(err error, loc *Location, owner any) error {
	if err == nil || loc == nil || errors.Is(err, errStopped) {
		return err
	}

	var le *LocationError
	if errors.As(err, &le) && le.owner == owner {
		return err
	}

	return &LocationError{Location: loc, Err: err, owner: owner}
}

// errStopped unwinds evaluation after the output consumer stops pulling.
// It never escapes the package.
var errStopped = errors.New("render stopped")
