// Package errs defines the failure taxonomy shared by the registry,
// operations, command flow and project loader.
//
// Every failure surfaced to a caller is an *Error carrying a Code. Callers
// branch on the code through Is or CodeOf; errors.As also works through any
// amount of %w wrapping.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code categorizes a failure.
type Code string

const (
	// CodeNotFound indicates an unknown object name.
	CodeNotFound Code = "NOT_FOUND"

	// CodeNameCollision indicates a duplicate name on create or rename.
	CodeNameCollision Code = "NAME_COLLISION"

	// CodeInvalidArgument indicates malformed operation parameters.
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// CodeKernelFailure indicates the geometry kernel rejected its inputs.
	CodeKernelFailure Code = "KERNEL_FAILURE"

	// CodeInvalidState indicates API misuse.
	CodeInvalidState Code = "INVALID_STATE"

	// CodeLoadError indicates a malformed or inconsistent project document.
	CodeLoadError Code = "LOAD_ERROR"

	// CodeCancelled indicates the user aborted an operation.
	CodeCancelled Code = "CANCELLED"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrNoUndoData    = errors.New("operation has no undo data")
)

// Error is a categorized failure with optional object context.
type Error struct {
	Code    Code
	Op      string // operation tag or API call, e.g. "unite_grids", "rename"
	Kind    string // object kind when a specific object is involved
	Name    string // object name when a specific object is involved
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Kind != "" || e.Name != "" {
		fmt.Fprintf(&b, " [%s %q]", e.Kind, e.Name)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// WithOp returns a copy of e tagged with op, unless it already has one.
func (e *Error) WithOp(op string) *Error {
	if e.Op != "" {
		return e
	}
	cp := *e
	cp.Op = op
	return &cp
}

// Is reports whether any *Error in err's chain has the given code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or "" when
// err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ── Constructors ─────────────────────────────────────────────────────

func NotFound(kind, name string) *Error {
	return &Error{Code: CodeNotFound, Kind: kind, Name: name, Message: "no such object"}
}

func NameCollision(kind, name string) *Error {
	return &Error{Code: CodeNameCollision, Kind: kind, Name: name, Message: "name already in use"}
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

func KernelFailure(err error) *Error {
	return &Error{Code: CodeKernelFailure, Err: err}
}

func InvalidState(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

// InvalidStateErr wraps a sentinel such as ErrNothingToUndo.
func InvalidStateErr(err error) *Error {
	return &Error{Code: CodeInvalidState, Err: err}
}

func LoadError(format string, args ...any) *Error {
	return &Error{Code: CodeLoadError, Message: fmt.Sprintf(format, args...)}
}

// LoadErrorWrap wraps a decoding or restore failure as a load error.
func LoadErrorWrap(err error, format string, args ...any) *Error {
	return &Error{Code: CodeLoadError, Message: fmt.Sprintf(format, args...), Err: err}
}

func Cancelled(message string) *Error {
	return &Error{Code: CodeCancelled, Message: message}
}
