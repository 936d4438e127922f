package grid

import (
	"errors"
	"fmt"
)

// AppErrorCode represents gRPC-style error codes for document-level errors.
// codes that make no sense for a local grid (unauthenticated, permission
// denied) are skipped.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates the caller passed a malformed command, e.g.
	// a negative row index.
	InvalidArgument AppErrorCode = 3

	// NotFound means a referenced row, column or history entry is missing.
	NotFound AppErrorCode = 5

	// FailedPrecondition indicates the document is not in a state required
	// for the command, e.g. read-only mode.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means a command addressed cells past the grid edge.
	OutOfRange AppErrorCode = 11

	// Internal errors. some invariant of the document has been broken.
	Internal AppErrorCode = 13
)

func (c AppErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case FailedPrecondition:
		return "failed_precondition"
	case OutOfRange:
		return "out_of_range"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// AppError represents errors at the document level (not formula errors,
// which live in cell values)
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// Is matches on the code so sentinels compare by kind and message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func invalidArgument(format string, args ...any) *AppError {
	return NewApplicationError(InvalidArgument, fmt.Sprintf(format, args...))
}

var (
	// ErrReadOnly is returned by every mutating entry point while the
	// document is read-only.
	ErrReadOnly = NewApplicationError(FailedPrecondition, "document is read-only")

	// ErrNotEditable is returned when a command only targets computed or
	// read-only columns.
	ErrNotEditable = NewApplicationError(FailedPrecondition, "target cells are not editable")

	// ErrNothingToUndo and ErrNothingToRedo report empty history stacks.
	ErrNothingToUndo = NewApplicationError(NotFound, "nothing to undo")
	ErrNothingToRedo = NewApplicationError(NotFound, "nothing to redo")
)

// CodeOf returns the AppErrorCode carried by err, or Unknown.
func CodeOf(err error) AppErrorCode {
	if err == nil {
		return OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}
