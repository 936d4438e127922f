package collab

import (
	"errors"
	"fmt"
)

var (
	// ErrRevisionConflict means the expected or base revision is stale
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrDocumentLocked means another session holds the edit lock
	ErrDocumentLocked = errors.New("document is locked by another session")

	// ErrNoHistory is returned by server-side undo/redo with nothing to do
	ErrNoHistory = errors.New("no history available")

	// ErrLockLost means the session token is unknown or expired
	ErrLockLost = errors.New("edit session lost")

	// ErrNotFound means the document does not exist
	ErrNotFound = errors.New("document not found")
)

// Rejection reason codes carried by operation-rejected events
const (
	ReasonStaleRevision = "stale_revision"
	ReasonLocked        = "locked"
	ReasonInvalid       = "invalid"
)

// LockConflictError is returned when acquiring an edit session that
// someone else holds.
type LockConflictError struct {
	DocumentID string
	Holder     string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("document %s is being edited by %s", e.DocumentID, e.Holder)
}

func (e *LockConflictError) Is(target error) bool {
	return target == ErrDocumentLocked
}

// OperationRejectedError is a live-channel rejection with a reason code
type OperationRejectedError struct {
	Reason  string
	Details string
}

func (e *OperationRejectedError) Error() string {
	if e.Details == "" {
		return "operation rejected: " + e.Reason
	}
	return "operation rejected: " + e.Reason + ": " + e.Details
}

// Is maps reason codes onto the sentinel errors so callers handle live and
// snapshot-save failures the same way.
func (e *OperationRejectedError) Is(target error) bool {
	switch e.Reason {
	case ReasonStaleRevision:
		return target == ErrRevisionConflict
	case ReasonLocked:
		return target == ErrDocumentLocked
	}
	return false
}

// RejectionFor converts a store error into a rejection
func RejectionFor(err error) *OperationRejectedError {
	var rejected *OperationRejectedError
	switch {
	case errors.As(err, &rejected):
		return rejected
	case errors.Is(err, ErrRevisionConflict):
		return &OperationRejectedError{Reason: ReasonStaleRevision, Details: err.Error()}
	case errors.Is(err, ErrDocumentLocked), errors.Is(err, ErrLockLost):
		return &OperationRejectedError{Reason: ReasonLocked, Details: err.Error()}
	default:
		return &OperationRejectedError{Reason: ReasonInvalid, Details: err.Error()}
	}
}
