package collab

import (
	"context"

	"github.com/vogtb/gridsync/packages/grid"
)

// Adapter loads and saves whole snapshots against the authoritative store
type Adapter interface {
	// LoadSnapshot returns a nil snapshot and revision 0 for a document
	// that was never saved.
	LoadSnapshot(ctx context.Context) (*grid.Snapshot, int64, error)
	// SaveSnapshot fails with ErrRevisionConflict when expected is not the
	// stored revision and with ErrDocumentLocked when another session
	// holds the lock.
	SaveSnapshot(ctx context.Context, snap grid.Snapshot, expected int64) (int64, error)
}

// HistoryAdapter is implemented by adapters with server-side undo/redo
type HistoryAdapter interface {
	RequestUndo(ctx context.Context, expected int64) (grid.Snapshot, int64, error)
	RequestRedo(ctx context.Context, expected int64) (grid.Snapshot, int64, error)
}

// DraftKeyer is implemented by adapters that pick their own draft key
type DraftKeyer interface {
	DraftKey() string
}

// SessionAPI manages edit-session locks
type SessionAPI interface {
	// Acquire fails with *LockConflictError when another session holds
	// the document.
	Acquire(ctx context.Context, documentID string) (string, error)
	Heartbeat(ctx context.Context, documentID, token string) error
	Release(ctx context.Context, documentID, token string) error
}

// LiveChannel is a joined bidirectional connection to the store
type LiveChannel interface {
	Join(ctx context.Context, documentID string) error
	Leave(ctx context.Context, documentID string) error
	// ApplyOperation fails with *OperationRejectedError when the store
	// refuses the operation.
	ApplyOperation(ctx context.Context, documentID string, base int64, operationID string, op Operation) (int64, error)
	Events() <-chan Event
}

type sessionTokenKey struct{}

// WithSessionToken attaches an edit-session token for adapters to send
func WithSessionToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionTokenKey{}, token)
}

// SessionToken returns the token attached by WithSessionToken
func SessionToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(sessionTokenKey{}).(string)
	return token, ok && token != ""
}
