// Package server exposes a docstore over HTTP and WebSockets and provides
// the matching HTTP client for the collaboration orchestrator.
package server

import (
	"encoding/json"

	"github.com/vogtb/gridsync/packages/collab"
)

// SessionHeader carries the edit-session token on write requests
const SessionHeader = "X-Session-Token"

// Error codes returned in ErrorResponse.Code
const (
	CodeInvalid       = "invalid"
	CodeStaleRevision = "stale_revision"
	CodeLocked        = "locked"
	CodeSessionLost   = "session_lost"
	CodeNoHistory     = "no_history"
	CodeInternal      = "internal"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Holder  string `json:"holder,omitempty"`
	Details string `json:"details,omitempty"`
}

// DocumentResponse is returned by load, undo and redo. Snapshot is null for
// a document that was never saved.
type DocumentResponse struct {
	Snapshot json.RawMessage `json:"snapshot"`
	Revision int64           `json:"revision"`
}

// SaveRequest replaces the document when ExpectedRevision is current.
// Snapshot may use any accepted legacy shape.
type SaveRequest struct {
	Snapshot         json.RawMessage `json:"snapshot" binding:"required"`
	ExpectedRevision int64           `json:"expectedRevision"`
}

// RevisionRequest carries the revision an undo or redo is based on
type RevisionRequest struct {
	ExpectedRevision int64 `json:"expectedRevision"`
}

type RevisionResponse struct {
	Revision int64 `json:"revision"`
}

type AcquireRequest struct {
	Holder string `json:"holder" binding:"required"`
}

type AcquireResponse struct {
	Token string `json:"token"`
}

type LocksResponse struct {
	Locks []collab.Lock `json:"locks"`
}

type ListResponse struct {
	Documents []string `json:"documents"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}
