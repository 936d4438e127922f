package collab

import (
	"time"

	"github.com/vogtb/gridsync/packages/grid"
)

// EventKind tags inbound live-channel events
type EventKind string

const (
	EventDocumentState     EventKind = "document-state"
	EventOperationApplied  EventKind = "operation-applied"
	EventOperationRejected EventKind = "operation-rejected"
	EventLocksUpdated      EventKind = "locks-updated"
)

// Lock describes an active edit session
type Lock struct {
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Event is one inbound live-channel event. which fields are set depends
// on Kind.
type Event struct {
	Kind        EventKind      `json:"kind"`
	DocumentID  string         `json:"documentId"`
	Revision    int64          `json:"revision,omitempty"`
	OperationID string         `json:"operationId,omitempty"`
	Snapshot    *grid.Snapshot `json:"snapshot,omitempty"`
	Locks       []Lock         `json:"locks,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Details     string         `json:"details,omitempty"`
}

// Operation is a client change sent over the live channel. documents are
// synchronized as whole snapshots.
type Operation struct {
	Snapshot grid.Snapshot `json:"snapshot"`
}
