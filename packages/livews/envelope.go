// Package livews carries the live collaboration channel over WebSockets.
// Hub is the server side, Client implements collab.LiveChannel.
package livews

import (
	"github.com/vogtb/gridsync/packages/collab"
)

// Message types
const (
	TypeJoin  = "join"
	TypeLeave = "leave"
	TypeApply = "apply"
	TypeReply = "reply"
	TypeEvent = "event"
)

// Envelope is the single JSON frame exchanged in both directions. requests
// carry a RequestID that the matching reply echoes.
type Envelope struct {
	Type         string            `json:"type"`
	RequestID    string            `json:"requestId,omitempty"`
	DocumentID   string            `json:"documentId,omitempty"`
	Token        string            `json:"token,omitempty"`
	BaseRevision int64             `json:"baseRevision,omitempty"`
	OperationID  string            `json:"operationId,omitempty"`
	Operation    *collab.Operation `json:"operation,omitempty"`
	Revision     int64             `json:"revision,omitempty"`
	Error        *ErrorBody        `json:"error,omitempty"`
	Event        *collab.Event     `json:"event,omitempty"`
}

// ErrorBody is a rejection carried by a reply
type ErrorBody struct {
	Reason  string `json:"reason"`
	Details string `json:"details,omitempty"`
}

func errorBody(err error) *ErrorBody {
	r := collab.RejectionFor(err)
	return &ErrorBody{Reason: r.Reason, Details: r.Details}
}

func (e *ErrorBody) err() error {
	return &collab.OperationRejectedError{Reason: e.Reason, Details: e.Details}
}
