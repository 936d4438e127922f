package collab

import "time"

// State is the persistence state shown to the user
type State string

const (
	StateClean  State = "clean"
	StateDirty  State = "dirty"
	StateSaving State = "saving"
	StateSaved  State = "saved"
	StateError  State = "error"
)

// ErrorKind distinguishes why the orchestrator is in StateError
type ErrorKind string

const (
	ErrorNone     ErrorKind = ""
	ErrorConflict ErrorKind = "conflict"
	ErrorLocked   ErrorKind = "locked"
	ErrorGeneric  ErrorKind = "generic"
)

// Status is an immutable view of the orchestrator
type Status struct {
	State     State     `json:"state"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Err       error     `json:"-"`

	// Notice is a transient message, such as a failed server undo
	Notice string `json:"notice,omitempty"`

	ReadOnly   bool   `json:"readOnly"`
	LockHolder string `json:"lockHolder,omitempty"`
	Locks      []Lock `json:"locks,omitempty"`

	// Revision is the last authoritative revision reflected locally
	Revision int64 `json:"revision"`
	Version  int64 `json:"version"`
	Live     bool   `json:"live"`

	SavedAt time.Time `json:"savedAt,omitempty"`
}

func (s Status) clone() Status {
	if s.Locks != nil {
		s.Locks = append([]Lock(nil), s.Locks...)
	}
	return s
}
