// Package docstore is an authoritative in-memory document store. it keeps
// a revision per document, rejects stale writes, hands out exclusive edit
// sessions and records a revision history for server-side undo.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vogtb/gridsync/packages/collab"
	"github.com/vogtb/gridsync/packages/grid"
)

const (
	DefaultLockTTL      = 45 * time.Second
	DefaultHistoryLimit = 100

	// appliedLimit bounds the operation ids remembered per document
	appliedLimit = 256
)

// Config configures a Store
type Config struct {
	LockTTL      time.Duration
	HistoryLimit int
	Clock        func() time.Time
	Logger       *slog.Logger
}

// Store holds documents keyed by id. the zero value is not usable; use New.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	docs      map[string]*document
	subs      map[int]func(collab.Event)
	nextSubID int
}

type document struct {
	snapshot *grid.Snapshot
	revision int64
	past     []grid.Snapshot
	future   []grid.Snapshot
	applied  map[string]int64
	order    []string
	lease    *lease
}

type lease struct {
	holder  string
	token   string
	expires time.Time
}

// New creates an empty store
func New(cfg Config) *Store {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:    cfg,
		logger: logger,
		docs:   make(map[string]*document),
		subs:   make(map[int]func(collab.Event)),
	}
}

func (s *Store) docLocked(id string) *document {
	d, ok := s.docs[id]
	if !ok {
		d = &document{applied: make(map[string]int64)}
		s.docs[id] = d
	}
	return d
}

// activeLeaseLocked drops an expired lease and returns the live one
func (s *Store) activeLeaseLocked(d *document) *lease {
	if d.lease != nil && !s.cfg.Clock().Before(d.lease.expires) {
		s.logger.Debug("edit session expired", "holder", d.lease.holder)
		d.lease = nil
	}
	return d.lease
}

// checkWriteLocked enforces edit-session exclusivity for a write with token
func (s *Store) checkWriteLocked(id string, d *document, token string) error {
	l := s.activeLeaseLocked(d)
	switch {
	case l != nil && l.token != token:
		return &collab.LockConflictError{DocumentID: id, Holder: l.holder}
	case l == nil && token != "":
		return collab.ErrLockLost
	}
	return nil
}

func locksOf(d *document) []collab.Lock {
	if d.lease == nil {
		return nil
	}
	return []collab.Lock{{Holder: d.lease.holder, ExpiresAt: d.lease.expires}}
}

// Load returns the stored snapshot and revision. a document that was never
// saved yields a nil snapshot at revision 0.
func (s *Store) Load(ctx context.Context, id string) (*grid.Snapshot, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok || d.snapshot == nil {
		return nil, 0, nil
	}
	snap := cloneSnapshot(*d.snapshot)
	return &snap, d.revision, nil
}

// Save replaces the document when expected is its current revision
func (s *Store) Save(ctx context.Context, id, token string, snap grid.Snapshot, expected int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	d := s.docLocked(id)
	rev, err := s.writeLocked(id, d, token, snap, expected)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	ev := s.stateEventLocked(id, d)
	s.mu.Unlock()

	s.logger.Debug("snapshot saved", "document", id, "revision", rev)
	s.publish(ev)
	return rev, nil
}

// Apply applies a live operation. a repeated operation id returns the
// revision it produced the first time without applying it again.
func (s *Store) Apply(ctx context.Context, id, token string, base int64, opID string, op collab.Operation) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if opID == "" {
		return 0, &collab.OperationRejectedError{Reason: collab.ReasonInvalid, Details: "operation id is required"}
	}
	s.mu.Lock()
	d := s.docLocked(id)
	if rev, ok := d.applied[opID]; ok {
		s.mu.Unlock()
		return rev, nil
	}
	rev, err := s.writeLocked(id, d, token, op.Snapshot, base)
	if err != nil {
		s.mu.Unlock()
		return 0, collab.RejectionFor(err)
	}
	d.applied[opID] = rev
	d.order = append(d.order, opID)
	if len(d.order) > appliedLimit {
		delete(d.applied, d.order[0])
		d.order = d.order[1:]
	}
	snap := cloneSnapshot(*d.snapshot)
	ev := collab.Event{
		Kind:        collab.EventOperationApplied,
		DocumentID:  id,
		Revision:    rev,
		OperationID: opID,
		Snapshot:    &snap,
	}
	s.mu.Unlock()

	s.logger.Debug("operation applied", "document", id, "operation", opID, "revision", rev)
	s.publish(ev)
	return rev, nil
}

func (s *Store) writeLocked(id string, d *document, token string, snap grid.Snapshot, expected int64) (int64, error) {
	if err := s.checkWriteLocked(id, d, token); err != nil {
		return 0, err
	}
	if expected != d.revision {
		return 0, fmt.Errorf("document %s: expected revision %d, stored %d: %w", id, expected, d.revision, collab.ErrRevisionConflict)
	}
	next := snap.Normalize()
	if d.snapshot != nil {
		d.past = appendBounded(d.past, *d.snapshot, s.cfg.HistoryLimit)
	}
	d.future = nil
	d.snapshot = &next
	d.revision++
	return d.revision, nil
}

// Undo restores the previous revision's content as a new revision
func (s *Store) Undo(ctx context.Context, id, token string, expected int64) (grid.Snapshot, int64, error) {
	return s.travel(ctx, id, token, expected, true)
}

// Redo reapplies content removed by Undo
func (s *Store) Redo(ctx context.Context, id, token string, expected int64) (grid.Snapshot, int64, error) {
	return s.travel(ctx, id, token, expected, false)
}

func (s *Store) travel(ctx context.Context, id, token string, expected int64, back bool) (grid.Snapshot, int64, error) {
	if err := ctx.Err(); err != nil {
		return grid.Snapshot{}, 0, err
	}
	s.mu.Lock()
	d := s.docLocked(id)
	if err := s.checkWriteLocked(id, d, token); err != nil {
		s.mu.Unlock()
		return grid.Snapshot{}, 0, err
	}
	if expected != d.revision {
		s.mu.Unlock()
		return grid.Snapshot{}, 0, fmt.Errorf("document %s: expected revision %d, stored %d: %w", id, expected, d.revision, collab.ErrRevisionConflict)
	}
	from, to := &d.past, &d.future
	if !back {
		from, to = &d.future, &d.past
	}
	if len(*from) == 0 || d.snapshot == nil {
		s.mu.Unlock()
		return grid.Snapshot{}, 0, collab.ErrNoHistory
	}
	next := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	*to = appendBounded(*to, *d.snapshot, s.cfg.HistoryLimit)
	d.snapshot = &next
	d.revision++
	rev := d.revision
	snap := cloneSnapshot(next)
	ev := s.stateEventLocked(id, d)
	s.mu.Unlock()

	s.publish(ev)
	return snap, rev, nil
}

func appendBounded(stack []grid.Snapshot, snap grid.Snapshot, limit int) []grid.Snapshot {
	stack = append(stack, snap)
	if len(stack) > limit {
		stack = stack[len(stack)-limit:]
	}
	return stack
}

// Acquire opens an exclusive edit session for holder
func (s *Store) Acquire(ctx context.Context, id, holder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	d := s.docLocked(id)
	if l := s.activeLeaseLocked(d); l != nil {
		s.mu.Unlock()
		return "", &collab.LockConflictError{DocumentID: id, Holder: l.holder}
	}
	d.lease = &lease{
		holder:  holder,
		token:   uuid.NewString(),
		expires: s.cfg.Clock().Add(s.cfg.LockTTL),
	}
	token := d.lease.token
	ev := s.locksEventLocked(id, d)
	s.mu.Unlock()

	s.logger.Debug("edit session acquired", "document", id, "holder", holder)
	s.publish(ev)
	return token, nil
}

// Heartbeat extends a live session
func (s *Store) Heartbeat(ctx context.Context, id, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docLocked(id)
	l := s.activeLeaseLocked(d)
	if l == nil || l.token != token {
		return collab.ErrLockLost
	}
	l.expires = s.cfg.Clock().Add(s.cfg.LockTTL)
	return nil
}

// Release ends a session. releasing an unknown token fails with
// collab.ErrLockLost.
func (s *Store) Release(ctx context.Context, id, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	d := s.docLocked(id)
	l := s.activeLeaseLocked(d)
	if l == nil || l.token != token {
		s.mu.Unlock()
		return collab.ErrLockLost
	}
	d.lease = nil
	ev := s.locksEventLocked(id, d)
	s.mu.Unlock()

	s.logger.Debug("edit session released", "document", id, "holder", l.holder)
	s.publish(ev)
	return nil
}

// Locks lists the active sessions of a document
func (s *Store) Locks(id string) []collab.Lock {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil
	}
	s.activeLeaseLocked(d)
	return locksOf(d)
}

// State returns a document-state event for id, as sent to a joining client
func (s *Store) State(id string) collab.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docLocked(id)
	s.activeLeaseLocked(d)
	return s.stateEventLocked(id, d)
}

// Documents lists stored document ids in order
func (s *Store) Documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.docs))
	for id, d := range s.docs {
		if d.snapshot != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (s *Store) stateEventLocked(id string, d *document) collab.Event {
	ev := collab.Event{
		Kind:       collab.EventDocumentState,
		DocumentID: id,
		Revision:   d.revision,
		Locks:      locksOf(d),
	}
	if d.snapshot != nil {
		snap := cloneSnapshot(*d.snapshot)
		ev.Snapshot = &snap
	}
	return ev
}

func (s *Store) locksEventLocked(id string, d *document) collab.Event {
	return collab.Event{
		Kind:       collab.EventLocksUpdated,
		DocumentID: id,
		Revision:   d.revision,
		Locks:      locksOf(d),
	}
}

// Subscribe registers fn for every store event. fn runs outside the store
// lock and must not block.
func (s *Store) Subscribe(fn func(collab.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) publish(ev collab.Event) {
	s.mu.Lock()
	fns := make([]func(collab.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// cloneSnapshot keeps callers from sharing maps with the store
func cloneSnapshot(snap grid.Snapshot) grid.Snapshot {
	return snap.Clone()
}

// IsConflict reports whether err is a revision or lock conflict
func IsConflict(err error) bool {
	return errors.Is(err, collab.ErrRevisionConflict) || errors.Is(err, collab.ErrDocumentLocked)
}
