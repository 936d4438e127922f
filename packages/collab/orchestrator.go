// Package collab keeps a grid.Document synchronized with an authoritative
// store, either over a live channel or by periodic snapshot saves.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vogtb/gridsync/packages/draft"
	"github.com/vogtb/gridsync/packages/grid"
)

// Config wires an Orchestrator to its collaborators. only DocumentID and
// Adapter are required.
type Config struct {
	DocumentID string
	TableKind  string

	// Holder names this client in lock listings
	Holder string

	Adapter  Adapter
	Sessions SessionAPI
	Live     LiveChannel
	Drafts   draft.Store

	Save  Scheduler
	Draft Scheduler

	Heartbeat   time.Duration
	SavedLinger time.Duration

	// TickInterval drives Run
	TickInterval time.Duration

	Clock   func() time.Time
	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultConfig returns the timings used by the command line client
func DefaultConfig(documentID string, adapter Adapter) Config {
	return Config{
		DocumentID:   documentID,
		Adapter:      adapter,
		Save:         Scheduler{Debounce: 800 * time.Millisecond, MaxWait: 5 * time.Second},
		Draft:        Scheduler{Debounce: 300 * time.Millisecond, MaxWait: 2 * time.Second},
		Heartbeat:    15 * time.Second,
		SavedLinger:  1500 * time.Millisecond,
		TickInterval: 100 * time.Millisecond,
	}
}

type remoteState struct {
	snapshot grid.Snapshot
	revision int64
}

// Orchestrator is the persistence and collaboration state machine for one
// document session.
//
// Network exchanges are serialized by syncMu. mu guards the fields below
// it and is never held across a network call. Hydrating the document
// while holding mu is allowed because the change listener ignores
// hydrations and the edit listener never blocks. Other document listeners
// must not call back into the orchestrator.
type Orchestrator struct {
	cfg     Config
	doc     *grid.Document
	logger  *slog.Logger
	metrics *Metrics
	group   singleflight.Group
	wake    chan struct{}

	syncMu sync.Mutex

	mu            sync.Mutex
	status        Status
	changed       bool
	opened        bool
	closed        bool
	live          bool
	readOnly      bool
	token         string
	revision      int64
	ackVersion    int64
	inflight      bool
	ownOps        map[string]struct{}
	queued        *remoteState
	savePending   pending
	draftPending  pending
	lastHeartbeat time.Time
	savedAt       time.Time
	unsubscribe   []func()
	listeners     map[int]func(Status)
	nextListener  int
}

// New creates an orchestrator for doc. call Open before anything else.
func New(doc *grid.Document, cfg Config) (*Orchestrator, error) {
	if doc == nil {
		return nil, errors.New("document is required")
	}
	if cfg.DocumentID == "" {
		return nil, errors.New("document id is required")
	}
	if cfg.Adapter == nil {
		return nil, errors.New("adapter is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		doc:       doc,
		logger:    logger.With("document", cfg.DocumentID),
		metrics:   cfg.Metrics,
		wake:      make(chan struct{}, 1),
		ownOps:    make(map[string]struct{}),
		listeners: make(map[int]func(Status)),
		status:    Status{State: StateClean},
	}, nil
}

// Document returns the orchestrated document
func (o *Orchestrator) Document() *grid.Document {
	return o.doc
}

// Open acquires an edit session, joins the live channel and loads the
// authoritative snapshot. a stored draft is shown while the load is
// pending and survives it when it is at least as new as the server state.
func (o *Orchestrator) Open(ctx context.Context) error {
	o.syncMu.Lock()
	defer o.syncMu.Unlock()

	o.mu.Lock()
	if o.opened {
		o.mu.Unlock()
		return errors.New("orchestrator already opened")
	}
	o.opened = true
	o.mu.Unlock()

	rec, hasDraft := o.loadDraft(ctx)
	if hasDraft {
		o.doc.Hydrate(rec.Snapshot)
	}

	readOnly := false
	holder := ""
	token := ""
	if o.cfg.Sessions != nil {
		var err error
		token, err = o.cfg.Sessions.Acquire(ctx, o.cfg.DocumentID)
		var conflict *LockConflictError
		switch {
		case errors.As(err, &conflict):
			readOnly = true
			holder = conflict.Holder
			o.logger.Info("document opened read-only", "holder", holder)
		case err != nil:
			return fmt.Errorf("acquire edit session: %w", err)
		}
	}

	live := false
	if o.cfg.Live != nil {
		if err := o.cfg.Live.Join(ctx, o.cfg.DocumentID); err != nil {
			o.logger.Warn("live channel unavailable, saving snapshots", "error", err)
		} else {
			live = true
		}
	}

	snap, rev, err := o.cfg.Adapter.LoadSnapshot(o.sessionContext(ctx, token))
	if err != nil {
		o.abandonSession(ctx, token, live)
		return fmt.Errorf("load snapshot: %w", err)
	}

	now := o.cfg.Clock()
	o.mu.Lock()
	o.token = token
	o.lastHeartbeat = now
	o.live = live
	o.readOnly = readOnly
	o.revision = rev
	keepDraft := hasDraft && !readOnly && rec.BaseRevision >= rev
	if keepDraft {
		// the draft holds edits the store never saw
		o.ackVersion = o.doc.Version() - 1
		o.savePending.touch(now)
		o.setStatusLocked(StateDirty, ErrorNone, nil)
		o.logger.Info("restored local draft", "base_revision", rec.BaseRevision, "revision", rev)
	} else {
		if snap != nil {
			o.doc.Hydrate(*snap)
		} else if hasDraft {
			o.doc.Hydrate(grid.NewSheet(1, 1).Snapshot())
		}
		o.ackVersion = o.doc.Version()
		o.setStatusLocked(StateClean, ErrorNone, nil)
	}
	o.status.LockHolder = holder
	o.doc.SetReadOnly(readOnly)
	o.unsubscribe = append(o.unsubscribe,
		o.doc.Subscribe(o.onChange),
		o.doc.SubscribeEdits(o.onEdit),
	)
	o.unlockAndNotify()

	if hasDraft && !keepDraft && !readOnly {
		o.deleteDraft(ctx)
	}
	return nil
}

func (o *Orchestrator) abandonSession(ctx context.Context, token string, live bool) {
	if live {
		if err := o.cfg.Live.Leave(ctx, o.cfg.DocumentID); err != nil {
			o.logger.Debug("leave after failed open", "error", err)
		}
	}
	if token != "" {
		if err := o.cfg.Sessions.Release(ctx, o.cfg.DocumentID, token); err != nil {
			o.logger.Debug("release after failed open", "error", err)
		}
	}
}

// onChange runs after every document change. hydrations come from the
// orchestrator itself and are ignored without taking the lock.
func (o *Orchestrator) onChange(change grid.Change) {
	if change.Kind == grid.ChangeHydrate {
		return
	}
	now := o.cfg.Clock()
	o.mu.Lock()
	if o.closed || change.Version <= o.ackVersion {
		o.mu.Unlock()
		return
	}
	o.savePending.touch(now)
	o.draftPending.touch(now)
	o.status.Notice = ""
	if !o.inflight {
		o.setStatusLocked(StateDirty, ErrorNone, nil)
	}
	o.unlockAndNotify()
}

func (o *Orchestrator) onEdit(state grid.EditState) {
	if state.Editing {
		return
	}
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// Status returns the current status
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotStatusLocked()
}

func (o *Orchestrator) snapshotStatusLocked() Status {
	s := o.status.clone()
	s.ReadOnly = o.readOnly
	s.Revision = o.revision
	s.Version = o.doc.Version()
	s.Live = o.live
	return s
}

// Subscribe registers fn for status changes and returns its cancel func.
// fn runs outside the orchestrator lock.
func (o *Orchestrator) Subscribe(fn func(Status)) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextListener
	o.nextListener++
	o.listeners[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

func (o *Orchestrator) setStatusLocked(state State, kind ErrorKind, err error) {
	o.status.State = state
	o.status.ErrorKind = kind
	o.status.Err = err
	if state == StateSaved {
		o.status.SavedAt = o.savedAt
	}
	o.changed = true
}

// unlockAndNotify releases mu and delivers the status to listeners when
// it changed.
func (o *Orchestrator) unlockAndNotify() {
	if !o.changed {
		o.mu.Unlock()
		return
	}
	o.changed = false
	status := o.snapshotStatusLocked()
	fns := make([]func(Status), 0, len(o.listeners))
	for _, fn := range o.listeners {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(status)
	}
}

func (o *Orchestrator) sessionContext(ctx context.Context, token string) context.Context {
	return WithSessionToken(ctx, token)
}

// quiescentLocked reports whether a remote snapshot may replace local state
func (o *Orchestrator) quiescentLocked() bool {
	return !o.inflight && !o.doc.IsEditing() && o.doc.Version() <= o.ackVersion
}

// Tick advances timers: the saved linger, heartbeats, queued remote
// updates, draft saves and debounced flushes.
func (o *Orchestrator) Tick(ctx context.Context) error {
	now := o.cfg.Clock()

	o.mu.Lock()
	if !o.opened || o.closed {
		o.mu.Unlock()
		return nil
	}
	if o.status.State == StateSaved && now.Sub(o.savedAt) >= o.cfg.SavedLinger {
		o.setStatusLocked(StateClean, ErrorNone, nil)
	}
	heartbeatDue := o.token != "" && o.cfg.Heartbeat > 0 && now.Sub(o.lastHeartbeat) >= o.cfg.Heartbeat
	draftDue := o.cfg.Drafts != nil && !o.readOnly && o.cfg.Draft.Due(now, o.draftPending.first, o.draftPending.last)
	saveDue := !o.readOnly && o.status.State != StateError &&
		o.cfg.Save.Due(now, o.savePending.first, o.savePending.last)
	o.unlockAndNotify()

	if heartbeatDue {
		o.heartbeat(ctx, now)
	}
	o.drainQueued()
	if draftDue {
		o.saveDraft(ctx, now)
	}
	if saveDue {
		return o.Flush(ctx)
	}
	return nil
}

func (o *Orchestrator) heartbeat(ctx context.Context, now time.Time) {
	o.mu.Lock()
	token := o.token
	o.mu.Unlock()
	if token == "" {
		return
	}

	err := o.cfg.Sessions.Heartbeat(ctx, o.cfg.DocumentID, token)

	o.mu.Lock()
	defer o.unlockAndNotify()
	if o.token != token {
		return
	}
	if err == nil {
		o.lastHeartbeat = now
		return
	}
	o.logger.Warn("heartbeat failed, switching to read-only", "error", err)
	o.metrics.demoted()
	o.token = ""
	o.readOnly = true
	o.doc.SetReadOnly(true)
	o.status.Notice = "edit session lost"
	if o.status.State != StateError {
		o.setStatusLocked(StateError, ErrorLocked, fmt.Errorf("heartbeat: %w", ErrLockLost))
	}
	o.changed = true
}

// Flush sends unsaved local changes now. at most one operation is in
// flight; a call while one is pending returns without sending.
func (o *Orchestrator) Flush(ctx context.Context) error {
	o.syncMu.Lock()
	defer o.syncMu.Unlock()
	return o.flushLocked(ctx)
}

// Retry leaves the error state and flushes immediately
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	if o.status.State == StateError && o.status.ErrorKind == ErrorGeneric {
		o.setStatusLocked(StateDirty, ErrorNone, nil)
	}
	o.unlockAndNotify()
	return o.Flush(ctx)
}

func (o *Orchestrator) flushLocked(ctx context.Context) error {
	snap, version := o.doc.VersionedSnapshot()

	o.mu.Lock()
	if !o.opened || o.closed || o.inflight || o.readOnly || version <= o.ackVersion {
		if version <= o.ackVersion {
			o.savePending.reset()
		}
		o.mu.Unlock()
		return nil
	}
	o.inflight = true
	o.savePending.reset()
	base := o.revision
	token := o.token
	live := o.live
	opID := uuid.NewString()
	if live {
		o.ownOps[opID] = struct{}{}
	}
	o.setStatusLocked(StateSaving, ErrorNone, nil)
	o.unlockAndNotify()

	mode := modeSnapshot
	if live {
		mode = modeLive
	}
	ctx, span := tracer.Start(ctx, "collab.Flush", trace.WithAttributes(
		attribute.String("document", o.cfg.DocumentID),
		attribute.String("mode", mode),
		attribute.Int64("base_revision", base),
		attribute.Int64("version", version),
	))
	defer span.End()

	start := time.Now()
	var (
		rev int64
		err error
	)
	sctx := o.sessionContext(ctx, token)
	if live {
		rev, err = o.cfg.Live.ApplyOperation(sctx, o.cfg.DocumentID, base, opID, Operation{Snapshot: snap})
	} else {
		rev, err = o.cfg.Adapter.SaveSnapshot(sctx, snap, base)
	}
	elapsed := time.Since(start)

	if err == nil {
		o.metrics.observeFlush(mode, resultOK, elapsed)
		span.SetAttributes(attribute.Int64("revision", rev))
		o.acknowledge(ctx, rev, version)
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	o.mu.Lock()
	o.inflight = false
	delete(o.ownOps, opID)
	o.mu.Unlock()

	switch {
	case errors.Is(err, ErrRevisionConflict):
		o.metrics.observeFlush(mode, resultConflict, elapsed)
		o.logger.Info("stale revision, resynchronizing", "base_revision", base)
		return o.resyncLocked(ctx)
	case errors.Is(err, ErrDocumentLocked), errors.Is(err, ErrLockLost):
		o.metrics.observeFlush(mode, resultLocked, elapsed)
		o.logger.Warn("document locked by another session", "error", err)
		o.mu.Lock()
		o.readOnly = true
		o.token = ""
		o.doc.SetReadOnly(true)
		var conflict *LockConflictError
		if errors.As(err, &conflict) {
			o.status.LockHolder = conflict.Holder
		}
		o.setStatusLocked(StateError, ErrorLocked, err)
		o.unlockAndNotify()
		return err
	default:
		o.metrics.observeFlush(mode, resultError, elapsed)
		o.logger.Error("flush failed", "error", err)
		o.mu.Lock()
		o.setStatusLocked(StateError, ErrorGeneric, err)
		o.unlockAndNotify()
		return err
	}
}

// acknowledge records a successful flush of version at rev
func (o *Orchestrator) acknowledge(ctx context.Context, rev, version int64) {
	now := o.cfg.Clock()
	o.mu.Lock()
	o.inflight = false
	if rev > o.revision {
		o.revision = rev
	}
	if version > o.ackVersion {
		o.ackVersion = version
	}
	clean := o.doc.Version() <= o.ackVersion
	if clean {
		o.savedAt = now
		o.setStatusLocked(StateSaved, ErrorNone, nil)
	} else {
		// edits made while saving are already pending on the scheduler
		o.setStatusLocked(StateDirty, ErrorNone, nil)
	}
	if o.queued != nil && o.queued.revision <= o.revision {
		o.queued = nil
	}
	o.unlockAndNotify()

	if clean {
		o.deleteDraft(ctx)
	}
	o.drainQueued()
}

// resync replaces local state with the authoritative snapshot. concurrent
// calls share one load.
func (o *Orchestrator) resyncLocked(ctx context.Context) error {
	_, err, _ := o.group.Do("resync", func() (interface{}, error) {
		ctx, span := tracer.Start(ctx, "collab.Resync", trace.WithAttributes(
			attribute.String("document", o.cfg.DocumentID),
		))
		defer span.End()

		o.mu.Lock()
		token := o.token
		o.mu.Unlock()

		snap, rev, err := o.cfg.Adapter.LoadSnapshot(o.sessionContext(ctx, token))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.mu.Lock()
			o.setStatusLocked(StateError, ErrorGeneric, fmt.Errorf("resync: %w", err))
			o.unlockAndNotify()
			return nil, err
		}
		o.metrics.resynced()
		span.SetAttributes(attribute.Int64("revision", rev))

		o.mu.Lock()
		if snap != nil {
			o.doc.Hydrate(*snap)
		}
		o.revision = rev
		o.ackVersion = o.doc.Version()
		o.savePending.reset()
		o.draftPending.reset()
		if o.queued != nil && o.queued.revision <= rev {
			o.queued = nil
		}
		o.setStatusLocked(StateError, ErrorConflict, ErrRevisionConflict)
		o.status.Notice = "document changed elsewhere, local changes were replaced"
		o.unlockAndNotify()

		o.deleteDraft(ctx)
		return nil, nil
	})
	return err
}

// HandleEvent dispatches one inbound live-channel event
func (o *Orchestrator) HandleEvent(ctx context.Context, ev Event) {
	if ev.DocumentID != "" && ev.DocumentID != o.cfg.DocumentID {
		return
	}
	switch ev.Kind {
	case EventDocumentState:
		o.updateLocks(ev.Locks)
		if ev.Snapshot != nil {
			o.applyRemote(*ev.Snapshot, ev.Revision)
		}
	case EventOperationApplied:
		o.mu.Lock()
		_, own := o.ownOps[ev.OperationID]
		if own {
			delete(o.ownOps, ev.OperationID)
		}
		o.mu.Unlock()
		if own {
			o.metrics.remoteUpdate(outcomeEcho)
			return
		}
		if ev.Snapshot != nil {
			o.applyRemote(*ev.Snapshot, ev.Revision)
		}
	case EventOperationRejected:
		// rejections of our own operations also arrive as the reply to
		// ApplyOperation, which already handled them
		o.logger.Debug("operation rejected", "operation", ev.OperationID, "reason", ev.Reason, "details", ev.Details)
	case EventLocksUpdated:
		o.updateLocks(ev.Locks)
	default:
		o.logger.Warn("unknown live event", "kind", ev.Kind)
	}
}

func (o *Orchestrator) updateLocks(locks []Lock) {
	o.mu.Lock()
	if !slices.Equal(o.status.Locks, locks) {
		o.status.Locks = slices.Clone(locks)
		o.changed = true
	}
	if o.readOnly {
		holder := ""
		for _, l := range locks {
			if l.Holder != o.cfg.Holder {
				holder = l.Holder
				break
			}
		}
		if holder != "" && holder != o.status.LockHolder {
			o.status.LockHolder = holder
			o.changed = true
		}
	}
	o.unlockAndNotify()
}

// applyRemote hydrates a newer remote snapshot, or queues it while the
// local client is busy. stale and duplicate deliveries are dropped.
func (o *Orchestrator) applyRemote(snap grid.Snapshot, rev int64) {
	o.mu.Lock()
	if rev <= o.revision {
		o.mu.Unlock()
		o.metrics.remoteUpdate(outcomeDuplicate)
		return
	}
	if !o.quiescentLocked() {
		if o.queued == nil || rev > o.queued.revision {
			o.queued = &remoteState{snapshot: snap, revision: rev}
		}
		o.mu.Unlock()
		o.metrics.remoteUpdate(outcomeQueued)
		o.logger.Debug("remote update queued", "revision", rev)
		return
	}
	o.hydrateRemoteLocked(snap, rev)
	o.unlockAndNotify()
	o.metrics.remoteUpdate(outcomeApplied)
}

func (o *Orchestrator) hydrateRemoteLocked(snap grid.Snapshot, rev int64) {
	o.doc.Hydrate(snap)
	o.revision = rev
	o.ackVersion = o.doc.Version()
	o.changed = true
}

// drainQueued applies a queued remote update once the client is quiescent
func (o *Orchestrator) drainQueued() {
	o.mu.Lock()
	if o.queued == nil || !o.quiescentLocked() {
		o.mu.Unlock()
		return
	}
	q := o.queued
	o.queued = nil
	if q.revision > o.revision {
		o.hydrateRemoteLocked(q.snapshot, q.revision)
		o.unlockAndNotify()
		o.metrics.remoteUpdate(outcomeApplied)
		return
	}
	o.unlockAndNotify()
}

// RequestUndo asks the store to undo its latest revision. adapters without
// server history fall back to the local undo stack.
func (o *Orchestrator) RequestUndo(ctx context.Context) error {
	return o.requestHistory(ctx, "undo")
}

// RequestRedo is the counterpart of RequestUndo
func (o *Orchestrator) RequestRedo(ctx context.Context) error {
	return o.requestHistory(ctx, "redo")
}

func (o *Orchestrator) requestHistory(ctx context.Context, direction string) error {
	history, ok := o.cfg.Adapter.(HistoryAdapter)
	if !ok {
		if direction == "undo" {
			return o.doc.Undo()
		}
		return o.doc.Redo()
	}

	o.syncMu.Lock()
	defer o.syncMu.Unlock()

	o.mu.Lock()
	if o.readOnly {
		o.mu.Unlock()
		return grid.ErrReadOnly
	}
	o.mu.Unlock()

	// unsent edits go first so the server undoes what the user sees
	if err := o.flushLocked(ctx); err != nil {
		return err
	}

	o.mu.Lock()
	if o.status.ErrorKind == ErrorConflict {
		o.mu.Unlock()
		return ErrRevisionConflict
	}
	expected := o.revision
	token := o.token
	o.mu.Unlock()

	sctx := o.sessionContext(ctx, token)
	var (
		snap grid.Snapshot
		rev  int64
		err  error
	)
	if direction == "undo" {
		snap, rev, err = history.RequestUndo(sctx, expected)
	} else {
		snap, rev, err = history.RequestRedo(sctx, expected)
	}
	if err != nil {
		o.mu.Lock()
		switch {
		case errors.Is(err, ErrNoHistory):
			o.status.Notice = "nothing to " + direction
		case errors.Is(err, ErrRevisionConflict):
			o.status.Notice = direction + " conflicted with another change"
		default:
			o.status.Notice = direction + " failed"
		}
		o.changed = true
		o.unlockAndNotify()
		if errors.Is(err, ErrRevisionConflict) {
			if rerr := o.resyncLocked(ctx); rerr != nil {
				return errors.Join(err, rerr)
			}
		}
		return err
	}

	o.mu.Lock()
	o.hydrateRemoteLocked(snap, rev)
	o.status.Notice = ""
	o.unlockAndNotify()
	return nil
}

// Run drives the orchestrator until ctx ends: ticks, live events and
// queued remote updates after an edit closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	var events <-chan Event
	o.mu.Lock()
	if o.live {
		events = o.cfg.Live.Events()
	}
	o.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				o.dropLive()
				events = nil
				continue
			}
			o.HandleEvent(ctx, ev)
		case <-o.wake:
			o.drainQueued()
		case <-ticker.C:
			if err := o.Tick(ctx); err != nil {
				o.logger.Debug("tick", "error", err)
			}
		}
	}
}

// dropLive falls back to snapshot saves after the live channel closed
func (o *Orchestrator) dropLive() {
	o.mu.Lock()
	if o.live {
		o.logger.Warn("live channel closed, saving snapshots")
		o.live = false
		o.changed = true
	}
	o.unlockAndNotify()
}

// Close flushes pending changes, leaves the live channel and releases the
// edit session.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	if err := o.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}

	o.syncMu.Lock()
	defer o.syncMu.Unlock()

	o.mu.Lock()
	if o.closed || !o.opened {
		o.mu.Unlock()
		return errors.Join(errs...)
	}
	o.closed = true
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	live := o.live
	token := o.token
	o.token = ""
	dirty := o.doc.Version() > o.ackVersion
	o.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	if dirty {
		// keep what the store never received
		o.saveDraft(ctx, o.cfg.Clock())
	}
	if live {
		if err := o.cfg.Live.Leave(ctx, o.cfg.DocumentID); err != nil {
			errs = append(errs, fmt.Errorf("leave: %w", err))
		}
	}
	if token != "" {
		if err := o.cfg.Sessions.Release(ctx, o.cfg.DocumentID, token); err != nil {
			errs = append(errs, fmt.Errorf("release: %w", err))
		}
	}
	return errors.Join(errs...)
}
