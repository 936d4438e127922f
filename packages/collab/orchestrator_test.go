package collab_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vogtb/gridsync/packages/collab"
	"github.com/vogtb/gridsync/packages/docstore"
	"github.com/vogtb/gridsync/packages/draft"
	"github.com/vogtb/gridsync/packages/grid"
)

const docID = "doc"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	store *docstore.Store
	clock *fakeClock
}

func newHarness(t *testing.T) *harness {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	return &harness{
		t:     t,
		ctx:   context.Background(),
		store: docstore.New(docstore.Config{LockTTL: time.Minute, Clock: clock.Now}),
		clock: clock,
	}
}

// seed stores an initial document at revision 1
func (h *harness) seed(value string) {
	s := grid.NewSheet(2, 2)
	s.Raw[0][0] = value
	_, err := h.store.Save(h.ctx, docID, "", s.Snapshot(), 0)
	require.NoError(h.t, err)
}

func (h *harness) config(adapter collab.Adapter) collab.Config {
	if adapter == nil {
		adapter = h.store.Adapter(docID)
	}
	return collab.Config{
		DocumentID:  docID,
		Adapter:     adapter,
		Save:        collab.Scheduler{Debounce: time.Second, MaxWait: 3 * time.Second},
		Draft:       collab.Scheduler{Debounce: 200 * time.Millisecond, MaxWait: time.Second},
		Heartbeat:   30 * time.Second,
		SavedLinger: 2 * time.Second,
		Clock:       h.clock.Now,
		Metrics:     collab.NewMetrics(nil),
	}
}

func (h *harness) open(cfg collab.Config) (*collab.Orchestrator, *grid.Document) {
	doc := grid.NewDocument(2, 2)
	o, err := collab.New(doc, cfg)
	require.NoError(h.t, err)
	require.NoError(h.t, o.Open(h.ctx))
	return o, doc
}

func (h *harness) stored() (grid.Snapshot, int64) {
	snap, rev, err := h.store.Load(h.ctx, docID)
	require.NoError(h.t, err)
	require.NotNil(h.t, snap)
	return *snap, rev
}

// deliver hands every queued channel event to o
func deliver(ctx context.Context, ch *docstore.Channel, o *collab.Orchestrator) {
	for {
		select {
		case ev := <-ch.Events():
			o.HandleEvent(ctx, ev)
		case <-time.After(50 * time.Millisecond):
			return
		}
	}
}

type recorder struct {
	mu     sync.Mutex
	states []collab.State
}

func (r *recorder) record(s collab.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.states); n > 0 && r.states[n-1] == s.State {
		return
	}
	r.states = append(r.states, s.State)
}

func (r *recorder) get() []collab.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]collab.State(nil), r.states...)
}

// plainAdapter hides the optional interfaces of the wrapped adapter
type plainAdapter struct {
	collab.Adapter
}

type gatedAdapter struct {
	collab.Adapter
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAdapter) SaveSnapshot(ctx context.Context, snap grid.Snapshot, expected int64) (int64, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Adapter.SaveSnapshot(ctx, snap, expected)
}

type flakyAdapter struct {
	collab.Adapter
	failures int
}

func (f *flakyAdapter) SaveSnapshot(ctx context.Context, snap grid.Snapshot, expected int64) (int64, error) {
	if f.failures > 0 {
		f.failures--
		return 0, errors.New("connection reset")
	}
	return f.Adapter.SaveSnapshot(ctx, snap, expected)
}

func TestNewValidatesConfig(t *testing.T) {
	h := newHarness(t)
	_, err := collab.New(nil, h.config(nil))
	assert.Error(t, err)
	_, err = collab.New(grid.NewDocument(1, 1), collab.Config{Adapter: h.store.Adapter(docID)})
	assert.Error(t, err)
	_, err = collab.New(grid.NewDocument(1, 1), collab.Config{DocumentID: docID})
	assert.Error(t, err)
}

func TestSnapshotSaveLifecycle(t *testing.T) {
	h := newHarness(t)
	o, doc := h.open(h.config(nil))
	assert.Equal(t, collab.StateClean, o.Status().State)
	assert.False(t, o.Status().Live)

	rec := &recorder{}
	defer o.Subscribe(rec.record)()

	require.NoError(t, doc.SetCell(0, 0, "5"))
	assert.Equal(t, collab.StateDirty, o.Status().State)

	h.clock.Advance(500 * time.Millisecond)
	require.NoError(t, o.Tick(h.ctx))
	assert.Equal(t, collab.StateDirty, o.Status().State)

	h.clock.Advance(500 * time.Millisecond)
	require.NoError(t, o.Tick(h.ctx))
	status := o.Status()
	assert.Equal(t, collab.StateSaved, status.State)
	assert.Equal(t, int64(1), status.Revision)

	snap, rev := h.stored()
	assert.Equal(t, int64(1), rev)
	assert.Equal(t, "5", snap.Raw[0][0])

	h.clock.Advance(2 * time.Second)
	require.NoError(t, o.Tick(h.ctx))
	assert.Equal(t, collab.StateClean, o.Status().State)

	assert.Equal(t, []collab.State{collab.StateDirty, collab.StateSaving, collab.StateSaved, collab.StateClean}, rec.get())
}

func TestMaxWaitBoundsSteadyEditing(t *testing.T) {
	h := newHarness(t)
	o, doc := h.open(h.config(nil))

	for i := 0; i < 6; i++ {
		require.NoError(t, doc.SetCell(0, 0, string(rune('a'+i))))
		h.clock.Advance(600 * time.Millisecond)
		require.NoError(t, o.Tick(h.ctx))
	}
	// edits never paused for a full second, yet the ceiling forced a save
	_, rev := h.stored()
	assert.Equal(t, int64(1), rev)
}

func TestEditsDuringFlushScheduleFollowUp(t *testing.T) {
	h := newHarness(t)
	gated := &gatedAdapter{
		Adapter: h.store.Adapter(docID),
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
	o, doc := h.open(h.config(gated))

	require.NoError(t, doc.SetCell(0, 0, "first"))
	done := make(chan error, 1)
	go func() { done <- o.Flush(h.ctx) }()
	<-gated.entered
	assert.Equal(t, collab.StateSaving, o.Status().State)

	// edits made while saving do not leave the saving state
	require.NoError(t, doc.SetCell(1, 1, "second"))
	assert.Equal(t, collab.StateSaving, o.Status().State)

	close(gated.release)
	require.NoError(t, <-done)
	assert.Equal(t, collab.StateDirty, o.Status().State)
	snap, rev := h.stored()
	assert.Equal(t, int64(1), rev)
	assert.Equal(t, "", snap.Raw[1][1])

	h.clock.Advance(time.Second)
	require.NoError(t, o.Tick(h.ctx))
	assert.Equal(t, collab.StateSaved, o.Status().State)
	snap, rev = h.stored()
	assert.Equal(t, int64(2), rev)
	assert.Equal(t, "second", snap.Raw[1][1])
}

func TestRevisionConvergenceSnapshotMode(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")
	reg := prometheus.NewRegistry()

	a, docA := h.open(h.config(nil))
	cfgB := h.config(nil)
	cfgB.Metrics = collab.NewMetrics(reg)
	b, docB := h.open(cfgB)

	require.NoError(t, docA.SetCell(0, 1, "from a"))
	require.NoError(t, a.Flush(h.ctx))
	assert.Equal(t, int64(2), a.Status().Revision)

	require.NoError(t, docB.SetCell(1, 1, "from b"))
	require.NoError(t, b.Flush(h.ctx))

	status := b.Status()
	assert.Equal(t, collab.StateError, status.State)
	assert.Equal(t, collab.ErrorConflict, status.ErrorKind)
	assert.ErrorIs(t, status.Err, collab.ErrRevisionConflict)
	assert.Equal(t, int64(2), status.Revision)

	authoritative, rev := h.stored()
	assert.Equal(t, int64(2), rev)
	assert.Equal(t, authoritative.Raw, docB.Snapshot().Raw)
	assert.Equal(t, authoritative.RowIDs, docB.Snapshot().RowIDs)
	assert.Equal(t, 1.0, counterValue(t, reg, "gridsync_resyncs_total"))

	// the next edit leaves the conflict state and saves on the new base
	require.NoError(t, docB.SetCell(1, 1, "from b"))
	assert.Equal(t, collab.StateDirty, b.Status().State)
	require.NoError(t, b.Flush(h.ctx))
	final, rev := h.stored()
	assert.Equal(t, int64(3), rev)
	assert.Equal(t, "from a", final.Raw[0][1])
	assert.Equal(t, "from b", final.Raw[1][1])
}

func TestRevisionConvergenceLiveMode(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")

	chA := h.store.Channel()
	defer chA.Close()
	chB := h.store.Channel()
	defer chB.Close()

	cfgA := h.config(nil)
	cfgA.Live = chA
	a, docA := h.open(cfgA)
	cfgB := h.config(nil)
	cfgB.Live = chB
	b, docB := h.open(cfgB)
	assert.True(t, a.Status().Live)

	require.NoError(t, docA.SetCell(0, 1, "live a"))
	require.NoError(t, a.Flush(h.ctx))

	// b has not processed the broadcast yet, so its operation is stale
	require.NoError(t, docB.SetCell(1, 0, "live b"))
	require.NoError(t, b.Flush(h.ctx))
	assert.Equal(t, collab.ErrorConflict, b.Status().ErrorKind)
	assert.Equal(t, "live a", docB.Sheet().Raw[0][1])
	assert.Equal(t, "", docB.Sheet().Raw[1][0])

	// late delivery of the already-synced revision is a no-op
	before := docB.Snapshot()
	deliver(h.ctx, chB, b)
	assert.Equal(t, before, docB.Snapshot())
	assert.Equal(t, int64(2), b.Status().Revision)
}

func TestLiveEchoAndBroadcast(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")
	chA := h.store.Channel()
	defer chA.Close()
	chB := h.store.Channel()
	defer chB.Close()

	cfgA := h.config(nil)
	cfgA.Live = chA
	a, docA := h.open(cfgA)
	cfgB := h.config(nil)
	cfgB.Live = chB
	b, docB := h.open(cfgB)

	require.NoError(t, docA.SetCell(1, 1, "=A1"))
	require.NoError(t, a.Flush(h.ctx))
	versionA := docA.Version()

	// a recognizes its own acknowledgement and leaves its state alone
	deliver(h.ctx, chA, a)
	assert.Equal(t, versionA, docA.Version())
	assert.Equal(t, "=A1", docA.Sheet().Raw[1][1])
	assert.True(t, docA.CanUndo(), "own echo must not clear local history")

	deliver(h.ctx, chB, b)
	assert.Equal(t, "=A1", docB.Sheet().Raw[1][1])
	assert.Equal(t, int64(2), b.Status().Revision)
	assert.Equal(t, collab.StateClean, b.Status().State)
}

func TestIdempotentRemoteApplication(t *testing.T) {
	h := newHarness(t)
	o, doc := h.open(h.config(nil))

	remote := grid.NewSheet(3, 2)
	remote.Raw[2][1] = "remote"
	snap := remote.Snapshot()
	ev := collab.Event{Kind: collab.EventDocumentState, DocumentID: docID, Revision: 5, Snapshot: &snap}

	o.HandleEvent(h.ctx, ev)
	first := doc.Snapshot()
	assert.Equal(t, "remote", first.Raw[2][1])
	assert.Equal(t, int64(5), o.Status().Revision)

	rec := &recorder{}
	defer o.Subscribe(rec.record)()
	o.HandleEvent(h.ctx, ev)
	assert.Equal(t, first, doc.Snapshot())
	assert.Empty(t, rec.get())

	// older revisions and other documents are ignored too
	older := grid.NewSheet(1, 1).Snapshot()
	o.HandleEvent(h.ctx, collab.Event{Kind: collab.EventOperationApplied, DocumentID: docID, Revision: 4, OperationID: "x", Snapshot: &older})
	o.HandleEvent(h.ctx, collab.Event{Kind: collab.EventDocumentState, DocumentID: "elsewhere", Revision: 9, Snapshot: &older})
	assert.Equal(t, first, doc.Snapshot())
}

func TestRemoteUpdatesQueueWhileEditing(t *testing.T) {
	h := newHarness(t)
	o, doc := h.open(h.config(nil))

	require.NoError(t, doc.BeginEdit(0, 0))
	doc.UpdateEdit("typing")

	mk := func(v string) *grid.Snapshot {
		s := grid.NewSheet(2, 2)
		s.Raw[0][1] = v
		snap := s.Snapshot()
		return &snap
	}
	o.HandleEvent(h.ctx, collab.Event{Kind: collab.EventDocumentState, Revision: 2, Snapshot: mk("two")})
	o.HandleEvent(h.ctx, collab.Event{Kind: collab.EventDocumentState, Revision: 3, Snapshot: mk("three")})
	o.HandleEvent(h.ctx, collab.Event{Kind: collab.EventDocumentState, Revision: 2, Snapshot: mk("stale")})

	// nothing clobbers the open edit
	assert.True(t, doc.IsEditing())
	assert.Equal(t, "typing", doc.Edit().Value)
	assert.Equal(t, "", doc.Sheet().Raw[0][1])
	assert.Equal(t, int64(0), o.Status().Revision)

	doc.CancelEdit()
	require.NoError(t, o.Tick(h.ctx))
	assert.Equal(t, "three", doc.Sheet().Raw[0][1])
	assert.Equal(t, int64(3), o.Status().Revision)
}

func TestLockExclusivity(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")
	chB := h.store.Channel()
	defer chB.Close()

	cfgA := h.config(nil)
	cfgA.Sessions = h.store.Sessions("alice")
	cfgA.Holder = "alice"
	a, docA := h.open(cfgA)
	assert.False(t, a.Status().ReadOnly)

	cfgB := h.config(nil)
	cfgB.Sessions = h.store.Sessions("bob")
	cfgB.Holder = "bob"
	cfgB.Live = chB
	b, docB := h.open(cfgB)

	status := b.Status()
	assert.True(t, status.ReadOnly)
	assert.Equal(t, "alice", status.LockHolder)
	assert.ErrorIs(t, docB.SetCell(0, 0, "bob was here"), grid.ErrReadOnly)
	assert.ErrorIs(t, docB.Paste(grid.CellAddr{}, "x"), grid.ErrReadOnly)
	require.NoError(t, b.Flush(h.ctx))

	snap, rev := h.stored()
	assert.Equal(t, int64(1), rev)
	assert.Equal(t, "seed", snap.Raw[0][0])

	// read-only sessions still display remote updates
	require.NoError(t, docA.SetCell(0, 0, "alice"))
	require.NoError(t, a.Flush(h.ctx))
	deliver(h.ctx, chB, b)
	assert.Equal(t, "alice", docB.Sheet().Raw[0][0])
	assert.Equal(t, "alice", b.Status().LockHolder)

	require.NoError(t, a.Close(h.ctx))
	assert.Empty(t, h.store.Locks(docID))
}

func TestSaveRejectedByForeignLock(t *testing.T) {
	h := newHarness(t)
	o, doc := h.open(h.config(nil))

	_, err := h.store.Acquire(h.ctx, docID, "mallory")
	require.NoError(t, err)

	require.NoError(t, doc.SetCell(0, 0, "x"))
	err = o.Flush(h.ctx)
	assert.ErrorIs(t, err, collab.ErrDocumentLocked)

	status := o.Status()
	assert.Equal(t, collab.ErrorLocked, status.ErrorKind)
	assert.True(t, status.ReadOnly)
	assert.Equal(t, "mallory", status.LockHolder)
	assert.True(t, doc.ReadOnly())
}

func TestHeartbeatKeepsAndLosesSession(t *testing.T) {
	h := newHarness(t)
	reg := prometheus.NewRegistry()
	cfg := h.config(nil)
	cfg.Sessions = h.store.Sessions("alice")
	cfg.Metrics = collab.NewMetrics(reg)
	o, doc := h.open(cfg)

	for i := 0; i < 4; i++ {
		h.clock.Advance(30 * time.Second)
		require.NoError(t, o.Tick(h.ctx))
	}
	require.Len(t, h.store.Locks(docID), 1)
	assert.False(t, o.Status().ReadOnly)

	// a stalled client misses its heartbeats and the lease expires
	h.clock.Advance(2 * time.Minute)
	require.NoError(t, o.Tick(h.ctx))

	status := o.Status()
	assert.True(t, status.ReadOnly)
	assert.Equal(t, collab.StateError, status.State)
	assert.Equal(t, collab.ErrorLocked, status.ErrorKind)
	assert.ErrorIs(t, status.Err, collab.ErrLockLost)
	assert.NotEmpty(t, status.Notice)
	assert.ErrorIs(t, doc.SetCell(0, 0, "x"), grid.ErrReadOnly)
	assert.Equal(t, 1.0, counterValue(t, reg, "gridsync_lock_demotions_total"))
}

func TestGenericErrorNeedsEditOrRetry(t *testing.T) {
	h := newHarness(t)
	flaky := &flakyAdapter{Adapter: h.store.Adapter(docID), failures: 1}
	o, doc := h.open(h.config(flaky))

	require.NoError(t, doc.SetCell(0, 0, "1"))
	h.clock.Advance(time.Second)
	assert.Error(t, o.Tick(h.ctx))
	status := o.Status()
	assert.Equal(t, collab.StateError, status.State)
	assert.Equal(t, collab.ErrorGeneric, status.ErrorKind)

	// no automatic retry from the error state
	h.clock.Advance(10 * time.Second)
	require.NoError(t, o.Tick(h.ctx))
	snap, _, err := h.store.Load(h.ctx, docID)
	require.NoError(t, err)
	assert.Nil(t, snap)

	require.NoError(t, o.Retry(h.ctx))
	assert.Equal(t, collab.StateSaved, o.Status().State)
	_, rev := h.stored()
	assert.Equal(t, int64(1), rev)
}

func TestDraftLifecycle(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")
	drafts := draft.NewMemoryStore()
	cfg := h.config(nil)
	cfg.Drafts = drafts
	cfg.TableKind = "invoice"
	o, doc := h.open(cfg)

	require.NoError(t, doc.SetCell(1, 0, "unsaved"))
	h.clock.Advance(200 * time.Millisecond)
	require.NoError(t, o.Tick(h.ctx))
	rec, err := drafts.Load(h.ctx, draft.Key(docID, "invoice"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.BaseRevision)
	assert.Equal(t, "unsaved", rec.Snapshot.Raw[1][0])

	// a successful save makes the draft redundant
	h.clock.Advance(time.Second)
	require.NoError(t, o.Tick(h.ctx))
	assert.Equal(t, 0, drafts.Len())
}

func TestDraftRestoredOnOpen(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")
	drafts := draft.NewMemoryStore()

	local := grid.NewSheet(2, 2)
	local.Raw[0][0] = "draft"
	require.NoError(t, drafts.Save(h.ctx, draft.Key(docID, ""), draft.Record{Snapshot: local.Snapshot(), BaseRevision: 1}))

	cfg := h.config(nil)
	cfg.Drafts = drafts
	o, doc := h.open(cfg)
	assert.Equal(t, "draft", doc.Sheet().Raw[0][0])
	assert.Equal(t, collab.StateDirty, o.Status().State)

	h.clock.Advance(time.Second)
	require.NoError(t, o.Tick(h.ctx))
	snap, rev := h.stored()
	assert.Equal(t, int64(2), rev)
	assert.Equal(t, "draft", snap.Raw[0][0])
	assert.Equal(t, 0, drafts.Len())
}

func TestStaleDraftDiscardedOnOpen(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")
	drafts := draft.NewMemoryStore()
	local := grid.NewSheet(2, 2)
	local.Raw[0][0] = "old draft"
	require.NoError(t, drafts.Save(h.ctx, draft.Key(docID, ""), draft.Record{Snapshot: local.Snapshot(), BaseRevision: 0}))

	cfg := h.config(nil)
	cfg.Drafts = drafts
	o, doc := h.open(cfg)
	assert.Equal(t, "seed", doc.Sheet().Raw[0][0])
	assert.Equal(t, collab.StateClean, o.Status().State)
	assert.Equal(t, 0, drafts.Len())
}

func TestServerUndoRedo(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")
	o, doc := h.open(h.config(nil))

	require.NoError(t, doc.SetCell(0, 0, "one"))
	require.NoError(t, o.Flush(h.ctx))
	// the second edit is still unsent when undo is requested
	require.NoError(t, doc.SetCell(0, 0, "two"))

	require.NoError(t, o.RequestUndo(h.ctx))
	assert.Equal(t, "one", doc.Sheet().Raw[0][0])
	assert.Equal(t, int64(4), o.Status().Revision)

	require.NoError(t, o.RequestRedo(h.ctx))
	assert.Equal(t, "two", doc.Sheet().Raw[0][0])

	require.NoError(t, o.RequestUndo(h.ctx))
	require.NoError(t, o.RequestUndo(h.ctx))
	assert.Equal(t, "seed", doc.Sheet().Raw[0][0])

	err := o.RequestUndo(h.ctx)
	assert.ErrorIs(t, err, collab.ErrNoHistory)
	assert.Equal(t, "nothing to undo", o.Status().Notice)
	assert.Equal(t, "seed", doc.Sheet().Raw[0][0])
}

func TestLocalUndoWithoutServerHistory(t *testing.T) {
	h := newHarness(t)
	o, doc := h.open(h.config(plainAdapter{h.store.Adapter(docID)}))

	require.NoError(t, doc.SetCell(0, 0, "x"))
	require.NoError(t, o.RequestUndo(h.ctx))
	assert.Equal(t, "", doc.Sheet().Raw[0][0])
	require.NoError(t, o.RequestRedo(h.ctx))
	assert.Equal(t, "x", doc.Sheet().Raw[0][0])
	assert.ErrorIs(t, o.RequestRedo(h.ctx), grid.ErrNothingToRedo)
}

func TestCloseFlushesAndReleases(t *testing.T) {
	h := newHarness(t)
	ch := h.store.Channel()
	defer ch.Close()
	cfg := h.config(nil)
	cfg.Sessions = h.store.Sessions("alice")
	cfg.Live = ch
	o, doc := h.open(cfg)

	require.NoError(t, doc.SetCell(0, 0, "last words"))
	require.NoError(t, o.Close(h.ctx))

	snap, _ := h.stored()
	assert.Equal(t, "last words", snap.Raw[0][0])
	assert.Empty(t, h.store.Locks(docID))

	// a closed orchestrator ignores further edits
	require.NoError(t, doc.SetCell(0, 0, "after close"))
	require.NoError(t, o.Close(h.ctx))
}

func TestRunDrivesTicksAndEvents(t *testing.T) {
	h := newHarness(t)
	h.seed("seed")
	ch := h.store.Channel()
	defer ch.Close()
	cfg := h.config(nil)
	cfg.Live = ch
	cfg.TickInterval = 5 * time.Millisecond
	o, doc := h.open(cfg)

	ctx, cancel := context.WithCancel(h.ctx)
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	other := grid.NewSheet(2, 2)
	other.Raw[1][1] = "pushed"
	_, err := h.store.Save(h.ctx, docID, "", other.Snapshot(), 1)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return doc.Sheet().Raw[1][1] == "pushed"
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		total := 0.0
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}
