package docstore

import (
	"context"
	"sync"

	"github.com/vogtb/gridsync/packages/collab"
	"github.com/vogtb/gridsync/packages/grid"
)

// Adapter binds the store to one document. the edit-session token is read
// from the context.
type Adapter struct {
	store *Store
	id    string
}

var (
	_ collab.Adapter        = (*Adapter)(nil)
	_ collab.HistoryAdapter = (*Adapter)(nil)
	_ collab.SessionAPI     = (*Sessions)(nil)
	_ collab.LiveChannel    = (*Channel)(nil)
)

// Adapter returns a collab.Adapter for document id
func (s *Store) Adapter(id string) *Adapter {
	return &Adapter{store: s, id: id}
}

func (a *Adapter) LoadSnapshot(ctx context.Context) (*grid.Snapshot, int64, error) {
	return a.store.Load(ctx, a.id)
}

func (a *Adapter) SaveSnapshot(ctx context.Context, snap grid.Snapshot, expected int64) (int64, error) {
	token, _ := collab.SessionToken(ctx)
	return a.store.Save(ctx, a.id, token, snap, expected)
}

func (a *Adapter) RequestUndo(ctx context.Context, expected int64) (grid.Snapshot, int64, error) {
	token, _ := collab.SessionToken(ctx)
	return a.store.Undo(ctx, a.id, token, expected)
}

func (a *Adapter) RequestRedo(ctx context.Context, expected int64) (grid.Snapshot, int64, error) {
	token, _ := collab.SessionToken(ctx)
	return a.store.Redo(ctx, a.id, token, expected)
}

// Sessions issues edit sessions in the name of one holder
type Sessions struct {
	store  *Store
	holder string
}

// Sessions returns a collab.SessionAPI acting as holder
func (s *Store) Sessions(holder string) *Sessions {
	return &Sessions{store: s, holder: holder}
}

func (x *Sessions) Acquire(ctx context.Context, id string) (string, error) {
	return x.store.Acquire(ctx, id, x.holder)
}

func (x *Sessions) Heartbeat(ctx context.Context, id, token string) error {
	return x.store.Heartbeat(ctx, id, token)
}

func (x *Sessions) Release(ctx context.Context, id, token string) error {
	return x.store.Release(ctx, id, token)
}

// Channel is an in-process live channel. events for joined documents are
// queued without bound so the store never blocks on a slow reader.
type Channel struct {
	store  *Store
	events chan collab.Event

	mu      sync.Mutex
	joined  map[string]bool
	queue   []collab.Event
	signal  chan struct{}
	cancel  func()
	closed  bool
	stopped chan struct{}
}

// Channel opens an in-process live channel on the store. Close it when done.
func (s *Store) Channel() *Channel {
	c := &Channel{
		store:   s,
		events:  make(chan collab.Event),
		joined:  make(map[string]bool),
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	c.cancel = s.Subscribe(c.enqueue)
	go c.pump()
	return c
}

func (c *Channel) enqueue(ev collab.Event) {
	c.mu.Lock()
	if c.closed || !c.joined[ev.DocumentID] {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Channel) pump() {
	defer close(c.events)
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-c.signal:
			case <-c.stopped:
			}
			continue
		}
		ev := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		select {
		case c.events <- ev:
		case <-c.stopped:
			return
		}
	}
}

// Join starts delivery for id and queues its current state
func (c *Channel) Join(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.joined[id] = true
	c.mu.Unlock()
	c.enqueue(c.store.State(id))
	return nil
}

func (c *Channel) Leave(ctx context.Context, id string) error {
	c.mu.Lock()
	delete(c.joined, id)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *Channel) ApplyOperation(ctx context.Context, id string, base int64, opID string, op collab.Operation) (int64, error) {
	token, _ := collab.SessionToken(ctx)
	return c.store.Apply(ctx, id, token, base, opID, op)
}

func (c *Channel) Events() <-chan collab.Event {
	return c.events
}

// Close stops delivery and closes the events channel
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	close(c.stopped)
}
