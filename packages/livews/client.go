package livews

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vogtb/gridsync/packages/collab"
)

// ErrClosed is returned for requests on a closed client
var ErrClosed = errors.New("live channel closed")

// Client is a collab.LiveChannel over one WebSocket connection. inbound
// events are queued without bound so a reply is never stuck behind an
// event nobody is reading yet.
type Client struct {
	ws     *websocket.Conn
	logger *slog.Logger
	events chan collab.Event

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan Envelope
	queue   []collab.Event
	signal  chan struct{}
	closed  bool
	done    chan struct{}
	err     error
}

var _ collab.LiveChannel = (*Client)(nil)

// Dial connects to a hub endpoint such as ws://host/v1/documents/42/live
func Dial(ctx context.Context, url string, header http.Header, logger *slog.Logger) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		ws:      ws,
		logger:  logger,
		events:  make(chan collab.Event),
		pending: make(map[string]chan Envelope),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.pump()
	return c, nil
}

func (c *Client) readLoop() {
	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			c.shutdown(err)
			return
		}
		switch env.Type {
		case TypeReply:
			c.mu.Lock()
			ch, ok := c.pending[env.RequestID]
			delete(c.pending, env.RequestID)
			c.mu.Unlock()
			if ok {
				ch <- env
			}
		case TypeEvent:
			if env.Event == nil {
				continue
			}
			c.mu.Lock()
			c.queue = append(c.queue, *env.Event)
			c.mu.Unlock()
			select {
			case c.signal <- struct{}{}:
			default:
			}
		default:
			c.logger.Debug("unexpected live message", "type", env.Type)
		}
	}
}

func (c *Client) pump() {
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
			case <-c.done:
			}
			continue
		}
		ev := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	pending := c.pending
	c.pending = make(map[string]chan Envelope)
	c.mu.Unlock()

	close(c.done)
	for _, ch := range pending {
		close(ch)
	}
}

// request sends env and waits for the reply with the same request id
func (c *Client) request(ctx context.Context, env Envelope) (Envelope, error) {
	env.RequestID = uuid.NewString()
	ch := make(chan Envelope, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Envelope{}, ErrClosed
	}
	c.pending[env.RequestID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(env.RequestID)
		return Envelope{}, fmt.Errorf("send %s: %w", env.Type, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return Envelope{}, ErrClosed
		}
		if reply.Error != nil {
			return reply, reply.Error.err()
		}
		return reply, nil
	case <-ctx.Done():
		c.forget(env.RequestID)
		return Envelope{}, ctx.Err()
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) Join(ctx context.Context, documentID string) error {
	_, err := c.request(ctx, Envelope{Type: TypeJoin, DocumentID: documentID})
	return err
}

func (c *Client) Leave(ctx context.Context, documentID string) error {
	_, err := c.request(ctx, Envelope{Type: TypeLeave, DocumentID: documentID})
	return err
}

func (c *Client) ApplyOperation(ctx context.Context, documentID string, base int64, operationID string, op collab.Operation) (int64, error) {
	token, _ := collab.SessionToken(ctx)
	reply, err := c.request(ctx, Envelope{
		Type:         TypeApply,
		DocumentID:   documentID,
		Token:        token,
		BaseRevision: base,
		OperationID:  operationID,
		Operation:    &op,
	})
	if err != nil {
		return 0, err
	}
	return reply.Revision, nil
}

// Events is closed once the connection ends
func (c *Client) Events() <-chan collab.Event {
	return c.events
}

// Err returns the error that ended the connection, if any
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close frame and tears the connection down
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	if cerr := c.ws.Close(); err == nil {
		err = cerr
	}
	return err
}
