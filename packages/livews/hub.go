package livews

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vogtb/gridsync/packages/collab"
	"github.com/vogtb/gridsync/packages/docstore"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// Hub serves live connections against a store and fans store events out
// to every connection joined to the document.
type Hub struct {
	store  *docstore.Store
	logger *slog.Logger

	mu     sync.Mutex
	conns  map[*conn]struct{}
	cancel func()
}

type conn struct {
	ws    *websocket.Conn
	scope string
	send  chan Envelope

	mu     sync.Mutex
	joined map[string]bool
	closed bool
}

// NewHub subscribes to store events. Close the hub to unsubscribe.
func NewHub(store *docstore.Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		store:  store,
		logger: logger,
		conns:  make(map[*conn]struct{}),
	}
	h.cancel = store.Subscribe(h.broadcast)
	return h
}

// Close unsubscribes from the store and drops every connection
func (h *Hub) Close() {
	h.cancel()
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		c.ws.Close()
	}
}

// Connections reports how many clients are connected
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) broadcast(ev collab.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if c.isJoined(ev.DocumentID) {
			c.enqueue(h.logger, Envelope{Type: TypeEvent, Event: &ev})
		}
	}
}

// ServeHTTP upgrades the request and serves the connection until it
// closes. every document may be joined.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Serve(w, r, "")
}

// Serve upgrades the request. a non-empty scope restricts the connection
// to that document.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, scope string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	c := &conn{
		ws:     ws,
		scope:  scope,
		send:   make(chan Envelope, sendBuffer),
		joined: make(map[string]bool),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("live client connected", "scope", scope)

	done := make(chan struct{})
	go c.writeLoop(h.logger, done)
	h.readLoop(r.Context(), c)

	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	c.close()
	<-done
	ws.Close()
	h.logger.Debug("live client disconnected", "scope", scope)
}

func (h *Hub) readLoop(ctx context.Context, c *conn) {
	for {
		var req Envelope
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Info("live client dropped", "error", err)
			}
			return
		}
		reply := h.handle(ctx, c, req)
		c.enqueue(h.logger, reply)
	}
}

func (h *Hub) handle(ctx context.Context, c *conn, req Envelope) Envelope {
	reply := Envelope{Type: TypeReply, RequestID: req.RequestID, DocumentID: req.DocumentID}
	if req.DocumentID == "" || (c.scope != "" && req.DocumentID != c.scope) {
		reply.Error = &ErrorBody{Reason: collab.ReasonInvalid, Details: "document not available on this connection"}
		return reply
	}

	switch req.Type {
	case TypeJoin:
		c.setJoined(req.DocumentID, true)
		state := h.store.State(req.DocumentID)
		c.enqueue(h.logger, Envelope{Type: TypeEvent, Event: &state})
		reply.Revision = state.Revision
	case TypeLeave:
		c.setJoined(req.DocumentID, false)
	case TypeApply:
		if req.Operation == nil {
			reply.Error = &ErrorBody{Reason: collab.ReasonInvalid, Details: "operation is required"}
			return reply
		}
		rev, err := h.store.Apply(ctx, req.DocumentID, req.Token, req.BaseRevision, req.OperationID, *req.Operation)
		if err != nil {
			reply.Error = errorBody(err)
			rejected := collab.Event{
				Kind:        collab.EventOperationRejected,
				DocumentID:  req.DocumentID,
				OperationID: req.OperationID,
				Reason:      reply.Error.Reason,
				Details:     reply.Error.Details,
			}
			c.enqueue(h.logger, Envelope{Type: TypeEvent, Event: &rejected})
			return reply
		}
		reply.Revision = rev
		reply.OperationID = req.OperationID
	default:
		reply.Error = &ErrorBody{Reason: collab.ReasonInvalid, Details: "unknown message type " + req.Type}
	}
	return reply
}

func (c *conn) isJoined(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined[id]
}

func (c *conn) setJoined(id string, joined bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if joined {
		c.joined[id] = true
	} else {
		delete(c.joined, id)
	}
}

// enqueue never blocks. a client that cannot keep up is disconnected.
func (c *conn) enqueue(logger *slog.Logger, env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- env:
	default:
		logger.Warn("live client too slow, disconnecting")
		c.closed = true
		close(c.send)
	}
}

func (c *conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *conn) writeLoop(logger *slog.Logger, done chan<- struct{}) {
	defer close(done)
	for env := range c.send {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(env); err != nil {
			logger.Warn("failed to write websocket json", "error", err)
			c.ws.Close()
			for range c.send {
			}
			return
		}
	}
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.ws.Close()
}
