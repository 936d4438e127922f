package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vogtb/gridsync/packages/collab"
	"github.com/vogtb/gridsync/packages/draft"
	"github.com/vogtb/gridsync/packages/grid"
)

// Client talks to the document API. it is bound to one document for the
// Adapter methods; session methods take the id explicitly.
type Client struct {
	base       *url.URL
	documentID string
	tableKind  string
	holder     string
	http       *http.Client
}

var (
	_ collab.Adapter        = (*Client)(nil)
	_ collab.HistoryAdapter = (*Client)(nil)
	_ collab.SessionAPI     = (*Client)(nil)
	_ collab.DraftKeyer     = (*Client)(nil)
)

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the default client with a 30 second timeout
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTableKind namespaces local drafts by table kind
func WithTableKind(kind string) ClientOption {
	return func(c *Client) {
		c.tableKind = kind
	}
}

// WithHolder names this client in edit-session listings
func WithHolder(holder string) ClientOption {
	return func(c *Client) {
		c.holder = holder
	}
}

// NewClient creates a client for documentID on the server at baseURL
func NewClient(baseURL, documentID string, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", base.Scheme)
	}
	if documentID == "" {
		return nil, errors.New("document id is required")
	}
	c := &Client{
		base:       base,
		documentID: documentID,
		holder:     "anonymous",
		http:       &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LiveURL is the WebSocket endpoint of the bound document
func (c *Client) LiveURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = c.documentPath(c.documentID, "live")
	return u.String()
}

// DraftKey keeps drafts of equally named documents on different servers apart
func (c *Client) DraftKey() string {
	return draft.Key(c.base.Host+"/"+c.documentID, c.tableKind)
}

func (c *Client) documentPath(id string, parts ...string) string {
	segments := append([]string{c.base.Path, "v1", "documents", id}, parts...)
	return strings.Join(segments, "/")
}

func (c *Client) LoadSnapshot(ctx context.Context) (*grid.Snapshot, int64, error) {
	var resp DocumentResponse
	if err := c.do(ctx, http.MethodGet, c.documentPath(c.documentID), nil, &resp); err != nil {
		return nil, 0, err
	}
	if len(resp.Snapshot) == 0 || string(resp.Snapshot) == "null" {
		return nil, resp.Revision, nil
	}
	snap, err := grid.DecodeSnapshot(resp.Snapshot)
	if err != nil {
		return nil, 0, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, resp.Revision, nil
}

func (c *Client) SaveSnapshot(ctx context.Context, snap grid.Snapshot, expected int64) (int64, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, err
	}
	var resp RevisionResponse
	req := SaveRequest{Snapshot: data, ExpectedRevision: expected}
	if err := c.do(ctx, http.MethodPut, c.documentPath(c.documentID), req, &resp); err != nil {
		return 0, err
	}
	return resp.Revision, nil
}

func (c *Client) RequestUndo(ctx context.Context, expected int64) (grid.Snapshot, int64, error) {
	return c.travel(ctx, "undo", expected)
}

func (c *Client) RequestRedo(ctx context.Context, expected int64) (grid.Snapshot, int64, error) {
	return c.travel(ctx, "redo", expected)
}

func (c *Client) travel(ctx context.Context, direction string, expected int64) (grid.Snapshot, int64, error) {
	var resp DocumentResponse
	if err := c.do(ctx, http.MethodPost, c.documentPath(c.documentID, direction), RevisionRequest{ExpectedRevision: expected}, &resp); err != nil {
		return grid.Snapshot{}, 0, err
	}
	snap, err := grid.DecodeSnapshot(resp.Snapshot)
	if err != nil {
		return grid.Snapshot{}, 0, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, resp.Revision, nil
}

func (c *Client) Acquire(ctx context.Context, documentID string) (string, error) {
	var resp AcquireResponse
	if err := c.do(ctx, http.MethodPost, c.documentPath(documentID, "sessions"), AcquireRequest{Holder: c.holder}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) Heartbeat(ctx context.Context, documentID, token string) error {
	return c.do(ctx, http.MethodPost, c.documentPath(documentID, "sessions", token, "heartbeat"), nil, nil)
}

func (c *Client) Release(ctx context.Context, documentID, token string) error {
	return c.do(ctx, http.MethodDelete, c.documentPath(documentID, "sessions", token), nil, nil)
}

// Locks lists the active edit sessions of a document
func (c *Client) Locks(ctx context.Context, documentID string) ([]collab.Lock, error) {
	var resp LocksResponse
	if err := c.do(ctx, http.MethodGet, c.documentPath(documentID, "sessions"), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Locks, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	u := *c.base
	u.Path = path
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := collab.SessionToken(ctx); ok {
		req.Header.Set(SessionHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return c.errorFor(resp.StatusCode, e)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorFor maps an error reply back onto the collab error taxonomy
func (c *Client) errorFor(status int, e ErrorResponse) error {
	switch e.Code {
	case CodeStaleRevision:
		return fmt.Errorf("%s: %w", e.Error, collab.ErrRevisionConflict)
	case CodeLocked:
		return &collab.LockConflictError{DocumentID: c.documentID, Holder: e.Holder}
	case CodeSessionLost:
		return collab.ErrLockLost
	case CodeNoHistory:
		return collab.ErrNoHistory
	}
	if e.Error == "" {
		e.Error = http.StatusText(status)
	}
	return fmt.Errorf("server returned %d: %s", status, e.Error)
}
