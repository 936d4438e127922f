// Package draft keeps client-local copies of unsaved document state so a
// reload can recover edits the server has not acknowledged yet.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vogtb/gridsync/packages/grid"
)

// ErrNotFound is returned by Load when no draft exists for a key
var ErrNotFound = errors.New("draft not found")

// Record is one stored draft. BaseRevision is the server revision the
// draft's edits were made on top of.
type Record struct {
	Snapshot     grid.Snapshot `json:"snapshot"`
	BaseRevision int64         `json:"baseRevision"`
	SavedAt      time.Time     `json:"savedAt"`
}

// Store is a keyed draft store
type Store interface {
	Load(ctx context.Context, key string) (Record, error)
	Save(ctx context.Context, key string, rec Record) error
	Delete(ctx context.Context, key string) error
}

// Key builds the draft key of a document shown as a given table kind
// (quote, invoice, delivery act, ...).
func Key(documentID, tableKind string) string {
	if tableKind == "" {
		tableKind = "default"
	}
	return "draft/" + strings.ToLower(tableKind) + "/" + documentID
}

func encode(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode draft: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode draft: %w", err)
	}
	return rec, nil
}

// MemoryStore keeps drafts in process memory. records are stored encoded
// so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string][]byte{}}
}

func (m *MemoryStore) Load(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	data, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return decode(data)
}

func (m *MemoryStore) Save(ctx context.Context, key string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.records[key] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

// Len reports how many drafts are held
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
