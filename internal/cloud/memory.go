package cloud

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Upsert records one MergeUpsert call as received.
type Upsert struct {
	Collection string
	DocID      string
	Fields     map[string]any
}

// Memory is an in-process remote store. MergeUpsert merges top-level fields
// and resolves ServerTimestamp with Now. Set FailList / FailUpsert to inject
// errors.
type Memory struct {
	mu      sync.Mutex
	colls   map[string]map[string]map[string]any
	upserts []Upsert

	Now        func() time.Time
	FailList   error
	FailUpsert error
}

func NewMemory() *Memory {
	return &Memory{
		colls: make(map[string]map[string]map[string]any),
		Now:   time.Now,
	}
}

// Put stores a whole document, replacing any existing one.
func (m *Memory) Put(collection, docID string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coll(collection)[docID] = maps.Clone(fields)
}

func (m *Memory) ListAll(_ context.Context, collection string) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailList != nil {
		return nil, m.FailList
	}
	var out []Document
	for id, f := range m.colls[collection] {
		out = append(out, Document{ID: id, Fields: maps.Clone(f)})
	}
	return out, nil
}

func (m *Memory) MergeUpsert(_ context.Context, collection, docID string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpsert != nil {
		return m.FailUpsert
	}

	m.upserts = append(m.upserts, Upsert{Collection: collection, DocID: docID, Fields: maps.Clone(fields)})

	doc, ok := m.coll(collection)[docID]
	if !ok {
		doc = make(map[string]any, len(fields))
		m.coll(collection)[docID] = doc
	}
	for k, v := range fields {
		if isServerTimestamp(v) {
			v = m.Now()
		}
		doc[k] = v
	}
	return nil
}

// Get returns a copy of a stored document.
func (m *Memory) Get(collection, docID string) (map[string]any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.colls[collection][docID]
	return maps.Clone(doc), ok
}

// Upserts returns every MergeUpsert call in arrival order.
func (m *Memory) Upserts() []Upsert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Upsert, len(m.upserts))
	copy(out, m.upserts)
	return out
}

func (m *Memory) coll(name string) map[string]map[string]any {
	c, ok := m.colls[name]
	if !ok {
		c = make(map[string]map[string]any)
		m.colls[name] = c
	}
	return c
}
