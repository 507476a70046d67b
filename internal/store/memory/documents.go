// Package memory provides process-local implementations of the store
// contracts. It backs the "memory" configuration and the unit tests.
package memory

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/gosuda/dossier/internal/domain"
)

type subscription struct {
	id         int
	query      domain.Query
	onSnapshot func([]domain.Document)
}

// DocumentStore is an in-memory domain.DocumentStore with live queries.
type DocumentStore struct {
	maxBytes int

	// deliverMu is held from building a snapshot until it is delivered, so
	// subscribers see snapshots in write order. Snapshot callbacks must not
	// write to the store.
	deliverMu sync.Mutex

	mu     sync.Mutex
	colls  map[string]map[string][]byte
	subs   map[int]*subscription
	nextID int
}

// NewDocumentStore creates a store that rejects bodies over maxBytes
// (0 disables the ceiling).
func NewDocumentStore(maxBytes int) *DocumentStore {
	return &DocumentStore{
		maxBytes: maxBytes,
		colls:    make(map[string]map[string][]byte),
		subs:     make(map[int]*subscription),
	}
}

func (s *DocumentStore) Get(_ context.Context, collection, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, ok := s.colls[collection][id]
	if !ok {
		return nil, fmt.Errorf("memory.DocumentStore.Get: %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	return slices.Clone(body), nil
}

func (s *DocumentStore) Set(ctx context.Context, collection, id string, body []byte) error {
	return s.SetAll(ctx, collection, []domain.Document{{ID: id, Body: body}})
}

// SetAll validates every body before writing any of them.
func (s *DocumentStore) SetAll(_ context.Context, collection string, docs []domain.Document) error {
	for _, d := range docs {
		if s.maxBytes > 0 && len(d.Body) > s.maxBytes {
			return fmt.Errorf("memory.DocumentStore.Set: %s/%s is %d bytes: %w", collection, d.ID, len(d.Body), domain.ErrDocumentTooLarge)
		}
		if !json.Valid(d.Body) {
			return fmt.Errorf("memory.DocumentStore.Set: %s/%s: invalid JSON body", collection, d.ID)
		}
	}

	s.mu.Lock()
	coll, ok := s.colls[collection]
	if !ok {
		coll = make(map[string][]byte)
		s.colls[collection] = coll
	}
	for _, d := range docs {
		coll[d.ID] = slices.Clone(d.Body)
	}
	s.mu.Unlock()

	s.notify(collection)
	return nil
}

func (s *DocumentStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	_, ok := s.colls[collection][id]
	delete(s.colls[collection], id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("memory.DocumentStore.Delete: %s/%s: %w", collection, id, domain.ErrNotFound)
	}
	s.notify(collection)
	return nil
}

func (s *DocumentStore) Query(_ context.Context, q domain.Query) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(q)
}

// Subscribe delivers the current result set immediately and again after
// every write to the queried collection.
func (s *DocumentStore) Subscribe(ctx context.Context, q domain.Query, onSnapshot func([]domain.Document), _ func(error)) (domain.Unsubscribe, error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.nextID++
	sub := &subscription{id: s.nextID, query: q, onSnapshot: onSnapshot}
	s.subs[sub.id] = sub
	initial, err := s.queryLocked(q)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, sub.id)
			s.mu.Unlock()
		})
	}
	context.AfterFunc(ctx, unsubscribe)

	onSnapshot(initial)
	return unsubscribe, nil
}

// Subscribers returns the number of live subscriptions.
func (s *DocumentStore) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *DocumentStore) notify(collection string) {
	type delivery struct {
		fn   func([]domain.Document)
		docs []domain.Document
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	var out []delivery
	for _, sub := range s.subs {
		if sub.query.Collection != collection {
			continue
		}
		docs, err := s.queryLocked(sub.query)
		if err != nil {
			continue
		}
		out = append(out, delivery{fn: sub.onSnapshot, docs: docs})
	}
	s.mu.Unlock()

	for _, d := range out {
		d.fn(d.docs)
	}
}

func (s *DocumentStore) queryLocked(q domain.Query) ([]domain.Document, error) {
	type row struct {
		doc    domain.Document
		fields map[string]any
	}

	var rows []row
	for id, body := range s.colls[q.Collection] {
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("memory.DocumentStore.Query: %s/%s: %w", q.Collection, id, err)
		}
		if !matches(fields, q.Filters) {
			continue
		}
		rows = append(rows, row{doc: domain.Document{ID: id, Body: slices.Clone(body)}, fields: fields})
	}

	slices.SortFunc(rows, func(a, b row) int {
		c := 0
		if q.OrderBy != "" {
			c = compareField(a.fields[q.OrderBy], b.fields[q.OrderBy])
		}
		if c == 0 {
			c = cmp.Compare(a.doc.ID, b.doc.ID)
		}
		if q.Descending {
			return -c
		}
		return c
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	docs := make([]domain.Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	return docs, nil
}

func matches(fields map[string]any, filters []domain.Filter) bool {
	for _, f := range filters {
		v, ok := fields[f.Field]
		if !ok || fmt.Sprint(v) != f.Value {
			return false
		}
	}
	return true
}

func compareField(a, b any) int {
	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp.Compare(av, bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
