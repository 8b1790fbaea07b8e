// Package memory provides an in-memory journal.Store. Records are lost when
// the process exits. A size bound evicts the oldest record first.
package memory

import (
	"container/list"
	"context"
	"sync"

	"github.com/rhuss/hive/pkg/journal"
)

// Store is an in-memory journal with optional size-bounded eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	order   *list.List // front = newest, back = oldest
	maxSize int        // 0 = unlimited
}

var _ journal.Store = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// Save stores a copy of rec.
func (s *Store) Save(_ context.Context, rec *journal.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return journal.ErrConflict
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	cp := *rec
	s.entries[rec.ID] = s.order.PushFront(&cp)
	return nil
}

// Get returns a copy of the record with the given ID.
func (s *Store) Get(_ context.Context, id string) (*journal.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elem, ok := s.entries[id]
	if !ok {
		return nil, journal.ErrNotFound
	}
	cp := *elem.Value.(*journal.Record)
	return &cp, nil
}

// List walks records newest first.
func (s *Store) List(_ context.Context, opts journal.ListOptions) ([]*journal.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.EffectiveLimit()
	out := []*journal.Record{}
	for e := s.order.Front(); e != nil && len(out) < limit; e = e.Next() {
		rec := e.Value.(*journal.Record)
		if opts.Outcome != "" && rec.Outcome != opts.Outcome {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the oldest record. Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.order.Back()
	if back == nil {
		return
	}
	s.order.Remove(back)
	delete(s.entries, back.Value.(*journal.Record).ID)
}
