// Package memstore implements store.Store in memory, guarded by a single
// sync.RWMutex the way the teacher's ephemeral store guards its SQLite
// handle. It exists purely for tests and short-lived embeddings
// (SPEC_FULL.md "Extra component: in-memory store backend") — it has no
// durability and every snapshot it returns is a deep copy so callers
// can't mutate internal state through a returned pointer.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// Store is an in-memory store.Store implementation.
type Store struct {
	mu           sync.RWMutex
	elements     map[string]*model.Element
	dependencies map[depKey]*model.Dependency
	events       []*model.Event
	nextEventID  int64
	blockedCache map[string]*model.BlockedCacheRow
	config       map[string]string
}

type depKey struct {
	blockedID, blockerID string
	depType               model.DependencyType
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		elements:     make(map[string]*model.Element),
		dependencies: make(map[depKey]*model.Dependency),
		blockedCache: make(map[string]*model.BlockedCacheRow),
		config:       make(map[string]string),
	}
}

func cloneElement(e *model.Element) *model.Element {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Tags = append([]string(nil), e.Tags...)
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.DeletedAt != nil {
		t := *e.DeletedAt
		cp.DeletedAt = &t
	}
	if e.Payload != nil {
		if data, err := model.EncodePayload(e.Payload); err == nil {
			if p, err := model.DecodePayload(e.Payload.ElementType(), data); err == nil {
				cp.Payload = p
			}
		}
	}
	return &cp
}

func cloneDependency(d *model.Dependency) *model.Dependency {
	if d == nil {
		return nil
	}
	cp := *d
	if d.Metadata != nil {
		cp.Metadata = make(map[string]any, len(d.Metadata))
		for k, v := range d.Metadata {
			cp.Metadata[k] = v
		}
	}
	if d.ThreadID != nil {
		t := *d.ThreadID
		cp.ThreadID = &t
	}
	return &cp
}

func (s *Store) CreateElement(ctx context.Context, e *model.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.elements[e.ID]; exists {
		return fmt.Errorf("memstore: element %s already exists: %w", e.ID, store.ErrConflict)
	}
	s.elements[e.ID] = cloneElement(e)
	return nil
}

func (s *Store) GetElement(ctx context.Context, id string) (*model.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.elements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneElement(e), nil
}

func (s *Store) UpdateElement(ctx context.Context, id string, mutate func(e *model.Element) error) (*model.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if e.Payload != nil && e.Payload.Immutable() {
		return nil, fmt.Errorf("memstore: element %s is immutable: %w", id, store.ErrConflict)
	}
	working := cloneElement(e)
	if err := mutate(working); err != nil {
		return nil, err
	}
	s.elements[id] = cloneElement(working)
	return cloneElement(working), nil
}

func (s *Store) DeleteElement(ctx context.Context, id string, tombstone bool, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elements[id]
	if !ok {
		return store.ErrNotFound
	}
	if tombstone {
		t := when
		e.DeletedAt = &t
		return nil
	}
	delete(s.elements, id)
	return nil
}

func (s *Store) ElementExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.elements[id]
	return ok, nil
}

func (s *Store) ListElements(ctx context.Context, filter store.ElementFilter) ([]*model.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Element
	for _, e := range s.elements {
		if e.DeletedAt != nil {
			continue
		}
		if filter.Type != nil && e.Type != *filter.Type {
			continue
		}
		if filter.Status != nil && model.ProjectedStatus(e.Payload) != string(*filter.Status) {
			continue
		}
		if filter.Assignee != nil && model.ProjectedAssignee(e.Payload) != *filter.Assignee {
			continue
		}
		if filter.CreatedBy != nil && e.CreatedBy != *filter.CreatedBy {
			continue
		}
		if len(filter.Tags) > 0 && !containsAll(e.Tags, filter.Tags) {
			continue
		}
		out = append(out, cloneElement(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	} else if filter.Offset >= len(out) {
		out = nil
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func containsAll(haystack, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}

func (s *Store) Close() error { return nil }

// RunInTransaction runs fn against the store directly. There is no
// rollback: each Tx method already commits its change as it runs, so a
// failure partway through fn leaves earlier calls applied. This matches
// what the in-memory backend is for — deterministic single-process
// tests — not atomicity guarantees.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Tx) error) error {
	return fn(s)
}

var _ store.Store = (*Store)(nil)
