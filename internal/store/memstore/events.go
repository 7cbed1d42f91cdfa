package memstore

import (
	"context"

	"github.com/stoneforge-ai/stoneforge/internal/model"
)

func cloneEvent(e *model.Event) *model.Event {
	cp := *e
	if e.OldValue != nil {
		v := *e.OldValue
		cp.OldValue = &v
	}
	if e.NewValue != nil {
		v := *e.NewValue
		cp.NewValue = &v
	}
	return &cp
}

func (s *Store) AppendEvent(ctx context.Context, e *model.Event, oldValue, newValue []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	cp := cloneEvent(e)
	cp.ID = s.nextEventID
	if len(oldValue) > 0 {
		v := string(oldValue)
		cp.OldValue = &v
	}
	if len(newValue) > 0 {
		v := string(newValue)
		cp.NewValue = &v
	}
	s.events = append(s.events, cp)
	return cp.ID, nil
}

func (s *Store) EventsForElement(ctx context.Context, elementID string, limit int) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].ElementID == elementID {
			out = append(out, cloneEvent(s.events[i]))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) EventsSince(ctx context.Context, sinceID int64, limit int) ([]*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Event
	for _, e := range s.events {
		if e.ID > sinceID {
			out = append(out, cloneEvent(e))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
