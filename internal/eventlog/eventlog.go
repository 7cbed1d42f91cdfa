// Package eventlog appends and reads the append-only audit trail backing
// every element mutation (spec.md §4.2's event log design note).
//
// The log itself lives in the store (store.Tx's AppendEvent/EventsForElement/
// EventsSince); this package adds a thin layer above it: building an Event
// from an element ID, type and actor plus caller-supplied old/new values,
// and a dedicated helper for "status_changed" entries. It does no diffing;
// the caller decides which events to append (registry.Update appends a
// generic "updated" entry and, when a task's status changed, a
// "status_changed" entry), mirroring the teacher's events.go split between
// plain field updates and issue-status transitions.
package eventlog

import (
	"context"
	"fmt"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// Append records a single event inside tx, returning its assigned ID.
func Append(ctx context.Context, tx store.Tx, elementID string, eventType model.EventType, actor string, when func() (oldValue, newValue []byte)) (int64, error) {
	var oldValue, newValue []byte
	if when != nil {
		oldValue, newValue = when()
	}
	evt := &model.Event{
		ElementID: elementID,
		EventType: eventType,
		Actor:     actor,
	}
	id, err := tx.AppendEvent(ctx, evt, oldValue, newValue)
	if err != nil {
		return 0, fmt.Errorf("eventlog: append %s for %s: %w", eventType, elementID, err)
	}
	return id, nil
}

// AppendStatusChange records a status_changed event, carrying the old and
// new status names as its values, in addition to whatever generic update
// event the caller already appended. The blocked cache does not read this
// event; the engine notifies it through registry.Registry.OnStatusChanged.
func AppendStatusChange(ctx context.Context, tx store.Tx, elementID string, actor string, old, new model.Status) (int64, error) {
	oldVal := string(old)
	newVal := string(new)
	evt := &model.Event{
		ElementID: elementID,
		EventType: model.EventStatusChanged,
		Actor:     actor,
	}
	id, err := tx.AppendEvent(ctx, evt, []byte(oldVal), []byte(newVal))
	if err != nil {
		return 0, fmt.Errorf("eventlog: append status change for %s: %w", elementID, err)
	}
	return id, nil
}

// ForElement returns the most recent events for an element, newest first.
// limit <= 0 means unbounded.
func ForElement(ctx context.Context, tx store.Tx, elementID string, limit int) ([]*model.Event, error) {
	events, err := tx.EventsForElement(ctx, elementID, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: events for %s: %w", elementID, err)
	}
	return events, nil
}

// Since returns every event with ID greater than sinceID, oldest first —
// the feed agents poll to learn what changed while they were away.
func Since(ctx context.Context, tx store.Tx, sinceID int64, limit int) ([]*model.Event, error) {
	events, err := tx.EventsSince(ctx, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("eventlog: events since %d: %w", sinceID, err)
	}
	return events, nil
}
