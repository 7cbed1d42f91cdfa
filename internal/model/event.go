package model

import "time"

// EventType enumerates the append-only event log's entry kinds
// (spec.md §4.2's event log design note).
type EventType string

const (
	EventCreated            EventType = "created"
	EventUpdated            EventType = "updated"
	EventDeleted            EventType = "deleted"
	EventStatusChanged      EventType = "status_changed"
	EventDependencyAdded    EventType = "dependency_added"
	EventDependencyRemoved  EventType = "dependency_removed"
	EventGateSatisfied      EventType = "gate_satisfied"
	EventApprovalAdded      EventType = "approval_added"
	EventApprovalRemoved    EventType = "approval_removed"
)

// Event is a single immutable audit record. OldValue and NewValue hold the
// raw text of the changed value where one is recorded: the old and new
// status names for status_changed, the approver ID for approval_added
// (NewValue) and approval_removed (OldValue), and "false"/"true" for
// gate_satisfied. Both are nil for created, updated, deleted and the
// dependency events.
type Event struct {
	ID        int64
	ElementID string
	EventType EventType
	Actor     string
	Timestamp time.Time
	OldValue  *string
	NewValue  *string
}
