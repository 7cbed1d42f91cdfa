package model

import (
	"fmt"
	"time"
)

// Status is a task's lifecycle state (spec.md §3).
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
	StatusTombstone  Status = "tombstone"
)

// ValidStatuses lists every recognized task status.
func ValidStatuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusBlocked, StatusReview, StatusDeferred, StatusClosed, StatusTombstone}
}

func (s Status) valid() bool {
	for _, v := range ValidStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether a status counts as "completed" for blocking
// purposes (spec.md §4.4: closed, completed, tombstone). This system has
// no separate "completed" status distinct from "closed"; closed and
// tombstone are the two terminal statuses.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusTombstone
}

// ActiveForReady reports whether a status is eligible for the ready() query
// (spec.md §4.7: open or in_progress).
func (s Status) ActiveForReady() bool {
	return s == StatusOpen || s == StatusInProgress
}

// AutoTransitionEligible reports whether the blocked cache is allowed to
// drive this status into "blocked" automatically (spec.md §4.4: not
// already blocked, closed, tombstone, or deferred).
func (s Status) AutoTransitionEligible() bool {
	switch s {
	case StatusBlocked, StatusClosed, StatusTombstone, StatusDeferred:
		return false
	default:
		return true
	}
}

// Priority is ordered inversely to urgency: 1 is the most urgent.
// spec.md §9 asks for a named ordering function rather than scattered
// min/max inversions; Priority.MoreUrgent and MostUrgent below are that
// function.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
	PriorityTrivial  Priority = 5
)

// DefaultPriority is used when a task omits priority (spec.md §3).
const DefaultPriority = PriorityMedium

func (p Priority) valid() bool {
	return p >= PriorityCritical && p <= PriorityTrivial
}

// MoreUrgent reports whether p is strictly more urgent than other (lower
// numeric value).
func (p Priority) MoreUrgent(other Priority) bool {
	return p < other
}

// MostUrgent returns whichever of a, b is more urgent (ties favor a).
func MostUrgent(a, b Priority) Priority {
	if b.MoreUrgent(a) {
		return b
	}
	return a
}

// Complexity estimates effort: 1 trivial .. 5 very_complex.
type Complexity int

const (
	ComplexityTrivial      Complexity = 1
	ComplexitySimple       Complexity = 2
	ComplexityMedium       Complexity = 3
	ComplexityComplex      Complexity = 4
	ComplexityVeryComplex  Complexity = 5
)

func (c Complexity) valid() bool {
	return c >= ComplexityTrivial && c <= ComplexityVeryComplex
}

// TaskType distinguishes work item shapes.
type TaskType string

const (
	TaskTypeTask  TaskType = "task"
	TaskTypeBug   TaskType = "bug"
	TaskTypeStory TaskType = "story"
	TaskTypeEpic  TaskType = "epic"
)

func (t TaskType) valid() bool {
	switch t {
	case TaskTypeTask, TaskTypeBug, TaskTypeStory, TaskTypeEpic:
		return true
	default:
		return false
	}
}

// Task is the Element payload for taskType=task elements (spec.md §3).
type Task struct {
	Title              string
	Status             Status
	Priority           Priority
	Complexity         Complexity
	TaskType           TaskType
	Assignee           *string
	AcceptanceCriteria string
	ClosedAt           *time.Time

	// CloseReason is supplemental scaffolding (SPEC_FULL.md "Supplemented
	// features"): recorded on closure so a future gate type could read it.
	// No invariant in spec.md §8 depends on it.
	CloseReason string
}

func (t *Task) ElementType() ElementType { return ElementTask }
func (t *Task) Immutable() bool          { return false }

func (t *Task) Validate() error {
	if len(t.Title) < minTaskTitleLen || len(t.Title) > maxTaskTitleLen {
		return fieldErr("title", fmt.Sprintf("title must be between %d and %d characters", minTaskTitleLen, maxTaskTitleLen))
	}
	if !t.Status.valid() {
		return fieldErr("status", fmt.Sprintf("invalid status %q", t.Status))
	}
	if !t.Priority.valid() {
		return fieldErr("priority", fmt.Sprintf("priority must be between %d and %d", PriorityCritical, PriorityTrivial))
	}
	if t.Complexity != 0 && !t.Complexity.valid() {
		return fieldErr("complexity", fmt.Sprintf("complexity must be between %d and %d", ComplexityTrivial, ComplexityVeryComplex))
	}
	if !t.TaskType.valid() {
		return fieldErr("taskType", fmt.Sprintf("invalid task type %q", t.TaskType))
	}
	if t.Status.Terminal() && t.ClosedAt == nil {
		return fieldErr("closedAt", "closed tasks must have a closedAt timestamp")
	}
	if !t.Status.Terminal() && t.ClosedAt != nil {
		return fieldErr("closedAt", "non-closed tasks cannot have a closedAt timestamp")
	}
	return nil
}
