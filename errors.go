package stoneforge

import "errors"

// Error taxonomy (spec.md §7). These sentinels name the engine's error
// kinds, but the errors the engine returns do not wrap them, so errors.Is
// against these values does not match. Those errors are *model.ValidationError
// values or wrap the internal sentinels: store.ErrNotFound, store.ErrConflict
// (duplicates, writes to immutable elements), store.ErrCycle and
// ids.ErrExhausted.
var (
	// ErrValidation indicates malformed input: a missing required field, a
	// string outside its length bound, or a value outside its enum.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates the target ID is absent or tombstoned.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate key: an element ID collision or
	// a dependency re-insertion.
	ErrAlreadyExists = errors.New("already exists")

	// ErrConstraintViolation indicates a domain rule was broken: a cycle, a
	// self-dependency, or a write to an immutable element or field.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrGate indicates invalid gate metadata or an unauthorized approver.
	ErrGate = errors.New("gate error")

	// ErrStorage wraps an underlying store failure.
	ErrStorage = errors.New("storage error")

	// ErrIDExhausted indicates the ID generator could not find a unique ID
	// within idGenerator.maxLen.
	ErrIDExhausted = errors.New("id exhausted")
)
