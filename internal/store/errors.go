package store

import "errors"

// Sentinel errors for storage-layer conditions, mirrored from the teacher's
// sqlite/errors.go ErrNotFound / ErrConflict / ErrCycle set. Backends wrap
// these with operation context; higher layers (registry, graph, gate, the
// root engine) add further context and return them wrapped, without mapping
// them onto the top-level stoneforge.Err* values.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrCycle    = errors.New("dependency cycle detected")
)
