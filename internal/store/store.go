// Package store defines the persistence interface for Stoneforge's element,
// dependency, event, and blocked-cache records, and the two backends that
// satisfy it: a Dolt/MySQL-compatible SQL backend (package sqlstore) and an
// in-memory backend (package memstore) used for tests and short-lived
// embeddings.
//
// The interface mirrors the teacher's storage.Storage shape: a handful of
// CRUD methods plus RunInTransaction for multi-step mutations that must be
// atomic (adding a dependency and invalidating the blocked cache, for
// instance).
package store

import (
	"context"
	"time"

	"github.com/stoneforge-ai/stoneforge/internal/model"
)

// ElementFilter narrows List/Search results (spec.md §4.7).
type ElementFilter struct {
	Type      *model.ElementType
	Status    *model.Status
	Assignee  *string
	Tags      []string
	CreatedBy *string
	Limit     int
	Offset    int
}

// DependencyCounts summarizes an element's edges for the stats/query layer
// (SPEC_FULL.md "Supplemented features").
type DependencyCounts struct {
	Blockers    int
	Blocked     int
	ParentLinks int
	ChildLinks  int
	Awaits      int
	RelatesTo   int
}

// Store is the persistence boundary the rest of Stoneforge is built
// against. Every mutating method must be safe to call inside
// RunInTransaction's callback using the Tx handed to it.
type Store interface {
	Tx

	// RunInTransaction runs fn inside a single transaction, committing on
	// nil return and rolling back otherwise. Nested calls are not
	// supported; fn receives a Tx scoped to the transaction.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources (DB handle, advisory lock).
	Close() error
}

// Tx is the set of operations available both on a Store directly and
// inside a RunInTransaction callback.
type Tx interface {
	CreateElement(ctx context.Context, e *model.Element) error
	GetElement(ctx context.Context, id string) (*model.Element, error)
	// UpdateElement loads the current element, applies mutate, and
	// persists the result. The in-memory backend holds its write lock
	// while mutate runs; the SQL backend reads the row with a plain
	// SELECT (no row lock) within whatever transaction it runs in. mutate
	// must not itself call back into the store.
	UpdateElement(ctx context.Context, id string, mutate func(e *model.Element) error) (*model.Element, error)
	DeleteElement(ctx context.Context, id string, tombstone bool, when time.Time) error
	ListElements(ctx context.Context, filter ElementFilter) ([]*model.Element, error)
	ElementExists(ctx context.Context, id string) (bool, error)

	AddDependency(ctx context.Context, dep *model.Dependency) error
	RemoveDependency(ctx context.Context, blockedID, blockerID string, depType model.DependencyType) error
	GetDependencies(ctx context.Context, elementID string) ([]*model.Dependency, error)
	GetDependents(ctx context.Context, elementID string) ([]*model.Dependency, error)
	GetAllDependencies(ctx context.Context) ([]*model.Dependency, error)
	GetDependencyCounts(ctx context.Context, elementIDs []string) (map[string]*DependencyCounts, error)
	UpdateDependencyMetadata(ctx context.Context, blockedID, blockerID string, depType model.DependencyType, metadata map[string]any) error

	AppendEvent(ctx context.Context, e *model.Event, oldValue, newValue []byte) (int64, error)
	EventsForElement(ctx context.Context, elementID string, limit int) ([]*model.Event, error)
	EventsSince(ctx context.Context, sinceID int64, limit int) ([]*model.Event, error)

	UpsertBlockedCacheRow(ctx context.Context, row *model.BlockedCacheRow) error
	DeleteBlockedCacheRow(ctx context.Context, elementID string) error
	GetBlockedCacheRow(ctx context.Context, elementID string) (*model.BlockedCacheRow, error)
	ListBlockedCacheRows(ctx context.Context) ([]*model.BlockedCacheRow, error)
	TruncateBlockedCache(ctx context.Context) error

	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, bool, error)
}
