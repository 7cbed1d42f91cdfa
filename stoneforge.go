// Package stoneforge is a dependency-and-blocking engine for coordinating
// work across many elements — tasks, plans, documents, channels,
// messages, and entities — with typed dependency edges, a materialized
// blocked-state cache, an approval/timer/webhook gate layer, and an
// effective-priority traversal. It is a library, not a service: it does
// not execute work, spawn processes, or talk to version control (spec.md
// §1 Non-goals).
//
// Engine wires the package's internal components — store, registry,
// eventlog, graph, blockedcache, gate, priority, query — the way the
// teacher's cmd/bd wires its own dolt.DoltStore plus supporting packages
// behind a single struct, except here the wiring lives in the library
// itself rather than a CLI entry point, since the CLI surface is out of
// this module's scope.
package stoneforge

import (
	"context"
	"fmt"
	"time"

	"github.com/stoneforge-ai/stoneforge/internal/blockedcache"
	"github.com/stoneforge-ai/stoneforge/internal/config"
	"github.com/stoneforge-ai/stoneforge/internal/eventlog"
	"github.com/stoneforge-ai/stoneforge/internal/gate"
	"github.com/stoneforge-ai/stoneforge/internal/graph"
	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/priority"
	"github.com/stoneforge-ai/stoneforge/internal/query"
	"github.com/stoneforge-ai/stoneforge/internal/registry"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// Re-exported model types so callers depend only on the root package for
// the common case, matching the teacher's beads.go facade (type aliases
// over its internal/types package) one level up from the CLI.
type (
	Element        = model.Element
	Payload        = model.Payload
	Task           = model.Task
	Plan           = model.Plan
	Document       = model.Document
	Channel        = model.Channel
	Message        = model.Message
	Entity         = model.Entity
	Dependency     = model.Dependency
	DependencyType = model.DependencyType
	Status         = model.Status
	Priority       = model.Priority
	Complexity     = model.Complexity
	TaskType       = model.TaskType
	ElementType    = model.ElementType
	AwaitsMetadata = model.AwaitsMetadata
	GateType       = model.GateType
	Event          = model.Event
	ElementFilter  = store.ElementFilter
)

// Dependency type constants, re-exported for callers that don't want to
// import internal/model directly.
const (
	DepBlocks      = model.DepBlocks
	DepParentChild = model.DepParentChild
	DepAwaits      = model.DepAwaits
	DepRelatesTo   = model.DepRelatesTo
)

// Gate type constants (spec.md §4.5).
const (
	GateTimer    = model.GateTimer
	GateApproval = model.GateApproval
	GateExternal = model.GateExternal
	GateWebhook  = model.GateWebhook
)

// Status constants.
const (
	StatusOpen       = model.StatusOpen
	StatusInProgress = model.StatusInProgress
	StatusBlocked    = model.StatusBlocked
	StatusReview     = model.StatusReview
	StatusDeferred   = model.StatusDeferred
	StatusClosed     = model.StatusClosed
	StatusTombstone  = model.StatusTombstone
)

// Priority constants, 1 (most urgent) through 5 (least urgent).
const (
	PriorityCritical = model.PriorityCritical
	PriorityHigh     = model.PriorityHigh
	PriorityMedium   = model.PriorityMedium
	PriorityLow      = model.PriorityLow
	PriorityTrivial  = model.PriorityTrivial
)

// StatusTransitionCallback receives automatic block/unblock requests
// (spec.md §6 "Notifications"). It is the same interface blockedcache
// defines; re-exported here so callers implement it against the root
// package instead of reaching into internal/blockedcache.
type StatusTransitionCallback = blockedcache.StatusTransitionCallback

// Options is the programmatic configuration surface (spec.md §6
// "Enumerated configuration"). See package config for loading Options
// from TOML/environment instead of constructing it directly.
type Options = config.Options

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return config.Default()
}

// Engine is the top-level handle for a Stoneforge instance: one store, and
// every component layered on top of it.
type Engine struct {
	store store.Store
	opts  Options

	registry *registry.Registry
	graph    *graph.Graph
	cache    *blockedcache.Cache
	gate     *gate.Engine
	priority *priority.Engine
	query    *query.Engine

	// OnUnblocked, if set, is called after a status change or deletion
	// with the IDs that transitioned out of the blocked cache as a direct
	// result (blockedcache.Cache.OnStatusChanged's return value), so a
	// caller like a dispatch daemon can react without re-querying Blocked.
	OnUnblocked func(ctx context.Context, elementIDs []string)
}

func (e *Engine) notifyUnblocked(ctx context.Context, elementIDs []string) {
	if len(elementIDs) == 0 || e.OnUnblocked == nil {
		return
	}
	e.OnUnblocked(ctx, elementIDs)
}

// New wires an Engine against s. New does not substitute DefaultOptions for
// a zero-value Options: most fields keep their zero values (no automatic
// status transitions, no default page limit, complexity aggregation off).
// A zero Priority.MaxDepth or zero IDGenerator bounds still fall back to
// the priority and ids package defaults. Pass DefaultOptions() explicitly,
// or load one with internal/config, for the documented defaults.
func New(s store.Store, opts Options, callback StatusTransitionCallback) *Engine {
	clockSource := opts.Gate.ClockSource
	if clockSource == nil {
		clockSource = time.Now
	}

	reg := registry.New(s, registry.Clock(clockSource))
	reg.SetIDBounds(opts.IDGenerator.MinLen, opts.IDGenerator.MaxLen)

	cache := blockedcache.New(s, blockedcache.Clock(clockSource), callback, opts.Cache.AutoTransitionStatus)
	g := graph.New(s)
	gt := gate.New(s, cache, gate.Clock(clockSource))
	pr := priority.New(s, opts.Priority.MaxDepth)
	q := query.New(s, g, pr)

	e := &Engine{store: s, opts: opts, registry: reg, graph: g, cache: cache, gate: gt, priority: pr, query: q}

	reg.OnStatusChanged = func(ctx context.Context, elementID string, old, new model.Status) {
		var unblocked []string
		_ = s.RunInTransaction(ctx, func(tx store.Tx) error {
			var err error
			unblocked, err = cache.OnStatusChanged(ctx, tx, elementID, old, new)
			return err
		})
		e.notifyUnblocked(ctx, unblocked)
	}
	reg.OnElementDeleted = func(ctx context.Context, elementID string) {
		var unblocked []string
		_ = s.RunInTransaction(ctx, func(tx store.Tx) error {
			var err error
			unblocked, err = cache.OnElementDeleted(ctx, tx, elementID)
			return err
		})
		e.notifyUnblocked(ctx, unblocked)
	}

	return e
}

// Store returns the underlying store.Store, for callers that need direct
// access (migrations, backup, the regression test harness).
func (e *Engine) Store() store.Store { return e.store }

// --- Element registry -----------------------------------------------

// CreateOptions mirrors registry.CreateOptions.
type CreateOptions = registry.CreateOptions

// CreateElement validates and persists a new element.
func (e *Engine) CreateElement(ctx context.Context, elementType model.ElementType, payload model.Payload, createdBy string, opts CreateOptions) (*model.Element, error) {
	return e.registry.Create(ctx, elementType, payload, createdBy, opts)
}

// GetElement returns a single element by ID.
func (e *Engine) GetElement(ctx context.Context, id string) (*model.Element, error) {
	return e.registry.Get(ctx, id)
}

// ListElements returns elements matching filter.
func (e *Engine) ListElements(ctx context.Context, filter ElementFilter) ([]*model.Element, error) {
	return e.registry.List(ctx, filter)
}

// UpdateElement mutates and re-validates an element.
func (e *Engine) UpdateElement(ctx context.Context, id string, actor string, mutate registry.Mutation) (*model.Element, error) {
	return e.registry.Update(ctx, id, actor, mutate)
}

// DeleteElement soft- or hard-deletes an element.
func (e *Engine) DeleteElement(ctx context.Context, id string, actor string, tombstone bool) error {
	return e.registry.Delete(ctx, id, actor, tombstone)
}

// --- Dependency graph --------------------------------------------------

// AddDependency validates and inserts dep, checking for cycles on
// same-type-cyclable edge types, then — inside the same transaction as
// the insert — updates the blocked cache and appends a
// "dependency_added" event. This differs from graph.Graph.AddDependency,
// which performs the insert non-transactionally; the engine needs the
// edge write and the cache invalidation to commit or roll back together.
func (e *Engine) AddDependency(ctx context.Context, dep *model.Dependency) error {
	if err := dep.Validate(); err != nil {
		return err
	}

	return e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		exists, err := tx.ElementExists(ctx, dep.BlockedID)
		if err != nil {
			return fmt.Errorf("stoneforge: check %s exists: %w", dep.BlockedID, err)
		}
		if !exists {
			return fmt.Errorf("stoneforge: element %s not found: %w", dep.BlockedID, store.ErrNotFound)
		}
		exists, err = tx.ElementExists(ctx, dep.BlockerID)
		if err != nil {
			return fmt.Errorf("stoneforge: check %s exists: %w", dep.BlockerID, err)
		}
		if !exists {
			return fmt.Errorf("stoneforge: element %s not found: %w", dep.BlockerID, store.ErrNotFound)
		}

		if dep.Type.SameTypeCyclable() {
			reachable, err := graph.Reaches(ctx, tx, dep.BlockerID, dep.BlockedID, dep.Type)
			if err != nil {
				return err
			}
			if reachable {
				return fmt.Errorf("stoneforge: adding %s dependency %s -> %s would create a cycle: %w", dep.Type, dep.BlockedID, dep.BlockerID, graph.ErrCycle)
			}
		}

		if err := tx.AddDependency(ctx, dep); err != nil {
			return fmt.Errorf("stoneforge: add dependency: %w", err)
		}
		if _, err := eventlog.Append(ctx, tx, dep.BlockedID, model.EventDependencyAdded, dep.CreatedBy, nil); err != nil {
			return err
		}
		return e.cache.OnDependencyAdded(ctx, tx, dep.BlockedID, dep.BlockerID, dep.Type)
	})
}

// RemoveDependency deletes an edge and re-evaluates the blocked cache in
// the same transaction.
func (e *Engine) RemoveDependency(ctx context.Context, blockedID, blockerID string, depType model.DependencyType, actor string) error {
	return e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.RemoveDependency(ctx, blockedID, blockerID, depType); err != nil {
			return fmt.Errorf("stoneforge: remove dependency: %w", err)
		}
		if _, err := eventlog.Append(ctx, tx, blockedID, model.EventDependencyRemoved, actor, nil); err != nil {
			return err
		}
		return e.cache.OnDependencyRemoved(ctx, tx, blockedID, blockerID, depType)
	})
}

// Dependencies returns the edges elementID is the blocked side of.
func (e *Engine) Dependencies(ctx context.Context, elementID string) ([]*model.Dependency, error) {
	return e.graph.Dependencies(ctx, elementID)
}

// Dependents returns the edges elementID is the blocker side of.
func (e *Engine) Dependents(ctx context.Context, elementID string) ([]*model.Dependency, error) {
	return e.graph.Dependents(ctx, elementID)
}

// DetectCycles runs a full consistency scan for same-type-cyclable edges.
func (e *Engine) DetectCycles(ctx context.Context) ([]graph.Cycle, error) {
	return e.graph.DetectCycles(ctx)
}

// --- Gate engine --------------------------------------------------------

// GateSatisfied reports whether an awaits edge is currently satisfied.
func (e *Engine) GateSatisfied(ctx context.Context, blockedID, blockerID string) (bool, error) {
	return e.gate.Satisfied(ctx, blockedID, blockerID)
}

// RecordApproval adds approver to an approval gate's current approvers.
func (e *Engine) RecordApproval(ctx context.Context, blockedID, blockerID, approver, actor string) error {
	return e.gate.RecordApproval(ctx, blockedID, blockerID, approver, actor)
}

// RemoveApproval removes approver from an approval gate's current approvers.
func (e *Engine) RemoveApproval(ctx context.Context, blockedID, blockerID, approver, actor string) error {
	return e.gate.RemoveApproval(ctx, blockedID, blockerID, approver, actor)
}

// SatisfyGate marks an external or webhook gate satisfied.
func (e *Engine) SatisfyGate(ctx context.Context, blockedID, blockerID, actor string) error {
	return e.gate.SatisfyGate(ctx, blockedID, blockerID, actor)
}

// ParseWaitUntil parses a timer gate's waitUntil text relative to now.
func (e *Engine) ParseWaitUntil(text string, now time.Time) (time.Time, error) {
	return gate.ParseWaitUntil(text, now)
}

// --- Priority engine ------------------------------------------------

// EffectivePriority computes id's effective priority.
func (e *Engine) EffectivePriority(ctx context.Context, id string) (*priority.Result, error) {
	return e.priority.Effective(ctx, id)
}

// AggregateComplexity sums id's transitive blocker complexity, when
// priority.includeComplexity is enabled.
func (e *Engine) AggregateComplexity(ctx context.Context, id string) (int, error) {
	if !e.opts.Priority.IncludeComplexity {
		return 0, nil
	}
	return e.priority.AggregateComplexity(ctx, id)
}

// --- Query layer ------------------------------------------------------

// Ready returns tasks open/in_progress with nothing blocking them,
// ordered by effective priority.
func (e *Engine) Ready(ctx context.Context, filter ElementFilter) ([]*priority.AnnotatedTask, error) {
	if filter.Limit <= 0 {
		filter.Limit = e.opts.Page.DefaultLimit
	}
	return e.query.Ready(ctx, filter)
}

// Blocked returns every currently-blocked element with its blocker.
func (e *Engine) Blocked(ctx context.Context, filter ElementFilter) ([]*query.BlockedTask, error) {
	return e.query.Blocked(ctx, filter)
}

// DependencyTree flattens id's dependency tree out to maxDepth.
func (e *Engine) DependencyTree(ctx context.Context, id string, maxDepth int) ([]graph.TreeNode, error) {
	return e.query.DependencyTree(ctx, id, maxDepth)
}

// Search returns elements whose text fields contain queryText.
func (e *Engine) Search(ctx context.Context, queryText string, elemType *model.ElementType) ([]*model.Element, error) {
	return e.query.Search(ctx, queryText, elemType)
}

// Stats summarizes the store's current contents.
func (e *Engine) Stats(ctx context.Context) (*query.Stats, error) {
	return e.query.Stats(ctx)
}

// DependencyCounts summarizes id's own edges, for list views that show a
// per-element blocker/blocked/awaits count without walking the graph.
type DependencyCounts = store.DependencyCounts

func (e *Engine) DependencyCounts(ctx context.Context, id string) (*DependencyCounts, error) {
	return e.query.DependencyCounts(ctx, id)
}

// RebuildBlockedCache recomputes the blocked cache from scratch.
func (e *Engine) RebuildBlockedCache(ctx context.Context) (elementsChecked, elementsBlocked int, durationMs int64, err error) {
	return e.cache.Rebuild(ctx)
}

// Close releases the underlying store's resources.
func (e *Engine) Close() error {
	return e.store.Close()
}
