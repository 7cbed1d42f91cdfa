// Package blockedcache materializes which elements are blocked, and by
// what, so readers can answer "is X ready?" with a single row lookup
// instead of walking the dependency graph on every query.
//
// The teacher maintains the equivalent blocked_issues_cache table with a
// single recursive-CTE rebuild triggered after every mutation
// (internal/storage/dolt/blocked_cache.go). This package keeps that
// rebuild-on-trigger strategy but also supports incremental invalidation:
// compute_blocking_state is a single Go function shared by Rebuild and the
// four incremental entry points below, so both paths can never disagree.
package blockedcache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// Clock abstracts time.Now for deterministic gate evaluation.
type Clock func() time.Time

// StatusTransitionCallback receives automatic block/unblock requests. It
// runs inside the same transaction the triggering mutation is part of, so
// implementations must confine themselves to that tx and must not start
// their own transaction or perform unrelated work.
type StatusTransitionCallback interface {
	OnBlock(ctx context.Context, tx store.Tx, elementID string, previousStatus model.Status) error
	OnUnblock(ctx context.Context, tx store.Tx, elementID string, statusToRestore model.Status) error
}

// Cache maintains the blocked_cache table.
type Cache struct {
	store          store.Store
	clock          Clock
	callback       StatusTransitionCallback
	autoTransition bool
}

// New builds a Cache. A nil clock defaults to time.Now; a nil callback
// disables automatic status transitions regardless of autoTransitionStatus.
func New(s store.Store, clock Clock, callback StatusTransitionCallback, autoTransitionStatus bool) *Cache {
	if clock == nil {
		clock = time.Now
	}
	return &Cache{store: s, clock: clock, callback: callback, autoTransition: autoTransitionStatus}
}

// GateSatisfied evaluates an awaits edge's metadata against now. Shared
// with internal/gate so gate mutations and cache computation never
// disagree about what "satisfied" means.
func GateSatisfied(meta *model.AwaitsMetadata, now time.Time) bool {
	switch meta.GateType {
	case model.GateTimer:
		return !now.Before(meta.WaitUntil)
	case model.GateApproval:
		required := map[string]bool{}
		for _, a := range meta.RequiredApprovers {
			required[a] = true
		}
		count := 0
		for _, a := range meta.CurrentApprovers {
			if required[a] {
				count++
			}
		}
		threshold := meta.ApprovalCount
		if threshold <= 0 {
			threshold = len(meta.RequiredApprovers)
		}
		return count >= threshold
	case model.GateExternal, model.GateWebhook:
		return meta.Satisfied
	default:
		return false
	}
}

// computeBlockingState scans elem's dependencies in model.ScanOrder and
// returns the first blocking edge found, or nil if elem is not blocked.
func (c *Cache) computeBlockingState(ctx context.Context, tx store.Tx, elem *model.Element) (*model.BlockedCacheRow, error) {
	deps, err := tx.GetDependencies(ctx, elem.ID)
	if err != nil {
		return nil, fmt.Errorf("blockedcache: get dependencies of %s: %w", elem.ID, err)
	}

	byType := map[model.DependencyType][]*model.Dependency{}
	for _, d := range deps {
		byType[d.Type] = append(byType[d.Type], d)
	}

	for _, depType := range model.ScanOrder {
		for _, d := range byType[depType] {
			blocks, reason, err := c.edgeBlocks(ctx, tx, d)
			if err != nil {
				return nil, err
			}
			if blocks {
				return &model.BlockedCacheRow{
					ElementID:    elem.ID,
					BlockedBy:    d.BlockerID,
					BlockingType: depType,
					Reason:       reason,
				}, nil
			}
		}
	}
	return nil, nil
}

func (c *Cache) edgeBlocks(ctx context.Context, tx store.Tx, d *model.Dependency) (bool, string, error) {
	switch d.Type {
	case model.DepBlocks:
		blocker, err := tx.GetElement(ctx, d.BlockerID)
		if errors.Is(err, store.ErrNotFound) {
			return false, "", nil // absent blocker doesn't block
		}
		if err != nil {
			return false, "", fmt.Errorf("blockedcache: get blocker %s: %w", d.BlockerID, err)
		}
		if blocker.Tombstoned() {
			return false, "", nil
		}
		if task, ok := blocker.Payload.(*model.Task); ok {
			if task.Status.Terminal() {
				return false, "", nil
			}
			return true, fmt.Sprintf("blocked by %s", d.BlockerID), nil
		}
		// Non-task blockers (plans, documents, ...) have no completion
		// state of their own, so a present, non-tombstoned one blocks.
		return true, fmt.Sprintf("blocked by %s", d.BlockerID), nil

	case model.DepParentChild:
		parent, err := tx.GetElement(ctx, d.BlockerID)
		if errors.Is(err, store.ErrNotFound) {
			return false, "", nil
		}
		if err != nil {
			return false, "", fmt.Errorf("blockedcache: get parent %s: %w", d.BlockerID, err)
		}
		if parent.Tombstoned() {
			return false, "", nil
		}
		if _, err := tx.GetBlockedCacheRow(ctx, d.BlockerID); err == nil {
			return true, fmt.Sprintf("blocked via parent %s", d.BlockerID), nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return false, "", fmt.Errorf("blockedcache: get parent cache row %s: %w", d.BlockerID, err)
		}
		if task, ok := parent.Payload.(*model.Task); ok && !task.Status.Terminal() {
			return true, fmt.Sprintf("blocked via parent %s", d.BlockerID), nil
		}
		return false, "", nil

	case model.DepAwaits:
		meta, err := model.AwaitsMetadataFromMap(d.Metadata)
		if err != nil {
			return true, "blocked by gate (invalid metadata)", nil
		}
		if err := meta.Validate(); err != nil {
			return true, "blocked by gate (invalid metadata)", nil
		}
		if !GateSatisfied(meta, c.clock()) {
			return true, fmt.Sprintf("blocked by gate on %s", d.BlockerID), nil
		}
		return false, "", nil

	default:
		return false, "", nil
	}
}

// reevaluate recomputes elementID's blocking state and reconciles the
// cache row, driving an automatic status transition through the callback
// when a task crosses the blocked boundary. It returns the IDs (elementID
// itself and/or any parent-child descendant reached by cascading) that
// left the blocked cache as a result of this call.
func (c *Cache) reevaluate(ctx context.Context, tx store.Tx, elementID string) ([]string, error) {
	elem, err := tx.GetElement(ctx, elementID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, deleteIfPresent(ctx, tx, elementID)
	}
	if err != nil {
		return nil, fmt.Errorf("blockedcache: get element %s: %w", elementID, err)
	}
	if elem.Tombstoned() {
		return nil, deleteIfPresent(ctx, tx, elementID)
	}

	state, err := c.computeBlockingState(ctx, tx, elem)
	if err != nil {
		return nil, err
	}

	existing, err := tx.GetBlockedCacheRow(ctx, elementID)
	existingOK := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("blockedcache: get cache row %s: %w", elementID, err)
	}

	task, isTask := elem.Payload.(*model.Task)
	transitioned := (state == nil) != (!existingOK)

	var unblocked []string
	switch {
	case state == nil && existingOK:
		if err := tx.DeleteBlockedCacheRow(ctx, elementID); err != nil {
			return nil, fmt.Errorf("blockedcache: delete cache row %s: %w", elementID, err)
		}
		if isTask && c.autoTransition && c.callback != nil && task.Status == model.StatusBlocked {
			if err := c.callback.OnUnblock(ctx, tx, elementID, existing.PreviousStatus); err != nil {
				return nil, fmt.Errorf("blockedcache: unblock callback for %s: %w", elementID, err)
			}
		}
		unblocked = append(unblocked, elementID)

	case state == nil && !existingOK:
		// already unblocked, nothing to do

	case state != nil && !existingOK:
		if isTask && c.autoTransition && task.Status.AutoTransitionEligible() {
			state.PreviousStatus = task.Status
			if c.callback != nil {
				if err := c.callback.OnBlock(ctx, tx, elementID, task.Status); err != nil {
					return nil, fmt.Errorf("blockedcache: block callback for %s: %w", elementID, err)
				}
			}
		}
		if err := tx.UpsertBlockedCacheRow(ctx, state); err != nil {
			return nil, fmt.Errorf("blockedcache: upsert cache row %s: %w", elementID, err)
		}

	case state != nil && existingOK:
		state.PreviousStatus = existing.PreviousStatus
		if err := tx.UpsertBlockedCacheRow(ctx, state); err != nil {
			return nil, fmt.Errorf("blockedcache: upsert cache row %s: %w", elementID, err)
		}
	}

	// A child checks "is my parent blocked" via the parent's own cache row
	// (see edgeBlocks's DepParentChild case), so a transition here can
	// change what every parent-child descendant should compute, regardless
	// of which edge type caused this element's own transition.
	if transitioned {
		descendants, err := c.descendants(ctx, tx, elementID)
		if err != nil {
			return nil, err
		}
		for _, id := range descendants {
			sub, err := c.reevaluate(ctx, tx, id)
			if err != nil {
				return nil, err
			}
			unblocked = append(unblocked, sub...)
		}
	}
	return unblocked, nil
}

func deleteIfPresent(ctx context.Context, tx store.Tx, elementID string) error {
	if err := tx.DeleteBlockedCacheRow(ctx, elementID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("blockedcache: delete cache row %s: %w", elementID, err)
	}
	return nil
}

// descendants returns every element reachable from rootID by following
// parent-child edges downward (root's children, their children, ...),
// via iterative BFS with a visited set so a cycle outside the
// parent-child subgraph (a combined blocks+parent-child cycle) can't spin
// forever.
func (c *Cache) descendants(ctx context.Context, tx store.Tx, rootID string) ([]string, error) {
	visited := map[string]bool{rootID: true}
	queue := []string{rootID}
	var out []string

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		dependents, err := tx.GetDependents(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("blockedcache: get dependents of %s: %w", node, err)
		}
		for _, d := range dependents {
			if d.Type != model.DepParentChild {
				continue
			}
			if visited[d.BlockedID] {
				continue
			}
			visited[d.BlockedID] = true
			out = append(out, d.BlockedID)
			queue = append(queue, d.BlockedID)
		}
	}
	return out, nil
}

// OnDependencyAdded re-evaluates blockedID after a new edge is inserted.
// reevaluate itself cascades into blockedID's parent-child descendants
// when the re-evaluation changes blockedID's own blocking state.
func (c *Cache) OnDependencyAdded(ctx context.Context, tx store.Tx, blockedID, blockerID string, depType model.DependencyType) error {
	_, _ = blockerID, depType
	_, err := c.reevaluate(ctx, tx, blockedID)
	return err
}

// OnDependencyRemoved mirrors OnDependencyAdded for edge deletion.
func (c *Cache) OnDependencyRemoved(ctx context.Context, tx store.Tx, blockedID, blockerID string, depType model.DependencyType) error {
	_, _ = blockerID, depType
	_, err := c.reevaluate(ctx, tx, blockedID)
	return err
}

// OnStatusChanged re-evaluates every dependent of id when id's completion
// status crosses the terminal boundary in either direction.
func (c *Cache) OnStatusChanged(ctx context.Context, tx store.Tx, id string, old, new model.Status) ([]string, error) {
	if old.Terminal() == new.Terminal() {
		return nil, nil
	}

	dependents, err := tx.GetDependents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("blockedcache: get dependents of %s: %w", id, err)
	}

	var unblocked []string
	seen := map[string]bool{}
	for _, d := range dependents {
		if !d.Type.Gating() {
			continue
		}
		if seen[d.BlockedID] {
			continue
		}
		seen[d.BlockedID] = true

		sub, err := c.reevaluate(ctx, tx, d.BlockedID)
		if err != nil {
			return nil, err
		}
		unblocked = append(unblocked, sub...)
	}
	return unblocked, nil
}

// OnDependencyUpdated re-evaluates blockedID after an existing edge's
// metadata changes in place (a gate's approvals or satisfied flag, for
// instance, where the edge itself is neither added nor removed).
func (c *Cache) OnDependencyUpdated(ctx context.Context, tx store.Tx, blockedID string) error {
	_, err := c.reevaluate(ctx, tx, blockedID)
	return err
}

// OnElementDeleted drops id's own cache row and treats the deletion as a
// transition into a terminal state for the purpose of its dependents,
// returning the IDs that left the blocked cache as a result.
func (c *Cache) OnElementDeleted(ctx context.Context, tx store.Tx, id string) ([]string, error) {
	if err := deleteIfPresent(ctx, tx, id); err != nil {
		return nil, err
	}
	return c.OnStatusChanged(ctx, tx, id, model.StatusOpen, model.StatusTombstone)
}

// Rebuild clears the cache and re-evaluates every element that appears as
// the blocked side of some dependency edge, in topological order over
// parent-child (roots first, orphaned-parent elements last) so that by
// the time a child is evaluated, its parent's cache row already reflects
// the rebuild's own conclusions rather than stale pre-rebuild state.
func (c *Cache) Rebuild(ctx context.Context) (elementsChecked, elementsBlocked int, durationMs int64, err error) {
	start := c.clock()

	err = c.store.RunInTransaction(ctx, func(tx store.Tx) error {
		if err := tx.TruncateBlockedCache(ctx); err != nil {
			return fmt.Errorf("blockedcache: truncate cache: %w", err)
		}

		allDeps, err := tx.GetAllDependencies(ctx)
		if err != nil {
			return fmt.Errorf("blockedcache: get all dependencies: %w", err)
		}

		scanSet := map[string]bool{}
		for _, d := range allDeps {
			scanSet[d.BlockedID] = true
		}

		order := topoOrder(scanSet, allDeps)

		for _, id := range order {
			elementsChecked++
			if _, err := c.reevaluate(ctx, tx, id); err != nil {
				return err
			}
			if _, err := tx.GetBlockedCacheRow(ctx, id); err == nil {
				elementsBlocked++
			} else if !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("blockedcache: get cache row %s: %w", id, err)
			}
		}
		return nil
	})

	durationMs = c.clock().Sub(start).Milliseconds()
	return elementsChecked, elementsBlocked, durationMs, err
}

// topoOrder walks the parent-child subgraph restricted to scanSet,
// starting from true roots (no parent-child parent at all), then any
// remaining reachable nodes, deferring nodes whose parent falls outside
// scanSet to the very end since their parent's state can't be
// established from this scan.
func topoOrder(scanSet map[string]bool, allDeps []*model.Dependency) []string {
	parentOf := map[string]string{}
	childrenOf := map[string][]string{}
	for _, d := range allDeps {
		if d.Type != model.DepParentChild || !scanSet[d.BlockedID] {
			continue
		}
		parentOf[d.BlockedID] = d.BlockerID
		childrenOf[d.BlockerID] = append(childrenOf[d.BlockerID], d.BlockedID)
	}

	ids := make([]string, 0, len(scanSet))
	for id := range scanSet {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, children := range childrenOf {
		sort.Strings(children)
	}

	var order []string
	visited := map[string]bool{}
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		for _, child := range childrenOf[id] {
			visit(child)
		}
	}

	var orphans []string
	for _, id := range ids {
		parent, hasParent := parentOf[id]
		switch {
		case !hasParent:
			visit(id)
		case !scanSet[parent]:
			orphans = append(orphans, id)
		}
	}
	for _, id := range ids {
		if !visited[id] && !contains(orphans, id) {
			visit(id)
		}
	}
	for _, id := range orphans {
		if !visited[id] {
			visited[id] = true
			order = append(order, id)
		}
	}
	return order
}

func contains(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
