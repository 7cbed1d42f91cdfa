// Package priority computes a task's effective priority — its own base
// priority blended with the urgency of whatever it's blocking — and an
// aggregate complexity heuristic over its transitive blockers.
//
// The teacher has no equivalent propagation engine; the traversal shape
// (bounded-depth recursion over blocks edges with a per-path visited set
// to survive an inconsistent combined-graph cycle) follows the same
// pattern internal/graph uses for its tree walk and cycle detection.
package priority

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// DefaultMaxDepth bounds the min-propagation recursion (spec.md §4.6).
const DefaultMaxDepth = 10

// Result is the effective-priority record for one task.
type Result struct {
	ElementID            string
	BasePriority         model.Priority
	EffectivePriority    model.Priority
	IsInfluenced         bool
	DependentInfluencers []string
}

// AnnotatedTask pairs an already-loaded element with its computed Result.
type AnnotatedTask struct {
	Element *model.Element
	*Result
}

// Engine computes effective priority and aggregate complexity against a
// store.
type Engine struct {
	store    store.Store
	maxDepth int
}

// New builds an Engine. maxDepth <= 0 uses DefaultMaxDepth.
func New(s store.Store, maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{store: s, maxDepth: maxDepth}
}

// Effective computes eff(id, 0) per spec.md §4.6:
//
//	eff(t, depth) = min(base(t), min over d in dependents_blocks(t) of eff(d, depth+1))
//
// A missing element returns PriorityMedium with IsInfluenced false.
func (e *Engine) Effective(ctx context.Context, id string) (*Result, error) {
	base, ok, err := e.basePriority(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{ElementID: id, BasePriority: model.PriorityMedium, EffectivePriority: model.PriorityMedium}, nil
	}

	eff, influencers, err := e.effectiveAt(ctx, id, 0, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return &Result{
		ElementID:            id,
		BasePriority:         base,
		EffectivePriority:    eff,
		IsInfluenced:         eff < base,
		DependentInfluencers: influencers,
	}, nil
}

// CalculateEffectivePriorities is the bulk form of Effective.
func (e *Engine) CalculateEffectivePriorities(ctx context.Context, ids []string) (map[string]*Result, error) {
	out := make(map[string]*Result, len(ids))
	for _, id := range ids {
		r, err := e.Effective(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = r
	}
	return out, nil
}

// EnhanceTasksWithEffectivePriority annotates already-loaded task
// elements with their effective priority, using each element's own
// already-fetched base priority rather than re-reading it from the
// store (only the dependent traversal touches the store again).
// Non-task elements are skipped.
func (e *Engine) EnhanceTasksWithEffectivePriority(ctx context.Context, tasks []*model.Element) ([]*AnnotatedTask, error) {
	out := make([]*AnnotatedTask, 0, len(tasks))
	for _, elem := range tasks {
		task, ok := elem.Payload.(*model.Task)
		if !ok {
			continue
		}
		eff, influencers, err := e.effectiveAt(ctx, elem.ID, 0, map[string]bool{})
		if err != nil {
			return nil, err
		}
		out = append(out, &AnnotatedTask{
			Element: elem,
			Result: &Result{
				ElementID:            elem.ID,
				BasePriority:         task.Priority,
				EffectivePriority:    eff,
				IsInfluenced:         eff < task.Priority,
				DependentInfluencers: influencers,
			},
		})
	}
	return out, nil
}

// SortByEffectivePriority orders tasks by (effectivePriority, basePriority,
// createdAt) ascending, in place.
func SortByEffectivePriority(tasks []*AnnotatedTask) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.EffectivePriority != b.EffectivePriority {
			return a.EffectivePriority < b.EffectivePriority
		}
		if a.BasePriority != b.BasePriority {
			return a.BasePriority < b.BasePriority
		}
		return a.Element.CreatedAt.Before(b.Element.CreatedAt)
	})
}

func (e *Engine) basePriority(ctx context.Context, id string) (model.Priority, bool, error) {
	elem, err := e.store.GetElement(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("priority: get element %s: %w", id, err)
	}
	if task, ok := elem.Payload.(*model.Task); ok {
		return task.Priority, true, nil
	}
	// Non-task elements (plans, documents, ...) have no priority of their
	// own; treat them as neutral so they never look artificially urgent.
	return model.PriorityMedium, true, nil
}

func (e *Engine) effectiveAt(ctx context.Context, id string, depth int, visited map[string]bool) (model.Priority, []string, error) {
	base, ok, err := e.basePriority(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		return model.PriorityMedium, nil, nil
	}
	if depth > e.maxDepth || visited[id] {
		return base, nil, nil
	}
	visited[id] = true
	defer delete(visited, id)

	dependents, err := e.store.GetDependents(ctx, id)
	if err != nil {
		return 0, nil, fmt.Errorf("priority: get dependents of %s: %w", id, err)
	}

	type childEff struct {
		id  string
		eff model.Priority
	}
	var children []childEff
	for _, d := range dependents {
		if d.Type != model.DepBlocks {
			continue
		}
		childEffective, _, err := e.effectiveAt(ctx, d.BlockedID, depth+1, visited)
		if err != nil {
			return 0, nil, err
		}
		children = append(children, childEff{id: d.BlockedID, eff: childEffective})
	}

	best := base
	for _, c := range children {
		if c.eff < best {
			best = c.eff
		}
	}
	var influencers []string
	if best < base {
		for _, c := range children {
			if c.eff == best {
				influencers = append(influencers, c.id)
			}
		}
	}
	return best, influencers, nil
}

// AggregateComplexity sums complexity(id) plus complexity(blocker) over
// every transitive blocker of id, up to maxDepth. Absent elements and
// non-task elements contribute 0. Heuristic only; no invariant in spec.md
// §8 depends on it.
func (e *Engine) AggregateComplexity(ctx context.Context, id string) (int, error) {
	return e.aggregateComplexityAt(ctx, id, 0, map[string]bool{})
}

func (e *Engine) aggregateComplexityAt(ctx context.Context, id string, depth int, visited map[string]bool) (int, error) {
	elem, err := e.store.GetElement(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("priority: get element %s: %w", id, err)
	}

	total := 0
	if task, ok := elem.Payload.(*model.Task); ok {
		total = int(task.Complexity)
	}
	if depth >= e.maxDepth || visited[id] {
		return total, nil
	}
	visited[id] = true
	defer delete(visited, id)

	deps, err := e.store.GetDependencies(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("priority: get dependencies of %s: %w", id, err)
	}
	for _, d := range deps {
		if d.Type != model.DepBlocks {
			continue
		}
		c, err := e.aggregateComplexityAt(ctx, d.BlockerID, depth+1, visited)
		if err != nil {
			return 0, err
		}
		total += c
	}
	return total, nil
}
