// Package query answers the read-side questions spec.md §4.7 lists:
// what's ready to work on, what's blocked and by what, an element's
// dependency tree, free-text search, and aggregate stats.
//
// Grounded on the teacher's internal/storage/{sqlite,dolt}/queries.go and
// ready.go: a WHERE-clause-per-filter-field builder reimplemented as a
// plain Go filter loop so it runs identically against either backend,
// and the "ready work excludes anything with a blocked_issues_cache row"
// strategy the teacher's comment documents as a 25x win over a recursive
// CTE on every read.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stoneforge-ai/stoneforge/internal/graph"
	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/priority"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// DefaultReadyLimit caps Ready's result size absent an explicit filter
// limit (spec.md §4.7).
const DefaultReadyLimit = 50

// Engine answers read queries against a store, using graph for tree
// traversal and priority for effective-priority ordering.
type Engine struct {
	store    store.Store
	graph    *graph.Graph
	priority *priority.Engine
}

// New builds a query Engine.
func New(s store.Store, g *graph.Graph, p *priority.Engine) *Engine {
	return &Engine{store: s, graph: g, priority: p}
}

// Ready returns tasks with status open or in_progress and no blocked-cache
// row, matching filter, ordered by effective priority ascending then
// created_at ascending, limited to filter.Limit (default 50).
func (e *Engine) Ready(ctx context.Context, filter store.ElementFilter) ([]*priority.AnnotatedTask, error) {
	taskType := model.ElementTask
	listFilter := filter
	listFilter.Type = &taskType
	listFilter.Status = nil // status is enforced below, not delegated to the backend
	listFilter.Limit = 0
	listFilter.Offset = 0

	elems, err := e.store.ListElements(ctx, listFilter)
	if err != nil {
		return nil, fmt.Errorf("query: list elements: %w", err)
	}

	var candidates []*model.Element
	for _, elem := range elems {
		task, ok := elem.Payload.(*model.Task)
		if !ok || !task.Status.ActiveForReady() {
			continue
		}
		if filter.Status != nil && task.Status != *filter.Status {
			continue
		}
		_, err := e.store.GetBlockedCacheRow(ctx, elem.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("query: get cache row %s: %w", elem.ID, err)
		}
		candidates = append(candidates, elem)
	}

	annotated, err := e.priority.EnhanceTasksWithEffectivePriority(ctx, candidates)
	if err != nil {
		return nil, err
	}
	priority.SortByEffectivePriority(annotated)

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultReadyLimit
	}
	if len(annotated) > limit {
		annotated = annotated[:limit]
	}
	return annotated, nil
}

// BlockedTask pairs a blocked element with its cache row.
type BlockedTask struct {
	Element *model.Element
	Row     *model.BlockedCacheRow
}

// Blocked returns every element with a blocked-cache row, annotated with
// its blocker, oldest first.
func (e *Engine) Blocked(ctx context.Context, filter store.ElementFilter) ([]*BlockedTask, error) {
	rows, err := e.store.ListBlockedCacheRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: list blocked cache rows: %w", err)
	}

	var out []*BlockedTask
	for _, row := range rows {
		elem, err := e.store.GetElement(ctx, row.ElementID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("query: get element %s: %w", row.ElementID, err)
		}
		if filter.Type != nil && elem.Type != *filter.Type {
			continue
		}
		if filter.Assignee != nil {
			task, ok := elem.Payload.(*model.Task)
			if !ok || task.Assignee == nil || *task.Assignee != *filter.Assignee {
				continue
			}
		}
		out = append(out, &BlockedTask{Element: elem, Row: row})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Element.CreatedAt.Before(out[j].Element.CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DependencyTree delegates to graph.Tree (spec.md §4.3/§4.7).
func (e *Engine) DependencyTree(ctx context.Context, id string, maxDepth int) ([]graph.TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = 10
	}
	return e.graph.Tree(ctx, id, maxDepth, false)
}

// Search returns elements whose title/content/body/name contains query,
// case-insensitively, optionally narrowed to one element type.
func (e *Engine) Search(ctx context.Context, queryText string, elemType *model.ElementType) ([]*model.Element, error) {
	q := strings.ToLower(strings.TrimSpace(queryText))
	if q == "" {
		return nil, fmt.Errorf("query: search text is empty")
	}

	elems, err := e.store.ListElements(ctx, store.ElementFilter{Type: elemType})
	if err != nil {
		return nil, fmt.Errorf("query: list elements: %w", err)
	}

	var out []*model.Element
	for _, elem := range elems {
		if matchesSearch(elem, q) {
			out = append(out, elem)
		}
	}
	return out, nil
}

func matchesSearch(elem *model.Element, q string) bool {
	switch p := elem.Payload.(type) {
	case *model.Task:
		return strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.AcceptanceCriteria), q)
	case *model.Plan:
		return strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Description), q)
	case *model.Document:
		return strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(string(p.Content)), q)
	case *model.Message:
		return strings.Contains(strings.ToLower(p.Body), q)
	case *model.Entity:
		return strings.Contains(strings.ToLower(p.Name), q)
	case *model.Channel:
		return strings.Contains(strings.ToLower(p.Name), q)
	default:
		return false
	}
}

// Stats summarizes the store's current contents (spec.md §4.7).
type Stats struct {
	ElementsByType        map[model.ElementType]int
	TasksByStatus         map[model.Status]int
	TasksByPriority       map[model.Priority]int
	DependencyCount       int
	DependencyCountByType map[model.DependencyType]int
	BlockedCount          int
}

// Stats computes the full-store summary.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	elems, err := e.store.ListElements(ctx, store.ElementFilter{})
	if err != nil {
		return nil, fmt.Errorf("query: list elements: %w", err)
	}

	s := &Stats{
		ElementsByType:        map[model.ElementType]int{},
		TasksByStatus:         map[model.Status]int{},
		TasksByPriority:       map[model.Priority]int{},
		DependencyCountByType: map[model.DependencyType]int{},
	}
	for _, elem := range elems {
		s.ElementsByType[elem.Type]++
		if task, ok := elem.Payload.(*model.Task); ok {
			s.TasksByStatus[task.Status]++
			s.TasksByPriority[task.Priority]++
		}
	}

	deps, err := e.store.GetAllDependencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: get all dependencies: %w", err)
	}
	s.DependencyCount = len(deps)
	for _, d := range deps {
		s.DependencyCountByType[d.Type]++
	}

	rows, err := e.store.ListBlockedCacheRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("query: list blocked cache rows: %w", err)
	}
	s.BlockedCount = len(rows)

	return s, nil
}

// DependencyCounts summarizes a single element's edges, grounded on the
// teacher's GetDependencyCounts and used by list views that show an
// element's blocker/blocked/awaits counts without walking the full
// dependency graph.
func (e *Engine) DependencyCounts(ctx context.Context, id string) (*store.DependencyCounts, error) {
	counts, err := e.store.GetDependencyCounts(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("query: get dependency counts for %s: %w", id, err)
	}
	if c, ok := counts[id]; ok {
		return c, nil
	}
	return &store.DependencyCounts{}, nil
}
