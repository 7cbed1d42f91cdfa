// Package graph manages dependency edges between elements and the
// traversals built on top of them: cycle detection before an insert,
// ancestor/descendant walks, and dependency-tree construction.
//
// The teacher does most of this with a recursive CTE inside Dolt/MySQL
// (WITH RECURSIVE reachable AS ...) plus a separate plain-Go DFS for its
// batch DetectCycles job. Since Stoneforge's Store interface has to work
// identically against the SQL backend and the in-memory one, every
// traversal here is plain Go over rows fetched through store.Store,
// standardizing on the teacher's DFS path rather than its CTE path.
package graph

import (
	"context"
	"fmt"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

// ErrCycle is returned by AddDependency when the edge would create a cycle
// in a same-type-cyclable dependency type (blocks, parent-child).
var ErrCycle = store.ErrCycle

// Graph wraps a store.Store with dependency-aware traversals.
type Graph struct {
	store store.Store
}

func New(s store.Store) *Graph {
	return &Graph{store: s}
}

// AddDependency validates both endpoints exist, rejects self-edges and
// edges that would create a cycle for cyclable types, and persists the
// edge. Cycle checking runs against edges of the same type only, matching
// the teacher's "blocks can't cycle with blocks" scoping — a blocks edge
// and a parent-child edge between the same two elements don't interact.
func (g *Graph) AddDependency(ctx context.Context, dep *model.Dependency) error {
	if err := dep.Validate(); err != nil {
		return err
	}

	exists, err := g.store.ElementExists(ctx, dep.BlockedID)
	if err != nil {
		return fmt.Errorf("graph: check %s exists: %w", dep.BlockedID, err)
	}
	if !exists {
		return fmt.Errorf("graph: element %s not found: %w", dep.BlockedID, store.ErrNotFound)
	}
	exists, err = g.store.ElementExists(ctx, dep.BlockerID)
	if err != nil {
		return fmt.Errorf("graph: check %s exists: %w", dep.BlockerID, err)
	}
	if !exists {
		return fmt.Errorf("graph: element %s not found: %w", dep.BlockerID, store.ErrNotFound)
	}

	if dep.Type.SameTypeCyclable() {
		reachable, err := Reaches(ctx, g.store, dep.BlockerID, dep.BlockedID, dep.Type)
		if err != nil {
			return err
		}
		if reachable {
			return fmt.Errorf("graph: adding %s dependency %s -> %s would create a cycle: %w", dep.Type, dep.BlockedID, dep.BlockerID, ErrCycle)
		}
	}

	if err := g.store.AddDependency(ctx, dep); err != nil {
		return fmt.Errorf("graph: add dependency: %w", err)
	}
	return nil
}

// Reaches reports whether, following only edges of depType, from can reach
// to, reading through tx. Used to detect that adding blockedID->blockerID
// would close a cycle: if blockerID can already reach blockedID, the new
// edge completes one. Exported (unlike the rest of Graph's internals) so
// a caller that needs the edge insert and a blocked-cache invalidation to
// commit in the same transaction — the top-level engine's AddDependency —
// can run the same check against its own store.Tx instead of going through
// a *Graph bound to the non-transactional store.Store.
func Reaches(ctx context.Context, tx store.Tx, from, to string, depType model.DependencyType) (bool, error) {
	visited := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == to {
			return true, nil
		}
		if visited[node] {
			continue
		}
		visited[node] = true

		deps, err := tx.GetDependencies(ctx, node)
		if err != nil {
			return false, fmt.Errorf("graph: get dependencies of %s: %w", node, err)
		}
		for _, d := range deps {
			if d.Type == depType {
				queue = append(queue, d.BlockerID)
			}
		}
	}
	return false, nil
}

// RemoveDependency deletes a single edge.
func (g *Graph) RemoveDependency(ctx context.Context, blockedID, blockerID string, depType model.DependencyType) error {
	if err := g.store.RemoveDependency(ctx, blockedID, blockerID, depType); err != nil {
		return fmt.Errorf("graph: remove dependency: %w", err)
	}
	return nil
}

// Dependencies returns the edges elementID is the blocked side of — what
// it's waiting on.
func (g *Graph) Dependencies(ctx context.Context, elementID string) ([]*model.Dependency, error) {
	return g.store.GetDependencies(ctx, elementID)
}

// Dependents returns the edges elementID is the blocker side of — what's
// waiting on it.
func (g *Graph) Dependents(ctx context.Context, elementID string) ([]*model.Dependency, error) {
	return g.store.GetDependents(ctx, elementID)
}

// TreeNode is one row of a flattened dependency tree (spec.md's
// "dependency tree" query operation).
type TreeNode struct {
	Element *model.Element
	Depth   int
}

// Tree walks the dependency graph from rootID out to maxDepth, following
// "depends on" edges by default or "depended on by" edges when reverse is
// true, and returns a flattened depth-first list. A node already seen on
// the current walk is skipped, so diamond-shaped graphs don't duplicate
// work or loop forever on an undetected cycle.
func (g *Graph) Tree(ctx context.Context, rootID string, maxDepth int, reverse bool) ([]TreeNode, error) {
	visited := map[string]bool{}
	return g.buildTree(ctx, rootID, 0, maxDepth, reverse, visited)
}

func (g *Graph) buildTree(ctx context.Context, elementID string, depth, maxDepth int, reverse bool, visited map[string]bool) ([]TreeNode, error) {
	if depth >= maxDepth || visited[elementID] {
		return nil, nil
	}
	visited[elementID] = true

	elem, err := g.store.GetElement(ctx, elementID)
	if err != nil {
		return nil, fmt.Errorf("graph: get element %s: %w", elementID, err)
	}

	var edges []*model.Dependency
	if reverse {
		edges, err = g.store.GetDependents(ctx, elementID)
	} else {
		edges, err = g.store.GetDependencies(ctx, elementID)
	}
	if err != nil {
		return nil, err
	}

	nodes := []TreeNode{{Element: elem, Depth: depth}}
	for _, e := range edges {
		childID := e.BlockerID
		if reverse {
			childID = e.BlockedID
		}
		children, err := g.buildTree(ctx, childID, depth+1, maxDepth, reverse, visited)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, children...)
	}
	return nodes, nil
}

// Cycle is a single detected cycle, listed in traversal order.
type Cycle struct {
	ElementIDs []string
	Type       model.DependencyType
}

// DetectCycles scans every same-type-cyclable dependency type and reports
// cycles found, for periodic consistency checks (the teacher runs an
// equivalent batch job rather than relying solely on insert-time checks,
// since imported data can arrive pre-cyclic).
func (g *Graph) DetectCycles(ctx context.Context) ([]Cycle, error) {
	all, err := g.store.GetAllDependencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: get all dependencies: %w", err)
	}

	var cycles []Cycle
	for _, depType := range model.ScanOrder {
		if !depType.SameTypeCyclable() {
			continue
		}
		adjacency := map[string][]string{}
		for _, d := range all {
			if d.Type == depType {
				adjacency[d.BlockedID] = append(adjacency[d.BlockedID], d.BlockerID)
			}
		}
		cycles = append(cycles, detectCyclesDFS(adjacency, depType)...)
	}
	return cycles, nil
}

func detectCyclesDFS(adjacency map[string][]string, depType model.DependencyType) []Cycle {
	visited := map[string]bool{}
	onStack := map[string]bool{}
	var path []string
	var cycles []Cycle

	var dfs func(node string) bool
	dfs = func(node string) bool {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, neighbor := range adjacency[node] {
			if !visited[neighbor] {
				if dfs(neighbor) {
					return true
				}
			} else if onStack[neighbor] {
				start := 0
				for i, n := range path {
					if n == neighbor {
						start = i
						break
					}
				}
				cyclePath := append([]string{}, path[start:]...)
				cycles = append(cycles, Cycle{ElementIDs: cyclePath, Type: depType})
			}
		}

		path = path[:len(path)-1]
		onStack[node] = false
		return false
	}

	for node := range adjacency {
		if !visited[node] {
			dfs(node)
		}
	}
	return cycles
}
