package memstore

import (
	"context"
	"fmt"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

func (s *Store) AddDependency(ctx context.Context, dep *model.Dependency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := depKey{dep.BlockedID, dep.BlockerID, dep.Type}
	if _, exists := s.dependencies[key]; exists {
		return fmt.Errorf("memstore: dependency already exists: %w", store.ErrConflict)
	}
	s.dependencies[key] = cloneDependency(dep)
	return nil
}

func (s *Store) RemoveDependency(ctx context.Context, blockedID, blockerID string, depType model.DependencyType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := depKey{blockedID, blockerID, depType}
	if _, exists := s.dependencies[key]; !exists {
		return store.ErrNotFound
	}
	delete(s.dependencies, key)
	return nil
}

func (s *Store) GetDependencies(ctx context.Context, elementID string) ([]*model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Dependency
	for _, d := range s.dependencies {
		if d.BlockedID == elementID {
			out = append(out, cloneDependency(d))
		}
	}
	return out, nil
}

func (s *Store) GetDependents(ctx context.Context, elementID string) ([]*model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Dependency
	for _, d := range s.dependencies {
		if d.BlockerID == elementID {
			out = append(out, cloneDependency(d))
		}
	}
	return out, nil
}

func (s *Store) GetAllDependencies(ctx context.Context) ([]*model.Dependency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Dependency, 0, len(s.dependencies))
	for _, d := range s.dependencies {
		out = append(out, cloneDependency(d))
	}
	return out, nil
}

func (s *Store) UpdateDependencyMetadata(ctx context.Context, blockedID, blockerID string, depType model.DependencyType, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := depKey{blockedID, blockerID, depType}
	d, exists := s.dependencies[key]
	if !exists {
		return store.ErrNotFound
	}
	cp := cloneDependency(d)
	cp.Metadata = metadata
	s.dependencies[key] = cp
	return nil
}

func (s *Store) GetDependencyCounts(ctx context.Context, elementIDs []string) (map[string]*store.DependencyCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*store.DependencyCounts, len(elementIDs))
	want := make(map[string]bool, len(elementIDs))
	for _, id := range elementIDs {
		out[id] = &store.DependencyCounts{}
		want[id] = true
	}
	for _, d := range s.dependencies {
		if want[d.BlockedID] {
			c := out[d.BlockedID]
			switch d.Type {
			case model.DepBlocks:
				c.Blockers++
			case model.DepParentChild:
				c.ChildLinks++
			case model.DepAwaits:
				c.Awaits++
			case model.DepRelatesTo:
				c.RelatesTo++
			}
		}
		if want[d.BlockerID] {
			c := out[d.BlockerID]
			switch d.Type {
			case model.DepBlocks:
				c.Blocked++
			case model.DepParentChild:
				c.ParentLinks++
			}
		}
	}
	return out, nil
}
