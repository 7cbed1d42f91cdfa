package memstore

import (
	"context"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

func (s *Store) UpsertBlockedCacheRow(ctx context.Context, row *model.BlockedCacheRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *row
	s.blockedCache[row.ElementID] = &cp
	return nil
}

func (s *Store) DeleteBlockedCacheRow(ctx context.Context, elementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blockedCache, elementID)
	return nil
}

func (s *Store) GetBlockedCacheRow(ctx context.Context, elementID string) (*model.BlockedCacheRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.blockedCache[elementID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *Store) ListBlockedCacheRows(ctx context.Context) ([]*model.BlockedCacheRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.BlockedCacheRow, 0, len(s.blockedCache))
	for _, row := range s.blockedCache {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) TruncateBlockedCache(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockedCache = make(map[string]*model.BlockedCacheRow)
	return nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.config[key]
	return v, ok, nil
}
