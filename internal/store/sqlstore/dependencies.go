package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

func (b *base) AddDependency(ctx context.Context, dep *model.Dependency) error {
	metaJSON, err := model.EncodeMetadata(dep.Metadata)
	if err != nil {
		return fmt.Errorf("sqlstore: encode dependency metadata: %w", err)
	}
	var threadID any
	if dep.ThreadID != nil {
		threadID = *dep.ThreadID
	}
	_, err = b.ex.exec(ctx, `
		INSERT INTO dependencies (blocked_id, blocker_id, type, created_at, created_by, metadata, thread_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dep.BlockedID, dep.BlockerID, string(dep.Type), dep.CreatedAt, dep.CreatedBy, metaJSON, threadID,
	)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate") || strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("sqlstore: dependency already exists: %w", store.ErrConflict)
		}
		return fmt.Errorf("sqlstore: add dependency: %w", err)
	}
	return nil
}

func (b *base) RemoveDependency(ctx context.Context, blockedID, blockerID string, depType model.DependencyType) error {
	res, err := b.ex.exec(ctx, `DELETE FROM dependencies WHERE blocked_id = ? AND blocker_id = ? AND type = ?`,
		blockedID, blockerID, string(depType))
	if err != nil {
		return fmt.Errorf("sqlstore: remove dependency: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanDependencies(rows *sql.Rows) ([]*model.Dependency, error) {
	defer rows.Close()
	var out []*model.Dependency
	for rows.Next() {
		var (
			d        model.Dependency
			typ      string
			metaJSON []byte
			threadID sql.NullString
		)
		if err := rows.Scan(&d.BlockedID, &d.BlockerID, &typ, &d.CreatedAt, &d.CreatedBy, &metaJSON, &threadID); err != nil {
			return nil, fmt.Errorf("sqlstore: scan dependency: %w", err)
		}
		d.Type = model.DependencyType(typ)
		if len(metaJSON) > 0 {
			var m map[string]any
			if err := json.Unmarshal(metaJSON, &m); err == nil {
				d.Metadata = m
			}
		}
		if threadID.Valid && threadID.String != "" {
			v := threadID.String
			d.ThreadID = &v
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (b *base) GetDependencies(ctx context.Context, elementID string) ([]*model.Dependency, error) {
	rows, err := b.ex.query(ctx, `
		SELECT blocked_id, blocker_id, type, created_at, created_by, metadata, thread_id
		FROM dependencies WHERE blocked_id = ?`, elementID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get dependencies: %w", err)
	}
	return scanDependencies(rows)
}

func (b *base) GetDependents(ctx context.Context, elementID string) ([]*model.Dependency, error) {
	rows, err := b.ex.query(ctx, `
		SELECT blocked_id, blocker_id, type, created_at, created_by, metadata, thread_id
		FROM dependencies WHERE blocker_id = ?`, elementID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get dependents: %w", err)
	}
	return scanDependencies(rows)
}

func (b *base) GetAllDependencies(ctx context.Context) ([]*model.Dependency, error) {
	rows, err := b.ex.query(ctx, `
		SELECT blocked_id, blocker_id, type, created_at, created_by, metadata, thread_id
		FROM dependencies`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get all dependencies: %w", err)
	}
	return scanDependencies(rows)
}

func (b *base) UpdateDependencyMetadata(ctx context.Context, blockedID, blockerID string, depType model.DependencyType, metadata map[string]any) error {
	metaJSON, err := model.EncodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("sqlstore: encode dependency metadata: %w", err)
	}
	res, err := b.ex.exec(ctx, `UPDATE dependencies SET metadata = ? WHERE blocked_id = ? AND blocker_id = ? AND type = ?`,
		metaJSON, blockedID, blockerID, string(depType))
	if err != nil {
		return fmt.Errorf("sqlstore: update dependency metadata: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (b *base) GetDependencyCounts(ctx context.Context, elementIDs []string) (map[string]*store.DependencyCounts, error) {
	out := make(map[string]*store.DependencyCounts, len(elementIDs))
	for _, id := range elementIDs {
		out[id] = &store.DependencyCounts{}
	}
	if len(elementIDs) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(elementIDs))
	args := make([]any, len(elementIDs))
	for i, id := range elementIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	rows, err := b.ex.query(ctx, fmt.Sprintf(`
		SELECT blocked_id, blocker_id, type FROM dependencies
		WHERE blocked_id IN (%s) OR blocker_id IN (%s)`, inClause, inClause),
		append(append([]any{}, args...), args...)...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get dependency counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var blockedID, blockerID, typ string
		if err := rows.Scan(&blockedID, &blockerID, &typ); err != nil {
			return nil, fmt.Errorf("sqlstore: scan dependency count row: %w", err)
		}
		if c, ok := out[blockedID]; ok {
			switch model.DependencyType(typ) {
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
		if c, ok := out[blockerID]; ok {
			switch model.DependencyType(typ) {
			case model.DepBlocks:
				c.Blocked++
			case model.DepParentChild:
				c.ParentLinks++
			}
		}
	}
	return out, rows.Err()
}
