package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

func (b *base) UpsertBlockedCacheRow(ctx context.Context, row *model.BlockedCacheRow) error {
	_, err := b.ex.exec(ctx, `
		INSERT INTO blocked_cache (element_id, blocked_by, blocking_type, reason, previous_status)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE blocked_by = VALUES(blocked_by), blocking_type = VALUES(blocking_type),
			reason = VALUES(reason), previous_status = VALUES(previous_status)`,
		row.ElementID, row.BlockedBy, string(row.BlockingType), row.Reason, string(row.PreviousStatus),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upsert blocked cache row: %w", err)
	}
	return nil
}

func (b *base) DeleteBlockedCacheRow(ctx context.Context, elementID string) error {
	_, err := b.ex.exec(ctx, `DELETE FROM blocked_cache WHERE element_id = ?`, elementID)
	if err != nil {
		return fmt.Errorf("sqlstore: delete blocked cache row: %w", err)
	}
	return nil
}

func (b *base) GetBlockedCacheRow(ctx context.Context, elementID string) (*model.BlockedCacheRow, error) {
	var row model.BlockedCacheRow
	var blockingType, prevStatus string
	err := b.ex.queryRow(ctx, `SELECT element_id, blocked_by, blocking_type, reason, previous_status FROM blocked_cache WHERE element_id = ?`, elementID).
		Scan(&row.ElementID, &row.BlockedBy, &blockingType, &row.Reason, &prevStatus)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get blocked cache row: %w", err)
	}
	row.BlockingType = model.DependencyType(blockingType)
	row.PreviousStatus = model.Status(prevStatus)
	return &row, nil
}

func (b *base) ListBlockedCacheRows(ctx context.Context) ([]*model.BlockedCacheRow, error) {
	rows, err := b.ex.query(ctx, `SELECT element_id, blocked_by, blocking_type, reason, previous_status FROM blocked_cache`)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list blocked cache rows: %w", err)
	}
	defer rows.Close()

	var out []*model.BlockedCacheRow
	for rows.Next() {
		var row model.BlockedCacheRow
		var blockingType, prevStatus string
		if err := rows.Scan(&row.ElementID, &row.BlockedBy, &blockingType, &row.Reason, &prevStatus); err != nil {
			return nil, fmt.Errorf("sqlstore: scan blocked cache row: %w", err)
		}
		row.BlockingType = model.DependencyType(blockingType)
		row.PreviousStatus = model.Status(prevStatus)
		out = append(out, &row)
	}
	return out, rows.Err()
}

func (b *base) TruncateBlockedCache(ctx context.Context) error {
	_, err := b.ex.exec(ctx, `DELETE FROM blocked_cache`)
	if err != nil {
		return fmt.Errorf("sqlstore: truncate blocked cache: %w", err)
	}
	return nil
}

func (b *base) SetConfig(ctx context.Context, key, value string) error {
	_, err := b.ex.exec(ctx, `
		INSERT INTO config (` + "`key`" + `, ` + "`value`" + `) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE ` + "`value`" + ` = VALUES(` + "`value`" + `)`, key, value)
	if err != nil {
		return fmt.Errorf("sqlstore: set config: %w", err)
	}
	return nil
}

func (b *base) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := b.ex.queryRow(ctx, "SELECT `value` FROM config WHERE `key` = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlstore: get config: %w", err)
	}
	return value, true, nil
}
