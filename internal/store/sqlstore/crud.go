package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stoneforge-ai/stoneforge/internal/model"
	"github.com/stoneforge-ai/stoneforge/internal/store"
)

func (b *base) CreateElement(ctx context.Context, e *model.Element) error {
	payloadJSON, err := model.EncodePayload(e.Payload)
	if err != nil {
		return fmt.Errorf("sqlstore: encode payload: %w", err)
	}
	metadataJSON, err := model.EncodeMetadata(e.Metadata)
	if err != nil {
		return fmt.Errorf("sqlstore: encode metadata: %w", err)
	}
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("sqlstore: encode tags: %w", err)
	}

	_, err = b.ex.exec(ctx, `
		INSERT INTO elements (id, type, status, priority, assignee, created_at, updated_at, created_by, deleted_at, tags, metadata, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), model.ProjectedStatus(e.Payload), model.ProjectedPriority(e.Payload), model.ProjectedAssignee(e.Payload),
		e.CreatedAt, e.UpdatedAt, e.CreatedBy, e.DeletedAt, tagsJSON, metadataJSON, payloadJSON,
	)
	if err != nil {
		return wrapWriteError("create element", err)
	}
	return nil
}

func (b *base) GetElement(ctx context.Context, id string) (*model.Element, error) {
	row := b.ex.queryRow(ctx, `
		SELECT id, type, created_at, updated_at, created_by, deleted_at, tags, metadata, data
		FROM elements WHERE id = ?`, id)
	return scanElement(row)
}

func scanElement(row *sql.Row) (*model.Element, error) {
	var (
		e                     model.Element
		typ                   string
		tagsJSON, metaJSON    []byte
		dataJSON              []byte
	)
	if err := row.Scan(&e.ID, &typ, &e.CreatedAt, &e.UpdatedAt, &e.CreatedBy, &e.DeletedAt, &tagsJSON, &metaJSON, &dataJSON); err != nil {
		return nil, store.ErrNotFound
	}
	e.Type = model.ElementType(typ)
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &e.Tags); err != nil {
			return nil, fmt.Errorf("sqlstore: decode tags: %w", err)
		}
	}
	meta, err := model.DecodeMetadata(metaJSON)
	if err != nil {
		return nil, err
	}
	e.Metadata = meta
	payload, err := model.DecodePayload(e.Type, dataJSON)
	if err != nil {
		return nil, err
	}
	e.Payload = payload
	return &e, nil
}

func (b *base) UpdateElement(ctx context.Context, id string, mutate func(e *model.Element) error) (*model.Element, error) {
	e, err := b.GetElement(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Payload != nil && e.Payload.Immutable() {
		return nil, fmt.Errorf("sqlstore: element %s is immutable: %w", id, store.ErrConflict)
	}
	if err := mutate(e); err != nil {
		return nil, err
	}

	payloadJSON, err := model.EncodePayload(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode payload: %w", err)
	}
	metadataJSON, err := model.EncodeMetadata(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode metadata: %w", err)
	}
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode tags: %w", err)
	}

	_, err = b.ex.exec(ctx, `
		UPDATE elements SET status = ?, priority = ?, assignee = ?, updated_at = ?, deleted_at = ?, tags = ?, metadata = ?, data = ?
		WHERE id = ?`,
		model.ProjectedStatus(e.Payload), model.ProjectedPriority(e.Payload), model.ProjectedAssignee(e.Payload),
		e.UpdatedAt, e.DeletedAt, tagsJSON, metadataJSON, payloadJSON, id,
	)
	if err != nil {
		return nil, wrapWriteError("update element", err)
	}
	return e, nil
}

func (b *base) DeleteElement(ctx context.Context, id string, tombstone bool, when time.Time) error {
	if tombstone {
		_, err := b.ex.exec(ctx, `UPDATE elements SET deleted_at = ?, status = ? WHERE id = ?`, when, string(model.StatusTombstone), id)
		return wrapWriteError("tombstone element", err)
	}
	_, err := b.ex.exec(ctx, `DELETE FROM elements WHERE id = ?`, id)
	return wrapWriteError("delete element", err)
}

func (b *base) ElementExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := b.ex.queryRow(ctx, `SELECT 1 FROM elements WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlstore: element exists: %w", err)
	}
	return true, nil
}

func (b *base) ListElements(ctx context.Context, filter store.ElementFilter) ([]*model.Element, error) {
	query := `SELECT id, type, created_at, updated_at, created_by, deleted_at, tags, metadata, data FROM elements WHERE deleted_at IS NULL`
	var args []any

	if filter.Type != nil {
		query += " AND type = ?"
		args = append(args, string(*filter.Type))
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.Assignee != nil {
		query += " AND assignee = ?"
		args = append(args, *filter.Assignee)
	}
	if filter.CreatedBy != nil {
		query += " AND created_by = ?"
		args = append(args, *filter.CreatedBy)
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := b.ex.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list elements: %w", err)
	}
	defer rows.Close()

	var out []*model.Element
	for rows.Next() {
		var (
			e                  model.Element
			typ                string
			tagsJSON, metaJSON []byte
			dataJSON           []byte
		)
		if err := rows.Scan(&e.ID, &typ, &e.CreatedAt, &e.UpdatedAt, &e.CreatedBy, &e.DeletedAt, &tagsJSON, &metaJSON, &dataJSON); err != nil {
			return nil, fmt.Errorf("sqlstore: scan element: %w", err)
		}
		e.Type = model.ElementType(typ)
		if len(tagsJSON) > 0 {
			_ = json.Unmarshal(tagsJSON, &e.Tags)
		}
		meta, err := model.DecodeMetadata(metaJSON)
		if err != nil {
			return nil, err
		}
		e.Metadata = meta
		payload, err := model.DecodePayload(e.Type, dataJSON)
		if err != nil {
			return nil, err
		}
		e.Payload = payload
		if len(filter.Tags) > 0 && !containsAll(e.Tags, filter.Tags) {
			continue
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func containsAll(haystack, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}

func wrapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("sqlstore: %s: %w", op, err)
}
