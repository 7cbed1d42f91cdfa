package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stoneforge-ai/stoneforge/internal/model"
)

func (b *base) AppendEvent(ctx context.Context, e *model.Event, oldValue, newValue []byte) (int64, error) {
	res, err := b.ex.exec(ctx, `
		INSERT INTO events (element_id, event_type, actor, ts, old_value, new_value)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ElementID, string(e.EventType), e.Actor, e.Timestamp, nullableJSON(oldValue), nullableJSON(newValue),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: append event: %w", err)
	}
	return res.LastInsertId()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	defer rows.Close()
	var out []*model.Event
	for rows.Next() {
		var (
			ev                model.Event
			typ               string
			oldVal, newVal    sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.ElementID, &typ, &ev.Actor, &ev.Timestamp, &oldVal, &newVal); err != nil {
			return nil, fmt.Errorf("sqlstore: scan event: %w", err)
		}
		ev.EventType = model.EventType(typ)
		if oldVal.Valid {
			ev.OldValue = &oldVal.String
		}
		if newVal.Valid {
			ev.NewValue = &newVal.String
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (b *base) EventsForElement(ctx context.Context, elementID string, limit int) ([]*model.Event, error) {
	query := `SELECT id, element_id, event_type, actor, ts, old_value, new_value FROM events WHERE element_id = ? ORDER BY id DESC`
	args := []any{elementID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := b.ex.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: events for element: %w", err)
	}
	return scanEvents(rows)
}

func (b *base) EventsSince(ctx context.Context, sinceID int64, limit int) ([]*model.Event, error) {
	query := `SELECT id, element_id, event_type, actor, ts, old_value, new_value FROM events WHERE id > ? ORDER BY id ASC`
	args := []any{sinceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := b.ex.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: events since: %w", err)
	}
	return scanEvents(rows)
}
