package repo

import (
	"context"
	"database/sql"

	"veribond/internal/domain"
)

const eventColumns = `id, ts, type, entity_kind, COALESCE(entity_id,''), actor_id, COALESCE(payload_json,'')`

// EventFilters narrows LatestEvents. Empty fields match everything.
type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	// Before returns events with id < Before, newest first.
	Before int64
	Limit  int
}

// LatestEvents pages backwards through the log.
func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events
		WHERE (?='' OR type=?) AND (?='' OR entity_kind=?) AND (?='' OR entity_id=?) AND (?<=0 OR id<?)
		ORDER BY id DESC LIMIT ?`,
		f.Type, f.Type, f.EntityKind, f.EntityKind, f.EntityID, f.EntityID, f.Before, f.Before, f.Limit)
}

// EventsAfter replays the log forward from cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE id>? ORDER BY id LIMIT ?`, cursor, limit)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
