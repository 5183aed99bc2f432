package store

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/manru/manru-be/internal/models"
)

// InsertEvent logs a new event to the database.
func (s *SQLStore) InsertEvent(ctx context.Context, event models.Event) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		"INSERT INTO events (id, type, level, message, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		event.ID, event.Type, event.Level, event.Message, event.UserID, event.CreatedAt.UTC(),
	)
	if err != nil {
		return oops.Code("EVENT_INSERT_FAILED").With("type", event.Type).Wrap(classify(err))
	}
	return nil
}

// RecentEvents retrieves the most recent events of a user.
func (s *SQLStore) RecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(
		"SELECT id, type, level, message, user_id, created_at FROM events WHERE user_id = ? ORDER BY created_at DESC LIMIT ?"),
		userID, limit,
	)
	if err != nil {
		return nil, oops.Code("EVENT_QUERY_FAILED").With("user_id", userID).Wrap(classify(err))
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &event.UserID, &event.CreatedAt); err != nil {
			return nil, oops.Code("EVENT_SCAN_FAILED").Wrap(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("EVENT_QUERY_FAILED").With("user_id", userID).Wrap(classify(err))
	}
	return events, nil
}

// PruneEvents deletes events created before the given time and returns how
// many were removed.
func (s *SQLStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind("DELETE FROM events WHERE created_at < ?"), before.UTC())
	if err != nil {
		return 0, oops.Code("EVENT_PRUNE_FAILED").Wrap(classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("EVENT_PRUNE_FAILED").Wrap(err)
	}
	return n, nil
}
