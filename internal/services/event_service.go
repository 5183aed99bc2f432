package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/manru/manru-be/internal/models"
	"github.com/manru/manru-be/internal/store"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error
	GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error)
	PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error)
}

// EventService records account activity in the events table.
type EventService struct {
	store store.EventStore
	now   func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(s store.EventStore) *EventService {
	return &EventService{store: s, now: time.Now}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, userID *string) error {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Level:     level,
		Message:   message,
		UserID:    userID,
		CreatedAt: s.now().UTC(),
	}
	return s.store.InsertEvent(ctx, event)
}

// GetRecentEvents retrieves the most recent events of one user.
func (s *EventService) GetRecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	return s.store.RecentEvents(ctx, userID, limit)
}

// PruneEvents removes events older than the retention window.
func (s *EventService) PruneEvents(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, oops.Code("EVENT_RETENTION_INVALID").With("retention", olderThan.String()).Errorf("retention must be positive")
	}
	return s.store.PruneEvents(ctx, s.now().Add(-olderThan))
}
