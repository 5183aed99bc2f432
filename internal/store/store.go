// Package store persists user records and account events in a SQL database.
// SQLite and PostgreSQL share one implementation; dialect differences are
// limited to placeholders and error classification.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/manru/manru-be/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an insert or update would break
	// the unique email constraint.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrUnavailable is returned when the backing database cannot be reached.
	ErrUnavailable = errors.New("store unavailable")
)

// UserStore is the credential store.
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Insert(ctx context.Context, user models.User) error
	Update(ctx context.Context, user models.User) error
	Delete(ctx context.Context, id string) error
}

// EventStore persists account events.
type EventStore interface {
	InsertEvent(ctx context.Context, event models.Event) error
	RecentEvents(ctx context.Context, userID string, limit int) ([]models.Event, error)
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}
