package models

import "time"

// Event types recorded by the auth service.
const (
	EventUserRegister  = "user.register"
	EventUserLogin     = "user.login"
	EventUserLoginFail = "user.login.fail"
	EventUserUpdate    = "user.update"
	EventUserPassword  = "user.password"
	EventUserDelete    = "user.delete"
)

// Event represents a loggable account action.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`  // e.g., "user.register", "user.login.fail"
	Level     string    `json:"level"` // e.g., "info", "warn", "error"
	Message   string    `json:"message"`
	UserID    *string   `json:"userId,omitempty"` // Nullable for attempts against unknown accounts
	CreatedAt time.Time `json:"createdAt"`
}
