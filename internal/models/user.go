package models

import "time"

// DefaultAvatar is assigned to accounts that never picked one.
const DefaultAvatar = "👤"

// User represents a user account in the system.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose this to the client
	Avatar       string     `json:"avatar"`
	Bio          string     `json:"bio"`
	BirthDate    *time.Time `json:"birthDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// PublicUser is the user record with the password hash removed.
type PublicUser struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Avatar    string     `json:"avatar"`
	Bio       string     `json:"bio"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Public returns the view of u that is safe to send to clients.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Avatar:    u.Avatar,
		Bio:       u.Bio,
		BirthDate: u.BirthDate,
		CreatedAt: u.CreatedAt,
	}
}
