package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/manru/manru-be/internal/auth"
	"github.com/manru/manru-be/internal/models"
	"github.com/manru/manru-be/internal/services"
)

// UserHandler handles HTTP requests for registration, login and accounts.
type UserHandler struct {
	service services.AuthServiceProvider
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(service services.AuthServiceProvider) *UserHandler {
	return &UserHandler{service: service}
}

// AuthPayload defines the structure for login requests.
type AuthPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterPayload defines the structure for registration requests.
type RegisterPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdatePayload lists the profile fields a client may change.
type UpdatePayload struct {
	Name      *string `json:"name"`
	Bio       *string `json:"bio"`
	Avatar    *string `json:"avatar"`
	BirthDate *string `json:"birthDate"`
}

// PasswordPayload defines the structure for password change requests.
type PasswordPayload struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// SessionResponse is returned by register and login.
type SessionResponse struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	User models.PublicUser `json:"user"`
}

// SuccessResponse acknowledges an operation without a body.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// Register handles new user registration.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload RegisterPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, token, err := h.service.Register(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		log.Warn().Err(err).Str("email", payload.Email).Msg("Failed to register user")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{User: user, Token: token})
}

// Login handles user authentication and JWT generation.
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload AuthPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	user, token, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{User: user, Token: token})
}

// GetMe retrieves the currently authenticated user from the token.
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		Unauthorized(w, r)
		return
	}

	user, err := h.service.GetUser(r.Context(), claims.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", claims.UserID).Msg("User from token not found in DB")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Get handles retrieving a user by their ID.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Update handles updating a user's profile information.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var payload UpdatePayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	update := services.ProfileUpdate{
		Name:   payload.Name,
		Bio:    payload.Bio,
		Avatar: payload.Avatar,
	}
	if payload.BirthDate != nil && *payload.BirthDate != "" {
		birth, err := parseDate(*payload.BirthDate)
		if err != nil {
			writeError(w, &services.ValidationError{Field: "birthDate", Reason: "must be a YYYY-MM-DD date"})
			return
		}
		update.BirthDate = &birth
	}

	user, err := h.service.UpdateProfile(r.Context(), id, requesterID(r), update)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, UserResponse{User: user})
}

// Delete handles the permanent deletion of a user account.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteAccount(r.Context(), id, requesterID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// ChangePassword handles changing a user's password.
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var payload PasswordPayload
	if !decodeJSON(w, r, &payload) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), id, requesterID(r), payload.CurrentPassword, payload.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// requesterID is the user id of the verified token, or "" when the request
// carries none.
func requesterID(r *http.Request) string {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.UserID
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
