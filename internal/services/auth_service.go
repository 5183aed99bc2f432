package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/oops"

	"github.com/manru/manru-be/internal/auth"
	"github.com/manru/manru-be/internal/metrics"
	"github.com/manru/manru-be/internal/models"
	"github.com/manru/manru-be/internal/store"
)

// AuthServiceProvider defines the interface for account and session services.
type AuthServiceProvider interface {
	Register(ctx context.Context, name, email, password string) (models.PublicUser, string, error)
	Login(ctx context.Context, email, password string) (models.PublicUser, string, error)
	DeleteAccount(ctx context.Context, id, requesterID string) error
	GetUser(ctx context.Context, id string) (models.PublicUser, error)
	UpdateProfile(ctx context.Context, id, requesterID string, update ProfileUpdate) (models.PublicUser, error)
	ChangePassword(ctx context.Context, id, requesterID, currentPassword, newPassword string) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, error)
}

// ProfileUpdate lists the profile fields to change. Nil fields are left alone.
type ProfileUpdate struct {
	Name      *string
	Bio       *string
	Avatar    *string
	BirthDate *time.Time
}

// AuthService provides registration, login and account management.
type AuthService struct {
	users  store.UserStore
	hasher auth.PasswordHasher
	tokens TokenIssuer
	events EventServiceProvider
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService. events may be nil.
func NewAuthService(users store.UserStore, hasher auth.PasswordHasher, tokens TokenIssuer, events EventServiceProvider) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		events: events,
		now:    time.Now,
	}
}

// Register creates an account and returns it with a fresh session token.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (_ models.PublicUser, _ string, err error) {
	defer func() { s.observe("register", err) }()

	if name, err = validateName(name); err != nil {
		return models.PublicUser{}, "", err
	}
	if email, err = validateEmail(email); err != nil {
		return models.PublicUser{}, "", err
	}
	if err = validatePassword(password); err != nil {
		return models.PublicUser{}, "", err
	}

	_, err = s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return models.PublicUser{}, "", oops.Code("AUTH_DUPLICATE_EMAIL").With("email", email).Wrap(ErrDuplicateEmail)
	case !errors.Is(err, store.ErrNotFound):
		log.Error().Err(err).Str("email", email).Str("operation", "register").Msg("Failed to look up email")
		return models.PublicUser{}, "", oops.Code("AUTH_REGISTER_FAILED").With("operation", "find user by email").Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.PublicUser{}, "", oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Avatar:       models.DefaultAvatar,
		Bio:          "",
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}
	if err = s.users.Insert(ctx, user); err != nil {
		// A concurrent registration can win between the lookup and the insert;
		// the unique constraint reports it as a duplicate.
		if !errors.Is(err, store.ErrDuplicateEmail) {
			log.Error().Err(err).Str("email", email).Str("operation", "register").Msg("Failed to insert user")
		}
		return models.PublicUser{}, "", oops.Code("AUTH_REGISTER_FAILED").With("operation", "insert user").Wrap(err)
	}

	token, err := s.issue(user)
	if err != nil {
		return models.PublicUser{}, "", err
	}

	s.record(ctx, models.EventUserRegister, "info", fmt.Sprintf("Account %s registered.", user.Email), &user.ID)
	log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
	return user.Public(), token, nil
}

// Login verifies credentials and returns the account with a fresh session
// token. An unknown email and a wrong password fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (_ models.PublicUser, _ string, err error) {
	defer func() { s.observe("login", err) }()

	email = strings.TrimSpace(email)
	user, lookupErr := s.users.FindByEmail(ctx, email)

	var (
		targetHash string
		exists     bool
	)
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
		exists = true
	case errors.Is(lookupErr, store.ErrNotFound):
		// Unknown users still pay for a bcrypt comparison.
		targetHash = s.dummyPasswordHash()
	default:
		log.Error().Err(lookupErr).Str("email", email).Str("operation", "login").Msg("Failed to look up user")
		return models.PublicUser{}, "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "find user by email").Wrap(lookupErr)
	}

	valid := s.hasher.Verify(password, targetHash)
	if !exists || !valid {
		var userID *string
		if exists {
			userID = &user.ID
		}
		log.Warn().Str("email", email).Msg("Failed authentication attempt")
		s.record(ctx, models.EventUserLoginFail, "warn", fmt.Sprintf("Failed login for %s.", email), userID)
		return models.PublicUser{}, "", oops.Code("AUTH_INVALID_CREDENTIALS").With("email", email).Wrap(ErrInvalidCredentials)
	}

	token, err := s.issue(user)
	if err != nil {
		return models.PublicUser{}, "", err
	}

	s.record(ctx, models.EventUserLogin, "info", fmt.Sprintf("Account %s logged in.", user.Email), &user.ID)
	return user.Public(), token, nil
}

// DeleteAccount removes the account id. requesterID must come from a
// verified token and match id.
func (s *AuthService) DeleteAccount(ctx context.Context, id, requesterID string) (err error) {
	defer func() { s.observe("delete_account", err) }()

	if err = authorize(id, requesterID, "delete account"); err != nil {
		return err
	}

	if err = s.users.Delete(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Str("user_id", id).Str("operation", "delete account").Msg("Failed to delete user")
		}
		return oops.Code("AUTH_DELETE_FAILED").With("user_id", id).Wrap(err)
	}

	s.record(ctx, models.EventUserDelete, "info", "Account deleted.", &id)
	log.Info().Str("user_id", id).Msg("User deleted")
	return nil
}

// GetUser returns the public view of one account.
func (s *AuthService) GetUser(ctx context.Context, id string) (_ models.PublicUser, err error) {
	defer func() { s.observe("get_user", err) }()

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return models.PublicUser{}, oops.Code("AUTH_GET_USER_FAILED").With("user_id", id).Wrap(err)
	}
	return user.Public(), nil
}

// UpdateProfile applies the provided profile fields of account id.
func (s *AuthService) UpdateProfile(ctx context.Context, id, requesterID string, update ProfileUpdate) (_ models.PublicUser, err error) {
	defer func() { s.observe("update_profile", err) }()

	if err = authorize(id, requesterID, "update profile"); err != nil {
		return models.PublicUser{}, err
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return models.PublicUser{}, oops.Code("AUTH_UPDATE_FAILED").With("user_id", id).Wrap(err)
	}

	if update.Name != nil {
		name, err := validateName(*update.Name)
		if err != nil {
			return models.PublicUser{}, err
		}
		user.Name = name
	}
	if update.Bio != nil {
		user.Bio = *update.Bio
	}
	if update.Avatar != nil {
		user.Avatar = *update.Avatar
		if strings.TrimSpace(user.Avatar) == "" {
			user.Avatar = models.DefaultAvatar
		}
	}
	if update.BirthDate != nil {
		d := update.BirthDate.UTC().Truncate(24 * time.Hour)
		user.BirthDate = &d
	}

	if err = s.users.Update(ctx, user); err != nil {
		log.Error().Err(err).Str("user_id", id).Str("operation", "update profile").Msg("Failed to update user")
		return models.PublicUser{}, oops.Code("AUTH_UPDATE_FAILED").With("user_id", id).Wrap(err)
	}

	s.record(ctx, models.EventUserUpdate, "info", "Profile updated.", &id)
	return user.Public(), nil
}

// ChangePassword replaces the password of account id after checking the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, id, requesterID, currentPassword, newPassword string) (err error) {
	defer func() { s.observe("change_password", err) }()

	if err = authorize(id, requesterID, "change password"); err != nil {
		return err
	}
	if err = validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_FAILED").With("user_id", id).Wrap(err)
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		log.Warn().Str("user_id", id).Msg("Password change with wrong current password")
		return oops.Code("AUTH_INVALID_CREDENTIALS").With("user_id", id).Wrap(ErrInvalidCredentials)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	user.PasswordHash = hash
	if err = s.users.Update(ctx, user); err != nil {
		log.Error().Err(err).Str("user_id", id).Str("operation", "change password").Msg("Failed to update user")
		return oops.Code("AUTH_PASSWORD_FAILED").With("user_id", id).Wrap(err)
	}

	s.record(ctx, models.EventUserPassword, "info", "Password changed.", &id)
	return nil
}

func authorize(id, requesterID, operation string) error {
	if requesterID == "" || requesterID != id {
		return oops.Code("AUTH_UNAUTHORIZED").
			With("operation", operation).
			With("user_id", id).
			With("requester_id", requesterID).
			Wrap(ErrUnauthorized)
	}
	return nil
}

func (s *AuthService) issue(user models.User) (string, error) {
	token, err := s.tokens.Issue(auth.Identity{ID: user.ID, Email: user.Email, Name: user.Name})
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to generate JWT")
		return "", oops.Code("AUTH_TOKEN_FAILED").With("user_id", user.ID).Wrap(err)
	}
	return token, nil
}

// dummyPasswordHash returns a real hash of a throwaway password so a lookup
// miss costs as much as a wrong password.
func (s *AuthService) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.New().String())
		if err != nil {
			log.Error().Err(err).Msg("Failed to compute dummy password hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// record stores an account event. Failures are logged and otherwise ignored.
func (s *AuthService) record(ctx context.Context, eventType, level, message string, userID *string) {
	if s.events == nil {
		return
	}
	if err := s.events.CreateEvent(ctx, eventType, level, message, userID); err != nil {
		log.Warn().Err(err).Str("type", eventType).Msg("Failed to record account event")
	}
}

func (s *AuthService) observe(operation string, err error) {
	metrics.RecordAuthRequest(operation, Outcome(err))
}

// Outcome maps an auth service result onto a metrics outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrValidation):
		return metrics.OutcomeValidation
	case errors.Is(err, ErrDuplicateEmail):
		return metrics.OutcomeDuplicateEmail
	case errors.Is(err, ErrInvalidCredentials):
		return metrics.OutcomeInvalidCredentials
	case errors.Is(err, ErrUnauthorized):
		return metrics.OutcomeUnauthorized
	case errors.Is(err, ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeError
	}
}
