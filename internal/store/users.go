package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/manru/manru-be/internal/models"
)

// SQLStore implements UserStore and EventStore on database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// New creates a SQLStore for an open database.
func New(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

const userColumns = "id, name, email, password_hash, avatar, bio, birth_date, created_at"

// FindByID retrieves a single user by their ID.
func (s *SQLStore) FindByID(ctx context.Context, id string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, s.wrap(err, "find user by id").With("user_id", id).Wrap(classify(err))
	}
	return user, nil
}

// FindByEmail retrieves a single user by their email, including the password
// hash. The match is exact and case-sensitive.
func (s *SQLStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind("SELECT "+userColumns+" FROM users WHERE email = ?"), email)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, s.wrap(err, "find user by email").With("email", email).Wrap(classify(err))
	}
	return user, nil
}

// Insert stores a new user. A taken email yields ErrDuplicateEmail.
func (s *SQLStore) Insert(ctx context.Context, user models.User) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)"),
		user.ID, user.Name, user.Email, user.PasswordHash, user.Avatar, user.Bio,
		nullTime(user.BirthDate), user.CreatedAt.UTC(),
	)
	if err != nil {
		return s.wrap(err, "insert user").With("email", user.Email).Wrap(classify(err))
	}
	return nil
}

// Update overwrites the mutable fields of an existing user.
func (s *SQLStore) Update(ctx context.Context, user models.User) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		"UPDATE users SET name = ?, email = ?, password_hash = ?, avatar = ?, bio = ?, birth_date = ? WHERE id = ?"),
		user.Name, user.Email, user.PasswordHash, user.Avatar, user.Bio, nullTime(user.BirthDate), user.ID,
	)
	if err != nil {
		return s.wrap(err, "update user").With("user_id", user.ID).Wrap(classify(err))
	}
	return s.expectOne(res, "update user", user.ID)
}

// Delete removes a user from the database.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return s.wrap(err, "delete user").With("user_id", id).Wrap(classify(err))
	}
	return s.expectOne(res, "delete user", id)
}

func (s *SQLStore) expectOne(res sql.Result, operation, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return oops.Code("STORE_ROWS_AFFECTED").With("operation", operation).Wrap(err)
	}
	if n == 0 {
		return oops.Code("USER_NOT_FOUND").With("operation", operation).With("user_id", id).Wrap(ErrNotFound)
	}
	return nil
}

func (s *SQLStore) wrap(err error, operation string) oops.OopsErrorBuilder {
	code := "STORE_QUERY_FAILED"
	switch {
	case errors.Is(err, sql.ErrNoRows):
		code = "USER_NOT_FOUND"
	case isUniqueViolation(err):
		code = "USER_EMAIL_TAKEN"
	case isUnavailable(err):
		code = "STORE_UNAVAILABLE"
	}
	return oops.Code(code).With("operation", operation)
}

// classify maps driver errors onto the package sentinels, keeping the
// original error in the chain.
func classify(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case isUniqueViolation(err):
		return errors.Join(ErrDuplicateEmail, err)
	case isUnavailable(err):
		return errors.Join(ErrUnavailable, err)
	default:
		return err
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (models.User, error) {
	var (
		user      models.User
		birthDate sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&user.Avatar, &user.Bio, &birthDate, &user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}
	if birthDate.Valid {
		d := birthDate.Time
		user.BirthDate = &d
	}
	return user, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
