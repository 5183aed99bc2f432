package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/manru/manru-be/internal/models"
)

// Keys of the local-only content directory.
const (
	KeyLocalUsers    = "man_ru_users"
	KeyLocalArticles = "man_ru_articles"
	KeyLocalPosts    = "man_ru_forum_posts"
)

// FlexID is an identifier written either as a JSON string or a JSON number.
type FlexID string

func (id *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

// AuthoredItem is an article or forum post with its author metadata. Date is
// the ru-RU display date the item was stored with.
type AuthoredItem struct {
	ID          FlexID `json:"id"`
	Author      string `json:"author"`
	AuthorEmail string `json:"authorEmail"`
	Date        string `json:"date"`
}

// LocalUser is a user record of the local directory. Recovered records carry
// an empty password. BirthDate is "" or YYYY-MM-DD.
type LocalUser struct {
	ID               FlexID            `json:"id"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Password         string            `json:"password"`
	Avatar           string            `json:"avatar"`
	Bio              string            `json:"bio"`
	BirthDate        string            `json:"birthDate"`
	RegistrationDate string            `json:"registrationDate"`
	Followers        []json.RawMessage `json:"followers"`
	Following        []json.RawMessage `json:"following"`
	Articles         []json.RawMessage `json:"articles"`
	ForumPosts       []json.RawMessage `json:"forumPosts"`
	Recovered        bool              `json:"recovered,omitempty"`
}

// newLocalUser returns a record in the shape the site writes for new users.
func newLocalUser(id, name, email string, now time.Time) LocalUser {
	return LocalUser{
		ID:               FlexID(id),
		Name:             name,
		Email:            email,
		Avatar:           models.DefaultAvatar,
		RegistrationDate: now.Format(ruNumericDate),
		Followers:        []json.RawMessage{},
		Following:        []json.RawMessage{},
		Articles:         []json.RawMessage{},
		ForumPosts:       []json.RawMessage{},
	}
}

// Public converts the record into the cached user view. Unparsable dates
// are left unset.
func (u LocalUser) Public() models.PublicUser {
	pub := models.PublicUser{
		ID:     string(u.ID),
		Name:   u.Name,
		Email:  u.Email,
		Avatar: u.Avatar,
		Bio:    u.Bio,
	}
	if pub.Avatar == "" {
		pub.Avatar = models.DefaultAvatar
	}
	if raw := strings.TrimSpace(u.BirthDate); raw != "" {
		if t, err := time.Parse(time.DateOnly, raw); err == nil {
			pub.BirthDate = &t
		} else if t, err := time.Parse(time.RFC3339, raw); err == nil {
			pub.BirthDate = &t
		}
	}
	if t, ok := parseRuDate(u.RegistrationDate, time.Now()); ok {
		pub.CreatedAt = t
	}
	return pub
}

// Directory is a user list plus the content that references its users.
type Directory interface {
	// Authoritative reports whether the directory is backed by the server.
	Authoritative() bool
	Users(ctx context.Context) ([]LocalUser, error)
	AddUser(ctx context.Context, user LocalUser) error
	AuthoredItems(ctx context.Context) ([]AuthoredItem, error)
}

// StorageDirectory is the local-only directory kept as JSON arrays in a
// Storage. Existing user records are rewritten byte for byte, so fields
// this package does not model survive an AddUser.
type StorageDirectory struct {
	storage Storage
	mu      sync.Mutex
}

// NewStorageDirectory creates a directory over storage.
func NewStorageDirectory(storage Storage) *StorageDirectory {
	return &StorageDirectory{storage: storage}
}

// Authoritative is always false: nothing here is backed by the server.
func (d *StorageDirectory) Authoritative() bool { return false }

func (d *StorageDirectory) Users(ctx context.Context) ([]LocalUser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var records []json.RawMessage
	if err := readList(ctx, d.storage, KeyLocalUsers, &records); err != nil {
		return nil, err
	}
	users := make([]LocalUser, 0, len(records))
	for i, raw := range records {
		var u LocalUser
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("decode %s[%d]: %w", KeyLocalUsers, i, err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (d *StorageDirectory) AddUser(ctx context.Context, user LocalUser) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var records []json.RawMessage
	if err := readList(ctx, d.storage, KeyLocalUsers, &records); err != nil {
		return err
	}
	for i, raw := range records {
		var existing struct {
			Email string `json:"email"`
		}
		if err := json.Unmarshal(raw, &existing); err != nil {
			return fmt.Errorf("decode %s[%d]: %w", KeyLocalUsers, i, err)
		}
		if existing.Email == user.Email {
			return fmt.Errorf("local user %s already exists", user.Email)
		}
	}

	record, err := json.Marshal(user)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(append(records, record))
	if err != nil {
		return err
	}
	return d.storage.Set(ctx, KeyLocalUsers, raw)
}

// AuthoredItems returns articles followed by forum posts.
func (d *StorageDirectory) AuthoredItems(ctx context.Context) ([]AuthoredItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var articles, posts []AuthoredItem
	if err := readList(ctx, d.storage, KeyLocalArticles, &articles); err != nil {
		return nil, err
	}
	if err := readList(ctx, d.storage, KeyLocalPosts, &posts); err != nil {
		return nil, err
	}
	return append(articles, posts...), nil
}

func readList(ctx context.Context, storage Storage, key string, dst any) error {
	raw, err := storage.Get(ctx, key)
	if err != nil || raw == nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
