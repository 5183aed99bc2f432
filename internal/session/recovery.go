package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	// ErrRecoveryDisabled is returned when legacy profile recovery is off.
	ErrRecoveryDisabled = errors.New("legacy profile recovery is disabled")

	// ErrAuthoritativeDirectory is returned when recovery is pointed at a
	// server-backed directory, which must never receive synthesized users.
	ErrAuthoritativeDirectory = errors.New("profile recovery refuses an authoritative directory")
)

// fallbackName is used when no authored item names its author.
const fallbackName = "Пользователь"

// Recovery rebuilds lost local user records from authored content. Recovered
// records have no password; this is legacy local-only behavior gated by the
// LEGACY_PROFILE_RECOVERY flag.
type Recovery struct {
	client  *Client
	dir     Directory
	enabled bool
	now     func() time.Time
}

// NewRecovery creates a Recovery. It does nothing unless enabled.
func NewRecovery(client *Client, dir Directory, enabled bool) *Recovery {
	return &Recovery{client: client, dir: dir, enabled: enabled, now: time.Now}
}

func (r *Recovery) check() error {
	if !r.enabled {
		return ErrRecoveryDisabled
	}
	if r.dir.Authoritative() {
		return ErrAuthoritativeDirectory
	}
	return nil
}

// Recover repairs the record of the cached current user. An existing record
// refreshes the cached user; a missing one is synthesized when authored
// content carries the user's email. It reports whether the cached user is
// now backed by a record.
func (r *Recovery) Recover(ctx context.Context) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}

	current, err := r.client.CurrentUser(ctx)
	if err != nil || current == nil || current.Email == "" {
		return false, err
	}

	users, err := r.dir.Users(ctx)
	if err != nil {
		return false, err
	}
	for _, u := range users {
		if u.Email == current.Email {
			return true, r.client.replaceCachedUser(ctx, u.Public())
		}
	}

	items, err := r.dir.AuthoredItems(ctx)
	if err != nil {
		return false, err
	}
	now := r.now()
	authored := byAuthor(items, now)[current.Email]
	if len(authored) == 0 {
		return false, nil
	}

	id := current.ID
	if id == "" {
		id = uuid.New().String()
	}
	user := newLocalUser(id, authorName(authored, current.Name), current.Email, now)
	user.Recovered = true
	if current.Avatar != "" {
		user.Avatar = current.Avatar
	}
	user.Bio = current.Bio
	if current.BirthDate != nil {
		user.BirthDate = current.BirthDate.Format(time.DateOnly)
	}

	if err := r.dir.AddUser(ctx, user); err != nil {
		return false, err
	}
	log.Info().Str("email", user.Email).Int("items", len(authored)).Msg("Recovered local profile from authored content")

	cached := *current
	cached.ID = id
	cached.Name = user.Name
	cached.Avatar = user.Avatar
	return true, r.client.replaceCachedUser(ctx, cached)
}

// RecoverAll synthesizes a record for every author email that has none and
// returns how many were created.
func (r *Recovery) RecoverAll(ctx context.Context) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}

	users, err := r.dir.Users(ctx)
	if err != nil {
		return 0, err
	}
	known := make(map[string]bool, len(users))
	for _, u := range users {
		known[u.Email] = true
	}

	items, err := r.dir.AuthoredItems(ctx)
	if err != nil {
		return 0, err
	}
	now := r.now()
	grouped := byAuthor(items, now)

	emails := make([]string, 0, len(grouped))
	for email := range grouped {
		if !known[email] {
			emails = append(emails, email)
		}
	}
	sort.Strings(emails)

	recovered := 0
	for _, email := range emails {
		user := newLocalUser(uuid.New().String(), authorName(grouped[email], ""), email, now)
		user.Recovered = true
		if err := r.dir.AddUser(ctx, user); err != nil {
			return recovered, err
		}
		recovered++
	}

	if recovered > 0 {
		log.Info().Int("recovered", recovered).Msg("Recovered local profiles")
	}
	return recovered, nil
}

// byAuthor groups items by author email, most recent first. Items whose
// date cannot be read keep their order after the dated ones, so articles
// come before forum posts.
func byAuthor(items []AuthoredItem, now time.Time) map[string][]AuthoredItem {
	type dated struct {
		item AuthoredItem
		at   time.Time
		ok   bool
	}
	groups := make(map[string][]dated)
	for _, item := range items {
		if item.AuthorEmail == "" {
			continue
		}
		at, ok := parseRuDate(item.Date, now)
		groups[item.AuthorEmail] = append(groups[item.AuthorEmail], dated{item: item, at: at, ok: ok})
	}

	grouped := make(map[string][]AuthoredItem, len(groups))
	for email, list := range groups {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].ok != list[j].ok {
				return list[i].ok
			}
			return list[i].ok && list[i].at.After(list[j].at)
		})
		out := make([]AuthoredItem, len(list))
		for i, d := range list {
			out[i] = d.item
		}
		grouped[email] = out
	}
	return grouped
}

// authorName picks the author name of the most recent item that has one.
func authorName(items []AuthoredItem, fallback string) string {
	for _, item := range items {
		if name := strings.TrimSpace(item.Author); name != "" {
			return name
		}
	}
	if strings.TrimSpace(fallback) != "" {
		return fallback
	}
	return fallbackName
}
