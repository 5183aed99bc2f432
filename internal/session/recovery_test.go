package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manru/manru-be/internal/models"
)

type serverDirectory struct {
	*StorageDirectory
}

func (serverDirectory) Authoritative() bool { return true }

var recoveryNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func putJSON(t *testing.T, s Storage, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), key, raw))
}

func putRaw(t *testing.T, s Storage, key, raw string) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), key, []byte(raw)))
}

func newRecoveryFixture(t *testing.T, cached *models.PublicUser) (*Recovery, *Client, *StorageDirectory) {
	t.Helper()
	s := NewMemoryStorage()
	seed(t, s, "", "", cached)

	c := NewClient(&fakeAPI{}, s)
	t.Cleanup(c.Close)
	dir := NewStorageDirectory(s)
	r := NewRecovery(c, dir, true)
	r.now = func() time.Time { return recoveryNow }
	return r, c, dir
}

func TestRecovery_Guards(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	c := NewClient(&fakeAPI{}, s)
	defer c.Close()
	dir := NewStorageDirectory(s)

	_, err := NewRecovery(c, dir, false).Recover(ctx)
	assert.ErrorIs(t, err, ErrRecoveryDisabled)
	_, err = NewRecovery(c, dir, false).RecoverAll(ctx)
	assert.ErrorIs(t, err, ErrRecoveryDisabled)

	_, err = NewRecovery(c, serverDirectory{dir}, true).Recover(ctx)
	assert.ErrorIs(t, err, ErrAuthoritativeDirectory)
	_, err = NewRecovery(c, serverDirectory{dir}, true).RecoverAll(ctx)
	assert.ErrorIs(t, err, ErrAuthoritativeDirectory)
}

func TestRecovery_SynthesizesFromAuthoredContent(t *testing.T) {
	ctx := context.Background()
	birth := time.Date(1990, time.May, 17, 0, 0, 0, 0, time.UTC)
	cached := &models.PublicUser{ID: "u1", Name: "Ivan", Email: "ivan@example.com", Bio: "cyclist", BirthDate: &birth}
	r, c, dir := newRecoveryFixture(t, cached)

	putJSON(t, dir.storage, KeyLocalArticles, []AuthoredItem{
		{ID: "1", Author: "Ivan Old", AuthorEmail: "ivan@example.com", Date: "27.02.2026"},
		{ID: "2", Author: "Olga", AuthorEmail: "olga@example.com", Date: "01.03.2026"},
	})
	putJSON(t, dir.storage, KeyLocalPosts, []AuthoredItem{
		{ID: "3", Author: "Ivan Petrov", AuthorEmail: "ivan@example.com", Date: "01.03.2026, 11:00:00"},
	})

	ok, err := r.Recover(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	users, err := dir.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, FlexID("u1"), users[0].ID)
	assert.Equal(t, "Ivan Petrov", users[0].Name, "name comes from the most recent item")
	assert.Equal(t, "cyclist", users[0].Bio)
	assert.Equal(t, "1990-05-17", users[0].BirthDate)
	assert.Equal(t, models.DefaultAvatar, users[0].Avatar)
	assert.Equal(t, "01.03.2026", users[0].RegistrationDate)
	assert.Empty(t, users[0].Password)
	assert.True(t, users[0].Recovered)

	current, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "Ivan Petrov", current.Name)
	assert.Equal(t, "cyclist", current.Bio)

	// Second run finds the record and refreshes the cache from it.
	ok, err = r.Recover(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	users, err = dir.Users(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRecovery_ExistingRecordRefreshesCache(t *testing.T) {
	ctx := context.Background()
	r, c, dir := newRecoveryFixture(t, &models.PublicUser{ID: "u1", Name: "stale", Email: "ivan@example.com"})

	require.NoError(t, dir.AddUser(ctx, LocalUser{ID: "u1", Name: "Ivan", Email: "ivan@example.com", Bio: "from directory"}))

	ok, err := r.Recover(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	current, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ivan", current.Name)
	assert.Equal(t, "from directory", current.Bio)
	assert.Equal(t, models.DefaultAvatar, current.Avatar)
	assert.Nil(t, current.BirthDate)
}

func TestRecovery_NothingToRecover(t *testing.T) {
	ctx := context.Background()

	t.Run("no cached user", func(t *testing.T) {
		r, _, _ := newRecoveryFixture(t, nil)
		ok, err := r.Recover(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("no authored content", func(t *testing.T) {
		r, _, dir := newRecoveryFixture(t, &models.PublicUser{ID: "u1", Email: "ivan@example.com"})
		putJSON(t, dir.storage, KeyLocalArticles, []AuthoredItem{{ID: "a1", Author: "Olga", AuthorEmail: "olga@example.com"}})

		ok, err := r.Recover(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		users, err := dir.Users(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)
	})
}

func TestRecovery_RecoverAll(t *testing.T) {
	ctx := context.Background()
	r, _, dir := newRecoveryFixture(t, nil)

	require.NoError(t, dir.AddUser(ctx, LocalUser{ID: "u0", Name: "Known", Email: "known@example.com"}))
	putJSON(t, dir.storage, KeyLocalArticles, []AuthoredItem{
		{ID: "1", Author: "Known", AuthorEmail: "known@example.com", Date: "01.03.2026"},
		{ID: "2", Author: "Olga", AuthorEmail: "olga@example.com", Date: "28.02.2026"},
		{ID: "3", Author: "Olga K.", AuthorEmail: "olga@example.com", Date: "01.03.2026"},
		{ID: "4", Author: "Orphan", AuthorEmail: ""},
	})
	putJSON(t, dir.storage, KeyLocalPosts, []AuthoredItem{
		{ID: "5", Author: "", AuthorEmail: "anon@example.com", Date: "01.03.2026"},
	})

	n, err := r.RecoverAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	users, err := dir.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)

	byEmail := map[string]LocalUser{}
	for _, u := range users {
		byEmail[u.Email] = u
	}
	assert.Equal(t, "Olga K.", byEmail["olga@example.com"].Name)
	assert.Equal(t, fallbackName, byEmail["anon@example.com"].Name)
	assert.Empty(t, byEmail["olga@example.com"].Password)
	assert.NotEmpty(t, byEmail["olga@example.com"].ID)

	n, err = r.RecoverAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second pass finds nothing to repair")
}

// Records as the site's scripts store them: numeric content ids, ru-RU
// dates, empty birth dates and extra per-user arrays.
const (
	siteUsers = `[
		{"id":"1700000000000","name":"Игорь","email":"igor@example.com","password":"password123","avatar":"🏆",
		 "bio":"","birthDate":"","registrationDate":"14.01.2026","followers":["5"],"following":[],"articles":[],"forumPosts":[]}
	]`
	siteArticles = `[
		{"id":1,"title":"Сын связался с неправильной компанией","category":"relations","author":"Игорь",
		 "authorEmail":"igor@example.com","date":"14 января","views":"2.4K"},
		{"id":2,"title":"Как найти баланс?","author":"Виктор","authorEmail":"viktor@example.com","date":"10.02.2026","views":"0"},
		{"id":3,"title":"Ещё одна статья","author":"Виктор Старый","authorEmail":"viktor@example.com","date":"12 января 2026 г. в 09:15","views":"0"}
	]`
	sitePosts = `[
		{"id":1700000000123,"title":"Вопрос","author":"Виктор П.","authorEmail":"viktor@example.com",
		 "date":"28.02.2026, 18:42:10","replies":3},
		{"id":7,"title":"Без даты","author":"Анна","authorEmail":"anna@example.com"}
	]`
)

func TestRecovery_SiteShapedData(t *testing.T) {
	ctx := context.Background()
	r, c, dir := newRecoveryFixture(t, &models.PublicUser{ID: "1700000000999", Name: "Виктор", Email: "viktor@example.com"})
	putRaw(t, dir.storage, KeyLocalUsers, siteUsers)
	putRaw(t, dir.storage, KeyLocalArticles, siteArticles)
	putRaw(t, dir.storage, KeyLocalPosts, sitePosts)

	users, err := dir.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, FlexID("1700000000000"), users[0].ID)
	assert.Nil(t, users[0].Public().BirthDate, "empty birth date is unset")

	items, err := dir.AuthoredItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 5)
	assert.Equal(t, FlexID("1"), items[0].ID)
	assert.Equal(t, FlexID("1700000000123"), items[3].ID)

	ok, err := r.Recover(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	current, err := c.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Виктор П.", current.Name, "forum post of 28.02 is newer than the articles")

	n, err := r.RecoverAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only anna lacks a record")

	// The pre-existing record keeps the fields this package does not model.
	raw, err := dir.storage.Get(ctx, KeyLocalUsers)
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 3)
	assert.Equal(t, []any{"5"}, records[0]["followers"])
	assert.Equal(t, "", records[2]["birthDate"])
	assert.Equal(t, []any{}, records[2]["articles"])
}

func TestFlexID(t *testing.T) {
	tests := []struct {
		raw  string
		want FlexID
	}{
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`1700000000123`, "1700000000123"},
		{`null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var id FlexID
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &id))
			assert.Equal(t, tt.want, id)
		})
	}

	var id FlexID
	assert.Error(t, json.Unmarshal([]byte(`{}`), &id))
}

func TestParseRuDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
		ok   bool
	}{
		{"14.01.2026", time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC), true},
		{"1.3.2026", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), true},
		{"28.02.2026, 18:42:10", time.Date(2026, time.February, 28, 18, 42, 10, 0, time.UTC), true},
		{"12 января 2026 г. в 09:15", time.Date(2026, time.January, 12, 9, 15, 0, 0, time.UTC), true},
		{"12 января 2026 г., 09:15", time.Date(2026, time.January, 12, 9, 15, 0, 0, time.UTC), true},
		{"14 января", time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC), true},
		{"20 декабря", time.Date(2025, time.December, 20, 0, 0, 0, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"вчера", time.Time{}, false},
		{"14 смарча 2026", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseRuDate(tt.raw, recoveryNow)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}
