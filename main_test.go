package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/manru/manru-be/internal/api"
	"github.com/manru/manru-be/internal/apiclient"
	"github.com/manru/manru-be/internal/auth"
	"github.com/manru/manru-be/internal/config"
	"github.com/manru/manru-be/internal/database"
	"github.com/manru/manru-be/internal/services"
	"github.com/manru/manru-be/internal/store"
)

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "register", "login", "whoami", "logout", "delete-account", "recover-profiles"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	migrate, _, err := cmd.Find([]string{"migrate", "status"})
	require.NoError(t, err)
	assert.Equal(t, "status", migrate.Name())
}

func startAPI(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	db, err := database.New(ctx, config.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(ctx, db, config.DriverSQLite))

	st := store.New(db, store.SQLite)
	tokens := auth.NewTokenService("cli-test-secret", 0)
	events := services.NewEventService(st)
	svc := services.NewAuthService(st, auth.NewBcryptHasher(bcrypt.MinCost), tokens, events)

	srv := httptest.NewServer(api.NewRouter(nil, tokens, svc, events, nil, nil))
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.Execute()
	return out.String(), err
}

func TestSessionCommands(t *testing.T) {
	t.Setenv("API_BASE_URL", startAPI(t))
	t.Setenv("SESSION_PATH", filepath.Join(t.TempDir(), "session.db"))
	t.Setenv("LOG_LEVEL", "error")

	out, err := run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")

	out, err = run(t, "register", "--name", "Ivan", "--email", "ivan@example.com", "--password", "secret1")
	require.NoError(t, err)
	assert.Contains(t, out, "Registered Ivan <ivan@example.com>")

	out, err = run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Ivan <ivan@example.com>")

	_, err = run(t, "logout")
	require.NoError(t, err)
	out, err = run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")

	_, err = run(t, "login", "--email", "ivan@example.com", "--password", "wrong-password")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INVALID_CREDENTIALS")

	_, err = run(t, "login", "--email", "ivan@example.com", "--password", "secret1")
	require.NoError(t, err)

	_, err = run(t, "delete-account")
	require.Error(t, err, "deletion needs confirmation")

	out, err = run(t, "delete-account", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted account ivan@example.com")

	_, err = run(t, "login", "--email", "ivan@example.com", "--password", "secret1")
	require.Error(t, err)
}

func TestRecoverProfilesCmd_Disabled(t *testing.T) {
	t.Setenv("SESSION_PATH", filepath.Join(t.TempDir(), "session.db"))
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LEGACY_PROFILE_RECOVERY", "false")

	_, err := run(t, "recover-profiles")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}

func TestDescribe(t *testing.T) {
	err := describe(&apiclient.Error{Status: 409, Code: "DUPLICATE_EMAIL", Message: "email already registered"})
	assert.EqualError(t, err, "DUPLICATE_EMAIL: email already registered")

	plain := assert.AnError
	assert.Same(t, plain, describe(plain))
}
