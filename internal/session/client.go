// Package session owns the client-side session state: the token, the user id
// and the cached current user. It reconciles that cache with the server and
// is the only code that reads or writes those keys.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/manru/manru-be/internal/auth"
	"github.com/manru/manru-be/internal/models"
)

// State of the local session.
type State int

const (
	LoggedOut State = iota
	Restoring
	LoggedIn
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged-out"
	case Restoring:
		return "restoring"
	case LoggedIn:
		return "logged-in"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// API is the server surface the client reconciles against.
type API interface {
	Register(ctx context.Context, name, email, password string) (models.PublicUser, string, error)
	Login(ctx context.Context, email, password string) (models.PublicUser, string, error)
	GetUser(ctx context.Context, token, id string) (models.PublicUser, error)
}

// DefaultFetchTimeout bounds a background refresh of the cached user.
const DefaultFetchTimeout = 10 * time.Second

// Client is the session state machine. All methods are safe for concurrent
// use.
type Client struct {
	api          API
	storage      Storage
	fetchTimeout time.Duration

	// base outlives individual calls; background refreshes use it.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	epoch uint64
	state State
}

// NewClient creates a Client in the LoggedOut state. Call Restore to load
// persisted state.
func NewClient(api API, storage Storage) *Client {
	base, cancel := context.WithCancel(context.Background())
	return &Client{
		api:          api,
		storage:      storage,
		fetchTimeout: DefaultFetchTimeout,
		base:         base,
		cancel:       cancel,
		state:        LoggedOut,
	}
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Restore loads persisted state and reconciles it with the server:
//
//   - a cached user logs in immediately; with a token and user id a
//     background fetch refreshes it (server wins). Fetch failures keep the
//     cache, except an invalid token, which logs out.
//   - a token and user id without a cached user require a synchronous fetch;
//     on failure the token and user id are cleared.
//   - otherwise the client stays logged out.
func (c *Client) Restore(ctx context.Context) (State, error) {
	c.mu.Lock()
	token, userID, cached, err := c.load(ctx)
	if err != nil {
		c.mu.Unlock()
		return LoggedOut, err
	}

	if cached != nil {
		c.state = LoggedIn
		if token != "" && userID != "" {
			c.startRefresh(c.epoch, token, userID)
		}
		c.mu.Unlock()
		return LoggedIn, nil
	}

	if token == "" || userID == "" {
		c.state = LoggedOut
		c.mu.Unlock()
		return LoggedOut, nil
	}

	c.state = Restoring
	epoch := c.epoch
	c.mu.Unlock()

	user, fetchErr := c.api.GetUser(ctx, token, userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		// Login, Register or Logout ran meanwhile and their state stands.
		return c.state, nil
	}
	c.epoch++
	if fetchErr != nil {
		log.Warn().Err(fetchErr).Str("user_id", userID).Msg("Session expired or invalid, clearing token")
		c.state = LoggedOut
		return LoggedOut, errors.Join(
			c.storage.Delete(ctx, KeyToken),
			c.storage.Delete(ctx, KeyUserID),
		)
	}
	if err := c.saveUser(ctx, user); err != nil {
		c.state = LoggedOut
		return LoggedOut, err
	}
	c.state = LoggedIn
	return LoggedIn, nil
}

// Login authenticates against the server and persists the new session. On
// error the local state is left untouched.
func (c *Client) Login(ctx context.Context, email, password string) (models.PublicUser, error) {
	user, token, err := c.api.Login(ctx, email, password)
	if err != nil {
		return models.PublicUser{}, err
	}
	return user, c.establish(ctx, user, token)
}

// Register creates an account and persists its session. On error the local
// state is left untouched.
func (c *Client) Register(ctx context.Context, name, email, password string) (models.PublicUser, error) {
	user, token, err := c.api.Register(ctx, name, email, password)
	if err != nil {
		return models.PublicUser{}, err
	}
	return user, c.establish(ctx, user, token)
}

// Logout clears the token, the user id and the cached user. The server is
// not contacted: the token stays valid until it expires.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.state = LoggedOut
	return c.clear(ctx)
}

// CurrentUser returns the cached user, or nil when there is none.
func (c *Client) CurrentUser(ctx context.Context) (*models.PublicUser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedUser(ctx)
}

// Token returns the stored session token, or "" when there is none.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := c.storage.Get(ctx, KeyToken)
	return string(raw), err
}

// Wait blocks until in-flight background fetches finish.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close cancels background fetches and waits for them.
func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Client) establish(ctx context.Context, user models.PublicUser, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++

	if err := c.storage.Set(ctx, KeyToken, []byte(token)); err != nil {
		return err
	}
	if err := c.storage.Set(ctx, KeyUserID, []byte(user.ID)); err != nil {
		return err
	}
	if err := c.saveUser(ctx, user); err != nil {
		return err
	}
	c.state = LoggedIn
	return nil
}

// startRefresh fetches the canonical user in the background. The result is
// dropped if the epoch moved on. Callers hold c.mu.
func (c *Client) startRefresh(epoch uint64, token, userID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(c.base, c.fetchTimeout)
		defer cancel()
		user, err := c.api.GetUser(ctx, token, userID)

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.epoch != epoch {
			log.Debug().Str("user_id", userID).Msg("Discarding stale user refresh")
			return
		}

		switch {
		case err == nil:
			if err := c.saveUser(c.base, user); err != nil {
				log.Warn().Err(err).Msg("Failed to store refreshed user")
			}
		case errors.Is(err, auth.ErrInvalidToken):
			log.Warn().Str("user_id", userID).Msg("Server rejected the session token, logging out")
			c.epoch++
			c.state = LoggedOut
			if err := c.clear(c.base); err != nil {
				log.Warn().Err(err).Msg("Failed to clear session")
			}
		default:
			log.Warn().Err(err).Str("user_id", userID).Msg("Could not update user from server, using cached")
		}
	}()
}

// load reads the persisted keys. An unreadable cached user counts as absent.
func (c *Client) load(ctx context.Context) (token, userID string, cached *models.PublicUser, err error) {
	rawToken, err := c.storage.Get(ctx, KeyToken)
	if err != nil {
		return "", "", nil, err
	}
	rawID, err := c.storage.Get(ctx, KeyUserID)
	if err != nil {
		return "", "", nil, err
	}
	cached, err = c.cachedUser(ctx)
	if err != nil {
		return "", "", nil, err
	}
	return string(rawToken), string(rawID), cached, nil
}

func (c *Client) cachedUser(ctx context.Context) (*models.PublicUser, error) {
	raw, err := c.storage.Get(ctx, KeyCurrentUser)
	if err != nil || raw == nil {
		return nil, err
	}
	var user models.PublicUser
	if err := json.Unmarshal(raw, &user); err != nil {
		log.Warn().Err(err).Msg("Ignoring unreadable cached user")
		return nil, nil
	}
	return &user, nil
}

func (c *Client) saveUser(ctx context.Context, user models.PublicUser) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode cached user: %w", err)
	}
	return c.storage.Set(ctx, KeyCurrentUser, raw)
}

func (c *Client) clear(ctx context.Context) error {
	return errors.Join(
		c.storage.Delete(ctx, KeyToken),
		c.storage.Delete(ctx, KeyUserID),
		c.storage.Delete(ctx, KeyCurrentUser),
	)
}

// replaceCachedUser overwrites the cached user outside the server flow.
func (c *Client) replaceCachedUser(ctx context.Context, user models.PublicUser) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	return c.saveUser(ctx, user)
}
