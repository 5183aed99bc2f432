// Package apiclient is a JSON client for the man.ru auth API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/manru/manru-be/internal/auth"
	"github.com/manru/manru-be/internal/models"
	"github.com/manru/manru-be/internal/services"
)

// DefaultTimeout bounds every request made by a Client built with New.
const DefaultTimeout = 10 * time.Second

// Error is a non-2xx answer from the API.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: %s: %s", e.Code, e.Message)
}

// Is lets callers match API errors against the service sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case auth.ErrInvalidToken:
		return e.Code == "INVALID_TOKEN"
	case services.ErrInvalidCredentials:
		return e.Code == "INVALID_CREDENTIALS"
	case services.ErrDuplicateEmail:
		return e.Code == "DUPLICATE_EMAIL"
	case services.ErrValidation:
		return e.Code == "VALIDATION_ERROR"
	case services.ErrUnauthorized:
		return e.Code == "UNAUTHORIZED"
	case services.ErrNotFound:
		return e.Code == "NOT_FOUND"
	case services.ErrStoreUnavailable:
		return e.Code == "STORE_UNAVAILABLE"
	}
	return false
}

// Client talks to the API under baseURL, e.g. "http://localhost:8080/api".
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client. A nil httpClient gets one with DefaultTimeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type sessionResponse struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// Register creates an account and returns it with its session token.
func (c *Client) Register(ctx context.Context, name, email, password string) (models.PublicUser, string, error) {
	var out sessionResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", body, &out); err != nil {
		return models.PublicUser{}, "", err
	}
	return out.User, out.Token, nil
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (models.PublicUser, string, error) {
	var out sessionResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return models.PublicUser{}, "", err
	}
	return out.User, out.Token, nil
}

// GetUser fetches the public view of a user. A non-empty token is sent as
// bearer so the server can reject a dead session.
func (c *Client) GetUser(ctx context.Context, token, id string) (models.PublicUser, error) {
	var out models.PublicUser
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(id), token, nil, &out); err != nil {
		return models.PublicUser{}, err
	}
	return out, nil
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (models.PublicUser, error) {
	var out models.PublicUser
	if err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &out); err != nil {
		return models.PublicUser{}, err
	}
	return out, nil
}

// DeleteAccount removes the account id owned by token.
func (c *Client) DeleteAccount(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodDelete, "/users/"+url.PathEscape(id), token, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
			apiErr.Code = payload.Error
			apiErr.Message = payload.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if len(raw) == 0 {
		return fmt.Errorf("%s %s: empty response from server", method, path)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
