// Package userclient talks to a remote profile store over its REST API. The
// bearer token obtained at login is replayed opaquely on every stat update;
// HTTP failures are mapped onto the typed store errors the reconciler
// understands.
package userclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mindquest-service/internal/domain"
)

const defaultTimeout = 10 * time.Second

// APIError carries a non-2xx response through the typed sentinel wrapping.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// Client is an HTTP implementation of profile.Store plus the identity
// endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// SetToken installs the bearer token replayed on authenticated calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

type credentialsRequest struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string             `json:"token,omitempty"`
	User  domain.UserProfile `json:"user"`
}

type updateStatsRequest struct {
	RequestID string `json:"requestId"`
	domain.StatDelta
}

type profileResponse struct {
	User domain.UserProfile `json:"user"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Signup registers a new account and returns its initial profile.
func (c *Client) Signup(ctx context.Context, name, email, password string) (domain.UserProfile, error) {
	var resp authResponse
	err := c.doJSON(ctx, http.MethodPost, "/user/signup", credentialsRequest{
		Username: name,
		Email:    email,
		Password: password,
	}, &resp)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return resp.User, nil
}

// Login exchanges credentials for a bearer token and the authoritative
// profile. The token is kept for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (domain.UserProfile, error) {
	var resp authResponse
	err := c.doJSON(ctx, http.MethodPost, "/user/login", credentialsRequest{
		Email:    email,
		Password: password,
	}, &resp)
	if err != nil {
		return domain.UserProfile{}, err
	}
	c.token = resp.Token
	return resp.User, nil
}

// ApplyDelta reports a stat increment and returns the server's profile view.
// Implements profile.Store.
func (c *Client) ApplyDelta(ctx context.Context, userID, requestID string, delta domain.StatDelta) (domain.UserProfile, error) {
	var resp profileResponse
	err := c.doJSON(ctx, http.MethodPut, "/user/update-stats/"+userID, updateStatsRequest{
		RequestID: requestID,
		StatDelta: delta,
	}, &resp)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return resp.User, nil
}

// Leaderboard fetches the global XP ranking.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	var resp struct {
		Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	}
	path := fmt.Sprintf("/user/leaderboard?limit=%d", limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Leaderboard, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError maps HTTP status codes onto the reconciler's error taxonomy.
func statusError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var parsed errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&parsed); err == nil {
		apiErr.Message = parsed.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnauthorized, apiErr)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %v", domain.ErrUserNotFound, apiErr)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %v", domain.ErrEmailTaken, apiErr)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: %v", domain.ErrStoreRejected, apiErr)
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, apiErr)
	}
}
