// Package zep wraps the remote space-creation API. The core pipeline only
// depends on the Client interface; the HTTP implementation here is the
// production client, and tests substitute a stub.
package zep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Role is the permission tier granted on a space. It is a closed set so a
// typo can never reach the remote permission call.
type Role string

const (
	// RoleOwner grants the student full control of their space.
	RoleOwner Role = "owner"
	// RoleStaff grants instructors and administrators oversight access.
	RoleStaff Role = "staff"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleStaff
}

// Space is a created remote space.
type Space struct {
	ID  string `json:"space_id"`
	URL string `json:"url"`
}

// Client is the boundary the onboarding pipeline drives. Both operations
// are synchronous and bounded by the client's fixed request timeout;
// retry policy belongs to the caller.
type Client interface {
	CreateSpace(ctx context.Context, name string) (Space, error)
	SetPermission(ctx context.Context, spaceID, principal string, role Role) error
}

// ErrRateLimited is returned when the remote API responds 429.
var ErrRateLimited = errors.New("zep: rate limited")

// ErrTimeout is returned when a request exceeds the fixed request timeout.
var ErrTimeout = errors.New("zep: request timeout")

// APIError is a non-2xx response from the remote API other than 429.
type APIError struct {
	Code    string `json:"errorCode"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("zep: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("zep: HTTP %d: %s", e.Status, e.Message)
}

// RequestTimeout is the fixed per-request timeout for remote calls.
const RequestTimeout = 10 * time.Second

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a client for the given API base URL and key.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: RequestTimeout},
	}
}

// CreateSpace creates a space and returns its remote id and URL.
func (c *HTTPClient) CreateSpace(ctx context.Context, name string) (Space, error) {
	var space Space
	err := c.do(ctx, http.MethodPost, "/spaces", map[string]string{"name": name}, &space)
	if err != nil {
		return Space{}, err
	}
	if space.ID == "" || space.URL == "" {
		return Space{}, &APIError{Message: "space creation response missing space_id or url"}
	}
	return space, nil
}

// SetPermission grants role to principal on the given space. The remote
// endpoint has PUT semantics: repeating a grant is a no-op.
func (c *HTTPClient) SetPermission(ctx context.Context, spaceID, principal string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("zep: invalid role %q", role)
	}
	payload := map[string]string{
		"principalAddress": principal,
		"role":             string(role),
	}
	return c.do(ctx, http.MethodPut, "/spaces/"+spaceID+"/permissions", payload, nil)
}

// GetSpace returns information about an existing space. Used by the
// manual-review surface to confirm state before a retry.
func (c *HTTPClient) GetSpace(ctx context.Context, spaceID string) (Space, error) {
	var space Space
	if err := c.do(ctx, http.MethodGet, "/spaces/"+spaceID, nil, &space); err != nil {
		return Space{}, err
	}
	return space, nil
}

// DeleteSpace removes a space. Only reachable through explicit
// administrative action.
func (c *HTTPClient) DeleteSpace(ctx context.Context, spaceID string) error {
	return c.do(ctx, http.MethodDelete, "/spaces/"+spaceID, nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("zep: marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("zep: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return ErrTimeout
		}
		return fmt.Errorf("zep: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("zep: decode response: %w", err)
		}
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
