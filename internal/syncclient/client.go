package syncclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrBatchTooLarge = errors.New("batch too large")
	ErrRateLimited   = errors.New("rate limited")
)

// Client is an HTTP client for the klettrack-sync server.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// New creates a new sync client.
func New(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Sync types (mirrors internal/api/sync.go, independently defined) ---

// Mutation is a single mutation in a push request.
type Mutation struct {
	OpID            string                     `json:"opId"`
	Entity          string                     `json:"entity"`
	EntityID        string                     `json:"entityId"`
	Type            string                     `json:"type"`
	BaseVersion     int64                      `json:"baseVersion"`
	UpdatedAtClient string                     `json:"updatedAtClient"`
	Payload         map[string]json.RawMessage `json:"payload,omitempty"`
}

// PushRequest is the body for POST /v1/sync/push.
type PushRequest struct {
	DeviceID   string     `json:"deviceId"`
	BaseCursor string     `json:"baseCursor"`
	Mutations  []Mutation `json:"mutations"`
}

// Conflict is a mutation refused because the record moved on the server.
type Conflict struct {
	OpID          string          `json:"opId"`
	Entity        string          `json:"entity"`
	EntityID      string          `json:"entityId"`
	Reason        string          `json:"reason"`
	ServerVersion *int64          `json:"serverVersion"`
	ServerDoc     json.RawMessage `json:"serverDoc,omitempty"`
}

// Failure is a mutation rejected for a non-concurrency reason.
type Failure struct {
	OpID   string `json:"opId"`
	Reason string `json:"reason"`
}

// PushResponse is the response from a push request.
type PushResponse struct {
	AcknowledgedOpIDs []string   `json:"acknowledgedOpIds"`
	Conflicts         []Conflict `json:"conflicts"`
	Failed            []Failure  `json:"failed"`
	NewCursor         string     `json:"newCursor"`
}

// PullRequest is the body for POST /v1/sync/pull.
type PullRequest struct {
	Cursor string `json:"cursor"`
	Limit  int    `json:"limit,omitempty"`
}

// Change is a single change in a pull response. For upserts Doc is the
// server envelope (id, version, isDeleted, updatedAtClient, doc); for
// deletes it is absent.
type Change struct {
	Entity   string          `json:"entity"`
	Type     string          `json:"type"`
	EntityID string          `json:"entityId"`
	Doc      json.RawMessage `json:"doc,omitempty"`
}

// ServerDoc is the decoded form of an upsert Change.Doc or a conflict's
// ServerDoc.
type ServerDoc struct {
	ID              string                     `json:"id"`
	Version         int64                      `json:"version"`
	IsDeleted       bool                       `json:"isDeleted"`
	UpdatedAtClient string                     `json:"updatedAtClient"`
	Doc             map[string]json.RawMessage `json:"doc"`
}

// PullResponse is the response from a pull request.
type PullResponse struct {
	Changes    []Change `json:"changes"`
	NextCursor string   `json:"nextCursor"`
	HasMore    bool     `json:"hasMore"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doNoAuth("GET", "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WhoAmIResponse identifies the account behind an API key.
type WhoAmIResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// WhoAmI returns the account the client's API key belongs to. Also serves as
// a key validity check at login.
func (c *Client) WhoAmI() (*WhoAmIResponse, error) {
	var resp WhoAmIResponse
	if err := c.do("GET", "/v1/auth/whoami", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Sync methods ---

// Push sends local mutations to the server. The client's DeviceID is
// stamped onto the request.
func (c *Client) Push(baseCursor string, muts []Mutation) (*PushResponse, error) {
	req := PushRequest{
		DeviceID:   c.DeviceID,
		BaseCursor: baseCursor,
		Mutations:  muts,
	}
	var resp PushResponse
	if err := c.do("POST", "/v1/sync/push", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pull fetches one page of the change feed after cursor.
func (c *Client) Pull(cursor string, limit int) (*PullResponse, error) {
	req := PullRequest{Cursor: cursor, Limit: limit}
	var resp PullResponse
	if err := c.do("POST", "/v1/sync/pull", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// errorResponse is the envelope the server wraps errors in.
type errorResponse struct {
	Error apiError `json:"error"`
}

// do executes an authenticated HTTP request.
func (c *Client) do(method, path string, body, result any) error {
	return c.doRequest(method, path, body, result, true)
}

// doNoAuth executes an unauthenticated HTTP request.
func (c *Client) doNoAuth(method, path string, body, result any) error {
	return c.doRequest(method, path, body, result, false)
}

func (c *Client) doRequest(method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope errorResponse
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Error.Code != "" {
			apiErr := envelope.Error
			switch resp.StatusCode {
			case http.StatusBadRequest:
				return fmt.Errorf("%w: %s", ErrBadRequest, apiErr.Message)
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
			case http.StatusRequestEntityTooLarge:
				return fmt.Errorf("%w: %s", ErrBatchTooLarge, apiErr.Message)
			case http.StatusTooManyRequests:
				return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
			default:
				return &apiErr
			}
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
