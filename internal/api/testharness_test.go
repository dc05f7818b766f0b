package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/shaharnoy/Klettrack-sub002/internal/serverdb"
)

// TestHarness wraps a full Server with a real HTTP listener for integration tests.
type TestHarness struct {
	t       *testing.T
	Server  *Server
	Store   *serverdb.ServerDB
	BaseURL string
	client  *http.Client
	httpSrv *httptest.Server
}

// newTestHarness creates a TestHarness with a real HTTP server on a random port.
func newTestHarness(t *testing.T, opts ...func(*Config)) *TestHarness {
	t.Helper()

	tmpDir := t.TempDir()

	dbPath := filepath.Join(tmpDir, "server.db")
	store, err := serverdb.Open(dbPath)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}

	cfg := Config{
		ListenAddr:     ":0",
		ServerDBPath:   dbPath,
		RecordsDBPath:  filepath.Join(tmpDir, "records.db"),
		RateLimitPush:  100000,
		RateLimitPull:  100000,
		RateLimitOther: 100000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}

	httpSrv := httptest.NewServer(srv.routes())

	h := &TestHarness{
		t:       t,
		Server:  srv,
		Store:   store,
		BaseURL: httpSrv.URL,
		client:  &http.Client{},
		httpSrv: httpSrv,
	}

	t.Cleanup(func() {
		httpSrv.Close()
		srv.records.Close()
		store.Close()
	})

	return h
}

// Do sends an HTTP request and returns the response.
// Caller must close resp.Body unless using assertion helpers (AssertStatus,
// AssertErrorResponse, ReadJSON) which close it automatically.
func (h *TestHarness) Do(method, path, token string, body any) *http.Response {
	h.t.Helper()

	url := h.BaseURL + path

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
	}

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, url, &buf)
	} else {
		req, err = http.NewRequest(method, url, nil)
	}
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("do request %s %s: %v", method, path, err)
	}

	return resp
}

// DoJSON sends an HTTP request and decodes the JSON response into out.
// Fatals if the response status is >= 400 or if JSON decoding fails.
func (h *TestHarness) DoJSON(method, path, token string, body any, out any) *http.Response {
	h.t.Helper()

	resp := h.Do(method, path, token, body)

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		h.t.Fatalf("DoJSON %s %s: expected success, got %d: %s", method, path, resp.StatusCode, respBody)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		h.t.Fatalf("decode response: %v", err)
	}

	return resp
}

// CreateUser creates a user with an API key.
func (h *TestHarness) CreateUser(email string) (userID, token string) {
	h.t.Helper()

	user, err := h.Store.CreateUser(email)
	if err != nil {
		h.t.Fatalf("create user: %v", err)
	}

	tok, _, err := h.Store.GenerateAPIKey(user.ID, "test", nil)
	if err != nil {
		h.t.Fatalf("generate api key: %v", err)
	}

	return user.ID, tok
}

// Push sends a push request and returns the decoded response. Fatals on
// any non-200 status.
func (h *TestHarness) Push(token, deviceID string, muts []wireMutation) pushResponse {
	h.t.Helper()

	var out pushResponse
	h.DoJSON("POST", "/v1/sync/push", token, pushRequest{
		DeviceID:  deviceID,
		Mutations: muts,
	}, &out)
	return out
}

// Pull sends a pull request and returns the decoded response.
func (h *TestHarness) Pull(token, cursor string, limit int) pullResponse {
	h.t.Helper()

	var out pullResponse
	h.DoJSON("POST", "/v1/sync/pull", token, pullRequest{Cursor: cursor, Limit: limit}, &out)
	return out
}

// upsertMutation builds a valid upsert for the given entity with a fresh opId.
func upsertMutation(entity, entityID string, baseVersion int64, payload map[string]any) wireMutation {
	raw := make(map[string]json.RawMessage, len(payload))
	for k, v := range payload {
		b, _ := json.Marshal(v)
		raw[k] = b
	}
	return wireMutation{
		OpID:            uuid.NewString(),
		Entity:          entity,
		EntityID:        entityID,
		Type:            "upsert",
		BaseVersion:     baseVersion,
		UpdatedAtClient: "2026-02-01T10:00:00Z",
		Payload:         raw,
	}
}

// --- Response assertion helpers ---

// AssertStatus checks the HTTP status code matches expected. Reads and closes the body on failure.
func AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, string(body))
	}
	resp.Body.Close()
}

// AssertErrorResponse checks the response has the expected status and error code.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedCode string) {
	t.Helper()
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, resp.StatusCode, string(body))
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Error.Code != expectedCode {
		t.Fatalf("expected error code %q, got %q: %s", expectedCode, errResp.Error.Code, errResp.Error.Message)
	}
}

// ReadJSON decodes a JSON response body into the given type.
func ReadJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode json response: %v", err)
	}
	return out
}
