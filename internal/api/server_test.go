package api

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
)

func TestHealthz(t *testing.T) {
	h := newTestHarness(t)

	resp := h.Do("GET", "/healthz", "", nil)
	body := ReadJSON[map[string]string](t, resp)
	if body["status"] != "ok" {
		t.Fatalf("expected ok status, got %v", body)
	}
}

func TestMetricz(t *testing.T) {
	h := newTestHarness(t)
	_, token := h.CreateUser("lena@example.com")

	h.Push(token, "device-a", []wireMutation{
		upsertMutation("activities", uuid.NewString(), 0, map[string]any{"name": "hangboard"}),
	})
	h.Pull(token, "", 0)

	resp := h.Do("GET", "/metricz", "", nil)
	snap := ReadJSON[MetricsSnapshot](t, resp)
	if snap.PushMutationsAccepted < 1 {
		t.Errorf("expected accepted push mutations counted, got %d", snap.PushMutationsAccepted)
	}
	if snap.PullRequests < 1 {
		t.Errorf("expected pull requests counted, got %d", snap.PullRequests)
	}
	if snap.Requests < 2 {
		t.Errorf("expected total requests counted, got %d", snap.Requests)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h := newTestHarness(t)

	resp := h.Do("GET", "/v1/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
