package syncconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeTestConfig creates a temp HOME with ~/.config/klettrack/config.json.
func writeTestConfig(t *testing.T, content string) {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	dir := filepath.Join(tmpDir, ".config", "klettrack")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestServerURLDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KLETTRACK_SYNC_URL", "")
	if got := GetServerURL(); got != defaultServerURL {
		t.Errorf("expected default URL, got %q", got)
	}
}

func TestServerURLEnvOverridesConfig(t *testing.T) {
	writeTestConfig(t, `{"sync":{"url":"https://cfg.example.com"}}`)
	t.Setenv("KLETTRACK_SYNC_URL", "https://env.example.com")
	if got := GetServerURL(); got != "https://env.example.com" {
		t.Errorf("env should win, got %q", got)
	}
}

func TestServerURLFromConfig(t *testing.T) {
	writeTestConfig(t, `{"sync":{"url":"https://cfg.example.com"}}`)
	t.Setenv("KLETTRACK_SYNC_URL", "")
	if got := GetServerURL(); got != "https://cfg.example.com" {
		t.Errorf("expected config URL, got %q", got)
	}
}

func TestAuthRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KLETTRACK_AUTH_KEY", "")

	if IsAuthenticated() {
		t.Fatal("fresh home should not be authenticated")
	}

	creds := &AuthCredentials{
		APIKey:    "kt_live_secret",
		UserID:    "u_1",
		Email:     "lena@example.com",
		ServerURL: "https://sync.example.com",
		DeviceID:  "dev-1",
	}
	if err := SaveAuth(creds); err != nil {
		t.Fatalf("save auth: %v", err)
	}

	loaded, err := LoadAuth()
	if err != nil || loaded == nil {
		t.Fatalf("load auth: %v", err)
	}
	if loaded.APIKey != creds.APIKey || loaded.DeviceID != "dev-1" {
		t.Fatalf("credentials mangled: %+v", loaded)
	}
	if !IsAuthenticated() {
		t.Fatal("expected authenticated after save")
	}

	if err := ClearAuth(); err != nil {
		t.Fatalf("clear auth: %v", err)
	}
	if IsAuthenticated() {
		t.Fatal("expected unauthenticated after clear")
	}
	// A second clear is a no-op.
	if err := ClearAuth(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestDeviceIDPersists(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	id1, err := GetDeviceID()
	if err != nil {
		t.Fatalf("first device id: %v", err)
	}
	if len(id1) != 32 {
		t.Fatalf("expected 16-byte hex id, got %q", id1)
	}

	id2, err := GetDeviceID()
	if err != nil {
		t.Fatalf("second device id: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("device id not stable: %q vs %q", id1, id2)
	}
}

func TestAutoSyncEnabledFromConfig(t *testing.T) {
	writeTestConfig(t, `{"sync":{"auto":{"enabled":false}}}`)
	t.Setenv("KLETTRACK_SYNC_AUTO", "")
	if GetAutoSyncEnabled() {
		t.Error("config should disable auto-sync")
	}
}

func TestAutoSyncEnabledEnvWins(t *testing.T) {
	writeTestConfig(t, `{"sync":{"auto":{"enabled":false}}}`)
	t.Setenv("KLETTRACK_SYNC_AUTO", "1")
	if !GetAutoSyncEnabled() {
		t.Error("env should enable auto-sync")
	}
}

func TestAutoSyncIntervalFromConfig(t *testing.T) {
	writeTestConfig(t, `{"sync":{"auto":{"interval":"90s"}}}`)
	t.Setenv("KLETTRACK_SYNC_AUTO_INTERVAL", "")
	if got := GetAutoSyncInterval(); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
}

func TestAutoSyncIntervalDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KLETTRACK_SYNC_AUTO_INTERVAL", "")
	if got := GetAutoSyncInterval(); got != 5*time.Minute {
		t.Errorf("expected 5m default, got %v", got)
	}
}

func TestDataDirEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KLETTRACK_DATA_DIR", "/tmp/elsewhere")
	dir, err := DataDir()
	if err != nil || dir != "/tmp/elsewhere" {
		t.Fatalf("expected env dir, got %q (err=%v)", dir, err)
	}
}
