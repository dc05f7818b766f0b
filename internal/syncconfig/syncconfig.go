// Package syncconfig manages the per-user sync settings and credentials
// stored under ~/.config/klettrack.
package syncconfig

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AutoSyncConfig holds auto-sync settings.
type AutoSyncConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`  // nil = default true
	Interval string `json:"interval,omitempty"` // duration string, default "5m"
}

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL     string         `json:"url"`
	Enabled bool           `json:"enabled"`
	Auto    AutoSyncConfig `json:"auto"`
}

// Config is the global klettrack config stored at ~/.config/klettrack/config.json.
type Config struct {
	Sync    SyncConfig `json:"sync"`
	DataDir string     `json:"data_dir,omitempty"`
}

// AuthCredentials stores authentication state at ~/.config/klettrack/auth.json.
type AuthCredentials struct {
	APIKey    string `json:"api_key"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	ServerURL string `json:"server_url"`
	DeviceID  string `json:"device_id"`
}

const defaultServerURL = "http://localhost:8080"

// ConfigDir returns ~/.config/klettrack, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "klettrack")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// DataDir returns the directory holding the local database.
// Priority: KLETTRACK_DATA_DIR env > config.json data_dir > ~/.local/share/klettrack.
func DataDir() (string, error) {
	if v := os.Getenv("KLETTRACK_DATA_DIR"); v != "" {
		return v, nil
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "klettrack"), nil
}

// LoadConfig reads the global config from ~/.config/klettrack/config.json.
func LoadConfig() (*Config, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig writes the global config to ~/.config/klettrack/config.json.
func SaveConfig(cfg *Config) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// LoadAuth reads auth credentials from ~/.config/klettrack/auth.json.
func LoadAuth() (*AuthCredentials, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, "auth.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var creds AuthCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// SaveAuth writes auth credentials to ~/.config/klettrack/auth.json (0600 perms).
func SaveAuth(creds *AuthCredentials) error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "auth.json"), data, 0600)
}

// ClearAuth removes the auth.json file.
func ClearAuth() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	err = os.Remove(filepath.Join(dir, "auth.json"))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// GetServerURL returns the sync server URL.
// Priority: KLETTRACK_SYNC_URL env > auth.json > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("KLETTRACK_SYNC_URL"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil && creds.ServerURL != "" {
		return creds.ServerURL
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GetAPIKey returns the API key.
// Priority: KLETTRACK_AUTH_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("KLETTRACK_AUTH_KEY"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// GetUserID returns the logged-in account's user id from auth.json, or ""
// for credentials saved before the server reported identities.
func GetUserID() string {
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.UserID
	}
	return ""
}

// IsAuthenticated returns true if an API key is available.
func IsAuthenticated() bool {
	return GetAPIKey() != ""
}

// GetDeviceID returns the device ID from auth.json, generating and persisting
// one if needed.
func GetDeviceID() (string, error) {
	creds, err := LoadAuth()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}

	id, err := GenerateDeviceID()
	if err != nil {
		return "", err
	}
	if creds == nil {
		creds = &AuthCredentials{}
	}
	creds.DeviceID = id
	if err := SaveAuth(creds); err != nil {
		return "", err
	}
	return id, nil
}

// GenerateDeviceID creates a new random device ID (16 bytes hex).
func GenerateDeviceID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// parseBoolEnv returns nil if env not set, pointer to bool if set.
func parseBoolEnv(envKey string) *bool {
	v := os.Getenv(envKey)
	if v == "" {
		return nil
	}
	v = strings.ToLower(v)
	if v == "1" || v == "true" {
		b := true
		return &b
	}
	if v == "0" || v == "false" {
		b := false
		return &b
	}
	return nil
}

// GetAutoSyncEnabled returns whether auto-sync after mutating commands is
// enabled. Priority: KLETTRACK_SYNC_AUTO env > config.json sync.auto.enabled > true.
func GetAutoSyncEnabled() bool {
	if v := parseBoolEnv("KLETTRACK_SYNC_AUTO"); v != nil {
		return *v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.Auto.Enabled != nil {
		return *cfg.Sync.Auto.Enabled
	}
	return true
}

// GetAutoSyncInterval returns the periodic sync interval.
// Priority: KLETTRACK_SYNC_AUTO_INTERVAL env > config.json sync.auto.interval > 5m.
func GetAutoSyncInterval() time.Duration {
	if v := os.Getenv("KLETTRACK_SYNC_AUTO_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.Auto.Interval != "" {
		if d, err := time.ParseDuration(cfg.Sync.Auto.Interval); err == nil {
			return d
		}
	}
	return 5 * time.Minute
}
