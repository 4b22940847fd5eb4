// Package syncconfig loads the device configuration and auth credentials
// stored under ~/.config/possync/. Environment variables prefixed POSSYNC_
// override file values, which override defaults.
package syncconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PollConfig holds the tier polling settings.
type PollConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`         // nil = default true
	HighInterval   string `json:"high_interval,omitempty"`   // duration string, default "2m"
	MediumInterval string `json:"medium_interval,omitempty"` // duration string, default "5m"
	LowInterval    string `json:"low_interval,omitempty"`    // duration string, default "15m"
	Stagger        string `json:"stagger,omitempty"`         // duration string, default "3s"
}

// SyncConfig holds sync-related settings.
type SyncConfig struct {
	URL           string     `json:"url"`
	CompanyID     string     `json:"company_id"`
	LocationID    string     `json:"location_id"`
	QueueInterval string     `json:"queue_interval,omitempty"` // duration string, default "2s"
	ProbeInterval string     `json:"probe_interval,omitempty"` // duration string, default "10s"
	Poll          PollConfig `json:"poll"`
}

// Config is the global possync config stored at ~/.config/possync/config.json.
type Config struct {
	Sync SyncConfig `json:"sync"`
}

// AuthCredentials stores authentication state at ~/.config/possync/auth.json.
type AuthCredentials struct {
	APIKey    string `json:"api_key"`
	ServerURL string `json:"server_url"`
	DeviceID  string `json:"device_id"`
	ExpiresAt string `json:"expires_at"`
}

const defaultServerURL = "http://localhost:8080"

// ConfigDir returns ~/.config/possync, creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "possync")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// LoadConfig reads the global config from ~/.config/possync/config.json.
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

// SaveConfig writes the global config to ~/.config/possync/config.json.
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

// LoadAuth reads auth credentials from ~/.config/possync/auth.json.
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

// SaveAuth writes auth credentials to ~/.config/possync/auth.json (0600 perms).
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
// Priority: POSSYNC_URL env > config.json > default.
func GetServerURL() string {
	if v := os.Getenv("POSSYNC_URL"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.URL != "" {
		return cfg.Sync.URL
	}
	return defaultServerURL
}

// GetAPIKey returns the API key.
// Priority: POSSYNC_API_KEY env > auth.json.
func GetAPIKey() string {
	if v := os.Getenv("POSSYNC_API_KEY"); v != "" {
		return v
	}
	creds, err := LoadAuth()
	if err == nil && creds != nil {
		return creds.APIKey
	}
	return ""
}

// IsAuthenticated returns true if an API key is available.
func IsAuthenticated() bool {
	return GetAPIKey() != ""
}

// GetCompanyID returns the company scope for pulls.
// Priority: POSSYNC_COMPANY_ID env > config.json.
func GetCompanyID() string {
	if v := os.Getenv("POSSYNC_COMPANY_ID"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil {
		return cfg.Sync.CompanyID
	}
	return ""
}

// GetLocationID returns the location scope for pulls.
// Priority: POSSYNC_LOCATION_ID env > config.json.
func GetLocationID() string {
	if v := os.Getenv("POSSYNC_LOCATION_ID"); v != "" {
		return v
	}
	cfg, err := LoadConfig()
	if err == nil {
		return cfg.Sync.LocationID
	}
	return ""
}

// GetDeviceID returns the device ID from auth.json, generating and persisting
// one on first use so the device identity is stable across restarts.
func GetDeviceID() (string, error) {
	creds, err := LoadAuth()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}
	id := GenerateDeviceID()
	if creds == nil {
		creds = &AuthCredentials{}
	}
	creds.DeviceID = id
	if err := SaveAuth(creds); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}

// GenerateDeviceID creates a new random device ID.
func GenerateDeviceID() string {
	return uuid.NewString()
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

// durationOrDefault parses env then file values, falling back to def.
func durationOrDefault(envKey, fileValue string, def time.Duration) time.Duration {
	if v := os.Getenv(envKey); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	if fileValue != "" {
		if d, err := time.ParseDuration(fileValue); err == nil {
			return d
		}
	}
	return def
}

// GetPollEnabled returns whether the tier pollers run.
// Priority: POSSYNC_POLL env > config.json sync.poll.enabled > true
func GetPollEnabled() bool {
	if v := parseBoolEnv("POSSYNC_POLL"); v != nil {
		return *v
	}
	cfg, err := LoadConfig()
	if err == nil && cfg.Sync.Poll.Enabled != nil {
		return *cfg.Sync.Poll.Enabled
	}
	return true
}

// GetTierIntervals returns the per-tier polling cadence.
// Priority per tier: POSSYNC_POLL_{HIGH,MEDIUM,LOW} env > config.json > defaults.
func GetTierIntervals() (high, medium, low time.Duration) {
	cfg, err := LoadConfig()
	if err != nil {
		cfg = &Config{}
	}
	high = durationOrDefault("POSSYNC_POLL_HIGH", cfg.Sync.Poll.HighInterval, 2*time.Minute)
	medium = durationOrDefault("POSSYNC_POLL_MEDIUM", cfg.Sync.Poll.MediumInterval, 5*time.Minute)
	low = durationOrDefault("POSSYNC_POLL_LOW", cfg.Sync.Poll.LowInterval, 15*time.Minute)
	return high, medium, low
}

// GetStagger returns the startup/reconnect sweep stagger.
// Priority: POSSYNC_STAGGER env > config.json sync.poll.stagger > 3s
func GetStagger() time.Duration {
	cfg, err := LoadConfig()
	if err != nil {
		cfg = &Config{}
	}
	return durationOrDefault("POSSYNC_STAGGER", cfg.Sync.Poll.Stagger, 3*time.Second)
}

// GetQueueInterval returns the queue processor tick interval.
// Priority: POSSYNC_QUEUE_INTERVAL env > config.json sync.queue_interval > 2s
func GetQueueInterval() time.Duration {
	cfg, err := LoadConfig()
	if err != nil {
		cfg = &Config{}
	}
	return durationOrDefault("POSSYNC_QUEUE_INTERVAL", cfg.Sync.QueueInterval, 2*time.Second)
}

// GetProbeInterval returns how often connectivity is probed.
// Priority: POSSYNC_PROBE_INTERVAL env > config.json sync.probe_interval > 10s
func GetProbeInterval() time.Duration {
	cfg, err := LoadConfig()
	if err != nil {
		cfg = &Config{}
	}
	return durationOrDefault("POSSYNC_PROBE_INTERVAL", cfg.Sync.ProbeInterval, 10*time.Second)
}
