package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Sync.FrequencyHours != 24 {
		t.Errorf("FrequencyHours = %d, want 24", cfg.Sync.FrequencyHours)
	}
	if cfg.Sync.HistoryTop != 5 {
		t.Errorf("HistoryTop = %d, want 5", cfg.Sync.HistoryTop)
	}
	if cfg.StateStorage.Type != "sqlite" {
		t.Errorf("StateStorage.Type = %q, want sqlite", cfg.StateStorage.Type)
	}
	if cfg.PowerBI.APIBaseURL != "https://api.powerbi.com/v1.0/myorg/" {
		t.Errorf("APIBaseURL = %q", cfg.PowerBI.APIBaseURL)
	}
	if cfg.PowerBI.GetTimeout() != 30*time.Second {
		t.Errorf("GetTimeout = %v, want 30s", cfg.PowerBI.GetTimeout())
	}
	if cfg.Scheduler.Interval != "@every 1h" {
		t.Errorf("Scheduler.Interval = %q", cfg.Scheduler.Interval)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
powerbi:
  tenant_id: contoso
  client_id: app
  client_secret: secret
sync:
  frequency_hours: 6
  workspaces:
    - 11111111-1111-1111-1111-111111111111
state_storage:
  type: mysql
  host: db
  database: pbisync
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Sync.FrequencyHours != 6 {
		t.Errorf("FrequencyHours = %d, want 6", cfg.Sync.FrequencyHours)
	}
	if len(cfg.Sync.Workspaces) != 1 {
		t.Errorf("Workspaces = %v", cfg.Sync.Workspaces)
	}
	if !cfg.PowerBI.UsesClientCredentials() {
		t.Error("UsesClientCredentials = false, want true")
	}
	if cfg.StateStorage.Port != 3306 {
		t.Errorf("Port = %d, want 3306", cfg.StateStorage.Port)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PBISYNC_SYNC_FREQUENCY_HOURS", "12")
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Sync.FrequencyHours != 12 {
		t.Errorf("FrequencyHours = %d, want 12", cfg.Sync.FrequencyHours)
	}
}

func TestLoadConfigEnvOverridesKeysWithoutDefaults(t *testing.T) {
	t.Setenv("PBISYNC_POWERBI_TENANT_ID", "contoso")
	t.Setenv("PBISYNC_POWERBI_CLIENT_ID", "app")
	t.Setenv("PBISYNC_POWERBI_CLIENT_SECRET", "s3cret")
	t.Setenv("PBISYNC_SERVER_AUTH_TOKEN", "operator-token")
	t.Setenv("PBISYNC_REDIS_ADDR", "redis:6379")
	t.Setenv("PBISYNC_REDIS_PASSWORD", "redispw")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.PowerBI.ClientSecret != "s3cret" || !cfg.PowerBI.UsesClientCredentials() {
		t.Errorf("powerbi = %+v, want client credentials from env", cfg.PowerBI)
	}
	if cfg.Server.AuthToken != "operator-token" {
		t.Errorf("AuthToken = %q, want operator-token", cfg.Server.AuthToken)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.Redis.Password != "redispw" {
		t.Errorf("redis = %+v", cfg.Redis)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"frequency too high": "sync:\n  frequency_hours: 169\n",
		"frequency zero":     "sync:\n  frequency_hours: 0\n",
		"bad storage":        "state_storage:\n  type: postgres\n",
		"mysql without host": "state_storage:\n  type: mysql\n",
		"bad workspace id":   "sync:\n  workspaces: [not-a-guid]\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, body)); err == nil {
				t.Fatal("LoadConfig succeeded, want error")
			}
		})
	}
}
