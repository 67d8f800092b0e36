package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-recorder
homeassistant:
  url: http://ha.local:8123
  token: llat-abc123
database:
  postgres:
    host: localhost
    port: 5432
    name: ha_history
    user: recorder
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-recorder" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-recorder")
	}
	if cfg.HomeAssistant.URL != "http://ha.local:8123" {
		t.Errorf("HomeAssistant.URL = %q, want %q", cfg.HomeAssistant.URL, "http://ha.local:8123")
	}
	if cfg.HomeAssistant.Token != "llat-abc123" {
		t.Errorf("HomeAssistant.Token = %q, want %q", cfg.HomeAssistant.Token, "llat-abc123")
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_HA_TOKEN", "llat-secret123")
	t.Setenv("TEST_DB_PASSWORD", "dbsecret")

	yaml := `
instance:
  id: test-recorder
homeassistant:
  url: http://ha.local:8123
  token: ${TEST_HA_TOKEN}
database:
  postgres:
    host: localhost
    name: ha_history
    user: recorder
    password: ${TEST_DB_PASSWORD}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HomeAssistant.Token != "llat-secret123" {
		t.Errorf("HomeAssistant.Token = %q, want %q", cfg.HomeAssistant.Token, "llat-secret123")
	}
	if cfg.Database.Postgres.Password != "dbsecret" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "dbsecret")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-recorder
homeassistant:
  token: llat-abc123
database:
  postgres:
    host: localhost
    name: ha_history
    user: recorder
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.HomeAssistant.URL != DefaultHAURL {
		t.Errorf("HomeAssistant.URL = %q, want default %q", cfg.HomeAssistant.URL, DefaultHAURL)
	}
	if cfg.HomeAssistant.Timeout != DefaultRESTTimeout {
		t.Errorf("HomeAssistant.Timeout = %v, want default %v", cfg.HomeAssistant.Timeout, DefaultRESTTimeout)
	}
	if cfg.WebSocket.PingInterval != DefaultPingInterval {
		t.Errorf("WebSocket.PingInterval = %v, want default %v", cfg.WebSocket.PingInterval, DefaultPingInterval)
	}
	if cfg.WebSocket.MaxFrameSize != DefaultMaxFrameSize {
		t.Errorf("WebSocket.MaxFrameSize = %d, want default %d", cfg.WebSocket.MaxFrameSize, DefaultMaxFrameSize)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Database.Postgres.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Postgres.MaxConns = %d, want default %d", cfg.Database.Postgres.MaxConns, DefaultMaxConns)
	}
	if cfg.Writers.BatchSize != DefaultBatchSize {
		t.Errorf("Writers.BatchSize = %d, want default %d", cfg.Writers.BatchSize, DefaultBatchSize)
	}
	if cfg.Poller.Interval != DefaultPollInterval {
		t.Errorf("Poller.Interval = %v, want default %v", cfg.Poller.Interval, DefaultPollInterval)
	}
	if cfg.Log.Level != DefaultLogLevel {
		t.Errorf("Log.Level = %q, want default %q", cfg.Log.Level, DefaultLogLevel)
	}
}

func TestValidate(t *testing.T) {
	validDB := DatabaseConfig{
		Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10, MinConns: 2},
	}

	tests := []struct {
		name    string
		cfg     RecorderConfig
		wantErr string
	}{
		{
			name:    "missing instance id",
			cfg:     RecorderConfig{},
			wantErr: "instance.id is required",
		},
		{
			name: "missing token",
			cfg: RecorderConfig{
				Instance:      InstanceConfig{ID: "test"},
				HomeAssistant: HomeAssistantConfig{URL: "http://ha.local:8123"},
			},
			wantErr: "homeassistant.token is required",
		},
		{
			name: "missing postgres host",
			cfg: RecorderConfig{
				Instance:      InstanceConfig{ID: "test"},
				HomeAssistant: HomeAssistantConfig{URL: "http://ha.local:8123", Token: "llat"},
			},
			wantErr: "database.postgres.host is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: RecorderConfig{
				Instance:      InstanceConfig{ID: "test"},
				HomeAssistant: HomeAssistantConfig{URL: "http://ha.local:8123", Token: "llat"},
				Database: DatabaseConfig{
					Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10},
				},
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "bad log level",
			cfg: RecorderConfig{
				Instance:      InstanceConfig{ID: "test"},
				HomeAssistant: HomeAssistantConfig{URL: "http://ha.local:8123", Token: "llat"},
				Database:      validDB,
				Writers:       WritersConfig{BatchSize: 500, FlushInterval: time.Second, BufferSize: 10000},
				Log:           LogConfig{Level: "verbose", Format: "text"},
			},
			wantErr: `log.level must be debug, info, warn, or error, got "verbose"`,
		},
		{
			name: "valid config",
			cfg: RecorderConfig{
				Instance:      InstanceConfig{ID: "test"},
				HomeAssistant: HomeAssistantConfig{URL: "http://ha.local:8123", Token: "llat"},
				Database:      validDB,
				Writers:       WritersConfig{BatchSize: 500, FlushInterval: time.Second, BufferSize: 10000},
				Poller:        PollerConfig{Interval: 15 * time.Minute},
				Log:           LogConfig{Level: "info", Format: "text"},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
