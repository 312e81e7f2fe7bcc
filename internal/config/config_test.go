package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage != nil {
		t.Errorf("Storage = %+v, want nil by default", cfg.Storage)
	}
	if cfg.Engine.DefaultTimeout() != 5*time.Second {
		t.Errorf("DefaultTimeout = %s, want 5s", cfg.Engine.DefaultTimeout())
	}
	if cfg.Engine.MaxOutputBytes() != 1<<20 {
		t.Errorf("MaxOutputBytes = %d, want 1 MB", cfg.Engine.MaxOutputBytes())
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "" {
		t.Errorf("Workspace = %q, want empty", cfg.Workspace)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
workspace: /tmp/sindano-test
engine:
  default_timeout_ms: 250
  max_output_kb: 16
storage:
  driver: sqlite
  sqlite:
    journal_mode: delete
observability:
  metrics:
    enabled: true
scheduler:
  jobs:
    - name: nightly
      schedule: "0 2 * * *"
      documents: [app.js]
      spec_file: patches.yaml
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "/tmp/sindano-test" {
		t.Errorf("Workspace = %q", cfg.Workspace)
	}
	if cfg.Engine.DefaultTimeout() != 250*time.Millisecond {
		t.Errorf("DefaultTimeout = %s", cfg.Engine.DefaultTimeout())
	}
	if cfg.Engine.MaxOutputBytes() != 16*1024 {
		t.Errorf("MaxOutputBytes = %d", cfg.Engine.MaxOutputBytes())
	}
	if cfg.Storage.StorageDriver() != "sqlite" || cfg.Storage.SQLite.JournalMode != "delete" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Observability == nil || cfg.Observability.Metrics == nil || !cfg.Observability.Metrics.Enabled {
		t.Errorf("Observability = %+v", cfg.Observability)
	}
	if len(cfg.Scheduler.Jobs) != 1 || cfg.Scheduler.Jobs[0].Name != "nightly" {
		t.Errorf("Scheduler = %+v", cfg.Scheduler)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SINDANO_WORKSPACE", "/tmp/env-workspace")
	t.Setenv("SINDANO_DB_DSN", "postgres://env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workspace != "/tmp/env-workspace" {
		t.Errorf("Workspace = %q", cfg.Workspace)
	}
	if cfg.Storage == nil || cfg.Storage.StorageDriver() != "postgres" {
		t.Fatalf("Storage = %+v, want postgres via env", cfg.Storage)
	}
	if cfg.Storage.Postgres.DSN != "postgres://env" {
		t.Errorf("DSN = %q", cfg.Storage.Postgres.DSN)
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "postgres without dsn",
			yaml: "storage:\n  driver: postgres\n",
		},
		{
			name: "unknown driver",
			yaml: "storage:\n  driver: oracle\n",
		},
		{
			name: "job without schedule",
			yaml: "scheduler:\n  jobs:\n    - name: x\n      documents: [a.js]\n      spec_file: s.yaml\n",
		},
		{
			name: "job without documents",
			yaml: "scheduler:\n  jobs:\n    - name: x\n      schedule: \"* * * * *\"\n      spec_file: s.yaml\n",
		},
		{
			name: "tracing enabled without endpoint",
			yaml: "observability:\n  tracing:\n    enabled: true\n",
		},
		{
			name: "sample rate out of range",
			yaml: "observability:\n  tracing:\n    enabled: true\n    endpoint: localhost:4317\n    sample_rate: 2.5\n",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("config accepted, want validation error")
			}
		})
	}
}
