package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
instance:
  id: monitor-test
rpc:
  http_url: https://rpc.example.com
  ws_url: wss://rpc.example.com
programs:
  amm: AmmProg1111111111111111111111111111111111111
  autocrat: AutoProg111111111111111111111111111111111111
database:
  host: localhost
  name: futarchy
  user: monitor
  password: secret
server:
  port: 8080
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Instance.ID != "monitor-test" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "monitor-test")
	}
	if cfg.RPC.WSURL != "wss://rpc.example.com" {
		t.Errorf("RPC.WSURL = %q, want %q", cfg.RPC.WSURL, "wss://rpc.example.com")
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "from-env")

	yaml := strings.Replace(validYAML, "password: secret", "password: ${TEST_DB_PASSWORD}", 1)
	cfg, err := Load(writeTempConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Password != "from-env" {
		t.Errorf("Database.Password = %q, want %q", cfg.Database.Password, "from-env")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadAndValidate_AppliesDefaults(t *testing.T) {
	cfg, err := LoadAndValidate(writeTempConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadAndValidate() error = %v", err)
	}

	if cfg.RPC.Commitment != "confirmed" {
		t.Errorf("RPC.Commitment = %q, want %q", cfg.RPC.Commitment, "confirmed")
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Stream.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Stream.ReconnectBaseDelay = %v, want %v", cfg.Stream.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Monitor.ReconcileInterval != 5*time.Minute {
		t.Errorf("Monitor.ReconcileInterval = %v, want %v", cfg.Monitor.ReconcileInterval, 5*time.Minute)
	}
	if cfg.Writer.BatchSize != DefaultBatchSize {
		t.Errorf("Writer.BatchSize = %d, want %d", cfg.Writer.BatchSize, DefaultBatchSize)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MonitorConfig)
		wantSub string
	}{
		{"missing instance id", func(c *MonitorConfig) { c.Instance.ID = "" }, "instance.id"},
		{"missing http url", func(c *MonitorConfig) { c.RPC.HTTPURL = "" }, "rpc.http_url"},
		{"missing ws url", func(c *MonitorConfig) { c.RPC.WSURL = "" }, "rpc.ws_url"},
		{"bad commitment", func(c *MonitorConfig) { c.RPC.Commitment = "speculative" }, "rpc.commitment"},
		{"missing amm program", func(c *MonitorConfig) { c.Programs.AMM = "" }, "programs.amm"},
		{"missing autocrat program", func(c *MonitorConfig) { c.Programs.Autocrat = "" }, "programs.autocrat"},
		{"missing db host", func(c *MonitorConfig) { c.Database.Host = "" }, "database.host"},
		{"min conns exceed max", func(c *MonitorConfig) { c.Database.MinConns = 20 }, "min_conns"},
		{"base delay exceeds max", func(c *MonitorConfig) { c.Stream.ReconnectBaseDelay = time.Minute }, "reconnect_base_delay"},
		{"bad port", func(c *MonitorConfig) { c.Server.Port = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadAndValidate(writeTempConfig(t, validYAML))
			if err != nil {
				t.Fatalf("LoadAndValidate() error = %v", err)
			}
			tt.mutate(cfg)

			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoadAndValidate_RejectsInvalid(t *testing.T) {
	yaml := strings.Replace(validYAML, "  ws_url: wss://rpc.example.com\n", "", 1)
	if _, err := LoadAndValidate(writeTempConfig(t, yaml)); err == nil {
		t.Error("expected error for config missing rpc.ws_url")
	}
}
