package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoad_EnvSubstitution(t *testing.T) {
	// Setup env var
	os.Setenv("TEST_RELAY_BACKEND", "https://pos.example.com/api")
	defer os.Unsetenv("TEST_RELAY_BACKEND")

	// Create temp config file
	configContent := `
backend:
  base_url: ${TEST_RELAY_BACKEND}
`
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Backend.BaseURL != "https://pos.example.com/api" {
		t.Errorf("Expected base_url https://pos.example.com/api, got %s", cfg.Backend.BaseURL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/relay.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("backend:\n  base_url: http://localhost:3000\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Backend.DefaultTimeout != 4*time.Second {
		t.Errorf("DefaultTimeout = %v, want 4s", cfg.Backend.DefaultTimeout)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != 500*time.Millisecond || cfg.Retry.MaxDelay != 2*time.Second {
		t.Errorf("Retry = %+v, want 3/500ms/2s", cfg.Retry)
	}
	if cfg.Circuit.MaxFailures != 5 || cfg.Circuit.Cooldown != 30*time.Second || cfg.Circuit.HalfOpenMaxProbes != 3 {
		t.Errorf("Circuit = %+v, want 5/30s/3", cfg.Circuit)
	}
	if cfg.Circuit.IgnoreClientErrors || cfg.Circuit.ResetOnSuccess {
		t.Error("client errors count and forgiveness is gradual by default")
	}
	if cfg.Token.Key != "authToken" {
		t.Errorf("Token.Key = %q, want authToken", cfg.Token.Key)
	}
	if cfg.Token.Storage != StorageFile {
		t.Errorf("Token.Storage = %q, want file", cfg.Token.Storage)
	}
	if cfg.Network.Mode != NetworkStatic {
		t.Errorf("Network.Mode = %q, want static", cfg.Network.Mode)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(`
backend:
  base_url: http://localhost:3000
  default_timeout: 8s
  max_idle_conns_per_host: 4
retry:
  max_attempts: 5
  base_delay: 250ms
  max_delay: 4s
circuit:
  cooldown: 1m
  ignore_client_errors: true
network:
  mode: http
  interval: 15s
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Backend.DefaultTimeout != 8*time.Second {
		t.Errorf("DefaultTimeout = %v, want 8s", cfg.Backend.DefaultTimeout)
	}
	if cfg.Backend.MaxIdleConnsPerHost != 4 {
		t.Errorf("MaxIdleConnsPerHost = %d, want 4", cfg.Backend.MaxIdleConnsPerHost)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Circuit.Cooldown != time.Minute || !cfg.Circuit.IgnoreClientErrors {
		t.Errorf("Circuit = %+v", cfg.Circuit)
	}
	if cfg.Network.Interval != 15*time.Second {
		t.Errorf("Network.Interval = %v, want 15s", cfg.Network.Interval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"base above max", func(c *AppConfig) { c.Retry.BaseDelay = 5 * time.Second }, "base_delay"},
		{"zero attempts", func(c *AppConfig) { c.Retry.MaxAttempts = -1 }, "max_attempts"},
		{"unknown network", func(c *AppConfig) { c.Network.Mode = "wifi" }, "network.mode"},
		{"grpc without target", func(c *AppConfig) { c.Network.Mode = NetworkGRPC }, "grpc_target"},
		{"redis without url", func(c *AppConfig) { c.Token.Storage = StorageRedis }, "redis.url"},
		{"database without url", func(c *AppConfig) { c.Token.Storage = StorageDatabase }, "database.url"},
		{"unknown storage", func(c *AppConfig) { c.Token.Storage = "cookie" }, "token.storage"},
		{"negative queue", func(c *AppConfig) { c.Queue.MaxDepth = -1 }, "max_depth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
