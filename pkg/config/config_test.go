package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load(New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livesync.toml")
	body := `
[server]
url = "https://tasks.example.com"

[supervisor]
retry_budget = 4

[backoff]
base = "250ms"
cap = "4s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LIVESYNC_FALLBACK_POLL_INTERVAL", "2s")
	t.Setenv("LIVESYNC_LOGGING_FORMAT", "json")

	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.URL != "https://tasks.example.com" || cfg.Supervisor.RetryBudget != 4 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Backoff.Base != 250*time.Millisecond || cfg.Backoff.Cap != 4*time.Second || cfg.Backoff.Jitter != time.Second {
		t.Errorf("backoff = %+v", cfg.Backoff)
	}
	if cfg.Fallback.PollInterval != 2*time.Second || cfg.Logging.Format != "json" {
		t.Errorf("env values not applied: %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(New(), filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected an error for a missing explicit file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"scheme", func(c *Config) { c.Server.URL = "ftp://x" }, "server.url"},
		{"budget", func(c *Config) { c.Supervisor.RetryBudget = 0 }, "retry_budget"},
		{"backoff", func(c *Config) { c.Backoff.Cap = time.Millisecond }, "backoff"},
		{"poll", func(c *Config) { c.Fallback.PollInterval = 0 }, "poll_interval"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestPrimaryURL(t *testing.T) {
	tests := []struct {
		server string
		path   string
		want   string
	}{
		{"http://127.0.0.1:3333", "/ws/", "ws://127.0.0.1:3333/ws/"},
		{"https://tasks.example.com/base", "/ws/", "wss://tasks.example.com/base/ws/"},
		{"http://localhost:8080", "live", "ws://localhost:8080/live"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			cfg := Default()
			cfg.Server.URL = tt.server
			cfg.Primary.Path = tt.path
			got, err := cfg.PrimaryURL()
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteExampleLoadsBack(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteExample(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "[supervisor]") || !strings.Contains(buf.String(), `poll_interval = "5s"`) {
		t.Errorf("example = %s", buf.String())
	}
	path := filepath.Join(t.TempDir(), "livesync.toml")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("round trip = %+v", cfg)
	}
}
