package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"session ttl", cfg.Session.TTLSeconds, 3600},
		{"idle timeout", cfg.Session.IdleTimeoutSeconds, 1800},
		{"event queue capacity", cfg.Session.EventQueueCapacity, 256},
		{"parallel max in flight", cfg.Scheduler.ParallelMaxInFlight, 16},
		{"process max in flight", cfg.Scheduler.ProcessMaxInFlight, 256},
		{"default timeout", cfg.Scheduler.DefaultTimeoutSeconds, 60},
		{"max retries", cfg.AgentClient.MaxRetries, 3},
		{"backoff base", cfg.AgentClient.BackoffBaseMS, 250},
		{"backoff cap", cfg.AgentClient.BackoffCapMS, 4000},
		{"heartbeat timeout", cfg.Registry.HeartbeatTimeoutSeconds, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %d, want %d", tt.got, tt.want)
			}
		})
	}

	if cfg.Policy.Default != "deny" {
		t.Errorf("policy default = %q, want deny", cfg.Policy.Default)
	}
	if !cfg.Policy.ReloadsOnSignal() {
		t.Error("reload_on_signal should default to true")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	data := []byte(`
http_port: 9090
session:
  ttl_seconds: 120
  event_queue_capacity: 8
scheduler:
  parallel_max_in_flight: 4
policy:
  default: allow
  reload_on_signal: true
planner:
  provider: mock
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.Session.TTLSeconds != 120 {
		t.Errorf("TTLSeconds = %d, want 120", cfg.Session.TTLSeconds)
	}
	if cfg.Session.EventQueueCapacity != 8 {
		t.Errorf("EventQueueCapacity = %d, want 8", cfg.Session.EventQueueCapacity)
	}
	// Unset options still get defaults.
	if cfg.Scheduler.DefaultTimeoutSeconds != 60 {
		t.Errorf("DefaultTimeoutSeconds = %d, want 60", cfg.Scheduler.DefaultTimeoutSeconds)
	}
	if cfg.Policy.Default != "allow" || !cfg.Policy.ReloadsOnSignal() {
		t.Errorf("policy = %+v", cfg.Policy)
	}
}

func TestLoadRejectsBadPolicyDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	if err := os.WriteFile(path, []byte("policy:\n  default: maybe\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for bad policy default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AGENTCORE_HTTP_PORT", "7070")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTPPort != 7070 {
		t.Errorf("HTTPPort = %d, want 7070", cfg.HTTPPort)
	}
}
