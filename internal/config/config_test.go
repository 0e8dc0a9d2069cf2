package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UDPPort != 5000 || cfg.TCPPort != 5001 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.HeartbeatTimeout != 60*time.Second {
		t.Fatalf("unexpected heartbeat timeout: %v", cfg.HeartbeatTimeout)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "udp_port: 6000\ntcp_port: 6001\nheartbeat_timeout_seconds: 90\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UDPPort != 6000 || cfg.TCPPort != 6001 {
		t.Fatalf("unexpected ports: %+v", cfg)
	}
	if cfg.HeartbeatTimeout != 90*time.Second {
		t.Fatalf("unexpected heartbeat timeout: %v", cfg.HeartbeatTimeout)
	}
	// Unspecified fields keep their defaults.
	if cfg.HeartbeatScanInterval != 10*time.Second {
		t.Fatalf("unexpected scan interval: %v", cfg.HeartbeatScanInterval)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UDPPort != 5000 {
		t.Fatalf("expected default udp port, got %d", cfg.UDPPort)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	t.Setenv("RVCOORD_UDP_PORT", "7000")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("udp_port: 6000\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.UDPPort != 7000 {
		t.Fatalf("expected env override to win, got %d", cfg.UDPPort)
	}
}
