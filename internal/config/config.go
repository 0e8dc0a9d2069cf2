// Package config loads the coordinator's runtime configuration: udp_port,
// tcp_port, heartbeat_timeout, heartbeat_scan_interval, tcp_keepalive_idle,
// and tcp_keepalive_interval, plus environment-variable overrides. This
// generalizes the CLI config package's layering — defaults first, optional
// file on top — to a daemon's startup configuration instead of a CLI
// tool's auth state. The package only reads configuration; it never writes
// a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rvmesh/coordinator/internal/coordinator"
)

// ConfigDirName is the directory under the user's home where an optional
// config file may live.
const ConfigDirName = ".rvcoord"

// FileConfig is the on-disk shape, in seconds rather than time.Duration so
// the YAML stays human-editable.
type FileConfig struct {
	UDPPort                   int `yaml:"udp_port"`
	TCPPort                   int `yaml:"tcp_port"`
	HeartbeatTimeoutSeconds   int `yaml:"heartbeat_timeout_seconds"`
	ScanIntervalSeconds       int `yaml:"heartbeat_scan_interval_seconds"`
	KeepAliveIdleSeconds      int `yaml:"tcp_keepalive_idle_seconds"`
	KeepAliveIntervalSeconds  int `yaml:"tcp_keepalive_interval_seconds"`
}

// Load resolves a coordinator.Config starting from spec defaults, applying
// an optional YAML file at path (if non-empty and present), then applying
// RVCOORD_* environment variable overrides. This mirrors the layering the
// CLI config package used for defaults-then-file, extended with an env
// layer since this is a daemon, not an interactively-edited tool.
func Load(path string) (coordinator.Config, error) {
	cfg := coordinator.DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fc FileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
			applyFileConfig(&cfg, fc)
		case os.IsNotExist(err):
			// No file at path is not an error; defaults (plus env) apply.
		default:
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func applyFileConfig(cfg *coordinator.Config, fc FileConfig) {
	if fc.UDPPort != 0 {
		cfg.UDPPort = fc.UDPPort
	}
	if fc.TCPPort != 0 {
		cfg.TCPPort = fc.TCPPort
	}
	if fc.HeartbeatTimeoutSeconds != 0 {
		cfg.HeartbeatTimeout = time.Duration(fc.HeartbeatTimeoutSeconds) * time.Second
	}
	if fc.ScanIntervalSeconds != 0 {
		cfg.HeartbeatScanInterval = time.Duration(fc.ScanIntervalSeconds) * time.Second
	}
	if fc.KeepAliveIdleSeconds != 0 {
		cfg.TCPKeepAliveIdle = time.Duration(fc.KeepAliveIdleSeconds) * time.Second
	}
	if fc.KeepAliveIntervalSeconds != 0 {
		cfg.TCPKeepAliveInterval = time.Duration(fc.KeepAliveIntervalSeconds) * time.Second
	}
}

func applyEnvOverrides(cfg *coordinator.Config) error {
	if err := envInt("RVCOORD_UDP_PORT", &cfg.UDPPort); err != nil {
		return err
	}
	if err := envInt("RVCOORD_TCP_PORT", &cfg.TCPPort); err != nil {
		return err
	}
	if err := envDuration("RVCOORD_HEARTBEAT_TIMEOUT", &cfg.HeartbeatTimeout); err != nil {
		return err
	}
	if err := envDuration("RVCOORD_HEARTBEAT_SCAN_INTERVAL", &cfg.HeartbeatScanInterval); err != nil {
		return err
	}
	if err := envDuration("RVCOORD_TCP_KEEPALIVE_IDLE", &cfg.TCPKeepAliveIdle); err != nil {
		return err
	}
	if err := envDuration("RVCOORD_TCP_KEEPALIVE_INTERVAL", &cfg.TCPKeepAliveInterval); err != nil {
		return err
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = parsed
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	*dst = time.Duration(seconds) * time.Second
	return nil
}

// DefaultPath returns ~/.rvcoord/config.yaml, the conventional location
// for an optional config file; callers are free to pass any other path to
// Load.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home + "/" + ConfigDirName + "/config.yaml", nil
}
