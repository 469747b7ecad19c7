package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Addr != defaultAddr {
		t.Fatalf("expected addr=%s, got %s", defaultAddr, cfg.Addr)
	}
	if cfg.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("expected shutdownTimeout=%s, got %s", defaultShutdownTimeout, cfg.ShutdownTimeout)
	}
	if cfg.RateLimitBurst != defaultRateBurst {
		t.Fatalf("expected rateLimitBurst=%d, got %d", defaultRateBurst, cfg.RateLimitBurst)
	}
	if cfg.PendingInterval != defaultPendingInterval {
		t.Fatalf("expected pendingInterval=%s, got %s", defaultPendingInterval, cfg.PendingInterval)
	}
	if cfg.SuccessWeight != 0 || cfg.TransientWeight != 0 || cfg.DelayedWeight != 0 {
		t.Fatalf("expected zero weights deferring to the simulator, got %d/%d/%d",
			cfg.SuccessWeight, cfg.TransientWeight, cfg.DelayedWeight)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
addr: ":9090"
shutdownTimeout: 30s
rateLimitRps: 50
successWeight: 80
transientWeight: 10
delayedWeight: 10
delayMin: 100ms
delayMax: 250ms
seed: 42
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Fatalf("expected addr=:9090, got %s", cfg.Addr)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("expected shutdownTimeout=30s, got %s", cfg.ShutdownTimeout)
	}
	if cfg.RateLimitRPS != 50 {
		t.Fatalf("expected rateLimitRps=50, got %v", cfg.RateLimitRPS)
	}
	if cfg.SuccessWeight != 80 || cfg.TransientWeight != 10 || cfg.DelayedWeight != 10 {
		t.Fatalf("expected weights 80/10/10, got %d/%d/%d",
			cfg.SuccessWeight, cfg.TransientWeight, cfg.DelayedWeight)
	}
	if cfg.DelayMin != 100*time.Millisecond || cfg.DelayMax != 250*time.Millisecond {
		t.Fatalf("expected delay bounds 100ms/250ms, got %s/%s", cfg.DelayMin, cfg.DelayMax)
	}
	if cfg.Seed != 42 {
		t.Fatalf("expected seed=42, got %d", cfg.Seed)
	}
	// Keys the file leaves out keep their defaults.
	if cfg.RateLimitBurst != defaultRateBurst {
		t.Fatalf("expected rateLimitBurst=%d, got %d", defaultRateBurst, cfg.RateLimitBurst)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
addr: ":7000"
delayMin: 1s
`)
	t.Setenv("SUBMITONCE_ADDR", ":7001")
	t.Setenv("SUBMITONCE_DELAY_MIN", "250ms")
	t.Setenv("SUBMITONCE_VERBOSE", "true")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Addr != ":7001" {
		t.Fatalf("expected env addr=:7001, got %s", cfg.Addr)
	}
	if cfg.DelayMin != 250*time.Millisecond {
		t.Fatalf("expected env delayMin=250ms, got %s", cfg.DelayMin)
	}
	if !cfg.Verbose {
		t.Fatal("expected env verbose=true")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "addr: [:::\n")

	if _, err := loadConfig(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
