package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8090" {
		t.Fatalf("expected default port 8090, got %s", cfg.Port)
	}
	if cfg.TerminalID != "terminal-1" {
		t.Fatalf("expected default terminal id, got %s", cfg.TerminalID)
	}
	if cfg.ProbeIntervalSeconds != 15 || cfg.CatalogTTLSeconds != 86400 || cfg.SyncedRetentionDays != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Address() != ":8090" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("TERMINAL_ID", "caja-3")
	t.Setenv("SYNCED_RETENTION_DAYS", "7")

	cfg := Load()
	if cfg.Port != "9000" || cfg.TerminalID != "caja-3" || cfg.SyncedRetentionDays != 7 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsNonsenseNumbers(t *testing.T) {
	t.Setenv("PROBE_INTERVAL_SECONDS", "zero")
	t.Setenv("SYNCED_RETENTION_DAYS", "-4")

	cfg := Load()
	if cfg.ProbeIntervalSeconds != 15 {
		t.Fatalf("bad probe interval must fall back to 15, got %d", cfg.ProbeIntervalSeconds)
	}
	if cfg.SyncedRetentionDays != 30 {
		t.Fatalf("negative retention must fall back to 30, got %d", cfg.SyncedRetentionDays)
	}
}

func TestHealthURLDerivedFromOrderURL(t *testing.T) {
	t.Setenv("REMOTE_ORDER_URL", "https://orders.example.com/api/v1/orders/")

	cfg := Load()
	if cfg.RemoteHealthURL != "https://orders.example.com/api/v1/orders/healthz" {
		t.Fatalf("unexpected derived health url %s", cfg.RemoteHealthURL)
	}

	t.Setenv("REMOTE_HEALTH_URL", "https://orders.example.com/healthz")
	cfg = Load()
	if cfg.RemoteHealthURL != "https://orders.example.com/healthz" {
		t.Fatalf("explicit health url must win, got %s", cfg.RemoteHealthURL)
	}
}

func TestKafkaBrokersCSV(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092 ,,broker-3:9092")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 3 {
		t.Fatalf("expected 3 brokers, got %v", cfg.KafkaBrokers)
	}
	if cfg.KafkaBrokers[1] != "broker-2:9092" {
		t.Fatalf("broker not trimmed: %q", cfg.KafkaBrokers[1])
	}
}
