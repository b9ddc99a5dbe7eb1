package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STRONGBOT_CONFIG", "LEDGER_BACKEND", "DATABASE_URL", "PG_DSN", "CHECK_INTERVAL",
		"MQTT_BROKER", "MQTT_TOPIC", "MQTT_QOS", "EXPENSE_CATEGORIES", "DASHBOARD_URLS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_CHANNEL_ID", "chan-1")
	t.Setenv("HELIUS_API_KEY", "helius")
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("HELIUS_API_KEY", "")

	_, err := loadConfig()
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, name := range []string{"DISCORD_TOKEN", "HELIUS_API_KEY"} {
		if !strings.Contains(err.Error(), name) {
			t.Fatalf("expected %s in %q", name, err)
		}
	}
	if strings.Contains(err.Error(), "DISCORD_CHANNEL_ID") {
		t.Fatalf("unexpected DISCORD_CHANNEL_ID in %q", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.CheckInterval != time.Hour {
		t.Fatalf("expected 1h interval, got %s", cfg.CheckInterval)
	}
	if cfg.LedgerBackend != "memory" {
		t.Fatalf("expected memory backend, got %s", cfg.LedgerBackend)
	}
	if cfg.SessionIdle != 10*time.Minute || cfg.SourceTimeout != 90*time.Second {
		t.Fatalf("unexpected timeouts %s %s", cfg.SessionIdle, cfg.SourceTimeout)
	}
	if len(cfg.File.DashboardURLs) != 1 || cfg.File.DashboardURLs[0] != defaultDashboardURL {
		t.Fatalf("unexpected dashboard urls %v", cfg.File.DashboardURLs)
	}
	if cfg.TokenMint != defaultTokenMint {
		t.Fatalf("unexpected mint %s", cfg.TokenMint)
	}
	if cfg.metricNames() != nil || cfg.tokenFields() != nil {
		t.Fatalf("expected default layout and token fields")
	}
}

func TestLoadConfigFile(t *testing.T) {
	setRequiredEnv(t)
	path := filepath.Join(t.TempDir(), "strongbot.yaml")
	data := `
categories: [Travel, Hosting]
metrics: [sol_price, epoch]
token_fields:
  volume24h: volume_24h
mqtt:
  broker: tcp://localhost:1883
  topic: validators/strongbot
  qos: 2
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("STRONGBOT_CONFIG", path)
	t.Setenv("CHECK_INTERVAL", "60")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.CheckInterval != time.Minute {
		t.Fatalf("expected 1m interval, got %s", cfg.CheckInterval)
	}
	if len(cfg.File.Categories) != 2 || cfg.File.Categories[1] != "Hosting" {
		t.Fatalf("unexpected categories %v", cfg.File.Categories)
	}
	names := cfg.metricNames()
	if len(names) != 2 || names[0] != "sol_price" {
		t.Fatalf("unexpected metric names %v", names)
	}
	if cfg.tokenFields()["volume24h"] != "volume_24h" {
		t.Fatalf("unexpected token fields %v", cfg.tokenFields())
	}
	if cfg.MQTT.BrokerURL != "tcp://localhost:1883" || cfg.MQTT.Topic != "validators/strongbot" || cfg.MQTT.QoS != 2 {
		t.Fatalf("unexpected mqtt config %+v", cfg.MQTT)
	}
}

func TestLoadConfigLedgerBackend(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LEDGER_BACKEND", "postgres")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error for postgres without dsn")
	}

	t.Setenv("PG_DSN", "postgres://localhost/strongbot")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/strongbot" {
		t.Fatalf("unexpected dsn %s", cfg.DatabaseURL)
	}

	t.Setenv("LEDGER_BACKEND", "gsheets")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
