package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	monitor "strongbot/internal/monitor/domain"
	"strongbot/internal/monitor/notify"
)

const (
	defaultDashboardURL = "https://svt.one/dashboard/Ac1beBKixfNdrTAac7GRaTsJTxLyvgGvJjvy4qQfvyfc"
	defaultTokenMint    = "strng7mqqc1MBJJV6vMzYbEqnwVGvKKGKedeCvtktWA"
)

// fileConfig is the optional YAML layer named by STRONGBOT_CONFIG.
type fileConfig struct {
	DashboardURLs  []string          `yaml:"dashboard_urls"`
	ExtractPrompt  string            `yaml:"extract_prompt"`
	Metrics        []string          `yaml:"metrics"`
	Categories     []string          `yaml:"categories"`
	ReportTemplate string            `yaml:"report_template"`
	TokenFields    map[string]string `yaml:"token_fields"`
	MQTT           mqttFileConfig    `yaml:"mqtt"`
}

type mqttFileConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

type config struct {
	HTTPAddr string

	DiscordToken       string
	DiscordChannelID   string
	DiscordPublicKey   string
	DiscordAPIBase     string
	OutgoingsChannelID string

	HeliusAPIKey    string
	RPCEndpoint     string
	FirecrawlAPIKey string
	TokenAPIKey     string
	TokenMint       string
	IdentityPubkey  string
	VotePubkey      string

	CheckInterval   time.Duration
	FirstCycle      string
	SourceTimeout   time.Duration
	StaleAfter      time.Duration
	DispatchTimeout time.Duration
	DedupeWindow    time.Duration

	LedgerBackend string
	DatabaseURL   string
	SheetPath     string
	SessionIdle   time.Duration
	StrictStart   bool

	JWTSecret string
	MQTT      notify.MQTTConfig

	File fileConfig
}

func loadConfig() (config, error) {
	cfg := config{
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		DiscordToken:       os.Getenv("DISCORD_TOKEN"),
		DiscordChannelID:   os.Getenv("DISCORD_CHANNEL_ID"),
		DiscordPublicKey:   os.Getenv("DISCORD_PUBLIC_KEY"),
		DiscordAPIBase:     os.Getenv("DISCORD_API_BASE"),
		OutgoingsChannelID: os.Getenv("OUTGOINGS_CHANNEL_ID"),
		HeliusAPIKey:       os.Getenv("HELIUS_API_KEY"),
		RPCEndpoint:        os.Getenv("SOLANA_RPC_URL"),
		FirecrawlAPIKey:    os.Getenv("FIRECRAWL_API_KEY"),
		TokenAPIKey:        os.Getenv("TOKEN_API_KEY"),
		TokenMint:          getenvDefault("STRONGSOL_MINT", defaultTokenMint),
		IdentityPubkey:     os.Getenv("VALIDATOR_IDENTITY"),
		VotePubkey:         os.Getenv("VALIDATOR_VOTE_ACCOUNT"),
		CheckInterval:      time.Duration(getenvIntDefault("CHECK_INTERVAL", 3600)) * time.Second,
		FirstCycle:         getenvDefault("FIRST_CYCLE_POLICY", "seed"),
		SourceTimeout:      getenvDuration("SOURCE_TIMEOUT", 90*time.Second),
		StaleAfter:         getenvDuration("STALE_AFTER", 0),
		DispatchTimeout:    getenvDuration("DISPATCH_TIMEOUT", 2*time.Minute),
		DedupeWindow:       getenvDuration("REPORT_DEDUP_WINDOW", 0),
		LedgerBackend:      strings.ToLower(getenvDefault("LEDGER_BACKEND", "memory")),
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		SheetPath:          getenvDefault("LEDGER_SHEET_PATH", "var/expenses.xlsx"),
		SessionIdle:        getenvDuration("EXPENSE_SESSION_IDLE", 10*time.Minute),
		StrictStart:        getenvBool("EXPENSE_STRICT_START", false),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		MQTT: notify.MQTTConfig{
			BrokerURL: os.Getenv("MQTT_BROKER"),
			ClientID:  os.Getenv("MQTT_CLIENT_ID"),
			Topic:     getenvDefault("MQTT_TOPIC", "strongbot/reports"),
			Username:  os.Getenv("MQTT_USERNAME"),
			Password:  os.Getenv("MQTT_PASSWORD"),
			QoS:       byte(getenvIntDefault("MQTT_QOS", 1)),
		},
	}

	if path := os.Getenv("STRONGBOT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg.File); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}
	cfg.applyFile()

	var missing []string
	for _, v := range []struct{ key, value string }{
		{"DISCORD_TOKEN", cfg.DiscordToken},
		{"DISCORD_CHANNEL_ID", cfg.DiscordChannelID},
		{"HELIUS_API_KEY", cfg.HeliusAPIKey},
	} {
		if v.value == "" {
			missing = append(missing, v.key)
		}
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if cfg.CheckInterval <= 0 {
		return cfg, errors.New("CHECK_INTERVAL must be positive")
	}
	switch cfg.LedgerBackend {
	case "memory", "sheet":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, errors.New("LEDGER_BACKEND=postgres requires DATABASE_URL or PG_DSN")
		}
	default:
		return cfg, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.LedgerBackend)
	}
	return cfg, nil
}

// applyFile fills env gaps from the YAML layer.
func (c *config) applyFile() {
	if len(c.File.DashboardURLs) == 0 {
		c.File.DashboardURLs = splitCSV(getenvDefault("DASHBOARD_URLS", defaultDashboardURL))
	}
	if c.MQTT.BrokerURL == "" {
		c.MQTT.BrokerURL = c.File.MQTT.Broker
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = c.File.MQTT.ClientID
	}
	if c.File.MQTT.Topic != "" && os.Getenv("MQTT_TOPIC") == "" {
		c.MQTT.Topic = c.File.MQTT.Topic
	}
	if c.MQTT.Username == "" {
		c.MQTT.Username = c.File.MQTT.Username
	}
	if c.File.MQTT.QoS > 0 && os.Getenv("MQTT_QOS") == "" {
		c.MQTT.QoS = byte(c.File.MQTT.QoS)
	}
	if c.File.MQTT.Retain {
		c.MQTT.Retain = true
	}
	if len(c.File.Categories) == 0 {
		c.File.Categories = splitCSV(os.Getenv("EXPENSE_CATEGORIES"))
	}
}

// metricNames returns the configured report order, or nil for the default layout.
func (c config) metricNames() []monitor.MetricName {
	if len(c.File.Metrics) == 0 {
		return nil
	}
	out := make([]monitor.MetricName, 0, len(c.File.Metrics))
	for _, name := range c.File.Metrics {
		out = append(out, monitor.MetricName(strings.TrimSpace(name)))
	}
	return out
}

func (c config) tokenFields() map[string]monitor.MetricName {
	if len(c.File.TokenFields) == 0 {
		return nil
	}
	out := make(map[string]monitor.MetricName, len(c.File.TokenFields))
	for key, metric := range c.File.TokenFields {
		out[key] = monitor.MetricName(metric)
	}
	return out
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
