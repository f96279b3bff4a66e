package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Bot: BotConfig{
			Name:              "PedidoBot",
			MaxToolIterations: 4,
			MaxTokens:         1024,
		},
		WhatsApp: WhatsAppConfig{
			GraphAPIBase:      "https://graph.facebook.com/v21.0",
			MediaDir:          filepath.Join(home, ".pedidobot", "media"),
			MaxImageDimension: 1024,
			SendRate:          10,
			STTTimeoutSeconds: 30,
		},
		Provider: ProviderConfig{
			Name:  "openai",
			Model: "gpt-4o-mini",
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18790,
			RateLimitRPM: 60,
		},
		Database: DatabaseConfig{
			SQLitePath: filepath.Join(home, ".pedidobot", "pedidobot.db"),
		},
		Debounce: DebounceConfig{
			WindowSeconds: 3,
			BurstLimit:    8,
		},
		Handoff: HandoffConfig{
			TicketWindowHours: 12,
			ErrorThreshold:    5,
		},
		Geo: GeoConfig{
			NominatimBase: "https://nominatim.openstreetmap.org",
			UserAgent:     "pedidobot/1.0",
		},
		Reminders: RemindersConfig{
			CronExpr:     "*/15 * * * *",
			StaleMinutes: 45,
			TicketHours:  24,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "pedidobot",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error; defaults plus env are enough to run.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets: env only, never from file.
	envStr("PEDIDOBOT_WA_ACCESS_TOKEN", &c.WhatsApp.AccessToken)
	envStr("PEDIDOBOT_WA_VERIFY_TOKEN", &c.WhatsApp.VerifyToken)
	envStr("PEDIDOBOT_WA_APP_SECRET", &c.WhatsApp.AppSecret)
	envStr("PEDIDOBOT_PROVIDER_API_KEY", &c.Provider.APIKey)
	envStr("PEDIDOBOT_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("PEDIDOBOT_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("PEDIDOBOT_TELEGRAM_TOKEN", &c.Notify.BotToken)
	envStr("PEDIDOBOT_STT_API_KEY", &c.WhatsApp.STTAPIKey)

	// Convenience overrides for container deployments.
	envStr("PEDIDOBOT_WA_PHONE_NUMBER_ID", &c.WhatsApp.PhoneNumberID)
	envStr("PEDIDOBOT_PROVIDER_MODEL", &c.Provider.Model)
	envStr("PEDIDOBOT_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	if v := os.Getenv("PEDIDOBOT_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}

	if c.WhatsApp.AccessToken != "" && c.WhatsApp.PhoneNumberID != "" {
		c.WhatsApp.Enabled = true
	}
	if c.Notify.BotToken != "" {
		c.Notify.Enabled = true
	}
	if c.Telemetry.OTLPEndpoint != "" {
		c.Telemetry.Enabled = true
	}
}
