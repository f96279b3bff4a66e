// Package config loads and watches the gateway configuration. The file
// format is JSON5 so operators can comment their config; secrets are never
// read from the file, only from PEDIDOBOT_* environment variables.
package config

// Config is the root configuration.
type Config struct {
	Bot       BotConfig       `json:"bot"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Provider  ProviderConfig  `json:"provider"`
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Debounce  DebounceConfig  `json:"debounce,omitempty"`
	Handoff   HandoffConfig   `json:"handoff,omitempty"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
	Geo       GeoConfig       `json:"geo,omitempty"`
	Reminders RemindersConfig `json:"reminders,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// BotConfig shapes the agent's behavior.
type BotConfig struct {
	Name              string `json:"name,omitempty"`                // bot display name
	SystemPromptPath  string `json:"system_prompt_path,omitempty"`  // optional prompt override file
	MaxToolIterations int    `json:"max_tool_iterations,omitempty"` // provider round-trips per batch
	MaxTokens         int    `json:"max_tokens,omitempty"`
}

// WhatsAppConfig configures the WhatsApp Cloud API channel.
// AccessToken, VerifyToken, and AppSecret come from env only.
type WhatsAppConfig struct {
	Enabled       bool   `json:"enabled"`
	PhoneNumberID string `json:"phone_number_id"`
	GraphAPIBase  string `json:"graph_api_base,omitempty"` // default https://graph.facebook.com/v21.0
	AccessToken   string `json:"-"`                        // from env PEDIDOBOT_WA_ACCESS_TOKEN only
	VerifyToken   string `json:"-"`                        // from env PEDIDOBOT_WA_VERIFY_TOKEN only
	AppSecret     string `json:"-"`                        // from env PEDIDOBOT_WA_APP_SECRET only

	MediaDir          string  `json:"media_dir,omitempty"` // downloaded media (default ~/.pedidobot/media)
	MaxImageDimension int     `json:"max_image_dimension,omitempty"`
	SendRate          float64 `json:"send_rate,omitempty"` // outbound messages per second

	STTProxyURL       string `json:"stt_proxy_url,omitempty"`
	STTAPIKey         string `json:"-"` // from env PEDIDOBOT_STT_API_KEY only
	STTTimeoutSeconds int    `json:"stt_timeout_seconds,omitempty"`
}

// ProviderConfig selects the LLM backend. APIKey comes from env only.
type ProviderConfig struct {
	Name    string `json:"name,omitempty"` // e.g. "openai", "groq", "openrouter"
	APIBase string `json:"api_base,omitempty"`
	Model   string `json:"model,omitempty"`
	APIKey  string `json:"-"` // from env PEDIDOBOT_PROVIDER_API_KEY only
}

// GatewayConfig configures the HTTP server.
type GatewayConfig struct {
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Token        string `json:"-"` // ops endpoints auth, from env PEDIDOBOT_GATEWAY_TOKEN only
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"`
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is NEVER read from config.json (secret) — only from env
// PEDIDOBOT_POSTGRES_DSN. When unset, standalone mode uses SQLite.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	SQLitePath  string `json:"sqlite_path,omitempty"` // default ~/.pedidobot/pedidobot.db
}

// Managed reports whether a Postgres DSN is configured.
func (c *Config) Managed() bool {
	return c.Database.PostgresDSN != ""
}

// DebounceConfig tunes message coalescing.
type DebounceConfig struct {
	WindowSeconds int `json:"window_seconds,omitempty"` // quiet period before a flush
	BurstLimit    int `json:"burst_limit,omitempty"`    // fragments above this flag spam
}

// HandoffConfig tunes human hand-off and the emergency circuit-breaker.
type HandoffConfig struct {
	TicketWindowHours int `json:"ticket_window_hours,omitempty"`
	ErrorThreshold    int `json:"error_threshold,omitempty"`
}

// NotifyConfig configures the vendor-facing Telegram bot.
// BotToken comes from env only.
type NotifyConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"-"` // from env PEDIDOBOT_TELEGRAM_TOKEN only
	OpsChatID int64  `json:"ops_chat_id,omitempty"`
}

// GeoConfig configures reverse geocoding of shared locations.
type GeoConfig struct {
	NominatimBase string `json:"nominatim_base,omitempty"` // default https://nominatim.openstreetmap.org
	UserAgent     string `json:"user_agent,omitempty"`
}

// RemindersConfig schedules the abandoned-cart sweep.
type RemindersConfig struct {
	Enabled      bool   `json:"enabled"`
	CronExpr     string `json:"cron_expr,omitempty"`      // default "*/15 * * * *"
	StaleMinutes int    `json:"stale_minutes,omitempty"`  // cart age before a nudge
	TicketHours  int    `json:"ticket_hours,omitempty"`   // auto-resolve tickets older than this
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"` // host:port
	Protocol     string `json:"protocol,omitempty"`      // "grpc" (default) or "http"
	ServiceName  string `json:"service_name,omitempty"`
	Insecure     bool   `json:"insecure,omitempty"`
}
