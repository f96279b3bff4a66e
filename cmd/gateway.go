package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pedidolabs/pedidobot/internal/bus"
	"github.com/pedidolabs/pedidobot/internal/channels/whatsapp"
	"github.com/pedidolabs/pedidobot/internal/config"
	"github.com/pedidolabs/pedidobot/internal/gateway"
	"github.com/pedidolabs/pedidobot/internal/geo"
	"github.com/pedidolabs/pedidobot/internal/handoff"
	"github.com/pedidolabs/pedidobot/internal/notify"
	"github.com/pedidolabs/pedidobot/internal/orchestrator"
	"github.com/pedidolabs/pedidobot/internal/providers"
	"github.com/pedidolabs/pedidobot/internal/reminders"
	"github.com/pedidolabs/pedidobot/internal/store"
	"github.com/pedidolabs/pedidobot/internal/store/pg"
	"github.com/pedidolabs/pedidobot/internal/store/sqlite"
	"github.com/pedidolabs/pedidobot/internal/telemetry"
	"github.com/pedidolabs/pedidobot/internal/tools"
)

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Provider.APIKey == "" {
		slog.Error("no provider API key configured; set PEDIDOBOT_PROVIDER_API_KEY")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTelemetry(flushCtx)
	}()

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}

	msgBus := bus.New(logger)

	provider := buildProvider(cfg.Provider)

	// Vendor-facing Telegram notifier. Optional: without it, orders still
	// land in the store and the ops API.
	var notifier *notify.Telegram
	if cfg.Notify.Enabled {
		notifier, err = notify.NewTelegram(cfg.Notify.BotToken, cfg.Notify.OpsChatID, logger)
		if err != nil {
			slog.Error("telegram notifier setup failed", "error", err)
			os.Exit(1)
		}
	}

	var toolNotifier tools.Notifier
	var vendorNotifier orchestrator.VendorNotifier
	if notifier != nil {
		toolNotifier = notifier
		vendorNotifier = notifier
	}

	toolGateway := tools.NewGateway(stores.Catalog, stores.Orders, toolNotifier, logger)
	router := handoff.NewRouter(stores.Tickets, stores.Chats,
		time.Duration(cfg.Handoff.TicketWindowHours)*time.Hour, logger)
	emergency := handoff.NewEmergency(stores.Settings, cfg.Handoff.ErrorThreshold, logger)

	var geocoder geo.Geocoder
	if cfg.Geo.NominatimBase != "" {
		geocoder = geo.NewNominatim(cfg.Geo.NominatimBase, cfg.Geo.UserAgent, logger)
	}

	// WhatsApp channel. Without credentials the gateway still serves the
	// ops API, which is useful in development.
	var channel *whatsapp.Channel
	var media orchestrator.MediaFetcher
	if cfg.WhatsApp.Enabled {
		channel, err = whatsapp.New(cfg.WhatsApp, msgBus, logger)
		if err != nil {
			slog.Error("whatsapp channel setup failed", "error", err)
			os.Exit(1)
		}
		media = channel
	} else {
		slog.Warn("whatsapp channel disabled: no access token or phone_number_id")
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Provider:  provider,
		Model:     cfg.Provider.Model,
		Bot:       cfg.Bot,
		Debounce:  cfg.Debounce,
		Stores:    stores,
		Gateway:   toolGateway,
		Router:    router,
		Emergency: emergency,
		Bus:       msgBus,
		Media:     media,
		Geocoder:  geocoder,
		Notifier:  vendorNotifier,
		Logger:    logger,
	})
	if err != nil {
		slog.Error("orchestrator setup failed", "error", err)
		os.Exit(1)
	}

	server := gateway.NewServer(cfg, msgBus, emergency, logger)
	if channel != nil {
		server.SetWebhook(channel.Handler())
	}

	var sweep *reminders.Service
	if cfg.Reminders.Enabled {
		sweep, err = reminders.New(stores, msgBus, cfg.Reminders, logger)
		if err != nil {
			slog.Error("reminder service setup failed", "error", err)
			os.Exit(1)
		}
		server.SetSweeper(sweep)
	}

	// Hot-reload covers the auto-emergency threshold only; anything
	// structural needs a restart.
	if err := config.Watch(ctx, cfgPath, logger, func(fresh *config.Config) {
		emergency.SetThreshold(fresh.Handoff.ErrorThreshold)
	}); err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	}

	slog.Info("pedidobot gateway starting",
		"version", Version,
		"managed", cfg.Managed(),
		"model", cfg.Provider.Model,
		"whatsapp", channel != nil,
		"notify", notifier != nil,
		"reminders", sweep != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	g.Go(func() error { return orch.Run(ctx) })
	if channel != nil {
		if err := channel.Start(ctx); err != nil {
			slog.Error("failed to start whatsapp channel", "error", err)
			os.Exit(1)
		}
		defer channel.Stop(context.Background())
	}
	if sweep != nil {
		g.Go(func() error { return sweep.Run(ctx) })
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
	slog.Info("graceful shutdown complete")
}

// openStores selects Postgres when a DSN is present, SQLite otherwise.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.Managed() {
		return pg.NewPGStores(store.Config{PostgresDSN: cfg.Database.PostgresDSN})
	}
	return sqlite.NewSQLiteStores(config.ExpandHome(cfg.Database.SQLitePath))
}

// buildProvider resolves the configured provider. Anthropic speaks its own
// Messages API; everything else goes through the OpenAI-compatible client.
func buildProvider(cfg config.ProviderConfig) providers.Provider {
	if cfg.Name == "anthropic" {
		return providers.NewAnthropicProvider(cfg.Name, cfg.APIKey, cfg.APIBase, cfg.Model)
	}

	base := cfg.APIBase
	if base == "" {
		switch cfg.Name {
		case "groq":
			base = "https://api.groq.com/openai/v1"
		case "openrouter":
			base = "https://openrouter.ai/api/v1"
		default:
			base = "https://api.openai.com/v1"
		}
	}
	return providers.NewOpenAIProvider(cfg.Name, cfg.APIKey, base, cfg.Model)
}
