// Package orchestrator drives a customer turn end to end: inbound message
// normalization, debounce coalescing, hand-off routing, the LLM tool loop,
// and outbound delivery.
package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pedidolabs/pedidobot/internal/bus"
	"github.com/pedidolabs/pedidobot/internal/config"
	"github.com/pedidolabs/pedidobot/internal/convo"
	"github.com/pedidolabs/pedidobot/internal/debounce"
	"github.com/pedidolabs/pedidobot/internal/geo"
	"github.com/pedidolabs/pedidobot/internal/handoff"
	"github.com/pedidolabs/pedidobot/internal/phone"
	"github.com/pedidolabs/pedidobot/internal/providers"
	"github.com/pedidolabs/pedidobot/internal/store"
	"github.com/pedidolabs/pedidobot/internal/telemetry"
	"github.com/pedidolabs/pedidobot/internal/tools"
)

const (
	defaultMaxIterations = 8
	defaultMaxTokens     = 1024
	// turnTimeout bounds one full processing pass, tool calls included.
	turnTimeout = 2 * time.Minute
)

const (
	spamReply      = "Recibimos muchos mensajes seguidos 😅 Escribinos de nuevo en un ratito y seguimos con tu pedido."
	emergencyReply = "Estamos con problemas técnicos en este momento 🙏 En breve un miembro del equipo te va a responder por acá."
	failureReply   = "Uy, algo salió mal de nuestro lado. Probá de nuevo en unos minutos, por favor."
	escalatedReply = "¡Listo! Ya avisamos al local para que te atienda una persona. Cuando quieras volver a hablar con el asistente, escribí \"bot\"."
	resumedReply   = "¡De vuelta! Soy el asistente de pedidos otra vez 🤖 ¿En qué te ayudo?"
)

// MediaFetcher is the slice of the WhatsApp channel the orchestrator
// needs for attachments. Nil when the channel is disabled (tests, CLI).
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, mediaID string) (string, error)
	TranscribeAudio(ctx context.Context, filePath string) (string, error)
}

// VendorNotifier relays hand-off traffic to the vendor side channel.
type VendorNotifier interface {
	CustomerMessage(ctx context.Context, vendor *store.Vendor, phone, text string)
	Escalation(ctx context.Context, vendor *store.Vendor, ticket *store.Ticket)
	EmergencyTripped(ctx context.Context, errorCount int)
}

// Orchestrator owns the message pipeline for one bot instance.
type Orchestrator struct {
	provider      providers.Provider
	model         string
	maxIterations int
	maxTokens     int
	systemPrompt  string

	contexts store.ContextStore
	catalog  store.CatalogStore
	gateway  *tools.Gateway
	router   *handoff.Router
	emergency *handoff.Emergency

	bus       *bus.MessageBus
	debouncer *debounce.Coordinator
	media     MediaFetcher
	geocoder  geo.Geocoder
	notifier  VendorNotifier

	logger *slog.Logger
}

// Config wires an Orchestrator. Provider, Stores, Gateway, Router,
// Emergency, and Bus are required; the rest are optional.
type Config struct {
	Provider  providers.Provider
	Model     string
	Bot       config.BotConfig
	Debounce  config.DebounceConfig
	Stores    *store.Stores
	Gateway   *tools.Gateway
	Router    *handoff.Router
	Emergency *handoff.Emergency
	Bus       *bus.MessageBus
	Media     MediaFetcher
	Geocoder  geo.Geocoder
	Notifier  VendorNotifier
	Logger    *slog.Logger
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("orchestrator requires a provider")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	model := cfg.Model
	if model == "" {
		model = cfg.Provider.DefaultModel()
	}
	maxIter := cfg.Bot.MaxToolIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}
	maxTokens := cfg.Bot.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	o := &Orchestrator{
		provider:      cfg.Provider,
		model:         model,
		maxIterations: maxIter,
		maxTokens:     maxTokens,
		systemPrompt:  loadSystemPrompt(cfg.Bot, logger),
		contexts:      cfg.Stores.Contexts,
		catalog:       cfg.Stores.Catalog,
		gateway:       cfg.Gateway,
		router:        cfg.Router,
		emergency:     cfg.Emergency,
		bus:           cfg.Bus,
		media:         cfg.Media,
		geocoder:      cfg.Geocoder,
		notifier:      cfg.Notifier,
		logger:        logger.With("component", "orchestrator"),
	}

	window := time.Duration(cfg.Debounce.WindowSeconds) * time.Second
	opts := []debounce.Option{debounce.WithLogger(logger)}
	if window > 0 {
		opts = append(opts, debounce.WithWindow(window))
	}
	if cfg.Debounce.BurstLimit > 0 {
		opts = append(opts, debounce.WithBurstLimit(cfg.Debounce.BurstLimit))
	}
	o.debouncer = debounce.New(o.processBatch, opts...)
	return o, nil
}

// Run consumes the inbound side of the bus until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started", "model", o.model, "max_iterations", o.maxIterations)
	for {
		msg, ok := o.bus.ConsumeInbound(ctx)
		if !ok {
			return ctx.Err()
		}
		o.HandleInbound(ctx, msg)
	}
}

// HandleInbound normalizes the sender, resolves media into text or an
// attachment, and submits the fragment to the debounce coordinator.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg bus.InboundMessage) {
	key := phone.Normalize(msg.Sender)
	if key == "" {
		o.logger.Warn("dropping message with unusable sender", "sender", msg.Sender)
		return
	}

	var text string
	var attach *debounce.Attachment

	switch msg.Kind {
	case bus.KindText:
		text = msg.Content
	case bus.KindLocation:
		text = o.locationText(ctx, key, msg.Latitude, msg.Longitude)
	case bus.KindAudio:
		text = o.audioText(ctx, msg)
	case bus.KindImage:
		attach = &debounce.Attachment{
			Kind:     "image",
			MediaID:  msg.MediaID,
			MimeType: msg.MimeType,
			Caption:  msg.Content,
		}
		text = msg.Content
	default:
		o.logger.Warn("unsupported message kind", "kind", msg.Kind, "key", key)
		return
	}

	outcome := o.debouncer.Submit(key, text, attach)
	o.logger.Debug("fragment submitted", "key", key, "kind", msg.Kind, "outcome", outcome)
}

// locationText stores the coordinates on the context and renders a
// synthetic fragment describing the shared location.
func (o *Orchestrator) locationText(ctx context.Context, key string, lat, lon float64) string {
	c := o.contexts.GetOrCreate(key)
	c.SetLocation(lat, lon)
	if err := o.contexts.Save(key); err != nil {
		o.logger.Error("saving location failed", "key", key, "error", err)
	}

	label := geo.FallbackLabel(lat, lon)
	if o.geocoder != nil {
		if addr, err := o.geocoder.ReverseGeocode(ctx, lat, lon); err == nil && addr != "" {
			label = addr
		} else if err != nil {
			o.logger.Warn("reverse geocode failed", "key", key, "error", err)
		}
	}
	return fmt.Sprintf("[El cliente compartió su ubicación: %s]", label)
}

// audioText downloads a voice note and transcribes it. When anything in
// that chain fails the agent still gets a turn, with a placeholder.
func (o *Orchestrator) audioText(ctx context.Context, msg bus.InboundMessage) string {
	const placeholder = "[El cliente mandó una nota de voz que no se pudo transcribir. Pedile que escriba su mensaje.]"
	if o.media == nil {
		return placeholder
	}
	path, err := o.media.DownloadMedia(ctx, msg.MediaID)
	if err != nil {
		o.logger.Warn("voice note download failed", "media_id", msg.MediaID, "error", err)
		return placeholder
	}
	defer os.Remove(path)
	transcript, err := o.media.TranscribeAudio(ctx, path)
	if err != nil || transcript == "" {
		if err != nil {
			o.logger.Warn("transcription failed", "media_id", msg.MediaID, "error", err)
		}
		return placeholder
	}
	return transcript
}

// processBatch is the debounce flush callback. The coordinator holds the
// sender's lock until Release, so at most one pass runs per customer.
func (o *Orchestrator) processBatch(batch debounce.Batch) {
	defer o.debouncer.Release(batch.Key)

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.turn",
		attribute.String("customer", batch.Key),
		attribute.Int("fragments", batch.Count),
	)
	var turnErr error
	defer func() { telemetry.EndSpan(span, turnErr) }()

	if batch.Action == debounce.Spam {
		o.logger.Warn("spam burst dropped", "key", batch.Key, "count", batch.Count)
		o.reply(batch.Key, spamReply)
		return
	}

	c := o.contexts.GetOrCreate(batch.Key)

	decision, err := o.router.Route(ctx, batch.Key, batch.Text, c.SelectedVendorID)
	if err != nil {
		o.logger.Error("hand-off routing failed", "key", batch.Key, "error", err)
		turnErr = err
		o.reply(batch.Key, failureReply)
		return
	}

	switch decision.Route {
	case handoff.RouteVendor:
		o.relayToVendor(ctx, c, decision, batch.Text)
		return
	case handoff.RouteEscalated:
		c.AppendHistory("user", batch.Text)
		o.saveContext(batch.Key)
		if o.notifier != nil && decision.Ticket != nil {
			o.notifier.Escalation(ctx, o.vendorFor(decision.Ticket.VendorID), decision.Ticket)
		}
		o.bus.Broadcast(bus.Event{Name: "handoff.escalated", Payload: map[string]string{"customer": batch.Key}})
		o.reply(batch.Key, escalatedReply)
		return
	case handoff.RouteResumed:
		o.reply(batch.Key, resumedReply)
		return
	}

	if o.emergency.Degraded() {
		o.handleDegraded(ctx, c, batch)
		return
	}

	turnErr = o.agentTurn(ctx, c, batch)
}

// handleDegraded answers for the agent while emergency mode is on or the
// bot is switched off. The persisted fallback mode decides where the
// customer lands; follow-up messages are claimed by the ticket or direct
// chat this opens, so they route to the human side without coming back
// here.
func (o *Orchestrator) handleDegraded(ctx context.Context, c *convo.Context, batch debounce.Batch) {
	c.AppendHistory("user", batch.Text)
	o.saveContext(batch.Key)

	message := o.emergency.Message()
	if message == "" {
		message = emergencyReply
	}

	mode := o.emergency.FallbackMode()
	o.logger.Warn("bot degraded, dispatching fallback", "key", batch.Key, "fallback", mode)

	switch mode {
	case handoff.FallbackVendorDirect:
		ticket, err := o.router.Escalate(ctx, batch.Key, c.SelectedVendorID, batch.Text)
		if err != nil {
			o.logger.Error("vendor-direct fallback failed", "key", batch.Key, "error", err)
			break
		}
		if o.notifier != nil {
			o.notifier.Escalation(ctx, o.vendorFor(ticket.VendorID), ticket)
		}
	case handoff.FallbackSupportQueue:
		if _, err := o.router.Escalate(ctx, batch.Key, "", batch.Text); err != nil {
			o.logger.Error("support-queue fallback failed", "key", batch.Key, "error", err)
		}
	}

	o.reply(batch.Key, message)
}

// agentTurn runs the LLM tool loop for one coalesced batch. The context
// is saved on every exit path so tool side effects are never lost.
func (o *Orchestrator) agentTurn(ctx context.Context, c *convo.Context, batch debounce.Batch) error {
	userText := batch.Text
	if userText == "" && batch.Attachment != nil {
		userText = "[El cliente mandó una imagen sin texto.]"
	}
	c.AppendHistory("user", userText)
	defer o.saveContext(batch.Key)

	messages := o.buildMessages(ctx, c, batch.Attachment)

	var finalContent string
	toolFailed := false
	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		resp, err := o.chat(ctx, messages, iteration)
		if err != nil {
			o.logger.Error("LLM call failed", "key", batch.Key, "iteration", iteration, "error", err)
			o.recordFailure(ctx, err.Error())
			o.reply(batch.Key, failureReply)
			return err
		}

		if len(resp.ToolCalls) == 0 {
			finalContent = sanitizeReply(resp.Content)
			break
		}

		messages = append(messages, providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		results := o.gateway.ExecuteBatch(ctx, c, resp.ToolCalls)
		for _, r := range results {
			if r.Result.IsError {
				toolFailed = true
			}
			if r.Result.ForUser != "" {
				c.AppendHistory("assistant", r.Result.ForUser)
				o.reply(batch.Key, r.Result.ForUser)
			}
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    r.Result.ForLLM,
				ToolCallID: r.CallID,
			})
		}
	}

	if toolFailed {
		o.recordFailure(ctx, "tool execution error")
	} else {
		o.emergency.RecordSuccess()
	}

	if finalContent == "" {
		finalContent = "¿Hay algo más en lo que te pueda ayudar con tu pedido?"
	}
	c.AppendHistory("assistant", finalContent)
	o.reply(batch.Key, finalContent)
	return nil
}

func (o *Orchestrator) chat(ctx context.Context, messages []providers.Message, iteration int) (*providers.ChatResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.chat",
		attribute.String("model", o.model),
		attribute.Int("iteration", iteration),
	)
	resp, err := o.provider.Chat(ctx, providers.ChatRequest{
		Messages:  messages,
		Tools:     tools.Definitions(),
		Model:     o.model,
		MaxTokens: o.maxTokens,
	})
	telemetry.EndSpan(span, err)
	return resp, err
}

// relayToVendor forwards a customer message into an active direct chat.
func (o *Orchestrator) relayToVendor(ctx context.Context, c *convo.Context, decision *handoff.Decision, text string) {
	c.AppendHistory("user", text)
	o.saveContext(c.Phone)
	if o.notifier == nil || decision.Chat == nil {
		o.logger.Warn("direct chat active but no vendor notifier wired", "key", c.Phone)
		return
	}
	o.notifier.CustomerMessage(ctx, o.vendorFor(decision.Chat.VendorID), c.Phone, text)
}

func (o *Orchestrator) vendorFor(id string) *store.Vendor {
	if id == "" {
		return nil
	}
	v, err := o.catalog.VendorByID(id)
	if err != nil {
		o.logger.Warn("vendor lookup failed", "vendor_id", id, "error", err)
		return nil
	}
	return v
}

func (o *Orchestrator) recordFailure(ctx context.Context, cause string) {
	if tripped := o.emergency.RecordFailure(cause); tripped {
		o.logger.Error("emergency mode tripped", "error_count", o.emergency.ErrorCount())
		if o.notifier != nil {
			o.notifier.EmergencyTripped(ctx, o.emergency.ErrorCount())
		}
		o.bus.Broadcast(bus.Event{Name: "emergency.tripped", Payload: map[string]int{"error_count": o.emergency.ErrorCount()}})
	}
}

func (o *Orchestrator) reply(key, content string) {
	if content == "" {
		return
	}
	o.bus.PublishOutbound(bus.OutboundMessage{
		Channel: "whatsapp",
		ChatID:  key,
		Content: content,
	})
}

func (o *Orchestrator) saveContext(key string) {
	if err := o.contexts.Save(key); err != nil {
		o.logger.Error("context save failed", "key", key, "error", err)
	}
}

// buildMessages assembles the provider message list: static system prompt,
// a per-turn state snapshot, the rolling history, and any image payload on
// the final user message.
func (o *Orchestrator) buildMessages(ctx context.Context, c *convo.Context, attach *debounce.Attachment) []providers.Message {
	messages := make([]providers.Message, 0, len(c.History)+2)
	messages = append(messages, providers.Message{Role: "system", Content: o.systemPrompt})
	messages = append(messages, providers.Message{Role: "system", Content: contextSnapshot(c)})

	for _, u := range c.History {
		messages = append(messages, providers.Message{Role: u.Role, Content: u.Content})
	}

	if attach != nil && attach.Kind == "image" && len(messages) > 2 {
		if img := o.fetchImage(ctx, attach); img != nil {
			last := &messages[len(messages)-1]
			if last.Role == "user" {
				last.Images = append(last.Images, *img)
			}
		}
	}
	return messages
}

func (o *Orchestrator) fetchImage(ctx context.Context, attach *debounce.Attachment) *providers.ImageContent {
	if o.media == nil {
		return nil
	}
	path, err := o.media.DownloadMedia(ctx, attach.MediaID)
	if err != nil {
		o.logger.Warn("image download failed", "media_id", attach.MediaID, "error", err)
		return nil
	}
	defer os.Remove(path)
	data, err := os.ReadFile(path)
	if err != nil {
		o.logger.Warn("image read failed", "path", path, "error", err)
		return nil
	}
	mime := attach.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return &providers.ImageContent{
		MimeType: mime,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

func loadSystemPrompt(botCfg config.BotConfig, logger *slog.Logger) string {
	if botCfg.SystemPromptPath != "" {
		if data, err := os.ReadFile(config.ExpandHome(botCfg.SystemPromptPath)); err == nil {
			return strings.TrimSpace(string(data))
		} else {
			logger.Warn("system prompt override unreadable, using default", "path", botCfg.SystemPromptPath, "error", err)
		}
	}
	name := botCfg.Name
	if name == "" {
		name = "PedidoBot"
	}
	return fmt.Sprintf(defaultSystemPrompt, name)
}
