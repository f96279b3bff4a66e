// Package whatsapp implements the customer-facing channel on the WhatsApp
// Cloud API: inbound messages arrive on a signed webhook, outbound replies
// go through the Graph API, and media is fetched with the channel's access
// token.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/pedidolabs/pedidobot/internal/bus"
	"github.com/pedidolabs/pedidobot/internal/channels"
	"github.com/pedidolabs/pedidobot/internal/config"
)

// Channel connects WhatsApp Cloud API webhooks and sends to the message bus.
type Channel struct {
	*channels.BaseChannel
	config  config.WhatsAppConfig
	dedupe  *bus.DedupeCache
	limiter *channels.WebhookRateLimiter
	// sendLimiter paces Graph API calls below Meta's messaging throughput cap.
	sendLimiter *rate.Limiter
	logger      *slog.Logger

	cancel context.CancelFunc
}

// New creates a WhatsApp channel from config.
func New(cfg config.WhatsAppConfig, msgBus *bus.MessageBus, logger *slog.Logger) (*Channel, error) {
	if cfg.AccessToken == "" || cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp access token and phone_number_id are required")
	}
	if cfg.VerifyToken == "" {
		return nil, fmt.Errorf("whatsapp verify token is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	sendRate := cfg.SendRate
	if sendRate <= 0 {
		sendRate = 10
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus),
		config:      cfg,
		dedupe:      bus.NewDedupeCache(0, 0),
		limiter:     channels.NewWebhookRateLimiter(0, 0),
		sendLimiter: rate.NewLimiter(rate.Limit(sendRate), int(sendRate)),
		logger:      logger,
	}, nil
}

// Start begins consuming outbound messages addressed to this channel.
// The inbound path is driven by the webhook handler, mounted by the
// gateway server via Handler().
func (c *Channel) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("starting whatsapp channel", "phone_number_id", c.config.PhoneNumberID)

	go func() {
		for {
			msg, ok := c.Bus().ConsumeOutbound(ctx)
			if !ok {
				return
			}
			if msg.Channel != c.Name() {
				continue
			}
			if err := c.Send(ctx, msg); err != nil {
				c.logger.Error("whatsapp send failed", "chat", msg.ChatID, "error", err)
			}
		}
	}()

	c.SetRunning(true)
	return nil
}

// Stop shuts down the outbound consumer.
func (c *Channel) Stop(_ context.Context) error {
	c.logger.Info("stopping whatsapp channel")
	if c.cancel != nil {
		c.cancel()
	}
	c.SetRunning(false)
	return nil
}
