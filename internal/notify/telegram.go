// Package notify delivers vendor-facing notifications over Telegram. Each
// vendor registers the chat ID of their shop's Telegram group; orders,
// cancellations, and hand-off traffic land there, with an optional ops
// chat receiving everything as a fallback.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// Telegram sends vendor notifications through a Telegram bot.
type Telegram struct {
	bot       *telego.Bot
	opsChatID int64
	logger    *slog.Logger
}

func NewTelegram(token string, opsChatID int64, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, opsChatID: opsChatID, logger: logger}, nil
}

// OrderPlaced notifies the vendor of a new order.
func (t *Telegram) OrderPlaced(ctx context.Context, vendor *store.Vendor, order *store.Order) {
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 Nuevo pedido %s\n", shortID(order.ID))
	fmt.Fprintf(&b, "Cliente: %s\n", order.CustomerPhone)
	for _, item := range order.Items {
		fmt.Fprintf(&b, "• %dx %s\n", item.Quantity, item.ProductName)
	}
	fmt.Fprintf(&b, "Total: %s\n", pesos(order.TotalCents))
	if order.DeliveryType == "pickup" {
		b.WriteString("Retiro en el local\n")
	} else {
		fmt.Fprintf(&b, "Envío a: %s\n", order.DeliveryAddress)
	}
	fmt.Fprintf(&b, "Pago: %s", order.PaymentMethod)

	t.deliver(ctx, vendor, b.String())
}

// OrderCancelled notifies the vendor that a placed order was cancelled.
func (t *Telegram) OrderCancelled(ctx context.Context, vendor *store.Vendor, order *store.Order) {
	t.deliver(ctx, vendor, fmt.Sprintf("❌ Pedido %s cancelado por el cliente %s", shortID(order.ID), order.CustomerPhone))
}

// Escalation notifies the vendor that a customer asked for a human.
func (t *Telegram) Escalation(ctx context.Context, vendor *store.Vendor, ticket *store.Ticket) {
	msg := fmt.Sprintf("🙋 El cliente %s pide atención humana.\nMotivo: %s\nRespondé por WhatsApp; el bot queda en pausa hasta que escriba \"bot\".",
		ticket.Phone, ticket.Reason)
	t.deliver(ctx, vendor, msg)
}

// CustomerMessage forwards a direct-chat message to the vendor.
func (t *Telegram) CustomerMessage(ctx context.Context, vendor *store.Vendor, phone, text string) {
	t.deliver(ctx, vendor, fmt.Sprintf("💬 %s: %s", phone, text))
}

// EmergencyTripped alerts operations that the bot took itself offline.
func (t *Telegram) EmergencyTripped(ctx context.Context, errorCount int) {
	if t.opsChatID == 0 {
		return
	}
	t.send(ctx, t.opsChatID, fmt.Sprintf("🚨 Modo emergencia activado tras %d errores consecutivos. El bot responde con un mensaje fijo hasta el reset manual.", errorCount))
}

func (t *Telegram) deliver(ctx context.Context, vendor *store.Vendor, text string) {
	sent := false
	if vendor != nil && vendor.ChatID != "" {
		if chatID, err := strconv.ParseInt(vendor.ChatID, 10, 64); err == nil {
			t.send(ctx, chatID, text)
			sent = true
		}
	}
	if !sent && t.opsChatID != 0 {
		t.send(ctx, t.opsChatID, text)
	}
}

func (t *Telegram) send(ctx context.Context, chatID int64, text string) {
	_, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	if err != nil {
		t.logger.Error("telegram notification failed", "chat", chatID, "error", err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func pesos(cents int64) string {
	return fmt.Sprintf("$%d,%02d", cents/100, cents%100)
}
