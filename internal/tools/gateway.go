// Package tools validates and executes the structured intents the LLM
// emits. The model proposes, the gateway disposes: every intent is checked
// against the conversation's order state before any side effect happens,
// so a hallucinated tool call can never corrupt a cart or place an order
// the customer did not review.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pedidolabs/pedidobot/internal/convo"
	"github.com/pedidolabs/pedidobot/internal/providers"
	"github.com/pedidolabs/pedidobot/internal/store"
)

// Notifier pushes order events to the vendor's operations channel.
type Notifier interface {
	OrderPlaced(ctx context.Context, vendor *store.Vendor, order *store.Order)
	OrderCancelled(ctx context.Context, vendor *store.Vendor, order *store.Order)
}

// Gateway executes tool calls against a conversation context.
type Gateway struct {
	catalog  store.CatalogStore
	orders   store.OrderStore
	notifier Notifier // nil disables vendor notifications
	logger   *slog.Logger
}

func NewGateway(catalog store.CatalogStore, orders store.OrderStore, notifier Notifier, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{catalog: catalog, orders: orders, notifier: notifier, logger: logger}
}

// BatchResult pairs a tool call with its outcome, preserving the call ID
// the provider protocol requires on every response message.
type BatchResult struct {
	CallID string
	Name   string
	Result *Result
}

// ExecuteBatch runs calls strictly in order. The first rejection or error
// aborts the batch: later calls are answered with a skipped marker instead
// of being executed, so the model sees exactly where the plan broke.
func (g *Gateway) ExecuteBatch(ctx context.Context, c *convo.Context, calls []providers.ToolCall) []BatchResult {
	results := make([]BatchResult, 0, len(calls))
	aborted := false
	for _, call := range calls {
		if aborted {
			results = append(results, BatchResult{
				CallID: call.ID,
				Name:   call.Name,
				Result: NewResult("skipped: a previous tool call in this batch was rejected"),
			})
			continue
		}
		res := g.Execute(ctx, c, call)
		results = append(results, BatchResult{CallID: call.ID, Name: call.Name, Result: res})
		if res.Rejected || res.IsError {
			aborted = true
		}
	}
	return results
}

// Execute validates and runs a single tool call.
func (g *Gateway) Execute(ctx context.Context, c *convo.Context, call providers.ToolCall) *Result {
	g.logger.Debug("executing tool", "tool", call.Name, "phone", c.Phone, "state", c.OrderState)

	var res *Result
	switch call.Name {
	case "search_vendors":
		res = g.searchVendors(ctx, c, call.Arguments)
	case "list_products":
		res = g.listProducts(ctx, c, call.Arguments)
	case "select_vendor":
		res = g.selectVendor(ctx, c, call.Arguments)
	case "confirm_vendor_change":
		res = g.confirmVendorChange(ctx, c, call.Arguments)
	case "add_to_cart":
		res = g.addToCart(ctx, c, call.Arguments)
	case "remove_from_cart":
		res = g.removeFromCart(c, call.Arguments)
	case "update_quantity":
		res = g.updateQuantity(c, call.Arguments)
	case "show_cart":
		res = g.showCart(c)
	case "set_delivery_type":
		res = g.setDeliveryType(c, call.Arguments)
	case "set_delivery_address":
		res = g.setDeliveryAddress(c, call.Arguments)
	case "set_payment_method":
		res = g.setPaymentMethod(c, call.Arguments)
	case "show_order_summary":
		res = g.showOrderSummary(c)
	case "create_order":
		res = g.createOrder(ctx, c)
	case "check_order_status":
		res = g.checkOrderStatus(c)
	case "cancel_order":
		res = g.cancelOrder(ctx, c)
	case "new_order":
		res = g.newOrder(c)
	default:
		res = RejectResult(fmt.Sprintf("unknown tool %q", call.Name))
	}

	if res.Rejected {
		g.logger.Info("tool rejected", "tool", call.Name, "phone", c.Phone, "state", c.OrderState, "reason", res.ForLLM)
	}
	if res.IsError {
		g.logger.Error("tool failed", "tool", call.Name, "phone", c.Phone, "error", res.Err)
	}
	return res
}

// --- argument helpers ---

func strArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func boolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}

// formatCents renders integer centavos in the local convention, e.g. 123450
// becomes $1.234,50.
func formatCents(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s$%s,%02d", sign, b.String(), frac)
}
