package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pedidolabs/pedidobot/internal/convo"
	"github.com/pedidolabs/pedidobot/internal/store"
)

func checkoutStage(s convo.State) bool {
	return s == convo.StateShopping || s == convo.StateNeedsAddress || s == convo.StateCheckout
}

func (g *Gateway) setDeliveryType(c *convo.Context, args map[string]any) *Result {
	if !checkoutStage(c.OrderState) {
		return RejectResult(fmt.Sprintf("cannot set delivery type in state %s", c.OrderState))
	}
	if len(c.Cart) == 0 {
		return RejectResult("the cart is empty; add products before arranging delivery")
	}

	typ := strArg(args, "type")
	if typ != convo.DeliveryTypeDelivery && typ != convo.DeliveryTypePickup {
		return RejectResult(`type must be "delivery" or "pickup"`)
	}
	c.DeliveryType = typ
	c.InvalidateSummary()

	// Pickup never needs an address; delivery holds the flow at
	// needs_address until one is on file.
	if typ == convo.DeliveryTypePickup || c.DeliveryAddress != "" {
		c.OrderState = convo.StateCheckout
	} else {
		c.OrderState = convo.StateNeedsAddress
	}

	if c.OrderState == convo.StateNeedsAddress {
		return NewResult("delivery selected; ask the customer for their street address")
	}
	return NewResult(fmt.Sprintf("%s selected", typ))
}

func (g *Gateway) setDeliveryAddress(c *convo.Context, args map[string]any) *Result {
	if !checkoutStage(c.OrderState) {
		return RejectResult(fmt.Sprintf("cannot set a delivery address in state %s", c.OrderState))
	}
	address := strArg(args, "address")
	if address == "" {
		return RejectResult("address must not be empty")
	}

	c.DeliveryAddress = address
	c.InvalidateSummary()
	if c.OrderState == convo.StateNeedsAddress {
		c.OrderState = convo.StateCheckout
	}
	return NewResult(fmt.Sprintf("delivery address recorded: %s", address))
}

func (g *Gateway) setPaymentMethod(c *convo.Context, args map[string]any) *Result {
	if !checkoutStage(c.OrderState) {
		return RejectResult(fmt.Sprintf("cannot set a payment method in state %s", c.OrderState))
	}
	method := strArg(args, "method")
	if _, ok := convo.PendingStateFor(method); !ok {
		return RejectResult(`method must be "cash", "transfer" or "mp"`)
	}
	c.PaymentMethod = method
	c.InvalidateSummary()
	return NewResult(fmt.Sprintf("payment method %s recorded", method))
}

func (g *Gateway) showOrderSummary(c *convo.Context) *Result {
	if c.OrderState != convo.StateCheckout {
		return RejectResult(fmt.Sprintf("cannot show the order summary in state %s; complete the checkout details first", c.OrderState))
	}
	if missing := missingCheckoutFields(c); missing != "" {
		return RejectResult("cannot summarize yet, still missing: " + missing)
	}

	// The flag proves the customer saw this exact order before create_order
	// may run. Any later mutation clears it again.
	c.SummaryShown = true

	var b strings.Builder
	fmt.Fprintf(&b, "Resumen del pedido en %s:\n", c.SelectedVendorName)
	for _, item := range c.Cart {
		fmt.Fprintf(&b, "• %dx %s %s\n", item.Quantity, item.ProductName, formatCents(int64(item.Quantity)*item.PriceCents))
	}
	if c.DeliveryType == convo.DeliveryTypePickup {
		b.WriteString("Retiro en el local\n")
	} else {
		fmt.Fprintf(&b, "Envío a %s\n", c.DeliveryAddress)
	}
	fmt.Fprintf(&b, "Pago: %s\n", paymentLabel(c.PaymentMethod))
	fmt.Fprintf(&b, "Total: %s", formatCents(c.CartTotalCents()))
	return UserResult(b.String())
}

func (g *Gateway) createOrder(ctx context.Context, c *convo.Context) *Result {
	if c.OrderState != convo.StateCheckout {
		return RejectResult(fmt.Sprintf("cannot place an order in state %s", c.OrderState))
	}
	if !c.SummaryShown {
		return RejectResult("the customer has not seen the current order summary; call show_order_summary and get their confirmation first")
	}
	if missing := missingCheckoutFields(c); missing != "" {
		return RejectResult("cannot place the order, still missing: " + missing)
	}

	pendingState, ok := convo.PendingStateFor(c.PaymentMethod)
	if !ok {
		return RejectResult("payment method is not set")
	}

	items := make([]store.OrderItem, len(c.Cart))
	for i, item := range c.Cart {
		items[i] = store.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			PriceCents:  item.PriceCents,
		}
	}
	order := &store.Order{
		ID:              uuid.Must(uuid.NewV7()).String(),
		CustomerPhone:   c.Phone,
		VendorID:        c.SelectedVendorID,
		Items:           items,
		TotalCents:      c.CartTotalCents(),
		DeliveryType:    c.DeliveryType,
		DeliveryAddress: c.DeliveryAddress,
		PaymentMethod:   c.PaymentMethod,
		Status:          store.OrderPending,
	}
	if err := g.orders.Create(order); err != nil {
		return ErrorResult("could not persist the order").WithError(err)
	}

	c.PendingOrderID = order.ID
	c.OrderState = pendingState

	if g.notifier != nil {
		vendor, err := g.catalog.VendorByID(order.VendorID)
		if err == nil && vendor != nil {
			g.notifier.OrderPlaced(ctx, vendor, order)
		}
	}

	g.logger.Info("order placed", "order", order.ID, "phone", c.Phone, "vendor", order.VendorID, "total", order.TotalCents, "payment", order.PaymentMethod)
	return NewResult(fmt.Sprintf("order %s placed, total %s, payment by %s; %s",
		shortOrderID(order.ID), formatCents(order.TotalCents), order.PaymentMethod, paymentFollowUp(c.PaymentMethod)))
}

func missingCheckoutFields(c *convo.Context) string {
	var missing []string
	if len(c.Cart) == 0 {
		missing = append(missing, "cart items")
	}
	if c.DeliveryType == "" {
		missing = append(missing, "delivery type")
	}
	if c.DeliveryType == convo.DeliveryTypeDelivery && c.DeliveryAddress == "" {
		missing = append(missing, "delivery address")
	}
	if c.PaymentMethod == "" {
		missing = append(missing, "payment method")
	}
	return strings.Join(missing, ", ")
}

func paymentLabel(method string) string {
	switch method {
	case convo.PaymentCash:
		return "efectivo"
	case convo.PaymentTransfer:
		return "transferencia"
	case convo.PaymentMP:
		return "MercadoPago"
	}
	return method
}

func paymentFollowUp(method string) string {
	switch method {
	case convo.PaymentCash:
		return "the customer pays cash on delivery or pickup"
	case convo.PaymentTransfer:
		return "ask the customer to send the transfer receipt so the vendor can confirm"
	case convo.PaymentMP:
		return "the vendor will send a MercadoPago payment link"
	}
	return ""
}

func shortOrderID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
