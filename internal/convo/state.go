package convo

// State is a node of the order-building lifecycle. Every tool the agent may
// invoke is gated on the current state; transitions happen only through the
// tool gateway, never from free-form conversation text.
type State string

const (
	StateIdle         State = "idle"
	StateBrowsing     State = "browsing"
	StateShopping     State = "shopping"
	StateNeedsAddress State = "needs_address"
	StateCheckout     State = "checkout"

	StateOrderPendingCash     State = "order_pending_cash"
	StateOrderPendingTransfer State = "order_pending_transfer"
	StateOrderPendingMP       State = "order_pending_mp"

	StateOrderConfirmed State = "order_confirmed"
	StateOrderCompleted State = "order_completed"
	StateOrderCancelled State = "order_cancelled"
)

// Payment methods accepted at checkout. Each maps to its own pending state
// so the follow-up flow (cash on delivery, transfer receipt, MercadoPago
// link) is unambiguous from the state alone.
const (
	PaymentCash     = "cash"
	PaymentTransfer = "transfer"
	PaymentMP       = "mp"
)

// Delivery types.
const (
	DeliveryTypeDelivery = "delivery"
	DeliveryTypePickup   = "pickup"
)

// transitions lists the legal forward edges. order_cancelled is reachable
// from every non-terminal state and is handled in CanTransition directly.
var transitions = map[State][]State{
	StateIdle:     {StateBrowsing, StateShopping},
	StateBrowsing: {StateBrowsing, StateShopping},
	// Shopping falls back to browsing when the cart is emptied.
	StateShopping:     {StateBrowsing, StateShopping, StateNeedsAddress, StateCheckout},
	StateNeedsAddress: {StateNeedsAddress, StateCheckout},
	// Checkout returns to needs_address when the customer switches from
	// pickup to delivery without an address on file.
	StateCheckout: {StateNeedsAddress, StateCheckout, StateOrderPendingCash, StateOrderPendingTransfer, StateOrderPendingMP},

	StateOrderPendingCash:     {StateOrderConfirmed},
	StateOrderPendingTransfer: {StateOrderConfirmed},
	StateOrderPendingMP:       {StateOrderConfirmed},
	StateOrderConfirmed:       {StateOrderCompleted},

	// Terminal states transition only via an explicit reset to idle.
	StateOrderCompleted: {},
	StateOrderCancelled: {},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	if to == StateOrderCancelled {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the current order session.
// A new order resets a terminal context back to idle with a fresh cart.
func (s State) Terminal() bool {
	return s == StateOrderCompleted || s == StateOrderCancelled
}

// OrderActive reports whether an order row exists and is in flight.
// While active, catalog and cart tools are rejected; only status checks
// and cancellation are legal.
func (s State) OrderActive() bool {
	switch s {
	case StateOrderPendingCash, StateOrderPendingTransfer, StateOrderPendingMP, StateOrderConfirmed:
		return true
	}
	return false
}

// AllowsBrowsing reports whether vendor-scoped browsing tools are legal.
func (s State) AllowsBrowsing() bool {
	return s == StateIdle || s == StateBrowsing
}

// AllowsCartEdit reports whether cart-mutation tools are legal.
func (s State) AllowsCartEdit() bool {
	return s == StateShopping
}

// PendingStateFor maps a payment method to its order-pending state.
// Returns ("", false) for an unknown method.
func PendingStateFor(paymentMethod string) (State, bool) {
	switch paymentMethod {
	case PaymentCash:
		return StateOrderPendingCash, true
	case PaymentTransfer:
		return StateOrderPendingTransfer, true
	case PaymentMP:
		return StateOrderPendingMP, true
	}
	return "", false
}
