// Package convo defines the per-customer conversation context and the order
// state machine that constrains what the ordering agent may do at each point.
//
// The context is the only source of truth for cart, vendor, and order state.
// Conversation history is carried purely as prompting material for the agent
// and must never be parsed to recover state.
package convo

import "time"

// HistoryLimit caps the number of utterances retained per context.
// Enforced on every save, oldest entries dropped first.
const HistoryLimit = 20

// CartItem is one line of the in-progress cart. All items in a cart
// reference the same vendor; the gateway enforces this on every mutation.
type CartItem struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	// PriceCents is the unit price in centavos at the time the item was
	// added; totals are computed from this snapshot, not live catalog data.
	PriceCents int64 `json:"price"`
}

// VendorChange records a requested vendor switch awaiting explicit user
// confirmation, because confirming discards a non-empty cart.
type VendorChange struct {
	NewVendorID   string `json:"new_vendor_id"`
	NewVendorName string `json:"new_vendor_name"`
}

// Utterance is one role-tagged history entry.
type Utterance struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Context is the durable session for one canonical phone key. It is loaded
// at the start of a processing pass, mutated only through the tool gateway
// or explicit resets, and saved at the end of the pass — including passes
// that fail partway, so the conversation stays resumable.
type Context struct {
	Phone string `json:"phone"`

	Cart               []CartItem    `json:"cart"`
	SelectedVendorID   string        `json:"selected_vendor_id,omitempty"`
	SelectedVendorName string        `json:"selected_vendor_name,omitempty"`
	PendingVendorChange *VendorChange `json:"pending_vendor_change,omitempty"`

	DeliveryAddress string `json:"delivery_address,omitempty"`
	DeliveryType    string `json:"delivery_type,omitempty"` // "delivery" or "pickup"
	PaymentMethod   string `json:"payment_method,omitempty"`

	PendingOrderID string `json:"pending_order_id,omitempty"`
	OrderState     State  `json:"order_state"`

	// SummaryShown is set when a show_order_summary intent succeeds and
	// cleared whenever cart, delivery, or payment change afterwards. Order
	// creation is rejected until it is set again — the summary the user
	// acknowledged must describe the order actually being placed.
	SummaryShown bool `json:"summary_shown,omitempty"`

	History []Utterance `json:"conversation_history"`

	// Last known coordinates, independent of the textual delivery address.
	UserLatitude      *float64   `json:"user_latitude,omitempty"`
	UserLongitude     *float64   `json:"user_longitude,omitempty"`
	LocationUpdatedAt *time.Time `json:"location_updated_at,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// New returns an empty context for a canonical phone key.
func New(p string) *Context {
	now := time.Now()
	return &Context{
		Phone:      p,
		Cart:       []CartItem{},
		OrderState: StateIdle,
		History:    []Utterance{},
		Created:    now,
		Updated:    now,
	}
}

// AppendHistory adds a role-tagged utterance. The cap is applied here as
// well as on save so an in-memory context never grows unbounded during a
// long pass.
func (c *Context) AppendHistory(role, content string) {
	c.History = append(c.History, Utterance{Role: role, Content: content, At: time.Now()})
	c.TrimHistory()
}

// TrimHistory drops the oldest entries beyond HistoryLimit.
func (c *Context) TrimHistory() {
	if len(c.History) > HistoryLimit {
		c.History = c.History[len(c.History)-HistoryLimit:]
	}
}

// CartTotalCents returns the cart total from stored price snapshots.
func (c *Context) CartTotalCents() int64 {
	var total int64
	for _, it := range c.Cart {
		total += it.PriceCents * int64(it.Quantity)
	}
	return total
}

// SetLocation records the customer's most recent coordinates.
func (c *Context) SetLocation(lat, lon float64) {
	now := time.Now()
	c.UserLatitude = &lat
	c.UserLongitude = &lon
	c.LocationUpdatedAt = &now
}

// ResetOrder clears everything order-related and returns the context to
// idle with a fresh cart. Location, history, and identity are kept.
func (c *Context) ResetOrder() {
	c.Cart = []CartItem{}
	c.SelectedVendorID = ""
	c.SelectedVendorName = ""
	c.PendingVendorChange = nil
	c.DeliveryAddress = ""
	c.DeliveryType = ""
	c.PaymentMethod = ""
	c.PendingOrderID = ""
	c.SummaryShown = false
	c.OrderState = StateIdle
}

// InvalidateSummary clears the summary acknowledgment after any change
// that would make a previously shown summary stale.
func (c *Context) InvalidateSummary() {
	c.SummaryShown = false
}
