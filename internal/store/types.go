package store

import (
	"time"

	"github.com/google/uuid"
)

// Vendor is a shop reachable through the bot.
type Vendor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Phone     string    `json:"phone"` // canonical 549-prefixed number
	ChatID    string    `json:"chatID,omitempty"`
	Address   string    `json:"address,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Active    bool      `json:"active"`
	Created   time.Time `json:"created"`
}

// Product is one catalog entry of a vendor. Prices are integer centavos.
type Product struct {
	ID          string    `json:"id"`
	VendorID    string    `json:"vendorID"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price"`
	Available   bool      `json:"available"`
	Updated     time.Time `json:"updated"`
}

// OrderItem is a line of a placed order, denormalized so the order
// survives later catalog edits.
type OrderItem struct {
	ProductID   string `json:"productID"`
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	PriceCents  int64  `json:"price"`
}

// Order is a placed order row.
type Order struct {
	ID              string      `json:"id"`
	CustomerPhone   string      `json:"customerPhone"`
	VendorID        string      `json:"vendorID"`
	Items           []OrderItem `json:"items"`
	TotalCents      int64       `json:"total"`
	DeliveryType    string      `json:"deliveryType"`
	DeliveryAddress string      `json:"deliveryAddress,omitempty"`
	PaymentMethod   string      `json:"paymentMethod"`
	Status          string      `json:"status"`
	Created         time.Time   `json:"created"`
	Updated         time.Time   `json:"updated"`
}

// Order statuses, as the vendor sees them. The conversation's own state
// tracks the payment-specific pending flavor separately.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
)

// Ticket statuses.
const (
	TicketOpen     = "open"
	TicketResolved = "resolved"
)

// Ticket is a human hand-off request raised for a customer.
type Ticket struct {
	ID       uuid.UUID `json:"id"`
	Phone    string    `json:"phone"`
	VendorID string    `json:"vendorID,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Status   string    `json:"status"`
	Created  time.Time `json:"created"`
	Resolved time.Time `json:"resolved,omitzero"`
}

// DirectChat bridges a customer to a vendor while the bot steps aside.
type DirectChat struct {
	Phone    string    `json:"phone"`
	VendorID string    `json:"vendorID"`
	Started  time.Time `json:"started"`
}

// EmergencySettings is the persisted platform safety record shared by all
// gateway instances: the kill switch, the circuit-breaker state, and how
// inbound traffic is routed while the bot is degraded.
type EmergencySettings struct {
	BotEnabled       bool      `json:"botEnabled"`
	EmergencyMode    bool      `json:"emergencyMode"`
	EmergencyMessage string    `json:"emergencyMessage"`
	FallbackMode     string    `json:"fallbackMode"`
	ErrorCount       int       `json:"errorCount"`
	LastError        string    `json:"lastError"`
	AutoThreshold    int       `json:"autoThreshold"`
	Updated          time.Time `json:"updated"`
}
