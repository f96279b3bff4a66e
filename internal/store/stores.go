package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/pedidolabs/pedidobot/internal/convo"
)

// ContextStore manages per-customer conversation contexts. Mutations happen
// on the returned *convo.Context in memory; Save persists the current
// snapshot. Implementations cache hot contexts to keep tool loops off the DB.
type ContextStore interface {
	GetOrCreate(phone string) *convo.Context
	Save(phone string) error
	Delete(phone string) error
	// ListStale returns phones whose context was last updated before cutoff
	// and still carries an unplaced cart. Used by the reminder sweep.
	ListStale(cutoff time.Time) ([]string, error)
}

// CatalogStore serves vendor and product lookups.
type CatalogStore interface {
	SearchVendors(query string) ([]Vendor, error)
	VendorByID(id string) (*Vendor, error)
	ListProducts(vendorID string) ([]Product, error)
	ProductByID(id string) (*Product, error)
	// Upserts serve the onboarding wizard and admin seeding.
	UpsertVendor(v *Vendor) error
	UpsertProduct(p *Product) error
}

// OrderStore persists placed orders.
type OrderStore interface {
	Create(o *Order) error
	Get(id string) (*Order, error)
	LatestForCustomer(phone string) (*Order, error)
	UpdateStatus(id, status string) error
}

// TicketStore tracks human hand-off tickets.
type TicketStore interface {
	Open(phone, vendorID, reason string) (*Ticket, error)
	// LatestOpen returns the most recent open ticket for phone created
	// after cutoff, or nil when none qualifies.
	LatestOpen(phone string, cutoff time.Time) (*Ticket, error)
	// Append records one message on the ticket transcript.
	Append(id uuid.UUID, sender, text string) error
	Resolve(id uuid.UUID) error
	// ResolveStale closes every open ticket created before cutoff and
	// returns how many were closed.
	ResolveStale(cutoff time.Time) (int, error)
}

// ChatStore tracks active customer-to-vendor direct chats.
type ChatStore interface {
	Start(phone, vendorID string) error
	Active(phone string) (*DirectChat, error)
	End(phone string) error
	// EndStale drops chats started before cutoff and returns the count.
	EndStale(cutoff time.Time) (int, error)
}

// SettingsStore persists the platform safety record.
type SettingsStore interface {
	// Emergency returns the stored record, or (nil, nil) when none has
	// been written yet so callers can apply their defaults.
	Emergency() (*EmergencySettings, error)
	SetEmergency(s *EmergencySettings) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Contexts ContextStore
	Catalog  CatalogStore
	Orders   OrderStore
	Tickets  TicketStore
	Chats    ChatStore
	Settings SettingsStore
}

// Config selects and parameterizes a backend.
type Config struct {
	// PostgresDSN is NEVER read from config.json, only from env.
	PostgresDSN string
	// SQLitePath backs standalone mode when no DSN is set.
	SQLitePath string
}
