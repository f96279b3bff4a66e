package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pedidolabs/pedidobot/internal/convo"
	"github.com/pedidolabs/pedidobot/internal/store"
)

const phone = "5491155550123"

func openStores(t *testing.T, path string) *store.Stores {
	t.Helper()
	s, err := NewSQLiteStores(path)
	if err != nil {
		t.Fatalf("NewSQLiteStores: %v", err)
	}
	return s
}

func TestContextSaveRestoresMissingRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	stores := openStores(t, path)

	c := stores.Contexts.GetOrCreate(phone)
	c.OrderState = convo.StateShopping
	c.SelectedVendorID = "v1"
	c.Cart = []convo.CartItem{{ProductID: "p1", ProductName: "Muzzarella", Quantity: 1, PriceCents: 120000}}

	// Drop the row underneath the cache, as a failed initial insert
	// would leave it.
	cs := stores.Contexts.(*contextStore)
	if _, err := cs.db.Exec(`DELETE FROM contexts WHERE phone = ?`, phone); err != nil {
		t.Fatal(err)
	}

	if err := stores.Contexts.Save(phone); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A cold read sees the saved snapshot.
	fresh := openStores(t, path)
	got := fresh.Contexts.GetOrCreate(phone)
	if got.OrderState != convo.StateShopping || got.SelectedVendorID != "v1" {
		t.Errorf("restored context = state %s, vendor %q", got.OrderState, got.SelectedVendorID)
	}
	if len(got.Cart) != 1 || got.Cart[0].ProductID != "p1" {
		t.Errorf("restored cart = %+v", got.Cart)
	}
}

func TestEmergencySettingsRoundTrip(t *testing.T) {
	stores := openStores(t, filepath.Join(t.TempDir(), "bot.db"))

	rec, err := stores.Settings.Emergency()
	if err != nil {
		t.Fatal(err)
	}
	if rec != nil {
		t.Fatalf("fresh database returned %+v, want no record", rec)
	}

	want := &store.EmergencySettings{
		BotEnabled:       true,
		EmergencyMode:    true,
		EmergencyMessage: "Estamos con problemas técnicos",
		FallbackMode:     "support_queue",
		ErrorCount:       4,
		LastError:        "upstream 500",
		AutoThreshold:    5,
	}
	if err := stores.Settings.SetEmergency(want); err != nil {
		t.Fatalf("SetEmergency: %v", err)
	}

	got, err := stores.Settings.Emergency()
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("record not persisted")
	}
	if !got.BotEnabled || !got.EmergencyMode || got.FallbackMode != "support_queue" ||
		got.ErrorCount != 4 || got.LastError != "upstream 500" || got.AutoThreshold != 5 {
		t.Errorf("round trip = %+v", got)
	}
	if got.EmergencyMessage != "Estamos con problemas técnicos" {
		t.Errorf("message = %q", got.EmergencyMessage)
	}
}

func TestTicketTranscriptPersists(t *testing.T) {
	stores := openStores(t, filepath.Join(t.TempDir(), "bot.db"))

	ticket, err := stores.Tickets.Open(phone, "v1", "quiero hablar con un humano")
	if err != nil {
		t.Fatal(err)
	}
	if err := stores.Tickets.Append(ticket.ID, "customer", "mi pedido llegó frío"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := stores.Tickets.Append(ticket.ID, "vendor", "te mandamos otro"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	ts := stores.Tickets.(*ticketStore)
	var n int
	if err := ts.db.QueryRow(
		`SELECT COUNT(*) FROM ticket_messages WHERE ticket_id = ?`, ticket.ID.String(),
	).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("transcript rows = %d, want 2", n)
	}

	open, err := stores.Tickets.LatestOpen(phone, time.Now().Add(-time.Hour))
	if err != nil || open == nil || open.ID != ticket.ID {
		t.Errorf("LatestOpen = %+v, %v", open, err)
	}
}
