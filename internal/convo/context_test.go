package convo

import (
	"testing"
	"time"
)

func TestAppendHistory_CapsAtLimit(t *testing.T) {
	c := New("5491155550123")
	for i := 0; i < HistoryLimit+7; i++ {
		c.AppendHistory("user", "hola")
	}
	if len(c.History) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(c.History), HistoryLimit)
	}
}

func TestAppendHistory_DropsOldestFirst(t *testing.T) {
	c := New("5491155550123")
	c.AppendHistory("user", "first")
	for i := 0; i < HistoryLimit; i++ {
		c.AppendHistory("assistant", "later")
	}
	for _, u := range c.History {
		if u.Content == "first" {
			t.Fatal("oldest entry should have been evicted")
		}
	}
}

func TestCartTotalCents(t *testing.T) {
	c := New("5491155550123")
	c.Cart = []CartItem{
		{ProductID: "p1", ProductName: "Empanada", Quantity: 6, PriceCents: 1500},
		{ProductID: "p2", ProductName: "Pizza", Quantity: 1, PriceCents: 12000},
	}
	if got := c.CartTotalCents(); got != 21000 {
		t.Fatalf("total = %d, want 21000", got)
	}
}

func TestResetOrder_ClearsOrderButKeepsIdentity(t *testing.T) {
	c := New("5491155550123")
	c.SelectedVendorID = "v1"
	c.SelectedVendorName = "La Esquina"
	c.Cart = []CartItem{{ProductID: "p1", Quantity: 2, PriceCents: 500}}
	c.DeliveryAddress = "Av. Corrientes 1234"
	c.DeliveryType = DeliveryTypeDelivery
	c.PaymentMethod = PaymentCash
	c.PendingOrderID = "ord-1"
	c.OrderState = StateOrderConfirmed
	c.SummaryShown = true
	c.AppendHistory("user", "gracias")

	c.ResetOrder()

	if c.OrderState != StateIdle {
		t.Errorf("state = %s, want idle", c.OrderState)
	}
	if len(c.Cart) != 0 || c.PendingOrderID != "" || c.SummaryShown {
		t.Error("cart, pending order and summary flag must be cleared")
	}
	if c.DeliveryAddress != "" || c.DeliveryType != "" || c.PaymentMethod != "" {
		t.Error("delivery and payment selections must be cleared")
	}
	if c.Phone != "5491155550123" {
		t.Error("phone must survive a reset")
	}
	if len(c.History) != 1 {
		t.Error("history must survive a reset")
	}
}

func TestSetLocation(t *testing.T) {
	c := New("5491155550123")
	before := time.Now().Add(-time.Second)
	c.SetLocation(-34.6037, -58.3816)
	if c.UserLatitude == nil || c.UserLongitude == nil {
		t.Fatal("coordinates not stored")
	}
	if *c.UserLatitude != -34.6037 || *c.UserLongitude != -58.3816 {
		t.Errorf("coordinates = %v,%v", *c.UserLatitude, *c.UserLongitude)
	}
	if c.LocationUpdatedAt == nil || c.LocationUpdatedAt.Before(before) {
		t.Error("location timestamp not refreshed")
	}
}

func TestInvalidateSummary(t *testing.T) {
	c := New("5491155550123")
	c.SummaryShown = true
	c.InvalidateSummary()
	if c.SummaryShown {
		t.Error("summary flag must be cleared after a cart or checkout mutation")
	}
}
