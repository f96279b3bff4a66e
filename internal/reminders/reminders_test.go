package reminders

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pedidolabs/pedidobot/internal/bus"
	"github.com/pedidolabs/pedidobot/internal/config"
	"github.com/pedidolabs/pedidobot/internal/convo"
	"github.com/pedidolabs/pedidobot/internal/store"
)

type fakeContexts struct {
	stale []string
}

func (f *fakeContexts) GetOrCreate(phone string) *convo.Context { return convo.New(phone) }
func (f *fakeContexts) Save(phone string) error                 { return nil }
func (f *fakeContexts) Delete(phone string) error               { return nil }
func (f *fakeContexts) ListStale(cutoff time.Time) ([]string, error) {
	return f.stale, nil
}

type fakeTickets struct {
	resolved int
}

func (f *fakeTickets) Open(phone, vendorID, reason string) (*store.Ticket, error) { return nil, nil }
func (f *fakeTickets) LatestOpen(phone string, cutoff time.Time) (*store.Ticket, error) {
	return nil, nil
}
func (f *fakeTickets) Append(id uuid.UUID, sender, text string) error { return nil }
func (f *fakeTickets) Resolve(id uuid.UUID) error                     { return nil }
func (f *fakeTickets) ResolveStale(cutoff time.Time) (int, error) {
	f.resolved++
	return 2, nil
}

type fakeChats struct{}

func (f *fakeChats) Start(phone, vendorID string) error          { return nil }
func (f *fakeChats) Active(phone string) (*store.DirectChat, error) { return nil, nil }
func (f *fakeChats) End(phone string) error                      { return nil }
func (f *fakeChats) EndStale(cutoff time.Time) (int, error)      { return 0, nil }

func newTestService(t *testing.T, stale []string) (*Service, *bus.MessageBus, *fakeTickets) {
	t.Helper()
	b := bus.New(nil)
	tickets := &fakeTickets{}
	stores := &store.Stores{
		Contexts: &fakeContexts{stale: stale},
		Tickets:  tickets,
		Chats:    &fakeChats{},
	}
	svc, err := New(stores, b, config.RemindersConfig{Enabled: true}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc, b, tickets
}

func drainOutbound(b *bus.MessageBus) []bus.OutboundMessage {
	var out []bus.OutboundMessage
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		msg, ok := b.ConsumeOutbound(ctx)
		cancel()
		if !ok {
			return out
		}
		out = append(out, msg)
	}
}

func TestSweepNudgesStaleCarts(t *testing.T) {
	svc, b, tickets := newTestService(t, []string{"5491155550001", "5491155550002"})

	svc.Sweep(context.Background())

	msgs := drainOutbound(b)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 nudges, got %d", len(msgs))
	}
	for _, m := range msgs {
		if m.Channel != "whatsapp" {
			t.Errorf("channel = %q, want whatsapp", m.Channel)
		}
		if !strings.Contains(m.Content, "carrito") {
			t.Errorf("nudge text %q does not mention the cart", m.Content)
		}
	}
	if tickets.resolved != 1 {
		t.Errorf("ResolveStale called %d times, want 1", tickets.resolved)
	}
}

func TestSweepDoesNotRenudgeWithinCooldown(t *testing.T) {
	svc, b, _ := newTestService(t, []string{"5491155550001"})

	svc.Sweep(context.Background())
	svc.Sweep(context.Background())

	if msgs := drainOutbound(b); len(msgs) != 1 {
		t.Fatalf("expected 1 nudge across both sweeps, got %d", len(msgs))
	}
}

func TestNewRejectsBadCron(t *testing.T) {
	b := bus.New(nil)
	stores := &store.Stores{Contexts: &fakeContexts{}, Tickets: &fakeTickets{}, Chats: &fakeChats{}}
	_, err := New(stores, b, config.RemindersConfig{CronExpr: "not a cron"}, nil)
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
