package handoff

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pedidolabs/pedidobot/internal/store"
)

type ticketMessage struct {
	ticketID uuid.UUID
	sender   string
	body     string
}

type fakeTickets struct {
	tickets  []*store.Ticket
	messages []ticketMessage
}

func (f *fakeTickets) Open(phone, vendorID, reason string) (*store.Ticket, error) {
	t := &store.Ticket{
		ID:       uuid.Must(uuid.NewV7()),
		Phone:    phone,
		VendorID: vendorID,
		Reason:   reason,
		Status:   store.TicketOpen,
		Created:  time.Now(),
	}
	f.tickets = append(f.tickets, t)
	return t, nil
}

func (f *fakeTickets) LatestOpen(phone string, cutoff time.Time) (*store.Ticket, error) {
	for i := len(f.tickets) - 1; i >= 0; i-- {
		t := f.tickets[i]
		if t.Phone == phone && t.Status == store.TicketOpen && !t.Created.Before(cutoff) {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeTickets) Append(id uuid.UUID, sender, text string) error {
	f.messages = append(f.messages, ticketMessage{ticketID: id, sender: sender, body: text})
	return nil
}

func (f *fakeTickets) Resolve(id uuid.UUID) error {
	for _, t := range f.tickets {
		if t.ID == id {
			t.Status = store.TicketResolved
		}
	}
	return nil
}

func (f *fakeTickets) ResolveStale(cutoff time.Time) (int, error) {
	n := 0
	for _, t := range f.tickets {
		if t.Status == store.TicketOpen && t.Created.Before(cutoff) {
			t.Status = store.TicketResolved
			n++
		}
	}
	return n, nil
}

type fakeChats struct {
	active map[string]*store.DirectChat
}

func (f *fakeChats) Start(phone, vendorID string) error {
	if f.active == nil {
		f.active = make(map[string]*store.DirectChat)
	}
	f.active[phone] = &store.DirectChat{Phone: phone, VendorID: vendorID, Started: time.Now()}
	return nil
}

func (f *fakeChats) Active(phone string) (*store.DirectChat, error) {
	return f.active[phone], nil
}

func (f *fakeChats) End(phone string) error {
	delete(f.active, phone)
	return nil
}

func (f *fakeChats) EndStale(cutoff time.Time) (int, error) {
	n := 0
	for phone, c := range f.active {
		if c.Started.Before(cutoff) {
			delete(f.active, phone)
			n++
		}
	}
	return n, nil
}

func newTestRouter() (*Router, *fakeTickets, *fakeChats) {
	tickets := &fakeTickets{}
	chats := &fakeChats{}
	return NewRouter(tickets, chats, time.Hour, nil), tickets, chats
}

const phone = "5491155550123"

func TestRoute_DefaultsToAgent(t *testing.T) {
	r, _, _ := newTestRouter()
	d, err := r.Route(context.Background(), phone, "quiero una pizza", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteAgent {
		t.Errorf("route = %v, want RouteAgent", d.Route)
	}
}

func TestRoute_HumanKeywordEscalates(t *testing.T) {
	r, tickets, chats := newTestRouter()
	d, err := r.Route(context.Background(), phone, "necesito hablar con una persona por favor", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteEscalated || d.Ticket == nil {
		t.Fatalf("route = %v, ticket = %v", d.Route, d.Ticket)
	}
	if len(tickets.tickets) != 1 {
		t.Error("a ticket must be opened")
	}
	if chats.active[phone] == nil || chats.active[phone].VendorID != "v1" {
		t.Error("a direct chat with the selected vendor must start")
	}

	// The next message goes to the vendor, not the bot.
	d2, _ := r.Route(context.Background(), phone, "se olvidaron las servilletas", "v1")
	if d2.Route != RouteVendor || d2.Chat == nil {
		t.Errorf("follow-up route = %v, want RouteVendor", d2.Route)
	}
}

func TestRoute_ReturnCommandEndsChatAndResolvesTicket(t *testing.T) {
	r, tickets, chats := newTestRouter()
	r.Route(context.Background(), phone, "quiero un humano", "v1")

	for _, cmd := range []string{"bot", "Menú", "MENU", "asistente", "Volver al bot"} {
		// Reset to an active chat for each command form.
		chats.Start(phone, "v1")
		tickets.Open(phone, "v1", "again")

		d, err := r.Route(context.Background(), phone, cmd, "v1")
		if err != nil {
			t.Fatal(err)
		}
		if d.Route != RouteResumed {
			t.Errorf("command %q: route = %v, want RouteResumed", cmd, d.Route)
		}
		if chats.active[phone] != nil {
			t.Errorf("command %q: chat must end", cmd)
		}
	}

	if last := tickets.tickets[len(tickets.tickets)-1]; last.Status != store.TicketResolved {
		t.Error("open ticket must be resolved on return")
	}
}

func TestRoute_OpenTicketRecordsTranscript(t *testing.T) {
	r, tickets, chats := newTestRouter()

	d, err := r.Route(context.Background(), phone, "quiero hablar con un humano", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteEscalated {
		t.Fatalf("route = %v, want RouteEscalated", d.Route)
	}
	// Follow-ups while the chat is active land on the same ticket.
	r.Route(context.Background(), phone, "mi pedido llegó frío", "v1")

	// Messages after the chat ends but with the ticket still open are
	// recorded too.
	chats.End(phone)
	r.Route(context.Background(), phone, "sigo esperando respuesta", "v1")

	if len(tickets.messages) != 3 {
		t.Fatalf("transcript has %d messages, want 3", len(tickets.messages))
	}
	ticketID := tickets.tickets[0].ID
	want := []string{"quiero hablar con un humano", "mi pedido llegó frío", "sigo esperando respuesta"}
	for i, m := range tickets.messages {
		if m.ticketID != ticketID {
			t.Errorf("message %d on ticket %s, want %s", i, m.ticketID, ticketID)
		}
		if m.sender != "customer" || m.body != want[i] {
			t.Errorf("message %d = %s/%q, want customer/%q", i, m.sender, m.body, want[i])
		}
	}
}

func TestRoute_StaleTicketFallsThroughToBot(t *testing.T) {
	r, tickets, _ := newTestRouter()
	old, _ := tickets.Open(phone, "", "old issue")
	old.Created = time.Now().Add(-2 * time.Hour)

	d, err := r.Route(context.Background(), phone, "hola", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Route != RouteAgent {
		t.Errorf("route = %v, want RouteAgent for a stale ticket", d.Route)
	}
}

type fakeSettings struct {
	rec  *store.EmergencySettings
	fail error
}

func (f *fakeSettings) Emergency() (*store.EmergencySettings, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if f.rec == nil {
		return nil, nil
	}
	rec := *f.rec
	return &rec, nil
}

func (f *fakeSettings) SetEmergency(s *store.EmergencySettings) error {
	rec := *s
	f.rec = &rec
	return nil
}

func TestEmergency_TripsAtThreshold(t *testing.T) {
	settings := &fakeSettings{}
	e := NewEmergency(settings, 3, nil)

	if e.RecordFailure("timeout") || e.RecordFailure("timeout") {
		t.Fatal("must not trip below the threshold")
	}
	if !e.RecordFailure("timeout") {
		t.Fatal("third failure must trip emergency mode")
	}
	if !e.Active() || settings.rec == nil || !settings.rec.EmergencyMode {
		t.Error("mode must be active and persisted")
	}
	if settings.rec.LastError != "timeout" {
		t.Errorf("last error = %q, want the failure cause persisted", settings.rec.LastError)
	}
}

func TestEmergency_SuccessResetsCountNotMode(t *testing.T) {
	settings := &fakeSettings{}
	e := NewEmergency(settings, 3, nil)
	e.RecordFailure("boom")
	e.RecordFailure("boom")
	e.RecordSuccess()
	if e.ErrorCount() != 0 {
		t.Error("success must reset the consecutive count")
	}
	if e.RecordFailure("boom") {
		t.Error("a single failure after a reset must not trip")
	}

	e.RecordFailure("boom")
	e.RecordFailure("boom")
	if !e.Active() {
		t.Fatal("expected tripped mode")
	}
	e.RecordSuccess()
	if !e.Active() {
		t.Error("a success must never clear emergency mode")
	}
}

func TestEmergency_ManualOverride(t *testing.T) {
	settings := &fakeSettings{rec: &store.EmergencySettings{BotEnabled: true, EmergencyMode: true, ErrorCount: 7}}
	e := NewEmergency(settings, 3, nil)
	if !e.Active() {
		t.Fatal("persisted mode must be loaded")
	}

	e.SetMode(false)
	if e.Active() || e.ErrorCount() != 0 {
		t.Error("manual off must clear mode and counters")
	}
	if settings.rec.EmergencyMode || settings.rec.ErrorCount != 0 {
		t.Error("override must be persisted")
	}
}

func TestEmergency_MissingRecordDefaultsToEnabled(t *testing.T) {
	e := NewEmergency(&fakeSettings{}, 3, nil)
	if e.Degraded() {
		t.Error("a fresh install must not start degraded")
	}
	if e.FallbackMode() != FallbackOffline {
		t.Errorf("fallback = %q, want offline by default", e.FallbackMode())
	}
}

func TestEmergency_KillSwitchDegradesWithoutEmergency(t *testing.T) {
	settings := &fakeSettings{}
	e := NewEmergency(settings, 3, nil)

	e.SetBotEnabled(false)
	if e.Active() {
		t.Error("kill switch must not set emergency mode")
	}
	if !e.Degraded() {
		t.Error("a disabled bot is degraded")
	}
	if settings.rec == nil || settings.rec.BotEnabled {
		t.Error("kill switch must be persisted")
	}

	e.SetBotEnabled(true)
	if e.Degraded() {
		t.Error("re-enabling must clear the degraded state")
	}
}

func TestEmergency_FallbackConfigPersists(t *testing.T) {
	settings := &fakeSettings{}
	e := NewEmergency(settings, 3, nil)

	e.SetFallback(FallbackVendorDirect, "Estamos en mantenimiento")
	if e.FallbackMode() != FallbackVendorDirect {
		t.Errorf("fallback = %q, want vendor_direct", e.FallbackMode())
	}
	if e.Message() != "Estamos en mantenimiento" {
		t.Errorf("message = %q", e.Message())
	}
	if settings.rec == nil || settings.rec.FallbackMode != FallbackVendorDirect {
		t.Error("fallback mode must be persisted")
	}

	// An empty message keeps the current one.
	e.SetFallback(FallbackSupportQueue, "")
	if e.Message() != "Estamos en mantenimiento" {
		t.Error("empty message must not clear the configured one")
	}
}

func TestEmergency_ThresholdReload(t *testing.T) {
	settings := &fakeSettings{}
	e := NewEmergency(settings, 5, nil)

	e.RecordFailure("x")
	e.RecordFailure("x")
	e.SetThreshold(2)
	if !e.RecordFailure("x") {
		t.Error("the reloaded threshold must apply to the next failure")
	}
	if settings.rec.AutoThreshold != 2 {
		t.Errorf("threshold = %d, want 2 persisted", settings.rec.AutoThreshold)
	}
}
