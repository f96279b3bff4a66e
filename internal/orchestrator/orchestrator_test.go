package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pedidolabs/pedidobot/internal/bus"
	"github.com/pedidolabs/pedidobot/internal/convo"
	"github.com/pedidolabs/pedidobot/internal/debounce"
	"github.com/pedidolabs/pedidobot/internal/handoff"
	"github.com/pedidolabs/pedidobot/internal/providers"
	"github.com/pedidolabs/pedidobot/internal/store"
	"github.com/pedidolabs/pedidobot/internal/tools"
)

// scriptedProvider returns canned responses in order and records every
// request it receives.
type scriptedProvider struct {
	responses []*providers.ChatResponse
	requests  []providers.ChatRequest
	err       error
}

func (p *scriptedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &providers.ChatResponse{Content: "ok"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

type memContexts struct {
	data  map[string]*convo.Context
	saves int
}

func (m *memContexts) GetOrCreate(phone string) *convo.Context {
	if m.data == nil {
		m.data = make(map[string]*convo.Context)
	}
	if c, ok := m.data[phone]; ok {
		return c
	}
	c := convo.New(phone)
	m.data[phone] = c
	return c
}

func (m *memContexts) Save(phone string) error {
	m.saves++
	return nil
}

func (m *memContexts) Delete(phone string) error { delete(m.data, phone); return nil }
func (m *memContexts) ListStale(cutoff time.Time) ([]string, error) { return nil, nil }

type memCatalog struct {
	vendors  []store.Vendor
	products []store.Product
}

func (m *memCatalog) SearchVendors(query string) ([]store.Vendor, error) { return m.vendors, nil }
func (m *memCatalog) VendorByID(id string) (*store.Vendor, error) {
	for i := range m.vendors {
		if m.vendors[i].ID == id {
			return &m.vendors[i], nil
		}
	}
	return nil, fmt.Errorf("vendor %s not found", id)
}
func (m *memCatalog) ListProducts(vendorID string) ([]store.Product, error) {
	var out []store.Product
	for _, p := range m.products {
		if p.VendorID == vendorID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *memCatalog) ProductByID(id string) (*store.Product, error) {
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, fmt.Errorf("product %s not found", id)
}
func (m *memCatalog) UpsertVendor(v *store.Vendor) error {
	m.vendors = append(m.vendors, *v)
	return nil
}
func (m *memCatalog) UpsertProduct(p *store.Product) error {
	m.products = append(m.products, *p)
	return nil
}

type memOrders struct{ orders map[string]*store.Order }

func (m *memOrders) Create(o *store.Order) error {
	if m.orders == nil {
		m.orders = make(map[string]*store.Order)
	}
	m.orders[o.ID] = o
	return nil
}
func (m *memOrders) Get(id string) (*store.Order, error) { return m.orders[id], nil }
func (m *memOrders) LatestForCustomer(phone string) (*store.Order, error) { return nil, nil }
func (m *memOrders) UpdateStatus(id, status string) error {
	if o, ok := m.orders[id]; ok {
		o.Status = status
	}
	return nil
}

type memTickets struct {
	tickets  []*store.Ticket
	messages []string
}

func (m *memTickets) Open(phone, vendorID, reason string) (*store.Ticket, error) {
	t := &store.Ticket{ID: uuid.Must(uuid.NewV7()), Phone: phone, VendorID: vendorID, Reason: reason, Status: store.TicketOpen, Created: time.Now()}
	m.tickets = append(m.tickets, t)
	return t, nil
}
func (m *memTickets) LatestOpen(phone string, cutoff time.Time) (*store.Ticket, error) {
	for i := len(m.tickets) - 1; i >= 0; i-- {
		t := m.tickets[i]
		if t.Phone == phone && t.Status == store.TicketOpen && t.Created.After(cutoff) {
			return t, nil
		}
	}
	return nil, nil
}
func (m *memTickets) Append(id uuid.UUID, sender, text string) error {
	m.messages = append(m.messages, sender+": "+text)
	return nil
}
func (m *memTickets) Resolve(id uuid.UUID) error {
	for _, t := range m.tickets {
		if t.ID == id {
			t.Status = store.TicketResolved
		}
	}
	return nil
}
func (m *memTickets) ResolveStale(cutoff time.Time) (int, error) { return 0, nil }

type memChats struct{ active map[string]*store.DirectChat }

func (m *memChats) Start(phone, vendorID string) error {
	if m.active == nil {
		m.active = make(map[string]*store.DirectChat)
	}
	m.active[phone] = &store.DirectChat{Phone: phone, VendorID: vendorID, Started: time.Now()}
	return nil
}
func (m *memChats) Active(phone string) (*store.DirectChat, error) { return m.active[phone], nil }
func (m *memChats) End(phone string) error                         { delete(m.active, phone); return nil }
func (m *memChats) EndStale(cutoff time.Time) (int, error)         { return 0, nil }

type memSettings struct{ rec *store.EmergencySettings }

func (m *memSettings) Emergency() (*store.EmergencySettings, error) {
	if m.rec == nil {
		return nil, nil
	}
	cp := *m.rec
	return &cp, nil
}
func (m *memSettings) SetEmergency(s *store.EmergencySettings) error {
	cp := *s
	m.rec = &cp
	return nil
}

type testEnv struct {
	orch     *Orchestrator
	provider *scriptedProvider
	bus      *bus.MessageBus
	contexts *memContexts
	tickets  *memTickets
	chats    *memChats
	settings *memSettings
}

func newTestEnv(t *testing.T, provider *scriptedProvider) *testEnv {
	t.Helper()
	b := bus.New(nil)
	contexts := &memContexts{}
	catalog := &memCatalog{
		vendors: []store.Vendor{{ID: "v1", Name: "La Esquina"}},
		products: []store.Product{
			{ID: "p1", VendorID: "v1", Name: "Pizza muzzarella", PriceCents: 120000, Available: true},
		},
	}
	tickets := &memTickets{}
	chats := &memChats{}
	settings := &memSettings{}
	stores := &store.Stores{
		Contexts: contexts,
		Catalog:  catalog,
		Orders:   &memOrders{},
		Tickets:  tickets,
		Chats:    chats,
		Settings: settings,
	}

	orch, err := New(Config{
		Provider:  provider,
		Stores:    stores,
		Gateway:   tools.NewGateway(stores.Catalog, stores.Orders, nil, nil),
		Router:    handoff.NewRouter(tickets, chats, 12*time.Hour, nil),
		Emergency: handoff.NewEmergency(settings, 2, nil),
		Bus:       b,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testEnv{orch: orch, provider: provider, bus: b, contexts: contexts, tickets: tickets, chats: chats, settings: settings}
}

func (e *testEnv) replies() []string {
	var out []string
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		msg, ok := e.bus.ConsumeOutbound(ctx)
		cancel()
		if !ok {
			return out
		}
		out = append(out, msg.Content)
	}
}

func textBatch(key, text string) debounce.Batch {
	return debounce.Batch{Key: key, Action: debounce.Process, Text: text, Count: 1}
}

func TestPlainReplyTurn(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{
		responses: []*providers.ChatResponse{{Content: "¡Hola! ¿Qué querés pedir hoy?"}},
	})

	env.orch.processBatch(textBatch("5491155550001", "hola"))

	replies := env.replies()
	if len(replies) != 1 || replies[0] != "¡Hola! ¿Qué querés pedir hoy?" {
		t.Fatalf("replies = %v", replies)
	}

	c := env.contexts.GetOrCreate("5491155550001")
	if len(c.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(c.History))
	}
	if c.History[0].Role != "user" || c.History[0].Content != "hola" {
		t.Errorf("first utterance = %+v", c.History[0])
	}
	if env.contexts.saves == 0 {
		t.Error("context was never saved")
	}
}

func TestToolCallRoundTrip(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{
		responses: []*providers.ChatResponse{
			{
				ToolCalls: []providers.ToolCall{
					{ID: "call_1", Name: "search_vendors", Arguments: map[string]any{"query": "pizza"}},
				},
				FinishReason: "tool_calls",
			},
			{Content: "Encontré La Esquina, ¿te muestro el menú?"},
		},
	})

	env.orch.processBatch(textBatch("5491155550001", "quiero una pizza"))

	if got := len(env.provider.requests); got != 2 {
		t.Fatalf("provider called %d times, want 2", got)
	}

	second := env.provider.requests[1].Messages
	var toolMsg *providers.Message
	for i := range second {
		if second[i].Role == "tool" {
			toolMsg = &second[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool message fed back to the provider")
	}
	if toolMsg.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q, want call_1", toolMsg.ToolCallID)
	}
	if !strings.Contains(toolMsg.Content, "La Esquina") {
		t.Errorf("tool result %q does not mention the vendor", toolMsg.Content)
	}

	replies := env.replies()
	if len(replies) != 1 || !strings.Contains(replies[0], "La Esquina") {
		t.Fatalf("replies = %v", replies)
	}
}

func TestSystemMessagesCarryStateSnapshot(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	c := env.contexts.GetOrCreate("5491155550001")
	c.SelectedVendorID = "v1"
	c.SelectedVendorName = "La Esquina"
	c.OrderState = convo.StateShopping
	c.Cart = []convo.CartItem{{ProductID: "p1", ProductName: "Pizza muzzarella", Quantity: 2, PriceCents: 120000}}

	env.orch.processBatch(textBatch("5491155550001", "sumá otra"))

	req := env.provider.requests[0]
	if len(req.Messages) < 3 {
		t.Fatalf("expected system prompt, snapshot, and user message, got %d messages", len(req.Messages))
	}
	snapshot := req.Messages[1]
	if snapshot.Role != "system" {
		t.Fatalf("second message role = %q, want system", snapshot.Role)
	}
	for _, want := range []string{"La Esquina", "2x Pizza muzzarella", "shopping"} {
		if !strings.Contains(snapshot.Content, want) {
			t.Errorf("snapshot missing %q:\n%s", want, snapshot.Content)
		}
	}
}

func TestSpamBatchGetsCannedReply(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	env.orch.processBatch(debounce.Batch{Key: "5491155550001", Action: debounce.Spam, Text: "x", Count: 12})

	if len(env.provider.requests) != 0 {
		t.Fatal("spam batch must not reach the provider")
	}
	replies := env.replies()
	if len(replies) != 1 || replies[0] != spamReply {
		t.Fatalf("replies = %v", replies)
	}
}

func TestEmergencyModeSkipsProvider(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	env.settings.rec = &store.EmergencySettings{BotEnabled: true, EmergencyMode: true}

	env.orch.processBatch(textBatch("5491155550001", "hola"))

	if len(env.provider.requests) != 0 {
		t.Fatal("emergency mode must not reach the provider")
	}
	replies := env.replies()
	if len(replies) != 1 || replies[0] != emergencyReply {
		t.Fatalf("replies = %v", replies)
	}
}

func TestDisabledBotSkipsProvider(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	env.settings.rec = &store.EmergencySettings{
		BotEnabled:       false,
		EmergencyMessage: "El bot está en mantenimiento, escribinos más tarde.",
	}

	env.orch.processBatch(textBatch("5491155550001", "hola"))

	if len(env.provider.requests) != 0 {
		t.Fatal("a disabled bot must not reach the provider")
	}
	replies := env.replies()
	if len(replies) != 1 || replies[0] != "El bot está en mantenimiento, escribinos más tarde." {
		t.Fatalf("replies = %v", replies)
	}
}

func TestDegradedVendorDirectEscalates(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	env.settings.rec = &store.EmergencySettings{
		BotEnabled:    true,
		EmergencyMode: true,
		FallbackMode:  handoff.FallbackVendorDirect,
	}
	c := env.contexts.GetOrCreate("5491155550001")
	c.SelectedVendorID = "v1"

	env.orch.processBatch(textBatch("5491155550001", "quiero otra pizza"))

	if len(env.provider.requests) != 0 {
		t.Fatal("degraded turn must not reach the provider")
	}
	if len(env.tickets.tickets) != 1 || env.tickets.tickets[0].VendorID != "v1" {
		t.Fatalf("tickets = %+v, want one assigned to v1", env.tickets.tickets)
	}
	if env.chats.active["5491155550001"] == nil {
		t.Error("vendor_direct must start a direct chat")
	}
	if got := env.replies(); len(got) != 1 || got[0] != emergencyReply {
		t.Fatalf("replies = %v", got)
	}

	// The chat now owns the conversation; a follow-up relays, not re-escalates.
	env.orch.processBatch(textBatch("5491155550001", "hola?"))
	if len(env.tickets.tickets) != 1 {
		t.Error("follow-up must not open a second ticket")
	}
}

func TestDegradedSupportQueueOpensUnassignedTicket(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})
	env.settings.rec = &store.EmergencySettings{
		BotEnabled:    true,
		EmergencyMode: true,
		FallbackMode:  handoff.FallbackSupportQueue,
	}

	env.orch.processBatch(textBatch("5491155550001", "necesito ayuda"))

	if len(env.tickets.tickets) != 1 || env.tickets.tickets[0].VendorID != "" {
		t.Fatalf("tickets = %+v, want one unassigned ticket", env.tickets.tickets)
	}
	if env.chats.active["5491155550001"] != nil {
		t.Error("support_queue must not start a vendor chat")
	}
	if got := env.replies(); len(got) != 1 || got[0] != emergencyReply {
		t.Fatalf("replies = %v", got)
	}
}

func TestProviderFailuresTripEmergency(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{err: fmt.Errorf("upstream 500")})

	env.orch.processBatch(textBatch("5491155550001", "hola"))
	env.orch.processBatch(textBatch("5491155550001", "hola?"))

	replies := env.replies()
	if len(replies) != 2 {
		t.Fatalf("got %d replies, want 2", len(replies))
	}
	for _, r := range replies {
		if r != failureReply {
			t.Errorf("reply = %q, want failure notice", r)
		}
	}

	// Threshold is 2 in the test env; the third message hits emergency mode.
	env.orch.processBatch(textBatch("5491155550001", "sigue ahí?"))
	if got := env.replies(); len(got) != 1 || got[0] != emergencyReply {
		t.Fatalf("expected emergency reply after trip, got %v", got)
	}

	if env.settings.rec == nil || env.settings.rec.LastError != "upstream 500" {
		t.Errorf("persisted record = %+v, want the provider error recorded", env.settings.rec)
	}
}

func TestFailingTurnReleasesSenderLock(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{err: fmt.Errorf("upstream 500")})
	env.orch.debouncer = debounce.New(env.orch.processBatch, debounce.WithWindow(30*time.Millisecond))

	const key = "5491155550001"
	env.orch.HandleInbound(context.Background(), bus.InboundMessage{
		Channel: "whatsapp", Sender: key, Kind: bus.KindText, Content: "hola",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	msg, ok := env.bus.ConsumeOutbound(ctx)
	cancel()
	if !ok || msg.Content != failureReply {
		t.Fatalf("expected a failure notice, got %v %q", ok, msg.Content)
	}

	// Release runs after the reply is published; give it a beat.
	deadline := time.Now().Add(time.Second)
	for env.orch.debouncer.Locked(key) {
		if time.Now().After(deadline) {
			t.Fatal("sender lock still held after a failing pass")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The next message must flow through a fresh pass, not pile up
	// behind a stuck lock.
	env.orch.HandleInbound(context.Background(), bus.InboundMessage{
		Channel: "whatsapp", Sender: key, Kind: bus.KindText, Content: "hola?",
	})
	ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
	msg, ok = env.bus.ConsumeOutbound(ctx)
	cancel()
	if !ok || msg.Content != failureReply {
		t.Fatalf("expected a second failure notice, got %v %q", ok, msg.Content)
	}
}

func TestEscalationOpensTicket(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	env.orch.processBatch(textBatch("5491155550001", "quiero hablar con un humano"))

	if len(env.provider.requests) != 0 {
		t.Fatal("escalation must bypass the provider")
	}
	if len(env.tickets.tickets) != 1 {
		t.Fatalf("expected 1 open ticket, got %d", len(env.tickets.tickets))
	}
	replies := env.replies()
	if len(replies) != 1 || replies[0] != escalatedReply {
		t.Fatalf("replies = %v", replies)
	}

	// Follow-up goes to the vendor, not the agent.
	env.orch.processBatch(textBatch("5491155550001", "gracias"))
	if len(env.provider.requests) != 0 {
		t.Fatal("messages during an open hand-off must not reach the provider")
	}

	// "bot" returns control to the agent.
	env.orch.processBatch(textBatch("5491155550001", "bot"))
	if got := env.replies(); len(got) != 1 || got[0] != resumedReply {
		t.Fatalf("expected resume confirmation, got %v", got)
	}
}

func TestHandleInboundNormalizesSender(t *testing.T) {
	env := newTestEnv(t, &scriptedProvider{})

	env.orch.HandleInbound(context.Background(), bus.InboundMessage{
		Channel: "whatsapp",
		Sender:  "+54 9 11 5555-0001",
		Kind:    bus.KindText,
		Content: "hola",
	})

	if env.orch.debouncer.Locked("5491155550001") {
		t.Fatal("fragment should be buffered, not locked")
	}
	if _, ok := env.contexts.data["54 9 11 5555-0001"]; ok {
		t.Fatal("raw sender must not become a context key")
	}
}
