// Package handoff routes conversations between the bot, human vendors, and
// the emergency circuit-breaker. Routing runs before the agent ever sees a
// message: a customer talking to a human stays with the human until they
// explicitly ask for the bot back.
package handoff

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// Route says who handles an inbound message.
type Route int

const (
	// RouteAgent hands the message to the LLM agent loop.
	RouteAgent Route = iota
	// RouteVendor forwards the message to the vendor's direct chat.
	RouteVendor
	// RouteEscalated means this message just opened a ticket; the bot
	// acknowledges and the vendor is notified.
	RouteEscalated
	// RouteResumed means the customer asked for the bot back; the direct
	// chat ended and the bot acknowledges before normal handling resumes.
	RouteResumed
)

// Decision is the routing outcome for one inbound message.
type Decision struct {
	Route  Route
	Chat   *store.DirectChat // set for RouteVendor
	Ticket *store.Ticket     // set for RouteEscalated
}

// returnCommands hand control back to the bot from a direct chat.
// Matched case-insensitively against the whole trimmed message.
var returnCommands = map[string]bool{
	"bot":           true,
	"menu":          true,
	"menú":          true,
	"asistente":     true,
	"volver al bot": true,
}

// humanKeywords open a ticket when they appear in a message while the bot
// is in control.
var humanKeywords = []string{
	"hablar con un humano",
	"hablar con una persona",
	"hablar con alguien",
	"atencion humana",
	"atención humana",
	"quiero un humano",
}

// Router decides per message whether the bot or a human answers.
type Router struct {
	tickets store.TicketStore
	chats   store.ChatStore
	// ticketWindow bounds how far back an open ticket still claims the
	// conversation; stale tickets fall through to the bot.
	ticketWindow time.Duration
	logger       *slog.Logger
}

func NewRouter(tickets store.TicketStore, chats store.ChatStore, ticketWindow time.Duration, logger *slog.Logger) *Router {
	if ticketWindow <= 0 {
		ticketWindow = 12 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{tickets: tickets, chats: chats, ticketWindow: ticketWindow, logger: logger}
}

// Route inspects an inbound text and decides who handles it. vendorID is
// the conversation's currently selected vendor, used when an escalation
// needs a vendor to hand off to.
func (r *Router) Route(ctx context.Context, phone, text, vendorID string) (*Decision, error) {
	chat, err := r.chats.Active(phone)
	if err != nil {
		return nil, err
	}
	if chat != nil {
		if isReturnCommand(text) {
			if err := r.chats.End(phone); err != nil {
				return nil, err
			}
			if ticket, terr := r.tickets.LatestOpen(phone, time.Now().Add(-r.ticketWindow)); terr == nil && ticket != nil {
				if rerr := r.tickets.Resolve(ticket.ID); rerr != nil {
					r.logger.Warn("could not resolve ticket on return", "ticket", ticket.ID, "error", rerr)
				}
			}
			r.logger.Info("customer returned to bot", "phone", phone, "vendor", chat.VendorID)
			return &Decision{Route: RouteResumed}, nil
		}
		r.appendToTicket(phone, text)
		return &Decision{Route: RouteVendor, Chat: chat}, nil
	}

	// An open recent ticket without a live chat still belongs to a human.
	ticket, err := r.tickets.LatestOpen(phone, time.Now().Add(-r.ticketWindow))
	if err != nil {
		return nil, err
	}
	if ticket != nil {
		if isReturnCommand(text) {
			if err := r.tickets.Resolve(ticket.ID); err != nil {
				return nil, err
			}
			return &Decision{Route: RouteResumed}, nil
		}
		if err := r.tickets.Append(ticket.ID, "customer", text); err != nil {
			r.logger.Warn("could not append message to ticket", "ticket", ticket.ID, "error", err)
		}
		if ticket.VendorID != "" {
			return &Decision{Route: RouteVendor, Chat: &store.DirectChat{Phone: phone, VendorID: ticket.VendorID, Started: ticket.Created}}, nil
		}
		return &Decision{Route: RouteVendor, Chat: nil}, nil
	}

	if wantsHuman(text) {
		ticket, err := r.Escalate(ctx, phone, vendorID, text)
		if err != nil {
			return nil, err
		}
		return &Decision{Route: RouteEscalated, Ticket: ticket}, nil
	}

	return &Decision{Route: RouteAgent}, nil
}

// Escalate opens a ticket and, when a vendor is known, starts a direct chat
// so follow-up messages flow straight to the vendor.
func (r *Router) Escalate(ctx context.Context, phone, vendorID, reason string) (*store.Ticket, error) {
	ticket, err := r.tickets.Open(phone, vendorID, reason)
	if err != nil {
		return nil, err
	}
	if vendorID != "" {
		if err := r.chats.Start(phone, vendorID); err != nil {
			r.logger.Warn("ticket opened but direct chat failed to start", "phone", phone, "vendor", vendorID, "error", err)
		}
	}
	if err := r.tickets.Append(ticket.ID, "customer", reason); err != nil {
		r.logger.Warn("could not append message to ticket", "ticket", ticket.ID, "error", err)
	}
	r.logger.Info("conversation escalated to human", "phone", phone, "vendor", vendorID, "ticket", ticket.ID)
	return ticket, nil
}

// appendToTicket records a message on the customer's open ticket, when one
// exists. Transcript writes never block routing.
func (r *Router) appendToTicket(phone, text string) {
	ticket, err := r.tickets.LatestOpen(phone, time.Now().Add(-r.ticketWindow))
	if err != nil || ticket == nil {
		return
	}
	if err := r.tickets.Append(ticket.ID, "customer", text); err != nil {
		r.logger.Warn("could not append message to ticket", "ticket", ticket.ID, "error", err)
	}
}

func isReturnCommand(text string) bool {
	return returnCommands[strings.ToLower(strings.TrimSpace(text))]
}

func wantsHuman(text string) bool {
	t := strings.ToLower(text)
	for _, kw := range humanKeywords {
		if strings.Contains(t, kw) {
			return true
		}
	}
	return false
}
