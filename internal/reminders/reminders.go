// Package reminders runs the periodic maintenance sweep: abandoned-cart
// nudges plus auto-expiry of stale hand-off tickets and direct chats.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/pedidolabs/pedidobot/internal/bus"
	"github.com/pedidolabs/pedidobot/internal/config"
	"github.com/pedidolabs/pedidobot/internal/store"
)

const nudgeText = "¡Hola! Vimos que dejaste productos en tu carrito 🛒 ¿Querés terminar tu pedido? Escribinos y lo retomamos donde quedó."

// renudgeCooldown keeps a customer from receiving more than one nudge
// per day even when their cart stays stale across many sweep ticks.
const renudgeCooldown = 24 * time.Hour

// Service sweeps on a cron schedule and publishes reminder messages
// through the outbound side of the bus.
type Service struct {
	contexts store.ContextStore
	tickets  store.TicketStore
	chats    store.ChatStore
	bus      *bus.MessageBus
	cfg      config.RemindersConfig
	logger   *slog.Logger

	mu     sync.Mutex
	nudged map[string]time.Time
}

func New(stores *store.Stores, b *bus.MessageBus, cfg config.RemindersConfig, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CronExpr == "" {
		cfg.CronExpr = "*/15 * * * *"
	}
	if !gronx.New().IsValid(cfg.CronExpr) {
		return nil, fmt.Errorf("invalid reminder cron expression %q", cfg.CronExpr)
	}
	if cfg.StaleMinutes <= 0 {
		cfg.StaleMinutes = 45
	}
	if cfg.TicketHours <= 0 {
		cfg.TicketHours = 24
	}
	return &Service{
		contexts: stores.Contexts,
		tickets:  stores.Tickets,
		chats:    stores.Chats,
		bus:      b,
		cfg:      cfg,
		logger:   logger.With("component", "reminders"),
		nudged:   make(map[string]time.Time),
	}, nil
}

// Run blocks until ctx is cancelled, firing a sweep at each cron tick.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("reminder sweep scheduled", "cron", s.cfg.CronExpr, "stale_minutes", s.cfg.StaleMinutes)
	for {
		next, err := gronx.NextTick(s.cfg.CronExpr, false)
		if err != nil {
			return fmt.Errorf("compute next tick: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		s.Sweep(ctx)
	}
}

// Sweep runs one pass. Exported so an operator endpoint can trigger it
// on demand.
func (s *Service) Sweep(ctx context.Context) {
	now := time.Now()

	cutoff := now.Add(-time.Duration(s.cfg.StaleMinutes) * time.Minute)
	phones, err := s.contexts.ListStale(cutoff)
	if err != nil {
		s.logger.Error("stale context listing failed", "error", err)
	} else {
		sent := 0
		for _, phone := range phones {
			if !s.shouldNudge(phone, now) {
				continue
			}
			s.bus.PublishOutbound(bus.OutboundMessage{
				Channel: "whatsapp",
				ChatID:  phone,
				Content: nudgeText,
			})
			sent++
		}
		if sent > 0 {
			s.logger.Info("cart reminders sent", "count", sent, "stale", len(phones))
		}
	}

	ticketCutoff := now.Add(-time.Duration(s.cfg.TicketHours) * time.Hour)
	if n, err := s.tickets.ResolveStale(ticketCutoff); err != nil {
		s.logger.Error("stale ticket cleanup failed", "error", err)
	} else if n > 0 {
		s.logger.Info("stale tickets resolved", "count", n)
	}
	if n, err := s.chats.EndStale(ticketCutoff); err != nil {
		s.logger.Error("stale chat cleanup failed", "error", err)
	} else if n > 0 {
		s.logger.Info("stale chats ended", "count", n)
	}

	s.pruneNudged(now)
}

func (s *Service) shouldNudge(phone string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.nudged[phone]; ok && now.Sub(last) < renudgeCooldown {
		return false
	}
	s.nudged[phone] = now
	return true
}

func (s *Service) pruneNudged(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for phone, at := range s.nudged {
		if now.Sub(at) >= renudgeCooldown {
			delete(s.nudged, phone)
		}
	}
}
