// Package gateway is the HTTP surface of the bot: the WhatsApp webhook,
// a health check, token-guarded ops endpoints, and a WebSocket event feed
// for dashboards.
package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pedidolabs/pedidobot/internal/bus"
	"github.com/pedidolabs/pedidobot/internal/config"
	"github.com/pedidolabs/pedidobot/internal/handoff"
)

// Sweeper triggers one reminder pass on demand.
type Sweeper interface {
	Sweep(ctx context.Context)
}

// Server handles webhook, ops, and WebSocket connections.
type Server struct {
	cfg       *config.Config
	bus       *bus.MessageBus
	emergency *handoff.Emergency
	sweeper   Sweeper      // nil when reminders are disabled
	webhook   http.Handler // nil when the WhatsApp channel is disabled
	logger    *slog.Logger

	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[string]*wsClient

	httpServer *http.Server
	mux        *http.ServeMux
}

func NewServer(cfg *config.Config, b *bus.MessageBus, emergency *handoff.Emergency, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		bus:       b,
		emergency: emergency,
		clients:   make(map[string]*wsClient),
		logger:    logger.With("component", "gateway"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The feed is operator tooling behind the gateway token.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return s
}

// SetWebhook mounts the WhatsApp webhook handler at /webhook.
func (s *Server) SetWebhook(h http.Handler) { s.webhook = h }

// SetSweeper wires the reminder service for the manual-sweep endpoint.
func (s *Server) SetSweeper(sw Sweeper) { s.sweeper = sw }

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	if s.webhook != nil {
		mux.Handle("/webhook", s.webhook)
	}
	mux.HandleFunc("/v1/emergency", s.requireToken(s.handleEmergency))
	mux.HandleFunc("/v1/reminders/sweep", s.requireToken(s.handleSweep))

	s.mux = mux
	return mux
}

// Start blocks serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","emergency":%t}`, s.emergency.Active())
}

// requireToken guards ops endpoints. With no token configured the
// endpoints are disabled rather than open.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Gateway.Token
		if token == "" {
			http.Error(w, "ops endpoints disabled: no gateway token configured", http.StatusForbidden)
			return
		}
		got := r.Header.Get("Authorization")
		want := "Bearer " + token
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// handleEmergency reads or overrides the platform safety record. POST
// fields are optional; absent fields keep their stored value.
func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeEmergencyState(w)
	case http.MethodPost:
		var req struct {
			EmergencyMode    *bool   `json:"emergency_mode"`
			BotEnabled       *bool   `json:"bot_enabled"`
			FallbackMode     *string `json:"fallback_mode"`
			EmergencyMessage *string `json:"emergency_message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if req.FallbackMode != nil {
			switch *req.FallbackMode {
			case handoff.FallbackVendorDirect, handoff.FallbackSupportQueue, handoff.FallbackOffline:
			default:
				http.Error(w, "unknown fallback_mode", http.StatusBadRequest)
				return
			}
			msg := ""
			if req.EmergencyMessage != nil {
				msg = *req.EmergencyMessage
			}
			s.emergency.SetFallback(*req.FallbackMode, msg)
		} else if req.EmergencyMessage != nil {
			s.emergency.SetFallback(s.emergency.FallbackMode(), *req.EmergencyMessage)
		}
		if req.BotEnabled != nil {
			s.emergency.SetBotEnabled(*req.BotEnabled)
		}
		if req.EmergencyMode != nil {
			s.emergency.SetMode(*req.EmergencyMode)
			s.logger.Warn("emergency mode overridden via ops API", "mode", *req.EmergencyMode)
			s.bus.Broadcast(bus.Event{Name: "emergency.override", Payload: map[string]bool{"emergency_mode": *req.EmergencyMode}})
		}
		s.writeEmergencyState(w)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) writeEmergencyState(w http.ResponseWriter) {
	snap := s.emergency.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"bot_enabled":              snap.BotEnabled,
		"emergency_mode":           snap.EmergencyMode,
		"emergency_message":        snap.EmergencyMessage,
		"fallback_mode":            snap.FallbackMode,
		"error_count":              snap.ErrorCount,
		"last_error":               snap.LastError,
		"auto_emergency_threshold": snap.AutoThreshold,
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.sweeper == nil {
		http.Error(w, "reminders disabled", http.StatusConflict)
		return
	}
	s.sweeper.Sweep(r.Context())
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprint(w, `{"status":"sweep started"}`)
}

// handleWebSocket upgrades the connection and streams bus events to it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn)
	s.registerClient(client)
	defer func() {
		s.unregisterClient(client)
		client.close()
	}()

	client.run(r.Context())
}

func (s *Server) registerClient(c *wsClient) {
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.bus.Subscribe(c.id, func(event bus.Event) {
		c.sendEvent(event)
	})
	s.logger.Info("ops client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	s.bus.Unsubscribe(c.id)
	s.logger.Info("ops client disconnected", "id", c.id)
}

// StartTestServer listens on a random localhost port. Used by tests.
func StartTestServer(s *Server, ctx context.Context) (addr string, start func()) {
	mux := s.BuildMux()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("listen: " + err.Error())
	}

	s.httpServer = &http.Server{Handler: mux}
	addr = ln.Addr().String()

	start = func() {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.httpServer.Shutdown(shutdownCtx)
		}()
		s.httpServer.Serve(ln)
	}
	return addr, start
}

// wsClient is one connected event-feed consumer. Writes go through a
// buffered channel so a slow client never blocks the bus callback.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	events chan bus.Event
	done   chan struct{}
	once   sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:     uuid.NewString(),
		conn:   conn,
		events: make(chan bus.Event, 64),
		done:   make(chan struct{}),
	}
}

func (c *wsClient) sendEvent(event bus.Event) {
	select {
	case c.events <- event:
	default:
		// Drop rather than block; the feed is advisory.
	}
}

func (c *wsClient) run(ctx context.Context) {
	go c.writePump(ctx)

	// Reads are discarded; the feed is one-way. The loop exists to detect
	// disconnects and answer pings.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.close()
			return
		}
	}
}

func (c *wsClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case event := <-c.events:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(event); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
