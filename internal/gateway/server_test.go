package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pedidolabs/pedidobot/internal/bus"
	"github.com/pedidolabs/pedidobot/internal/config"
	"github.com/pedidolabs/pedidobot/internal/handoff"
	"github.com/pedidolabs/pedidobot/internal/store"
)

type fakeSettings struct{ rec *store.EmergencySettings }

func (f *fakeSettings) Emergency() (*store.EmergencySettings, error) {
	if f.rec == nil {
		return nil, nil
	}
	cp := *f.rec
	return &cp, nil
}

func (f *fakeSettings) SetEmergency(s *store.EmergencySettings) error {
	cp := *s
	f.rec = &cp
	return nil
}

func newTestServer(token string) *Server {
	cfg := config.Default()
	cfg.Gateway.Token = token
	emergency := handoff.NewEmergency(&fakeSettings{}, 5, nil)
	return NewServer(cfg, bus.New(nil), emergency, nil)
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer("")
	rec := httptest.NewRecorder()
	s.BuildMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestEmergencyEndpointRequiresToken(t *testing.T) {
	t.Run("no token configured", func(t *testing.T) {
		s := newTestServer("")
		rec := httptest.NewRecorder()
		s.BuildMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/emergency", nil))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		s := newTestServer("secret")
		req := httptest.NewRequest(http.MethodGet, "/v1/emergency", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		s.BuildMux().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})
}

func TestEmergencyOverride(t *testing.T) {
	s := newTestServer("secret")
	mux := s.BuildMux()

	post := httptest.NewRequest(http.MethodPost, "/v1/emergency", strings.NewReader(`{"emergency_mode": true}`))
	post.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, post)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var state struct {
		EmergencyMode bool `json:"emergency_mode"`
		ErrorCount    int  `json:"error_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !state.EmergencyMode {
		t.Error("override did not enable emergency mode")
	}
	if state.ErrorCount != 0 {
		t.Errorf("override must reset the error count, got %d", state.ErrorCount)
	}

	get := httptest.NewRequest(http.MethodGet, "/v1/emergency", nil)
	get.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, get)
	if !strings.Contains(rec.Body.String(), `"emergency_mode":true`) {
		t.Errorf("state not persisted: %s", rec.Body.String())
	}
}

func TestEmergencyEndpointConfiguresFallback(t *testing.T) {
	s := newTestServer("secret")
	mux := s.BuildMux()

	post := httptest.NewRequest(http.MethodPost, "/v1/emergency",
		strings.NewReader(`{"bot_enabled": false, "fallback_mode": "support_queue", "emergency_message": "Volvemos en un rato"}`))
	post.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, post)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var state struct {
		BotEnabled       bool   `json:"bot_enabled"`
		FallbackMode     string `json:"fallback_mode"`
		EmergencyMessage string `json:"emergency_message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.BotEnabled {
		t.Error("kill switch did not disable the bot")
	}
	if state.FallbackMode != handoff.FallbackSupportQueue || state.EmergencyMessage != "Volvemos en un rato" {
		t.Errorf("fallback = %q message = %q", state.FallbackMode, state.EmergencyMessage)
	}

	bad := httptest.NewRequest(http.MethodPost, "/v1/emergency", strings.NewReader(`{"fallback_mode": "carrier_pigeon"}`))
	bad.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, bad)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for an unknown mode", rec.Code)
	}
}

func TestSweepWithoutServiceConflicts(t *testing.T) {
	s := newTestServer("secret")
	req := httptest.NewRequest(http.MethodPost, "/v1/reminders/sweep", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	s.BuildMux().ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
