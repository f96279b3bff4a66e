package handoff

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// DefaultErrorThreshold trips emergency mode after this many consecutive
// system failures.
const DefaultErrorThreshold = 5

// Fallback modes decide what happens to inbound messages while the bot is
// degraded (emergency mode on, or the kill switch off).
const (
	// FallbackVendorDirect escalates to the customer's selected vendor
	// and opens a direct chat.
	FallbackVendorDirect = "vendor_direct"
	// FallbackSupportQueue opens an unassigned support ticket.
	FallbackSupportQueue = "support_queue"
	// FallbackOffline only replies with the configured emergency message.
	FallbackOffline = "offline"
)

// Emergency is the circuit-breaker that takes the bot offline after
// repeated system failures, plus the manual kill switch and fallback
// routing pulled from the same persisted record. The state is persisted so
// a restart, or a second gateway instance, sees the same mode.
//
// A success resets the consecutive error count but never clears emergency
// mode: once tripped, only a manual override turns the bot back on.
type Emergency struct {
	settings store.SettingsStore
	logger   *slog.Logger

	mu     sync.Mutex
	state  store.EmergencySettings
	loaded bool
}

func NewEmergency(settings store.SettingsStore, threshold int, logger *slog.Logger) *Emergency {
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Emergency{settings: settings, logger: logger}
	e.state.BotEnabled = true
	e.state.AutoThreshold = threshold
	return e
}

// Active reports whether emergency mode is on.
func (e *Emergency) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()
	return e.state.EmergencyMode
}

// Degraded reports whether inbound traffic should bypass the agent: either
// emergency mode is on or the bot has been switched off.
func (e *Emergency) Degraded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()
	return e.state.EmergencyMode || !e.state.BotEnabled
}

// FallbackMode returns how degraded traffic is routed. An unset or unknown
// value falls back to offline, the safest mode.
func (e *Emergency) FallbackMode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()
	switch e.state.FallbackMode {
	case FallbackVendorDirect, FallbackSupportQueue:
		return e.state.FallbackMode
	}
	return FallbackOffline
}

// Message returns the configured degraded-mode reply, or "" when none is
// set so callers can substitute their default.
func (e *Emergency) Message() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()
	return e.state.EmergencyMessage
}

// RecordFailure counts one system failure and reports whether this failure
// tripped (or found already tripped) emergency mode. lastErr is persisted
// for the ops endpoints.
func (e *Emergency) RecordFailure(lastErr string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()

	e.state.ErrorCount++
	e.state.LastError = lastErr
	if !e.state.EmergencyMode && e.state.ErrorCount >= e.threshold() {
		e.state.EmergencyMode = true
		e.logger.Error("emergency mode tripped",
			"errors", e.state.ErrorCount,
			"threshold", e.threshold(),
			"last_error", lastErr)
	}
	e.persist()
	return e.state.EmergencyMode
}

// RecordSuccess resets the consecutive error count. Emergency mode, once
// tripped, stays on.
func (e *Emergency) RecordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()

	if e.state.ErrorCount == 0 {
		return
	}
	e.state.ErrorCount = 0
	e.state.LastError = ""
	e.persist()
}

// SetMode is the manual override. Turning the mode off also resets the
// error count so the bot does not re-trip on the next hiccup.
func (e *Emergency) SetMode(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()

	e.state.EmergencyMode = on
	e.state.ErrorCount = 0
	e.state.LastError = ""
	e.persist()
	e.logger.Warn("emergency mode set manually", "on", on)
}

// SetBotEnabled flips the kill switch.
func (e *Emergency) SetBotEnabled(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()

	e.state.BotEnabled = on
	e.persist()
	e.logger.Warn("bot enabled flag set", "on", on)
}

// SetFallback updates the degraded-mode routing and message. An empty
// message keeps the current one.
func (e *Emergency) SetFallback(mode, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()

	e.state.FallbackMode = mode
	if message != "" {
		e.state.EmergencyMessage = message
	}
	e.persist()
}

// SetThreshold replaces the auto-trip threshold, for config hot reload.
// Non-positive values restore the default.
func (e *Emergency) SetThreshold(threshold int) {
	if threshold <= 0 {
		threshold = DefaultErrorThreshold
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()

	if e.state.AutoThreshold == threshold {
		return
	}
	e.state.AutoThreshold = threshold
	e.persist()
}

// ErrorCount returns the current consecutive failure count.
func (e *Emergency) ErrorCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()
	return e.state.ErrorCount
}

// Snapshot returns a copy of the full persisted record.
func (e *Emergency) Snapshot() store.EmergencySettings {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load()
	return e.state
}

// threshold is the effective auto-trip threshold. Callers hold e.mu.
func (e *Emergency) threshold() int {
	if e.state.AutoThreshold <= 0 {
		return DefaultErrorThreshold
	}
	return e.state.AutoThreshold
}

// load pulls persisted state once; later calls are no-ops. A missing row
// keeps the constructor defaults, notably BotEnabled true. Callers hold
// e.mu.
func (e *Emergency) load() {
	if e.loaded {
		return
	}
	e.loaded = true
	s, err := e.settings.Emergency()
	if err != nil {
		e.logger.Error("could not load emergency settings, keeping defaults", "error", err)
		return
	}
	if s == nil {
		return
	}
	threshold := e.state.AutoThreshold
	e.state = *s
	if e.state.AutoThreshold <= 0 {
		e.state.AutoThreshold = threshold
	}
}

// persist writes through to the settings store. Callers hold e.mu.
func (e *Emergency) persist() {
	e.state.Updated = time.Now()
	snapshot := e.state
	if err := e.settings.SetEmergency(&snapshot); err != nil {
		e.logger.Error("could not persist emergency settings", "error", err)
	}
}
