package pg

import (
	"database/sql"
	"time"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// PGSettingsStore implements store.SettingsStore backed by Postgres.
// The platform safety record lives in a single well-known row so every
// gateway instance observes the same state.
type PGSettingsStore struct {
	db *sql.DB
}

func NewPGSettingsStore(db *sql.DB) *PGSettingsStore {
	return &PGSettingsStore{db: db}
}

func (s *PGSettingsStore) Emergency() (*store.EmergencySettings, error) {
	var e store.EmergencySettings
	err := s.db.QueryRow(
		`SELECT bot_enabled, emergency_mode, emergency_message, fallback_mode,
		        error_count, last_error, auto_emergency_threshold, updated_at
		 FROM emergency_settings WHERE id = 1`,
	).Scan(&e.BotEnabled, &e.EmergencyMode, &e.EmergencyMessage, &e.FallbackMode,
		&e.ErrorCount, &e.LastError, &e.AutoThreshold, &e.Updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PGSettingsStore) SetEmergency(e *store.EmergencySettings) error {
	updated := e.Updated
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO emergency_settings
		   (id, bot_enabled, emergency_mode, emergency_message, fallback_mode,
		    error_count, last_error, auto_emergency_threshold, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   bot_enabled = $1, emergency_mode = $2, emergency_message = $3,
		   fallback_mode = $4, error_count = $5, last_error = $6,
		   auto_emergency_threshold = $7, updated_at = $8`,
		e.BotEnabled, e.EmergencyMode, e.EmergencyMessage, e.FallbackMode,
		e.ErrorCount, e.LastError, e.AutoThreshold, updated,
	)
	return err
}
