package pg

import (
	"database/sql"
	"time"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// PGChatStore implements store.ChatStore backed by Postgres.
type PGChatStore struct {
	db *sql.DB
}

func NewPGChatStore(db *sql.DB) *PGChatStore {
	return &PGChatStore{db: db}
}

func (s *PGChatStore) Start(phone, vendorID string) error {
	_, err := s.db.Exec(
		`INSERT INTO direct_chats (phone, vendor_id, started_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (phone) DO UPDATE SET vendor_id = $2, started_at = $3`,
		phone, vendorID, time.Now(),
	)
	return err
}

func (s *PGChatStore) Active(phone string) (*store.DirectChat, error) {
	var c store.DirectChat
	err := s.db.QueryRow(
		`SELECT phone, vendor_id, started_at FROM direct_chats WHERE phone = $1`,
		phone,
	).Scan(&c.Phone, &c.VendorID, &c.Started)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PGChatStore) End(phone string) error {
	_, err := s.db.Exec(`DELETE FROM direct_chats WHERE phone = $1`, phone)
	return err
}

func (s *PGChatStore) EndStale(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM direct_chats WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
