package pg

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// PGTicketStore implements store.TicketStore backed by Postgres.
type PGTicketStore struct {
	db *sql.DB
}

func NewPGTicketStore(db *sql.DB) *PGTicketStore {
	return &PGTicketStore{db: db}
}

func (s *PGTicketStore) Open(phone, vendorID, reason string) (*store.Ticket, error) {
	t := &store.Ticket{
		ID:       uuid.Must(uuid.NewV7()),
		Phone:    phone,
		VendorID: vendorID,
		Reason:   reason,
		Status:   store.TicketOpen,
		Created:  time.Now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO support_tickets (id, phone, vendor_id, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Phone, nilStr(t.VendorID), nilStr(t.Reason), t.Status, t.Created,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *PGTicketStore) LatestOpen(phone string, cutoff time.Time) (*store.Ticket, error) {
	var t store.Ticket
	var vendorID, reason *string
	err := s.db.QueryRow(
		`SELECT id, phone, vendor_id, reason, status, created_at
		 FROM support_tickets
		 WHERE phone = $1 AND status = $2 AND created_at >= $3
		 ORDER BY created_at DESC LIMIT 1`,
		phone, store.TicketOpen, cutoff,
	).Scan(&t.ID, &t.Phone, &vendorID, &reason, &t.Status, &t.Created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.VendorID = derefStr(vendorID)
	t.Reason = derefStr(reason)
	return &t, nil
}

func (s *PGTicketStore) Append(id uuid.UUID, sender, text string) error {
	_, err := s.db.Exec(
		`INSERT INTO ticket_messages (id, ticket_id, sender, body, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.Must(uuid.NewV7()), id, sender, text, time.Now(),
	)
	return err
}

func (s *PGTicketStore) Resolve(id uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE support_tickets SET status = $1, resolved_at = $2 WHERE id = $3`,
		store.TicketResolved, time.Now(), id,
	)
	return err
}

func (s *PGTicketStore) ResolveStale(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE support_tickets SET status = $1, resolved_at = $2
		 WHERE status = $3 AND created_at < $4`,
		store.TicketResolved, time.Now(), store.TicketOpen, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
