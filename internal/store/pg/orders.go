package pg

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// PGOrderStore implements store.OrderStore backed by Postgres.
type PGOrderStore struct {
	db *sql.DB
}

func NewPGOrderStore(db *sql.DB) *PGOrderStore {
	return &PGOrderStore{db: db}
}

func (s *PGOrderStore) Create(o *store.Order) error {
	now := time.Now()
	o.Created = now
	o.Updated = now
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO orders (id, customer_phone, vendor_id, items, total_cents,
		   delivery_type, delivery_address, payment_method, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.CustomerPhone, o.VendorID, items, o.TotalCents,
		o.DeliveryType, nilStr(o.DeliveryAddress), o.PaymentMethod, o.Status, o.Created, o.Updated,
	)
	return err
}

func (s *PGOrderStore) Get(id string) (*store.Order, error) {
	return s.queryOne(
		`SELECT id, customer_phone, vendor_id, items, total_cents,
		   delivery_type, delivery_address, payment_method, status, created_at, updated_at
		 FROM orders WHERE id = $1`,
		id,
	)
}

func (s *PGOrderStore) LatestForCustomer(phone string) (*store.Order, error) {
	return s.queryOne(
		`SELECT id, customer_phone, vendor_id, items, total_cents,
		   delivery_type, delivery_address, payment_method, status, created_at, updated_at
		 FROM orders WHERE customer_phone = $1 ORDER BY created_at DESC LIMIT 1`,
		phone,
	)
}

func (s *PGOrderStore) UpdateStatus(id, status string) error {
	_, err := s.db.Exec(
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), id,
	)
	return err
}

func (s *PGOrderStore) queryOne(query string, arg any) (*store.Order, error) {
	var o store.Order
	var items []byte
	var address *string
	err := s.db.QueryRow(query, arg).Scan(
		&o.ID, &o.CustomerPhone, &o.VendorID, &items, &o.TotalCents,
		&o.DeliveryType, &address, &o.PaymentMethod, &o.Status, &o.Created, &o.Updated,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	o.DeliveryAddress = derefStr(address)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	return &o, nil
}
