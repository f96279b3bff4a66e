// Package sqlite backs standalone mode with a single local database file,
// so the bot runs without a Postgres instance. Schema and semantics mirror
// the pg package; only placeholders and a few type affinities differ.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pedidolabs/pedidobot/internal/convo"
	"github.com/pedidolabs/pedidobot/internal/store"
)

// NewSQLiteStores opens (and creates if needed) the database at path and
// returns all stores backed by it.
func NewSQLiteStores(path string) (*store.Stores, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serializes writes; one writer connection avoids
	// SQLITE_BUSY churn under concurrent flushes.
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &store.Stores{
		Contexts: &contextStore{db: db, cache: make(map[string]*convo.Context)},
		Catalog:  &catalogStore{db: db},
		Orders:   &orderStore{db: db},
		Tickets:  &ticketStore{db: db},
		Chats:    &chatStore{db: db},
		Settings: &settingsStore{db: db},
	}, nil
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contexts (
			phone TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			order_state TEXT NOT NULL DEFAULT 'idle',
			has_cart INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vendors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			category TEXT,
			phone TEXT NOT NULL,
			chat_id TEXT,
			address TEXT,
			latitude REAL,
			longitude REAL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL REFERENCES vendors(id),
			name TEXT NOT NULL,
			description TEXT,
			price_cents INTEGER NOT NULL,
			available INTEGER NOT NULL DEFAULT 1,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			customer_phone TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			items TEXT NOT NULL,
			total_cents INTEGER NOT NULL,
			delivery_type TEXT NOT NULL,
			delivery_address TEXT,
			payment_method TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS support_tickets (
			id TEXT PRIMARY KEY,
			phone TEXT NOT NULL,
			vendor_id TEXT,
			reason TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			resolved_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS direct_chats (
			phone TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_messages (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS emergency_settings (
			id INTEGER PRIMARY KEY,
			bot_enabled INTEGER NOT NULL DEFAULT 1,
			emergency_mode INTEGER NOT NULL DEFAULT 0,
			emergency_message TEXT NOT NULL DEFAULT '',
			fallback_mode TEXT NOT NULL DEFAULT 'offline',
			error_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			auto_emergency_threshold INTEGER NOT NULL DEFAULT 5,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// --- contexts ---

type contextStore struct {
	db    *sql.DB
	mu    sync.Mutex
	cache map[string]*convo.Context
}

func (s *contextStore) GetOrCreate(phone string) *convo.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[phone]; ok {
		return cached
	}

	var data []byte
	err := s.db.QueryRow(`SELECT data FROM contexts WHERE phone = ?`, phone).Scan(&data)
	if err == nil {
		var c convo.Context
		if json.Unmarshal(data, &c) == nil {
			s.cache[phone] = &c
			return &c
		}
	}

	c := convo.New(phone)
	s.cache[phone] = c
	raw, _ := json.Marshal(c)
	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO contexts (phone, data, order_state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		phone, raw, string(c.OrderState), c.Created, c.Updated,
	); err != nil {
		// The cached context stays usable; Save upserts the row later.
		slog.Warn("could not insert new context row", "phone", phone, "error", err)
	}
	return c
}

func (s *contextStore) Save(phone string) error {
	s.mu.Lock()
	c, ok := s.cache[phone]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	c.Updated = time.Now()
	raw, err := json.Marshal(c)
	hasCart := len(c.Cart) > 0
	state := string(c.OrderState)
	created := c.Created
	updated := c.Updated
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// Upsert so a lost insert at GetOrCreate cannot drop the session.
	_, err = s.db.Exec(
		`INSERT INTO contexts (phone, data, order_state, has_cart, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (phone) DO UPDATE SET
		   data = excluded.data, order_state = excluded.order_state,
		   has_cart = excluded.has_cart, updated_at = excluded.updated_at`,
		phone, raw, state, hasCart, created, updated,
	)
	return err
}

func (s *contextStore) Delete(phone string) error {
	s.mu.Lock()
	delete(s.cache, phone)
	s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM contexts WHERE phone = ?`, phone)
	return err
}

func (s *contextStore) ListStale(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT phone FROM contexts
		 WHERE has_cart AND order_state IN ('browsing', 'shopping', 'needs_address', 'checkout')
		   AND updated_at < ?`,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phones []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		phones = append(phones, p)
	}
	return phones, rows.Err()
}

// --- catalog ---

type catalogStore struct {
	db *sql.DB
}

func (s *catalogStore) SearchVendors(query string) ([]store.Vendor, error) {
	rows, err := s.db.Query(
		`SELECT id, name, category, phone, chat_id, address, latitude, longitude, active, created_at
		 FROM vendors
		 WHERE active AND (name LIKE '%' || ? || '%' COLLATE NOCASE
		   OR category LIKE '%' || ? || '%' COLLATE NOCASE)
		 ORDER BY name LIMIT 20`,
		query, query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []store.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, *v)
	}
	return vendors, rows.Err()
}

func (s *catalogStore) VendorByID(id string) (*store.Vendor, error) {
	row := s.db.QueryRow(
		`SELECT id, name, category, phone, chat_id, address, latitude, longitude, active, created_at
		 FROM vendors WHERE id = ?`,
		id,
	)
	v, err := scanVendor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (s *catalogStore) ListProducts(vendorID string) ([]store.Product, error) {
	rows, err := s.db.Query(
		`SELECT id, vendor_id, name, description, price_cents, available, updated_at
		 FROM products WHERE vendor_id = ? AND available ORDER BY name`,
		vendorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []store.Product
	for rows.Next() {
		var p store.Product
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Name, &desc, &p.PriceCents, &p.Available, &p.Updated); err != nil {
			return nil, err
		}
		p.Description = desc.String
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *catalogStore) ProductByID(id string) (*store.Product, error) {
	var p store.Product
	var desc sql.NullString
	err := s.db.QueryRow(
		`SELECT id, vendor_id, name, description, price_cents, available, updated_at
		 FROM products WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.VendorID, &p.Name, &desc, &p.PriceCents, &p.Available, &p.Updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Description = desc.String
	return &p, nil
}

func (s *catalogStore) UpsertVendor(v *store.Vendor) error {
	_, err := s.db.Exec(
		`INSERT INTO vendors (id, name, category, phone, chat_id, address, latitude, longitude, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, category = excluded.category, phone = excluded.phone,
		   chat_id = excluded.chat_id, address = excluded.address,
		   latitude = excluded.latitude, longitude = excluded.longitude, active = excluded.active`,
		v.ID, v.Name, v.Category, v.Phone, v.ChatID, v.Address, v.Latitude, v.Longitude, v.Active, v.Created,
	)
	return err
}

func (s *catalogStore) UpsertProduct(p *store.Product) error {
	_, err := s.db.Exec(
		`INSERT INTO products (id, vendor_id, name, description, price_cents, available, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   vendor_id = excluded.vendor_id, name = excluded.name, description = excluded.description,
		   price_cents = excluded.price_cents, available = excluded.available, updated_at = excluded.updated_at`,
		p.ID, p.VendorID, p.Name, p.Description, p.PriceCents, p.Available, p.Updated,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVendor(r rowScanner) (*store.Vendor, error) {
	var v store.Vendor
	var category, chatID, address sql.NullString
	if err := r.Scan(&v.ID, &v.Name, &category, &v.Phone, &chatID, &address,
		&v.Latitude, &v.Longitude, &v.Active, &v.Created); err != nil {
		return nil, err
	}
	v.Category = category.String
	v.ChatID = chatID.String
	v.Address = address.String
	return &v, nil
}

// --- orders ---

type orderStore struct {
	db *sql.DB
}

func (s *orderStore) Create(o *store.Order) error {
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.CustomerPhone, o.VendorID, items, o.TotalCents,
		o.DeliveryType, o.DeliveryAddress, o.PaymentMethod, o.Status, o.Created, o.Updated,
	)
	return err
}

func (s *orderStore) Get(id string) (*store.Order, error) {
	return s.queryOne(
		`SELECT id, customer_phone, vendor_id, items, total_cents,
		   delivery_type, delivery_address, payment_method, status, created_at, updated_at
		 FROM orders WHERE id = ?`,
		id,
	)
}

func (s *orderStore) LatestForCustomer(phone string) (*store.Order, error) {
	return s.queryOne(
		`SELECT id, customer_phone, vendor_id, items, total_cents,
		   delivery_type, delivery_address, payment_method, status, created_at, updated_at
		 FROM orders WHERE customer_phone = ? ORDER BY created_at DESC LIMIT 1`,
		phone,
	)
}

func (s *orderStore) UpdateStatus(id, status string) error {
	_, err := s.db.Exec(
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	return err
}

func (s *orderStore) queryOne(query string, arg any) (*store.Order, error) {
	var o store.Order
	var items []byte
	var address sql.NullString
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
	o.DeliveryAddress = address.String
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	return &o, nil
}

// --- tickets ---

type ticketStore struct {
	db *sql.DB
}

func (s *ticketStore) Open(phone, vendorID, reason string) (*store.Ticket, error) {
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
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.Phone, t.VendorID, t.Reason, t.Status, t.Created,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ticketStore) LatestOpen(phone string, cutoff time.Time) (*store.Ticket, error) {
	var t store.Ticket
	var id string
	var vendorID, reason sql.NullString
	err := s.db.QueryRow(
		`SELECT id, phone, vendor_id, reason, status, created_at
		 FROM support_tickets
		 WHERE phone = ? AND status = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		phone, store.TicketOpen, cutoff,
	).Scan(&id, &t.Phone, &vendorID, &reason, &t.Status, &t.Created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	t.ID = parsed
	t.VendorID = vendorID.String
	t.Reason = reason.String
	return &t, nil
}

func (s *ticketStore) Append(id uuid.UUID, sender, text string) error {
	_, err := s.db.Exec(
		`INSERT INTO ticket_messages (id, ticket_id, sender, body, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.Must(uuid.NewV7()).String(), id.String(), sender, text, time.Now(),
	)
	return err
}

func (s *ticketStore) Resolve(id uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE support_tickets SET status = ?, resolved_at = ? WHERE id = ?`,
		store.TicketResolved, time.Now(), id.String(),
	)
	return err
}

func (s *ticketStore) ResolveStale(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(
		`UPDATE support_tickets SET status = ?, resolved_at = ?
		 WHERE status = ? AND created_at < ?`,
		store.TicketResolved, time.Now(), store.TicketOpen, cutoff,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- direct chats ---

type chatStore struct {
	db *sql.DB
}

func (s *chatStore) Start(phone, vendorID string) error {
	_, err := s.db.Exec(
		`INSERT INTO direct_chats (phone, vendor_id, started_at) VALUES (?, ?, ?)
		 ON CONFLICT (phone) DO UPDATE SET vendor_id = excluded.vendor_id, started_at = excluded.started_at`,
		phone, vendorID, time.Now(),
	)
	return err
}

func (s *chatStore) Active(phone string) (*store.DirectChat, error) {
	var c store.DirectChat
	err := s.db.QueryRow(
		`SELECT phone, vendor_id, started_at FROM direct_chats WHERE phone = ?`,
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

func (s *chatStore) End(phone string) error {
	_, err := s.db.Exec(`DELETE FROM direct_chats WHERE phone = ?`, phone)
	return err
}

func (s *chatStore) EndStale(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM direct_chats WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- settings ---

type settingsStore struct {
	db *sql.DB
}

func (s *settingsStore) Emergency() (*store.EmergencySettings, error) {
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

func (s *settingsStore) SetEmergency(e *store.EmergencySettings) error {
	updated := e.Updated
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO emergency_settings
		   (id, bot_enabled, emergency_mode, emergency_message, fallback_mode,
		    error_count, last_error, auto_emergency_threshold, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   bot_enabled = excluded.bot_enabled,
		   emergency_mode = excluded.emergency_mode,
		   emergency_message = excluded.emergency_message,
		   fallback_mode = excluded.fallback_mode,
		   error_count = excluded.error_count,
		   last_error = excluded.last_error,
		   auto_emergency_threshold = excluded.auto_emergency_threshold,
		   updated_at = excluded.updated_at`,
		e.BotEnabled, e.EmergencyMode, e.EmergencyMessage, e.FallbackMode,
		e.ErrorCount, e.LastError, e.AutoThreshold, updated,
	)
	return err
}
