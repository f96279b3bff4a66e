package pg

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pedidolabs/pedidobot/internal/convo"
)

// PGContextStore implements store.ContextStore backed by Postgres.
// The full context travels as one JSONB column; the phone key plus a few
// extracted columns exist for querying. Hot contexts are cached in memory
// so a tool loop never re-reads the row it is mutating.
type PGContextStore struct {
	db *sql.DB
	mu sync.RWMutex
	// Cache of hot contexts keyed by canonical phone.
	cache map[string]*convo.Context
}

func NewPGContextStore(db *sql.DB) *PGContextStore {
	return &PGContextStore{
		db:    db,
		cache: make(map[string]*convo.Context),
	}
}

func (s *PGContextStore) GetOrCreate(phone string) *convo.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[phone]; ok {
		return cached
	}

	c := s.loadFromDB(phone)
	if c != nil {
		s.cache[phone] = c
		return c
	}

	c = convo.New(phone)
	s.cache[phone] = c

	data, _ := json.Marshal(c)
	if _, err := s.db.Exec(
		`INSERT INTO contexts (phone, data, order_state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (phone) DO NOTHING`,
		phone, data, string(c.OrderState), c.Created, c.Updated,
	); err != nil {
		// The cached context stays usable; Save upserts the row later.
		slog.Warn("could not insert new context row", "phone", phone, "error", err)
	}
	return c
}

func (s *PGContextStore) Save(phone string) error {
	s.mu.Lock()
	c, ok := s.cache[phone]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	c.Updated = time.Now()
	data, err := json.Marshal(c)
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
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (phone) DO UPDATE SET
		   data = $2, order_state = $3, has_cart = $4, updated_at = $6`,
		phone, data, state, hasCart, created, updated,
	)
	return err
}

func (s *PGContextStore) Delete(phone string) error {
	s.mu.Lock()
	delete(s.cache, phone)
	s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM contexts WHERE phone = $1`, phone)
	return err
}

func (s *PGContextStore) ListStale(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT phone FROM contexts
		 WHERE has_cart AND order_state IN ('browsing', 'shopping', 'needs_address', 'checkout')
		   AND updated_at < $1`,
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

func (s *PGContextStore) loadFromDB(phone string) *convo.Context {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM contexts WHERE phone = $1`, phone).Scan(&data)
	if err != nil {
		return nil
	}
	var c convo.Context
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	return &c
}
