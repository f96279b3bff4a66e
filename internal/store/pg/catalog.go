package pg

import (
	"database/sql"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// PGCatalogStore implements store.CatalogStore backed by Postgres.
type PGCatalogStore struct {
	db *sql.DB
}

func NewPGCatalogStore(db *sql.DB) *PGCatalogStore {
	return &PGCatalogStore{db: db}
}

func (s *PGCatalogStore) SearchVendors(query string) ([]store.Vendor, error) {
	rows, err := s.db.Query(
		`SELECT id, name, category, phone, chat_id, address, latitude, longitude, active, created_at
		 FROM vendors
		 WHERE active AND (name ILIKE '%' || $1 || '%' OR category ILIKE '%' || $1 || '%')
		 ORDER BY name LIMIT 20`,
		query,
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

func (s *PGCatalogStore) VendorByID(id string) (*store.Vendor, error) {
	row := s.db.QueryRow(
		`SELECT id, name, category, phone, chat_id, address, latitude, longitude, active, created_at
		 FROM vendors WHERE id = $1`,
		id,
	)
	v, err := scanVendor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

func (s *PGCatalogStore) ListProducts(vendorID string) ([]store.Product, error) {
	rows, err := s.db.Query(
		`SELECT id, vendor_id, name, description, price_cents, available, updated_at
		 FROM products WHERE vendor_id = $1 AND available ORDER BY name`,
		vendorID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []store.Product
	for rows.Next() {
		var p store.Product
		var desc *string
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Name, &desc, &p.PriceCents, &p.Available, &p.Updated); err != nil {
			return nil, err
		}
		p.Description = derefStr(desc)
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *PGCatalogStore) ProductByID(id string) (*store.Product, error) {
	var p store.Product
	var desc *string
	err := s.db.QueryRow(
		`SELECT id, vendor_id, name, description, price_cents, available, updated_at
		 FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.VendorID, &p.Name, &desc, &p.PriceCents, &p.Available, &p.Updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Description = derefStr(desc)
	return &p, nil
}

func (s *PGCatalogStore) UpsertVendor(v *store.Vendor) error {
	_, err := s.db.Exec(
		`INSERT INTO vendors (id, name, category, phone, chat_id, address, latitude, longitude, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, category = EXCLUDED.category, phone = EXCLUDED.phone,
		   chat_id = EXCLUDED.chat_id, address = EXCLUDED.address,
		   latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, active = EXCLUDED.active`,
		v.ID, v.Name, nilStr(v.Category), v.Phone, nilStr(v.ChatID), nilStr(v.Address),
		v.Latitude, v.Longitude, v.Active, v.Created,
	)
	return err
}

func (s *PGCatalogStore) UpsertProduct(p *store.Product) error {
	_, err := s.db.Exec(
		`INSERT INTO products (id, vendor_id, name, description, price_cents, available, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   vendor_id = EXCLUDED.vendor_id, name = EXCLUDED.name, description = EXCLUDED.description,
		   price_cents = EXCLUDED.price_cents, available = EXCLUDED.available, updated_at = EXCLUDED.updated_at`,
		p.ID, p.VendorID, p.Name, nilStr(p.Description), p.PriceCents, p.Available, p.Updated,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVendor(r rowScanner) (*store.Vendor, error) {
	var v store.Vendor
	var category, chatID, address *string
	if err := r.Scan(&v.ID, &v.Name, &category, &v.Phone, &chatID, &address,
		&v.Latitude, &v.Longitude, &v.Active, &v.Created); err != nil {
		return nil, err
	}
	v.Category = derefStr(category)
	v.ChatID = derefStr(chatID)
	v.Address = derefStr(address)
	return &v, nil
}
