package pg

import (
	"fmt"

	"github.com/pedidolabs/pedidobot/internal/store"
)

// NewPGStores creates all stores backed by Postgres.
func NewPGStores(cfg store.Config) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return &store.Stores{
		Contexts: NewPGContextStore(db),
		Catalog:  NewPGCatalogStore(db),
		Orders:   NewPGOrderStore(db),
		Tickets:  NewPGTicketStore(db),
		Chats:    NewPGChatStore(db),
		Settings: NewPGSettingsStore(db),
	}, nil
}
