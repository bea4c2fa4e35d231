// Package app wires the storage backend selected by configuration.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/exchange"
	"github.com/xtrntr/papertrade/internal/memstore"
	"github.com/xtrntr/papertrade/internal/models"
)

// Store is everything the server needs from a storage backend
type Store interface {
	exchange.Store
	auth.Store
	CreateUser(ctx context.Context, user *models.User) error
}

var (
	_ Store = (*db.DB)(nil)
	_ Store = (*memstore.Store)(nil)
)

// OpenStore opens the backend named by cfg.StorageDriver. Postgres schemas are
// migrated on open. The returned close function is always non-nil.
func OpenStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return memstore.New(), func() {}, nil
	case config.DriverPostgres:
		database, err := db.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, func() {}, err
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close(ctx)
			return nil, func() {}, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Msg("Connected to PostgreSQL")
		return database, func() { database.Close(context.Background()) }, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
