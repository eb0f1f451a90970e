// Package repository opens the place store selected by configuration.
// The adapters live in the memory, postgres and mongo subpackages.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/placebook/placebook/internal/config"
	"github.com/placebook/placebook/internal/repository/memory"
	"github.com/placebook/placebook/internal/repository/mongo"
	"github.com/placebook/placebook/internal/repository/postgres"
	"github.com/placebook/placebook/internal/service/place"
)

// Store is a place store that can also be pinged by health checks.
type Store interface {
	place.Store
	Ping(ctx context.Context) error
}

// Handle is an opened store plus what is needed to close it.
type Handle struct {
	Store Store
	// DB is the Postgres pool when the postgres driver is in use.
	DB    *sql.DB
	close func(ctx context.Context) error
}

// Close releases the underlying connections.
func (h *Handle) Close(ctx context.Context) error {
	if h.close == nil {
		return nil
	}
	return h.close(ctx)
}

// Open connects to the store named by cfg.Driver and verifies it answers.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Handle, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
			db.SetMaxIdleConns(cfg.MaxOpenConns / 4)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(time.Minute)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &Handle{
			Store: postgres.NewPlaceStore(db),
			DB:    db,
			close: func(context.Context) error { return db.Close() },
		}, nil

	case config.DriverMongo:
		client, err := mongo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		store := mongo.NewPlaceStore(client, cfg.MongoDatabase)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return &Handle{Store: store, close: client.Disconnect}, nil

	case config.DriverMemory:
		return &Handle{Store: memory.New()}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
