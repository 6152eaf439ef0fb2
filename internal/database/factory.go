package database

import (
	"fmt"
	"os"
	"path/filepath"

	"vj-go/internal/config"
	"vj-go/internal/database/migrations"
	"vj-go/internal/vj"
)

// DatabaseFile is the name of the SQLite file under the configured data dir.
const DatabaseFile = "vj.db"

// NewStoreFromConfig opens the database named by cfg and brings its schema up to date.
func NewStoreFromConfig(cfg config.DatabaseConfig, ids vj.IDGenerator, clock vj.Clock) (*SQLiteStore, error) {
	var path string
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		path = filepath.Join(cfg.DataDir, DatabaseFile)
	case "memory":
		path = ":memory:"
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}

	store, err := NewSQLiteStore(path, ids, clock)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(store.db); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return store, nil
}
