package cache

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/lightspan-ai/gateway/pkg/config"
)

// NewCacheFromConfig builds the configured cache backend. SQL backends are
// wrapped with the reconnect decorator.
func NewCacheFromConfig(cfg *config.CacheConfig) (Cache, error) {
	switch cfg.Type {
	case config.CacheTypeNoop:
		return NewNoopCache(), nil
	case config.CacheTypeMemory:
		return NewMemoryCache(), nil
	case config.CacheTypeSQLite, config.CacheTypePostgres:
		db, dialect, err := OpenDatabase(cfg.Type, cfg.SQLite, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		c, err := NewSQLCache(db, dialect)
		if err != nil {
			db.Close()
			return nil, err
		}
		return NewReconnecting(c), nil
	default:
		return nil, fmt.Errorf("unknown conversation cache type: %s", cfg.Type)
	}
}

// OpenDatabase opens the relational store for a sqlite or postgres backend
// and returns the handle with its dialect name.
func OpenDatabase(backend string, sqliteCfg config.SQLiteConfig, pgCfg config.PostgresConfig) (*sql.DB, string, error) {
	switch backend {
	case config.CacheTypeSQLite:
		db, err := sql.Open("sqlite3", sqliteCfg.Path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// sqlite handles one writer at a time.
		db.SetMaxOpenConns(1)
		return db, "sqlite", nil
	case config.CacheTypePostgres:
		db, err := sql.Open("postgres", pgCfg.DSN())
		if err != nil {
			return nil, "", fmt.Errorf("failed to open postgres database: %w", err)
		}
		return db, "postgres", nil
	default:
		return nil, "", fmt.Errorf("backend %q does not use a relational database", backend)
	}
}
