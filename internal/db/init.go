package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/internal/constants"
	"github.com/talkvault/talkvault/types/config"
	_ "modernc.org/sqlite"
)

// Open returns a pool for the configured storage driver without touching the schema.
func Open(cfg *config.Config) (*sql.DB, error) {
	switch cfg.StorageDriver {
	case config.Postgres:
		return sql.Open("postgres", cfg.PostgresConfig.ConnectionUrl)
	case config.SQLite:
		return openSQLite(cfg.SQLiteConfig.Path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, cfg.StorageDriver)
}

// SQLite allows one writer at a time; a single connection also keeps ":memory:" databases alive
// for the lifetime of the pool.
func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Init opens the database, verifies the connection and brings the schema up to date.
// On Postgres the migration runs under an advisory lock so that only one instance migrates at a time.
// The caller owns the returned pool.
func Init(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.StorageDriver, err)
	}

	migrate := func(ctx context.Context) error {
		version, err := Migrate(ctx, db, cfg.StorageDriver, log)
		if err != nil {
			return err
		}
		log.Debug().Int64("version", version).Str("driver", cfg.StorageDriver.String()).Msg("schema ready")
		return nil
	}

	if cfg.StorageDriver == config.Postgres {
		err = WithAdvisoryLock(ctx, db, constants.MigrationLock, migrate)
	} else {
		err = migrate(ctx)
	}
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
