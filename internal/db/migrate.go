package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/types/config"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

func dialectFor(driver config.StorageDriver) (goose.Dialect, string, error) {
	switch driver {
	case config.Postgres:
		return goose.DialectPostgres, "migrations/postgres", nil
	case config.SQLite:
		return goose.DialectSQLite3, "migrations/sqlite", nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
}

// Migrate applies every pending embedded migration for driver and returns the resulting schema version.
func Migrate(ctx context.Context, db *sql.DB, driver config.StorageDriver, log zerolog.Logger) (int64, error) {
	dialect, dir, err := dialectFor(driver)
	if err != nil {
		return 0, err
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return 0, err
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("failed to load migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		log.Info().
			Int64("version", r.Source.Version).
			Str("file", r.Source.Path).
			Dur("took", r.Duration).
			Msg("migration applied")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return provider.GetDBVersion(ctx)
}
