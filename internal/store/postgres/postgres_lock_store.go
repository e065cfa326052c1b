package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/talkvault/talkvault/types"
)

type PostgresLockStore struct {
	db *sql.DB
}

func NewPostgresLockStore(db *sql.DB) *PostgresLockStore {
	return &PostgresLockStore{db: db}
}

// CreateLock relies on the primary key of the locks table: of two concurrent inserts exactly one affects a row.
func (l *PostgresLockStore) CreateLock(ctx context.Context, name string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO talkvault_schema.locks (name, created_at)
		VALUES ($1, now())
		ON CONFLICT (name) DO NOTHING
	`, name)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (l *PostgresLockStore) DeleteLock(ctx context.Context, name string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM talkvault_schema.locks WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to release lock %q: %w", name, err)
	}
	return nil
}

func (l *PostgresLockStore) DeleteAllLocks(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM talkvault_schema.locks`)
	if err != nil {
		return 0, fmt.Errorf("failed to release locks: %w", err)
	}
	return res.RowsAffected()
}

func (l *PostgresLockStore) ListLocks(ctx context.Context) ([]types.Lock, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT name, created_at FROM talkvault_schema.locks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []types.Lock
	for rows.Next() {
		var lock types.Lock
		if err := rows.Scan(&lock.Name, &lock.CreatedAt); err != nil {
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}
