package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/talkvault/talkvault/types"
)

type SQLiteLockStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteLockStore(db *sql.DB) *SQLiteLockStore {
	return &SQLiteLockStore{db: db, now: time.Now}
}

func (l *SQLiteLockStore) CreateLock(ctx context.Context, name string) (bool, error) {
	res, err := l.db.ExecContext(ctx, `INSERT INTO locks (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`, name, l.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %q: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (l *SQLiteLockStore) DeleteLock(ctx context.Context, name string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to release lock %q: %w", name, err)
	}
	return nil
}

func (l *SQLiteLockStore) DeleteAllLocks(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM locks`)
	if err != nil {
		return 0, fmt.Errorf("failed to release locks: %w", err)
	}
	return res.RowsAffected()
}

func (l *SQLiteLockStore) ListLocks(ctx context.Context) ([]types.Lock, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT name, created_at FROM locks ORDER BY name`)
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
