package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const advisoryLockTimeout = 5 * time.Second

// AdvisoryLock is a Postgres session-level advisory lock. Session locks belong to one connection,
// so the lock pins a connection from the pool between Acquire and Release.
type AdvisoryLock struct {
	db   *sql.DB
	id   int64
	conn *sql.Conn
}

func NewAdvisoryLock(db *sql.DB, id int64) *AdvisoryLock {
	return &AdvisoryLock{db: db, id: id}
}

// Acquire blocks until the lock is granted or ctx is done.
func (l *AdvisoryLock) Acquire(ctx context.Context) error {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", l.id); err != nil {
		conn.Close()
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.conn = conn
	return nil
}

func (l *AdvisoryLock) Release() error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), advisoryLockTimeout)
	defer cancel()

	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.id); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// WithAdvisoryLock runs fn while holding the advisory lock id.
func WithAdvisoryLock(ctx context.Context, db *sql.DB, id int64, fn func(ctx context.Context) error) (err error) {
	lock := NewAdvisoryLock(db, id)
	if err := lock.Acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if releaseErr := lock.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn(ctx)
}
