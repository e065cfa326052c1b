package store

import (
	"context"

	"github.com/talkvault/talkvault/types"
)

// LockStore persists named lock rows. Existence of a row means the lock is held.
type LockStore interface {
	// CreateLock atomically inserts the row and reports false when a row with name already exists.
	CreateLock(ctx context.Context, name string) (bool, error)

	// DeleteLock removes the row unconditionally.
	DeleteLock(ctx context.Context, name string) error

	// DeleteAllLocks clears every row and returns how many were removed.
	DeleteAllLocks(ctx context.Context) (int64, error)

	ListLocks(ctx context.Context) ([]types.Lock, error)
}
