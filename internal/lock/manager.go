// Package lock implements named advisory locks shared by task types that must not run at the same time.
//
// A lock is held while its row exists. Acquisition never blocks: the caller learns immediately whether it
// won and is expected to skip its work when it did not. Locks carry no owner and no expiry, so a crashed
// holder leaves its row behind until ReleaseAll runs at the next start (or an operator clears it).
package lock

import (
	"context"

	"github.com/talkvault/talkvault/types"
)

type Manager interface {
	// AcquireLockAndReturn reports true when the caller now holds name and false when someone else does.
	AcquireLockAndReturn(ctx context.Context, name string) (bool, error)

	// ReleaseLock drops name whoever holds it. Releasing a free lock is a no-op.
	ReleaseLock(ctx context.Context, name string) error

	// ReleaseAll drops every lock and returns how many were held.
	ReleaseAll(ctx context.Context) (int64, error)

	List(ctx context.Context) ([]types.Lock, error)
}
