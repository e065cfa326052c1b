package lock

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/types"
)

// StoreLockManager keeps lock rows next to the jobs table in the configured job store.
type StoreLockManager struct {
	store store.LockStore
	log   zerolog.Logger
}

func NewStoreLockManager(s store.LockStore, log zerolog.Logger) *StoreLockManager {
	return &StoreLockManager{
		store: s,
		log:   log.With().Str("component", "lock").Logger(),
	}
}

func (m *StoreLockManager) AcquireLockAndReturn(ctx context.Context, name string) (bool, error) {
	ok, err := m.store.CreateLock(ctx, name)
	if err != nil {
		return false, err
	}
	if ok {
		m.log.Debug().Str("lock", name).Msg("lock acquired")
	} else {
		m.log.Debug().Str("lock", name).Msg("lock busy")
	}
	return ok, nil
}

func (m *StoreLockManager) ReleaseLock(ctx context.Context, name string) error {
	if err := m.store.DeleteLock(ctx, name); err != nil {
		return err
	}
	m.log.Debug().Str("lock", name).Msg("lock released")
	return nil
}

func (m *StoreLockManager) ReleaseAll(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteAllLocks(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.log.Info().Int64("count", n).Msg("released leftover locks")
	}
	return n, nil
}

func (m *StoreLockManager) List(ctx context.Context) ([]types.Lock, error) {
	return m.store.ListLocks(ctx)
}
