// Package tasks holds the handlers of the talkvault task types and the helpers they share.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/talkvault/talkvault/client"
	"github.com/talkvault/talkvault/internal/lock"
)

// WithLock runs handler only while lockName is held.
//
// When another job holds the lock the run is skipped and reported as a success. The lock is released on
// every way out of handler: done with or without an error, a returned error, or a panic. A handler that
// returns nil without calling done keeps the lock until it does.
func WithLock(locks lock.Manager, lockName string, log zerolog.Logger, handler client.Handler) client.Handler {
	return func(ctx context.Context, job *client.JobRecord, done client.DoneFunc) (err error) {
		acquired, err := locks.AcquireLockAndReturn(ctx, lockName)
		if err != nil {
			return fmt.Errorf("failed to acquire lock %q: %w", lockName, err)
		}
		if !acquired {
			log.Info().Str("lock", lockName).Int64("job_id", job.ID).Str("name", job.Name).Msg("lock held elsewhere, skipping run")
			done(nil)
			return nil
		}

		var once sync.Once
		release := func() {
			once.Do(func() {
				if err := locks.ReleaseLock(context.WithoutCancel(ctx), lockName); err != nil {
					log.Error().Err(err).Str("lock", lockName).Int64("job_id", job.ID).Msg("failed to release lock")
				}
			})
		}

		defer func() {
			if r := recover(); r != nil {
				release()
				panic(r)
			}
			if err != nil {
				release()
			}
		}()

		return handler(ctx, job, func(doneErr error) {
			release()
			done(doneErr)
		})
	}
}
