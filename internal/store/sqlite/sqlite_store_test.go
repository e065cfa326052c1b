package sqlite

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkvault/talkvault/internal/db"
	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/types/config"
)

var (
	_ store.JobStore  = (*SQLiteJobStore)(nil)
	_ store.LockStore = (*SQLiteLockStore)(nil)
)

func openTestDB(t *testing.T) (*SQLiteJobStore, *SQLiteLockStore) {
	t.Helper()
	cfg, err := config.NewConfig("test", config.WithSQLiteConfig(":memory:"))
	require.NoError(t, err)

	conn, err := db.Init(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewSQLiteJobStore(conn), NewSQLiteLockStore(conn)
}

func TestSQLiteJobStore_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	jobs, _ := openTestDB(t)

	job, err := jobs.CreateJob(ctx, "download", json.RawMessage(`{"url":"https://example.org/a.mp4"}`), true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), job.ID)
	assert.Equal(t, state.StatusWaiting, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.True(t, job.KeepAfterSuccess)
	assert.Nil(t, job.StartedAt)
	assert.False(t, job.CreatedAt.IsZero())
	assert.JSONEq(t, `{"url":"https://example.org/a.mp4"}`, string(job.Data))

	empty, err := jobs.CreateJob(ctx, "reconcile", nil, false)
	require.NoError(t, err)
	assert.Nil(t, empty.Data)

	_, err = jobs.FindByID(ctx, 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteJobStore_UpdateAndReset(t *testing.T) {
	ctx := context.Background()
	jobs, _ := openTestDB(t)

	job, err := jobs.CreateJob(ctx, "metadata", nil, false)
	require.NoError(t, err)

	started := time.Now().Truncate(time.Second)
	job.Status = state.StatusActive
	job.StartedAt = &started
	job.Progress = 55
	require.NoError(t, jobs.UpdateJob(ctx, *job))

	got, err := jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusActive, got.Status)
	assert.Equal(t, 55, got.Progress)
	require.NotNil(t, got.StartedAt)
	assert.True(t, started.Equal(*got.StartedAt))

	n, err := jobs.ResetStatus(ctx, state.StatusActive, state.StatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err = jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusWaiting, got.Status)
	assert.Nil(t, got.StartedAt)

	got.ID = 99
	assert.ErrorIs(t, jobs.UpdateJob(ctx, *got), store.ErrNotFound)
}

func TestSQLiteJobStore_FindByStatusOrder(t *testing.T) {
	ctx := context.Background()
	jobs, _ := openTestDB(t)

	for _, name := range []string{"download", "reconcile", "thumbnail-hash"} {
		_, err := jobs.CreateJob(ctx, name, nil, false)
		require.NoError(t, err)
	}
	second, err := jobs.FindByID(ctx, 2)
	require.NoError(t, err)
	second.Status = state.StatusFailed
	require.NoError(t, jobs.UpdateJob(ctx, *second))

	pending, err := jobs.FindByStatus(ctx, state.PendingStatuses...)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "download", pending[0].Name)
	assert.Equal(t, "thumbnail-hash", pending[1].Name)

	counts, err := jobs.CountAllJobsGroupedByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[state.StatusWaiting])
	assert.Equal(t, 1, counts[state.StatusFailed])
	assert.Equal(t, 0, counts[state.StatusCompleted])

	page, err := jobs.GetAll(ctx, 1, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)
	assert.True(t, page.HasNextPage)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Items[0].ID)

	require.NoError(t, jobs.DeleteJob(ctx, 1))
	_, err = jobs.FindByID(ctx, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLiteLockStore(t *testing.T) {
	ctx := context.Background()
	_, locks := openTestDB(t)

	var wg sync.WaitGroup
	var winners int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := locks.CreateLock(ctx, "library-write"); err == nil && ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)

	held, err := locks.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "library-write", held[0].Name)

	require.NoError(t, locks.DeleteLock(ctx, "library-write"))
	ok, err := locks.CreateLock(ctx, "library-write")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := locks.DeleteAllLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
