package memory

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/internal/store"
)

var (
	_ store.JobStore  = (*MemoryStore)(nil)
	_ store.LockStore = (*MemoryStore)(nil)
)

func TestMemoryStore_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.CreateJob(ctx, "download", json.RawMessage(`{"id":1}`), false)
	require.NoError(t, err)
	second, err := s.CreateJob(ctx, "reconcile", nil, true)
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, state.StatusWaiting, first.Status)

	now := time.Now()
	first.Status = state.StatusActive
	first.StartedAt = &now
	first.Progress = 30
	require.NoError(t, s.UpdateJob(ctx, *first))

	got, err := s.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusActive, got.Status)
	assert.Equal(t, 30, got.Progress)
	assert.JSONEq(t, `{"id":1}`, string(got.Data))

	pending, err := s.FindByStatus(ctx, state.PendingStatuses...)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)

	require.NoError(t, s.DeleteJob(ctx, first.ID))
	_, err = s.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.DeleteJob(ctx, first.ID), "deleting a missing row is not an error")
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	s := NewMemoryStore()
	job, err := s.CreateJob(context.Background(), "metadata", nil, false)
	require.NoError(t, err)
	job.ID = 42
	assert.ErrorIs(t, s.UpdateJob(context.Background(), *job), store.ErrNotFound)
}

func TestMemoryStore_ResetStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	for i := 0; i < 3; i++ {
		job, err := s.CreateJob(ctx, "download", nil, false)
		require.NoError(t, err)
		if i < 2 {
			job.Status = state.StatusActive
			job.StartedAt = &now
			require.NoError(t, s.UpdateJob(ctx, *job))
		}
	}

	n, err := s.ResetStatus(ctx, state.StatusActive, state.StatusWaiting)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	waiting, err := s.FindByStatus(ctx, state.StatusWaiting)
	require.NoError(t, err)
	assert.Len(t, waiting, 3)
	for _, job := range waiting {
		assert.Nil(t, job.StartedAt)
	}
}

func TestMemoryStore_GetAllAndCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		_, err := s.CreateJob(ctx, "thumbnail-hash", nil, false)
		require.NoError(t, err)
	}

	page, err := s.GetAll(ctx, 2, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalItems)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Items[0].ID)

	empty, err := s.GetAll(ctx, 9, 2, "")
	require.NoError(t, err)
	assert.Empty(t, empty.Items)

	counts, err := s.CountAllJobsGroupedByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, counts[state.StatusWaiting])
	assert.Equal(t, 0, counts[state.StatusCompleted])
}

func TestMemoryStore_CreateLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	var winners int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CreateLock(ctx, "library-write")
			if err == nil && ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)

	locks, err := s.ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "library-write", locks[0].Name)

	require.NoError(t, s.DeleteLock(ctx, "library-write"))
	ok, err := s.CreateLock(ctx, "library-write")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.CreateLock(ctx, "thumbnail-hash")
	require.NoError(t, err)
	n, err := s.DeleteAllLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
