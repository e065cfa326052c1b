// Package memory keeps job and lock rows in process memory. It backs tests and single-process runs
// where durability across restarts is not needed.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/types"
)

type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	jobs   map[int64]types.Job
	locks  map[string]time.Time
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[int64]types.Job),
		locks: make(map[string]time.Time),
		now:   time.Now,
	}
}

func (m *MemoryStore) CreateJob(_ context.Context, name string, data json.RawMessage, keepAfterSuccess bool) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	job := types.Job{
		ID:               m.nextID,
		Name:             name,
		Data:             cloneRaw(data),
		Status:           state.StatusWaiting,
		KeepAfterSuccess: keepAfterSuccess,
		CreatedAt:        m.now(),
	}
	m.jobs[job.ID] = job
	return &job, nil
}

func (m *MemoryStore) FindByID(_ context.Context, id int64) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &job, nil
}

func (m *MemoryStore) UpdateJob(_ context.Context, job types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.Status = job.Status
	existing.Progress = job.Progress
	existing.StartedAt = job.StartedAt
	existing.KeepAfterSuccess = job.KeepAfterSuccess
	m.jobs[job.ID] = existing
	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *MemoryStore) FindByStatus(_ context.Context, statuses ...state.JobStatus) ([]types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[state.JobStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}

	var jobs []types.Job
	for _, job := range m.jobs {
		if wanted[job.Status] {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (m *MemoryStore) ResetStatus(_ context.Context, from, to state.JobStatus) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, job := range m.jobs {
		if job.Status != from {
			continue
		}
		job.Status = to
		job.StartedAt = nil
		m.jobs[id] = job
		n++
	}
	return n, nil
}

func (m *MemoryStore) GetAll(_ context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}

	m.mu.Lock()
	var all []types.Job
	for _, job := range m.jobs {
		if status == "" || job.Status == status {
			all = append(all, job)
		}
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	return types.NewPaginationResult(all[start:end], len(all), page, pageSize), nil
}

func (m *MemoryStore) CountAllJobsGroupedByStatus(_ context.Context) (map[state.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, s := range state.AllStatuses {
		result[s] = 0
	}
	for _, job := range m.jobs {
		result[job.Status]++
	}
	return result, nil
}

func (m *MemoryStore) CreateLock(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[name]; held {
		return false, nil
	}
	m.locks[name] = m.now()
	return true, nil
}

func (m *MemoryStore) DeleteLock(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, name)
	return nil
}

func (m *MemoryStore) DeleteAllLocks(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.locks))
	m.locks = make(map[string]time.Time)
	return n, nil
}

func (m *MemoryStore) ListLocks(_ context.Context) ([]types.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	locks := make([]types.Lock, 0, len(m.locks))
	for name, created := range m.locks {
		locks = append(locks, types.Lock{Name: name, CreatedAt: created})
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].Name < locks[j].Name })
	return locks, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func cloneRaw(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
