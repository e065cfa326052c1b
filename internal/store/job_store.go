package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/types"
)

var ErrNotFound = errors.New("record not found")

// JobStore defines the durable table of job rows the scheduler reads and writes.
type JobStore interface {
	// CreateJob inserts a new Waiting row and returns it with its store-generated id.
	CreateJob(ctx context.Context, name string, data json.RawMessage, keepAfterSuccess bool) (*types.Job, error)

	// FindByID returns ErrNotFound when no row has id.
	FindByID(ctx context.Context, id int64) (*types.Job, error)

	// UpdateJob writes status, progress, started_at and keep_after_success of job by its id.
	UpdateJob(ctx context.Context, job types.Job) error

	// DeleteJob removes the row. Deleting a missing row is not an error.
	DeleteJob(ctx context.Context, id int64) error

	// FindByStatus returns rows with any of the statuses in insertion (id) order.
	FindByStatus(ctx context.Context, statuses ...state.JobStatus) ([]types.Job, error)

	// ResetStatus moves every row in status from to status to and returns the number of rows moved.
	ResetStatus(ctx context.Context, from, to state.JobStatus) (int64, error)

	// GetAll pages through rows, newest first, optionally filtered by status.
	GetAll(ctx context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.Job], error)

	// CountAllJobsGroupedByStatus reports a count for every known status, zero included.
	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error)

	Close() error
}
