package types

import (
	"time"

	"github.com/talkvault/talkvault/internal/state"
)

// JobResult carries a handler outcome from the worker goroutine back to the result processor.
type JobResult struct {
	JobID      int64
	Name       string
	Err        error
	Thrown     bool // returned error or panic, as opposed to an error reported through done
	Status     state.JobStatus
	FinishedAt time.Time
}
