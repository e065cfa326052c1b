package client

import (
	"context"

	"github.com/talkvault/talkvault/types"
)

// JobRecord is the job handed to callers of EnqueueJob and to handlers, with a progress setter bound to its id.
// The embedded Job is a snapshot; the manager's working set holds the live status.
type JobRecord struct {
	types.Job
	manager *JobManager
}

// UpdateProgress is UpdateJobProgress for this record's id.
func (r *JobRecord) UpdateProgress(ctx context.Context, progress int) bool {
	if r == nil || r.manager == nil {
		return false
	}
	return r.manager.UpdateJobProgress(ctx, r.ID, progress)
}
