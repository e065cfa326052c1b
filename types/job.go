package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/talkvault/talkvault/internal/state"
)

// Job is one persisted unit of scheduled work.
type Job struct {
	ID               int64           `json:"id"`
	Name             string          `json:"name"`
	Data             json.RawMessage `json:"data,omitempty"`
	Status           state.JobStatus `json:"status"`
	Progress         int             `json:"progress"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	KeepAfterSuccess bool            `json:"keep_after_success"`
	CreatedAt        time.Time       `json:"created_at"`
}

// JobSummary is the read-only projection of a job handed to status reporters. It never carries the payload.
type JobSummary struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Progress  int             `json:"progress"`
	Status    state.JobStatus `json:"status"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
}

func (j Job) Summary() JobSummary {
	return JobSummary{
		ID:        j.ID,
		Name:      j.Name,
		Progress:  j.Progress,
		Status:    j.Status,
		StartedAt: j.StartedAt,
	}
}

// Bind decodes the job payload into v.
func (j Job) Bind(v any) error {
	if len(j.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.Data, v); err != nil {
		return fmt.Errorf("invalid payload for job %d: %w", j.ID, err)
	}
	return nil
}

// MarshalPayload converts an arbitrary payload into the stored JSON form.
func MarshalPayload(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return v, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return b, nil
}
