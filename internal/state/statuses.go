package state

type JobStatus string

const (
	StatusWaiting   JobStatus = "waiting"
	StatusActive    JobStatus = "active"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s JobStatus) IsValid() bool {
	for _, status := range AllStatuses {
		if status == s {
			return true
		}
	}
	return false
}

var AllStatuses = []JobStatus{
	StatusWaiting,
	StatusActive,
	StatusCompleted,
	StatusFailed,
}

// PendingStatuses are the statuses loaded into the scheduler's working set on startup.
var PendingStatuses = []JobStatus{
	StatusWaiting,
	StatusActive,
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusWaiting, To: StatusActive},
	{From: StatusActive, To: StatusCompleted},
	{From: StatusActive, To: StatusFailed},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
