package state

import (
	"testing"
)

func TestJobStatus_String(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{
			name:     "Waiting status",
			status:   StatusWaiting,
			expected: "waiting",
		},
		{
			name:     "Active status",
			status:   StatusActive,
			expected: "active",
		},
		{
			name:     "Completed status",
			status:   StatusCompleted,
			expected: "completed",
		},
		{
			name:     "Failed status",
			status:   StatusFailed,
			expected: "failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.status.String()
			if result != tt.expected {
				t.Errorf("String() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     JobStatus
		to       JobStatus
		expected bool
	}{
		{
			name:     "Valid: Waiting to Active",
			from:     StatusWaiting,
			to:       StatusActive,
			expected: true,
		},
		{
			name:     "Valid: Active to Completed",
			from:     StatusActive,
			to:       StatusCompleted,
			expected: true,
		},
		{
			name:     "Valid: Active to Failed",
			from:     StatusActive,
			to:       StatusFailed,
			expected: true,
		},
		{
			name:     "Invalid: Waiting to Completed",
			from:     StatusWaiting,
			to:       StatusCompleted,
			expected: false,
		},
		{
			name:     "Invalid: Active to Waiting",
			from:     StatusActive,
			to:       StatusWaiting,
			expected: false,
		},
		{
			name:     "Invalid: Completed to Failed",
			from:     StatusCompleted,
			to:       StatusFailed,
			expected: false,
		},
		{
			name:     "Invalid: Failed to Active",
			from:     StatusFailed,
			to:       StatusActive,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	for _, status := range AllStatuses {
		want := status == StatusCompleted || status == StatusFailed
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
		if !status.IsValid() {
			t.Errorf("%s.IsValid() = false", status)
		}
	}
	if JobStatus("queued").IsValid() {
		t.Error("unknown status reported as valid")
	}
}
