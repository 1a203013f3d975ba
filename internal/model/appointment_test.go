package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from AppointmentStatus
		to   AppointmentStatus
		want bool
	}{
		{"pending to confirmed", StatusPending, StatusConfirmed, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to timeout", StatusPending, StatusFailedTimeout, true},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"confirmed to cancelled", StatusConfirmed, StatusCancelled, true},
		{"confirmed to completed", StatusConfirmed, StatusCompleted, true},
		{"confirmed to pending", StatusConfirmed, StatusPending, false},
		{"confirmed to timeout", StatusConfirmed, StatusFailedTimeout, false},
		{"cancelled is terminal", StatusCancelled, StatusPending, false},
		{"timeout is terminal", StatusFailedTimeout, StatusConfirmed, false},
		{"completed is terminal", StatusCompleted, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusFailedTimeout.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
}

func TestIsOccupying(t *testing.T) {
	// Only live claims hold a slot; terminal rows free it immediately.
	assert.True(t, StatusPending.IsOccupying())
	assert.True(t, StatusConfirmed.IsOccupying())
	assert.False(t, StatusCancelled.IsOccupying())
	assert.False(t, StatusFailedTimeout.IsOccupying())
	assert.False(t, StatusCompleted.IsOccupying())
}
