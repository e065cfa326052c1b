package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkvault/talkvault/types"
)

func TestIsDue_Interval(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	opts := types.Every(time.Second)

	due, err := IsDue(opts, nil, now)
	require.NoError(t, err)
	assert.True(t, due, "never-run interval trigger must be due")

	last := now.Add(-999 * time.Millisecond)
	due, err = IsDue(opts, &last, now)
	require.NoError(t, err)
	assert.False(t, due)

	last = now.Add(-time.Second)
	due, err = IsDue(opts, &last, now)
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDue_Cron(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 30, 0, time.UTC)
	opts := types.Cron("* * * * *")

	due, err := IsDue(opts, nil, now)
	require.NoError(t, err)
	assert.True(t, due, "unset last run uses the epoch as reference")

	last := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	due, err = IsDue(opts, &last, now)
	require.NoError(t, err)
	assert.False(t, due, "next fire is 12:01")

	due, err = IsDue(opts, &last, last.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDue_CronDescriptorAndSeconds(t *testing.T) {
	last := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	due, err := IsDue(types.Cron("@daily"), &last, last.Add(23*time.Hour))
	require.NoError(t, err)
	assert.False(t, due)

	due, err = IsDue(types.Cron("*/10 * * * * *"), &last, last.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, due)
}

func TestIsDue_InvalidCron(t *testing.T) {
	_, err := IsDue(types.Cron("not a cron"), nil, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
}

func TestIsDue_UnknownMode(t *testing.T) {
	_, err := IsDue(types.TriggerOptions{Mode: "weekly"}, nil, time.Now())
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(types.Every(time.Minute)))
	assert.NoError(t, Validate(types.Cron("bad expression is checked at tick time")))
	assert.Error(t, Validate(types.Every(0)))
	assert.Error(t, Validate(types.Cron("")))
	assert.ErrorIs(t, Validate(types.TriggerOptions{}), ErrUnknownMode)
}

// An interval trigger of period P observed over a window W fires at most ceil(W/P)+1 times.
func TestIsDue_IntervalNeverExceedsBound(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	period := 700 * time.Millisecond
	window := 10 * time.Second
	opts := types.Every(period)

	var last *time.Time
	fired := 0
	for at := start; !at.After(start.Add(window)); at = at.Add(100 * time.Millisecond) {
		due, err := IsDue(opts, last, at)
		require.NoError(t, err)
		if due {
			fired++
			fireAt := at
			last = &fireAt
		}
	}

	bound := int((window+period-1)/period) + 1
	assert.LessOrEqual(t, fired, bound)
	assert.Greater(t, fired, 0)
}
