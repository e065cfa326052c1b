// Package trigger evaluates repeating-job rules against the scheduler clock.
package trigger

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/talkvault/talkvault/types"
)

var ErrUnknownMode = errors.New("unknown trigger mode")

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a standard cron expression, an expression with a leading seconds field, or a descriptor.
func ParseCron(expression string) (cron.Schedule, error) {
	schedule, err := parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}
	return schedule, nil
}

// IsDue reports whether a trigger last fired at lastRunAt should fire at now.
//
// Interval rules are due when they never ran or when a full period elapsed.
// Cron rules compute the next fire time after lastRunAt (the Unix epoch when unset) and are due once it is not after now.
func IsDue(opts types.TriggerOptions, lastRunAt *time.Time, now time.Time) (bool, error) {
	switch opts.Mode {
	case types.TriggerInterval:
		if lastRunAt == nil {
			return true, nil
		}
		return now.Sub(*lastRunAt) >= opts.Interval, nil
	case types.TriggerCron:
		schedule, err := ParseCron(opts.Cron)
		if err != nil {
			return false, err
		}
		ref := time.Unix(0, 0).In(now.Location())
		if lastRunAt != nil {
			ref = *lastRunAt
		}
		next := schedule.Next(ref)
		if next.IsZero() {
			return false, nil
		}
		return !next.After(now), nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
}

// Validate checks the parts of a rule that can never become valid at tick time.
// Cron expressions are only parsed at tick time, where a bad one is reported as an error event.
func Validate(opts types.TriggerOptions) error {
	switch opts.Mode {
	case types.TriggerInterval:
		if opts.Interval <= 0 {
			return fmt.Errorf("interval must be > 0, got %s", opts.Interval)
		}
		return nil
	case types.TriggerCron:
		if opts.Cron == "" {
			return errors.New("cron expression required")
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, opts.Mode)
}
