package types

import (
	"encoding/json"
	"fmt"
	"time"
)

type TriggerMode string

const (
	TriggerInterval TriggerMode = "interval"
	TriggerCron     TriggerMode = "cron"
)

// TriggerOptions is the firing rule of a repeating job. It is comparable, so two
// triggers with equal options for the same task name are duplicates.
type TriggerOptions struct {
	Mode     TriggerMode   `json:"mode"`
	Interval time.Duration `json:"interval,omitempty"`
	Cron     string        `json:"cron,omitempty"`
}

// Every fires a repeating job on a fixed period.
func Every(interval time.Duration) TriggerOptions {
	return TriggerOptions{Mode: TriggerInterval, Interval: interval}
}

// Cron fires a repeating job on a cron expression (5 fields, optional seconds, or a descriptor such as @daily).
func Cron(expression string) TriggerOptions {
	return TriggerOptions{Mode: TriggerCron, Cron: expression}
}

func (o TriggerOptions) String() string {
	switch o.Mode {
	case TriggerInterval:
		return fmt.Sprintf("interval:%s", o.Interval)
	case TriggerCron:
		return fmt.Sprintf("cron:%s", o.Cron)
	}
	return "unknown"
}

// RepeatingTrigger materializes new jobs of Name whenever its rule is due.
// Triggers live in memory only and are re-registered at process start.
type RepeatingTrigger struct {
	Name      string
	Options   TriggerOptions
	Data      json.RawMessage
	LastRunAt *time.Time
}
