package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/talkvault/talkvault/types"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Parse turns a schedule string into trigger options.
//
// Supported forms:
//   - "cron:<expr>" or anything containing whitespace or starting with '@' is a cron rule
//   - "interval:<d>" / "every:<d>" force an interval
//   - a Go duration ("55m", "2h30m") or HH:MM ("02:30") is an interval
func Parse(raw string) (types.TriggerOptions, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return types.TriggerOptions{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return types.TriggerOptions{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return types.Cron(expr), nil
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseInterval(s[len("every:"):])
	}

	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return types.Cron(s), nil
	}

	opts, err := parseInterval(s)
	if err != nil {
		return types.TriggerOptions{}, fmt.Errorf(
			"invalid schedule %q (use cron like '*/5 * * * *', HH:MM like '02:30', or duration like '55m')", raw)
	}
	return opts, nil
}

func parseInterval(v string) (types.TriggerOptions, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return types.TriggerOptions{}, fmt.Errorf("interval required")
	}

	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return types.TriggerOptions{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return types.TriggerOptions{}, fmt.Errorf("invalid interval %q: %w", v, err)
		}
		d = parsed
	}

	if d <= 0 {
		return types.TriggerOptions{}, fmt.Errorf("interval must be > 0")
	}
	return types.Every(d), nil
}
