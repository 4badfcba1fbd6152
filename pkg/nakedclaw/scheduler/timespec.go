// timespec.go parses the time-spec vocabulary accepted by /schedule
// into either a one-shot instant or a standing cron expression.
// Unrecognized input is a non-success return, not an error: the caller
// presents a usage hint.
package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParsedSpec is the result of interpreting a time spec.
type ParsedSpec struct {
	// OneShot is true for specs naming a single absolute instant.
	OneShot bool

	// At is the firing instant for one-shot specs.
	At time.Time

	// CronExpr is the standing schedule for recurring specs.
	CronExpr string
}

var (
	reInDuration = regexp.MustCompile(`^in\s+(\d+)\s*(second|minute|hour|sec|min|hr)s?$`)
	reAtTime     = regexp.MustCompile(`^at\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	reEveryDayAt = regexp.MustCompile(`^every\s+day\s+at\s+(\d{1,2}):(\d{2})$`)
	reEveryN     = regexp.MustCompile(`^every\s+(\d+)\s*(minute|hour|min|hr)s?$`)
)

// ParseSpec interprets a natural-language or raw-cron time spec
// relative to now. Supported forms:
//
//	"in N minutes|hours|seconds"  → one-shot at now + N·unit
//	"at H[:MM][am|pm]"            → one-shot today, or tomorrow if past
//	"every day at HH:MM"          → recurring cron "MM HH * * *"
//	"every N hours|minutes"       → recurring "@every Nh|Nm"
//	5-field cron expression       → recurring, passed through
//
// Returns ok=false when the input matches none of these.
func ParseSpec(input string, now time.Time) (ParsedSpec, bool) {
	normalized := strings.TrimSpace(strings.ToLower(input))
	if normalized == "" {
		return ParsedSpec{}, false
	}

	if m := reInDuration.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := durationUnit(m[2])
		if n > 0 && unit > 0 {
			return ParsedSpec{OneShot: true, At: now.Add(time.Duration(n) * unit)}, true
		}
		return ParsedSpec{}, false
	}

	if m := reAtTime.FindStringSubmatch(normalized); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		switch m[3] {
		case "pm":
			if hour > 12 {
				return ParsedSpec{}, false
			}
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour > 12 {
				return ParsedSpec{}, false
			}
			if hour == 12 {
				hour = 0
			}
		}
		if hour > 23 || minute > 59 {
			return ParsedSpec{}, false
		}

		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !at.After(now) {
			// Already passed for today: roll forward to tomorrow.
			at = at.AddDate(0, 0, 1)
		}
		return ParsedSpec{OneShot: true, At: at}, true
	}

	if m := reEveryDayAt.FindStringSubmatch(normalized); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return ParsedSpec{}, false
		}
		return ParsedSpec{CronExpr: fmt.Sprintf("%d %d * * *", minute, hour)}, true
	}

	if m := reEveryN.FindStringSubmatch(normalized); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n <= 0 {
			return ParsedSpec{}, false
		}
		suffix := "h"
		if strings.HasPrefix(m[2], "min") {
			suffix = "m"
		}
		return ParsedSpec{CronExpr: fmt.Sprintf("@every %d%s", n, suffix)}, true
	}

	// Raw cron expression passthrough, validated by the same parser the
	// scheduler runs with.
	if _, err := cron.ParseStandard(normalized); err == nil {
		return ParsedSpec{CronExpr: normalized}, true
	}

	return ParsedSpec{}, false
}

func durationUnit(word string) time.Duration {
	switch {
	case strings.HasPrefix(word, "sec"):
		return time.Second
	case strings.HasPrefix(word, "min"):
		return time.Minute
	case strings.HasPrefix(word, "h"):
		return time.Hour
	default:
		return 0
	}
}
