package scheduler

import (
	"testing"
	"time"
)

func TestParseSpecOneShot(t *testing.T) {
	t.Parallel()

	// Fixed reference instant: Tuesday 2026-03-10 14:30 local.
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.Local)

	tests := []struct {
		input string
		at    time.Time
	}{
		{"in 5 minutes", now.Add(5 * time.Minute)},
		{"in 1 minute", now.Add(time.Minute)},
		{"in 90 seconds", now.Add(90 * time.Second)},
		{"in 2 hours", now.Add(2 * time.Hour)},
		{"in 10 mins", now.Add(10 * time.Minute)},
		{"IN 5 MINUTES", now.Add(5 * time.Minute)},

		// Absolute time still ahead today.
		{"at 15:00", time.Date(2026, 3, 10, 15, 0, 0, 0, time.Local)},
		{"at 11pm", time.Date(2026, 3, 10, 23, 0, 0, 0, time.Local)},
		{"at 4:45pm", time.Date(2026, 3, 10, 16, 45, 0, 0, time.Local)},

		// Already passed for today: rolls forward to tomorrow.
		{"at 9:00", time.Date(2026, 3, 11, 9, 0, 0, 0, time.Local)},
		{"at 8am", time.Date(2026, 3, 11, 8, 0, 0, 0, time.Local)},
		{"at 12am", time.Date(2026, 3, 11, 0, 0, 0, 0, time.Local)},
		{"at 14:30", time.Date(2026, 3, 11, 14, 30, 0, 0, time.Local)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			spec, ok := ParseSpec(tt.input, now)
			if !ok {
				t.Fatalf("ParseSpec(%q) not recognized", tt.input)
			}
			if !spec.OneShot {
				t.Fatalf("ParseSpec(%q) not one-shot: %+v", tt.input, spec)
			}
			if !spec.At.Equal(tt.at) {
				t.Errorf("ParseSpec(%q).At = %v, want %v", tt.input, spec.At, tt.at)
			}
		})
	}
}

func TestParseSpecRecurring(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.Local)

	tests := []struct {
		input string
		cron  string
	}{
		{"every day at 09:00", "0 9 * * *"},
		{"every day at 9:15", "15 9 * * *"},
		{"every day at 23:59", "59 23 * * *"},
		{"every 3 hours", "@every 3h"},
		{"every 1 hour", "@every 1h"},
		{"every 15 minutes", "@every 15m"},
		{"every 10 mins", "@every 10m"},

		// Raw cron passthrough.
		{"0 9 * * 1", "0 9 * * 1"},
		{"*/5 * * * *", "*/5 * * * *"},
		{"@every 30m", "@every 30m"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			spec, ok := ParseSpec(tt.input, now)
			if !ok {
				t.Fatalf("ParseSpec(%q) not recognized", tt.input)
			}
			if spec.OneShot {
				t.Fatalf("ParseSpec(%q) unexpectedly one-shot", tt.input)
			}
			if spec.CronExpr != tt.cron {
				t.Errorf("ParseSpec(%q).CronExpr = %q, want %q", tt.input, spec.CronExpr, tt.cron)
			}
		})
	}
}

func TestParseSpecRejected(t *testing.T) {
	t.Parallel()
	now := time.Now()

	inputs := []string{
		"",
		"tomorrow maybe",
		"in 0 minutes",
		"in five minutes",
		"at 25:00",
		"at 13pm",
		"at 9:75",
		"every day at 24:00",
		"every 0 hours",
		"not a cron * *",
	}

	for _, input := range inputs {
		input := input
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			if spec, ok := ParseSpec(input, now); ok {
				t.Errorf("ParseSpec(%q) = %+v, want rejection", input, spec)
			}
		})
	}
}
