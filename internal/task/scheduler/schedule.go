package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind describes the normalized kind of a schedule string.
type ScheduleKind int

const (
	ScheduleInterval ScheduleKind = iota
	ScheduleCron
)

func (k ScheduleKind) String() string {
	if k == ScheduleCron {
		return "cron"
	}
	return "interval"
}

// Schedule is a parsed node schedule.
//
// Supported forms:
//   - Interval duration: "100ms", "2h30m", "0s" (every tick)
//   - Interval HH:MM: "00:50" (50 minutes), "02:30"
//   - Cron: "*/5 * * * *", "@hourly", "@every 55m"
//   - "tick" / "every tick": interval 0
//
// Optional prefixes "cron:" and "interval:" / "every:" force the kind.
type Schedule struct {
	Kind   ScheduleKind
	Every  time.Duration
	Cron   cron.Schedule
	Expr   string
	Source string // "duration" | "hhmm" | "cron" | "tick"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a schedule string into an interval or a cron schedule.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case low == "tick" || low == "every tick":
		return Schedule{Kind: ScheduleInterval, Expr: s, Source: "tick"}, nil
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return parseInterval(strings.TrimSpace(s[len("interval:"):]))
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	}

	// Whitespace or a leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	sched, err := parseInterval(s)
	if err != nil {
		return Schedule{}, fmt.Errorf(
			"invalid schedule %q (use a duration like '500ms', HH:MM like '02:30', or cron like '*/5 * * * *')",
			raw,
		)
	}
	return sched, nil
}

func parseCron(expr string) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron schedule required")
	}
	cs, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Schedule{Kind: ScheduleCron, Cron: cs, Expr: expr, Source: "cron"}, nil
}

func parseInterval(v string) (Schedule, error) {
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		return Schedule{Kind: ScheduleInterval, Every: d, Expr: v, Source: "hhmm"}, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid interval %q (use HH:MM or a Go duration like '250ms')", v)
	}
	if d < 0 {
		return Schedule{}, fmt.Errorf("%w: got %s", ErrInvalidInterval, d)
	}
	return Schedule{Kind: ScheduleInterval, Every: d, Expr: v, Source: "duration"}, nil
}
