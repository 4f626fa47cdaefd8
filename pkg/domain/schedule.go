package domain

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind tags a schedule variant.
type ScheduleKind string

const (
	ScheduleKindCron     ScheduleKind = "cron"
	ScheduleKindInterval ScheduleKind = "interval"
)

// Schedule describes when a flow should run. It is a tagged variant:
// Kind selects which fields are meaningful. Cron schedules fire on a
// five-field cron expression; interval schedules fire every Every
// starting from Anchor. Extra carries fields of kinds this engine does
// not interpret, so an unknown schedule survives a round trip intact.
type Schedule struct {
	Kind   ScheduleKind   `json:"kind"`
	Cron   string         `json:"cron,omitempty"`
	Anchor time.Time      `json:"anchor,omitempty"`
	Every  time.Duration  `json:"every,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// NewCronSchedule builds a cron schedule, validating the expression.
func NewCronSchedule(expr string) (*Schedule, error) {
	if _, err := cron.ParseStandard(expr); err != nil {
		return nil, NewValidationError("schedule.cron", fmt.Sprintf("invalid cron expression %q: %v", expr, err))
	}
	return &Schedule{Kind: ScheduleKindCron, Cron: expr}, nil
}

// NewIntervalSchedule builds an interval schedule anchored at anchor.
func NewIntervalSchedule(anchor time.Time, every time.Duration) (*Schedule, error) {
	if every <= 0 {
		return nil, NewValidationError("schedule.every", "interval must be positive")
	}
	return &Schedule{Kind: ScheduleKindInterval, Anchor: anchor.UTC(), Every: every}, nil
}

// Validate checks that the schedule's kind-specific fields are usable.
// Kinds this engine does not interpret pass through unchecked; they are
// carried opaquely and only Next refuses them.
func (s *Schedule) Validate() error {
	switch s.Kind {
	case ScheduleKindCron:
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return NewValidationError("schedule.cron", fmt.Sprintf("invalid cron expression %q: %v", s.Cron, err))
		}
		return nil
	case ScheduleKindInterval:
		if s.Every <= 0 {
			return NewValidationError("schedule.every", "interval must be positive")
		}
		return nil
	default:
		return nil
	}
}

// Next returns the first n fire times strictly after the given instant,
// in order.
func (s *Schedule) Next(after time.Time, n int) ([]time.Time, error) {
	if n <= 0 {
		return nil, nil
	}
	switch s.Kind {
	case ScheduleKindCron:
		sched, err := cron.ParseStandard(s.Cron)
		if err != nil {
			return nil, NewValidationError("schedule.cron", fmt.Sprintf("invalid cron expression %q: %v", s.Cron, err))
		}
		times := make([]time.Time, 0, n)
		t := after
		for i := 0; i < n; i++ {
			t = sched.Next(t)
			times = append(times, t)
		}
		return times, nil
	case ScheduleKindInterval:
		if s.Every <= 0 {
			return nil, NewValidationError("schedule.every", "interval must be positive")
		}
		times := make([]time.Time, 0, n)
		first := s.Anchor
		if !after.Before(s.Anchor) {
			// Number of whole intervals elapsed since the anchor; the
			// next fire is one interval past that.
			elapsed := after.Sub(s.Anchor) / s.Every
			first = s.Anchor.Add((elapsed + 1) * s.Every)
		}
		for i := 0; i < n; i++ {
			times = append(times, first.Add(time.Duration(i)*s.Every))
		}
		return times, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheduleKind, s.Kind)
	}
}
