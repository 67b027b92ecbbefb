package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clickweave/clickweave/models"
)

var (
	ErrStartInPast = errors.New("schedule start time is in the past")
	ErrInvalidCron = errors.New("invalid cron expression")
	ErrNoSchedule  = errors.New("profile has no schedule trigger")
	ErrDisabled    = errors.New("schedule trigger is disabled")
	ErrShortRepeat = errors.New("schedule repeat interval is too short")
)

// MinRepeatInterval is the shortest accepted repeat interval.
const MinRepeatInterval = time.Second

// TriggerType is the concrete trigger derived from a ScheduleTrigger.
type TriggerType string

const (
	TriggerDate     TriggerType = "date"
	TriggerInterval TriggerType = "interval"
	TriggerCron     TriggerType = "cron"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field minute hour day-of-month month day-of-week
// expression.
func ParseCron(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidCron, len(fields))
	}
	s, err := cronParser.Parse(strings.Join(fields, " "))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCron, err)
	}
	return s, nil
}

func ValidateCron(expr string) error {
	_, err := ParseCron(expr)
	return err
}

// Derive picks the concrete trigger for t: cron if an expression is set,
// else interval if a repeat is set, else a single shot at the start time.
// A single shot whose start is not after now is rejected.
func Derive(t models.ScheduleTrigger, now time.Time) (cron.Schedule, TriggerType, error) {
	if err := t.Validate(); err != nil {
		return nil, "", err
	}
	if t.HasRepeat() && t.RepeatInterval < MinRepeatInterval {
		return nil, "", fmt.Errorf("%w: %s, minimum %s", ErrShortRepeat, t.RepeatInterval, MinRepeatInterval)
	}
	switch {
	case t.HasCron():
		inner, err := ParseCron(t.CronExpression)
		if err != nil {
			return nil, "", err
		}
		return boundedSchedule{inner: inner, start: t.Start, end: t.End}, TriggerCron, nil
	case t.HasRepeat():
		return intervalSchedule{start: t.Start, every: t.RepeatInterval, end: t.End}, TriggerInterval, nil
	default:
		if !t.Start.After(now) {
			return nil, "", fmt.Errorf("%w: %s", ErrStartInPast, t.Start.Format(time.RFC3339))
		}
		return onceSchedule{at: t.Start}, TriggerDate, nil
	}
}

// onceSchedule fires a single time.
type onceSchedule struct {
	at time.Time
}

func (s onceSchedule) Next(t time.Time) time.Time {
	if t.Before(s.at) {
		return s.at
	}
	return time.Time{}
}

// intervalSchedule fires at start + n*every, never after end.
type intervalSchedule struct {
	start time.Time
	every time.Duration
	end   *time.Time
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	next := s.start
	if !t.Before(s.start) {
		n := t.Sub(s.start)/s.every + 1
		next = s.start.Add(n * s.every)
	}
	if s.end != nil && next.After(*s.end) {
		return time.Time{}
	}
	return next
}

// boundedSchedule limits a calendar schedule to [start, end].
type boundedSchedule struct {
	inner cron.Schedule
	start time.Time
	end   *time.Time
}

func (s boundedSchedule) Next(t time.Time) time.Time {
	if t.Before(s.start) {
		// cron returns the first whole second strictly after t. Stepping
		// to the second below start allows a match at a whole-second
		// start and never one before a fractional start.
		t = s.start.Add(-time.Nanosecond).Truncate(time.Second)
	}
	next := s.inner.Next(t)
	if next.IsZero() || (s.end != nil && next.After(*s.end)) {
		return time.Time{}
	}
	return next
}

// NextRuns lists up to n upcoming fire times of t after now.
func NextRuns(t models.ScheduleTrigger, now time.Time, n int) ([]time.Time, error) {
	sched, _, err := Derive(t, now)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	cur := now
	for len(out) < n {
		next := sched.Next(cur)
		if next.IsZero() {
			break
		}
		out = append(out, next)
		cur = next
	}
	return out, nil
}
