package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TriggerKind says what starts a profile.
type TriggerKind string

const (
	TriggerManual    TriggerKind = "manual"
	TriggerPixel     TriggerKind = "pixel_color"
	TriggerScheduled TriggerKind = "scheduled"
)

// ColorCondition is how a sampled pixel is compared.
type ColorCondition string

const (
	ConditionExact   ColorCondition = "exact"
	ConditionSimilar ColorCondition = "similar"
	ConditionChanged ColorCondition = "changed"
)

const (
	MinCheckInterval     = 50 * time.Millisecond
	MaxCheckInterval     = 5000 * time.Millisecond
	DefaultCheckInterval = 100 * time.Millisecond
	DefaultTolerance     = 10
)

// PixelTrigger fires when the pixel at Point satisfies Condition.
type PixelTrigger struct {
	Enabled         bool           `json:"enabled"`
	Point           Point          `json:"coordinates"`
	Color           RGB            `json:"color"`
	Tolerance       int            `json:"tolerance"`
	Condition       ColorCondition `json:"condition"`
	CheckIntervalMS int            `json:"check_interval_ms"`
}

func (t PixelTrigger) CheckInterval() time.Duration {
	return time.Duration(t.CheckIntervalMS) * time.Millisecond
}

func (t PixelTrigger) Validate() error {
	if t.Tolerance < 0 || t.Tolerance > 255 {
		return fmt.Errorf("pixel trigger tolerance %d out of range 0..255", t.Tolerance)
	}
	switch t.Condition {
	case ConditionExact, ConditionSimilar, ConditionChanged:
	default:
		return fmt.Errorf("unknown pixel condition %q", t.Condition)
	}
	if d := t.CheckInterval(); d < MinCheckInterval || d > MaxCheckInterval {
		return fmt.Errorf("pixel check interval %dms out of range 50..5000", t.CheckIntervalMS)
	}
	return nil
}

// ScheduleTrigger describes when a scheduled profile fires. At most one of
// RepeatInterval and CronExpression may be set.
type ScheduleTrigger struct {
	Enabled        bool
	Start          time.Time
	RepeatInterval time.Duration
	CronExpression string
	End            *time.Time
}

func (t ScheduleTrigger) HasRepeat() bool { return t.RepeatInterval > 0 }
func (t ScheduleTrigger) HasCron() bool   { return strings.TrimSpace(t.CronExpression) != "" }

func (t ScheduleTrigger) Validate() error {
	if t.Start.IsZero() {
		return fmt.Errorf("schedule trigger needs a start time")
	}
	if t.HasRepeat() && t.HasCron() {
		return fmt.Errorf("schedule trigger cannot have both repeat_interval and cron_expression")
	}
	if t.RepeatInterval < 0 {
		return fmt.Errorf("schedule repeat interval must be positive")
	}
	if t.End != nil && !t.End.After(t.Start) {
		return fmt.Errorf("schedule end time must be after start time")
	}
	return nil
}

type scheduleJSON struct {
	Enabled               bool       `json:"enabled"`
	Start                 time.Time  `json:"start_datetime"`
	RepeatIntervalSeconds float64    `json:"repeat_interval_seconds,omitempty"`
	CronExpression        string     `json:"cron_expression,omitempty"`
	End                   *time.Time `json:"end_datetime,omitempty"`
}

func (t ScheduleTrigger) MarshalJSON() ([]byte, error) {
	return json.Marshal(scheduleJSON{
		Enabled:               t.Enabled,
		Start:                 t.Start,
		RepeatIntervalSeconds: t.RepeatInterval.Seconds(),
		CronExpression:        t.CronExpression,
		End:                   t.End,
	})
}

func (t *ScheduleTrigger) UnmarshalJSON(data []byte) error {
	var in scheduleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = ScheduleTrigger{
		Enabled:        in.Enabled,
		Start:          in.Start,
		RepeatInterval: time.Duration(in.RepeatIntervalSeconds * float64(time.Second)),
		CronExpression: in.CronExpression,
		End:            in.End,
	}
	return nil
}
