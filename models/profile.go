package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	MinIntervalMS     = 10
	DefaultIntervalMS = 1000
)

// TimingConfig is the base click interval and its jitter.
type TimingConfig struct {
	IntervalMS    int `json:"interval_ms"`
	JitterPercent int `json:"jitter_percent"`
}

func DefaultTiming() TimingConfig {
	return TimingConfig{IntervalMS: DefaultIntervalMS}
}

func (t TimingConfig) Validate() error {
	if t.IntervalMS < MinIntervalMS {
		return fmt.Errorf("interval_ms %d below minimum %d", t.IntervalMS, MinIntervalMS)
	}
	if t.JitterPercent < 0 || t.JitterPercent > 100 {
		return fmt.Errorf("jitter_percent %d out of range 0..100", t.JitterPercent)
	}
	return nil
}

// ClickLimits bounds a click session. Nil fields are unlimited.
type ClickLimits struct {
	MaxClicks          *int `json:"max_clicks,omitempty"`
	MaxDurationSeconds *int `json:"max_duration_seconds,omitempty"`
}

func (l ClickLimits) HasLimits() bool {
	return l.MaxClicks != nil || l.MaxDurationSeconds != nil
}

func (l ClickLimits) MaxDuration() time.Duration {
	if l.MaxDurationSeconds == nil {
		return 0
	}
	return time.Duration(*l.MaxDurationSeconds) * time.Second
}

func (l ClickLimits) Validate() error {
	if l.MaxClicks != nil && *l.MaxClicks < 1 {
		return fmt.Errorf("max_clicks must be >= 1")
	}
	if l.MaxDurationSeconds != nil && *l.MaxDurationSeconds < 1 {
		return fmt.Errorf("max_duration_seconds must be >= 1")
	}
	return nil
}

// ClickSpec is what click mode does each cycle. A nil Target clicks wherever
// the pointer currently is.
type ClickSpec struct {
	Kind   ClickKind `json:"click_type"`
	Target *Point    `json:"coordinates,omitempty"`
}

// Profile is a complete automation configuration.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Click  ClickSpec    `json:"click"`
	Timing TimingConfig `json:"timing"`
	Limits ClickLimits  `json:"limits"`

	// Steps, when non-empty, route the profile to the macro engine.
	Steps []Step `json:"macro_steps,omitempty"`

	Trigger      TriggerKind      `json:"trigger_type"`
	PixelTrigger *PixelTrigger    `json:"pixel_trigger,omitempty"`
	Schedule     *ScheduleTrigger `json:"schedule_trigger,omitempty"`

	IsActive bool `json:"is_active"`
	IsPaused bool `json:"is_paused"`
}

var ErrInvalidProfile = errors.New("invalid profile")

// NewProfile returns a manual left-click profile with default timing.
func NewProfile(id, name string) *Profile {
	now := time.Now()
	return &Profile{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Click:     ClickSpec{Kind: ClickLeft},
		Timing:    DefaultTiming(),
		Trigger:   TriggerManual,
	}
}

func (p *Profile) IsMacro() bool {
	return len(p.Steps) > 0
}

func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProfile)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	if !p.IsMacro() {
		if !p.Click.Kind.Valid() {
			return fmt.Errorf("%w: click_type %q", ErrInvalidProfile, p.Click.Kind)
		}
		if err := p.Timing.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
		if err := p.Limits.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
	}
	for _, s := range p.Steps {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
	}

	switch p.Trigger {
	case "", TriggerManual:
	case TriggerPixel:
		if p.PixelTrigger == nil {
			return fmt.Errorf("%w: pixel_color trigger without pixel_trigger", ErrInvalidProfile)
		}
	case TriggerScheduled:
		if p.Schedule == nil {
			return fmt.Errorf("%w: scheduled trigger without schedule_trigger", ErrInvalidProfile)
		}
	default:
		return fmt.Errorf("%w: trigger_type %q", ErrInvalidProfile, p.Trigger)
	}
	if p.PixelTrigger != nil {
		if err := p.PixelTrigger.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
	}
	if p.Schedule != nil {
		if err := p.Schedule.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
		}
	}
	return nil
}

// Copy returns a deep copy, safe to hand to a running session.
func (p *Profile) Copy() *Profile {
	cp := *p
	if p.Click.Target != nil {
		t := *p.Click.Target
		cp.Click.Target = &t
	}
	if p.Limits.MaxClicks != nil {
		v := *p.Limits.MaxClicks
		cp.Limits.MaxClicks = &v
	}
	if p.Limits.MaxDurationSeconds != nil {
		v := *p.Limits.MaxDurationSeconds
		cp.Limits.MaxDurationSeconds = &v
	}
	if p.Steps != nil {
		cp.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			if ka, ok := s.Action.(KeyAction); ok {
				ka.Modifiers = append([]Modifier(nil), ka.Modifiers...)
				s.Action = ka
			}
			cp.Steps[i] = s
		}
	}
	if p.PixelTrigger != nil {
		t := *p.PixelTrigger
		cp.PixelTrigger = &t
	}
	if p.Schedule != nil {
		s := *p.Schedule
		if p.Schedule.End != nil {
			end := *p.Schedule.End
			s.End = &end
		}
		cp.Schedule = &s
	}
	return &cp
}

// PixelArmed reports whether the profile should be registered with the
// pixel watcher.
func (p *Profile) PixelArmed() bool {
	return p.Trigger == TriggerPixel && p.PixelTrigger != nil && p.PixelTrigger.Enabled
}

// ScheduleArmed reports whether the profile should be registered with the
// scheduler.
func (p *Profile) ScheduleArmed() bool {
	return p.Trigger == TriggerScheduled && p.Schedule != nil && p.Schedule.Enabled
}

func IntPtr(v int) *int { return &v }
