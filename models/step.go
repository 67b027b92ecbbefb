package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StepKind identifies the action a macro step performs.
type StepKind string

const (
	StepClick  StepKind = "click"
	StepMove   StepKind = "move"
	StepDelay  StepKind = "delay"
	StepKey    StepKind = "key"
	StepScroll StepKind = "scroll"
)

// ClickKind selects which button is pressed and how.
type ClickKind string

const (
	ClickLeft   ClickKind = "left"
	ClickRight  ClickKind = "right"
	ClickMiddle ClickKind = "middle"
	ClickDouble ClickKind = "double"
	ClickHold   ClickKind = "hold"
)

func (k ClickKind) Valid() bool {
	switch k {
	case ClickLeft, ClickRight, ClickMiddle, ClickDouble, ClickHold:
		return true
	}
	return false
}

// ScrollDirection is the wheel direction of a scroll step.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// Modifier is a key held down for the duration of a key step.
type Modifier string

const (
	ModCtrl  Modifier = "ctrl"
	ModAlt   Modifier = "alt"
	ModShift Modifier = "shift"
	ModCmd   Modifier = "cmd"
)

// ParseModifier accepts the common spellings of a modifier key.
func ParseModifier(s string) (Modifier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ctrl", "control":
		return ModCtrl, nil
	case "alt", "option":
		return ModAlt, nil
	case "shift":
		return ModShift, nil
	case "cmd", "command", "win", "windows", "meta", "super":
		return ModCmd, nil
	}
	return "", fmt.Errorf("unknown modifier %q", s)
}

var ErrInvalidStep = errors.New("invalid macro step")

// Action is the kind-specific payload of a Step. The set of implementations
// is closed: ClickAction, MoveAction, DelayAction, KeyAction, ScrollAction.
type Action interface {
	Kind() StepKind
	validate() error
}

type ClickAction struct {
	Target Point     `json:"coordinates"`
	Button ClickKind `json:"click_type"`
}

type MoveAction struct {
	Target Point `json:"coordinates"`
}

type DelayAction struct {
	Duration time.Duration `json:"-"`
}

type KeyAction struct {
	Key       string     `json:"key"`
	Modifiers []Modifier `json:"modifiers,omitempty"`
}

type ScrollAction struct {
	Direction ScrollDirection `json:"scroll_direction"`
	Amount    int             `json:"scroll_amount"`
}

func (ClickAction) Kind() StepKind  { return StepClick }
func (MoveAction) Kind() StepKind   { return StepMove }
func (DelayAction) Kind() StepKind  { return StepDelay }
func (KeyAction) Kind() StepKind    { return StepKey }
func (ScrollAction) Kind() StepKind { return StepScroll }

func (a ClickAction) validate() error {
	if !a.Button.Valid() {
		return fmt.Errorf("%w: click_type %q", ErrInvalidStep, a.Button)
	}
	return nil
}

func (MoveAction) validate() error { return nil }

func (a DelayAction) validate() error {
	if a.Duration < 0 {
		return fmt.Errorf("%w: negative delay", ErrInvalidStep)
	}
	return nil
}

func (a KeyAction) validate() error {
	if strings.TrimSpace(a.Key) == "" {
		return fmt.Errorf("%w: key step without key", ErrInvalidStep)
	}
	return nil
}

func (a ScrollAction) validate() error {
	if a.Direction != ScrollUp && a.Direction != ScrollDown {
		return fmt.Errorf("%w: scroll_direction %q", ErrInvalidStep, a.Direction)
	}
	if a.Amount <= 0 {
		return fmt.Errorf("%w: scroll_amount must be positive", ErrInvalidStep)
	}
	return nil
}

// Step is one instruction of a macro sequence.
type Step struct {
	ID        string
	Enabled   bool
	LoopCount int
	Action    Action
}

// NewStep builds an enabled step that runs once.
func NewStep(id string, action Action) (Step, error) {
	s := Step{ID: id, Enabled: true, LoopCount: 1, Action: action}
	if err := s.Validate(); err != nil {
		return Step{}, err
	}
	return s, nil
}

func NewClickStep(id string, target Point, button ClickKind) (Step, error) {
	return NewStep(id, ClickAction{Target: target, Button: button})
}

func NewMoveStep(id string, target Point) (Step, error) {
	return NewStep(id, MoveAction{Target: target})
}

func NewDelayStep(id string, d time.Duration) (Step, error) {
	return NewStep(id, DelayAction{Duration: d})
}

func NewKeyStep(id, key string, mods ...Modifier) (Step, error) {
	return NewStep(id, KeyAction{Key: key, Modifiers: mods})
}

func NewScrollStep(id string, dir ScrollDirection, amount int) (Step, error) {
	return NewStep(id, ScrollAction{Direction: dir, Amount: amount})
}

// Repeat returns a copy of s that runs n times in place.
func (s Step) Repeat(n int) Step {
	s.LoopCount = n
	return s
}

// Disabled returns a copy of s that the interpreter skips.
func (s Step) Disabled() Step {
	s.Enabled = false
	return s
}

func (s Step) Kind() StepKind {
	if s.Action == nil {
		return ""
	}
	return s.Action.Kind()
}

func (s Step) Validate() error {
	if s.Action == nil {
		return fmt.Errorf("%w: step %q has no action", ErrInvalidStep, s.ID)
	}
	if s.LoopCount < 1 {
		return fmt.Errorf("%w: step %q loop_count must be >= 1", ErrInvalidStep, s.ID)
	}
	if err := s.Action.validate(); err != nil {
		return fmt.Errorf("step %q: %w", s.ID, err)
	}
	return nil
}

func (s Step) String() string {
	switch a := s.Action.(type) {
	case ClickAction:
		return fmt.Sprintf("click %s at %s", a.Button, a.Target)
	case MoveAction:
		return fmt.Sprintf("move to %s", a.Target)
	case DelayAction:
		return fmt.Sprintf("delay %s", a.Duration)
	case KeyAction:
		keys := make([]string, 0, len(a.Modifiers)+1)
		for _, m := range a.Modifiers {
			keys = append(keys, string(m))
		}
		return "key " + strings.Join(append(keys, a.Key), "+")
	case ScrollAction:
		return fmt.Sprintf("scroll %s %d", a.Direction, a.Amount)
	}
	return "invalid step"
}

// stepJSON is the flat wire shape of a Step.
type stepJSON struct {
	ID        string          `json:"id"`
	Type      StepKind        `json:"type"`
	Enabled   *bool           `json:"enabled,omitempty"`
	LoopCount int             `json:"loop_count,omitempty"`
	Point     *Point          `json:"coordinates,omitempty"`
	ClickType ClickKind       `json:"click_type,omitempty"`
	DelayMS   *int64          `json:"delay_ms,omitempty"`
	Key       string          `json:"key,omitempty"`
	Modifiers []string        `json:"modifiers,omitempty"`
	Direction ScrollDirection `json:"scroll_direction,omitempty"`
	Amount    *int            `json:"scroll_amount,omitempty"`
}

func (s Step) MarshalJSON() ([]byte, error) {
	enabled := s.Enabled
	out := stepJSON{ID: s.ID, Type: s.Kind(), Enabled: &enabled, LoopCount: s.LoopCount}
	switch a := s.Action.(type) {
	case ClickAction:
		p := a.Target
		out.Point, out.ClickType = &p, a.Button
	case MoveAction:
		p := a.Target
		out.Point = &p
	case DelayAction:
		ms := a.Duration.Milliseconds()
		out.DelayMS = &ms
	case KeyAction:
		out.Key = a.Key
		for _, m := range a.Modifiers {
			out.Modifiers = append(out.Modifiers, string(m))
		}
	case ScrollAction:
		amount := a.Amount
		out.Direction, out.Amount = a.Direction, &amount
	default:
		return nil, fmt.Errorf("%w: step %q has no action", ErrInvalidStep, s.ID)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a step. Missing per-kind fields are
// rejected here so a decoded Step is always executable.
func (s *Step) UnmarshalJSON(data []byte) error {
	var in stepJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	var action Action
	switch in.Type {
	case StepClick:
		if in.Point == nil {
			return fmt.Errorf("%w: click step %q missing coordinates", ErrInvalidStep, in.ID)
		}
		if in.ClickType == "" {
			return fmt.Errorf("%w: click step %q missing click_type", ErrInvalidStep, in.ID)
		}
		action = ClickAction{Target: *in.Point, Button: in.ClickType}
	case StepMove:
		if in.Point == nil {
			return fmt.Errorf("%w: move step %q missing coordinates", ErrInvalidStep, in.ID)
		}
		action = MoveAction{Target: *in.Point}
	case StepDelay:
		if in.DelayMS == nil {
			return fmt.Errorf("%w: delay step %q missing delay_ms", ErrInvalidStep, in.ID)
		}
		action = DelayAction{Duration: time.Duration(*in.DelayMS) * time.Millisecond}
	case StepKey:
		mods := make([]Modifier, 0, len(in.Modifiers))
		for _, raw := range in.Modifiers {
			m, err := ParseModifier(raw)
			if err != nil {
				return fmt.Errorf("%w: key step %q: %v", ErrInvalidStep, in.ID, err)
			}
			mods = append(mods, m)
		}
		action = KeyAction{Key: in.Key, Modifiers: mods}
	case StepScroll:
		if in.Direction == "" || in.Amount == nil {
			return fmt.Errorf("%w: scroll step %q missing direction or amount", ErrInvalidStep, in.ID)
		}
		action = ScrollAction{Direction: in.Direction, Amount: *in.Amount}
	default:
		return fmt.Errorf("%w: unknown step type %q", ErrInvalidStep, in.Type)
	}

	decoded := Step{ID: in.ID, Enabled: true, LoopCount: 1, Action: action}
	if in.Enabled != nil {
		decoded.Enabled = *in.Enabled
	}
	if in.LoopCount != 0 {
		decoded.LoopCount = in.LoopCount
	}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*s = decoded
	return nil
}
