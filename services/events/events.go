// Package events defines the closed set of lifecycle events raised by the
// automation core and the listener plumbing that delivers them.
package events

import (
	"time"

	"github.com/clickweave/clickweave/models"
)

// Kind names an event variant on the wire (SSE, MCP).
type Kind string

const (
	KindStarted          Kind = "started"
	KindStopped          Kind = "stopped"
	KindPaused           Kind = "paused"
	KindResumed          Kind = "resumed"
	KindClick            Kind = "click"
	KindStepExecuted     Kind = "step_executed"
	KindPixelMatched     Kind = "pixel_matched"
	KindProfileTriggered Kind = "profile_triggered"
	KindScheduleError    Kind = "schedule_error"
)

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	isEvent()
}

// Started is raised once a session worker has been spawned.
type Started struct {
	Profile models.Profile `json:"profile"`
	At      time.Time      `json:"at"`
}

// Stopped is raised exactly once per session, carrying the finalized log.
type Stopped struct {
	Reason   models.StopReason   `json:"reason"`
	Err      string              `json:"error,omitempty"`
	Log      models.ExecutionLog `json:"log"`
	Detached bool                `json:"detached,omitempty"`
}

type Paused struct {
	Profile models.Profile `json:"profile"`
}

type Resumed struct {
	Profile models.Profile `json:"profile"`
}

// Click is raised after each click-mode click.
type Click struct {
	Point     models.Point     `json:"coordinates"`
	ClickType models.ClickKind `json:"click_type"`
	Count     int              `json:"click_count"`
}

// StepExecuted is raised after each macro step repetition.
type StepExecuted struct {
	Step  models.Step `json:"step"`
	Index int         `json:"index"`
	Count int         `json:"step_count"`
}

// PixelMatched is raised by the pixel watcher when a trigger condition
// becomes true.
type PixelMatched struct {
	TriggerID string              `json:"trigger_id"`
	Trigger   models.PixelTrigger `json:"trigger"`
	Color     models.RGB          `json:"current_color"`
	At        time.Time           `json:"timestamp"`
}

// ProfileTriggered is raised by the scheduler when a job fires.
type ProfileTriggered struct {
	ProfileID   string          `json:"profile_id"`
	Profile     *models.Profile `json:"profile,omitempty"`
	TriggerTime time.Time       `json:"trigger_time"`
}

type ScheduleError struct {
	ProfileID string    `json:"profile_id"`
	Err       string    `json:"error"`
	At        time.Time `json:"timestamp"`
}

func (Started) Kind() Kind          { return KindStarted }
func (Stopped) Kind() Kind          { return KindStopped }
func (Paused) Kind() Kind           { return KindPaused }
func (Resumed) Kind() Kind          { return KindResumed }
func (Click) Kind() Kind            { return KindClick }
func (StepExecuted) Kind() Kind     { return KindStepExecuted }
func (PixelMatched) Kind() Kind     { return KindPixelMatched }
func (ProfileTriggered) Kind() Kind { return KindProfileTriggered }
func (ScheduleError) Kind() Kind    { return KindScheduleError }

func (Started) isEvent()          {}
func (Stopped) isEvent()          {}
func (Paused) isEvent()           {}
func (Resumed) isEvent()          {}
func (Click) isEvent()            {}
func (StepExecuted) isEvent()     {}
func (PixelMatched) isEvent()     {}
func (ProfileTriggered) isEvent() {}
func (ScheduleError) isEvent()    {}
