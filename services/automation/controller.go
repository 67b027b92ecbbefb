package automation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/events"
)

// State is the controller lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

var (
	ErrAlreadyRunning = errors.New("automation already running")
	ErrNilProfile     = errors.New("nil profile")
)

const (
	DefaultStopGrace  = 2 * time.Second
	DefaultMoveSettle = 50 * time.Millisecond
	DefaultLoopGap    = 50 * time.Millisecond
)

// Options tunes a Controller. Zero durations fall back to the defaults.
type Options struct {
	StopGrace  time.Duration
	MoveSettle time.Duration
	LoopGap    time.Duration
	Failsafe   Failsafe
	Timing     *TimingSource
}

func DefaultOptions() Options {
	return Options{
		StopGrace:  DefaultStopGrace,
		MoveSettle: DefaultMoveSettle,
		LoopGap:    DefaultLoopGap,
		Failsafe:   DefaultFailsafe(),
		Timing:     NewTimingSource(),
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	State             State         `json:"state"`
	SessionID         string        `json:"session_id,omitempty"`
	ProfileID         string        `json:"profile_id,omitempty"`
	ProfileName       string        `json:"profile_name,omitempty"`
	Mode              string        `json:"mode,omitempty"`
	Clicks            int           `json:"clicks"`
	Steps             int           `json:"steps"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	Elapsed           time.Duration `json:"elapsed_ns"`
	AverageIntervalMS *float64      `json:"average_interval_ms,omitempty"`
}

// Controller runs at most one automation session at a time. Control calls
// are serialized under mu; the worker goroutine never takes mu, so a control
// call waiting on the worker cannot deadlock with it.
//
// Listeners are invoked synchronously, sometimes while mu is held, and must
// not call back into the controller on the same goroutine.
type Controller struct {
	mu       sync.Mutex
	surface  input.Surface
	listener events.Listener
	opts     Options

	failsafe atomic.Pointer[Failsafe]
	sess     atomic.Pointer[session]
	last     atomic.Pointer[models.ExecutionLog]
}

func NewController(surface input.Surface, listener events.Listener, opts Options) *Controller {
	def := DefaultOptions()
	if opts.StopGrace <= 0 {
		opts.StopGrace = def.StopGrace
	}
	if opts.MoveSettle < 0 {
		opts.MoveSettle = 0
	}
	if opts.LoopGap < 0 {
		opts.LoopGap = 0
	}
	if opts.Timing == nil {
		opts.Timing = def.Timing
	}
	if listener == nil {
		listener = events.Discard
	}
	c := &Controller{surface: surface, listener: listener, opts: opts}
	fs := opts.Failsafe
	c.failsafe.Store(&fs)
	return c
}

// SetFailsafe replaces the failsafe configuration. A running session picks
// it up on its next cycle.
func (c *Controller) SetFailsafe(f Failsafe) {
	c.failsafe.Store(&f)
}

func (c *Controller) Failsafe() Failsafe {
	return *c.failsafe.Load()
}

// Start begins a session for profile. It returns false if a session is
// already live or the profile is invalid.
func (c *Controller) Start(profile *models.Profile) bool {
	return c.TryStart(profile) == nil
}

// TryStart is Start with the reason for refusal.
func (c *Controller) TryStart(profile *models.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if profile == nil {
		return ErrNilProfile
	}
	if s := c.sess.Load(); s != nil {
		logger.Warn(s.ctx, "Automation already running for profile %s", s.profile.Name)
		return ErrAlreadyRunning
	}
	if err := profile.Validate(); err != nil {
		logger.Warn(context.Background(), "Refusing to start profile %s: %v", profile.ID, err)
		return err
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(logger.WithSessionID(context.Background(), id))
	now := time.Now()

	cp := profile.Copy()
	cp.IsActive = true
	cp.IsPaused = false

	s := &session{
		id:      id,
		profile: cp,
		surface: guardedSurface{session: ctx, inner: c.surface},
		ctx:     ctx,
		cancel:  cancel,
		gate:    newPauseGate(),
		done:    make(chan struct{}),
		started: now,
		log: models.ExecutionLog{
			ID:          id,
			ProfileID:   cp.ID,
			ProfileName: cp.Name,
			StartTime:   now,
		},
	}
	c.sess.Store(s)

	mode := "click"
	if cp.IsMacro() {
		mode = "macro"
	}
	logger.Info(ctx, "Starting %s automation for profile: %s", mode, cp.Name)
	events.Dispatch(c.listener, events.Started{Profile: s.snapshot(), At: now})

	go c.run(s)
	return nil
}

// Stop ends the live session, waiting up to the stop grace for the worker.
// It is idempotent and always succeeds; a worker that misses the grace is
// detached and the Stopped event says so.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess.Load()
	if s == nil {
		return true
	}
	if !s.claim() {
		// The worker is already finishing on its own.
		c.await(s)
		return true
	}

	logger.Info(s.ctx, "Stopping automation...")
	s.cancel()
	detached := !c.await(s)
	if detached {
		logger.Warn(s.ctx, "Worker did not exit within %s, detaching", c.opts.StopGrace)
	}
	c.finalize(s, models.StopManual, "", detached)
	return true
}

// EmergencyStop cancels the live session without waiting. It is safe to call
// in any state and always returns true.
func (c *Controller) EmergencyStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess.Load()
	if s == nil {
		logger.Warn(context.Background(), "Emergency stop triggered with no session running")
		return true
	}
	logger.Warn(s.ctx, "Emergency stop triggered!")
	if !s.claim() {
		return true
	}
	s.cancel()
	c.finalize(s, models.StopEmergency, "", false)
	return true
}

func (c *Controller) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess.Load()
	if s == nil || s.ended.Load() || !s.gate.Pause() {
		return false
	}
	s.setFlags(true, true)
	logger.Info(s.ctx, "Automation paused")
	events.Dispatch(c.listener, events.Paused{Profile: s.snapshot()})
	return true
}

func (c *Controller) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sess.Load()
	if s == nil || s.ended.Load() || !s.gate.Resume() {
		return false
	}
	s.setFlags(true, false)
	logger.Info(s.ctx, "Automation resumed")
	events.Dispatch(c.listener, events.Resumed{Profile: s.snapshot()})
	return true
}

func (c *Controller) State() State {
	s := c.sess.Load()
	switch {
	case s == nil:
		return StateIdle
	case s.gate.Paused():
		return StatePaused
	default:
		return StateRunning
	}
}

func (c *Controller) IsRunning() bool { return c.State() != StateIdle }

// Current returns a copy of the profile of the live session.
func (c *Controller) Current() (models.Profile, bool) {
	s := c.sess.Load()
	if s == nil {
		return models.Profile{}, false
	}
	return s.snapshot(), true
}

// LastLog returns the log of the most recently finished session.
func (c *Controller) LastLog() (models.ExecutionLog, bool) {
	l := c.last.Load()
	if l == nil {
		return models.ExecutionLog{}, false
	}
	return *l, true
}

func (c *Controller) Status() Status {
	s := c.sess.Load()
	if s == nil {
		return Status{State: StateIdle}
	}
	st := Status{
		State:       c.State(),
		SessionID:   s.id,
		ProfileID:   s.profile.ID,
		ProfileName: s.profile.Name,
		Mode:        "click",
		Clicks:      int(s.clicks.Load()),
		Steps:       int(s.steps.Load()),
		Elapsed:     time.Since(s.started),
	}
	if s.profile.IsMacro() {
		st.Mode = "macro"
	}
	started := s.started
	st.StartedAt = &started
	if n := st.Clicks + st.Steps; n > 0 {
		avg := float64(st.Elapsed.Microseconds()) / 1000 / float64(n)
		st.AverageIntervalMS = &avg
	}
	return st
}

// await waits for the worker to exit, up to the stop grace.
func (c *Controller) await(s *session) bool {
	t := time.NewTimer(c.opts.StopGrace)
	defer t.Stop()
	select {
	case <-s.done:
		return true
	case <-t.C:
		return false
	}
}

// finalize closes out a claimed session. Callers must hold the claim.
func (c *Controller) finalize(s *session, reason models.StopReason, errMsg string, detached bool) {
	s.cancel()
	s.gate.Resume()
	now := time.Now()

	s.mu.Lock()
	s.profile.IsActive = false
	s.profile.IsPaused = false
	s.log.Finalize(now, int(s.clicks.Load()), int(s.steps.Load()), reason, errMsg)
	s.log.Detached = detached
	log := s.log
	s.mu.Unlock()

	c.last.Store(&log)
	c.sess.CompareAndSwap(s, nil)

	logger.Info(s.ctx, "Automation stopped (%s). Clicks: %d, steps: %d", reason, log.TotalClicks, log.TotalSteps)
	events.Dispatch(c.listener, events.Stopped{
		Reason:   reason,
		Err:      errMsg,
		Log:      log,
		Detached: detached,
	})
}

// run is the worker goroutine body. A cancelled session returns an empty
// reason; whoever cancelled it already holds the claim.
func (c *Controller) run(s *session) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			logger.Error(s.ctx, "Automation worker panic: %v\n%s", r, debug.Stack())
			if s.claim() {
				c.finalize(s, models.StopError, fmt.Sprintf("panic: %v", r), false)
			}
		}
	}()

	var (
		reason models.StopReason
		err    error
	)
	if s.profile.IsMacro() {
		reason, err = c.runMacro(s)
	} else {
		reason, err = c.runClicks(s)
	}
	if reason == "" || !s.claim() {
		return
	}

	msg := ""
	if err != nil {
		msg = err.Error()
		logger.Error(s.ctx, "Automation failed: %v", err)
	}
	c.finalize(s, reason, msg, false)
}

// interrupted reports whether err (or the session) signals cancellation
// rather than a genuine failure.
func interrupted(s *session, err error) bool {
	return s.ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrSessionEnded)
}
