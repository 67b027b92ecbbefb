// Package coordinator owns profiles and wires the session controller, the
// pixel watcher and the scheduler together.
package coordinator

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/automation"
	"github.com/clickweave/clickweave/services/events"
	"github.com/clickweave/clickweave/services/pixel"
	"github.com/clickweave/clickweave/services/scheduler"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNoProfile       = errors.New("no active or recent profile to start")
)

// Store persists profiles and execution logs.
type Store interface {
	SaveProfile(*models.Profile) error
	UpdateProfile(*models.Profile) error
	ListProfiles() ([]*models.Profile, error)
	DeleteProfile(id string) error
	SaveExecutionLog(*models.ExecutionLog) error
	ListExecutionLogs(profileID string, limit int) ([]*models.ExecutionLog, error)
	PruneExecutionLogs(max int) (int, error)
	ClearExecutionLogs() error
	SetLastProfileID(id string) error
	LastProfileID() (string, error)
}

type Options struct {
	Controller             automation.Options
	Scheduler              scheduler.Options
	MaxLogEntries          int
	StopWatcherOnEmergency bool
}

// Status is the combined view of all components.
type Status struct {
	Automation      automation.Status    `json:"automation"`
	Watcher         pixel.Stats          `json:"pixel_watcher"`
	Schedules       []scheduler.JobInfo  `json:"schedules"`
	ActiveProfileID string               `json:"active_profile_id,omitempty"`
	LastProfileID   string               `json:"last_profile_id,omitempty"`
	TotalProfiles   int                  `json:"total_profiles"`
	LastLog         *models.ExecutionLog `json:"last_log,omitempty"`
}

// Coordinator is the single owner of the automation components. Control
// calls are serialized under mu. Event handling only touches state under
// stateMu, so events raised while a control call holds mu never block.
type Coordinator struct {
	store Store
	opts  Options
	hub   *events.Hub

	ctrl    *automation.Controller
	watcher *pixel.Watcher
	sched   *scheduler.Scheduler

	mu sync.Mutex

	stateMu  sync.Mutex
	profiles map[string]*models.Profile
	activeID string
	lastID   string
}

func New(store Store, backend input.Backend, opts Options) *Coordinator {
	c := &Coordinator{
		store:    store,
		opts:     opts,
		hub:      events.NewHub(),
		profiles: make(map[string]*models.Profile),
	}
	c.ctrl = automation.NewController(backend, c, opts.Controller)
	c.watcher = pixel.NewWatcher(backend, c)
	c.sched = scheduler.New(c, opts.Scheduler)
	return c
}

// Hub is where every event is republished.
func (c *Coordinator) Hub() *events.Hub { return c.hub }

func (c *Coordinator) Controller() *automation.Controller { return c.ctrl }

// Init loads profiles, arms their triggers and starts the scheduler and
// watcher.
func (c *Coordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	list, err := c.store.ListProfiles()
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}
	last, err := c.store.LastProfileID()
	if err != nil {
		logger.Warn(ctx, "Failed to read last profile: %v", err)
	}

	c.stateMu.Lock()
	for _, p := range list {
		p.IsActive, p.IsPaused = false, false
		c.profiles[p.ID] = p
	}
	c.lastID = last
	c.stateMu.Unlock()

	for _, p := range list {
		if err := c.arm(ctx, p); err != nil {
			logger.Warn(ctx, "Trigger for profile %s not armed: %v", p.Name, err)
		}
	}
	c.sched.Start()
	logger.Info(ctx, "Loaded %d profiles", len(list))
	return nil
}

// Shutdown stops the session and all background workers.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctrl.Stop()
	c.watcher.Stop()
	return c.sched.Stop(ctx)
}

// arm re-registers p's schedule and pixel trigger. A paused schedule stays
// paused across edits.
func (c *Coordinator) arm(ctx context.Context, p *models.Profile) error {
	c.watcher.RemoveTrigger(p.ID)

	if p.ScheduleArmed() {
		if err := c.sched.Reschedule(p); err != nil {
			return err
		}
	} else {
		c.sched.Unschedule(p.ID)
	}
	if p.PixelArmed() {
		if err := c.watcher.AddTrigger(ctx, p.ID, *p.PixelTrigger, nil); err != nil {
			return err
		}
		c.watcher.Start()
	}
	if len(c.watcher.TriggerIDs()) == 0 {
		c.watcher.Stop()
	}
	return nil
}

// ============= Profiles =============

func (c *Coordinator) Profiles() []models.Profile {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	out := make([]models.Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, *p.Copy())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (c *Coordinator) Profile(id string) (models.Profile, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	p, ok := c.profiles[id]
	if !ok {
		return models.Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return *p.Copy(), nil
}

// CreateProfile stores a new manual click profile with default settings.
func (c *Coordinator) CreateProfile(ctx context.Context, name, description string) (models.Profile, error) {
	p := models.NewProfile(uuid.New().String(), strings.TrimSpace(name))
	p.Description = description
	if err := c.SaveProfile(ctx, p); err != nil {
		return models.Profile{}, err
	}
	return *p.Copy(), nil
}

// SaveProfile validates, persists and re-arms p. Schedule triggers that can
// never fire are rejected before anything is written.
func (c *Coordinator) SaveProfile(ctx context.Context, p *models.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ScheduleArmed() {
		if _, _, err := scheduler.Derive(*p.Schedule, time.Now()); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cp := p.Copy()
	cp.IsActive, cp.IsPaused = false, false

	c.stateMu.Lock()
	prev, exists := c.profiles[cp.ID]
	if exists && cp.CreatedAt.IsZero() {
		cp.CreatedAt = prev.CreatedAt
	}
	c.stateMu.Unlock()

	var err error
	if exists {
		err = c.store.UpdateProfile(cp)
	} else {
		cp.UpdatedAt = time.Now()
		err = c.store.SaveProfile(cp)
	}
	if err != nil {
		return fmt.Errorf("save profile %s: %w", cp.ID, err)
	}

	c.stateMu.Lock()
	c.profiles[cp.ID] = cp
	if c.activeID == cp.ID {
		cp.IsActive = true
	}
	c.stateMu.Unlock()

	logger.Debug(ctx, "Saved profile: %s", cp.Name)
	return c.arm(ctx, cp)
}

// DeleteProfile stops the profile if it is running, disarms and removes it.
func (c *Coordinator) DeleteProfile(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stateMu.Lock()
	_, ok := c.profiles[id]
	active := c.activeID == id
	c.stateMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	if active {
		c.ctrl.Stop()
	}
	c.sched.Unschedule(id)
	c.watcher.RemoveTrigger(id)
	if len(c.watcher.TriggerIDs()) == 0 {
		c.watcher.Stop()
	}
	if err := c.store.DeleteProfile(id); err != nil {
		return fmt.Errorf("delete profile %s: %w", id, err)
	}

	c.stateMu.Lock()
	delete(c.profiles, id)
	c.stateMu.Unlock()
	logger.Info(ctx, "Deleted profile: %s", id)
	return nil
}

// ============= Session control =============

func (c *Coordinator) StartProfile(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startLocked(ctx, id)
}

func (c *Coordinator) startLocked(ctx context.Context, id string) error {
	c.stateMu.Lock()
	p, ok := c.profiles[id]
	var cp *models.Profile
	if ok {
		cp = p.Copy()
	}
	c.stateMu.Unlock()
	if !ok {
		logger.Error(ctx, "Profile not found: %s", id)
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return c.ctrl.TryStart(cp)
}

func (c *Coordinator) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.Stop()
}

func (c *Coordinator) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.Pause()
}

func (c *Coordinator) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctrl.Resume()
}

// EmergencyStop halts the session and, when configured, pixel monitoring.
func (c *Coordinator) EmergencyStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.ctrl.EmergencyStop()
	if c.opts.StopWatcherOnEmergency && c.watcher.IsRunning() {
		ok = c.watcher.Stop() && ok
	}
	return ok
}

// ToggleStartStop stops a live session, or starts the active or most
// recently used profile. It returns the resulting controller state.
func (c *Coordinator) ToggleStartStop(ctx context.Context) (automation.State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctrl.IsRunning() {
		c.ctrl.Stop()
		return c.ctrl.State(), nil
	}

	c.stateMu.Lock()
	id := c.activeID
	if id == "" {
		id = c.lastID
	}
	c.stateMu.Unlock()
	if id == "" {
		return c.ctrl.State(), ErrNoProfile
	}
	if err := c.startLocked(ctx, id); err != nil {
		return c.ctrl.State(), err
	}
	return c.ctrl.State(), nil
}

// TogglePause flips pause on a live session. It returns false when idle.
func (c *Coordinator) TogglePause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.ctrl.State() {
	case automation.StateRunning:
		return c.ctrl.Pause()
	case automation.StatePaused:
		return c.ctrl.Resume()
	}
	return false
}

func (c *Coordinator) SetFailsafe(f automation.Failsafe) {
	c.ctrl.SetFailsafe(f)
}

func (c *Coordinator) Status() Status {
	c.stateMu.Lock()
	st := Status{
		ActiveProfileID: c.activeID,
		LastProfileID:   c.lastID,
		TotalProfiles:   len(c.profiles),
	}
	c.stateMu.Unlock()

	st.Automation = c.ctrl.Status()
	st.Watcher = c.watcher.Stats()
	st.Schedules = c.sched.Jobs()
	if l, ok := c.ctrl.LastLog(); ok {
		st.LastLog = &l
	}
	return st
}

// ============= Triggers =============

func (c *Coordinator) Schedules() []scheduler.JobInfo {
	return c.sched.Jobs()
}

// PreviewSchedule lists the next n fire times of a trigger.
func (c *Coordinator) PreviewSchedule(t models.ScheduleTrigger, n int) ([]time.Time, error) {
	return scheduler.NextRuns(t, time.Now(), n)
}

func (c *Coordinator) PauseSchedule(profileID string) bool {
	return c.sched.PauseProfile(profileID)
}

func (c *Coordinator) ResumeSchedule(profileID string) bool {
	return c.sched.ResumeProfile(profileID)
}

func (c *Coordinator) PauseAllSchedules() int  { return c.sched.PauseAll() }
func (c *Coordinator) ResumeAllSchedules() int { return c.sched.ResumeAll() }

func (c *Coordinator) ScheduleStats() scheduler.Stats {
	return c.sched.Stats()
}

func (c *Coordinator) PixelColor(ctx context.Context, p models.Point) (models.RGB, error) {
	return c.watcher.Color(ctx, p)
}

func (c *Coordinator) ProbePixel(ctx context.Context, t models.PixelTrigger) (pixel.ProbeResult, error) {
	return c.watcher.Probe(ctx, t)
}

// StartWatcher restarts pixel monitoring, e.g. after an emergency stop.
func (c *Coordinator) StartWatcher() bool {
	return c.watcher.Start()
}

func (c *Coordinator) StopWatcher() bool {
	return c.watcher.Stop()
}

// ============= Execution logs =============

func (c *Coordinator) Logs(profileID string, limit int) ([]*models.ExecutionLog, error) {
	return c.store.ListExecutionLogs(profileID, limit)
}

func (c *Coordinator) ClearLogs() error {
	return c.store.ClearExecutionLogs()
}

// ExportCSV writes logs newest first with a header row.
func (c *Coordinator) ExportCSV(w io.Writer, profileID string) error {
	logs, err := c.store.ListExecutionLogs(profileID, 0)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(models.CSVHeader); err != nil {
		return err
	}
	for _, l := range logs {
		if err := cw.Write(l.CSVRow()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ============= Events =============

// OnEvent records session state, persists finished logs and turns trigger
// events into session starts. Every event is republished on the hub, after
// its side effects except for triggers, which are published before the
// session they cause starts.
func (c *Coordinator) OnEvent(e events.Event) {
	ctx := context.Background()
	switch ev := e.(type) {
	case events.Started:
		c.onStarted(ctx, ev)
	case events.Stopped:
		c.onStopped(ctx, ev)
	case events.Paused:
		c.setFlags(ev.Profile.ID, true, true)
	case events.Resumed:
		c.setFlags(ev.Profile.ID, true, false)
	case events.ProfileTriggered:
		logger.Info(ctx, "Scheduled profile triggered: %s", ev.ProfileID)
		c.hub.OnEvent(e)
		go c.startTriggered(ctx, ev.ProfileID)
		return
	case events.PixelMatched:
		logger.Info(ctx, "Pixel trigger matched for profile %s", ev.TriggerID)
		c.hub.OnEvent(e)
		go c.startTriggered(ctx, ev.TriggerID)
		return
	case events.ScheduleError:
		logger.Error(ctx, "Scheduler error for profile %s: %s", ev.ProfileID, ev.Err)
	case events.Click, events.StepExecuted:
	}
	c.hub.OnEvent(e)
}

func (c *Coordinator) onStarted(ctx context.Context, ev events.Started) {
	c.stateMu.Lock()
	c.activeID = ev.Profile.ID
	c.lastID = ev.Profile.ID
	if p, ok := c.profiles[ev.Profile.ID]; ok {
		p.IsActive, p.IsPaused = true, false
	}
	c.stateMu.Unlock()

	if err := c.store.SetLastProfileID(ev.Profile.ID); err != nil {
		logger.Warn(ctx, "Failed to remember last profile: %v", err)
	}
	logger.Info(ctx, "Automation started: %s", ev.Profile.Name)
}

func (c *Coordinator) onStopped(ctx context.Context, ev events.Stopped) {
	c.stateMu.Lock()
	if p, ok := c.profiles[ev.Log.ProfileID]; ok {
		p.IsActive, p.IsPaused = false, false
	}
	if c.activeID == ev.Log.ProfileID {
		c.activeID = ""
	}
	c.stateMu.Unlock()

	log := ev.Log
	if err := c.store.SaveExecutionLog(&log); err != nil {
		logger.Error(ctx, "Failed to save execution log %s: %v", log.ID, err)
	} else if n, err := c.store.PruneExecutionLogs(c.opts.MaxLogEntries); err != nil {
		logger.Warn(ctx, "Failed to prune execution logs: %v", err)
	} else if n > 0 {
		logger.Debug(ctx, "Pruned %d execution logs", n)
	}
	logger.Info(ctx, "Automation stopped: %s", ev.Reason)
}

func (c *Coordinator) setFlags(id string, active, paused bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if p, ok := c.profiles[id]; ok {
		p.IsActive, p.IsPaused = active, paused
	}
}

// startTriggered runs on its own goroutine so the scheduler and watcher
// never wait on mu.
func (c *Coordinator) startTriggered(ctx context.Context, id string) {
	if c.ctrl.IsRunning() {
		logger.Info(ctx, "Automation already running, ignoring trigger for %s", id)
		return
	}
	if err := c.StartProfile(ctx, id); err != nil {
		logger.Warn(ctx, "Triggered start of %s failed: %v", id, err)
	}
}
