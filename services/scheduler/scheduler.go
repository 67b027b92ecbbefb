// Package scheduler turns profile schedule triggers into timed
// ProfileTriggered events. It never starts automation itself.
//
// Each profile owns at most one job, named by JobID. A trigger becomes one of
// three concrete schedules (see Derive):
//
//   - cron: a five-field expression, bounded by the trigger start and end
//   - interval: start + n*repeat, at least MinRepeatInterval apart
//   - date: a single shot at start, removed once it fires or is skipped
//
// Jobs run on a robfig/cron runner. Firings share a bounded worker pool and
// a job never overlaps itself. Paused jobs stay registered but do not fire.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/events"
)

const DefaultWorkers = 5

// Options configures a Scheduler.
type Options struct {
	Workers  int
	Location *time.Location
}

type job struct {
	entry    cron.EntryID
	profile  *models.Profile
	trigger  models.ScheduleTrigger
	kind     TriggerType
	schedule cron.Schedule
	paused   bool
}

// JobInfo describes a registered job.
type JobInfo struct {
	ProfileID   string      `json:"profile_id"`
	ProfileName string      `json:"profile_name"`
	JobID       string      `json:"job_id"`
	Type        TriggerType `json:"trigger_type"`
	NextRun     *time.Time  `json:"next_run_time,omitempty"`
	Paused      bool        `json:"paused"`
}

// Scheduler holds at most one job per profile id.
type Scheduler struct {
	cron     *cron.Cron
	listener events.Listener
	pool     *semaphore.Weighted
	now      func() time.Time

	mu      sync.Mutex
	jobs    map[string]*job
	running bool
}

func New(listener events.Listener, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if listener == nil {
		listener = events.Discard
	}
	cl := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(opts.Location),
			cron.WithLogger(cl),
			cron.WithChain(cron.SkipIfStillRunning(cl)),
		),
		listener: listener,
		pool:     semaphore.NewWeighted(int64(opts.Workers)),
		now:      time.Now,
		jobs:     make(map[string]*job),
	}
}

// JobID is the job name used for a profile.
func JobID(profileID string) string {
	return "profile_" + profileID
}

// Schedule registers profile's schedule trigger, replacing any job the
// profile already has. The prior job is removed even if the new trigger is
// rejected.
func (s *Scheduler) Schedule(profile *models.Profile) error {
	if profile == nil || profile.Schedule == nil {
		return ErrNoSchedule
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduleLocked(profile, false)
}

// Reschedule replaces the job of an edited profile. A job paused through
// PauseProfile stays paused under its new trigger.
func (s *Scheduler) Reschedule(profile *models.Profile) error {
	if profile == nil || profile.Schedule == nil {
		return ErrNoSchedule
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	paused := false
	if j, ok := s.jobs[profile.ID]; ok {
		paused = j.paused
	}
	return s.scheduleLocked(profile, paused)
}

func (s *Scheduler) scheduleLocked(profile *models.Profile, paused bool) error {
	s.removeLocked(profile.ID)

	trig := *profile.Schedule
	if !trig.Enabled {
		return ErrDisabled
	}
	sched, kind, err := Derive(trig, s.now())
	if err != nil {
		logger.Warn(context.Background(), "Failed to schedule profile %s: %v", profile.ID, err)
		return err
	}

	id := profile.ID
	j := &job{profile: profile.Copy(), trigger: trig, kind: kind, schedule: sched, paused: paused}
	j.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(id) }))
	s.jobs[id] = j

	logger.Info(context.Background(), "Scheduled profile %s (%s) with %s trigger", profile.Name, id, kind)
	return nil
}

// Unschedule removes the job for profileID and reports whether one existed.
func (s *Scheduler) Unschedule(profileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(profileID)
}

func (s *Scheduler) removeLocked(profileID string) bool {
	j, ok := s.jobs[profileID]
	if !ok {
		return false
	}
	s.cron.Remove(j.entry)
	delete(s.jobs, profileID)
	logger.Info(context.Background(), "Unscheduled profile %s", profileID)
	return true
}

func (s *Scheduler) PauseProfile(profileID string) bool {
	return s.setPaused(profileID, true)
}

func (s *Scheduler) ResumeProfile(profileID string) bool {
	return s.setPaused(profileID, false)
}

func (s *Scheduler) setPaused(profileID string, paused bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	j, ok := s.jobs[profileID]
	if !ok {
		return false
	}
	j.paused = paused
	return true
}

// PauseAll pauses every job and returns how many were newly paused.
func (s *Scheduler) PauseAll() int {
	return s.setAllPaused(true)
}

// ResumeAll resumes every paused job and returns how many were resumed.
func (s *Scheduler) ResumeAll() int {
	return s.setAllPaused(false)
}

func (s *Scheduler) setAllPaused(paused bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	n := 0
	for _, j := range s.jobs {
		if j.paused != paused {
			j.paused = paused
			n++
		}
	}
	if n > 0 {
		logger.Info(context.Background(), "Set paused=%v on %d scheduled jobs", paused, n)
	}
	return n
}

// sweepLocked drops paused single-shot jobs whose time has passed. Their
// firing was skipped and cron will not offer them again.
func (s *Scheduler) sweepLocked() {
	now := s.now()
	for id, j := range s.jobs {
		if j.paused && j.kind == TriggerDate && j.schedule.Next(now).IsZero() {
			logger.Info(context.Background(), "Dropping expired paused job for profile %s", id)
			s.removeLocked(id)
		}
	}
}

// Stats summarizes the job table. NextRun and NextProfile name the earliest
// unpaused job, if any.
type Stats struct {
	Running     bool       `json:"running"`
	TotalJobs   int        `json:"total_jobs"`
	ActiveJobs  int        `json:"active_jobs"`
	PausedJobs  int        `json:"paused_jobs"`
	NextRun     *time.Time `json:"next_run_time,omitempty"`
	NextProfile string     `json:"next_profile_id,omitempty"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	st := Stats{Running: s.running, TotalJobs: len(s.jobs)}
	for id, j := range s.jobs {
		if j.paused {
			st.PausedJobs++
			continue
		}
		st.ActiveJobs++
		info := s.infoLocked(id, j)
		if info.NextRun != nil && (st.NextRun == nil || info.NextRun.Before(*st.NextRun)) {
			st.NextRun = info.NextRun
			st.NextProfile = id
		}
	}
	return st
}

// Jobs lists registered jobs ordered by profile id.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	out := make([]JobInfo, 0, len(s.jobs))
	for id, j := range s.jobs {
		out = append(out, s.infoLocked(id, j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ProfileID < out[b].ProfileID })
	return out
}

// Job returns the job of one profile.
func (s *Scheduler) Job(profileID string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	j, ok := s.jobs[profileID]
	if !ok {
		return JobInfo{}, false
	}
	return s.infoLocked(profileID, j), true
}

func (s *Scheduler) infoLocked(id string, j *job) JobInfo {
	info := JobInfo{
		ProfileID:   id,
		ProfileName: j.profile.Name,
		JobID:       JobID(id),
		Type:        j.kind,
		Paused:      j.paused,
	}
	if j.paused {
		return info
	}
	next := s.cron.Entry(j.entry).Next
	if next.IsZero() {
		// Not computed until the cron runner starts.
		next = j.schedule.Next(s.now())
	}
	if !next.IsZero() {
		info.NextRun = &next
	}
	return info
}

// Start begins firing jobs. It is idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	logger.Info(context.Background(), "Automation scheduler started with %d jobs", len(s.jobs))
}

// Stop halts the runner and waits for in-flight firings or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		logger.Info(ctx, "Automation scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// fire runs on a cron goroutine. Concurrency across jobs is bounded by the
// pool; SkipIfStillRunning keeps each job single-instance.
func (s *Scheduler) fire(profileID string) {
	at := s.now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "Scheduled job for %s panicked: %v\n%s", profileID, r, debug.Stack())
			s.emitError(profileID, fmt.Errorf("panic: %v", r), at)
		}
	}()

	if err := s.pool.Acquire(context.Background(), 1); err != nil {
		s.emitError(profileID, err, at)
		return
	}
	defer s.pool.Release(1)

	s.mu.Lock()
	j, ok := s.jobs[profileID]
	if !ok || j.paused {
		if ok && j.kind == TriggerDate {
			// A skipped single shot never comes back.
			s.removeLocked(profileID)
		}
		s.mu.Unlock()
		return
	}
	profile := j.profile.Copy()
	if j.kind == TriggerDate {
		s.removeLocked(profileID)
	}
	s.mu.Unlock()

	logger.Info(context.Background(), "Scheduled trigger fired for profile %s", profile.Name)
	events.Dispatch(s.listener, events.ProfileTriggered{
		ProfileID:   profileID,
		Profile:     profile,
		TriggerTime: at,
	})
}

func (s *Scheduler) emitError(profileID string, err error, at time.Time) {
	events.Dispatch(s.listener, events.ScheduleError{ProfileID: profileID, Err: err.Error(), At: at})
}

// cronLogger routes cron's own logging through pkg/logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug(context.Background(), "cron %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error(context.Background(), "cron %s: %v %v", msg, err, keysAndValues)
}
