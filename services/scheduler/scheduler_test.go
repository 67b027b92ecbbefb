package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/services/events"
	"github.com/clickweave/clickweave/services/scheduler"
)

func scheduledProfile(id string, trig models.ScheduleTrigger) *models.Profile {
	p := models.NewProfile(id, "scheduled "+id)
	p.Trigger = models.TriggerScheduled
	trig.Enabled = true
	p.Schedule = &trig
	return p
}

func TestPastSingleShotRejected(t *testing.T) {
	s := scheduler.New(nil, scheduler.Options{})
	p := scheduledProfile("p1", models.ScheduleTrigger{Start: time.Now().Add(-time.Minute)})

	err := s.Schedule(p)
	assert.ErrorIs(t, err, scheduler.ErrStartInPast)
	assert.Empty(t, s.Jobs())
}

func TestPastStartWithRepeatAccepted(t *testing.T) {
	s := scheduler.New(nil, scheduler.Options{})
	p := scheduledProfile("p1", models.ScheduleTrigger{
		Start:          time.Now().Add(-time.Hour),
		RepeatInterval: 10 * time.Minute,
	})
	require.NoError(t, s.Schedule(p))

	job, ok := s.Job("p1")
	require.True(t, ok)
	assert.Equal(t, scheduler.TriggerInterval, job.Type)
	assert.Equal(t, "profile_p1", job.JobID)
	require.NotNil(t, job.NextRun)
	assert.True(t, job.NextRun.After(time.Now()))
}

func TestMalformedCronRejectedAtRegistration(t *testing.T) {
	s := scheduler.New(nil, scheduler.Options{})
	for _, expr := range []string{"* * *", "0 0 * * * *", "61 * * * *", "@daily"} {
		p := scheduledProfile("p1", models.ScheduleTrigger{Start: time.Now(), CronExpression: expr})
		assert.ErrorIs(t, s.Schedule(p), scheduler.ErrInvalidCron, expr)
	}
	assert.Empty(t, s.Jobs())
	assert.NoError(t, scheduler.ValidateCron("*/5 9-17 * * 1-5"))
}

func TestOneJobPerProfile(t *testing.T) {
	s := scheduler.New(nil, scheduler.Options{})
	future := time.Now().Add(time.Hour)

	require.NoError(t, s.Schedule(scheduledProfile("p1", models.ScheduleTrigger{Start: future})))
	require.NoError(t, s.Schedule(scheduledProfile("p1", models.ScheduleTrigger{Start: future, CronExpression: "0 9 * * *"})))
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, scheduler.TriggerCron, jobs[0].Type)

	// A rejected re-registration still removes the old job.
	assert.Error(t, s.Schedule(scheduledProfile("p1", models.ScheduleTrigger{Start: time.Now().Add(-time.Hour)})))
	assert.Empty(t, s.Jobs())

	assert.False(t, s.Unschedule("p1"))
}

func TestDisabledOrMissingTrigger(t *testing.T) {
	s := scheduler.New(nil, scheduler.Options{})
	assert.ErrorIs(t, s.Schedule(models.NewProfile("x", "x")), scheduler.ErrNoSchedule)

	p := scheduledProfile("p1", models.ScheduleTrigger{Start: time.Now().Add(time.Hour)})
	p.Schedule.Enabled = false
	assert.ErrorIs(t, s.Schedule(p), scheduler.ErrDisabled)
}

func TestIntervalNext(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	trig := models.ScheduleTrigger{Start: start, RepeatInterval: 10 * time.Minute, End: &end}

	sched, kind, err := scheduler.Derive(trig, start.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, scheduler.TriggerInterval, kind)

	assert.Equal(t, start, sched.Next(start.Add(-time.Hour)))
	assert.Equal(t, start.Add(10*time.Minute), sched.Next(start))
	assert.Equal(t, start.Add(30*time.Minute), sched.Next(start.Add(25*time.Minute)))
	assert.Equal(t, end, sched.Next(start.Add(55*time.Minute)))
	assert.True(t, sched.Next(end).IsZero(), "nothing after end")
}

func TestCronBoundedByStart(t *testing.T) {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.Local) // a Monday
	trig := models.ScheduleTrigger{Start: start, CronExpression: "0 9 * * 1"}

	runs, err := scheduler.NextRuns(trig, start.Add(-30*24*time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.True(t, start.Equal(runs[0]), runs[0])
	assert.True(t, start.AddDate(0, 0, 7).Equal(runs[1]), runs[1])
	assert.True(t, start.AddDate(0, 0, 14).Equal(runs[2]), runs[2])
}

func TestSingleShotFiresOnceAndIsRemoved(t *testing.T) {
	got := make(chan events.Event, 4)
	s := scheduler.New(events.ListenerFunc(func(e events.Event) { got <- e }), scheduler.Options{})
	p := scheduledProfile("p1", models.ScheduleTrigger{Start: time.Now().Add(300 * time.Millisecond)})
	require.NoError(t, s.Schedule(p))

	s.Start()
	s.Start()
	defer func() { require.NoError(t, s.Stop(context.Background())) }()

	select {
	case e := <-got:
		ev, ok := e.(events.ProfileTriggered)
		require.True(t, ok)
		assert.Equal(t, "p1", ev.ProfileID)
		require.NotNil(t, ev.Profile)
		assert.Equal(t, p.Name, ev.Profile.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job never fired")
	}
	assert.Eventually(t, func() bool { return len(s.Jobs()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestPausedJobDoesNotFire(t *testing.T) {
	got := make(chan events.Event, 4)
	s := scheduler.New(events.ListenerFunc(func(e events.Event) { got <- e }), scheduler.Options{})
	p := scheduledProfile("p1", models.ScheduleTrigger{Start: time.Now().Add(200 * time.Millisecond)})
	require.NoError(t, s.Schedule(p))
	require.True(t, s.PauseProfile("p1"))

	job, _ := s.Job("p1")
	assert.True(t, job.Paused)
	assert.Nil(t, job.NextRun)

	s.Start()
	defer s.Stop(context.Background())

	select {
	case e := <-got:
		t.Fatalf("unexpected event %s", e.Kind())
	case <-time.After(1500 * time.Millisecond):
	}
	// The skipped single shot is gone rather than resumable.
	assert.Empty(t, s.Jobs())
	assert.False(t, s.ResumeProfile("p1"))
	assert.False(t, s.PauseProfile("missing"))
}

func TestExpiredPausedSingleShotSweptWithoutRunner(t *testing.T) {
	s := scheduler.New(nil, scheduler.Options{})
	p := scheduledProfile("p1", models.ScheduleTrigger{Start: time.Now().Add(50 * time.Millisecond)})
	require.NoError(t, s.Schedule(p))
	require.True(t, s.PauseProfile("p1"))

	assert.Eventually(t, func() bool {
		_, ok := s.Job("p1")
		return !ok
	}, time.Second, 20*time.Millisecond)
	assert.Zero(t, s.Stats().TotalJobs)
}

func TestRescheduleKeepsPause(t *testing.T) {
	s := scheduler.New(nil, scheduler.Options{})
	future := time.Now().Add(time.Hour)
	p := scheduledProfile("p1", models.ScheduleTrigger{Start: future, RepeatInterval: time.Hour})
	require.NoError(t, s.Schedule(p))
	require.True(t, s.PauseProfile("p1"))

	p.Schedule.CronExpression = "0 9 * * *"
	p.Schedule.RepeatInterval = 0
	require.NoError(t, s.Reschedule(p))
	job, ok := s.Job("p1")
	require.True(t, ok)
	assert.True(t, job.Paused)
	assert.Equal(t, scheduler.TriggerCron, job.Type)

	// Schedule starts fresh.
	require.NoError(t, s.Schedule(p))
	job, _ = s.Job("p1")
	assert.False(t, job.Paused)

	assert.ErrorIs(t, s.Reschedule(models.NewProfile("x", "x")), scheduler.ErrNoSchedule)
}

func TestPauseAllAndStats(t *testing.T) {
	s := scheduler.New(nil, scheduler.Options{})
	soon := time.Now().Add(time.Hour)
	later := soon.Add(time.Hour)
	require.NoError(t, s.Schedule(scheduledProfile("a", models.ScheduleTrigger{Start: later})))
	require.NoError(t, s.Schedule(scheduledProfile("b", models.ScheduleTrigger{Start: soon})))
	require.True(t, s.PauseProfile("a"))

	st := s.Stats()
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.TotalJobs)
	assert.Equal(t, 1, st.ActiveJobs)
	assert.Equal(t, 1, st.PausedJobs)
	require.NotNil(t, st.NextRun)
	assert.True(t, soon.Equal(*st.NextRun))
	assert.Equal(t, "b", st.NextProfile)

	assert.Equal(t, 1, s.PauseAll())
	assert.Equal(t, 0, s.PauseAll())
	st = s.Stats()
	assert.Equal(t, 2, st.PausedJobs)
	assert.Nil(t, st.NextRun)

	assert.Equal(t, 2, s.ResumeAll())
	assert.Equal(t, 2, s.Stats().ActiveJobs)
}

func TestRepeatIntervalFloor(t *testing.T) {
	start := time.Now().Add(time.Minute)
	for _, every := range []time.Duration{time.Nanosecond, time.Millisecond, 999 * time.Millisecond} {
		_, _, err := scheduler.Derive(models.ScheduleTrigger{Start: start, RepeatInterval: every}, time.Now())
		assert.ErrorIs(t, err, scheduler.ErrShortRepeat, every)
	}
	_, kind, err := scheduler.Derive(models.ScheduleTrigger{Start: start, RepeatInterval: scheduler.MinRepeatInterval}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, scheduler.TriggerInterval, kind)
}

func TestCronNeverFiresBeforeFractionalStart(t *testing.T) {
	start := time.Date(2026, 5, 4, 9, 0, 0, 500*int(time.Millisecond), time.Local) // a Monday
	trig := models.ScheduleTrigger{Start: start, CronExpression: "0 9 * * 1"}

	runs, err := scheduler.NextRuns(trig, start.Add(-time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Before(start), runs[0])
	assert.True(t, time.Date(2026, 5, 11, 9, 0, 0, 0, time.Local).Equal(runs[0]), runs[0])
}
