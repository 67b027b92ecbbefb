package automation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/services/automation"
	"github.com/clickweave/clickweave/services/events"
)

type stamped struct {
	at time.Time
	ev events.Event
}

// recorder collects events in arrival order.
type recorder struct {
	ch chan stamped
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan stamped, 1024)}
}

func (r *recorder) OnEvent(e events.Event) {
	r.ch <- stamped{at: time.Now(), ev: e}
}

// next waits for the next event of kind, discarding others.
func (r *recorder) next(t *testing.T, kind events.Kind, timeout time.Duration) stamped {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case s := <-r.ch:
			if s.ev.Kind() == kind {
				return s
			}
		case <-deadline:
			require.FailNowf(t, "timed out", "no %s event within %s", kind, timeout)
		}
	}
}

func (r *recorder) stopped(t *testing.T) events.Stopped {
	t.Helper()
	return r.next(t, events.KindStopped, 3*time.Second).ev.(events.Stopped)
}

func testOptions() automation.Options {
	return automation.Options{
		StopGrace:  time.Second,
		MoveSettle: time.Millisecond,
		LoopGap:    time.Millisecond,
		Failsafe:   automation.Failsafe{Enabled: false},
		Timing:     automation.NewSeededTimingSource(1),
	}
}

func clickProfile(intervalMS int) *models.Profile {
	p := models.NewProfile("p1", "clicker")
	p.Timing = models.TimingConfig{IntervalMS: intervalMS}
	p.Click.Target = &models.Point{X: 300, Y: 300}
	return p
}

func macroProfile(t *testing.T, steps ...models.Step) *models.Profile {
	t.Helper()
	p := models.NewProfile("m1", "macro")
	p.Steps = steps
	require.NoError(t, p.Validate())
	return p
}

func mustStep(t *testing.T) func(models.Step, error) models.Step {
	return func(s models.Step, err error) models.Step {
		t.Helper()
		require.NoError(t, err)
		return s
	}
}

// blockingSurface ignores cancellation while a click is in flight.
type blockingSurface struct {
	*input.DryRun
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSurface) Click(ctx context.Context, button input.Button, mode input.ClickMode) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.DryRun.Click(context.WithoutCancel(ctx), button, mode)
}

type panicSurface struct {
	*input.DryRun
}

func (panicSurface) Click(context.Context, input.Button, input.ClickMode) error {
	panic("driver exploded")
}

// blindSurface cannot report the pointer position.
type blindSurface struct {
	*input.DryRun
}

func (blindSurface) Position(context.Context) (models.Point, error) {
	return models.Point{}, errors.New("pointer unavailable")
}
