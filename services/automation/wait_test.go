package automation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPauseGateTransitions(t *testing.T) {
	g := newPauseGate()
	assert.False(t, g.Resume(), "resume while running")
	assert.True(t, g.Pause())
	assert.False(t, g.Pause(), "double pause")
	assert.True(t, g.Paused())
	assert.True(t, g.Resume())
	assert.False(t, g.Paused())
}

func TestSleepIsCancellable(t *testing.T) {
	g := newPauseGate()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := g.Sleep(ctx, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepResumesRemainder(t *testing.T) {
	g := newPauseGate()
	done := make(chan time.Time, 1)
	go func() {
		assert.NoError(t, g.Sleep(context.Background(), 300*time.Millisecond))
		done <- time.Now()
	}()

	time.Sleep(100 * time.Millisecond)
	require.True(t, g.Pause())
	time.Sleep(300 * time.Millisecond)

	select {
	case <-done:
		t.Fatal("sleep finished while paused")
	default:
	}

	resumed := time.Now()
	require.True(t, g.Resume())
	finished := <-done

	left := finished.Sub(resumed)
	assert.Less(t, left, 280*time.Millisecond, "remaining time only, not a full reset")
	assert.Greater(t, left, 120*time.Millisecond)
}

func TestWaitBlocksWhilePaused(t *testing.T) {
	g := newPauseGate()
	g.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)

	g.Resume()
	assert.NoError(t, g.Wait(context.Background()))
}
