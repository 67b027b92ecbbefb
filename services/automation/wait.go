package automation

import (
	"context"
	"sync"
	"time"
)

// pauseGate is the pause signal shared by a session worker and its
// controller. Waiters select on channels instead of polling a flag.
type pauseGate struct {
	mu      sync.Mutex
	paused  bool
	pausedC chan struct{} // closed while paused
	resumeC chan struct{} // closed while running
}

func newPauseGate() *pauseGate {
	resume := make(chan struct{})
	close(resume)
	return &pauseGate{pausedC: make(chan struct{}), resumeC: resume}
}

func (g *pauseGate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return false
	}
	g.paused = true
	g.resumeC = make(chan struct{})
	close(g.pausedC)
	return true
}

func (g *pauseGate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return false
	}
	g.paused = false
	g.pausedC = make(chan struct{})
	close(g.resumeC)
	return true
}

func (g *pauseGate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func (g *pauseGate) signals() (paused, resumed <-chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pausedC, g.resumeC
}

// Wait blocks while the gate is paused. It returns ctx.Err() if the session
// is cancelled first.
func (g *pauseGate) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, resumed := g.signals()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resumed:
			if !g.Paused() {
				return nil
			}
		}
	}
}

// Sleep waits for d of unpaused time. Time spent paused does not count, so a
// pause part way through resumes with only the remainder left.
func (g *pauseGate) Sleep(ctx context.Context, d time.Duration) error {
	remaining := d
	for remaining > 0 {
		if err := g.Wait(ctx); err != nil {
			return err
		}
		paused, _ := g.signals()
		started := time.Now()
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-paused:
			timer.Stop()
			remaining -= time.Since(started)
		}
	}
	return ctx.Err()
}
