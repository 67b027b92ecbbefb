package automation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
)

// ErrSessionEnded is returned by a session's surface once the session has
// been stopped. A worker that outlives its stop grace cannot act after the
// controller has reported the session over.
var ErrSessionEnded = errors.New("automation session ended")

// session is the state of one run. The worker goroutine owns the loop; the
// controller reaches in only through ctx, gate and the claim flag.
type session struct {
	id      string
	profile *models.Profile
	surface input.Surface

	ctx    context.Context
	cancel context.CancelFunc
	gate   *pauseGate
	done   chan struct{}

	started time.Time
	clicks  atomic.Int64
	steps   atomic.Int64

	// ended is claimed exactly once by whoever finalizes the session.
	ended atomic.Bool

	mu  sync.Mutex
	log models.ExecutionLog
}

func (s *session) claim() bool {
	return s.ended.CompareAndSwap(false, true)
}

// snapshot returns a copy of the session's profile with current flags.
func (s *session) snapshot() models.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.profile.Copy()
}

func (s *session) setFlags(active, paused bool) {
	s.mu.Lock()
	s.profile.IsActive = active
	s.profile.IsPaused = paused
	s.mu.Unlock()
}

// guardedSurface rejects input once its session context is done. KeyUp is
// always allowed so held modifiers can be released.
type guardedSurface struct {
	session context.Context
	inner   input.Surface
}

func (g guardedSurface) check() error {
	if g.session.Err() != nil {
		return ErrSessionEnded
	}
	return nil
}

func (g guardedSurface) MoveTo(ctx context.Context, p models.Point) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.inner.MoveTo(ctx, p)
}

func (g guardedSurface) Click(ctx context.Context, b input.Button, m input.ClickMode) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.inner.Click(ctx, b, m)
}

func (g guardedSurface) KeyDown(ctx context.Context, key string) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.inner.KeyDown(ctx, key)
}

func (g guardedSurface) KeyUp(ctx context.Context, key string) error {
	return g.inner.KeyUp(ctx, key)
}

func (g guardedSurface) KeyPress(ctx context.Context, key string) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.inner.KeyPress(ctx, key)
}

func (g guardedSurface) Scroll(ctx context.Context, amount int, dir models.ScrollDirection) error {
	if err := g.check(); err != nil {
		return err
	}
	return g.inner.Scroll(ctx, amount, dir)
}

func (g guardedSurface) Position(ctx context.Context) (models.Point, error) {
	return g.inner.Position(ctx)
}

func (g guardedSurface) ScreenSize(ctx context.Context) (int, int, error) {
	return g.inner.ScreenSize(ctx)
}
