package automation

import (
	"time"

	"github.com/pkg/errors"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/events"
)

// runClicks is the click-mode loop: pause gate, failsafe, limits, click,
// then a jittered wait that honors pause and stop.
func (c *Controller) runClicks(s *session) (models.StopReason, error) {
	ctx := s.ctx
	p := s.profile
	button, mode := input.ClickFor(p.Click.Kind)

	for {
		if err := s.gate.Wait(ctx); err != nil {
			return "", nil
		}

		if c.failsafeTripped(s) {
			logger.Warn(ctx, "Failsafe triggered - stopping automation")
			return models.StopFailsafe, nil
		}
		if LimitsExceeded(p.Limits, int(s.clicks.Load()), time.Since(s.started)) {
			logger.Info(ctx, "Execution limits reached after %d clicks", s.clicks.Load())
			return models.StopLimits, nil
		}

		point, err := c.click(s, button, mode)
		if err != nil {
			if interrupted(s, err) {
				return "", nil
			}
			return models.StopError, err
		}
		if ctx.Err() != nil {
			return "", nil
		}
		n := s.clicks.Add(1)
		events.Dispatch(c.listener, events.Click{Point: point, ClickType: p.Click.Kind, Count: int(n)})

		if err := s.gate.Sleep(ctx, c.opts.Timing.Interval(p.Timing)); err != nil {
			return "", nil
		}
	}
}

// click moves to the profile target, if any, and clicks. It returns the
// point that was clicked.
func (c *Controller) click(s *session, button input.Button, mode input.ClickMode) (models.Point, error) {
	ctx := s.ctx
	if t := s.profile.Click.Target; t != nil {
		if err := s.surface.MoveTo(ctx, *t); err != nil {
			return models.Point{}, err
		}
		if err := input.Sleep(ctx, c.opts.MoveSettle); err != nil {
			return models.Point{}, err
		}
	}
	if err := s.surface.Click(ctx, button, mode); err != nil {
		return models.Point{}, err
	}
	if t := s.profile.Click.Target; t != nil {
		return *t, nil
	}
	p, err := s.surface.Position(ctx)
	if err != nil {
		return models.Point{}, errors.Wrap(err, "read pointer position after click")
	}
	return p, nil
}

func (c *Controller) failsafeTripped(s *session) bool {
	fs := c.Failsafe()
	if !fs.Enabled {
		return false
	}
	pos, err := s.surface.Position(s.ctx)
	if err != nil {
		logger.Warn(s.ctx, "Failsafe position check failed: %v", err)
		return false
	}
	w, h, err := s.surface.ScreenSize(s.ctx)
	if err != nil {
		logger.Warn(s.ctx, "Failsafe screen size check failed: %v", err)
		return false
	}
	return fs.Tripped(pos, w, h)
}
