package automation

import (
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/events"
)

// runMacro plays the profile's steps once. Disabled steps are skipped
// without touching the surface or the step counter.
func (c *Controller) runMacro(s *session) (models.StopReason, error) {
	ctx := s.ctx
	interp := NewInterpreter(s.surface, s.gate.Sleep, c.opts.MoveSettle)

	logger.Info(ctx, "Playing %d macro steps", len(s.profile.Steps))
	for i, step := range s.profile.Steps {
		if !step.Enabled {
			logger.Debug(ctx, "Skipping disabled step %d (%s)", i+1, step.ID)
			continue
		}
		loops := max(step.LoopCount, 1)
		for rep := 0; rep < loops; rep++ {
			if err := s.gate.Wait(ctx); err != nil {
				return "", nil
			}
			if rep > 0 {
				if err := s.gate.Sleep(ctx, c.opts.LoopGap); err != nil {
					return "", nil
				}
			}

			if err := interp.Execute(ctx, step); err != nil {
				if interrupted(s, err) {
					return "", nil
				}
				logger.Error(ctx, "Macro step %d failed: %v", i+1, err)
				return models.StopError, err
			}
			if ctx.Err() != nil {
				return "", nil
			}
			n := s.steps.Add(1)
			events.Dispatch(c.listener, events.StepExecuted{Step: step, Index: i, Count: int(n)})
		}
	}
	logger.Info(ctx, "Macro completed: %d steps executed", s.steps.Load())
	return models.StopCompleted, nil
}
