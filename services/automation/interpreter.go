package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
)

// SleepFunc waits for d or until ctx is cancelled.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Interpreter executes single macro steps against an input surface. It
// holds no per-step state.
type Interpreter struct {
	surface    input.Surface
	sleep      SleepFunc
	moveSettle time.Duration
}

// NewInterpreter returns an interpreter. A nil sleep uses input.Sleep.
func NewInterpreter(surface input.Surface, sleep SleepFunc, moveSettle time.Duration) *Interpreter {
	if sleep == nil {
		sleep = input.Sleep
	}
	return &Interpreter{surface: surface, sleep: sleep, moveSettle: moveSettle}
}

// Execute performs one repetition of step. Loop counts and the enabled flag
// are the caller's concern.
func (in *Interpreter) Execute(ctx context.Context, step models.Step) error {
	var err error
	switch a := step.Action.(type) {
	case models.ClickAction:
		err = in.click(ctx, a)
	case models.MoveAction:
		err = in.surface.MoveTo(ctx, a.Target)
	case models.DelayAction:
		err = in.sleep(ctx, a.Duration)
	case models.KeyAction:
		err = in.key(ctx, a)
	case models.ScrollAction:
		err = in.surface.Scroll(ctx, a.Amount, a.Direction)
	default:
		err = fmt.Errorf("unsupported action %T", step.Action)
	}
	if err != nil {
		return fmt.Errorf("step %s (%s): %w", step.ID, step.Kind(), err)
	}
	return nil
}

func (in *Interpreter) click(ctx context.Context, a models.ClickAction) error {
	if err := in.surface.MoveTo(ctx, a.Target); err != nil {
		return err
	}
	if err := input.Sleep(ctx, in.moveSettle); err != nil {
		return err
	}
	button, mode := input.ClickFor(a.Button)
	return in.surface.Click(ctx, button, mode)
}

// key presses modifiers in order, taps the key, then releases modifiers in
// reverse order. Releases run even when the session has been cancelled so no
// modifier is left held down.
func (in *Interpreter) key(ctx context.Context, a models.KeyAction) error {
	if len(a.Modifiers) == 0 {
		return in.surface.KeyPress(ctx, a.Key)
	}

	held := make([]string, 0, len(a.Modifiers))
	defer func() {
		release := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := in.surface.KeyUp(release, held[i]); err != nil {
				logger.Warn(ctx, "Failed to release modifier %s: %v", held[i], err)
			}
		}
	}()

	for _, m := range a.Modifiers {
		k := input.ModifierKey(m)
		if err := in.surface.KeyDown(ctx, k); err != nil {
			return err
		}
		held = append(held, k)
	}
	return in.surface.KeyPress(ctx, a.Key)
}
