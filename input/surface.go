// Package input defines the operating-system input surface the automation
// engine drives, plus an in-memory dry-run implementation. Real backends
// live in the desktop (robotgo) and browser (rod) subpackages.
package input

import (
	"context"
	"errors"
	"time"

	"github.com/clickweave/clickweave/models"
)

// Button is a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// ClickMode is how a button is actuated.
type ClickMode string

const (
	ModeSingle ClickMode = "single"
	ModeDouble ClickMode = "double"
	ModeHold   ClickMode = "hold"
)

// HoldDuration is how long a hold click keeps the button pressed.
const HoldDuration = 500 * time.Millisecond

// ErrUnsupported is wrapped by backends for actions they cannot perform,
// such as a key the backend has no code for.
var ErrUnsupported = errors.New("input action not supported by backend")

// Surface performs synthetic input. Implementations must be safe for use by
// one goroutine at a time; the session controller never issues concurrent
// actions.
type Surface interface {
	MoveTo(ctx context.Context, p models.Point) error
	Click(ctx context.Context, button Button, mode ClickMode) error
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
	KeyPress(ctx context.Context, key string) error
	Scroll(ctx context.Context, amount int, dir models.ScrollDirection) error
	Position(ctx context.Context) (models.Point, error)
	ScreenSize(ctx context.Context) (width, height int, err error)
}

// PixelSampler reads the color of a single screen pixel.
type PixelSampler interface {
	PixelColor(ctx context.Context, p models.Point) (models.RGB, error)
}

// Backend is a surface that can also sample pixels.
type Backend interface {
	Surface
	PixelSampler
}

// ClickFor maps a profile click kind to the button and mode the surface
// understands.
func ClickFor(kind models.ClickKind) (Button, ClickMode) {
	switch kind {
	case models.ClickRight:
		return ButtonRight, ModeSingle
	case models.ClickMiddle:
		return ButtonMiddle, ModeSingle
	case models.ClickDouble:
		return ButtonLeft, ModeDouble
	case models.ClickHold:
		return ButtonLeft, ModeHold
	default:
		return ButtonLeft, ModeSingle
	}
}

// ModifierKey returns the key name backends use for a modifier.
func ModifierKey(m models.Modifier) string {
	switch m {
	case models.ModCtrl:
		return "ctrl"
	case models.ModAlt:
		return "alt"
	case models.ModShift:
		return "shift"
	case models.ModCmd:
		return "cmd"
	}
	return string(m)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
