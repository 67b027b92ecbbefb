// Package desktop drives the real operating-system pointer and keyboard
// through robotgo.
package desktop

import (
	"context"
	"fmt"

	"github.com/go-vgo/robotgo"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
)

// Backend implements input.Backend on the local display.
type Backend struct{}

func New() *Backend {
	return &Backend{}
}

var _ input.Backend = (*Backend)(nil)

func button(b input.Button) string {
	if b == input.ButtonMiddle {
		return "center"
	}
	return string(b)
}

func (b *Backend) MoveTo(ctx context.Context, p models.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.Move(p.X, p.Y)
	return nil
}

func (b *Backend) Click(ctx context.Context, btn input.Button, mode input.ClickMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name := button(btn)
	switch mode {
	case input.ModeDouble:
		robotgo.Click(name, true)
	case input.ModeHold:
		if err := robotgo.Toggle(name); err != nil {
			return fmt.Errorf("press %s: %w", name, err)
		}
		// Release even when the hold is cut short.
		waitErr := input.Sleep(ctx, input.HoldDuration)
		if err := robotgo.Toggle(name, "up"); err != nil {
			return fmt.Errorf("release %s: %w", name, err)
		}
		if waitErr != nil {
			logger.Debug(ctx, "hold click on %s cut short: %v", name, waitErr)
		}
	default:
		robotgo.Click(name, false)
	}
	return nil
}

func (b *Backend) KeyDown(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := robotgo.KeyToggle(key, "down"); err != nil {
		return fmt.Errorf("key down %q: %w", key, err)
	}
	return nil
}

// KeyUp ignores ctx so modifiers are always released.
func (b *Backend) KeyUp(_ context.Context, key string) error {
	if err := robotgo.KeyToggle(key, "up"); err != nil {
		return fmt.Errorf("key up %q: %w", key, err)
	}
	return nil
}

func (b *Backend) KeyPress(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := robotgo.KeyTap(key); err != nil {
		return fmt.Errorf("key tap %q: %w", key, err)
	}
	return nil
}

func (b *Backend) Scroll(ctx context.Context, amount int, dir models.ScrollDirection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	robotgo.ScrollDir(amount, string(dir))
	return nil
}

func (b *Backend) Position(ctx context.Context) (models.Point, error) {
	x, y := robotgo.Location()
	return models.Point{X: x, Y: y}, nil
}

func (b *Backend) ScreenSize(ctx context.Context) (int, int, error) {
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("no display: reported size %dx%d", w, h)
	}
	return w, h, nil
}

func (b *Backend) PixelColor(ctx context.Context, p models.Point) (models.RGB, error) {
	if err := ctx.Err(); err != nil {
		return models.RGB{}, err
	}
	hex := robotgo.GetPixelColor(p.X, p.Y)
	c, err := models.ParseHex(hex)
	if err != nil {
		return models.RGB{}, fmt.Errorf("pixel %s: %w", p, err)
	}
	return c, nil
}
