package input

import (
	"context"
	"fmt"
	"sync"

	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
)

// ActionKind names a recorded input action.
type ActionKind string

const (
	ActMove    ActionKind = "move"
	ActClick   ActionKind = "click"
	ActKeyDown ActionKind = "key_down"
	ActKeyUp   ActionKind = "key_up"
	ActKey     ActionKind = "key_press"
	ActScroll  ActionKind = "scroll"
)

// Action is one input call recorded by DryRun.
type Action struct {
	Kind      ActionKind
	Point     models.Point
	Button    Button
	Mode      ClickMode
	Key       string
	Amount    int
	Direction models.ScrollDirection
}

// DryRun records input instead of performing it. It keeps a virtual pointer
// and a virtual screen so failsafe and pixel logic behave as on a desktop.
type DryRun struct {
	mu      sync.Mutex
	actions []Action
	pos     models.Point
	width   int
	height  int
	pixels  map[models.Point]models.RGB
	fail    map[ActionKind]error
}

func NewDryRun(width, height int) *DryRun {
	return &DryRun{
		width:  width,
		height: height,
		pos:    models.Point{X: width / 2, Y: height / 2},
		pixels: make(map[models.Point]models.RGB),
		fail:   make(map[ActionKind]error),
	}
}

// SetPixel sets the color PixelColor reports at p.
func (d *DryRun) SetPixel(p models.Point, c models.RGB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pixels[p] = c
}

// SetPosition moves the virtual pointer without recording an action, as a
// user moving the physical mouse would.
func (d *DryRun) SetPosition(p models.Point) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos = p
}

// FailOn makes every subsequent action of kind return err. A nil err clears it.
func (d *DryRun) FailOn(kind ActionKind, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, kind)
		return
	}
	d.fail[kind] = err
}

// Actions returns a copy of everything recorded so far.
func (d *DryRun) Actions() []Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Action(nil), d.actions...)
}

// Count returns how many actions of kind were recorded.
func (d *DryRun) Count(kind ActionKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, a := range d.actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func (d *DryRun) record(ctx context.Context, a Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[a.Kind]; err != nil {
		return err
	}
	if a.Kind == ActMove {
		d.pos = a.Point
	}
	d.actions = append(d.actions, a)
	logger.Debug(ctx, "dry run %s %+v", a.Kind, a)
	return nil
}

func (d *DryRun) MoveTo(ctx context.Context, p models.Point) error {
	return d.record(ctx, Action{Kind: ActMove, Point: p})
}

func (d *DryRun) Click(ctx context.Context, button Button, mode ClickMode) error {
	d.mu.Lock()
	pos := d.pos
	d.mu.Unlock()
	return d.record(ctx, Action{Kind: ActClick, Point: pos, Button: button, Mode: mode})
}

func (d *DryRun) KeyDown(ctx context.Context, key string) error {
	return d.record(ctx, Action{Kind: ActKeyDown, Key: key})
}

func (d *DryRun) KeyUp(ctx context.Context, key string) error {
	return d.record(ctx, Action{Kind: ActKeyUp, Key: key})
}

func (d *DryRun) KeyPress(ctx context.Context, key string) error {
	return d.record(ctx, Action{Kind: ActKey, Key: key})
}

func (d *DryRun) Scroll(ctx context.Context, amount int, dir models.ScrollDirection) error {
	return d.record(ctx, Action{Kind: ActScroll, Amount: amount, Direction: dir})
}

func (d *DryRun) Position(ctx context.Context) (models.Point, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pos, nil
}

func (d *DryRun) ScreenSize(ctx context.Context) (int, int, error) {
	return d.width, d.height, nil
}

func (d *DryRun) PixelColor(ctx context.Context, p models.Point) (models.RGB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.X < 0 || p.Y < 0 || p.X >= d.width || p.Y >= d.height {
		return models.RGB{}, fmt.Errorf("pixel %s outside %dx%d screen", p, d.width, d.height)
	}
	return d.pixels[p], nil
}
