// Package browser implements the input surface on a Chrome page driven over
// the DevTools protocol. It is useful for automating web apps on machines
// without a desktop session.
package browser

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"

	"github.com/clickweave/clickweave/config"
	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
)

// scrollStep is the wheel delta in CSS pixels for one scroll notch.
const scrollStep = 100

// Backend drives a single page. The pointer position is tracked locally
// because the protocol cannot report it.
type Backend struct {
	cfg      config.BrowserConfig
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page

	mu     sync.Mutex
	pos    models.Point
	width  int
	height int
}

var _ input.Backend = (*Backend)(nil)

// Open launches a local Chrome, or connects to ControlURL when set, and opens
// a stealth page on StartURL.
func Open(ctx context.Context, cfg config.BrowserConfig) (*Backend, error) {
	b := &Backend{cfg: cfg}

	url := cfg.ControlURL
	if url != "" {
		logger.Info(ctx, "Using remote Chrome browser, control URL: %s", url)
	} else {
		l := launcher.New().
			Headless(cfg.Headless).
			Devtools(false).
			Leakless(false)
		if cfg.BinPath != "" {
			l = l.Bin(cfg.BinPath)
			logger.Info(ctx, "Using browser path: %s", cfg.BinPath)
		}
		logger.Info(ctx, "Starting browser process (headless: %v)...", cfg.Headless)
		var err error
		url, err = l.Launch()
		if err != nil {
			return nil, errors.Wrap(err, "failed to start browser")
		}
		b.launcher = l
	}

	b.browser = rod.New().ControlURL(url)
	if err := b.browser.Connect(); err != nil {
		b.kill()
		return nil, errors.Wrap(err, "failed to connect browser")
	}

	page, err := stealth.Page(b.browser)
	if err != nil {
		b.Close()
		return nil, errors.Wrap(err, "failed to open page")
	}
	b.page = page

	if cfg.Width > 0 && cfg.Height > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.Width,
			Height:            cfg.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			b.Close()
			return nil, errors.Wrap(err, "failed to set viewport")
		}
	}
	if cfg.StartURL != "" {
		if err := page.Navigate(cfg.StartURL); err != nil {
			b.Close()
			return nil, errors.Wrapf(err, "failed to open %s", cfg.StartURL)
		}
		if err := page.WaitLoad(); err != nil {
			logger.Warn(ctx, "Page %s did not finish loading: %v", cfg.StartURL, err)
		}
	}

	w, h, err := b.viewport()
	if err != nil {
		b.Close()
		return nil, err
	}
	b.width, b.height = w, h
	b.pos = models.Point{X: w / 2, Y: h / 2}
	logger.Info(ctx, "✓ Browser input ready, viewport %dx%d", w, h)
	return b, nil
}

func (b *Backend) viewport() (int, int, error) {
	if b.cfg.Width > 0 && b.cfg.Height > 0 {
		return b.cfg.Width, b.cfg.Height, nil
	}
	metrics, err := proto.PageGetLayoutMetrics{}.Call(b.page)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to read layout metrics")
	}
	vp := metrics.CSSLayoutViewport
	if vp == nil {
		return 0, 0, errors.New("layout metrics missing viewport")
	}
	return vp.ClientWidth, vp.ClientHeight, nil
}

// Close closes the browser, or only disconnects from a remote one.
func (b *Backend) Close() error {
	var err error
	if b.browser != nil && b.launcher != nil {
		err = b.browser.Close()
	}
	b.kill()
	return err
}

func (b *Backend) kill() {
	if b.launcher != nil {
		b.launcher.Kill()
	}
}

func (b *Backend) pageCtx(ctx context.Context) (*rod.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.page.Context(ctx), nil
}

func mouseButton(btn input.Button) proto.InputMouseButton {
	switch btn {
	case input.ButtonRight:
		return proto.InputMouseButtonRight
	case input.ButtonMiddle:
		return proto.InputMouseButtonMiddle
	default:
		return proto.InputMouseButtonLeft
	}
}

func (b *Backend) MoveTo(ctx context.Context, p models.Point) error {
	page, err := b.pageCtx(ctx)
	if err != nil {
		return err
	}
	if err := page.Mouse.MoveTo(proto.Point{X: float64(p.X), Y: float64(p.Y)}); err != nil {
		return errors.Wrapf(err, "move to %s", p)
	}
	b.mu.Lock()
	b.pos = p
	b.mu.Unlock()
	return nil
}

func (b *Backend) Click(ctx context.Context, btn input.Button, mode input.ClickMode) error {
	page, err := b.pageCtx(ctx)
	if err != nil {
		return err
	}
	button := mouseButton(btn)
	switch mode {
	case input.ModeDouble:
		err = page.Mouse.Click(button, 2)
	case input.ModeHold:
		if err = page.Mouse.Down(button, 1); err != nil {
			break
		}
		waitErr := input.Sleep(ctx, input.HoldDuration)
		// Release on a detached page so a cancelled ctx cannot leave the
		// button down.
		err = b.page.Mouse.Up(button, 1)
		if waitErr != nil {
			logger.Debug(ctx, "hold click cut short: %v", waitErr)
		}
	default:
		err = page.Mouse.Click(button, 1)
	}
	return errors.Wrapf(err, "%s %s click", mode, btn)
}

func (b *Backend) KeyDown(ctx context.Context, key string) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	page, err := b.pageCtx(ctx)
	if err != nil {
		return err
	}
	return errors.Wrapf(page.Keyboard.Press(k), "key down %q", key)
}

// KeyUp ignores ctx so held modifiers are always released.
func (b *Backend) KeyUp(_ context.Context, key string) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	return errors.Wrapf(b.page.Keyboard.Release(k), "key up %q", key)
}

func (b *Backend) KeyPress(ctx context.Context, key string) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	page, err := b.pageCtx(ctx)
	if err != nil {
		return err
	}
	return errors.Wrapf(page.Keyboard.Type(k), "key press %q", key)
}

func (b *Backend) Scroll(ctx context.Context, amount int, dir models.ScrollDirection) error {
	page, err := b.pageCtx(ctx)
	if err != nil {
		return err
	}
	dy := float64(amount * scrollStep)
	if dir == models.ScrollUp {
		dy = -dy
	}
	return errors.Wrapf(page.Mouse.Scroll(0, dy, amount), "scroll %s %d", dir, amount)
}

func (b *Backend) Position(ctx context.Context) (models.Point, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos, nil
}

func (b *Backend) ScreenSize(ctx context.Context) (int, int, error) {
	return b.width, b.height, nil
}

// PixelColor captures a 1x1 PNG clip at p.
func (b *Backend) PixelColor(ctx context.Context, p models.Point) (models.RGB, error) {
	if p.X < 0 || p.Y < 0 || p.X >= b.width || p.Y >= b.height {
		return models.RGB{}, errors.Errorf("pixel %s outside %dx%d viewport", p, b.width, b.height)
	}
	page, err := b.pageCtx(ctx)
	if err != nil {
		return models.RGB{}, err
	}
	shot, err := page.Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
		Clip: &proto.PageViewport{
			X:      float64(p.X),
			Y:      float64(p.Y),
			Width:  1,
			Height: 1,
			Scale:  1,
		},
	})
	if err != nil {
		return models.RGB{}, errors.Wrapf(err, "capture pixel %s", p)
	}
	return decodePixel(shot)
}

func decodePixel(data []byte) (models.RGB, error) {
	if !filetype.Is(data, "png") {
		return models.RGB{}, errors.New("screenshot is not a PNG image")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return models.RGB{}, errors.Wrap(err, "decode screenshot")
	}
	return pixelAt(img, img.Bounds().Min), nil
}

func pixelAt(img image.Image, pt image.Point) models.RGB {
	r, g, b, _ := img.At(pt.X, pt.Y).RGBA()
	return models.RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}
