// Package pixel watches screen pixels and raises events when their color
// satisfies a trigger condition.
package pixel

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/events"
)

var ErrNoTriggers = errors.New("no pixel triggers registered")

const DefaultStopGrace = 2 * time.Second

// Handler is called when a trigger's condition becomes true.
type Handler func(events.PixelMatched)

// Watcher polls the pixels of registered triggers on a single goroutine.
// Triggers can be added and removed while it runs.
type Watcher struct {
	sampler  input.PixelSampler
	listener events.Listener
	grace    time.Duration

	mu        sync.Mutex
	triggers  map[string]models.PixelTrigger
	handlers  map[string]Handler
	baselines map[string]models.RGB
	firing    map[string]bool
	cancel    context.CancelFunc
	done      chan struct{}

	scans atomic.Uint64
	fires atomic.Uint64
}

func NewWatcher(sampler input.PixelSampler, listener events.Listener) *Watcher {
	if listener == nil {
		listener = events.Discard
	}
	return &Watcher{
		sampler:   sampler,
		listener:  listener,
		grace:     DefaultStopGrace,
		triggers:  make(map[string]models.PixelTrigger),
		handlers:  make(map[string]Handler),
		baselines: make(map[string]models.RGB),
		firing:    make(map[string]bool),
	}
}

// AddTrigger registers or replaces trigger id. For the changed condition the
// current color is sampled now and kept as the baseline until removal.
func (w *Watcher) AddTrigger(ctx context.Context, id string, trigger models.PixelTrigger, handler Handler) error {
	if err := trigger.Validate(); err != nil {
		return err
	}

	var baseline models.RGB
	if trigger.Condition == models.ConditionChanged {
		c, err := w.sampler.PixelColor(ctx, trigger.Point)
		if err != nil {
			return fmt.Errorf("capture baseline for %s: %w", id, err)
		}
		baseline = c
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.triggers[id] = trigger
	if handler != nil {
		w.handlers[id] = handler
	} else {
		delete(w.handlers, id)
	}
	delete(w.firing, id)
	if trigger.Condition == models.ConditionChanged {
		w.baselines[id] = baseline
		logger.Info(ctx, "Captured baseline color %s for trigger %s", baseline, id)
	} else {
		delete(w.baselines, id)
	}
	logger.Info(ctx, "Added pixel trigger %s at %s (%s)", id, trigger.Point, trigger.Condition)
	return nil
}

func (w *Watcher) RemoveTrigger(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.triggers, id)
	delete(w.handlers, id)
	delete(w.baselines, id)
	delete(w.firing, id)
}

func (w *Watcher) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.triggers)
	clear(w.handlers)
	clear(w.baselines)
	clear(w.firing)
}

// Baseline returns the captured baseline of a changed-condition trigger.
func (w *Watcher) Baseline(id string) (models.RGB, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.baselines[id]
	return c, ok
}

// TriggerIDs returns the registered ids in sorted order.
func (w *Watcher) TriggerIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.triggers))
	for id := range w.triggers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start launches the polling goroutine. It returns false when no trigger is
// registered and true if the watcher is already running.
func (w *Watcher) Start() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.triggers) == 0 {
		logger.Warn(context.Background(), "No pixel triggers to monitor")
		return false
	}
	if w.done != nil {
		return true
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.loop(ctx, w.done)
	logger.Info(ctx, "Pixel watcher started with %d triggers", len(w.triggers))
	return true
}

// Stop cancels the polling goroutine and waits for it up to the grace
// period. It is idempotent.
func (w *Watcher) Stop() bool {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if done == nil {
		return true
	}
	cancel()
	select {
	case <-done:
	case <-time.After(w.grace):
		logger.Warn(context.Background(), "Pixel watcher did not exit within %s", w.grace)
	}
	logger.Info(context.Background(), "Pixel watcher stopped")
	return true
}

func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done != nil
}

type entry struct {
	id      string
	trigger models.PixelTrigger
}

func (w *Watcher) enabled() ([]entry, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]entry, 0, len(w.triggers))
	var interval time.Duration
	for id, t := range w.triggers {
		if !t.Enabled {
			continue
		}
		out = append(out, entry{id: id, trigger: t})
		if d := t.CheckInterval(); interval == 0 || d < interval {
			interval = d
		}
	}
	if interval == 0 {
		interval = models.DefaultCheckInterval
	}
	return out, interval
}

func (w *Watcher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		entries, interval := w.enabled()
		for _, e := range entries {
			if ctx.Err() != nil {
				return
			}
			w.check(ctx, e)
		}
		w.scans.Add(1)

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (w *Watcher) check(ctx context.Context, e entry) {
	color, err := w.sampler.PixelColor(ctx, e.trigger.Point)
	if err != nil {
		logger.Warn(ctx, "Failed to sample pixel for trigger %s: %v", e.id, err)
		return
	}

	w.mu.Lock()
	if _, still := w.triggers[e.id]; !still {
		w.mu.Unlock()
		return
	}
	matched := w.matches(e.id, e.trigger, color)
	fire := matched && !w.firing[e.id]
	w.firing[e.id] = matched
	handler := w.handlers[e.id]
	w.mu.Unlock()

	if !fire {
		return
	}
	w.fires.Add(1)
	ev := events.PixelMatched{TriggerID: e.id, Trigger: e.trigger, Color: color, At: time.Now()}
	logger.Info(ctx, "Pixel trigger %s matched: %s", e.id, color)
	w.deliver(ctx, handler, ev)
	events.Dispatch(w.listener, ev)
}

// matches evaluates the trigger condition. Callers hold mu.
func (w *Watcher) matches(id string, t models.PixelTrigger, c models.RGB) bool {
	switch t.Condition {
	case models.ConditionChanged:
		base, ok := w.baselines[id]
		return ok && !c.Matches(base, t.Tolerance)
	default:
		return c.Matches(t.Color, t.Tolerance)
	}
}

func (w *Watcher) deliver(ctx context.Context, h Handler, ev events.PixelMatched) {
	if h == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Pixel trigger callback %s panicked: %v\n%s", ev.TriggerID, r, debug.Stack())
		}
	}()
	h(ev)
}

// Color samples the pixel at p.
func (w *Watcher) Color(ctx context.Context, p models.Point) (models.RGB, error) {
	return w.sampler.PixelColor(ctx, p)
}

// ProbeResult is a one-off evaluation of a trigger against the screen.
type ProbeResult struct {
	Current   models.RGB `json:"current_color"`
	Target    models.RGB `json:"target_color"`
	Matches   bool       `json:"matches"`
	Tolerance int        `json:"tolerance"`
}

// Probe samples trigger's pixel once. Changed conditions are compared with
// the trigger's target color since an unregistered trigger has no baseline.
func (w *Watcher) Probe(ctx context.Context, trigger models.PixelTrigger) (ProbeResult, error) {
	c, err := w.sampler.PixelColor(ctx, trigger.Point)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("failed to capture pixel color: %w", err)
	}
	m := c.Matches(trigger.Color, trigger.Tolerance)
	if trigger.Condition == models.ConditionChanged {
		m = !m
	}
	return ProbeResult{Current: c, Target: trigger.Color, Matches: m, Tolerance: trigger.Tolerance}, nil
}

// Stats summarizes the watcher.
type Stats struct {
	Running  bool   `json:"is_running"`
	Total    int    `json:"total_triggers"`
	Active   int    `json:"active_triggers"`
	Scans    uint64 `json:"scans"`
	Fires    uint64 `json:"fires"`
	Interval int64  `json:"check_interval_ms"`
}

func (w *Watcher) Stats() Stats {
	entries, interval := w.enabled()
	w.mu.Lock()
	total, running := len(w.triggers), w.done != nil
	w.mu.Unlock()
	return Stats{
		Running:  running,
		Total:    total,
		Active:   len(entries),
		Scans:    w.scans.Load(),
		Fires:    w.fires.Load(),
		Interval: interval.Milliseconds(),
	}
}
