package automation

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/clickweave/clickweave/models"
)

// TimingSource turns a TimingConfig into concrete wait intervals.
type TimingSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTimingSource returns a source seeded from the runtime's random state.
func NewTimingSource() *TimingSource {
	return &TimingSource{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededTimingSource returns a deterministic source.
func NewSeededTimingSource(seed uint64) *TimingSource {
	return &TimingSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Interval returns the base interval when jitter is zero, otherwise a value
// drawn uniformly from [base*(1-j), base*(1+j)]. It is never negative.
func (t *TimingSource) Interval(cfg models.TimingConfig) time.Duration {
	base := float64(cfg.IntervalMS)
	if cfg.JitterPercent <= 0 {
		return time.Duration(cfg.IntervalMS) * time.Millisecond
	}
	j := float64(min(cfg.JitterPercent, 100)) / 100
	low, high := base*(1-j), base*(1+j)

	t.mu.Lock()
	f := t.rng.Float64()
	t.mu.Unlock()

	ms := low + f*(high-low)
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}
