package pacer

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"go.uber.org/zap"
)

// CPUProbe samples CPU utilization (0..100) over the given interval.
type CPUProbe func(interval time.Duration) (float64, error)

// Options configures the pacer. Rand and Probe exist so tests can make
// the sleep deterministic; zero values select the real implementations.
type Options struct {
	CPUInterval time.Duration
	Multiplier  float64

	// Rand returns a uniform value in [0,1).
	Rand func() float64

	// Probe samples CPU utilization.
	Probe CPUProbe
}

// Pacer scales sleeps by current CPU load: the busier the host, the
// longer the wait between requests.
type Pacer struct {
	opts Options
}

// New creates a pacer, filling in defaults for unset options.
func New(opts Options) *Pacer {
	if opts.CPUInterval == 0 {
		opts.CPUInterval = 250 * time.Millisecond
	}
	if opts.Multiplier == 0 {
		opts.Multiplier = 1
	}
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	if opts.Probe == nil {
		opts.Probe = gopsutilProbe
	}
	return &Pacer{opts: opts}
}

func gopsutilProbe(interval time.Duration) (float64, error) {
	pcts, err := cpu.Percent(interval, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, nil
	}
	return pcts[0], nil
}

// Duration computes the scaled sleep without sleeping. Exposed so the
// fetch retry loop can log the chosen wait.
func (p *Pacer) Duration(base time.Duration) time.Duration {
	util, err := p.opts.Probe(p.opts.CPUInterval)
	if err != nil {
		zap.L().Warn("pacer: cpu probe failed", zap.Error(err))
		util = 50
	}

	var lo, hi float64
	switch {
	case util > 50:
		lo, hi = 0.3, 1.5
	case util > 5:
		lo, hi = 0.2, 1.0
	default:
		lo, hi = 0.1, 0.5
	}

	factor := lo + p.opts.Rand()*(hi-lo)
	scaled := float64(base) * math.Pow(factor, p.opts.Multiplier)
	return time.Duration(scaled)
}

// Pace sleeps for the CPU-scaled duration, or until ctx is done.
func (p *Pacer) Pace(ctx context.Context, base time.Duration) {
	d := p.Duration(base)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
