package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedProbe(util float64) CPUProbe {
	return func(time.Duration) (float64, error) { return util, nil }
}

func TestDurationBuckets(t *testing.T) {
	tests := []struct {
		name string
		util float64
		rnd  float64
		want time.Duration
	}{
		// rnd=0 selects the lower bound of each bucket.
		{"idle lower", 1, 0, 100 * time.Millisecond},
		{"mid lower", 30, 0, 200 * time.Millisecond},
		{"busy lower", 90, 0, 300 * time.Millisecond},
		// rnd=1 would select the upper bound; use 0.999... approximations
		// via exact midpoints instead.
		{"idle mid", 1, 0.5, 300 * time.Millisecond},
		{"mid mid", 30, 0.5, 600 * time.Millisecond},
		{"busy mid", 90, 0.5, 900 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Options{
				Probe: fixedProbe(tt.util),
				Rand:  func() float64 { return tt.rnd },
			})
			got := p.Duration(time.Second)
			assert.InDelta(t, float64(tt.want), float64(got), float64(time.Millisecond))
		})
	}
}

func TestDurationMultiplier(t *testing.T) {
	p := New(Options{
		Probe:      fixedProbe(90),
		Rand:       func() float64 { return 0.5 }, // factor 0.9
		Multiplier: 2,
	})
	got := p.Duration(time.Second)
	// 0.9^2 = 0.81
	assert.InDelta(t, float64(810*time.Millisecond), float64(got), float64(time.Millisecond))
}

func TestPaceRespectsContext(t *testing.T) {
	p := New(Options{
		Probe: fixedProbe(90),
		Rand:  func() float64 { return 1 },
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	p.Pace(ctx, 10*time.Second)
	assert.Less(t, time.Since(start), time.Second)
}

func TestProbeFailureFallsBackToMidBucket(t *testing.T) {
	p := New(Options{
		Probe: func(time.Duration) (float64, error) { return 0, assert.AnError },
		Rand:  func() float64 { return 0 },
	})
	got := p.Duration(time.Second)
	// util=50 falls in the 5..50 bucket, lower bound 0.2.
	assert.InDelta(t, float64(200*time.Millisecond), float64(got), float64(time.Millisecond))
}
