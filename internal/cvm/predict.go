// Package cvm ingests filing headers (NSD pages) and statement frames
// from the regulator's document portal.
package cvm

import (
	"math"
	"time"

	"github.com/faustostangler/FL2-sub000/internal/config"
)

// PredictNSDs returns the candidate nsd numbers to fetch: every hole
// in [1, max] missing from stored, then a forward range [max+1,
// max+estimate] sized from the recent submission rate.
//
// With nothing stored there is nothing to extrapolate from and the
// result is empty. With a single stored record the rate degenerates to
// one submission per day.
func PredictNSDs(maxNSD int, maxSent time.Time, recentCount int, stored []int, cfg config.EstimateConfig, now time.Time) []int {
	if maxNSD <= 0 {
		return nil
	}

	windowDays := cfg.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	safety := cfg.SafetyFactor
	if safety <= 0 {
		safety = 1.5
	}

	dailyAvg := float64(recentCount) / float64(windowDays)
	if recentCount <= 1 {
		dailyAvg = 1
	}

	daysSince := now.Sub(maxSent).Hours() / 24
	if daysSince < 1 {
		daysSince = 1
	}

	estimate := int(math.Ceil(dailyAvg * daysSince * safety))

	seen := make(map[int]struct{}, len(stored))
	for _, n := range stored {
		seen[n] = struct{}{}
	}

	var out []int
	for n := 1; n <= maxNSD; n++ {
		if _, ok := seen[n]; !ok {
			out = append(out, n)
		}
	}
	for n := maxNSD + 1; n <= maxNSD+estimate; n++ {
		out = append(out, n)
	}
	return out
}
