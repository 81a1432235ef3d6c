// Package detect implements the per-stream stateful anomaly detectors.
// Every detector exposes a single method that both updates its
// internal state and returns the (at most one) anomaly implied by the
// new observation, in that order, so callers cannot split observe
// from detect and accidentally reorder them.
package detect

import (
	"math"

	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/types"
)

// clampSeverity maps a raw magnitude onto [0,1] by dividing by scale,
// the shared severity-normalisation rule every detector applies with
// its own scale constant.
func clampSeverity(raw, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	v := raw / scale
	if v < 0 {
		v = -v
	}
	if v > 1 {
		return 1
	}
	return v
}

// inZone reports whether price lies within [lo,hi], the "value zone"
// concept used by PriceSpike, Whale, and OrderBookImbalance to gate
// emission to prices where the implied reward-to-risk is plausible.
func inZone(price, lo, hi float64) bool {
	return price >= lo && price <= hi
}

// ewma is a single exponentially weighted moving average, shared by
// VolumeSpike, OrderBookImbalance, and Spread. alpha is the weight on
// the newest observation.
type ewma struct {
	alpha       float64
	value       float64
	initialized bool
	count       int
}

func newEWMA(alpha float64) *ewma {
	return &ewma{alpha: alpha}
}

// preUpdateAverage returns the average as it stood before this
// observation was folded in: detectors compare first using the
// pre-update average, then update.
func (e *ewma) preUpdateAverage() (avg float64, observed bool) {
	return e.value, e.initialized
}

func (e *ewma) update(x float64) {
	if !e.initialized {
		e.value = x
		e.initialized = true
	} else {
		e.value = (1-e.alpha)*e.value + e.alpha*x
	}
	e.count++
}

// Config is the subset of config.DetectorConfig every detector
// constructor accepts, kept as the concrete type rather than an
// interface since all detectors live in one process and share one
// loaded configuration.
type Config = config.DetectorConfig

func abs(x float64) float64 {
	return math.Abs(x)
}

// buyPriceFor returns the price a BUY-direction position is entered
// at: direct for YES, 1-price for NO.
func buyPriceFor(dir types.Direction, yesPrice float64) float64 {
	if dir == types.DirectionNo {
		return 1 - yesPrice
	}
	return yesPrice
}
