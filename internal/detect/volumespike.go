package detect

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/types"
)

// VolumeSpikeDetector flags markets whose 24h volume jumps well above
// their running EWMA baseline.
type VolumeSpikeDetector struct {
	cfg Config
	log *zap.Logger

	mu   sync.Mutex
	avgs map[string]*ewma
}

func NewVolumeSpikeDetector(cfg Config, log *zap.Logger) *VolumeSpikeDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &VolumeSpikeDetector{cfg: cfg, log: log, avgs: make(map[string]*ewma)}
}

// Observe folds one MarketSnapshot's volume24h into the market's
// running average, comparing against the pre-update average first so a
// single outlier both triggers the anomaly and becomes part of the new
// baseline.
func (d *VolumeSpikeDetector) Observe(snap types.MarketSnapshot) *types.AnomalyDetected {
	x, _ := snap.Volume24h.Float64()

	d.mu.Lock()
	e, ok := d.avgs[snap.MarketID]
	if !ok {
		e = newEWMA(d.cfg.VolumeEWMAAlpha)
		d.avgs[snap.MarketID] = e
	}
	avg, observed := e.preUpdateAverage()
	e.update(x)
	d.mu.Unlock()

	if !observed || avg <= 0 {
		return nil
	}
	multiplier := x / avg
	if multiplier < d.cfg.VolumeSpikeMultiplier {
		return nil
	}

	return &types.AnomalyDetected{
		ID:          uuid.NewString(),
		Type:        types.AnomalyVolumeSpike,
		MarketID:    snap.MarketID,
		Description: fmt.Sprintf("Volume spike on %s: %.1fx baseline", snap.MarketID, multiplier),
		Severity:    clampSeverity(multiplier, d.cfg.VolumeSeverityScale),
		Details: map[string]any{
			"multiplier":  multiplier,
			"baseline":    avg,
			"volume24h":   x,
			types.DetailQuestion: snap.Question,
			types.DetailCategory: snap.Category,
		},
		TS: snap.TS,
	}
}
