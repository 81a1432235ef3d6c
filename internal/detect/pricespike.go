package detect

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/types"
)

// PriceSpikeDetector reacts to large single-tick YES-price moves. It
// is stateless across calls: every observation carries its own
// old/new price, so there is no per-market baseline to maintain
// (unlike VolumeSpike/Spread/Imbalance).
type PriceSpikeDetector struct {
	cfg Config
	log *zap.Logger
}

func NewPriceSpikeDetector(cfg Config, log *zap.Logger) *PriceSpikeDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &PriceSpikeDetector{cfg: cfg, log: log}
}

// Observe evaluates one MarketPriceChanged event and returns an
// AnomalyDetected if the move qualifies as a reversal or momentum
// trade setup.
func (d *PriceSpikeDetector) Observe(ev types.PriceChange) *types.AnomalyDetected {
	changePct := ev.ChangePercent
	if abs(changePct) < d.cfg.PriceSpikeThresholdPct {
		return nil
	}

	oldYes, _ := ev.OldPrice.Float64()
	newYes, _ := ev.NewPrice.Float64()
	severity := clampSeverity(changePct, d.cfg.PriceSpikeSeverityScale)

	if newYes < oldYes && inZone(newYes, d.cfg.ReversalZoneMin, d.cfg.ReversalZoneMax) {
		drop := oldYes - newYes
		expectedBounce := 0.5 * drop
		roi := 0.0
		if newYes > 0 {
			roi = expectedBounce / newYes
		}
		if roi >= d.cfg.ReversalMinROI {
			target := newYes + expectedBounce
			return d.anomaly(ev, "Reversal", severity, newYes, target, roi)
		}
		return nil
	}

	if newYes > oldYes && inZone(newYes, d.cfg.MomentumZoneMin, d.cfg.MomentumZoneMax) {
		roi := 0.0
		if newYes > 0 {
			roi = (1 - newYes) / newYes
		}
		if roi >= d.cfg.MomentumMinROI {
			return d.anomaly(ev, "Momentum", severity, newYes, 1.0, roi)
		}
	}
	return nil
}

func (d *PriceSpikeDetector) anomaly(ev types.PriceChange, strategy string, severity, buyPrice, target, roi float64) *types.AnomalyDetected {
	return &types.AnomalyDetected{
		ID:       uuid.NewString(),
		Type:     types.AnomalyPriceSpike,
		MarketID: ev.MarketID,
		Description: fmt.Sprintf("%s price spike on %s: %.1f%% move, buy YES @ %.2f",
			strategy, ev.MarketID, ev.ChangePercent, buyPrice),
		Severity: severity,
		Details: map[string]any{
			types.DetailSignal:      "BUY YES",
			types.DetailBuyPrice:    buyPrice,
			types.DetailTargetPrice: target,
			types.DetailROI:         roi,
			"strategy":              strategy,
			"changePercent":         ev.ChangePercent,
		},
		TS: ev.TS,
	}
}
