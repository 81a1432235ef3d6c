package detect

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/types"
)

// MarketDivergenceDetector covers markets whose YES/NO quotes are
// converging on a resolution, have drifted from summing to 1.0, or
// (via DetectArbitrage) imply a direct convergence arbitrage between
// the two complementary sides.
type MarketDivergenceDetector struct {
	cfg Config
	log *zap.Logger
}

func NewMarketDivergenceDetector(cfg Config, log *zap.Logger) *MarketDivergenceDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &MarketDivergenceDetector{cfg: cfg, log: log}
}

// Observe inspects one MarketSnapshot for near-resolution or
// price-sum divergence, preferring near-resolution when both fire.
func (d *MarketDivergenceDetector) Observe(snap types.MarketSnapshot) *types.AnomalyDetected {
	yes, _ := snap.YesPrice.Float64()
	no, _ := snap.NoPrice.Float64()

	if yes >= d.cfg.NearResolutionHigh || yes <= d.cfg.NearResolutionLow {
		severity := yes
		if yes <= d.cfg.NearResolutionLow {
			severity = 1 - yes
		}
		if severity < d.cfg.NearResolutionMinSev {
			severity = d.cfg.NearResolutionMinSev
		}
		if severity > 1 {
			severity = 1
		}
		return &types.AnomalyDetected{
			ID:          uuid.NewString(),
			Type:        types.AnomalyNearResolution,
			MarketID:    snap.MarketID,
			Description: fmt.Sprintf("%s is near resolution: yes=%.3f", snap.MarketID, yes),
			Severity:    severity,
			Details:     map[string]any{"yesPrice": yes},
			TS:          snap.TS,
		}
	}

	deviation := abs(yes + no - 1.0)
	if deviation >= d.cfg.PriceSumThreshold {
		return &types.AnomalyDetected{
			ID:          uuid.NewString(),
			Type:        types.AnomalyMarketDivergence,
			MarketID:    snap.MarketID,
			Description: fmt.Sprintf("%s price sum diverges from 1.0 by %.3f", snap.MarketID, deviation),
			Severity:    clampSeverity(deviation, d.cfg.PriceSumSeverityScale),
			Details:     map[string]any{"yesPrice": yes, "noPrice": no, "deviation": deviation},
			TS:          snap.TS,
		}
	}
	return nil
}

// DetectCrossMarket flags two related markets whose YES prices have
// diverged beyond the configured threshold, an optional externally
// driven helper; the caller supplies the pairing.
func (d *MarketDivergenceDetector) DetectCrossMarket(a, b types.MarketSnapshot) *types.AnomalyDetected {
	ay, _ := a.YesPrice.Float64()
	by, _ := b.YesPrice.Float64()
	deviation := abs(ay - by)
	if deviation < d.cfg.CrossMarketThreshold {
		return nil
	}
	return &types.AnomalyDetected{
		ID:          uuid.NewString(),
		Type:        types.AnomalyMarketDivergence,
		MarketID:    a.MarketID,
		Description: fmt.Sprintf("%s diverges from related market %s by %.3f", a.MarketID, b.MarketID, deviation),
		Severity:    clampSeverity(deviation, d.cfg.PriceSumSeverityScale),
		Details:     map[string]any{"relatedMarketId": b.MarketID, "deviation": deviation},
		TS:          a.TS,
	}
}

// DetectArbitrage checks whether a single market's YES+NO prices sum
// far enough from $1.00 to imply a direct convergence arbitrage.
func (d *MarketDivergenceDetector) DetectArbitrage(snap types.MarketSnapshot) *types.AnomalyDetected {
	yes, _ := snap.YesPrice.Float64()
	no, _ := snap.NoPrice.Float64()
	sum := yes + no
	if sum == 0 {
		return nil
	}
	deviation := sum - 1.0
	edgeBps := abs(deviation) * 10000
	if edgeBps < d.cfg.ArbitrageMinBps {
		return nil
	}

	var signal string
	if deviation > 0 {
		if yes > no {
			signal = "SELL YES"
		} else {
			signal = "SELL NO"
		}
	} else {
		if yes < no {
			signal = "BUY YES"
		} else {
			signal = "BUY NO"
		}
	}

	return &types.AnomalyDetected{
		ID:          uuid.NewString(),
		Type:        types.AnomalyArbitrageOpportunity,
		MarketID:    snap.MarketID,
		Description: fmt.Sprintf("%s convergence arbitrage: sum=%.4f, %s", snap.MarketID, sum, signal),
		Severity:    clampSeverity(edgeBps, d.cfg.ArbitrageSeverityScale),
		Details: map[string]any{
			types.DetailSignal: signal,
			"edgeBps":          edgeBps,
			"sum":              sum,
		},
		TS: snap.TS,
	}
}
