package detect

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/types"
)

// SpreadDetector flags order books whose bid/ask spread is either
// persistently wide or has just spiked relative to its own baseline.
type SpreadDetector struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	state map[string]*ewma
}

func NewSpreadDetector(cfg Config, log *zap.Logger) *SpreadDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &SpreadDetector{cfg: cfg, log: log, state: make(map[string]*ewma)}
}

func (d *SpreadDetector) Observe(book types.OrderBook) *types.AnomalyDetected {
	spread, _ := book.Spread().Float64()

	d.mu.Lock()
	e, ok := d.state[book.MarketID]
	if !ok {
		e = newEWMA(d.cfg.SpreadEWMAAlpha)
		d.state[book.MarketID] = e
	}
	avg, observed := e.preUpdateAverage()
	obsCount := e.count
	e.update(spread)
	d.mu.Unlock()

	if obsCount < d.cfg.SpreadMinObs {
		return nil
	}

	wide := spread >= d.cfg.SpreadWideThreshold
	spike := observed && avg > 0 && spread/avg >= d.cfg.SpreadSpikeRatio
	if !wide && !spike {
		return nil
	}

	kind := "wide"
	severity := clampSeverity(spread, d.cfg.SpreadWideScale)
	if spike && !wide {
		kind = "spike"
		severity = clampSeverity(spread/avg, d.cfg.SpreadSpikeScale)
	}

	return &types.AnomalyDetected{
		ID:          uuid.NewString(),
		Type:        types.AnomalySpread,
		MarketID:    book.MarketID,
		Description: fmt.Sprintf("Spread anomaly (%s) on %s: %.4f", kind, book.MarketID, spread),
		Severity:    severity,
		Details: map[string]any{
			"kind":     kind,
			"spread":   spread,
			"baseline": avg,
		},
		TS: book.TS,
	}
}
