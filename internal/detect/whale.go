package detect

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/types"
)

// WhaleDetector flags single trades large enough to imply informed
// money, gated by the implied position's value-zone and ROI.
type WhaleDetector struct {
	cfg Config
	log *zap.Logger
}

func NewWhaleDetector(cfg Config, log *zap.Logger) *WhaleDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &WhaleDetector{cfg: cfg, log: log}
}

// Observe evaluates one Trade and returns a WhaleTrade anomaly when
// its notional value clears the threshold and the implied directional
// bet clears its ROI and value-zone gates.
func (d *WhaleDetector) Observe(t types.Trade) *types.AnomalyDetected {
	value, _ := t.Value().Float64()
	if value < d.cfg.WhaleMinValueUSD {
		return nil
	}
	isBig := value >= d.cfg.WhaleBigValueUSD
	minROI := d.cfg.WhaleMinROISmall
	if isBig {
		minROI = d.cfg.WhaleMinROIBig
	}

	price, _ := t.Price.Float64()
	var direction types.Direction
	var buyPrice, maxROI float64
	switch t.Side {
	case types.SideBuy:
		direction = types.DirectionYes
		buyPrice = price
	case types.SideSell:
		direction = types.DirectionNo
		buyPrice = 1 - price
	default:
		return nil
	}
	if buyPrice <= 0 || buyPrice >= 1 {
		return nil
	}
	maxROI = (1 - buyPrice) / buyPrice
	if maxROI < minROI {
		return nil
	}
	if !inZone(buyPrice, d.cfg.WhaleValueZoneMin, d.cfg.WhaleValueZoneMax) {
		return nil
	}

	signal := "BUY YES"
	if direction == types.DirectionNo {
		signal = "BUY NO"
	}

	return &types.AnomalyDetected{
		ID:       uuid.NewString(),
		Type:     types.AnomalyWhaleTrade,
		MarketID: t.MarketID,
		Description: fmt.Sprintf("Whale trade on %s: $%.0f notional, %s @ %.2f",
			t.MarketID, value, signal, buyPrice),
		Severity: clampSeverity(value, d.cfg.WhaleSeverityScale),
		Details: map[string]any{
			types.DetailSignal:     signal,
			types.DetailBuyPrice:   buyPrice,
			types.DetailROI:        maxROI,
			types.DetailIsBigWhale: isBig,
			"tradeValue":           value,
			"traderAddress":        t.TraderAddress,
		},
		TS: t.TS,
	}
}
