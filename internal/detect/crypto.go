package detect

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/fairvalue"
	"github.com/marketpulse/pulsecore/internal/types"
)

// CryptoDivergenceInput is one already-joined observation: a
// CryptoPrice tick paired with the CryptoMarketMatch parsed from the
// market's question (the join itself is the CryptoMarketCache's job,
// not the detector's).
type CryptoDivergenceInput struct {
	MarketID string
	YesPrice float64
	Match    types.CryptoMarketMatch
	Price    types.CryptoPrice
	Now      time.Time
}

// CryptoDivergenceDetector compares a market's implied probability
// against a Black-Scholes-style fair value derived from the
// referenced crypto asset's spot price and volatility.
type CryptoDivergenceDetector struct {
	cfg  Config
	calc *fairvalue.Calculator
	log  *zap.Logger
}

func NewCryptoDivergenceDetector(cfg Config, calc *fairvalue.Calculator, log *zap.Logger) *CryptoDivergenceDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &CryptoDivergenceDetector{cfg: cfg, calc: calc, log: log}
}

func (d *CryptoDivergenceDetector) Observe(in CryptoDivergenceInput) *types.AnomalyDetected {
	if in.Match.ExpiryDate == nil {
		return nil
	}
	if in.YesPrice < d.cfg.CryptoMinYes || in.YesPrice > d.cfg.CryptoMaxYes {
		return nil
	}
	daysLeft := in.Match.ExpiryDate.Sub(in.Now).Hours() / 24
	if daysLeft < d.cfg.CryptoMinDaysLeft {
		return nil
	}

	sigma := in.Price.AnnualVolatility
	if sigma < d.cfg.CryptoVolMin {
		sigma = d.cfg.CryptoVolMin
	}
	if sigma > d.cfg.CryptoVolMax {
		sigma = d.cfg.CryptoVolMax
	}

	spot, _ := in.Price.CurrentPrice.Float64()
	target, _ := in.Match.TargetPrice.Float64()
	pAbove := d.calc.ProbabilityAboveByDays(spot, target, sigma, daysLeft)

	fair := pAbove
	if !in.Match.IsAbove {
		fair = 1 - pAbove
	}
	edge := fair - in.YesPrice
	if abs(edge) < d.cfg.CryptoMinEdge {
		return nil
	}

	signal := "BUY YES"
	buyPrice := in.YesPrice
	if edge < 0 {
		signal = "BUY NO"
		buyPrice = 1 - in.YesPrice
	}
	if buyPrice <= 0 {
		return nil
	}
	roi := edge / buyPrice
	if roi < 0 {
		roi = -roi
	}
	if roi < d.cfg.CryptoMinROI {
		return nil
	}
	strongEdge := abs(edge) >= d.cfg.CryptoStrongEdge

	return &types.AnomalyDetected{
		ID:       uuid.NewString(),
		Type:     types.AnomalyCryptoDivergence,
		MarketID: in.MarketID,
		Description: fmt.Sprintf("%s crypto divergence: %s fair=%.3f market=%.3f edge=%.3f",
			in.MarketID, in.Match.Symbol, fair, in.YesPrice, edge),
		Severity: clampSeverity(edge, d.cfg.CryptoSeverityScale),
		Details: map[string]any{
			types.DetailSignal:     signal,
			types.DetailBuyPrice:   buyPrice,
			types.DetailROI:        roi,
			types.DetailStrongEdge: strongEdge,
			"symbol":               in.Match.Symbol,
			"fairValue":            fair,
			"edge":                 edge,
			"daysLeft":             daysLeft,
			"volatility":           sigma,
		},
		TS: in.Price.TS,
	}
}
