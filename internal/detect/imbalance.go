package detect

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/types"
)

// OrderBookImbalanceDetector flags order books with a sustained,
// momentary-but-not-chronic lean toward one side of the book.
type OrderBookImbalanceDetector struct {
	cfg Config
	log *zap.Logger

	mu    sync.Mutex
	state map[string]*ewma
}

func NewOrderBookImbalanceDetector(cfg Config, log *zap.Logger) *OrderBookImbalanceDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderBookImbalanceDetector{cfg: cfg, log: log, state: make(map[string]*ewma)}
}

func (d *OrderBookImbalanceDetector) Observe(book types.OrderBook) *types.AnomalyDetected {
	imbalance := book.ImbalanceRatio()
	bidDepth, _ := book.BidDepth.Float64()
	askDepth, _ := book.AskDepth.Float64()

	d.mu.Lock()
	e, ok := d.state[book.MarketID]
	if !ok {
		e = newEWMA(d.cfg.ImbalanceEWMAAlpha)
		d.state[book.MarketID] = e
	}
	avg, observed := e.preUpdateAverage()
	obsCount := e.count
	e.update(abs(imbalance))
	d.mu.Unlock()

	if abs(imbalance) < d.cfg.ImbalanceMinAbs {
		return nil
	}
	if bidDepth+askDepth < d.cfg.ImbalanceMinDepth {
		return nil
	}
	if obsCount < d.cfg.ImbalanceMinObs {
		return nil
	}
	if observed && avg > d.cfg.ImbalanceMaxEWMA {
		return nil
	}

	bid, _ := book.BestBid.Float64()
	ask, _ := book.BestAsk.Float64()
	mid := (bid + ask) / 2

	direction := types.DirectionYes
	if imbalance < 0 {
		direction = types.DirectionNo
	}
	buyPrice := buyPriceFor(direction, mid)
	if !inZone(buyPrice, d.cfg.ImbalanceValueZoneMin, d.cfg.ImbalanceValueZoneMax) {
		return nil
	}
	if buyPrice <= 0 {
		return nil
	}
	maxROI := (1 - buyPrice) / buyPrice
	if maxROI < d.cfg.ImbalanceMinROI {
		return nil
	}

	signal := "BUY YES"
	if direction == types.DirectionNo {
		signal = "BUY NO"
	}

	return &types.AnomalyDetected{
		ID:       uuid.NewString(),
		Type:     types.AnomalyOrderBookImbalance,
		MarketID: book.MarketID,
		Description: fmt.Sprintf("Order book imbalance on %s: %.2f, %s @ %.2f",
			book.MarketID, imbalance, signal, buyPrice),
		Severity: clampSeverity(imbalance, 1),
		Details: map[string]any{
			types.DetailSignal:   signal,
			types.DetailBuyPrice: buyPrice,
			types.DetailROI:      maxROI,
			"imbalance":          imbalance,
			"bidDepth":           bidDepth,
			"askDepth":           askDepth,
		},
		TS: book.TS,
	}
}
