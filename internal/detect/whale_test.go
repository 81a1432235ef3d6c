package detect

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/types"
)

func TestWhaleBelowMinValueEmitsNothing(t *testing.T) {
	d := NewWhaleDetector(config.Default().Detector, nil)
	trade := types.Trade{
		MarketID: "m1",
		Side:     types.SideBuy,
		Size:     decimal.NewFromFloat(100),
		Price:    decimal.NewFromFloat(0.5),
		TS:       time.Now(),
	}
	if got := d.Observe(trade); got != nil {
		t.Fatalf("expected nil below whale value floor, got %+v", got)
	}
}

func TestWhaleBigTradeS5Scenario(t *testing.T) {
	d := NewWhaleDetector(config.Default().Detector, nil)
	// S5: a big ($50k+) BUY at a price low enough to clear both the
	// 0.30 big-whale ROI floor and the [0.08,0.70] value zone.
	trade := types.Trade{
		MarketID: "m1",
		Side:     types.SideBuy,
		Size:     decimal.NewFromFloat(200000),
		Price:    decimal.NewFromFloat(0.30),
		TS:       time.Now(),
	}
	got := d.Observe(trade)
	if got == nil {
		t.Fatal("expected a whale trade anomaly")
	}
	if got.Details[types.DetailIsBigWhale] != true {
		t.Fatalf("expected isBigWhale=true for a $60k notional trade, got %v", got.Details[types.DetailIsBigWhale])
	}
	if got.Details[types.DetailSignal] != "BUY YES" {
		t.Fatalf("expected BUY YES signal, got %v", got.Details[types.DetailSignal])
	}
	if got.ID == "" {
		t.Fatal("expected a non-empty anomaly ID")
	}
}

func TestWhaleEmitsDistinctIDsPerAnomaly(t *testing.T) {
	d := NewWhaleDetector(config.Default().Detector, nil)
	trade := types.Trade{
		MarketID: "m1",
		Side:     types.SideBuy,
		Size:     decimal.NewFromFloat(200000),
		Price:    decimal.NewFromFloat(0.30),
		TS:       time.Now(),
	}
	first := d.Observe(trade)
	second := d.Observe(trade)
	if first == nil || second == nil {
		t.Fatal("expected both observations to emit an anomaly")
	}
	if first.ID == "" || second.ID == "" {
		t.Fatal("expected non-empty anomaly IDs")
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct anomaly IDs across separate detections")
	}
}

func TestWhaleSellEmitsBuyNo(t *testing.T) {
	d := NewWhaleDetector(config.Default().Detector, nil)
	trade := types.Trade{
		MarketID: "m1",
		Side:     types.SideSell,
		Size:     decimal.NewFromFloat(200000),
		Price:    decimal.NewFromFloat(0.70), // implied NO buy at 0.30
		TS:       time.Now(),
	}
	got := d.Observe(trade)
	if got == nil {
		t.Fatal("expected a whale trade anomaly")
	}
	if got.Details[types.DetailSignal] != "BUY NO" {
		t.Fatalf("expected BUY NO signal, got %v", got.Details[types.DetailSignal])
	}
}

func TestWhaleOutsideValueZoneEmitsNothing(t *testing.T) {
	d := NewWhaleDetector(config.Default().Detector, nil)
	trade := types.Trade{
		MarketID: "m1",
		Side:     types.SideBuy,
		Size:     decimal.NewFromFloat(100000),
		Price:    decimal.NewFromFloat(0.95), // outside [0.08, 0.70]
		TS:       time.Now(),
	}
	if got := d.Observe(trade); got != nil {
		t.Fatalf("expected nil outside the value zone, got %+v", got)
	}
}
