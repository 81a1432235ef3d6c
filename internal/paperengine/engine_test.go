package paperengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/types"
)

func testConfig(t *testing.T) config.PaperConfig {
	t.Helper()
	cfg := config.Default().Paper
	cfg.TradesFile = filepath.Join(t.TempDir(), "paper_trades.json")
	return cfg
}

func TestTryEnterOpensPositionWithQualityTierSizing(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	pos, err := e.TryEnter("M1", "Will X?", types.DirectionYes, decimal.NewFromFloat(0.30), 85, "reversal", nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos == nil {
		t.Fatal("expected a position to open")
	}
	if !pos.Size.Equal(decimal.NewFromFloat(50)) {
		t.Fatalf("expected size clamp to 50 (5%% of 1000), got %s", pos.Size)
	}
}

func TestTryEnterRejectsMaxOpenPositions(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		marketID := string(rune('A' + i))
		pos, err := e.TryEnter(marketID, "Q", types.DirectionYes, decimal.NewFromFloat(0.20), 85, "c", nil, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pos == nil {
			t.Fatalf("expected position %d to open", i)
		}
	}

	pos, err := e.TryEnter("D", "Q4", types.DirectionYes, decimal.NewFromFloat(0.20), 85, "c", nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != nil {
		t.Fatal("expected fourth position to be rejected at the 3-open cap")
	}
}

func TestTryEnterRejectsReEntryOnTradedMarket(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	pos, err := e.TryEnter("M1", "Q", types.DirectionYes, decimal.NewFromFloat(0.20), 85, "c", nil, now)
	if err != nil || pos == nil {
		t.Fatalf("expected initial entry to succeed, got pos=%v err=%v", pos, err)
	}
	if _, err := e.CheckAndClose("M1", decimal.NewFromFloat(0.30), "TAKE_PROFIT (+50%)", now); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	reentry, err := e.TryEnter("M1", "Q", types.DirectionYes, decimal.NewFromFloat(0.20), 85, "c", nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reentry != nil {
		t.Fatal("expected re-entry on a previously-traded marketId to be rejected")
	}
}

// TestPaperTradeLimitsScenario fills every open slot, frees one via
// take-profit, and verifies the cap and no-re-entry gates along the
// way.
func TestPaperTradeLimitsScenario(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	// Sizing follows the running balance: 5% of 1000 clamps at $50,
	// the second entry is 5% of the remaining 950, and the third is
	// shrunk by the 15% total-at-risk cap (135.375 - 97.5 = 37.88).
	ids := []string{"M1", "M2", "M3"}
	wantSizes := []float64{50, 47.5, 37.88}
	for i, id := range ids {
		pos, err := e.TryEnter(id, "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
		if err != nil || pos == nil {
			t.Fatalf("expected entry on %s to succeed, got pos=%v err=%v", id, pos, err)
		}
		if !pos.Size.Equal(decimal.NewFromFloat(wantSizes[i])) {
			t.Fatalf("entry %s: expected size %.2f, got %s", id, wantSizes[i], pos.Size)
		}
	}

	if pos, _ := e.TryEnter("M4", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now); pos != nil {
		t.Fatal("fourth qualified signal for a new marketId must return nil at the 3-open cap")
	}

	trade, err := e.CheckAndClose("M1", decimal.NewFromFloat(0.75), "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade == nil {
		t.Fatal("expected take-profit close at +50%")
	}
	if trade.ExitReason == "" {
		t.Fatal("expected a non-empty exit reason")
	}

	pos, err := e.TryEnter("M5", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos == nil {
		t.Fatal("expected a fifth signal for a different new marketId to be accepted after a slot freed up")
	}

	if pos, _ := e.TryEnter("M2", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now); pos != nil {
		t.Fatal("expected a signal on an already-open marketId to be rejected")
	}
}

func TestCheckAndCloseStopLoss(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	pos, err := e.TryEnter("M1", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	if err != nil || pos == nil {
		t.Fatalf("expected entry, got pos=%v err=%v", pos, err)
	}

	// shares*current/size - 1 <= -0.40 when current drops ~60%.
	trade, err := e.CheckAndClose("M1", decimal.NewFromFloat(0.20), "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade == nil {
		t.Fatal("expected stop-loss to trigger")
	}
	if trade.ExitReason[:9] != "STOP_LOSS" {
		t.Fatalf("expected STOP_LOSS reason, got %q", trade.ExitReason)
	}
	if trade.ID == "" {
		t.Fatal("expected a non-empty trade ID")
	}
}

func TestCheckAndCloseNoTriggerReturnsNil(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	pos, err := e.TryEnter("M1", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	if err != nil || pos == nil {
		t.Fatalf("expected entry, got pos=%v err=%v", pos, err)
	}

	trade, err := e.CheckAndClose("M1", decimal.NewFromFloat(0.52), "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade != nil {
		t.Fatal("expected no close for a move within the stop-loss/take-profit band")
	}
}

func TestLossStreakCircuitBreakerPauses(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxLossStreak = 2
	e := New(cfg, nil)
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		marketID := string(rune('A' + i))
		pos, err := e.TryEnter(marketID, "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
		if err != nil || pos == nil {
			t.Fatalf("expected entry %d to succeed", i)
		}
		if _, err := e.CheckAndClose(marketID, decimal.NewFromFloat(0.0), "STOP_LOSS (-40%)", now); err != nil {
			t.Fatalf("unexpected close error: %v", err)
		}
	}
	if e.LossStreak() != 2 {
		t.Fatalf("expected loss streak 2, got %d", e.LossStreak())
	}

	pos, err := e.TryEnter("C", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos != nil {
		t.Fatal("expected loss-streak circuit breaker to reject further entries")
	}
	if !e.Paused() {
		t.Fatal("expected engine to be paused after loss-streak breaker triggers")
	}
}

func TestCloseAtResolutionWinAndLoss(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	e.TryEnter("M1", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	trade, err := e.CloseAtResolution("M1", true, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade == nil || trade.ExitReason != "RESOLUTION" {
		t.Fatalf("expected RESOLUTION exit, got %v", trade)
	}
	if !trade.ExitPrice.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected exit price 1.0 on a win, got %s", trade.ExitPrice)
	}
	if !trade.IsWin {
		t.Fatal("expected a won resolution to be marked a win")
	}

	e.TryEnter("M2", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	trade2, err := e.CloseAtResolution("M2", false, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trade2 == nil || !trade2.ExitPrice.IsZero() {
		t.Fatalf("expected exit price 0.0 on a loss, got %v", trade2)
	}
	if trade2.IsWin {
		t.Fatal("expected a lost resolution to not be marked a win")
	}
}

func TestPnLExactness(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	pos, _ := e.TryEnter("M1", "Q", types.DirectionYes, decimal.NewFromFloat(0.25), 85, "c", nil, now)
	trade, _ := e.CheckAndClose("M1", decimal.NewFromFloat(0.50), "manual", now)
	if trade == nil {
		t.Fatal("expected a close")
	}
	expected := pos.Shares.Mul(decimal.NewFromFloat(0.50)).Sub(pos.Size)
	if !trade.PnLDollars.Equal(expected) {
		t.Fatalf("expected pnl=shares*exit-size exactly: want %s got %s", expected, trade.PnLDollars)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	now := time.Now().UTC()

	e1 := New(cfg, nil)
	e1.TryEnter("M1", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	e1.TryEnter("M2", "Q2", types.DirectionYes, decimal.NewFromFloat(0.50), 70, "c2", nil, now)
	e1.CheckAndClose("M2", decimal.NewFromFloat(0.80), "TAKE_PROFIT (+50%)", now)

	if _, err := os.Stat(cfg.TradesFile); err != nil {
		t.Fatalf("expected trades file to exist: %v", err)
	}

	e2 := New(cfg, nil)
	if !e2.Balance().Equal(e1.Balance()) {
		t.Fatalf("expected balance to round-trip: %s vs %s", e1.Balance(), e2.Balance())
	}
	if len(e2.OpenPositions()) != len(e1.OpenPositions()) {
		t.Fatalf("expected open position count to round-trip")
	}

	// Re-entry on the closed market must still be rejected after reload.
	if pos, _ := e2.TryEnter("M2", "Q2", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now); pos != nil {
		t.Fatal("expected tradedMarketIds to survive a reload")
	}
}

func TestBalanceMigrationAppliesOnLoad(t *testing.T) {
	cfg := testConfig(t)
	now := time.Now().UTC()

	stale := types.PaperState{
		Balance: decimal.NewFromFloat(1075), // bug: size was never deducted, so +size leaked back in on close
		ClosedTrades: []types.PaperTrade{
			{
				PaperPosition: types.PaperPosition{MarketID: "M1", Size: decimal.NewFromFloat(50)},
				PnLDollars:    decimal.NewFromFloat(25),
				ExitTime:      now,
			},
		},
		TradedMarketIDs: []string{"M1"},
	}
	if err := writeJSONAtomic(cfg.TradesFile, stale); err != nil {
		t.Fatalf("setup: %v", err)
	}

	e := New(cfg, nil)
	want := decimal.NewFromFloat(1000).Add(decimal.NewFromFloat(25))
	if !e.Balance().Equal(want) {
		t.Fatalf("expected migrated balance %s, got %s", want, e.Balance())
	}
}

func TestBalanceMigrationIsNoOpWhenAlreadyCorrect(t *testing.T) {
	cfg := testConfig(t)
	now := time.Now().UTC()

	correct := types.PaperState{
		Balance: decimal.NewFromFloat(1025),
		ClosedTrades: []types.PaperTrade{
			{
				PaperPosition: types.PaperPosition{MarketID: "M1", Size: decimal.NewFromFloat(50)},
				PnLDollars:    decimal.NewFromFloat(25),
				ExitTime:      now,
			},
		},
		TradedMarketIDs: []string{"M1"},
	}
	if err := writeJSONAtomic(cfg.TradesFile, correct); err != nil {
		t.Fatalf("setup: %v", err)
	}

	e := New(cfg, nil)
	if !e.Balance().Equal(decimal.NewFromFloat(1025)) {
		t.Fatalf("expected migration to be a no-op on an already-correct state, got %s", e.Balance())
	}
}

func TestGetDailyReportAggregation(t *testing.T) {
	e := New(testConfig(t), nil)
	now := time.Now().UTC()

	e.TryEnter("M1", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	e.CheckAndClose("M1", decimal.NewFromFloat(0.80), "TAKE_PROFIT (+50%)", now)
	e.TryEnter("M2", "Q", types.DirectionYes, decimal.NewFromFloat(0.50), 85, "c", nil, now)
	e.CloseAtResolution("M2", false, now)

	report := e.GetDailyReport(now)
	if report.TodaysWins != 1 || report.TodaysLosses != 1 {
		t.Fatalf("expected 1 win and 1 loss today, got wins=%d losses=%d", report.TodaysWins, report.TodaysLosses)
	}
	if report.WinRate != 0.5 {
		t.Fatalf("expected win rate 0.5, got %f", report.WinRate)
	}
	if report.Summary() == "" {
		t.Fatal("expected a non-empty summary")
	}
}
