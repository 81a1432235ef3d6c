// Package paperengine implements the deterministic paper-trading
// portfolio simulator: position sizing, risk caps, stop-loss/
// take-profit, loss-streak and drawdown circuit breakers, and durable
// JSON state.
package paperengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/errs"
	"github.com/marketpulse/pulsecore/internal/types"
)

// Engine owns the simulated portfolio. All mutating operations and
// save/load are guarded by a single exclusive lock.
type Engine struct {
	mu  sync.Mutex
	cfg config.PaperConfig
	log *zap.Logger

	starting decimal.Decimal
	state    types.PaperState
	traded   map[string]struct{}
	openIdx  map[string]int // marketId -> index into state.OpenPositions
}

// New constructs a fresh engine at the configured starting balance,
// then attempts to load any durable state at cfg.TradesFile, applying
// the balance-migration heuristic on load.
func New(cfg config.PaperConfig, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	starting := decimal.NewFromFloat(cfg.StartingBalance)
	e := &Engine{
		cfg:      cfg,
		log:      log,
		starting: starting,
		state: types.PaperState{
			Balance: starting,
		},
		traded:  make(map[string]struct{}),
		openIdx: make(map[string]int),
	}
	if err := e.load(); err != nil {
		log.Warn("paperengine: starting fresh, state load failed", zap.Error(err))
	}
	return e
}

// load reads the durable state file if present, rebuilds derived
// indices, and applies the one-shot balance migration.
func (e *Engine) load() error {
	if e.cfg.TradesFile == "" {
		return nil
	}
	data, err := os.ReadFile(e.cfg.TradesFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Persistence("paperengine.load", err)
	}
	var st types.PaperState
	if err := json.Unmarshal(data, &st); err != nil {
		return errs.Persistence("paperengine.load unmarshal", err)
	}
	e.state = st
	e.rebuildIndices()
	e.migrateBalance()
	return nil
}

// rebuildIndices reconstructs openIdx and traded as the union of the
// persisted tradedMarketIds set, closed-trade market ids, and
// open-position market ids.
func (e *Engine) rebuildIndices() {
	e.traded = make(map[string]struct{}, len(e.state.TradedMarketIDs))
	for _, id := range e.state.TradedMarketIDs {
		e.traded[id] = struct{}{}
	}
	for _, t := range e.state.ClosedTrades {
		e.traded[t.MarketID] = struct{}{}
	}
	e.openIdx = make(map[string]int, len(e.state.OpenPositions))
	for i, p := range e.state.OpenPositions {
		e.openIdx[p.MarketID] = i
		e.traded[p.MarketID] = struct{}{}
	}
}

// migrateBalance fixes a historical bug where TryEnter did not deduct
// the reserved size from the balance: if there are no open positions
// but the balance exceeds starting+Σclosed.pnl by more than a cent,
// the balance is the derived correct value. Applying this to an
// already-correct state is a no-op.
func (e *Engine) migrateBalance() {
	if len(e.state.OpenPositions) > 0 {
		return
	}
	correct := e.starting
	for _, t := range e.state.ClosedTrades {
		correct = correct.Add(t.PnLDollars)
	}
	epsilon := decimal.NewFromFloat(0.01)
	if e.state.Balance.GreaterThan(correct.Add(epsilon)) {
		e.log.Warn("paperengine: balance migration applied",
			zap.String("stored", e.state.Balance.String()),
			zap.String("derived", correct.String()))
		e.state.Balance = correct
		e.persistLocked()
	}
}

// persistLocked writes the full state to disk atomically. Failure is
// logged and swallowed; in-memory state remains authoritative.
func (e *Engine) persistLocked() {
	if e.cfg.TradesFile == "" {
		return
	}
	if err := writeJSONAtomic(e.cfg.TradesFile, e.state); err != nil {
		e.log.Warn("paperengine: persist failed", zap.Error(err))
	}
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Persistence("paperengine.persist mkdir", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Persistence("paperengine.persist marshal", err)
	}
	tmp, err := os.CreateTemp(dir, ".paperstate-*.tmp")
	if err != nil {
		return errs.Persistence("paperengine.persist tempfile", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Persistence("paperengine.persist write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Persistence("paperengine.persist close", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.Persistence("paperengine.persist rename", err)
	}
	return nil
}

// Balance returns a snapshot of the current balance.
func (e *Engine) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Balance
}

// OpenPositions returns a snapshot copy of currently open positions.
func (e *Engine) OpenPositions() []types.PaperPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.PaperPosition, len(e.state.OpenPositions))
	copy(out, e.state.OpenPositions)
	return out
}

// Paused reports whether the engine is currently paused.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Paused
}

// LossStreak returns the current consecutive-loss count.
func (e *Engine) LossStreak() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.LossStreak
}

// TryEnter evaluates the full entry gate chain and, if every
// gate passes, opens a new paper position and returns it. Any gate
// failure returns (nil, nil): a policy rejection is not an error.
func (e *Engine) TryEnter(marketID, question string, direction types.Direction, entryPrice decimal.Decimal, qualityScore int, catalyst string, hoursToResolution *float64, now time.Time) (*types.PaperPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Gate 1: pause window.
	if e.state.Paused {
		if e.state.PausedUntil != nil && now.Before(*e.state.PausedUntil) {
			return nil, nil
		}
		e.state.Paused = false
		e.state.PausedUntil = nil
	}

	// Gate 2: open-position cap.
	if len(e.state.OpenPositions) >= e.cfg.MaxOpenPositions {
		return nil, nil
	}

	// Gate 3: no existing open position for this market.
	if _, has := e.openIdx[marketID]; has {
		return nil, nil
	}

	// Gate 4: never re-enter a market once traded.
	if _, has := e.traded[marketID]; has {
		return nil, nil
	}

	// Gate 5: loss-streak circuit breaker.
	if e.state.LossStreak >= e.cfg.MaxLossStreak {
		e.pauseFor(now, e.cfg.LossStreakPauseDays)
		return nil, nil
	}

	// Gate 6: drawdown circuit breaker.
	drawdown := e.drawdownLocked()
	if drawdown >= e.cfg.PauseDrawdownPercent {
		e.pauseFor(now, e.cfg.DrawdownPauseDays)
		return nil, nil
	}

	// Gate 7: size by quality tier.
	sizePercent := 0.02
	switch {
	case qualityScore >= 85:
		sizePercent = 0.05
	case qualityScore >= 70:
		sizePercent = 0.03
	}
	positionSize := e.state.Balance.Mul(decimal.NewFromFloat(sizePercent)).Round(2)
	positionSize = clampDecimal(positionSize, decimal.NewFromInt(5), decimal.NewFromInt(50))

	// Gate 8: total at-risk cap.
	openTotal := decimal.Zero
	for _, p := range e.state.OpenPositions {
		openTotal = openTotal.Add(p.Size)
	}
	maxRisk := e.state.Balance.Mul(decimal.NewFromFloat(e.cfg.MaxRiskPercent))
	if openTotal.Add(positionSize).GreaterThan(maxRisk) {
		positionSize = maxRisk.Sub(openTotal).Round(2)
		if positionSize.LessThan(decimal.NewFromInt(5)) {
			return nil, nil
		}
	}

	if entryPrice.IsZero() || entryPrice.IsNegative() {
		return nil, nil
	}

	// Gate 9: commit.
	shares := positionSize.Div(entryPrice).Round(2)

	pos := types.PaperPosition{
		MarketID:          marketID,
		Question:          question,
		Direction:         direction,
		EntryPrice:        entryPrice,
		Size:              positionSize,
		Shares:            shares,
		QualityScore:      qualityScore,
		Catalyst:          catalyst,
		HoursToResolution: hoursToResolution,
		EntryTime:         now,
	}

	e.state.Balance = e.state.Balance.Sub(positionSize)
	e.state.OpenPositions = append(e.state.OpenPositions, pos)
	e.openIdx[marketID] = len(e.state.OpenPositions) - 1
	e.traded[marketID] = struct{}{}
	e.state.TradedMarketIDs = append(e.state.TradedMarketIDs, marketID)
	e.persistLocked()

	result := pos
	return &result, nil
}

// pauseFor sets the pause window to now+days. Called with the lock
// already held.
func (e *Engine) pauseFor(now time.Time, days int) {
	until := now.AddDate(0, 0, days)
	e.state.Paused = true
	e.state.PausedUntil = &until
	e.persistLocked()
}

// drawdownLocked computes current drawdown as a non-negative fraction
// of the starting balance: (starting-balance)/starting.
func (e *Engine) drawdownLocked() float64 {
	startingF, _ := e.starting.Float64()
	if startingF <= 0 {
		return 0
	}
	balanceF, _ := e.state.Balance.Float64()
	dd := (startingF - balanceF) / startingF
	if dd < 0 {
		return 0
	}
	return dd
}

// CheckAndClose evaluates a position's unrealized PnL against the
// stop-loss/take-profit thresholds. If forcedReason is non-empty it
// is used verbatim (e.g. RESOLUTION-adjacent manual exits); otherwise
// a threshold must trigger or no trade is closed.
func (e *Engine) CheckAndClose(marketID string, currentPrice decimal.Decimal, forcedReason string, now time.Time) (*types.PaperTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, has := e.openIdx[marketID]
	if !has {
		return nil, nil
	}
	pos := e.state.OpenPositions[idx]

	reason := forcedReason
	if reason == "" {
		unrealized := pos.Shares.Mul(currentPrice).Sub(pos.Size)
		pct, _ := unrealized.Div(pos.Size).Float64()
		switch {
		case pct <= e.cfg.StopLossPercent:
			reason = fmt.Sprintf("STOP_LOSS (%.0f%%)", e.cfg.StopLossPercent*100)
		case pct >= e.cfg.TakeProfitPercent:
			reason = fmt.Sprintf("TAKE_PROFIT (+%.0f%%)", e.cfg.TakeProfitPercent*100)
		default:
			return nil, nil
		}
	}

	trade := e.closeLocked(idx, currentPrice, reason, now)
	return &trade, nil
}

// CloseAtResolution closes a position at its resolution value: 1.0 if
// the bet won, 0.0 otherwise.
func (e *Engine) CloseAtResolution(marketID string, wonBet bool, now time.Time) (*types.PaperTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx, has := e.openIdx[marketID]
	if !has {
		return nil, nil
	}
	exit := decimal.Zero
	if wonBet {
		exit = decimal.NewFromInt(1)
	}
	trade := e.closeLocked(idx, exit, "RESOLUTION", now)
	return &trade, nil
}

// closeLocked performs the shared close bookkeeping: pnl, balance
// credit, loss-streak update, and persistence. Called with the lock
// held; idx must be a valid index into state.OpenPositions.
func (e *Engine) closeLocked(idx int, exitPrice decimal.Decimal, reason string, now time.Time) types.PaperTrade {
	pos := e.state.OpenPositions[idx]

	pnl := pos.Shares.Mul(exitPrice).Sub(pos.Size)
	pnlPctF, _ := pnl.Div(pos.Size).Float64()
	isWin := pnl.IsPositive()

	e.state.Balance = e.state.Balance.Add(pos.Size).Add(pnl)
	if isWin {
		e.state.LossStreak = 0
	} else {
		e.state.LossStreak++
	}

	trade := types.PaperTrade{
		PaperPosition: pos,
		ID:            uuid.NewString(),
		ExitPrice:     exitPrice,
		ExitReason:    reason,
		ExitTime:      now,
		PnLDollars:    pnl,
		PnLPercent:    pnlPctF,
		IsWin:         isWin,
		BalanceAfter:  e.state.Balance,
	}

	e.state.OpenPositions = append(e.state.OpenPositions[:idx], e.state.OpenPositions[idx+1:]...)
	delete(e.openIdx, pos.MarketID)
	for id, i := range e.openIdx {
		if i > idx {
			e.openIdx[id] = i - 1
		}
	}
	e.state.ClosedTrades = append(e.state.ClosedTrades, trade)
	e.persistLocked()

	return trade
}

// DailyReport aggregates portfolio status for a daily summary.
type DailyReport struct {
	Balance        decimal.Decimal
	TotalPnL       decimal.Decimal
	TodaysTrades   []types.PaperTrade
	TodaysWins     int
	TodaysLosses   int
	WinRate        float64
	AvgWinPercent  float64
	AvgLossPercent float64
	OpenPositions  []types.PaperPosition
	LossStreak     int
	Paused         bool
}

// GetDailyReport aggregates balance, total PnL, today's (UTC-date)
// closed trades, win/loss counts and rates, open positions, and
// circuit-breaker state.
func (e *Engine) GetDailyReport(now time.Time) DailyReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	today := now.UTC().Format("2006-01-02")
	totalPnL := decimal.Zero
	var todays []types.PaperTrade
	var wins, losses int
	var sumWinPct, sumLossPct float64

	for _, t := range e.state.ClosedTrades {
		totalPnL = totalPnL.Add(t.PnLDollars)
		if t.ExitTime.UTC().Format("2006-01-02") == today {
			todays = append(todays, t)
			if t.IsWin {
				wins++
				sumWinPct += t.PnLPercent
			} else {
				losses++
				sumLossPct += t.PnLPercent
			}
		}
	}

	winRate := 0.0
	if wins+losses > 0 {
		winRate = float64(wins) / float64(wins+losses)
	}
	avgWin := 0.0
	if wins > 0 {
		avgWin = sumWinPct / float64(wins)
	}
	avgLoss := 0.0
	if losses > 0 {
		avgLoss = sumLossPct / float64(losses)
	}

	open := make([]types.PaperPosition, len(e.state.OpenPositions))
	copy(open, e.state.OpenPositions)

	return DailyReport{
		Balance:        e.state.Balance,
		TotalPnL:       totalPnL,
		TodaysTrades:   todays,
		TodaysWins:     wins,
		TodaysLosses:   losses,
		WinRate:        winRate,
		AvgWinPercent:  avgWin,
		AvgLossPercent: avgLoss,
		OpenPositions:  open,
		LossStreak:     e.state.LossStreak,
		Paused:         e.state.Paused,
	}
}

// Summary renders a DailyReport as a short human-readable status
// line for the daily chat report.
func (r DailyReport) Summary() string {
	status := "ACTIVE"
	if r.Paused {
		status = "PAUSED"
	}
	return fmt.Sprintf(
		"Balance: %s | Total PnL: %s | Today: %d/%d (win rate %.0f%%) | Avg win %.1f%% / Avg loss %.1f%% | Open: %d | Loss streak: %d | %s",
		r.Balance.StringFixed(2), r.TotalPnL.StringFixed(2),
		r.TodaysWins, r.TodaysWins+r.TodaysLosses, r.WinRate*100,
		r.AvgWinPercent*100, r.AvgLossPercent*100,
		len(r.OpenPositions), r.LossStreak, status,
	)
}

func clampDecimal(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
