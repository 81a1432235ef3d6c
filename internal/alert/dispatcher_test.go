package alert

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marketpulse/pulsecore/internal/cache"
	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/paperengine"
	"github.com/marketpulse/pulsecore/internal/quality"
	"github.com/marketpulse/pulsecore/internal/types"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     []string
	failNext bool
}

func (f *fakeTransport) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errTransport
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var errTransport = &transportErr{"boom"}

type transportErr struct{ msg string }

func (e *transportErr) Error() string { return e.msg }

func testDispatcher(t *testing.T) (*Dispatcher, *fakeTransport) {
	t.Helper()
	cfg := config.Default()
	cfg.Alert.RateLimitFile = filepath.Join(t.TempDir(), "rate_limit.json")
	cfg.Alert.MaxAlertsPerDay = 5
	cfg.Alert.MaxAlertsPerMinute = 10
	cfg.Alert.CooldownMinutes = 30 * time.Minute
	cfg.Alert.DeduplicationMinutes = 15 * time.Minute
	cfg.Alert.DedupMapMaxEntries = 500
	cfg.Alert.MinQualityScore = 60
	cfg.Paper.TradesFile = filepath.Join(t.TempDir(), "paper_trades.json")

	paper := paperengine.New(cfg.Paper, nil)
	names := cache.NewNameResolver()
	ft := &fakeTransport{}
	return NewDispatcher(cfg.Alert, paper, names, ft, nil), ft
}

func qualifiedAnomaly(marketID, signal string) types.AnomalyDetected {
	return types.AnomalyDetected{
		Type:     types.AnomalyCryptoDivergence,
		MarketID: marketID,
		Details: map[string]any{
			types.DetailSignal:   signal,
			types.DetailBuyPrice: 0.30,
			types.DetailROI:      0.25,
		},
	}
}

func qualifiedResult() quality.Result {
	h := 48.0
	return quality.Result{Score: 75, Type: quality.TypePriceBinary, HoursToResolution: &h, Reasons: []string{"resolves within 72h"}}
}

func TestDispatchHardGateRejectsLowScore(t *testing.T) {
	d, ft := testDispatcher(t)
	a := qualifiedAnomaly("M1", "BUY YES")
	low := quality.Result{Score: 40}
	if err := d.Dispatch(context.Background(), a, low, "q", "", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.count() != 0 {
		t.Fatalf("expected no message sent for sub-threshold score")
	}
}

func TestDispatchMinSeverityRejectsWeakAnomaly(t *testing.T) {
	cfg := config.Default()
	cfg.Alert.RateLimitFile = filepath.Join(t.TempDir(), "rate_limit.json")
	cfg.Alert.MinSeverity = 0.5
	cfg.Paper.TradesFile = filepath.Join(t.TempDir(), "paper_trades.json")

	paper := paperengine.New(cfg.Paper, nil)
	ft := &fakeTransport{}
	d := NewDispatcher(cfg.Alert, paper, cache.NewNameResolver(), ft, nil)

	a := qualifiedAnomaly("M1", "BUY YES")
	a.Severity = 0.2
	if err := d.Dispatch(context.Background(), a, qualifiedResult(), "q", "", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.count() != 0 {
		t.Fatalf("expected no message sent below the severity floor")
	}
}

func TestDispatchHardGateRejectsNonSignal(t *testing.T) {
	d, ft := testDispatcher(t)
	a := qualifiedAnomaly("M1", "")
	if err := d.Dispatch(context.Background(), a, qualifiedResult(), "q", "", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.count() != 0 {
		t.Fatalf("expected no message sent without a BUY signal")
	}
}

func TestDispatchSendsQualifiedAlert(t *testing.T) {
	d, ft := testDispatcher(t)
	a := qualifiedAnomaly("M1", "BUY YES")
	if err := d.Dispatch(context.Background(), a, qualifiedResult(), "Will X happen?", "https://example.com/m1", time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ft.count() != 1 {
		t.Fatalf("expected exactly one message sent, got %d", ft.count())
	}
}

func TestDispatchCooldownBlocksSecondAlertWithin30Min(t *testing.T) {
	d, ft := testDispatcher(t)
	now := time.Now()
	d.Dispatch(context.Background(), qualifiedAnomaly("M1", "BUY YES"), qualifiedResult(), "q1", "", now)
	d.Dispatch(context.Background(), qualifiedAnomaly("M2", "BUY YES"), qualifiedResult(), "q2", "", now.Add(10*time.Minute))
	if ft.count() != 1 {
		t.Fatalf("expected second alert within cooldown to be dropped, got %d sent", ft.count())
	}
}

// TestRateLimitPersistedAcrossRestart sends five qualified alerts
// spaced 31 minutes apart with a simulated restart between the 3rd and
// 4th, then expects a 6th alert within the same UTC day to be dropped.
func TestRateLimitPersistedAcrossRestart(t *testing.T) {
	cfg := config.Default()
	rateFile := filepath.Join(t.TempDir(), "rate_limit.json")
	cfg.Alert.RateLimitFile = rateFile
	cfg.Alert.MaxAlertsPerDay = 5
	cfg.Alert.MaxAlertsPerMinute = 100
	cfg.Alert.CooldownMinutes = 30 * time.Minute
	cfg.Alert.DeduplicationMinutes = time.Minute
	cfg.Alert.DedupMapMaxEntries = 500
	cfg.Paper.TradesFile = filepath.Join(t.TempDir(), "paper_trades.json")

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	paper := paperengine.New(cfg.Paper, nil)
	names := cache.NewNameResolver()
	ft := &fakeTransport{}
	d := NewDispatcher(cfg.Alert, paper, names, ft, nil)

	for i := 0; i < 3; i++ {
		now := base.Add(time.Duration(i) * 31 * time.Minute)
		marketID := "M" + string(rune('A'+i))
		d.Dispatch(context.Background(), qualifiedAnomaly(marketID, "BUY YES"), qualifiedResult(), "q", "", now)
	}
	if ft.count() != 3 {
		t.Fatalf("expected 3 alerts sent before restart, got %d", ft.count())
	}

	// Simulated restart: fresh Dispatcher reloads persisted rate-limit state.
	ft2 := &fakeTransport{}
	d2 := NewDispatcher(cfg.Alert, paperengine.New(cfg.Paper, nil), names, ft2, nil)

	now4 := base.Add(3 * 31 * time.Minute)
	d2.Dispatch(context.Background(), qualifiedAnomaly("MD", "BUY YES"), qualifiedResult(), "q", "", now4)
	if ft2.count() != 1 {
		t.Fatalf("expected 4th alert to be permitted after restart, got %d", ft2.count())
	}

	now5 := base.Add(4 * 31 * time.Minute)
	d2.Dispatch(context.Background(), qualifiedAnomaly("ME", "BUY YES"), qualifiedResult(), "q", "", now5)
	if ft2.count() != 2 {
		t.Fatalf("expected 5th alert to be permitted, got %d", ft2.count())
	}

	now6 := base.Add(5 * 31 * time.Minute)
	d2.Dispatch(context.Background(), qualifiedAnomaly("MF", "BUY YES"), qualifiedResult(), "q", "", now6)
	if ft2.count() != 2 {
		t.Fatalf("expected 6th alert within same UTC day to be dropped, got %d sent", ft2.count())
	}
}

func TestDispatchDedupSameMarketAndType(t *testing.T) {
	cfg := config.Default()
	cfg.Alert.RateLimitFile = filepath.Join(t.TempDir(), "rate_limit.json")
	cfg.Alert.MaxAlertsPerDay = 100
	cfg.Alert.MaxAlertsPerMinute = 100
	cfg.Alert.CooldownMinutes = 0 // isolate dedup from the global cooldown gate
	cfg.Alert.DeduplicationMinutes = 15 * time.Minute
	cfg.Alert.DedupMapMaxEntries = 500
	cfg.Paper.TradesFile = filepath.Join(t.TempDir(), "paper_trades.json")

	paper := paperengine.New(cfg.Paper, nil)
	names := cache.NewNameResolver()
	ft := &fakeTransport{}
	d := NewDispatcher(cfg.Alert, paper, names, ft, nil)

	now := time.Now()
	d.Dispatch(context.Background(), qualifiedAnomaly("M1", "BUY YES"), qualifiedResult(), "q", "", now)
	if ft.count() != 1 {
		t.Fatalf("expected first send to succeed")
	}
	// Same marketId+type within the dedup window is dropped even though
	// the global cooldown is disabled.
	d.Dispatch(context.Background(), qualifiedAnomaly("M1", "BUY YES"), qualifiedResult(), "q", "", now.Add(5*time.Minute))
	if ft.count() != 1 {
		t.Fatalf("expected dedup to drop the repeat on the same market+type, got %d sent", ft.count())
	}
	// A different market is unaffected by the dedup entry.
	d.Dispatch(context.Background(), qualifiedAnomaly("M2", "BUY YES"), qualifiedResult(), "q", "", now.Add(6*time.Minute))
	if ft.count() != 2 {
		t.Fatalf("expected a distinct market to still send, got %d sent", ft.count())
	}
}

func TestDispatchTransportFailureDoesNotCommitRateLimit(t *testing.T) {
	d, ft := testDispatcher(t)
	ft.failNext = true
	now := time.Now()
	d.Dispatch(context.Background(), qualifiedAnomaly("M1", "BUY YES"), qualifiedResult(), "q", "", now)
	if ft.count() != 0 {
		t.Fatalf("expected transport failure to record no sent message")
	}

	// A second, later attempt on a different market should still be
	// permitted since the failed send must not have bumped the
	// rate-limit counters or cooldown timer.
	d.Dispatch(context.Background(), qualifiedAnomaly("M2", "BUY YES"), qualifiedResult(), "q", "", now.Add(time.Second))
	if ft.count() != 1 {
		t.Fatalf("expected retry on a fresh market to succeed, got %d sent", ft.count())
	}
}

func TestDispatchRetryOnSameMarketAfterTransportFailureIsNotDeduped(t *testing.T) {
	cfg := config.Default()
	cfg.Alert.RateLimitFile = filepath.Join(t.TempDir(), "rate_limit.json")
	cfg.Alert.MaxAlertsPerDay = 100
	cfg.Alert.MaxAlertsPerMinute = 100
	cfg.Alert.CooldownMinutes = 0 // isolate dedup from the global cooldown gate
	cfg.Alert.DeduplicationMinutes = 15 * time.Minute
	cfg.Alert.DedupMapMaxEntries = 500
	cfg.Paper.TradesFile = filepath.Join(t.TempDir(), "paper_trades.json")

	paper := paperengine.New(cfg.Paper, nil)
	names := cache.NewNameResolver()
	ft := &fakeTransport{}
	d := NewDispatcher(cfg.Alert, paper, names, ft, nil)

	ft.failNext = true
	now := time.Now()
	d.Dispatch(context.Background(), qualifiedAnomaly("M1", "BUY YES"), qualifiedResult(), "q", "", now)
	if ft.count() != 0 {
		t.Fatalf("expected transport failure to record no sent message")
	}

	// The never-delivered alert must not have poisoned the dedup map: a
	// retry for the same marketId+type, still within the deduplication
	// window, must go through once transport recovers.
	d.Dispatch(context.Background(), qualifiedAnomaly("M1", "BUY YES"), qualifiedResult(), "q", "", now.Add(time.Minute))
	if ft.count() != 1 {
		t.Fatalf("expected retry on the same market to succeed after transport recovers, got %d sent", ft.count())
	}
}

func TestDispatchConsumesPaperSlotEvenOnTransportFailure(t *testing.T) {
	d, ft := testDispatcher(t)
	ft.failNext = true
	now := time.Now()
	d.Dispatch(context.Background(), qualifiedAnomaly("M1", "BUY YES"), qualifiedResult(), "q", "", now)
	if ft.count() != 0 {
		t.Fatalf("expected failed send")
	}
	if len(d.paper.OpenPositions()) != 1 {
		t.Fatalf("expected TryEnter to have consumed a slot even though transport failed, got %d open", len(d.paper.OpenPositions()))
	}
}
