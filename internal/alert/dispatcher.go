package alert

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/marketpulse/pulsecore/internal/cache"
	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/errs"
	"github.com/marketpulse/pulsecore/internal/paperengine"
	"github.com/marketpulse/pulsecore/internal/quality"
	"github.com/marketpulse/pulsecore/internal/types"
)

// Dispatcher owns the full alerting gate chain: the hard
// qualification gate, the persistent per-day rate limit, the
// in-memory per-(marketId,type) dedup window, the per-minute throttle,
// and the side-effect ordering around formatting and transport.
type Dispatcher struct {
	cfg       config.AlertConfig
	paper     *paperengine.Engine
	names     *cache.NameResolver
	transport Transport
	limiter   *rate.Limiter
	log       *zap.Logger

	mu    sync.Mutex
	state types.RateLimitState
	dedup map[string]time.Time
}

// NewDispatcher constructs a Dispatcher, loading any durable rate-limit
// state from cfg.RateLimitFile.
func NewDispatcher(cfg config.AlertConfig, paper *paperengine.Engine, names *cache.NameResolver, transport Transport, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	maxPerMinute := cfg.MaxAlertsPerMinute
	if maxPerMinute <= 0 {
		maxPerMinute = 1
	}
	d := &Dispatcher{
		cfg:       cfg,
		paper:     paper,
		names:     names,
		transport: transport,
		log:       log,
		dedup:     make(map[string]time.Time),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(maxPerMinute)), maxPerMinute),
	}
	if err := d.loadRateState(); err != nil {
		log.Warn("alert: starting with fresh rate-limit state, load failed", zap.Error(err))
	}
	return d
}

func (d *Dispatcher) loadRateState() error {
	if d.cfg.RateLimitFile == "" {
		return nil
	}
	data, err := os.ReadFile(d.cfg.RateLimitFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Persistence("alert.loadRateState", err)
	}
	var st types.RateLimitState
	if err := json.Unmarshal(data, &st); err != nil {
		return errs.Persistence("alert.loadRateState unmarshal", err)
	}
	d.state = st
	return nil
}

func (d *Dispatcher) persistRateStateLocked() {
	if d.cfg.RateLimitFile == "" {
		return
	}
	if err := writeJSONAtomic(d.cfg.RateLimitFile, d.state); err != nil {
		d.log.Warn("alert: persist rate-limit state failed", zap.Error(err))
	}
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Persistence("alert.persist mkdir", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Persistence("alert.persist marshal", err)
	}
	tmp, err := os.CreateTemp(dir, ".ratelimit-*.tmp")
	if err != nil {
		return errs.Persistence("alert.persist tempfile", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errs.Persistence("alert.persist write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errs.Persistence("alert.persist close", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errs.Persistence("alert.persist rename", err)
	}
	return nil
}

// Dispatch runs the full gate chain for one anomaly, already scored by
// the quality package, and transports a formatted alert if every gate
// passes. question and url are the fallback market name (used when the
// name resolver cache has no entry yet) and the external market link.
// A gate rejection is not an error: Dispatch returns nil either way,
// distinguishing only via logs.
func (d *Dispatcher) Dispatch(ctx context.Context, a types.AnomalyDetected, qr quality.Result, question, url string, now time.Time) error {
	if a.Severity < d.cfg.MinSeverity {
		return nil
	}
	signal, _ := a.Details[types.DetailSignal].(string)
	if qr.Score < d.cfg.MinQualityScore || (signal != "BUY YES" && signal != "BUY NO") {
		return nil
	}

	d.mu.Lock()

	today := now.UTC().Format("2006-01-02")
	if d.state.Date != today {
		d.state = types.RateLimitState{Date: today}
	}
	if d.state.TodayCount >= d.cfg.MaxAlertsPerDay {
		d.mu.Unlock()
		d.log.Debug("alert: dropped, daily cap reached", zap.String("marketId", a.MarketID))
		return nil
	}
	if d.state.LastSignalTime != nil && now.Sub(*d.state.LastSignalTime) < d.cfg.CooldownMinutes {
		d.mu.Unlock()
		d.log.Debug("alert: dropped, within cooldown", zap.String("marketId", a.MarketID))
		return nil
	}

	// dedupKey is only checked here, not committed: it's written after
	// transport.Send succeeds below, so a throttled or failed send never
	// poisons a later retry of the same marketId+type with a phantom
	// dedup entry.
	dedupKey := a.MarketID + "|" + string(a.Type)
	if last, ok := d.dedup[dedupKey]; ok && now.Sub(last) < d.cfg.DeduplicationMinutes {
		d.mu.Unlock()
		d.log.Debug("alert: dropped, deduplicated", zap.String("marketId", a.MarketID))
		return nil
	}
	d.mu.Unlock()

	if !d.limiter.AllowN(now, 1) {
		d.log.Debug("alert: dropped, per-minute throttle", zap.String("marketId", a.MarketID))
		return nil
	}

	name, ok := d.names.Get(a.MarketID)
	if !ok || name == "" {
		name = question
	}

	direction := types.DirectionNo
	if signal == "BUY YES" {
		direction = types.DirectionYes
	}
	entryPrice := decimal.Zero
	if bp, ok := a.Details[types.DetailBuyPrice].(float64); ok {
		entryPrice = decimal.NewFromFloat(bp)
	}
	catalyst, _ := a.Details[types.DetailCatalyst].(string)

	// TryEnter runs before transport: a failed send still consumes a
	// portfolio slot, while the rate-limit counters below are only
	// committed after a successful send.
	pos, err := d.paper.TryEnter(a.MarketID, name, direction, entryPrice, qr.Score, catalyst, qr.HoursToResolution, now)
	if err != nil {
		d.log.Warn("alert: paper engine TryEnter failed", zap.Error(err))
	}

	msg := format(messageInput{
		Anomaly:      a,
		Quality:      qr,
		MarketName:   name,
		URL:          url,
		Position:     pos,
		Balance:      d.paper.Balance(),
		OpenPosCount: len(d.paper.OpenPositions()),
	})

	if err := d.transport.Send(ctx, msg); err != nil {
		d.log.Warn("alert: transport send failed", zap.Error(err))
		return nil
	}

	d.mu.Lock()
	d.pruneDedupLocked(now)
	d.dedup[dedupKey] = now
	d.state.TodayCount++
	nowCopy := now
	d.state.LastSignalTime = &nowCopy
	d.persistRateStateLocked()
	d.mu.Unlock()

	return nil
}

// pruneDedupLocked drops dedup entries older than the deduplication
// window once the map exceeds its configured bound. Called with the
// lock already held.
func (d *Dispatcher) pruneDedupLocked(now time.Time) {
	max := d.cfg.DedupMapMaxEntries
	if max <= 0 || len(d.dedup) <= max {
		return
	}
	for k, t := range d.dedup {
		if now.Sub(t) >= d.cfg.DeduplicationMinutes {
			delete(d.dedup, k)
		}
	}
}
