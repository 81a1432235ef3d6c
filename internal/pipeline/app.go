package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/alert"
	"github.com/marketpulse/pulsecore/internal/cache"
	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/detect"
	"github.com/marketpulse/pulsecore/internal/fairvalue"
	"github.com/marketpulse/pulsecore/internal/ingest"
	"github.com/marketpulse/pulsecore/internal/paperengine"
	"github.com/marketpulse/pulsecore/internal/quality"
	"github.com/marketpulse/pulsecore/internal/types"
)

// Streams is every inbound channel the pipeline selects over, one
// per inbound stream type. A nil channel is simply never
// selected (the zero value of a nil channel blocks forever in a
// select, which is exactly the "this stream isn't wired" behavior).
type Streams struct {
	Snapshots    <-chan types.MarketSnapshot
	PriceChanges <-chan types.PriceChange
	Trades       <-chan types.Trade
	OrderBooks   <-chan types.OrderBook
	News         <-chan types.NewsItem
	CryptoPrices <-chan types.CryptoPrice
}

// positionMonitorInterval is how often the pipeline re-checks every
// open paper position's stop-loss/take-profit against its own
// latest-known market price.
const positionMonitorInterval = 30 * time.Second

// Bounds on the inbound-dedup sets; each is flushed wholesale once it
// grows past its limit.
const (
	seenTradeMaxEntries = 10_000
	seenNewsMaxEntries  = 5_000
)

// corroborationWindow is how long an anomaly keeps corroborating a
// market's quality score after it fires. The metadata cache counts
// distinct anomaly types still inside this window, not a running total,
// and hands that count to the scorer, so a stale signal ages out
// instead of corroborating forever.
const corroborationWindow = time.Hour

// newsCatalystWindow is how long a news item keeps clearing the
// scorer's catalyst requirement after it lands. It is independent of
// quality.QualityConfig.MaxHoursNoNews (168h by default).
const newsCatalystWindow = 24 * time.Hour

// App wires the full detector suite, fair-value engine, quality
// scorer, paper-trading engine, alert dispatcher and (optional)
// auto-bet strategist into one running process, grounded on
// internal/app.App's constructor-wires-everything-then-Run-selects-
// over-channels shape.
type App struct {
	cfg config.Config
	log *zap.Logger

	priceSpike  *detect.PriceSpikeDetector
	volumeSpike *detect.VolumeSpikeDetector
	whale       *detect.WhaleDetector
	divergence  *detect.MarketDivergenceDetector
	imbalance   *detect.OrderBookImbalanceDetector
	spread      *detect.SpreadDetector
	news        *detect.NewsImpactDetector
	crypto      *detect.CryptoDivergenceDetector
	fv          *fairvalue.Calculator

	scorer     *quality.Calculator
	paper      *paperengine.Engine
	dispatch   *alert.Dispatcher
	autobet    *autoBetStrategist
	names      *cache.NameResolver
	cryptoJoin *cache.CryptoMarketCache
	meta       *metaCache
	seenTrades *cache.BoundedSeenSet
	seenNews   *cache.BoundedSeenSet

	lastPrice map[string]float64
}

// New constructs an App from cfg, building its own name-resolver and
// crypto-market caches (populated only by the snapshot stream);
// transport and orderClient are the only out-of-repo collaborators
// this package cannot construct on its own.
func New(cfg config.Config, transport alert.Transport, orderClient ingest.OrderSigningClient, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	fv := fairvalue.NewCalculator(cfg.FairValue.MinProbability, cfg.FairValue.MaxProbability)
	paper := paperengine.New(cfg.Paper, log)
	names := cache.NewNameResolver()

	return &App{
		cfg: cfg,
		log: log,

		priceSpike:  detect.NewPriceSpikeDetector(cfg.Detector, log),
		volumeSpike: detect.NewVolumeSpikeDetector(cfg.Detector, log),
		whale:       detect.NewWhaleDetector(cfg.Detector, log),
		divergence:  detect.NewMarketDivergenceDetector(cfg.Detector, log),
		imbalance:   detect.NewOrderBookImbalanceDetector(cfg.Detector, log),
		spread:      detect.NewSpreadDetector(cfg.Detector, log),
		news:        detect.NewNewsImpactDetector(cfg.Detector, log),
		crypto:      detect.NewCryptoDivergenceDetector(cfg.Detector, fv, log),
		fv:          fv,

		scorer:     quality.NewCalculator(cfg.Quality),
		paper:      paper,
		dispatch:   alert.NewDispatcher(cfg.Alert, paper, names, transport, log),
		autobet:    newAutoBetStrategist(cfg.AutoBet, orderClient, log),
		names:      names,
		cryptoJoin: cache.NewCryptoMarketCache(),
		meta:       newMetaCache(corroborationWindow, newsCatalystWindow),
		seenTrades: cache.NewBoundedSeenSet(seenTradeMaxEntries),
		seenNews:   cache.NewBoundedSeenSet(seenNewsMaxEntries),

		lastPrice: make(map[string]float64),
	}
}

// Run selects over every wired stream in in until ctx is cancelled,
// fanning each inbound message out to its detector(s), then each
// resulting anomaly through the quality scorer to the alert dispatcher
// and the auto-bet strategist, alongside a ticker that re-checks every
// open paper position against its latest-known price.
func (a *App) Run(ctx context.Context, in Streams) error {
	monitorTicker := time.NewTicker(positionMonitorInterval)
	defer monitorTicker.Stop()

	snapshots, priceChanges, trades, orderBooks, news, cryptoPrices := in.Snapshots, in.PriceChanges, in.Trades, in.OrderBooks, in.News, in.CryptoPrices

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap, ok := <-snapshots:
			if !ok {
				snapshots = nil
				continue
			}
			a.handleSnapshot(ctx, snap)

		case ev, ok := <-priceChanges:
			if !ok {
				priceChanges = nil
				continue
			}
			a.handlePriceChange(ctx, ev)

		case t, ok := <-trades:
			if !ok {
				trades = nil
				continue
			}
			a.handleTrade(ctx, t)

		case book, ok := <-orderBooks:
			if !ok {
				orderBooks = nil
				continue
			}
			a.handleOrderBook(ctx, book)

		case item, ok := <-news:
			if !ok {
				news = nil
				continue
			}
			a.handleNews(ctx, item)

		case tick, ok := <-cryptoPrices:
			if !ok {
				cryptoPrices = nil
				continue
			}
			a.handleCryptoPrice(ctx, tick)

		case <-monitorTicker.C:
			a.monitorPositions()
		}
	}
}

func (a *App) handleSnapshot(ctx context.Context, snap types.MarketSnapshot) {
	a.names.Put(snap.MarketID, snap.Question)
	a.meta.putSnapshot(snap)
	yes, _ := snap.YesPrice.Float64()
	a.lastPrice[snap.MarketID] = yes

	if match, ok := fairvalue.ParseQuestion(snap.Question, snap.TS); ok {
		yes, _ := snap.YesPrice.Float64()
		vol, _ := snap.Volume24h.Float64()
		endUnix := unixOrNil(match.ExpiryDate)
		target, _ := match.TargetPrice.Float64()
		a.cryptoJoin.Put(match.Symbol, cache.CryptoMarketEntry{
			MarketID:    snap.MarketID,
			Question:    snap.Question,
			YesPrice:    yes,
			Volume24h:   vol,
			EndDate:     endUnix,
			TargetPrice: target,
			IsAbove:     match.IsAbove,
		})
	}

	if anomaly := a.divergence.Observe(snap); anomaly != nil {
		a.publish(ctx, *anomaly, snap.Question)
	}
	if anomaly := a.divergence.DetectArbitrage(snap); anomaly != nil {
		a.publish(ctx, *anomaly, snap.Question)
	}
	if anomaly := a.volumeSpike.Observe(snap); anomaly != nil {
		a.publish(ctx, *anomaly, snap.Question)
	}
}

func (a *App) handlePriceChange(ctx context.Context, ev types.PriceChange) {
	newPrice, _ := ev.NewPrice.Float64()
	a.lastPrice[ev.MarketID] = newPrice
	if anomaly := a.priceSpike.Observe(ev); anomaly != nil {
		a.publish(ctx, *anomaly, ev.Question)
	}
}

func (a *App) handleTrade(ctx context.Context, t types.Trade) {
	// Polling producers redeliver recent trades; the bounded seen-set
	// keeps a redelivered trade from re-firing the whale detector.
	key := fmt.Sprintf("%s|%s|%d|%s", t.MarketID, t.TraderAddress, t.TS.UnixNano(), t.Size)
	if a.seenTrades.CheckAndAdd(key) {
		return
	}
	if anomaly := a.whale.Observe(t); anomaly != nil {
		a.publish(ctx, *anomaly, "")
	}
}

func (a *App) handleOrderBook(ctx context.Context, book types.OrderBook) {
	a.lastPrice[book.MarketID] = midpoint(book)
	if anomaly := a.imbalance.Observe(book); anomaly != nil {
		a.publish(ctx, *anomaly, "")
	}
	if anomaly := a.spread.Observe(book); anomaly != nil {
		a.publish(ctx, *anomaly, "")
	}
}

func (a *App) handleNews(ctx context.Context, item types.NewsItem) {
	if item.URL != "" && a.seenNews.CheckAndAdd(item.URL) {
		return
	}
	a.meta.noteNews(item.MarketID, item.TS)
	if anomaly := a.news.Observe(item); anomaly != nil {
		a.publish(ctx, *anomaly, "")
	}
}

func (a *App) handleCryptoPrice(ctx context.Context, tick types.CryptoPrice) {
	for _, entry := range a.cryptoJoin.BySymbol(tick.Symbol) {
		match := types.CryptoMarketMatch{
			Symbol:      tick.Symbol,
			IsAbove:     entry.IsAbove,
			TargetPrice: decimalFromFloat(entry.TargetPrice),
		}
		if entry.EndDate != nil {
			ts := time.Unix(*entry.EndDate, 0).UTC()
			match.ExpiryDate = &ts
		}
		anomaly := a.crypto.Observe(detect.CryptoDivergenceInput{
			MarketID: entry.MarketID,
			YesPrice: entry.YesPrice,
			Match:    match,
			Price:    tick,
			Now:      tick.TS,
		})
		if anomaly != nil {
			a.publish(ctx, *anomaly, entry.Question)
		}
	}
}

// publish scores anomaly against the metadata cache and fans the
// scored result out to the alert dispatcher and, if configured, the
// auto-bet strategist, two independently-gated subscribers.
func (a *App) publish(ctx context.Context, anomaly types.AnomalyDetected, question string) {
	now := anomaly.TS
	if now.IsZero() {
		now = time.Now()
	}
	a.meta.noteAnomaly(anomaly.MarketID, anomaly.Type, now)
	meta, corroborating, hasNews := a.meta.snapshot(anomaly.MarketID, now)

	if question == "" {
		question = meta.Question
	}
	if anomaly.Details == nil {
		anomaly.Details = make(map[string]any)
	}
	if _, ok := anomaly.Details[types.DetailCatalyst]; !ok {
		anomaly.Details[types.DetailCatalyst] = string(anomaly.Type)
	}

	qr := a.scorer.Score(quality.Input{
		Question:           question,
		Category:           meta.Category,
		EndDate:            meta.EndDate,
		Volume:             meta.Volume,
		AnomalySignalCount: corroborating,
		HasNewsCatalyst:    hasNews,
		Now:                now,
	})

	if err := a.dispatch.Dispatch(ctx, anomaly, qr, question, "", now); err != nil {
		a.log.Warn("pipeline: dispatch failed", zap.Error(err))
	}
	a.autobet.evaluate(ctx, anomaly, qr, now)
}

// monitorPositions re-checks every open paper position's exit
// conditions against the last price observed for its market.
func (a *App) monitorPositions() {
	now := time.Now()
	for _, pos := range a.paper.OpenPositions() {
		price, ok := a.lastPrice[pos.MarketID]
		if !ok {
			continue
		}
		if _, err := a.paper.CheckAndClose(pos.MarketID, decimalFromFloat(price), "", now); err != nil {
			a.log.Warn("pipeline: CheckAndClose failed", zap.String("marketId", pos.MarketID), zap.Error(err))
		}
	}
}

func midpoint(book types.OrderBook) float64 {
	bid, _ := book.BestBid.Float64()
	ask, _ := book.BestAsk.Float64()
	return (bid + ask) / 2
}

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func unixOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.Unix()
	return &u
}
