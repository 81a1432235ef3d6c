// Package types holds the shared event and state shapes that flow
// between the detector suite, the fair-value engine, the quality
// scorer, the paper-trading engine, and the alert dispatcher.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade or a detector's implied position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Direction is the side of a binary market a signal recommends buying.
type Direction string

const (
	DirectionYes Direction = "YES"
	DirectionNo  Direction = "NO"
)

// MarketSnapshot is a point-in-time view of a binary market.
type MarketSnapshot struct {
	MarketID  string
	Question  string
	YesPrice  decimal.Decimal
	NoPrice   decimal.Decimal
	Volume24h decimal.Decimal
	Liquidity decimal.Decimal
	EndDate   *time.Time
	Category  string
	TS        time.Time
}

// PriceChange is the inbound MarketPriceChanged message.
type PriceChange struct {
	MarketID      string
	Question      string
	OldPrice      decimal.Decimal
	NewPrice      decimal.Decimal
	ChangePercent float64
	TS            time.Time
}

// Trade is a single executed trade on a market.
type Trade struct {
	MarketID      string
	TraderAddress string
	Side          Side
	Size          decimal.Decimal
	Price         decimal.Decimal
	TS            time.Time
}

// Value returns size*price, the notional value of the trade.
func (t Trade) Value() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

// OrderBook is a top-of-book + aggregated depth view for a market.
type OrderBook struct {
	MarketID string
	BestBid  decimal.Decimal
	BestAsk  decimal.Decimal
	BidDepth decimal.Decimal
	AskDepth decimal.Decimal
	TS       time.Time
}

// Spread returns bestAsk - bestBid.
func (b OrderBook) Spread() decimal.Decimal {
	return b.BestAsk.Sub(b.BestBid)
}

// ImbalanceRatio returns (bidDepth-askDepth)/(bidDepth+askDepth), or 0
// when both sides are empty.
func (b OrderBook) ImbalanceRatio() float64 {
	total := b.BidDepth.Add(b.AskDepth)
	if total.IsZero() {
		return 0
	}
	return b.BidDepth.Sub(b.AskDepth).Div(total).InexactFloat64()
}

// NewsItem is an external headline matched to a market.
type NewsItem struct {
	MarketID  string
	Headline  string
	Source    string
	URL       string
	Relevance float64
	TS        time.Time
}

// CryptoPrice is an external spot-price tick for a crypto asset.
type CryptoPrice struct {
	Symbol           string
	CurrentPrice     decimal.Decimal
	Price24hAgo      decimal.Decimal
	AnnualVolatility float64
	TS               time.Time
}

// CryptoMarketMatch is the result of parsing a market question into a
// crypto-price prediction: does Symbol cross TargetPrice by ExpiryDate.
type CryptoMarketMatch struct {
	Symbol      string
	TargetPrice decimal.Decimal
	IsAbove     bool
	ExpiryDate  *time.Time
}

// AnomalyType enumerates the kinds of anomaly a detector can emit.
type AnomalyType string

const (
	AnomalyPriceSpike            AnomalyType = "PriceSpike"
	AnomalyVolumeSpike           AnomalyType = "VolumeSpike"
	AnomalyWhaleTrade            AnomalyType = "WhaleTrade"
	AnomalyMarketDivergence      AnomalyType = "MarketDivergence"
	AnomalyNearResolution        AnomalyType = "NearResolution"
	AnomalyOrderBookImbalance    AnomalyType = "OrderBookImbalance"
	AnomalySpread                AnomalyType = "SpreadAnomaly"
	AnomalyNewsImpact            AnomalyType = "NewsImpact"
	AnomalyCryptoDivergence      AnomalyType = "CryptoDivergence"
	AnomalyArbitrageOpportunity  AnomalyType = "ArbitrageOpportunity"
)

// AnomalyDetected is the single fan-out event type published by every
// detector and consumed independently by the alerter, the auto-bet
// strategist, and the (out-of-scope) raw persister.
type AnomalyDetected struct {
	ID          string
	Type        AnomalyType
	MarketID    string
	Description string
	Severity    float64
	Details     map[string]any
	TS          time.Time
}

// Detail keys shared across detectors and consumed by the quality
// scorer and alert dispatcher. Centralised here rather than scattered
// as string literals per-detector.
const (
	DetailSignal           = "signal"           // "BUY YES" | "BUY NO"
	DetailQualityScore     = "qualityScore"
	DetailBuyPrice         = "buyPrice"
	DetailTargetPrice      = "targetPrice"
	DetailROI              = "roi"
	DetailCatalyst         = "catalyst"
	DetailQuestion         = "question"
	DetailCategory         = "category"
	DetailHoursToExpiry    = "hoursToResolution"
	DetailIsBigWhale       = "isBigWhale"
	DetailStrongEdge       = "strongEdge"
)

// PaperPosition is an open simulated position.
type PaperPosition struct {
	MarketID          string
	Question          string
	Direction         Direction
	EntryPrice        decimal.Decimal
	Size              decimal.Decimal
	Shares            decimal.Decimal
	QualityScore      int
	Catalyst          string
	HoursToResolution *float64
	EntryTime         time.Time
}

// PaperTrade is a closed position with exit bookkeeping.
type PaperTrade struct {
	PaperPosition
	ID           string
	ExitPrice    decimal.Decimal
	ExitReason   string
	ExitTime     time.Time
	PnLDollars   decimal.Decimal
	PnLPercent   float64
	IsWin        bool
	BalanceAfter decimal.Decimal
}

// PaperState is the durable, persisted state of the paper portfolio.
type PaperState struct {
	Balance          decimal.Decimal `json:"balance"`
	OpenPositions    []PaperPosition `json:"openPositions"`
	ClosedTrades     []PaperTrade    `json:"closedTrades"`
	TradedMarketIDs  []string        `json:"tradedMarketIds"`
	LossStreak       int             `json:"lossStreak"`
	Paused           bool            `json:"paused"`
	PausedUntil      *time.Time      `json:"pausedUntil,omitempty"`
}

// RateLimitState is the durable counter backing the alert dispatcher's
// per-day alert cap.
type RateLimitState struct {
	Date           string     `json:"date"` // YYYY-MM-DD, UTC
	TodayCount     int        `json:"todayCount"`
	LastSignalTime *time.Time `json:"lastSignalTime,omitempty"`
}

// BetPlaced is the auto-bet strategist's outbound result summary for
// a single live order placement attempt.
type BetPlaced struct {
	MarketID string
	Side     Side
	Price    float64
	SizeUSD  float64
	OrderID  string
	Err      string
	TS       time.Time
}
