// Package ingest declares the external collaborators this analytics
// core depends on but never implements: market metadata, trade
// history, order-book, crypto ticker, and news-feed sources.
// Every type here is a Go interface; a caller outside this repository
// wires a concrete implementation against the real market/data/CLOB
// SDK, RSS client, or crypto exchange stream.
package ingest

import (
	"context"
	"time"

	"github.com/marketpulse/pulsecore/internal/types"
)

// MarketMetadataService looks up market metadata: question, outcome
// prices, volume, liquidity, endDate, category, event slug.
type MarketMetadataService interface {
	// ListMarkets returns a page of active markets.
	ListMarkets(ctx context.Context, cursor string, limit int) (markets []types.MarketSnapshot, nextCursor string, err error)
	// GetMarket looks up a single market by its condition id.
	GetMarket(ctx context.Context, conditionID string) (types.MarketSnapshot, error)
}

// TradeHistoryService returns recent trades for a market.
type TradeHistoryService interface {
	RecentTrades(ctx context.Context, marketID string, limit int) ([]types.Trade, error)
}

// OrderBookService returns best bid/ask and depth for a token.
type OrderBookService interface {
	GetOrderBook(ctx context.Context, tokenID string) (types.OrderBook, error)
}

// CryptoTick is one message from the combined crypto ticker stream,
// mirroring the upstream wire shape `{stream, data:{s, c}}`.
type CryptoTick struct {
	Stream string
	Symbol string
	Price  float64
	TS     time.Time
}

// CryptoTickerStream is a long-lived subscription to a combined
// crypto-price WebSocket.
type CryptoTickerStream interface {
	Subscribe(ctx context.Context, symbols []string) (<-chan CryptoTick, error)
	Close() error
}

// NewsFeedSource polls a configured list of RSS feed URLs and yields
// parsed news items.
type NewsFeedSource interface {
	Poll(ctx context.Context) ([]types.NewsItem, error)
}

// OrderSigningClient places live orders on-chain. It is declared
// only so the auto-bet strategist can depend on an interface rather
// than a concrete chain-signing SDK.
type OrderSigningClient interface {
	PlaceOrder(ctx context.Context, marketID string, side types.Side, price, sizeUSD float64) (orderID string, err error)
}
