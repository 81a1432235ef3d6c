package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/ingest"
	"github.com/marketpulse/pulsecore/internal/quality"
	"github.com/marketpulse/pulsecore/internal/types"
)

// autoBetStrategist is the "threshold + cooldown -> order placement"
// subscriber that runs alongside the alerter, deliberately disabled by
// default (config.AutoBetConfig.Enabled): it depends on
// ingest.OrderSigningClient, an external on-chain signing client, so a
// caller must supply a concrete implementation before this path can
// place anything.
type autoBetStrategist struct {
	cfg    config.AutoBetConfig
	client ingest.OrderSigningClient
	log    *zap.Logger

	mu       sync.Mutex
	lastBet  map[string]time.Time
}

func newAutoBetStrategist(cfg config.AutoBetConfig, client ingest.OrderSigningClient, log *zap.Logger) *autoBetStrategist {
	if log == nil {
		log = zap.NewNop()
	}
	return &autoBetStrategist{cfg: cfg, client: client, log: log, lastBet: make(map[string]time.Time)}
}

// evaluate applies the gate chain and, if every gate passes, places a
// live order through the configured signing client. It never returns
// an error: every gate rejection returns nil, and a placement attempt,
// successful or not, returns a types.BetPlaced whose Err holds any
// placement failure.
func (s *autoBetStrategist) evaluate(ctx context.Context, a types.AnomalyDetected, qr quality.Result, now time.Time) *types.BetPlaced {
	if !s.cfg.Enabled || s.client == nil {
		return nil
	}
	if a.Severity < s.cfg.MinSeverity || qr.Score < s.cfg.MinQualityScore {
		return nil
	}
	signal, _ := a.Details[types.DetailSignal].(string)
	if signal != "BUY YES" && signal != "BUY NO" {
		return nil
	}

	s.mu.Lock()
	if last, ok := s.lastBet[a.MarketID]; ok && now.Sub(last) < s.cfg.CooldownMinutes {
		s.mu.Unlock()
		return nil
	}
	s.lastBet[a.MarketID] = now
	s.mu.Unlock()

	side := types.SideBuy
	price, _ := a.Details[types.DetailBuyPrice].(float64)

	orderID, err := s.client.PlaceOrder(ctx, a.MarketID, side, price, s.cfg.OrderSizeUSD)
	result := &types.BetPlaced{
		MarketID: a.MarketID,
		Side:     side,
		Price:    price,
		SizeUSD:  s.cfg.OrderSizeUSD,
		OrderID:  orderID,
		TS:       now,
	}
	if err != nil {
		result.Err = err.Error()
		s.log.Warn("autobet: order placement failed", zap.String("marketId", a.MarketID), zap.Error(err))
	} else {
		s.log.Info("autobet: order placed", zap.String("marketId", a.MarketID), zap.String("orderId", orderID))
	}
	return result
}
