package detect

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/types"
)

// NewsImpactDetector flags news items whose keyword-match relevance to
// a market clears the minimum threshold.
type NewsImpactDetector struct {
	cfg Config
	log *zap.Logger
}

func NewNewsImpactDetector(cfg Config, log *zap.Logger) *NewsImpactDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &NewsImpactDetector{cfg: cfg, log: log}
}

func (d *NewsImpactDetector) Observe(item types.NewsItem) *types.AnomalyDetected {
	if item.Relevance < d.cfg.NewsMinRelevance {
		return nil
	}
	severity := item.Relevance
	if severity > 1 {
		severity = 1
	}
	headline := item.Headline
	if len(headline) > 80 {
		headline = headline[:80]
	}
	return &types.AnomalyDetected{
		ID:          uuid.NewString(),
		Type:        types.AnomalyNewsImpact,
		MarketID:    item.MarketID,
		Description: fmt.Sprintf("News impact on %s: %s", item.MarketID, headline),
		Severity:    severity,
		Details: map[string]any{
			"relevance": item.Relevance,
			"source":    item.Source,
			"url":       item.URL,
			"headline":  headline,
		},
		TS: item.TS,
	}
}
