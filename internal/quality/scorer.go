// Package quality implements the rule-based 0-100 quality scorer that
// gates which anomalies may become actionable trading signals.
package quality

import (
	"strings"
	"time"

	"github.com/marketpulse/pulsecore/internal/config"
)

// MarketType classifies a question's resolution mechanism.
type MarketType string

const (
	TypeLiveSports          MarketType = "LiveSports"
	TypePriceBinary         MarketType = "PriceBinary"
	TypeObjectiveMeasurable MarketType = "ObjectiveMeasurable"
	TypeUnknown             MarketType = "Unknown"
)

// Input is everything the scorer needs to evaluate one anomaly
// candidate into an actionable-or-not signal.
type Input struct {
	Question           string
	Category           string
	EndDate            *time.Time
	Volume             float64
	AnomalySignalCount int
	HasNewsCatalyst    bool
	Now                time.Time
}

// Result is the scorer's full verdict.
type Result struct {
	Score             int
	Type              MarketType
	HoursToResolution *float64
	Reasons           []string
	Blocks            []string
}

// IsActionable reports whether this result clears the actionability
// bar: score >= threshold and no hard blocks.
func (r Result) IsActionable(threshold int) bool {
	return r.Score >= threshold && len(r.Blocks) == 0
}

// Calculator is the configured scorer.
type Calculator struct {
	cfg config.QualityConfig
}

func NewCalculator(cfg config.QualityConfig) *Calculator {
	return &Calculator{cfg: cfg}
}

// Score evaluates an Input. The first five hard blocks (subjective
// category/keywords, volume floor, past end date, stale no-catalyst
// market, unclassifiable market type) short-circuit before any score
// component is added, so a blocked-this-way result carries score=0.
// The remaining two hard blocks (secondary volume floor, insufficient
// anomaly signals) are evaluated after scoring and leave the computed
// score intact while still marking the result non-actionable.
func (c *Calculator) Score(in Input) Result {
	classification := classify(in.Question, in.Category, c.cfg)
	var hours *float64
	if in.EndDate != nil {
		h := in.EndDate.Sub(in.Now).Hours()
		hours = &h
	}

	var blocks, reasons []string

	if isSubjective(in.Question, in.Category, c.cfg) {
		blocks = append(blocks, "subjective market")
	}
	if in.Volume < c.cfg.MinVolumeHardBlock {
		blocks = append(blocks, "volume below minimum")
	}
	if in.EndDate != nil && in.EndDate.Before(in.Now) {
		blocks = append(blocks, "end date already past")
	}
	if hours != nil && *hours > c.cfg.MaxHoursNoNews && !in.HasNewsCatalyst {
		blocks = append(blocks, "resolution too far out without a news catalyst")
	}
	if classification == TypeUnknown {
		blocks = append(blocks, "unclassifiable market type")
	}
	if len(blocks) > 0 {
		return Result{Score: 0, Type: classification, HoursToResolution: hours, Blocks: blocks}
	}

	score := 0
	switch {
	case hours != nil && *hours <= 24:
		score += 30
		reasons = append(reasons, "resolves within 24h")
	case hours != nil && *hours <= 72:
		score += 20
		reasons = append(reasons, "resolves within 72h")
	case hours != nil && *hours <= 168:
		score += 10
		reasons = append(reasons, "resolves within 168h")
	case hours == nil:
		score += 5
		reasons = append(reasons, "no end date")
	}

	switch classification {
	case TypeLiveSports:
		score += 25
		reasons = append(reasons, "live sports market")
	case TypePriceBinary:
		score += 20
		reasons = append(reasons, "price-binary market")
	case TypeObjectiveMeasurable:
		score += 15
		reasons = append(reasons, "objectively measurable market")
	}

	switch {
	case in.Volume >= 1_000_000:
		score += 15
		reasons = append(reasons, "volume >= 1M")
	case in.Volume >= 500_000:
		score += 10
		reasons = append(reasons, "volume >= 500k")
	case in.Volume >= 100_000:
		score += 5
		reasons = append(reasons, "volume >= 100k")
	}

	switch {
	case in.AnomalySignalCount >= 3:
		score += 30
		reasons = append(reasons, "3+ corroborating anomaly signals")
	case in.AnomalySignalCount == 2:
		score += 15
		reasons = append(reasons, "2 corroborating anomaly signals")
	}

	if in.Volume < c.cfg.MinVolumeSoftBlock {
		blocks = append(blocks, "volume below 100k")
	}
	if in.AnomalySignalCount < c.cfg.MinAnomalySignals {
		blocks = append(blocks, "fewer than 2 anomaly signals")
	}

	return Result{Score: score, Type: classification, HoursToResolution: hours, Reasons: reasons, Blocks: blocks}
}

func isSubjective(question, category string, cfg config.QualityConfig) bool {
	lowerCat := strings.ToLower(category)
	for _, c := range cfg.SubjectiveCategories {
		if lowerCat == strings.ToLower(c) {
			return true
		}
	}
	lowerQ := strings.ToLower(question)
	for _, kw := range cfg.SubjectiveKeywords {
		if strings.Contains(lowerQ, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func classify(question, category string, cfg config.QualityConfig) MarketType {
	lowerQ := strings.ToLower(question)
	if strings.EqualFold(category, "sports") || containsAny(lowerQ, cfg.SportsKeywords) {
		return TypeLiveSports
	}
	if containsAny(lowerQ, cfg.PriceKeywords) {
		return TypePriceBinary
	}
	if strings.HasPrefix(question, "Will ") {
		return TypeObjectiveMeasurable
	}
	return TypeUnknown
}

func containsAny(lowerText string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowerText, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
