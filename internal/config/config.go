package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the analytics pipeline. Each
// nested section configures one component of the pipeline.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Detector  DetectorConfig  `yaml:"detector"`
	Quality   QualityConfig   `yaml:"quality"`
	Paper     PaperConfig     `yaml:"paper"`
	Alert     AlertConfig     `yaml:"alert"`
	FairValue FairValueConfig `yaml:"fair_value"`
	AutoBet   AutoBetConfig   `yaml:"auto_bet"`
}

// DetectorConfig centralises the thresholds shared across the
// detector suite so each value zone, ROI floor, and severity scale is
// set in exactly one place.
type DetectorConfig struct {
	PriceSpikeThresholdPct     float64 `yaml:"price_spike_threshold_pct"`
	PriceSpikeSeverityScale    float64 `yaml:"price_spike_severity_scale"`
	ReversalZoneMin            float64 `yaml:"reversal_zone_min"`
	ReversalZoneMax            float64 `yaml:"reversal_zone_max"`
	ReversalMinROI             float64 `yaml:"reversal_min_roi"`
	MomentumZoneMin            float64 `yaml:"momentum_zone_min"`
	MomentumZoneMax            float64 `yaml:"momentum_zone_max"`
	MomentumMinROI             float64 `yaml:"momentum_min_roi"`

	VolumeEWMAAlpha       float64 `yaml:"volume_ewma_alpha"`
	VolumeSpikeMultiplier float64 `yaml:"volume_spike_multiplier"`
	VolumeSeverityScale   float64 `yaml:"volume_severity_scale"`

	WhaleMinValueUSD   float64 `yaml:"whale_min_value_usd"`
	WhaleBigValueUSD   float64 `yaml:"whale_big_value_usd"`
	WhaleMinROIBig     float64 `yaml:"whale_min_roi_big"`
	WhaleMinROISmall   float64 `yaml:"whale_min_roi_small"`
	WhaleValueZoneMin  float64 `yaml:"whale_value_zone_min"`
	WhaleValueZoneMax  float64 `yaml:"whale_value_zone_max"`
	WhaleSeverityScale float64 `yaml:"whale_severity_scale"`

	ImbalanceEWMAAlpha     float64 `yaml:"imbalance_ewma_alpha"`
	ImbalanceMinAbs        float64 `yaml:"imbalance_min_abs"`
	ImbalanceMinDepth      float64 `yaml:"imbalance_min_depth"`
	ImbalanceMinObs        int     `yaml:"imbalance_min_observations"`
	ImbalanceMaxEWMA       float64 `yaml:"imbalance_max_ewma"`
	ImbalanceValueZoneMin  float64 `yaml:"imbalance_value_zone_min"`
	ImbalanceValueZoneMax  float64 `yaml:"imbalance_value_zone_max"`
	ImbalanceMinROI        float64 `yaml:"imbalance_min_roi"`

	SpreadEWMAAlpha     float64 `yaml:"spread_ewma_alpha"`
	SpreadMinObs        int     `yaml:"spread_min_observations"`
	SpreadWideThreshold float64 `yaml:"spread_wide_threshold"`
	SpreadSpikeRatio    float64 `yaml:"spread_spike_ratio"`
	SpreadWideScale     float64 `yaml:"spread_wide_scale"`
	SpreadSpikeScale    float64 `yaml:"spread_spike_scale"`

	NearResolutionHigh     float64 `yaml:"near_resolution_high"`
	NearResolutionLow      float64 `yaml:"near_resolution_low"`
	NearResolutionMinSev   float64 `yaml:"near_resolution_min_severity"`
	PriceSumThreshold      float64 `yaml:"price_sum_threshold"`
	PriceSumSeverityScale  float64 `yaml:"price_sum_severity_scale"`
	CrossMarketThreshold   float64 `yaml:"cross_market_threshold"`
	ArbitrageMinBps        float64 `yaml:"arbitrage_min_bps"`
	ArbitrageSeverityScale float64 `yaml:"arbitrage_severity_scale"`

	NewsMinRelevance float64 `yaml:"news_min_relevance"`

	CryptoMinYes          float64 `yaml:"crypto_min_yes"`
	CryptoMaxYes          float64 `yaml:"crypto_max_yes"`
	CryptoMinDaysLeft     float64 `yaml:"crypto_min_days_left"`
	CryptoVolMin          float64 `yaml:"crypto_vol_min"`
	CryptoVolMax          float64 `yaml:"crypto_vol_max"`
	CryptoMinEdge         float64 `yaml:"crypto_min_edge"`
	CryptoStrongEdge      float64 `yaml:"crypto_strong_edge"`
	CryptoMinROI          float64 `yaml:"crypto_min_roi"`
	CryptoSeverityScale   float64 `yaml:"crypto_severity_scale"`
}

// QualityConfig parameterises the quality scorer's hard blocks and
// score components.
type QualityConfig struct {
	MinVolumeHardBlock   float64  `yaml:"min_volume_hard_block"`
	MinVolumeSoftBlock   float64  `yaml:"min_volume_soft_block"`
	MaxHoursNoNews       float64  `yaml:"max_hours_no_news"`
	MinAnomalySignals    int      `yaml:"min_anomaly_signals"`
	ActionableThreshold  int      `yaml:"actionable_threshold"`
	SubjectiveCategories []string `yaml:"subjective_categories"`
	SubjectiveKeywords   []string `yaml:"subjective_keywords"`
	SportsKeywords       []string `yaml:"sports_keywords"`
	PriceKeywords        []string `yaml:"price_keywords"`
}

// PaperConfig parameterises the paper-trading engine.
type PaperConfig struct {
	StartingBalance      float64 `yaml:"starting_balance"`
	MaxOpenPositions     int     `yaml:"max_open_positions"`
	MaxRiskPercent       float64 `yaml:"max_risk_percent"`
	MaxLossStreak        int     `yaml:"max_loss_streak"`
	PauseDrawdownPercent float64 `yaml:"pause_drawdown_percent"`
	StopLossPercent      float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent    float64 `yaml:"take_profit_percent"`
	LossStreakPauseDays  int     `yaml:"loss_streak_pause_days"`
	DrawdownPauseDays    int     `yaml:"drawdown_pause_days"`
	TradesFile           string  `yaml:"trades_file"`
}

// AlertConfig parameterises the alert dispatcher's gates.
type AlertConfig struct {
	MinSeverity          float64       `yaml:"min_severity"`
	MinQualityScore      int           `yaml:"min_quality_score"`
	DeduplicationMinutes time.Duration `yaml:"deduplication_minutes"`
	MaxAlertsPerMinute   int           `yaml:"max_alerts_per_minute"`
	MaxAlertsPerDay      int           `yaml:"max_alerts_per_day"`
	CooldownMinutes      time.Duration `yaml:"cooldown_minutes"`
	DedupMapMaxEntries   int           `yaml:"dedup_map_max_entries"`
	RateLimitFile        string        `yaml:"rate_limit_file"`
	TelegramBotToken     string        `yaml:"telegram_bot_token"`
	TelegramChatID       string        `yaml:"telegram_chat_id"`
}

// FairValueConfig parameterises the Black-Scholes-style model's
// probability clamp band. The question parser has no configurable
// fields: its alias table and keyword lists are fixed in code.
type FairValueConfig struct {
	MinProbability float64 `yaml:"min_probability"`
	MaxProbability float64 `yaml:"max_probability"`
}

// AutoBetConfig parameterises the auto-bet strategist subscriber:
// severity/quality thresholds, per-market cooldown, and order size.
type AutoBetConfig struct {
	Enabled         bool          `yaml:"enabled"`
	MinSeverity     float64       `yaml:"min_severity"`
	MinQualityScore int           `yaml:"min_quality_score"`
	CooldownMinutes time.Duration `yaml:"cooldown_minutes"`
	OrderSizeUSD    float64       `yaml:"order_size_usd"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Detector: DetectorConfig{
			PriceSpikeThresholdPct:  15,
			PriceSpikeSeverityScale: 20,
			ReversalZoneMin:         0.08,
			ReversalZoneMax:         0.70,
			ReversalMinROI:          0.20,
			MomentumZoneMin:         0.10,
			MomentumZoneMax:         0.60,
			MomentumMinROI:          0.50,

			VolumeEWMAAlpha:       0.1,
			VolumeSpikeMultiplier: 3,
			VolumeSeverityScale:   10,

			WhaleMinValueUSD:   10000,
			WhaleBigValueUSD:   50000,
			WhaleMinROIBig:     0.30,
			WhaleMinROISmall:   0.50,
			WhaleValueZoneMin:  0.08,
			WhaleValueZoneMax:  0.70,
			WhaleSeverityScale: 100000,

			ImbalanceEWMAAlpha:    0.15,
			ImbalanceMinAbs:       0.9,
			ImbalanceMinDepth:     500,
			ImbalanceMinObs:       3,
			ImbalanceMaxEWMA:      0.7,
			ImbalanceValueZoneMin: 0.08,
			ImbalanceValueZoneMax: 0.70,
			ImbalanceMinROI:       0.40,

			SpreadEWMAAlpha:     0.1,
			SpreadMinObs:        3,
			SpreadWideThreshold: 0.10,
			SpreadSpikeRatio:    3,
			SpreadWideScale:     0.15,
			SpreadSpikeScale:    10,

			NearResolutionHigh:     0.95,
			NearResolutionLow:      0.05,
			NearResolutionMinSev:   0.3,
			PriceSumThreshold:      0.10,
			PriceSumSeverityScale:  0.30,
			CrossMarketThreshold:   0.10,
			ArbitrageMinBps:        50,
			ArbitrageSeverityScale: 500,

			NewsMinRelevance: 0.4,

			CryptoMinYes:        0.05,
			CryptoMaxYes:        0.90,
			CryptoMinDaysLeft:   2,
			CryptoVolMin:        0.10,
			CryptoVolMax:        2.0,
			CryptoMinEdge:       0.05,
			CryptoStrongEdge:    0.10,
			CryptoMinROI:        0.15,
			CryptoSeverityScale: 0.15,
		},
		Quality: QualityConfig{
			MinVolumeHardBlock:  50000,
			MinVolumeSoftBlock:  100000,
			MaxHoursNoNews:      168,
			MinAnomalySignals:   2,
			ActionableThreshold: 60,
			SubjectiveCategories: []string{"awards", "rankings", "ai", "politics"},
			SubjectiveKeywords: []string{
				"MVP", "DPOY", "best", "Oscar", "Grammy", "Emmy",
				"approval rating", "ranking", "model arena", "ROTY",
				"ROY", "All-Star", "Pro Bowl", "Hall of Fame",
			},
			SportsKeywords: []string{
				"win", "beat", "score", "spread", "vs", "match", "game",
				"fight", "Serie A", "Premier League", "NBA", "NFL",
				"MLB", "NHL", "UFC", "Champions League", "La Liga",
				"Bundesliga",
			},
			PriceKeywords: []string{
				"above", "below", "reach", "dip", "price", "Bitcoin",
				"BTC", "ETH", "Ethereum", "SOL", "S&P", "Nasdaq", "Dow",
				"gold", "oil", "CPI", "jobs report", "unemployment",
				"Fed", "rate",
			},
		},
		Paper: PaperConfig{
			StartingBalance:      1000,
			MaxOpenPositions:     3,
			MaxRiskPercent:       0.15,
			MaxLossStreak:        5,
			PauseDrawdownPercent: 0.20,
			StopLossPercent:      -0.40,
			TakeProfitPercent:    0.50,
			LossStreakPauseDays:  1,
			DrawdownPauseDays:    3,
			TradesFile:           "./data/paper_trades.json",
		},
		Alert: AlertConfig{
			MinSeverity:          0,
			MinQualityScore:      60,
			DeduplicationMinutes: 15 * time.Minute,
			MaxAlertsPerMinute:   10,
			MaxAlertsPerDay:      5,
			CooldownMinutes:      30 * time.Minute,
			DedupMapMaxEntries:   500,
			RateLimitFile:        "./data/rate_limit.json",
		},
		FairValue: FairValueConfig{
			MinProbability: 0.01,
			MaxProbability: 0.99,
		},
		AutoBet: AutoBetConfig{
			Enabled:         false,
			MinSeverity:     0.6,
			MinQualityScore: 75,
			CooldownMinutes: 10 * time.Minute,
			OrderSizeUSD:    10,
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides select fields from environment variables, a
// deliberately narrow override surface rather than a generic
// reflective binder.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("PULSECORE_LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("PULSECORE_TELEGRAM_BOT_TOKEN"); v != "" {
		c.Alert.TelegramBotToken = v
	}
	if v := os.Getenv("PULSECORE_TELEGRAM_CHAT_ID"); v != "" {
		c.Alert.TelegramChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSECORE_PAPER_STARTING_BALANCE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Paper.StartingBalance = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("PULSECORE_PAPER_TRADES_FILE")); v != "" {
		c.Paper.TradesFile = v
	}
	if v := strings.TrimSpace(os.Getenv("PULSECORE_RATE_LIMIT_FILE")); v != "" {
		c.Alert.RateLimitFile = v
	}
}
