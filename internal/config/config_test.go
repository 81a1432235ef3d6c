package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Paper.StartingBalance != 1000 {
		t.Fatalf("expected starting balance 1000, got %f", cfg.Paper.StartingBalance)
	}
	if cfg.Paper.MaxOpenPositions != 3 {
		t.Fatalf("expected max open positions 3, got %d", cfg.Paper.MaxOpenPositions)
	}
	if cfg.Alert.DeduplicationMinutes != 15*time.Minute {
		t.Fatalf("expected dedup window 15m, got %v", cfg.Alert.DeduplicationMinutes)
	}
	if cfg.Alert.MaxAlertsPerDay != 5 {
		t.Fatalf("expected max alerts per day 5, got %d", cfg.Alert.MaxAlertsPerDay)
	}
	if cfg.FairValue.MinProbability != 0.01 || cfg.FairValue.MaxProbability != 0.99 {
		t.Fatalf("expected fair value clamp [0.01,0.99], got [%f,%f]", cfg.FairValue.MinProbability, cfg.FairValue.MaxProbability)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlDoc := `
paper:
  starting_balance: 2000
  max_open_positions: 5
alert:
  max_alerts_per_day: 8
quality:
  actionable_threshold: 70
`
	f, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte(yamlDoc)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	cfg, err := LoadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Paper.StartingBalance != 2000 {
		t.Fatalf("expected starting balance 2000, got %f", cfg.Paper.StartingBalance)
	}
	if cfg.Paper.MaxOpenPositions != 5 {
		t.Fatalf("expected max open positions 5, got %d", cfg.Paper.MaxOpenPositions)
	}
	if cfg.Alert.MaxAlertsPerDay != 8 {
		t.Fatalf("expected max alerts per day 8, got %d", cfg.Alert.MaxAlertsPerDay)
	}
	if cfg.Quality.ActionableThreshold != 70 {
		t.Fatalf("expected actionable threshold 70, got %d", cfg.Quality.ActionableThreshold)
	}
	// Untouched sections keep their defaults.
	if cfg.Detector.WhaleMinValueUSD != 10000 {
		t.Fatalf("expected untouched whale threshold to keep default, got %f", cfg.Detector.WhaleMinValueUSD)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("PULSECORE_LOG_LEVEL", "DEBUG")
	t.Setenv("PULSECORE_TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("PULSECORE_PAPER_STARTING_BALANCE", "2500")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.Alert.TelegramBotToken != "tok" {
		t.Fatalf("expected telegram bot token tok, got %q", cfg.Alert.TelegramBotToken)
	}
	if cfg.Paper.StartingBalance != 2500 {
		t.Fatalf("expected starting balance 2500 from env, got %f", cfg.Paper.StartingBalance)
	}
}

func TestLoadFileInvalidPath(t *testing.T) {
	if _, err := LoadFile("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestLoadFileInvalidYAML(t *testing.T) {
	f, err := os.CreateTemp("", "bad-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write([]byte("{{invalid yaml")); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := LoadFile(f.Name()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}
