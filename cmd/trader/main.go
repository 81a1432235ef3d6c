// Command trader is the process entrypoint: it loads configuration,
// wires the detector suite, fair-value engine, quality scorer, paper
// engine and alert dispatcher into a pipeline.App, and drives it from
// whatever inbound event channels the caller's ingestion layer
// produces until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/marketpulse/pulsecore/internal/alert"
	"github.com/marketpulse/pulsecore/internal/config"
	"github.com/marketpulse/pulsecore/internal/pipeline"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Printf("warning: config file: %v, using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zlog, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("pulsecore starting",
		zap.String("paper_trades_file", cfg.Paper.TradesFile),
		zap.Bool("auto_bet_enabled", cfg.AutoBet.Enabled),
	)

	transport, err := alert.NewTelegramTransport(cfg.Alert.TelegramBotToken, cfg.Alert.TelegramChatID)
	if err != nil {
		log.Fatalf("telegram transport: %v", err)
	}

	// The on-chain order-signing client is an external collaborator; a
	// nil client simply disables the auto-bet strategist regardless of
	// cfg.AutoBet.Enabled (internal/pipeline/autobet.go's own guard).
	app := pipeline.New(cfg, transport, nil, zlog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		zlog.Info("shutdown signal received")
		cancel()
	}()

	// Inbound streams are populated by this process's ingestion layer
	// (market sync, whale tracker, order-book poller, news poller,
	// crypto WebSocket, all external collaborators out of scope
	// for this core). Wiring those producers against
	// pipeline.Streams is deployment-specific; an empty Streams value
	// still runs the position-monitor ticker and shuts down cleanly.
	if err := app.Run(ctx, pipeline.Streams{}); err != nil && err != context.Canceled {
		zlog.Warn("pipeline exited", zap.Error(err))
	}

	zlog.Info("pulsecore stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = lvl
	return cfg.Build()
}
