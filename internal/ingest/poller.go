package ingest

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Poller wraps a periodic external call with a circuit breaker and a
// fixed-backoff retry loop: transient upstream failures are retried a
// bounded number of times and never propagate to the consumer's ack
// path.
type Poller struct {
	name     string
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

// NewPoller constructs a Poller named name, polling every interval,
// tripping its breaker per gobreaker's default ReadyToTrip (more than
// 5 consecutive failures).
func NewPoller(name string, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		name:     name,
		interval: interval,
		log:      log,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
		}),
	}
}

// Run invokes fn on a fixed interval until ctx is cancelled. Each tick
// makes up to 3 attempts with a fixed 1s backoff, each routed through
// the circuit breaker so a wedged upstream stops being hammered.
func (p *Poller) Run(ctx context.Context, fn func(context.Context) error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx, fn)
		}
	}
}

func (p *Poller) tick(ctx context.Context, fn func(context.Context) error) {
	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		_, err := p.breaker.Execute(func() (any, error) {
			return nil, fn(ctx)
		})
		if err == nil {
			return
		}
		lastErr = err
		if err == gobreaker.ErrOpenState {
			p.log.Warn("ingest: breaker open, skipping poll", zap.String("poller", p.name))
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
	p.log.Warn("ingest: poll failed after retries", zap.String("poller", p.name), zap.Error(lastErr))
}
