package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"erasure/internal/monitor"
	"erasure/pkg/platform/circuit"
)

// probeInterval bounds how often an open channel gets a probe send. The
// breaker itself has no timer; this wrapper supplies one.
const probeInterval = 30 * time.Second

// BreakerChannel wraps a delivery channel with a circuit breaker so one dead
// endpoint cannot slow alert fan-out for the rest. While open, sends are
// dropped except for a periodic probe; enough probe successes close the
// circuit again.
type BreakerChannel struct {
	inner   monitor.Channel
	breaker *circuit.Breaker
	logger  *slog.Logger

	mu        sync.Mutex
	lastProbe time.Time
}

func WithBreaker(inner monitor.Channel, logger *slog.Logger) *BreakerChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerChannel{
		inner:   inner,
		breaker: circuit.New(inner.Name()),
		logger:  logger,
	}
}

func (c *BreakerChannel) Name() string {
	return c.inner.Name()
}

func (c *BreakerChannel) Send(ctx context.Context, alert *monitor.Alert) error {
	if c.breaker.IsOpen() && !c.probeDue() {
		c.logger.WarnContext(ctx, "alert channel circuit open, dropping send",
			"channel", c.inner.Name(),
			"alert_id", alert.ID,
		)
		return nil
	}

	if err := c.inner.Send(ctx, alert); err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.ErrorContext(ctx, "alert channel circuit opened",
				"channel", c.inner.Name(),
			)
		}
		return err
	}

	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "alert channel circuit closed",
			"channel", c.inner.Name(),
		)
	}
	return nil
}

func (c *BreakerChannel) probeDue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if now.Sub(c.lastProbe) < probeInterval {
		return false
	}
	c.lastProbe = now
	return true
}
