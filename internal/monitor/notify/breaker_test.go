package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erasure/internal/monitor"
)

type flakyChannel struct {
	failures int
	sends    int
}

func (c *flakyChannel) Name() string { return "flaky" }

func (c *flakyChannel) Send(_ context.Context, _ *monitor.Alert) error {
	c.sends++
	if c.failures > 0 {
		c.failures--
		return errors.New("endpoint down")
	}
	return nil
}

func testAlert() *monitor.Alert {
	return &monitor.Alert{
		ID:          "alert-1",
		RuleID:      "rule-1",
		Severity:    monitor.SeverityHigh,
		TriggeredAt: time.Now(),
	}
}

func TestBreakerChannelPassesThrough(t *testing.T) {
	inner := &flakyChannel{}
	ch := WithBreaker(inner, slog.Default())

	assert.Equal(t, "flaky", ch.Name())
	require.NoError(t, ch.Send(context.Background(), testAlert()))
	assert.Equal(t, 1, inner.sends)
}

func TestBreakerChannelDropsWhileOpen(t *testing.T) {
	ctx := context.Background()
	inner := &flakyChannel{failures: 100}
	ch := WithBreaker(inner, slog.Default())

	// Default threshold is five consecutive failures.
	for i := 0; i < 5; i++ {
		assert.Error(t, ch.Send(ctx, testAlert()))
	}
	sendsWhenOpened := inner.sends

	// The circuit just opened and the first open send counts as the probe;
	// everything after that inside the probe interval is dropped.
	_ = ch.Send(ctx, testAlert())
	for i := 0; i < 10; i++ {
		assert.NoError(t, ch.Send(ctx, testAlert()))
	}
	assert.Equal(t, sendsWhenOpened+1, inner.sends)
}

func TestBreakerChannelClosesAfterProbes(t *testing.T) {
	ctx := context.Background()
	inner := &flakyChannel{failures: 5}
	ch := WithBreaker(inner, slog.Default())

	for i := 0; i < 5; i++ {
		assert.Error(t, ch.Send(ctx, testAlert()))
	}

	// Force probes through by rewinding the probe clock; three successes
	// close the circuit.
	for i := 0; i < 3; i++ {
		ch.mu.Lock()
		ch.lastProbe = time.Time{}
		ch.mu.Unlock()
		require.NoError(t, ch.Send(ctx, testAlert()))
	}

	sends := inner.sends
	require.NoError(t, ch.Send(ctx, testAlert()))
	assert.Equal(t, sends+1, inner.sends, "closed circuit sends without probing")
}
