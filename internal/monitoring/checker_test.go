package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapulse/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, DLQThreshold: 1}
	checker := NewChecker(NewCollector(newFake(), nil), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewCollector(newFake(), nil), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.Equal(t, DefaultCheckInterval, checker.Interval())
}

func TestChecker_CheckRaisesOnceUntilCleared(t *testing.T) {
	src := newFake()
	cfg := config.MonitoringConfig{DLQThreshold: 1}
	checker := NewChecker(NewCollector(src, nil), NewAlerter(cfg), cfg)
	ctx := context.Background()

	assert.Empty(t, checker.Check(ctx))

	src.dlq.Push("https://a.example/", errors.New("boom"))
	raised := checker.Check(ctx)
	require.Len(t, raised, 1)
	assert.Equal(t, AlertDLQBacklog, raised[0].Type)

	assert.Empty(t, checker.Check(ctx), "still active, not raised again")

	src.dlq.Remove("https://a.example/")
	assert.Empty(t, checker.Check(ctx))

	src.dlq.Push("https://b.example/", errors.New("boom"))
	assert.Len(t, checker.Check(ctx), 1)
}
