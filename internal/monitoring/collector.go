// Package monitoring samples reader health in the background and raises
// webhook alerts when collectors fail, breakers open or the dead-letter
// list backs up.
package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/datapulse/internal/collector"
	"github.com/sells-group/datapulse/internal/reader"
	"github.com/sells-group/datapulse/internal/resilience"
	"github.com/sells-group/datapulse/internal/router"
)

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Collector health from the doctor report.
	CollectorsOK      int      `json:"collectors_ok"`
	CollectorsWarn    int      `json:"collectors_warn"`
	CollectorsErr     int      `json:"collectors_err"`
	FailingCollectors []string `json:"failing_collectors,omitempty"`

	// Circuit breakers currently rejecting calls.
	OpenBreakers []string `json:"open_breakers,omitempty"`

	// DLQ depth, total and per error class.
	DLQDepth   int            `json:"dlq_depth"`
	DLQByClass map[string]int `json:"dlq_by_class"`

	Stored      int       `json:"stored"`
	CollectedAt time.Time `json:"collected_at"`
}

// HealthSource is the part of the reader the collector samples.
type HealthSource interface {
	Health(ctx context.Context) reader.Health
	DLQ() *resilience.DLQ
}

// BreakerSource reports circuit breaker states.
type BreakerSource interface {
	Snapshot() []resilience.BreakerStatus
}

// Collector gathers snapshots from the reader and the breaker registry.
type Collector struct {
	health   HealthSource
	breakers BreakerSource
	nowFunc  func() time.Time
}

// NewCollector creates a new metrics collector. breakers may be nil.
func NewCollector(health HealthSource, breakers BreakerSource) *Collector {
	return &Collector{health: health, breakers: breakers, nowFunc: time.Now}
}

// Collect gathers a snapshot of current health.
func (c *Collector) Collect(ctx context.Context) *MetricsSnapshot {
	h := c.health.Health(ctx)
	snap := &MetricsSnapshot{
		Stored:      h.Stored,
		DLQByClass:  map[string]int{},
		CollectedAt: c.nowFunc().UTC(),
	}

	for _, tier := range [][]router.HealthEntry{h.Collectors.Tier0, h.Collectors.Tier1, h.Collectors.Tier2} {
		for _, e := range tier {
			switch e.Status {
			case collector.StatusOK:
				snap.CollectorsOK++
			case collector.StatusWarn:
				snap.CollectorsWarn++
			default:
				snap.CollectorsErr++
				snap.FailingCollectors = append(snap.FailingCollectors, e.Name)
			}
		}
	}
	sort.Strings(snap.FailingCollectors)

	if c.breakers != nil {
		for _, b := range c.breakers.Snapshot() {
			if b.State == resilience.CircuitOpen.String() {
				snap.OpenBreakers = append(snap.OpenBreakers, b.Name)
			}
		}
	}

	for _, e := range c.health.DLQ().List(resilience.DLQFilter{}) {
		snap.DLQDepth++
		snap.DLQByClass[e.ErrorType]++
	}
	return snap
}
