package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datapulse/internal/collector"
	"github.com/sells-group/datapulse/internal/reader"
	"github.com/sells-group/datapulse/internal/resilience"
	"github.com/sells-group/datapulse/internal/router"
)

type fakeHealth struct {
	health reader.Health
	dlq    *resilience.DLQ
}

func (f *fakeHealth) Health(context.Context) reader.Health { return f.health }
func (f *fakeHealth) DLQ() *resilience.DLQ                { return f.dlq }

type fakeBreakers []resilience.BreakerStatus

func (f fakeBreakers) Snapshot() []resilience.BreakerStatus { return f }

func healthyReport() router.Report {
	return router.Report{
		Tier0: []router.HealthEntry{{Name: "generic", Status: collector.StatusOK}, {Name: "rss", Status: collector.StatusOK}},
		Tier1: []router.HealthEntry{{Name: "twitter", Status: collector.StatusWarn}},
	}
}

func newFake() *fakeHealth {
	return &fakeHealth{
		health: reader.Health{OK: true, Stored: 12, Collectors: healthyReport()},
		dlq:    resilience.NewDLQ(0),
	}
}

func TestCollector_Collect(t *testing.T) {
	src := newFake()
	src.health.Collectors.Tier2 = []router.HealthEntry{{Name: "jina", Status: collector.StatusErr}}
	src.dlq.Push("https://a.example/", errors.New("boom"))
	src.dlq.Push("https://b.example/", resilience.NewTransientError(errors.New("bad gateway"), 502))

	c := NewCollector(src, fakeBreakers{
		{Name: "jina.read", State: "open", Failures: 5},
		{Name: "jina.search", State: "closed"},
	})
	fixed := time.Date(2026, 10, 10, 12, 0, 0, 0, time.UTC)
	c.nowFunc = func() time.Time { return fixed }

	snap := c.Collect(context.Background())
	assert.Equal(t, 2, snap.CollectorsOK)
	assert.Equal(t, 1, snap.CollectorsWarn)
	assert.Equal(t, 1, snap.CollectorsErr)
	assert.Equal(t, []string{"jina"}, snap.FailingCollectors)
	assert.Equal(t, []string{"jina.read"}, snap.OpenBreakers)
	assert.Equal(t, 2, snap.DLQDepth)
	assert.Equal(t, map[string]int{resilience.ClassPermanent: 1, resilience.ClassTransient: 1}, snap.DLQByClass)
	assert.Equal(t, 12, snap.Stored)
	assert.Equal(t, fixed, snap.CollectedAt)
}

func TestCollector_NilBreakers(t *testing.T) {
	snap := NewCollector(newFake(), nil).Collect(context.Background())
	require.NotNil(t, snap)
	assert.Empty(t, snap.OpenBreakers)
	assert.Zero(t, snap.DLQDepth)
	assert.NotNil(t, snap.DLQByClass)
}
