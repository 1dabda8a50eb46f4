package router

import (
	"context"
	"fmt"

	"github.com/sells-group/datapulse/internal/collector"
)

// HealthEntry is one collector's health in a doctor report.
type HealthEntry struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	Available bool   `json:"available"`
	SetupHint string `json:"setup_hint"`
}

// Report groups collector health by operational tier.
type Report struct {
	Tier0 []HealthEntry `json:"tier_0"`
	Tier1 []HealthEntry `json:"tier_1"`
	Tier2 []HealthEntry `json:"tier_2"`
}

// Counts tallies statuses across all tiers.
func (r Report) Counts() map[string]int {
	out := map[string]int{collector.StatusOK: 0, collector.StatusWarn: 0, collector.StatusErr: 0}
	for _, tier := range [][]HealthEntry{r.Tier0, r.Tier1, r.Tier2} {
		for _, e := range tier {
			out[e.Status]++
		}
	}
	return out
}

// Doctor runs every collector's health check. It is diagnostic only and
// never influences routing. Collectors with an unknown tier are reported
// under tier 2.
func (r *Router) Doctor(ctx context.Context) Report {
	rep := Report{Tier0: []HealthEntry{}, Tier1: []HealthEntry{}, Tier2: []HealthEntry{}}
	for _, c := range r.Collectors() {
		h := safeHealth(ctx, c)
		entry := HealthEntry{
			Name:      c.Name(),
			Status:    h.Status,
			Message:   h.Message,
			Available: h.Available,
			SetupHint: c.SetupHint(),
		}
		switch c.Tier() {
		case collector.TierLocal:
			rep.Tier0 = append(rep.Tier0, entry)
		case collector.TierPublic:
			rep.Tier1 = append(rep.Tier1, entry)
		default:
			rep.Tier2 = append(rep.Tier2, entry)
		}
	}
	return rep
}

func safeHealth(ctx context.Context, c collector.Collector) (h collector.Health) {
	defer func() {
		if p := recover(); p != nil {
			h = collector.Health{Status: collector.StatusErr, Message: fmt.Sprintf("health check panicked: %v", p)}
		}
	}()
	return c.HealthCheck(ctx)
}
