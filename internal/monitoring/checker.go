package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/config"
)

// DefaultCheckInterval is used when the config leaves the interval unset.
const DefaultCheckInterval = 5 * time.Minute

// Checker runs periodic alert checks in the background. An alert that
// stays active is sent once, and again only after it clears and returns.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	active    map[AlertType]bool
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		active:    make(map[AlertType]bool),
	}
}

// Interval returns the time between checks.
func (c *Checker) Interval() time.Duration { return c.interval }

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting alert checker", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("alert checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check takes one snapshot and sends alerts that were not already active.
// It returns the newly raised alerts.
func (c *Checker) Check(ctx context.Context) []Alert {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	snap := c.collector.Collect(ctx)
	alerts := c.alerter.Evaluate(snap)

	current := make(map[AlertType]bool, len(alerts))
	var fresh []Alert
	for _, a := range alerts {
		current[a.Type] = true
		if !c.active[a.Type] {
			fresh = append(fresh, a)
			log.Warn("monitoring: alert raised",
				zap.String("type", string(a.Type)),
				zap.String("severity", a.Severity),
				zap.String("message", a.Message),
			)
		}
	}
	for t := range c.active {
		if !current[t] {
			log.Info("monitoring: alert cleared", zap.String("type", string(t)))
		}
	}
	c.active = current

	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts", zap.Int("dlq_depth", snap.DLQDepth))
		return nil
	}
	sent := c.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
	return fresh
}
