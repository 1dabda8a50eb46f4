package main

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datapulse/internal/config"
	"github.com/sells-group/datapulse/internal/feed"
	"github.com/sells-group/datapulse/internal/model"
)

// parseSince accepts a lookback duration ("24h", "90m") or a timestamp in
// any of the persisted item formats. Empty means no lower bound.
func parseSince(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			d = -d
		}
		return now.Add(-d), nil
	}
	if ts, ok := model.ParseTime(raw); ok {
		return ts, nil
	}
	if ts, err := time.Parse(time.DateOnly, raw); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, eris.Errorf("invalid since %q: want a duration like 24h or a timestamp", raw)
}

// feedMeta describes published feeds. feedPath is appended to the base
// URL for the self link.
func feedMeta(c config.FeedConfig, feedPath string) feed.Meta {
	m := feed.Meta{Title: c.Title, HomeURL: c.BaseURL}
	if base := strings.TrimRight(c.BaseURL, "/"); base != "" && feedPath != "" {
		m.FeedURL = base + feedPath
	}
	return m
}
