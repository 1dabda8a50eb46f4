// Package inbox is the bounded, deduplicating item store and its
// persistence backends.
package inbox

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/model"
)

// Backend persists the full item list. Saves rewrite everything; there is
// no append path on disk and a single writer is assumed.
type Backend interface {
	Load(ctx context.Context) ([]model.Item, error)
	Save(ctx context.Context, items []model.Item) error
}

// requiredKeys must be present for a persisted row to be accepted.
var requiredKeys = []string{"source_type", "source_name", "title", "content", "url"}

// decodeItem validates and decodes a single persisted row.
func decodeItem(raw json.RawMessage) (model.Item, bool) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return model.Item{}, false
	}
	for _, k := range requiredKeys {
		if _, ok := keys[k]; !ok {
			return model.Item{}, false
		}
	}
	var it model.Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return model.Item{}, false
	}
	return it, true
}

// decodeItems parses a JSON array of items. A document that is not an
// array yields no items; rows that fail validation are skipped.
func decodeItems(data []byte) []model.Item {
	var rows []json.RawMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		zap.L().Warn("inbox: unreadable document, starting empty", zap.Error(err))
		return nil
	}
	items := make([]model.Item, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		it, ok := decodeItem(row)
		if !ok {
			skipped++
			continue
		}
		items = append(items, it)
	}
	if skipped > 0 {
		zap.L().Warn("inbox: skipped invalid rows", zap.Int("skipped", skipped))
	}
	return items
}
