package inbox

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/datapulse/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS inbox_items (
	id         TEXT PRIMARY KEY,
	fetched_at TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	processed  INTEGER NOT NULL DEFAULT 0,
	payload    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inbox_items_fetched_at ON inbox_items(fetched_at);
`

// SQLiteBackend stores one row per item with the full record as JSON.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens the database at dsn in WAL mode and creates the
// schema.
func NewSQLiteBackend(ctx context.Context, dsn string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteBackend{db: db}, nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Load reads every stored row. Rows whose payload does not decode are
// skipped.
func (b *SQLiteBackend) Load(ctx context.Context) ([]model.Item, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT payload FROM inbox_items ORDER BY fetched_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query items")
	}
	defer rows.Close() //nolint:errcheck

	var items []model.Item
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item")
		}
		it, ok := decodeItem(json.RawMessage(payload))
		if !ok {
			zap.L().Warn("inbox: skipped invalid sqlite row")
			continue
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: iterate items")
}

// Save replaces the table contents in one transaction.
func (b *SQLiteBackend) Save(ctx context.Context, items []model.Item) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM inbox_items`); err != nil {
		return eris.Wrap(err, "sqlite: clear items")
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO inbox_items (id, fetched_at, confidence, processed, payload) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range items {
		payload, err := json.Marshal(items[i])
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal item %s", items[i].ID)
		}
		if _, err := stmt.ExecContext(ctx, items[i].ID, items[i].FetchedAt, items[i].Confidence, items[i].Processed, string(payload)); err != nil {
			return eris.Wrapf(err, "sqlite: insert item %s", items[i].ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}
