package inbox

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/datapulse/internal/model"
)

// Pool is the subset of pgxpool.Pool the backend uses. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS inbox_items (
	id         TEXT PRIMARY KEY,
	fetched_at TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	processed  BOOLEAN NOT NULL DEFAULT false,
	payload    JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_inbox_items_fetched_at ON inbox_items(fetched_at);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresBackend stores the inbox in a shared Postgres table.
type PostgresBackend struct {
	pool    Pool
	closeFn func()
}

// NewPostgresBackend connects with pgxpool and pings the server.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresBackend{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresBackendWithPool wraps an existing pool.
func NewPostgresBackendWithPool(pool Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// Migrate creates the inbox table.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, postgresSchema)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool if this backend created it.
func (b *PostgresBackend) Close() error {
	if b.closeFn != nil {
		b.closeFn()
	}
	return nil
}

// Load reads all rows, newest first.
func (b *PostgresBackend) Load(ctx context.Context) ([]model.Item, error) {
	query, args, err := psql.Select("payload").From("inbox_items").OrderBy("fetched_at DESC").ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build load query")
	}
	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query items")
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item")
		}
		it, ok := decodeItem(json.RawMessage(payload))
		if !ok {
			zap.L().Warn("inbox: skipped invalid postgres row")
			continue
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: iterate items")
}

// Save rewrites the table in one transaction.
func (b *PostgresBackend) Save(ctx context.Context, items []model.Item) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM inbox_items`); err != nil {
		return eris.Wrap(err, "postgres: clear items")
	}

	if len(items) > 0 {
		insert := psql.Insert("inbox_items").Columns("id", "fetched_at", "confidence", "processed", "payload")
		for i := range items {
			payload, err := json.Marshal(items[i])
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal item %s", items[i].ID)
			}
			insert = insert.Values(items[i].ID, items[i].FetchedAt, items[i].Confidence, items[i].Processed, string(payload))
		}
		query, args, err := insert.ToSql()
		if err != nil {
			return eris.Wrap(err, "postgres: build insert")
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return eris.Wrap(err, "postgres: insert items")
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}
