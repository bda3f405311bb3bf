// Package metrics is the Metrics Store Gateway: bulk insert of metric
// points, range queries, and summary lookups against a columnar store with
// replacing-merge semantics.
package metrics

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/runledger/runledger/config"
)

// Store wraps a ClickHouse connection. Physical schema partitions by month
// on timestamp, clusters (run, name, step), and keeps the most recent row
// per (run, name, step) via ReplacingMergeTree's merge-time dedup on that
// sorting key — a near-literal match for the "most-recent-wins merge" §4.2
// requires of the columnar store.
type Store struct {
	conn clickhouse.Conn
	log  *logrus.Entry
}

// New opens a ClickHouse connection and ensures the schema exists.
func New(ctx context.Context, cfg config.ClickHouseConfig, log *logrus.Entry) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Host},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("metrics: open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("metrics: ping: %w", err)
	}
	s := &Store{conn: conn, log: log.WithField("component", "metrics")}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	// The summary in §3 is served by a direct aggregate query (argMax/min/
	// max/count) over this one base table rather than a second
	// materialized-view table: ClickHouse's ReplacingMergeTree keeps merges
	// asynchronous, so a query-time aggregate is never staler than the
	// projection the spec allows to lag by a few seconds, and it avoids
	// hand-maintaining AggregatingMergeTree state-function plumbing that no
	// example in the pack demonstrates.
	stmt := `CREATE TABLE IF NOT EXISTS metric_points (
			run_id String,
			name String,
			step Int64,
			value Float64,
			timestamp DateTime64(3),
			batch_id String,
			ingest_time DateTime64(3) DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(ingest_time)
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (run_id, name, step)
		TTL timestamp + INTERVAL 90 DAY`

	if err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("metrics: migrate: %w", err)
	}
	return nil
}

// Close releases the ClickHouse connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
