package metrics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/runledger/runledger/domain"
)

// InsertPoints appends a batch. Duplicate (run, name, step) rows are
// tolerated — ReplacingMergeTree resolves them on merge by highest
// ingest_time, so fetch_series must always query with FINAL or an
// equivalent dedup to observe the logical view before a merge has run.
func (s *Store) InsertPoints(ctx context.Context, points []domain.MetricPoint) error {
	if len(points) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO metric_points (run_id, name, step, value, timestamp, batch_id)")
	if err != nil {
		return fmt.Errorf("metrics: prepare batch: %w", err)
	}
	for _, p := range points {
		v := p.Value
		if !math.IsNaN(v) && !math.IsInf(v, 0) && isSubnormal(v) {
			v = 0
		}
		if err := batch.Append(p.RunID, p.Name, p.Step, v, p.Timestamp, p.BatchID); err != nil {
			return fmt.Errorf("metrics: append point: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("metrics: send batch: %w", err)
	}
	return nil
}

func isSubnormal(v float64) bool {
	if v == 0 {
		return false
	}
	abs := math.Abs(v)
	return abs < math.SmallestNonzeroFloat64*(1<<52)
}

// StepRange bounds a fetch_series query by logical step.
type StepRange struct {
	From, To *int64
}

// TimeRange bounds a fetch_series query by server timestamp.
type TimeRange struct {
	From, To *time.Time
}

// FetchSeries returns logical points in (name, step) order, deduplicated to
// the most-recently-ingested row per (run, name, step).
func (s *Store) FetchSeries(ctx context.Context, runIDs []string, metricNames []string, sr StepRange, tr TimeRange) ([]domain.MetricPoint, error) {
	query := `
		SELECT run_id, name, step, value, timestamp, batch_id
		FROM metric_points FINAL
		WHERE run_id IN $1`
	args := []any{runIDs}
	argN := 1
	if len(metricNames) > 0 {
		argN++
		query += fmt.Sprintf(" AND name IN $%d", argN)
		args = append(args, metricNames)
	}
	if sr.From != nil {
		argN++
		query += fmt.Sprintf(" AND step >= $%d", argN)
		args = append(args, *sr.From)
	}
	if sr.To != nil {
		argN++
		query += fmt.Sprintf(" AND step <= $%d", argN)
		args = append(args, *sr.To)
	}
	if tr.From != nil {
		argN++
		query += fmt.Sprintf(" AND timestamp >= $%d", argN)
		args = append(args, *tr.From)
	}
	if tr.To != nil {
		argN++
		query += fmt.Sprintf(" AND timestamp <= $%d", argN)
		args = append(args, *tr.To)
	}
	query += " ORDER BY name, step"

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metrics: fetch series: %w", err)
	}
	defer rows.Close()

	var points []domain.MetricPoint
	for rows.Next() {
		var p domain.MetricPoint
		if err := rows.Scan(&p.RunID, &p.Name, &p.Step, &p.Value, &p.Timestamp, &p.BatchID); err != nil {
			return nil, fmt.Errorf("metrics: scan point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
