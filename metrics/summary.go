package metrics

import (
	"context"
	"fmt"

	"github.com/runledger/runledger/domain"
)

// FetchSummary computes the per-(run, name) aggregate directly from the
// base table. min/max exclude non-finite values per §7; count and last do
// not.
func (s *Store) FetchSummary(ctx context.Context, runID string) ([]domain.Summary, error) {
	query := `
		SELECT
			name,
			minIf(value, isFinite(value)) AS min_value,
			maxIf(value, isFinite(value)) AS max_value,
			argMax(value, step) AS last_value,
			max(step) AS last_step,
			count(*) AS cnt,
			min(timestamp) AS first_seen,
			max(timestamp) AS last_seen
		FROM metric_points FINAL
		WHERE run_id = $1
		GROUP BY name`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("metrics: fetch summary: %w", err)
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		var sm domain.Summary
		sm.RunID = runID
		if err := rows.Scan(&sm.Name, &sm.Min, &sm.Max, &sm.Last, &sm.LastStep, &sm.Count, &sm.FirstSeen, &sm.LastSeen); err != nil {
			return nil, fmt.Errorf("metrics: scan summary: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// RangeStats is the fetch_metrics response's statistics block, computed over
// the unsampled range regardless of whether the series itself is
// downsampled for display.
type RangeStats struct {
	Min, Max, Mean, Last float64
	LastStep             int64
	Count                int64
}

// FetchRangeStats computes min/max/mean/last/count for one (run, name) pair
// within a step/time range, excluding non-finite values from min/max/mean
// per §7 (count and last are unaffected).
func (s *Store) FetchRangeStats(ctx context.Context, runID, name string, sr StepRange, tr TimeRange) (RangeStats, error) {
	query := `
		SELECT
			minIf(value, isFinite(value)) AS min_value,
			maxIf(value, isFinite(value)) AS max_value,
			avgIf(value, isFinite(value)) AS mean_value,
			argMax(value, step) AS last_value,
			max(step) AS last_step,
			count(*) AS cnt
		FROM metric_points FINAL
		WHERE run_id = $1 AND name = $2`
	args := []any{runID, name}
	if sr.From != nil {
		args = append(args, *sr.From)
		query += fmt.Sprintf(" AND step >= $%d", len(args))
	}
	if sr.To != nil {
		args = append(args, *sr.To)
		query += fmt.Sprintf(" AND step <= $%d", len(args))
	}
	if tr.From != nil {
		args = append(args, *tr.From)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if tr.To != nil {
		args = append(args, *tr.To)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	var rs RangeStats
	row := s.conn.QueryRow(ctx, query, args...)
	if err := row.Scan(&rs.Min, &rs.Max, &rs.Mean, &rs.Last, &rs.LastStep, &rs.Count); err != nil {
		return RangeStats{}, fmt.Errorf("metrics: range stats: %w", err)
	}
	return rs, nil
}

// DistinctMetricNames lists metric names observed for a run, used to seed
// the cardinality guard at boot.
func (s *Store) DistinctMetricNames(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT name FROM metric_points FINAL WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("metrics: distinct names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// AllRunIDsWithData lists every run id present in the metrics store, used
// to drive the cardinality guard's boot-time rebuild scan.
func (s *Store) AllRunIDsWithData(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT run_id FROM metric_points FINAL`)
	if err != nil {
		return nil, fmt.Errorf("metrics: distinct run ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
