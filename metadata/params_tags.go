package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/runledger/runledger/domain"
)

// UpsertParam writes a parameter on first sight; a conflicting value for an
// existing name is reported to the caller (as ok=false) instead of
// overwriting, per the immutable-after-first-write invariant. The
// read-then-insert runs inside a transaction with an existing row locked
// (SELECT ... FOR UPDATE); the insert uses ON CONFLICT DO NOTHING, so when
// two concurrent first writes of the same (run_id, name) both observe
// "no rows", the later one re-reads the winner's value and compares instead
// of failing on the primary key.
func (s *Store) UpsertParam(ctx context.Context, runID, name, value string, typ domain.ParamType) (ok bool, err error) {
	txErr := s.pg.Transact(ctx, func(tx pgx.Tx) error {
		var existing string
		row := tx.QueryRow(ctx, `SELECT value FROM parameters WHERE run_id = $1 AND name = $2 FOR UPDATE`, runID, name)
		scanErr := row.Scan(&existing)
		switch {
		case errors.Is(scanErr, pgx.ErrNoRows):
			tag, execErr := tx.Exec(ctx,
				`INSERT INTO parameters (run_id, name, value, type) VALUES ($1, $2, $3, $4) ON CONFLICT (run_id, name) DO NOTHING`,
				runID, name, value, string(typ))
			if execErr != nil {
				return execErr
			}
			if tag.RowsAffected() == 0 {
				if err := tx.QueryRow(ctx, `SELECT value FROM parameters WHERE run_id = $1 AND name = $2`, runID, name).Scan(&existing); err != nil {
					return err
				}
				ok = existing == value
				return nil
			}
			ok = true
			return nil
		case scanErr != nil:
			return scanErr
		case existing == value:
			ok = true
			return nil
		default:
			ok = false
			return nil
		}
	})
	if txErr != nil {
		return false, fmt.Errorf("metadata: upsert param: %w", txErr)
	}
	return ok, nil
}

// UpsertTags merges tag values into the run's tags column (overwrite
// semantics per key). Tags live denormalized on the run row rather than in a
// side table so that list_runs's tag-exact-match filter needs no join.
func (s *Store) UpsertTags(ctx context.Context, runID string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	patch, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("metadata: marshal tag patch: %w", err)
	}
	result, execErr := s.pg.Pool().Exec(ctx, `UPDATE runs SET tags = tags || $1::jsonb WHERE id = $2`, patch, runID)
	if execErr != nil {
		return fmt.Errorf("metadata: upsert tags: %w", execErr)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// DeleteTags removes tags by key.
func (s *Store) DeleteTags(ctx context.Context, runID string, keys []string) error {
	for _, k := range keys {
		if _, err := s.pg.Pool().Exec(ctx, `UPDATE runs SET tags = tags - $1::text WHERE id = $2`, k, runID); err != nil {
			return fmt.Errorf("metadata: delete tag %q: %w", k, err)
		}
	}
	return nil
}

// TagCount returns the number of distinct tag keys recorded for a run. The
// cardinality guard's boot-time rebuild does not use it; it seeds tag keys
// from the run's tags directly.
func (s *Store) TagCount(ctx context.Context, runID string) (int, error) {
	var n int
	row := s.pg.QueryRow(ctx, `SELECT count(*) FROM jsonb_object_keys((SELECT tags FROM runs WHERE id = $1))`, runID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("metadata: tag count: %w", err)
	}
	return n, nil
}

// GetParams lists every parameter recorded for a run.
func (s *Store) GetParams(ctx context.Context, runID string) ([]domain.Parameter, error) {
	rows, err := s.pg.Pool().Query(ctx, `SELECT run_id, name, value, type FROM parameters WHERE run_id = $1 ORDER BY name`, runID)
	if err != nil {
		return nil, fmt.Errorf("metadata: get params: %w", err)
	}
	defer rows.Close()
	var out []domain.Parameter
	for rows.Next() {
		var p domain.Parameter
		var typ string
		if err := rows.Scan(&p.RunID, &p.Name, &p.Value, &typ); err != nil {
			return nil, fmt.Errorf("metadata: scan param: %w", err)
		}
		p.Type = domain.ParamType(typ)
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetTags returns a run's tags as a key/value map.
func (s *Store) GetTags(ctx context.Context, runID string) (map[string]string, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Tags, nil
}
