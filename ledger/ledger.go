// Package ledger is the Idempotency Ledger: records (run, batch_id) ->
// payload_hash, seq and answers whether a batch is new, a duplicate, or a
// hash conflict with a prior attempt under the same id.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Outcome is the result of consulting the ledger for a batch.
type Outcome int

const (
	New Outcome = iota
	Duplicate
	Conflict
)

// Retention is the minimum duration a ledger row is kept before being
// treated as expired (and thus replay-eligible), per §4.3.
const Retention = 24 * time.Hour

// Counts accompanies a ledger entry for accounting purposes.
type Counts struct {
	Metrics int
	Params  int
	Tags    int
}

// Ledger wraps the metadata store's connection pool. It does not own the
// pool's lifecycle; the metadata store does.
type Ledger struct {
	pool *pgxpool.Pool
}

// New constructs a Ledger over an existing metadata store pool.
func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Check implements the consult half of check_or_record: on a fresh
// (run, batch_id) it returns New without writing anything; on a matching
// hash it returns Duplicate; on a conflicting hash it returns Conflict.
// Check alone never creates a row — that's Record's job, called only once
// the batch's points have actually landed in the metrics store. Splitting
// the two halves is what lets the ledger write serve as the linearization
// point described in §9: a crash between Check and a successful C2 write
// leaves no row behind, so the client's retry sees New again and
// re-attempts instead of being told Duplicate for data that never landed.
func (l *Ledger) Check(ctx context.Context, runID, batchID string, payloadHash [32]byte) (Outcome, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT payload_hash FROM ingest_batches WHERE run_id = $1 AND batch_id = $2 AND created_at > $3`,
		runID, batchID, time.Now().Add(-Retention))
	var existing []byte
	err := row.Scan(&existing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return New, nil
	case err != nil:
		return New, fmt.Errorf("ledger: lookup: %w", err)
	case bytes.Equal(existing, payloadHash[:]):
		return Duplicate, nil
	default:
		return Conflict, nil
	}
}

// Record implements the record half of check_or_record: called after the
// batch's points have been successfully persisted to the metrics store, it
// inserts the (run, batch_id) -> payload_hash row so a subsequent Check sees
// Duplicate. ON CONFLICT DO NOTHING makes a repeated Record for the same id
// (e.g. two concurrent attempts that both observed New) harmless.
func (l *Ledger) Record(ctx context.Context, runID, batchID string, payloadHash [32]byte, seq *int64, counts Counts) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO ingest_batches (run_id, batch_id, payload_hash, sequence, metric_count, param_count, tag_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, batch_id) DO NOTHING`,
		runID, batchID, payloadHash[:], seq, counts.Metrics, counts.Params, counts.Tags)
	if err != nil {
		return fmt.Errorf("ledger: record: %w", err)
	}
	return nil
}

// Prune deletes ledger rows past Retention. Rows are already ignored by
// Check's lookup once they age out; this reclaims their storage.
func (l *Ledger) Prune(ctx context.Context) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM ingest_batches WHERE created_at <= $1`, time.Now().Add(-Retention))
	if err != nil {
		return 0, fmt.Errorf("ledger: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
