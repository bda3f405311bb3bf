package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/runledger/runledger/domain"
)

// CreateRun inserts a new run row in running status. id is caller-supplied
// (time-ordered UUIDv7 minted by the coordinator) so that InitRun can
// control identity generation.
func (s *Store) CreateRun(ctx context.Context, id, projectID, name string, tags map[string]string, systemInfo map[string]string) (*domain.Run, error) {
	if tags == nil {
		tags = map[string]string{}
	}
	if systemInfo == nil {
		systemInfo = map[string]string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal tags: %w", err)
	}
	sysJSON, err := json.Marshal(systemInfo)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal system_info: %w", err)
	}

	row := s.pg.QueryRow(ctx, `
		INSERT INTO runs (id, project_id, name, status, tags, system_info, started_at, heartbeat_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+runColumns,
		id, projectID, name, string(domain.RunRunning), tagsJSON, sysJSON)
	return scanRun(row)
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	row := s.pg.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}
	return r, nil
}

// UpdateRunStatus performs the terminal-transition or crash-transition CAS:
// it only applies if the run's current status is expectedCurrent, mirroring
// the RowsAffected()==0-means-precondition-failed idiom used throughout the
// metadata store's SQL.
func (s *Store) UpdateRunStatus(ctx context.Context, id string, expectedCurrent, next domain.RunStatus, exitCode *int, errMsg *string) error {
	var query string
	var args []any
	if next.IsTerminal() {
		query = `UPDATE runs SET status = $1, exit_code = $2, error = $3, finished_at = now()
			WHERE id = $4 AND status = $5`
		args = []any{string(next), exitCode, errMsg, id, string(expectedCurrent)}
	} else {
		query = `UPDATE runs SET status = $1 WHERE id = $2 AND status = $3`
		args = []any{string(next), id, string(expectedCurrent)}
	}
	result, err := s.pg.Pool().Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("metadata: update run status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// ResumeRun transitions a crashed run back to running, atomically requiring
// the prior status to be "crashed" (the coordinator has already verified the
// resume token before calling this).
func (s *Store) ResumeRun(ctx context.Context, id string) error {
	result, err := s.pg.Pool().Exec(ctx,
		`UPDATE runs SET status = $1, heartbeat_at = now() WHERE id = $2 AND status = $3`,
		string(domain.RunRunning), id, string(domain.RunCrashed))
	if err != nil {
		return fmt.Errorf("metadata: resume run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// TouchHeartbeat bumps a running run's last-heartbeat timestamp.
func (s *Store) TouchHeartbeat(ctx context.Context, id string) error {
	result, err := s.pg.Pool().Exec(ctx,
		`UPDATE runs SET heartbeat_at = now() WHERE id = $1 AND status = $2`,
		id, string(domain.RunRunning))
	if err != nil {
		return fmt.Errorf("metadata: touch heartbeat: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// CrashStaleRuns transitions every running run whose heartbeat is older
// than cutoff to crashed, returning the affected run ids. Used by the
// heartbeat watchdog.
func (s *Store) CrashStaleRuns(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.pg.Pool().Query(ctx, `
		UPDATE runs SET status = $1
		WHERE status = $2 AND heartbeat_at < $3
		RETURNING id`,
		string(domain.RunCrashed), string(domain.RunRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("metadata: crash stale runs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("metadata: scan stale run id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const runColumns = `id, project_id, name, status, exit_code, error, parent_run_id, tags, system_info,
	resume_token_hash, created_at, started_at, finished_at, heartbeat_at`

func scanRun(row pgx.Row) (*domain.Run, error) {
	var r domain.Run
	var status string
	var tagsJSON, sysJSON []byte
	var resumeTokenHash string
	if err := row.Scan(
		&r.ID, &r.ProjectID, &r.Name, &status, &r.ExitCode, &r.Error, &r.ParentRunID,
		&tagsJSON, &sysJSON, &resumeTokenHash, &r.CreatedAt, &r.StartedAt, &r.FinishedAt, &r.HeartbeatAt,
	); err != nil {
		return nil, err
	}
	r.Status = domain.RunStatus(status)
	r.ResumeToken = resumeTokenHash
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &r.Tags); err != nil {
			return nil, fmt.Errorf("metadata: unmarshal tags: %w", err)
		}
	}
	if len(sysJSON) > 0 {
		if err := json.Unmarshal(sysJSON, &r.SystemInfo); err != nil {
			return nil, fmt.Errorf("metadata: unmarshal system_info: %w", err)
		}
	}
	return &r, nil
}

// SetResumeTokenHash stores the hash of the currently-valid resume token for
// a run, invalidating any prior token (single-use, per §9 design notes).
func (s *Store) SetResumeTokenHash(ctx context.Context, runID, hash string) error {
	result, err := s.pg.Pool().Exec(ctx, `UPDATE runs SET resume_token_hash = $1 WHERE id = $2`, hash, runID)
	if err != nil {
		return fmt.Errorf("metadata: set resume token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

// GenerateRunID mints a time-ordered identifier for a new run.
func GenerateRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
