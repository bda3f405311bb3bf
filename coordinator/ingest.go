package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/runledger/runledger/domain"
	"github.com/runledger/runledger/ledger"
)

// MetricInput is one client-supplied point before server-side validation.
type MetricInput struct {
	Name      string
	Step      int64
	Value     float64
	Timestamp time.Time
}

// LogMetricsResult is the response to log_metrics.
type LogMetricsResult struct {
	AcceptedCount     int
	DeduplicatedCount int
	Warnings          []domain.Warning
}

// LogMetrics implements the log_metrics contract of §4.5.
func (c *Coordinator) LogMetrics(ctx context.Context, runID, batchID string, inputs []MetricInput, sequence *int64) (*LogMetricsResult, error) {
	if err := checkHardLimits(runID, batchID, len(inputs), estimatedBytes(inputs), c.cfg.MaxPointsPerBatch, c.cfg.MaxBatchBytes); err != nil {
		return nil, err
	}

	var result *LogMetricsResult
	err := c.locks.withLock(runID, func() error {
		run, err := c.meta.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status != domain.RunRunning {
			return fmt.Errorf("%w: run %s is not running", domain.ErrInvalidTransition, runID)
		}

		points := make([]domain.MetricPoint, len(inputs))
		for i, in := range inputs {
			points[i] = domain.MetricPoint{RunID: runID, Name: in.Name, Step: in.Step, Value: in.Value, Timestamp: in.Timestamp, BatchID: batchID}
		}
		hash := payloadHash(points)

		outcome, ledgerErr := c.ledger.Check(ctx, runID, batchID, hash)
		if ledgerErr != nil {
			return ledgerErr
		}

		switch outcome {
		case ledger.Duplicate:
			result = &LogMetricsResult{DeduplicatedCount: len(inputs)}
			return nil
		case ledger.Conflict:
			result = &LogMetricsResult{
				DeduplicatedCount: len(inputs),
				Warnings:          []domain.Warning{{Code: domain.WarnDuplicateBatch, Message: "batch_id reused with different payload; original data preserved", Severity: "warning"}},
			}
			return nil
		}

		accepted, warnings := c.admitPoints(run, points)
		counts := ledger.Counts{Metrics: len(points)}

		if sequence != nil {
			pb := pendingBatch{batchID: batchID, hash: hash, seq: sequence, counts: counts, points: accepted}
			ready := c.reorder.Submit(runID, *sequence, pb)
			for _, payload := range ready {
				batch := payload.(pendingBatch)
				if len(batch.points) > 0 {
					if insErr := c.metrics.InsertPoints(ctx, batch.points); insErr != nil {
						return fmt.Errorf("coordinator: persist metrics: %w", insErr)
					}
				}
				if recErr := c.ledger.Record(ctx, runID, batch.batchID, batch.hash, batch.seq, batch.counts); recErr != nil {
					return fmt.Errorf("coordinator: record ledger: %w", recErr)
				}
			}
		} else {
			if len(accepted) > 0 {
				if insErr := c.metrics.InsertPoints(ctx, accepted); insErr != nil {
					return fmt.Errorf("coordinator: persist metrics: %w", insErr)
				}
			}
			if recErr := c.ledger.Record(ctx, runID, batchID, hash, sequence, counts); recErr != nil {
				return fmt.Errorf("coordinator: record ledger: %w", recErr)
			}
		}

		c.guard.AddPoints(runID, int64(len(accepted)))
		if touchErr := c.meta.TouchHeartbeat(ctx, runID); touchErr != nil {
			return touchErr
		}
		if c.cache != nil && len(accepted) > 0 {
			c.cache.Invalidate(ctx, runID)
		}

		result = &LogMetricsResult{AcceptedCount: len(accepted), Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// admitPoints validates each point and applies the cardinality guard,
// dropping offenders with warnings rather than failing the whole batch.
func (c *Coordinator) admitPoints(run *domain.Run, points []domain.MetricPoint) ([]domain.MetricPoint, []domain.Warning) {
	var accepted []domain.MetricPoint
	var warnings []domain.Warning
	truncated := false

	for _, p := range points {
		if !validMetricName(p.Name) {
			warnings = append(warnings, domain.Warning{Code: domain.WarnInvalidMetricName, Message: fmt.Sprintf("metric name %q rejected", p.Name), Severity: "warning"})
			continue
		}
		if p.Step < 0 {
			warnings = append(warnings, domain.Warning{Code: domain.WarnStepNegative, Message: fmt.Sprintf("metric %q step %d is negative", p.Name, p.Step), Severity: "warning"})
			continue
		}
		adjustedTS, skewed := c.withinClockSkew(p.Timestamp)
		if skewed {
			warnings = append(warnings, domain.Warning{Code: domain.WarnClockSkew, Message: fmt.Sprintf("metric %q timestamp clamped to server clock", p.Name), Severity: "warning"})
			p.Timestamp = adjustedTS
		}

		ok, warn := c.guard.AdmitMetricName(run.ProjectID, run.ID, p.Name)
		if warn != "" {
			severity := "warning"
			warnings = append(warnings, domain.Warning{Code: warn, Message: fmt.Sprintf("metric name %q cardinality threshold", p.Name), Severity: severity})
			if !truncated && warn == domain.WarnCardinalityLimitExceeded {
				truncated = true
			}
		}
		if !ok {
			continue
		}

		accepted = append(accepted, p)
	}

	if truncated {
		warnings = append(warnings, domain.Warning{Code: domain.WarnBatchTruncated, Message: "batch truncated by cardinality limit", Severity: "warning"})
	}
	return accepted, warnings
}

func estimatedBytes(inputs []MetricInput) int {
	// Fixed-width estimate (name + 32 bytes per point) avoids a JSON
	// marshal just to size-check; this estimate is the only batch size
	// check, the serialized wire size is not measured.
	n := 0
	for _, in := range inputs {
		n += len(in.Name) + 32
	}
	return n
}

// pendingBatch is what the reorder window buffers: a batch's points plus
// everything Record needs once it's actually persisted. The ledger write
// only happens once InsertPoints for this exact batch has succeeded — never
// earlier — so a crash while a batch is still sitting in the reorder window
// leaves no ledger row behind and the client's retry re-attempts cleanly.
type pendingBatch struct {
	batchID string
	hash    [32]byte
	seq     *int64
	counts  ledger.Counts
	points  []domain.MetricPoint
}

// persistReleasedLocked writes out a set of reorder-window payloads that
// became ready outside of a direct LogMetrics call (the watchdog's aged
// flush), recording each in the ledger immediately after its own points
// land. Errors are logged, not returned: the client that originally sent
// the batch has already received its response, and the retry path already
// tolerates a dropped write because the columnar store dedups on replay.
func (c *Coordinator) persistReleasedLocked(ctx context.Context, runID string, payloads []any) {
	for _, payload := range payloads {
		batch, ok := payload.(pendingBatch)
		if !ok {
			continue
		}
		if len(batch.points) > 0 {
			if err := c.metrics.InsertPoints(ctx, batch.points); err != nil {
				c.log.WithError(err).WithField("run_id", runID).Warn("failed to persist reorder-window flush")
				continue
			}
		}
		if err := c.ledger.Record(ctx, runID, batch.batchID, batch.hash, batch.seq, batch.counts); err != nil {
			c.log.WithError(err).WithField("run_id", runID).Warn("failed to record ledger entry for reorder-window flush")
		}
	}
}
