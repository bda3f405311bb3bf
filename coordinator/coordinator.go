package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runledger/runledger/cardinality"
	"github.com/runledger/runledger/config"
	"github.com/runledger/runledger/domain"
	"github.com/runledger/runledger/ledger"
	"github.com/runledger/runledger/metadata"
	"github.com/runledger/runledger/metrics"
)

// cacheInvalidator is the narrow slice of query.ResultCache the coordinator
// needs: dropping a run's cached series once new points land for it. Defined
// here rather than importing the query package, which depends on this one's
// sibling stores but never on the write path itself.
type cacheInvalidator interface {
	Invalidate(ctx context.Context, runID string)
}

// Coordinator is the sole writer into the metadata and metrics stores: the
// Ingest Coordinator of §4.5. It fans a write out to the metrics store then
// the metadata store, arbitrated per-run by a short-lived mutex.
type Coordinator struct {
	meta    *metadata.Store
	metrics *metrics.Store
	ledger  *ledger.Ledger
	guard   *cardinality.Guard
	cache   cacheInvalidator

	locks     *runLocks
	lifecycle *lifecycle
	reorder   *ReorderWindow
	tokens    *tokenService
	watchdog  *watchdog

	cfg config.IngestConfig
	log *logrus.Entry
}

// New wires a Coordinator over already-constructed stores.
func New(meta *metadata.Store, metricsStore *metrics.Store, guard *cardinality.Guard, cfg config.IngestConfig, resumeSecret string, log *logrus.Entry) *Coordinator {
	c := &Coordinator{
		meta:      meta,
		metrics:   metricsStore,
		ledger:    ledger.New(meta.Pool()),
		guard:     guard,
		locks:     newRunLocks(),
		lifecycle: newLifecycle(),
		reorder:   NewReorderWindow(cfg.ReorderWindowSize, cfg.ReorderWindowAge),
		tokens:    newTokenService(resumeSecret, cfg.ResumeTokenTTL),
		cfg:       cfg,
		log:       log.WithField("component", "coordinator"),
	}
	c.watchdog = newWatchdog(c, cfg.WatchdogInterval, cfg.HeartbeatTimeout)
	return c
}

// WithCacheInvalidator attaches a query result cache so log_metrics can
// invalidate a run's cached series the moment new points are persisted for
// it. Optional: a Coordinator with none just skips the call.
func (c *Coordinator) WithCacheInvalidator(cache cacheInvalidator) *Coordinator {
	c.cache = cache
	return c
}

// Start launches the background heartbeat watchdog. Call Stop on shutdown.
func (c *Coordinator) Start(ctx context.Context) {
	c.watchdog.start(ctx)
}

// Stop halts the background watchdog.
func (c *Coordinator) Stop() {
	c.watchdog.stop()
}

// InitRunResult is the response to init_run.
type InitRunResult struct {
	RunID       string
	ResumeToken string
	Resumed     bool
}

// InitRun implements the init_run contract of §4.5.
func (c *Coordinator) InitRun(ctx context.Context, projectName, runID, name string, tags map[string]string, resumeToken string) (*InitRunResult, error) {
	project, err := c.meta.GetOrCreateProject(ctx, projectName)
	if err != nil {
		return nil, fmt.Errorf("coordinator: init run: %w", err)
	}

	if runID == "" {
		runID = metadata.GenerateRunID()
	}

	var result *InitRunResult
	err = c.locks.withLock(runID, func() error {
		existing, getErr := c.meta.GetRun(ctx, runID)
		switch {
		case getErr != nil && getErr != domain.ErrRunNotFound:
			return getErr
		case getErr == domain.ErrRunNotFound:
			if _, createErr := c.meta.CreateRun(ctx, runID, project.ID, name, tags, nil); createErr != nil {
				return createErr
			}
			c.lifecycle.set(runID, domain.RunRunning)
			c.guard.RegisterRun(project.ID, runID)
			token, mintErr := c.tokens.mint(runID, 0)
			if mintErr != nil {
				return mintErr
			}
			if err := c.meta.SetResumeTokenHash(ctx, runID, hashToken(token)); err != nil {
				return err
			}
			result = &InitRunResult{RunID: runID, ResumeToken: token, Resumed: false}
			return nil
		case existing.Status == domain.RunRunning:
			// Only the token's hash is stored, so a fresh token replaces it.
			token, mintErr := c.tokens.mint(runID, 0)
			if mintErr != nil {
				return mintErr
			}
			if err := c.meta.SetResumeTokenHash(ctx, runID, hashToken(token)); err != nil {
				return err
			}
			result = &InitRunResult{RunID: runID, ResumeToken: token, Resumed: false}
			return nil
		case existing.Status.IsTerminal():
			return errInvalidTransition(existing.Status, domain.RunRunning)
		case existing.Status == domain.RunCrashed:
			claims, verifyErr := c.tokens.verify(resumeToken)
			if verifyErr != nil || claims.RunID != runID {
				return domain.ErrInvalidResumeToken
			}
			if hashToken(resumeToken) != existing.ResumeToken {
				return domain.ErrInvalidResumeToken
			}
			if resumeErr := c.meta.ResumeRun(ctx, runID); resumeErr != nil {
				return resumeErr
			}
			c.lifecycle.set(runID, domain.RunRunning)
			c.guard.RegisterRun(project.ID, runID)
			newToken, mintErr := c.tokens.mint(runID, claims.SequenceCheckpoint)
			if mintErr != nil {
				return mintErr
			}
			if err := c.meta.SetResumeTokenHash(ctx, runID, hashToken(newToken)); err != nil {
				return err
			}
			result = &InitRunResult{RunID: runID, ResumeToken: newToken, Resumed: true}
			return nil
		default:
			return errInvalidTransition(existing.Status, domain.RunRunning)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Heartbeat implements the Heartbeat contract.
func (c *Coordinator) Heartbeat(ctx context.Context, runID string) error {
	return c.locks.withLock(runID, func() error {
		return c.meta.TouchHeartbeat(ctx, runID)
	})
}

// FinishRun implements the FinishRun contract: running -> {finished,
// failed, killed}, terminal.
func (c *Coordinator) FinishRun(ctx context.Context, runID string, status domain.RunStatus, exitCode *int, errMsg *string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: finish_run status must be terminal", domain.ErrInvalidArgument)
	}
	return c.locks.withLock(runID, func() error {
		run, err := c.meta.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if !CanTransition(run.Status, status) {
			return errInvalidTransition(run.Status, status)
		}
		if err := c.meta.UpdateRunStatus(ctx, runID, run.Status, status, exitCode, errMsg); err != nil {
			return err
		}
		c.lifecycle.set(runID, status)
		c.reorder.Forget(runID)
		c.guard.RetireRun(run.ProjectID, runID)
		return nil
	})
}

// withinClockSkew reports whether a client timestamp is acceptable,
// clamping it to "now" and returning a clock-skew warning if not.
func (c *Coordinator) withinClockSkew(clientTS time.Time) (adjusted time.Time, skewed bool) {
	now := time.Now()
	if clientTS.Before(now.Add(-c.cfg.ClockSkewTolerance)) || clientTS.After(now.Add(c.cfg.ClockSkewTolerance)) {
		return now, true
	}
	return clientTS, false
}
