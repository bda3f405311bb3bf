package coordinator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/runledger/runledger/domain"
)

// watchdog scans runs in running status every interval and marks any run
// whose heartbeat has lapsed past timeout as crashed. It reschedules on
// monotonic time (time.Ticker), so wall-clock jumps cannot cause spurious
// transitions. It stops on a closed stop channel or a cancelled context.
type watchdog struct {
	coord    *Coordinator
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	log      *logrus.Entry

	ticks int
}

// pruneEvery is how many watchdog ticks pass between ledger prune sweeps.
const pruneEvery = 20

func newWatchdog(c *Coordinator, interval, timeout time.Duration) *watchdog {
	return &watchdog{
		coord:    c,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
		log:      c.log.WithField("loop", "watchdog"),
	}
}

func (w *watchdog) start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

func (w *watchdog) stop() {
	close(w.stopCh)
}

func (w *watchdog) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.timeout)
	ids, err := w.coord.meta.CrashStaleRuns(ctx, cutoff)
	if err != nil {
		w.log.WithError(err).Warn("failed to scan for stale heartbeats")
		return
	}
	for _, id := range ids {
		w.coord.lifecycle.set(id, domain.RunCrashed)
		w.coord.reorder.Forget(id)
		if run, getErr := w.coord.meta.GetRun(ctx, id); getErr == nil {
			w.coord.guard.RetireRun(run.ProjectID, id)
		}
		w.log.WithField("run_id", id).Info("run marked crashed by watchdog")
	}

	for runID, payloads := range w.coord.reorder.FlushAged() {
		w.coord.persistReleasedLocked(ctx, runID, payloads)
	}

	w.ticks++
	if w.ticks%pruneEvery == 0 {
		if n, err := w.coord.ledger.Prune(ctx); err != nil {
			w.log.WithError(err).Warn("ledger prune failed")
		} else if n > 0 {
			w.log.WithField("rows", n).Info("pruned expired ledger entries")
		}
	}
}
