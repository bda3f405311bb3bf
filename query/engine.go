// Package query is the Query Engine (C6): list_runs, fetch_metrics with
// server-side downsampling, and compare_runs multi-run alignment.
package query

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/runledger/runledger/domain"
	"github.com/runledger/runledger/metadata"
	"github.com/runledger/runledger/metrics"
)

// Engine answers read-only queries over the metadata and metrics stores. It
// holds no state of its own beyond an optional result cache; every call
// against the stores is a fresh read.
type Engine struct {
	meta    *metadata.Store
	metrics *metrics.Store
	cache   *ResultCache
	log     *logrus.Entry
}

// New constructs an Engine over already-open stores with no result cache.
func New(meta *metadata.Store, metricsStore *metrics.Store, log *logrus.Entry) *Engine {
	return &Engine{meta: meta, metrics: metricsStore, log: log.WithField("component", "query")}
}

// WithCache attaches a Redis-backed result cache to the engine.
func (e *Engine) WithCache(cache *ResultCache) *Engine {
	e.cache = cache
	return e
}

// Projection selects which optional sections a caller wants attached to a
// run (the field-projection knob of §4.6's list_runs).
type Projection struct {
	Summary bool
	Params  bool
}

// RunView decorates a run with the sections its caller requested.
type RunView struct {
	Run     *domain.Run
	Summary []domain.Summary
	Params  []domain.Parameter
}

// ListRunsResult is the list_runs response.
type ListRunsResult struct {
	Runs            []RunView
	NextPageToken   string
	TotalEstimated  int64
	EstimateIsExact bool
}

// ListRuns implements list_runs, delegating filtering/sorting/pagination to
// the metadata store and attaching the requested projections.
func (e *Engine) ListRuns(ctx context.Context, f metadata.Filter, pageToken string, pageSize int, proj Projection) (*ListRunsResult, error) {
	page, err := e.meta.ListRuns(ctx, f, pageToken, pageSize)
	if err != nil {
		return nil, fmt.Errorf("query: list_runs: %w", err)
	}
	out := &ListRunsResult{
		NextPageToken:   page.NextPageToken,
		TotalEstimated:  page.TotalEstimated,
		EstimateIsExact: page.EstimateIsExact,
	}
	for _, r := range page.Runs {
		view, err := e.decorate(ctx, r, proj)
		if err != nil {
			return nil, err
		}
		out.Runs = append(out.Runs, *view)
	}
	return out, nil
}

// ResolveProject looks up a project by name, used by the transport layer to
// turn a caller-supplied project name into the id list_runs filters on.
func (e *Engine) ResolveProject(ctx context.Context, name string) (*domain.Project, error) {
	return e.meta.GetProject(ctx, name)
}

// GetRun implements get_run: a single run with its summary always attached.
func (e *Engine) GetRun(ctx context.Context, runID string) (*RunView, error) {
	run, err := e.meta.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return e.decorate(ctx, run, Projection{Summary: true})
}

func (e *Engine) decorate(ctx context.Context, run *domain.Run, proj Projection) (*RunView, error) {
	view := &RunView{Run: run}
	if proj.Summary {
		sm, err := e.metrics.FetchSummary(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("query: fetch summary for %s: %w", run.ID, err)
		}
		view.Summary = sm
	}
	if proj.Params {
		params, err := e.meta.GetParams(ctx, run.ID)
		if err != nil {
			return nil, fmt.Errorf("query: fetch params for %s: %w", run.ID, err)
		}
		view.Params = params
	}
	return view, nil
}

// MetricsRequest is the fetch_metrics input.
type MetricsRequest struct {
	RunIDs      []string
	MetricNames []string
	StepRange   metrics.StepRange
	TimeRange   metrics.TimeRange
	MaxPoints   int
	Method      DownsampleMethod
}

// SeriesResult is one (run, name) pair's fetch_metrics response entry.
type SeriesResult struct {
	RunID              string
	Name               string
	Points             []domain.MetricPoint
	Downsampled        bool
	OriginalPointCount int64
	Stats              metrics.RangeStats
}

const defaultMaxPoints = 1000
const hardMaxPoints = 10000

// FetchMetrics implements fetch_metrics: for each (run, name) pair, count
// the underlying points, return them as-is if within max_points, otherwise
// apply the named downsampling algorithm. Statistics are always computed
// over the unsampled range.
func (e *Engine) FetchMetrics(ctx context.Context, req MetricsRequest) ([]SeriesResult, error) {
	maxPoints := req.MaxPoints
	if maxPoints <= 0 {
		maxPoints = defaultMaxPoints
	}
	if maxPoints > hardMaxPoints {
		return nil, fmt.Errorf("%w: max_points %d exceeds the hard cap of %d", domain.ErrInvalidArgument, maxPoints, hardMaxPoints)
	}
	if len(req.RunIDs) > 10 {
		return nil, fmt.Errorf("%w: fetch_metrics accepts at most 10 run ids", domain.ErrInvalidArgument)
	}
	if len(req.MetricNames) > 50 {
		return nil, fmt.Errorf("%w: fetch_metrics accepts at most 50 metric names", domain.ErrInvalidArgument)
	}

	var results []SeriesResult
	for _, runID := range req.RunIDs {
		for _, name := range req.MetricNames {
			var cacheKey string
			if e.cache != nil {
				cacheKey = e.cache.seriesKey(runID, name, req.StepRange, req.TimeRange, maxPoints, req.Method)
				if cached, ok := e.cache.get(ctx, cacheKey); ok {
					results = append(results, cached)
					continue
				}
			}

			stats, err := e.metrics.FetchRangeStats(ctx, runID, name, req.StepRange, req.TimeRange)
			if err != nil {
				return nil, fmt.Errorf("query: fetch_metrics stats for %s/%s: %w", runID, name, err)
			}

			points, err := e.metrics.FetchSeries(ctx, []string{runID}, []string{name}, req.StepRange, req.TimeRange)
			if err != nil {
				return nil, fmt.Errorf("query: fetch_metrics series for %s/%s: %w", runID, name, err)
			}

			downsampled := int64(len(points)) > int64(maxPoints)
			out := points
			if downsampled {
				out = downsample(points, maxPoints, req.Method)
			}

			result := SeriesResult{
				RunID:              runID,
				Name:               name,
				Points:             out,
				Downsampled:        downsampled,
				OriginalPointCount: stats.Count,
				Stats:              stats,
			}
			if e.cache != nil {
				e.cache.put(ctx, cacheKey, result)
			}
			results = append(results, result)
		}
	}
	return results, nil
}
