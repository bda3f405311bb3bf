package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/runledger/runledger/domain"
	"github.com/runledger/runledger/metrics"
)

// AlignmentMode selects the compare_runs X axis.
type AlignmentMode string

const (
	AlignStep         AlignmentMode = "step"
	AlignRelativeTime AlignmentMode = "relative_time"
	AlignAbsoluteTime AlignmentMode = "absolute_time"
	AlignProgress     AlignmentMode = "progress"
)

// CompareRequest is the compare_runs input.
type CompareRequest struct {
	RunIDs      []string
	MetricNames []string
	Mode        AlignmentMode
	MaxPoints   int
}

// AlignedPoint is one series sample on the common X axis. Gap distinguishes
// "no data here" from an actual value of zero.
type AlignedPoint struct {
	Value float64
	Gap   bool
}

// AlignedSeries is one (run, name) pair's values across CommonX.
type AlignedSeries struct {
	RunID  string
	Name   string
	Points []AlignedPoint
}

// CompareResult is the compare_runs response.
type CompareResult struct {
	CommonX []float64
	Series  []AlignedSeries
}

type xySeries struct {
	runID, name string
	xs          []float64
	ys          []float64
}

// CompareRuns implements compare_runs: build a common X axis from the union
// of observed X values across every requested (run, name) pair, linearly
// interpolate missing interior samples within each run's own observed
// range, mark everything else a gap, then downsample the shared axis to
// MaxPoints.
//
// Unlike FetchMetrics this does not consult the result cache: CommonX is a
// join across every requested run, so a cached entry would need to be
// invalidated whenever any one of several runs got new points, not just the
// one a cached fetch_metrics series keys on. Comparisons are also a smaller
// fraction of query traffic than repeated single-run polling, so the
// complexity isn't worth it.
func (e *Engine) CompareRuns(ctx context.Context, req CompareRequest) (*CompareResult, error) {
	startedAt := map[string]*time.Time{}
	finalStep := map[string]int64{}

	type rawSeries struct {
		runID, name string
		points      []domain.MetricPoint
	}
	var raws []rawSeries
	seenRun := map[string]bool{}

	for _, runID := range req.RunIDs {
		if !seenRun[runID] {
			seenRun[runID] = true
			run, err := e.meta.GetRun(ctx, runID)
			if err != nil {
				return nil, fmt.Errorf("query: compare_runs: load run %s: %w", runID, err)
			}
			startedAt[runID] = run.StartedAt
		}
		for _, name := range req.MetricNames {
			points, err := e.metrics.FetchSeries(ctx, []string{runID}, []string{name}, metrics.StepRange{}, metrics.TimeRange{})
			if err != nil {
				return nil, fmt.Errorf("query: compare_runs: fetch %s/%s: %w", runID, name, err)
			}
			raws = append(raws, rawSeries{runID: runID, name: name, points: points})
			for _, p := range points {
				if p.Step > finalStep[runID] {
					finalStep[runID] = p.Step
				}
			}
		}
	}

	var series []xySeries
	xSet := map[float64]struct{}{}
	for _, rs := range raws {
		xy := xySeries{runID: rs.runID, name: rs.name}
		for _, p := range rs.points {
			x := xForMode(req.Mode, p, startedAt[rs.runID], finalStep[rs.runID])
			xy.xs = append(xy.xs, x)
			xy.ys = append(xy.ys, p.Value)
			xSet[x] = struct{}{}
		}
		series = append(series, xy)
	}

	commonX := make([]float64, 0, len(xSet))
	for x := range xSet {
		commonX = append(commonX, x)
	}
	sort.Float64s(commonX)
	commonX = downsampleAxis(commonX, req.MaxPoints)

	result := &CompareResult{CommonX: commonX}
	for _, xy := range series {
		points := make([]AlignedPoint, len(commonX))
		for i, x := range commonX {
			v, gap := interpolate(xy.xs, xy.ys, x)
			points[i] = AlignedPoint{Value: v, Gap: gap}
		}
		result.Series = append(result.Series, AlignedSeries{RunID: xy.runID, Name: xy.name, Points: points})
	}
	return result, nil
}

func xForMode(mode AlignmentMode, p domain.MetricPoint, startedAt *time.Time, finalStep int64) float64 {
	switch mode {
	case AlignRelativeTime:
		if startedAt == nil {
			return 0
		}
		return p.Timestamp.Sub(*startedAt).Seconds()
	case AlignAbsoluteTime:
		return float64(p.Timestamp.Unix())
	case AlignProgress:
		if finalStep <= 0 {
			return 0
		}
		return float64(p.Step) / float64(finalStep) * 100
	default:
		return float64(p.Step)
	}
}

// interpolate returns the value of a series at x: exact if observed,
// linearly interpolated if x falls strictly within the series' observed
// range, and a gap otherwise (never extrapolated).
func interpolate(xs, ys []float64, x float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, true
	}
	if x < xs[0] || x > xs[len(xs)-1] {
		return 0, true
	}
	i := sort.SearchFloat64s(xs, x)
	if i < len(xs) && xs[i] == x {
		return ys[i], false
	}
	if i == 0 {
		return ys[0], false
	}
	lo, hi := i-1, i
	span := xs[hi] - xs[lo]
	if span == 0 {
		return ys[lo], false
	}
	frac := (x - xs[lo]) / span
	return ys[lo] + frac*(ys[hi]-ys[lo]), false
}

// downsampleAxis reduces a sorted, deduplicated X axis to at most maxPoints
// values by picking the midpoint of each bucket, preserving order.
func downsampleAxis(xs []float64, maxPoints int) []float64 {
	if maxPoints <= 0 || len(xs) <= maxPoints {
		return xs
	}
	var out []float64
	for _, b := range buckets(len(xs), maxPoints) {
		out = append(out, xs[(b[0]+b[1])/2])
	}
	return out
}
