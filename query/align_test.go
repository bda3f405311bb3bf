package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/runledger/runledger/domain"
)

func TestInterpolate_ExactMatch(t *testing.T) {
	xs := []float64{0, 1, 2, 3}
	ys := []float64{10, 20, 30, 40}
	v, gap := interpolate(xs, ys, 2)
	assert.False(t, gap)
	assert.Equal(t, 30.0, v)
}

func TestInterpolate_InteriorLinear(t *testing.T) {
	xs := []float64{0, 10}
	ys := []float64{0, 100}
	v, gap := interpolate(xs, ys, 5)
	assert.False(t, gap)
	assert.Equal(t, 50.0, v)
}

func TestInterpolate_OutsideRangeIsGap(t *testing.T) {
	xs := []float64{5, 10}
	ys := []float64{1, 2}
	_, gap := interpolate(xs, ys, 20)
	assert.True(t, gap, "extrapolation beyond the observed range must be a gap, never a value")

	_, gap = interpolate(xs, ys, 0)
	assert.True(t, gap)
}

func TestInterpolate_EmptySeriesIsGap(t *testing.T) {
	v, gap := interpolate(nil, nil, 1)
	assert.True(t, gap)
	assert.Equal(t, 0.0, v)
}

func TestXForMode_Step(t *testing.T) {
	p := domain.MetricPoint{Step: 42}
	x := xForMode(AlignStep, p, nil, 0)
	assert.Equal(t, 42.0, x)
}

func TestXForMode_RelativeTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := domain.MetricPoint{Timestamp: start.Add(90 * time.Second)}
	x := xForMode(AlignRelativeTime, p, &start, 0)
	assert.Equal(t, 90.0, x)
}

func TestXForMode_RelativeTime_NoStartIsZero(t *testing.T) {
	p := domain.MetricPoint{Timestamp: time.Now()}
	x := xForMode(AlignRelativeTime, p, nil, 0)
	assert.Equal(t, 0.0, x)
}

func TestXForMode_Progress(t *testing.T) {
	p := domain.MetricPoint{Step: 50}
	x := xForMode(AlignProgress, p, nil, 100)
	assert.Equal(t, 50.0, x)
}

func TestXForMode_Progress_ZeroFinalStepIsZero(t *testing.T) {
	p := domain.MetricPoint{Step: 50}
	x := xForMode(AlignProgress, p, nil, 0)
	assert.Equal(t, 0.0, x)
}

func TestDownsampleAxis_WithinBudgetUnchanged(t *testing.T) {
	xs := []float64{1, 2, 3}
	out := downsampleAxis(xs, 10)
	assert.Equal(t, xs, out)
}

func TestDownsampleAxis_ReducesToBudget(t *testing.T) {
	xs := make([]float64, 100)
	for i := range xs {
		xs[i] = float64(i)
	}
	out := downsampleAxis(xs, 10)
	assert.LessOrEqual(t, len(out), 10)
}
