package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runledger/runledger/domain"
)

func makePoints(n int) []domain.MetricPoint {
	points := make([]domain.MetricPoint, n)
	for i := 0; i < n; i++ {
		points[i] = domain.MetricPoint{RunID: "run1", Name: "loss", Step: int64(i), Value: float64(i)}
	}
	return points
}

func TestDownsample_BelowMaxPointsReturnsUnchanged(t *testing.T) {
	points := makePoints(5)
	out := downsample(points, 10, MethodLTTB)
	assert.Equal(t, points, out)
}

func TestDownsample_LTTB_KeepsFirstAndLast(t *testing.T) {
	points := makePoints(100)
	out := downsample(points, 10, MethodLTTB)
	require.Len(t, out, 10)
	assert.Equal(t, points[0], out[0])
	assert.Equal(t, points[len(points)-1], out[len(out)-1])
}

func TestDownsample_MinMax_CapturesExtremes(t *testing.T) {
	points := makePoints(20)
	points[5].Value = 1000
	points[15].Value = -1000

	out := downsample(points, 10, MethodMinMax)

	var sawMax, sawMin bool
	for _, p := range out {
		if p.Value == 1000 {
			sawMax = true
		}
		if p.Value == -1000 {
			sawMin = true
		}
	}
	assert.True(t, sawMax, "min_max must preserve the bucket's extreme high value")
	assert.True(t, sawMin, "min_max must preserve the bucket's extreme low value")
}

func TestDownsample_Average_MeanPerBucket(t *testing.T) {
	points := []domain.MetricPoint{
		{Step: 0, Value: 0}, {Step: 1, Value: 2},
		{Step: 2, Value: 4}, {Step: 3, Value: 6},
	}
	out := downsample(points, 2, MethodAverage)
	require.Len(t, out, 2)
	assert.Equal(t, 1.0, out[0].Value)
	assert.Equal(t, 5.0, out[1].Value)
}

func TestDownsample_FirstAndLast(t *testing.T) {
	points := makePoints(10)

	first := downsample(points, 5, MethodFirst)
	require.Len(t, first, 5)
	assert.Equal(t, points[0].Step, first[0].Step)

	last := downsample(points, 5, MethodLast)
	require.Len(t, last, 5)
	assert.Equal(t, points[1].Step, last[0].Step)
}

func TestBuckets_CoversEveryIndexExactlyOnce(t *testing.T) {
	bs := buckets(17, 5)
	var covered int
	for _, b := range bs {
		covered += b[1] - b[0]
	}
	assert.Equal(t, 17, covered)
	assert.Equal(t, 0, bs[0][0])
	assert.Equal(t, 17, bs[len(bs)-1][1])
}
