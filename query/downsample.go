package query

import (
	"math"

	"github.com/runledger/runledger/domain"
)

// DownsampleMethod selects the fetch_metrics reduction algorithm.
type DownsampleMethod string

const (
	MethodLTTB    DownsampleMethod = "lttb"
	MethodMinMax  DownsampleMethod = "min_max"
	MethodAverage DownsampleMethod = "average"
	MethodFirst   DownsampleMethod = "first"
	MethodLast    DownsampleMethod = "last"
)

// downsample applies method to points (already sorted by step) and returns
// at most maxPoints points, deterministically; with maxPoints of 1, lttb and
// min_max still return two points.
func downsample(points []domain.MetricPoint, maxPoints int, method DownsampleMethod) []domain.MetricPoint {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}
	switch method {
	case MethodMinMax:
		return minMaxDownsample(points, maxPoints)
	case MethodAverage:
		return averageDownsample(points, maxPoints)
	case MethodFirst:
		return edgeDownsample(points, maxPoints, true)
	case MethodLast:
		return edgeDownsample(points, maxPoints, false)
	default:
		return lttbDownsample(points, maxPoints)
	}
}

// buckets splits n items into count contiguous, near-equal partitions.
func buckets(n, count int) [][2]int {
	if count <= 0 {
		count = 1
	}
	out := make([][2]int, 0, count)
	size := float64(n) / float64(count)
	for i := 0; i < count; i++ {
		start := int(math.Floor(float64(i) * size))
		end := int(math.Floor(float64(i+1) * size))
		if i == count-1 {
			end = n
		}
		if start >= end {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// lttbDownsample implements Largest-Triangle-Three-Buckets: first and last
// points are always kept; for every interior bucket the point forming the
// largest-area triangle with the previously emitted point and the centroid
// of the next bucket is kept. Ties break by lowest step.
func lttbDownsample(points []domain.MetricPoint, maxPoints int) []domain.MetricPoint {
	if maxPoints <= 2 {
		return []domain.MetricPoint{points[0], points[len(points)-1]}
	}
	n := len(points)
	interiorBuckets := buckets(n-2, maxPoints-2)

	out := make([]domain.MetricPoint, 0, maxPoints)
	out = append(out, points[0])
	prev := points[0]

	for bi, b := range interiorBuckets {
		lo, hi := b[0]+1, b[1]+1 // offset past the reserved first point

		var nextLo, nextHi int
		if bi+1 < len(interiorBuckets) {
			nextLo, nextHi = interiorBuckets[bi+1][0]+1, interiorBuckets[bi+1][1]+1
		} else {
			nextLo, nextHi = n-1, n // the reserved last point
		}
		centroidX, centroidY := centroid(points[nextLo:nextHi])

		bestIdx := lo
		bestArea := -1.0
		for i := lo; i < hi; i++ {
			area := math.Abs(triangleArea(
				float64(prev.Step), prev.Value,
				float64(points[i].Step), points[i].Value,
				centroidX, centroidY,
			))
			if area > bestArea || (area == bestArea && points[i].Step < points[bestIdx].Step) {
				bestArea = area
				bestIdx = i
			}
		}
		out = append(out, points[bestIdx])
		prev = points[bestIdx]
	}

	out = append(out, points[n-1])
	return out
}

func centroid(points []domain.MetricPoint) (x, y float64) {
	if len(points) == 0 {
		return 0, 0
	}
	for _, p := range points {
		x += float64(p.Step)
		y += p.Value
	}
	n := float64(len(points))
	return x / n, y / n
}

// triangleArea is the signed shoelace-formula area of triangle (a, b, c);
// callers take the absolute value.
func triangleArea(ax, ay, bx, by, cx, cy float64) float64 {
	return 0.5 * ((bx-ax)*(cy-ay) - (cx-ax)*(by-ay))
}

// minMaxDownsample partitions into maxPoints/2 buckets and emits the argmin
// and argmax of each, min before max unless max has the smaller step.
func minMaxDownsample(points []domain.MetricPoint, maxPoints int) []domain.MetricPoint {
	bucketCount := maxPoints / 2
	if bucketCount < 1 {
		bucketCount = 1
	}
	var out []domain.MetricPoint
	for _, b := range buckets(len(points), bucketCount) {
		slice := points[b[0]:b[1]]
		minI, maxI := 0, 0
		for i, p := range slice {
			if p.Value < slice[minI].Value {
				minI = i
			}
			if p.Value > slice[maxI].Value {
				maxI = i
			}
		}
		if minI == maxI {
			out = append(out, slice[minI])
			continue
		}
		if slice[minI].Step <= slice[maxI].Step {
			out = append(out, slice[minI], slice[maxI])
		} else {
			out = append(out, slice[maxI], slice[minI])
		}
	}
	return out
}

// averageDownsample emits one point per bucket at the bucket's midpoint
// step, the arithmetic mean of finite values (NaN/±Inf excluded from the
// mean but counted toward bucket occupancy).
func averageDownsample(points []domain.MetricPoint, maxPoints int) []domain.MetricPoint {
	var out []domain.MetricPoint
	for _, b := range buckets(len(points), maxPoints) {
		slice := points[b[0]:b[1]]
		var sum float64
		var finiteCount int
		for _, p := range slice {
			if !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0) {
				sum += p.Value
				finiteCount++
			}
		}
		mean := 0.0
		if finiteCount > 0 {
			mean = sum / float64(finiteCount)
		} else {
			mean = math.NaN()
		}
		mid := slice[len(slice)/2]
		out = append(out, domain.MetricPoint{
			RunID: mid.RunID, Name: mid.Name,
			Step:      (slice[0].Step + slice[len(slice)-1].Step) / 2,
			Value:     mean,
			Timestamp: mid.Timestamp,
		})
	}
	return out
}

// edgeDownsample emits the first (or last) point of every bucket.
func edgeDownsample(points []domain.MetricPoint, maxPoints int, first bool) []domain.MetricPoint {
	var out []domain.MetricPoint
	for _, b := range buckets(len(points), maxPoints) {
		if first {
			out = append(out, points[b[0]])
		} else {
			out = append(out, points[b[1]-1])
		}
	}
	return out
}
