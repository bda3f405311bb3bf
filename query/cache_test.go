package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/runledger/runledger/metrics"
)

func TestFormatInt64Ptr(t *testing.T) {
	assert.Equal(t, "-", formatInt64Ptr(nil))
	var v int64 = 42
	assert.Equal(t, "42", formatInt64Ptr(&v))
}

func TestFormatTimePtr(t *testing.T) {
	assert.Equal(t, "-", formatTimePtr(nil))
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, ts.Format(time.RFC3339Nano), formatTimePtr(&ts))
}

func TestSeriesKey_StableAndDistinguishesRuns(t *testing.T) {
	c := &ResultCache{prefix: "runledger:query:series:"}
	sr := metrics.StepRange{}
	tr := metrics.TimeRange{}

	k1 := c.seriesKey("run1", "loss", sr, tr, 1000, MethodLTTB)
	k2 := c.seriesKey("run1", "loss", sr, tr, 1000, MethodLTTB)
	assert.Equal(t, k1, k2, "identical inputs must produce identical keys")

	k3 := c.seriesKey("run2", "loss", sr, tr, 1000, MethodLTTB)
	assert.NotEqual(t, k1, k3)
	assert.Contains(t, k1, "run1")
	assert.Contains(t, k3, "run2")
}

func TestSeriesKey_DistinguishesMethodAndMaxPoints(t *testing.T) {
	c := &ResultCache{prefix: "runledger:query:series:"}
	sr := metrics.StepRange{}
	tr := metrics.TimeRange{}

	base := c.seriesKey("run1", "loss", sr, tr, 1000, MethodLTTB)
	diffMethod := c.seriesKey("run1", "loss", sr, tr, 1000, MethodAverage)
	diffMax := c.seriesKey("run1", "loss", sr, tr, 500, MethodLTTB)

	assert.NotEqual(t, base, diffMethod)
	assert.NotEqual(t, base, diffMax)
}
