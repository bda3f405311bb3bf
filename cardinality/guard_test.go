package cardinality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runledger/runledger/domain"
)

func smallThresholds() Thresholds {
	return Thresholds{
		RunMetricNamesSoft:     3,
		RunMetricNamesHard:     5,
		RunTagKeysSoft:         2,
		RunTagKeysHard:         3,
		ProjectMetricNamesSoft: 100,
	}
}

func TestGuard_AdmitMetricName_WarnsApproachingThenExceeded(t *testing.T) {
	g := New(smallThresholds())

	for i := 0; i < 3; i++ {
		ok, warn := g.AdmitMetricName("proj", "run1", fmt.Sprintf("metric_%d", i))
		require.True(t, ok)
		assert.Empty(t, warn)
	}

	ok, warn := g.AdmitMetricName("proj", "run1", "metric_3")
	assert.True(t, ok)
	assert.Equal(t, domain.WarnCardinalityLimitApproaching, warn)

	ok, warn = g.AdmitMetricName("proj", "run1", "metric_4")
	assert.True(t, ok)
	assert.Equal(t, domain.WarnCardinalityLimitExceeded, warn)

	ok, warn = g.AdmitMetricName("proj", "run1", "metric_5")
	assert.False(t, ok)
	assert.Equal(t, domain.WarnCardinalityLimitExceeded, warn)
}

func TestGuard_AdmitMetricName_RepeatedNameIsFree(t *testing.T) {
	g := New(smallThresholds())

	for i := 0; i < 5; i++ {
		_, _ = g.AdmitMetricName("proj", "run1", "metric_0")
	}

	ok, warn := g.AdmitMetricName("proj", "run1", "metric_0")
	assert.True(t, ok)
	assert.Empty(t, warn, "a previously admitted name never triggers a warning on repeat writes")
}

func TestGuard_AdmitTagKey_HardLimit(t *testing.T) {
	g := New(smallThresholds())

	ok, _ := g.AdmitTagKey("run1", "a")
	assert.True(t, ok)
	ok, warn := g.AdmitTagKey("run1", "b")
	assert.True(t, ok)
	assert.Empty(t, warn, "reaching exactly the soft limit does not warn yet")
	ok, warn = g.AdmitTagKey("run1", "c")
	assert.True(t, ok)
	assert.Equal(t, domain.WarnCardinalityLimitExceeded, warn)
	ok, _ = g.AdmitTagKey("run1", "d")
	assert.False(t, ok)
}

func TestGuard_RegisterAndRetireRun(t *testing.T) {
	g := New(DefaultThresholds())
	g.RegisterRun("proj1", "run1")
	g.RegisterRun("proj1", "run2")
	g.RetireRun("proj1", "run1")

	pc := g.projects["proj1"]
	require.NotNil(t, pc)
	_, stillLive := pc.liveRuns["run1"]
	assert.False(t, stillLive)
	_, run2Live := pc.liveRuns["run2"]
	assert.True(t, run2Live)
}

func TestGuard_CounterSnapshot(t *testing.T) {
	g := New(DefaultThresholds())
	g.AdmitMetricName("proj", "run1", "loss")
	g.AdmitMetricName("proj", "run1", "accuracy")
	g.AdmitTagKey("run1", "env")
	g.AddPoints("run1", 42)

	c := g.Counter("run1")
	assert.Equal(t, 2, c.DistinctMetricNames)
	assert.Equal(t, 1, c.DistinctTagKeys)
	assert.Equal(t, int64(42), c.TotalPoints)

	empty := g.Counter("never-seen")
	assert.Equal(t, domain.CardinalityCounter{}, empty)
}

func TestGuard_Seed_PrimesCountersWithoutDoubleCountingProject(t *testing.T) {
	g := New(DefaultThresholds())
	g.Seed("proj", "run1", []string{"loss", "accuracy"}, []string{"env"}, 100)

	c := g.Counter("run1")
	assert.Equal(t, 2, c.DistinctMetricNames)
	assert.Equal(t, 1, c.DistinctTagKeys)
	assert.Equal(t, int64(100), c.TotalPoints)
	assert.Equal(t, 2, g.ProjectMetricNameCount("proj"))

	// seeding a second run with an overlapping name must not inflate the
	// project-level distinct count
	g.Seed("proj", "run2", []string{"loss"}, nil, 0)
	assert.Equal(t, 2, g.ProjectMetricNameCount("proj"))
}
