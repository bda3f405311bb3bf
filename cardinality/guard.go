// Package cardinality is the Cardinality Guard: in-memory per-run and
// per-project counters with soft/hard thresholds, rebuilt from the metrics
// store's summary projection at boot.
package cardinality

import (
	"sync"

	"github.com/runledger/runledger/domain"
)

// Thresholds configures the soft-warn and hard-reject limits. Defaults
// match §4.4; deployments may override.
type Thresholds struct {
	RunMetricNamesSoft     int
	RunMetricNamesHard     int
	RunTagKeysSoft         int
	RunTagKeysHard         int
	ProjectMetricNamesSoft int
}

// DefaultThresholds returns the spec's stated defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RunMetricNamesSoft:     8000,  // 80% of 10000
		RunMetricNamesHard:     10000,
		RunTagKeysSoft:         800, // 80% of 1000
		RunTagKeysHard:         1000,
		ProjectMetricNamesSoft: 80000,
	}
}

type runCounter struct {
	metricNames map[string]struct{}
	tagKeys     map[string]struct{}
	totalPoints int64
}

type projectCounter struct {
	metricNames map[string]struct{}
	liveRuns    map[string]struct{}
}

// Guard holds all counters behind a single RWMutex, following the same
// map-plus-mutex shape used elsewhere in this tree for small bounded
// registries (the per-run lock set, the reorder-window buffers).
type Guard struct {
	mu         sync.RWMutex
	thresholds Thresholds
	runs       map[string]*runCounter
	projects   map[string]*projectCounter
}

// New creates an empty Guard. Call Rebuild before serving traffic.
func New(t Thresholds) *Guard {
	return &Guard{
		thresholds: t,
		runs:       make(map[string]*runCounter),
		projects:   make(map[string]*projectCounter),
	}
}

func (g *Guard) runFor(runID string) *runCounter {
	rc, ok := g.runs[runID]
	if !ok {
		rc = &runCounter{metricNames: map[string]struct{}{}, tagKeys: map[string]struct{}{}}
		g.runs[runID] = rc
	}
	return rc
}

func (g *Guard) projectFor(projectID string) *projectCounter {
	pc, ok := g.projects[projectID]
	if !ok {
		pc = &projectCounter{metricNames: map[string]struct{}{}, liveRuns: map[string]struct{}{}}
		g.projects[projectID] = pc
	}
	return pc
}

// RegisterRun records a newly created run against its project for
// per-project live-run accounting.
func (g *Guard) RegisterRun(projectID, runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.projectFor(projectID).liveRuns[runID] = struct{}{}
}

// RetireRun removes a run from per-project live-run accounting once it
// reaches a terminal or crashed status.
func (g *Guard) RetireRun(projectID, runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pc, ok := g.projects[projectID]; ok {
		delete(pc.liveRuns, runID)
	}
}

// AdmitMetricName attempts to account for a metric name write within a run.
// It returns ok=false with a warning code when the hard limit would be
// breached; the caller must then drop the point(s) for that name.
func (g *Guard) AdmitMetricName(projectID, runID, name string) (ok bool, warning string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rc := g.runFor(runID)
	if _, exists := rc.metricNames[name]; exists {
		return true, ""
	}

	count := len(rc.metricNames)
	if count+1 > g.thresholds.RunMetricNamesHard {
		return false, domain.WarnCardinalityLimitExceeded
	}

	rc.metricNames[name] = struct{}{}
	pc := g.projectFor(projectID)
	pc.metricNames[name] = struct{}{}

	if count+1 == g.thresholds.RunMetricNamesHard {
		return true, domain.WarnCardinalityLimitExceeded
	}
	if count+1 > g.thresholds.RunMetricNamesSoft {
		return true, domain.WarnCardinalityLimitApproaching
	}
	return true, ""
}

// AdmitTagKey is the tag-key analogue of AdmitMetricName.
func (g *Guard) AdmitTagKey(runID, key string) (ok bool, warning string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rc := g.runFor(runID)
	if _, exists := rc.tagKeys[key]; exists {
		return true, ""
	}
	count := len(rc.tagKeys)
	if count+1 > g.thresholds.RunTagKeysHard {
		return false, domain.WarnCardinalityLimitExceeded
	}
	rc.tagKeys[key] = struct{}{}
	if count+1 == g.thresholds.RunTagKeysHard {
		return true, domain.WarnCardinalityLimitExceeded
	}
	if count+1 > g.thresholds.RunTagKeysSoft {
		return true, domain.WarnCardinalityLimitApproaching
	}
	return true, ""
}

// AddPoints records accepted point count for a run, used only for
// observability (it never gates admission).
func (g *Guard) AddPoints(runID string, n int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runFor(runID).totalPoints += n
}

// Counter returns a point-in-time snapshot for a run.
func (g *Guard) Counter(runID string) domain.CardinalityCounter {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rc, ok := g.runs[runID]
	if !ok {
		return domain.CardinalityCounter{}
	}
	return domain.CardinalityCounter{
		DistinctMetricNames: len(rc.metricNames),
		DistinctTagKeys:     len(rc.tagKeys),
		TotalPoints:         rc.totalPoints,
	}
}

// ProjectMetricNameCount reports the soft-warned, never-rejected
// per-project distinct metric name count.
func (g *Guard) ProjectMetricNameCount(projectID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	pc, ok := g.projects[projectID]
	if !ok {
		return 0
	}
	return len(pc.metricNames)
}

// Seed primes a run's counters from a boot-time scan of the metrics store's
// summary projection, per §9's "must not under-count" requirement.
func (g *Guard) Seed(projectID, runID string, metricNames []string, tagKeys []string, totalPoints int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rc := g.runFor(runID)
	for _, n := range metricNames {
		rc.metricNames[n] = struct{}{}
	}
	for _, k := range tagKeys {
		rc.tagKeys[k] = struct{}{}
	}
	rc.totalPoints = totalPoints
	pc := g.projectFor(projectID)
	for _, n := range metricNames {
		pc.metricNames[n] = struct{}{}
	}
}
