package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/runledger/runledger/domain"
)

func TestPayloadHash_OrderIndependent(t *testing.T) {
	ts := time.Now()
	a := domain.MetricPoint{Name: "loss", Step: 0, Value: 1.0, Timestamp: ts}
	b := domain.MetricPoint{Name: "loss", Step: 1, Value: 2.0, Timestamp: ts}

	h1 := payloadHash([]domain.MetricPoint{a, b})
	h2 := payloadHash([]domain.MetricPoint{b, a})
	assert.Equal(t, h1, h2, "the same set of points in a different wire order must hash identically")
}

func TestPayloadHash_DifferentValueChangesHash(t *testing.T) {
	ts := time.Now()
	a := domain.MetricPoint{Name: "loss", Step: 0, Value: 1.0, Timestamp: ts}
	aChanged := domain.MetricPoint{Name: "loss", Step: 0, Value: 1.5, Timestamp: ts}

	h1 := payloadHash([]domain.MetricPoint{a})
	h2 := payloadHash([]domain.MetricPoint{aChanged})
	assert.NotEqual(t, h1, h2)
}

func TestPayloadHash_Deterministic(t *testing.T) {
	ts := time.Now()
	points := []domain.MetricPoint{{Name: "loss", Step: 0, Value: 1.0, Timestamp: ts}}

	h1 := payloadHash(points)
	h2 := payloadHash(points)
	assert.Equal(t, h1, h2)
}
