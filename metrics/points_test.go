package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSubnormal(t *testing.T) {
	assert.False(t, isSubnormal(0))
	assert.False(t, isSubnormal(1.0))
	assert.False(t, isSubnormal(-1.0))
	assert.False(t, isSubnormal(math.MaxFloat64))
	assert.True(t, isSubnormal(math.SmallestNonzeroFloat64))
}
