package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidMetricName(t *testing.T) {
	assert.True(t, validMetricName("loss"))
	assert.True(t, validMetricName("train/accuracy"))
	assert.True(t, validMetricName("eval.f1_score-v2"))

	assert.False(t, validMetricName(""), "empty name rejected")
	assert.False(t, validMetricName("1loss"), "must start with a letter")
	assert.False(t, validMetricName("bad name"), "space not allowed")
}

func TestValidMetricName_RejectsReservedPrefix(t *testing.T) {
	assert.False(t, validMetricName("_mlrun.internal"))
	assert.False(t, validMetricName("_mlrunish"), "an underscore-led name is rejected by the leading-letter rule even without the reserved prefix")
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("run-123_abc"))
	assert.False(t, validID(""))
	assert.False(t, validID("has a space"))
	assert.False(t, validID("toolong-12345678901234567890123456789012345678901234567890123456789012345"))
}

func TestCheckHardLimits(t *testing.T) {
	err := checkHardLimits("run1", "batch1", 10, 100, 100, 1000)
	assert.NoError(t, err)

	err = checkHardLimits("bad id!", "batch1", 10, 100, 100, 1000)
	assert.Error(t, err)

	err = checkHardLimits("run1", "batch1", 101, 100, 100, 1000)
	assert.Error(t, err, "point count over cap must be rejected")

	err = checkHardLimits("run1", "batch1", 10, 1001, 100, 1000)
	assert.Error(t, err, "byte size over cap must be rejected")
}
