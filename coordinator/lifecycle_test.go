package coordinator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/runledger/runledger/domain"
)

func TestCanTransition_ValidMoves(t *testing.T) {
	assert.True(t, CanTransition(domain.RunPending, domain.RunRunning))
	assert.True(t, CanTransition(domain.RunRunning, domain.RunFinished))
	assert.True(t, CanTransition(domain.RunRunning, domain.RunCrashed))
	assert.True(t, CanTransition(domain.RunCrashed, domain.RunRunning))
}

func TestCanTransition_RejectsTerminalReentry(t *testing.T) {
	assert.False(t, CanTransition(domain.RunFinished, domain.RunRunning))
	assert.False(t, CanTransition(domain.RunFailed, domain.RunRunning))
	assert.False(t, CanTransition(domain.RunKilled, domain.RunRunning))
}

func TestCanTransition_RejectsSkippingPending(t *testing.T) {
	assert.False(t, CanTransition(domain.RunPending, domain.RunFinished))
}

func TestLifecycle_SetGetForget(t *testing.T) {
	l := newLifecycle()

	_, ok := l.get("run1")
	assert.False(t, ok)

	l.set("run1", domain.RunRunning)
	status, ok := l.get("run1")
	assert.True(t, ok)
	assert.Equal(t, domain.RunRunning, status)

	l.forget("run1")
	_, ok = l.get("run1")
	assert.False(t, ok)
}
