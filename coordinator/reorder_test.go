package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderWindow_InOrderReleasesImmediately(t *testing.T) {
	w := NewReorderWindow(10, time.Minute)
	ready := w.Submit("run1", 0, "a")
	require.Len(t, ready, 1)
	assert.Equal(t, "a", ready[0])
}

func TestReorderWindow_OutOfOrderBuffersThenDrainsContiguousPrefix(t *testing.T) {
	w := NewReorderWindow(10, time.Minute)

	ready := w.Submit("run1", 1, "b")
	assert.Empty(t, ready, "sequence 1 arriving before 0 must buffer, not release")

	ready = w.Submit("run1", 2, "c")
	assert.Empty(t, ready)

	ready = w.Submit("run1", 0, "a")
	require.Len(t, ready, 3, "arrival of the missing sequence 0 must release 0,1,2 in order")
	assert.Equal(t, []any{"a", "b", "c"}, ready)
}

func TestReorderWindow_MaxSizeForcesFlush(t *testing.T) {
	w := NewReorderWindow(2, time.Hour)

	ready := w.Submit("run1", 5, "x")
	assert.Empty(t, ready)
	ready = w.Submit("run1", 6, "y")
	require.Len(t, ready, 2, "hitting maxSize buffered items must force a flush")
}

func TestReorderWindow_FlushAged(t *testing.T) {
	w := NewReorderWindow(100, time.Millisecond)
	w.Submit("run1", 7, "late")
	time.Sleep(5 * time.Millisecond)

	released := w.FlushAged()
	require.Contains(t, released, "run1")
	assert.Equal(t, []any{"late"}, released["run1"])
}

func TestReorderWindow_Forget(t *testing.T) {
	w := NewReorderWindow(10, time.Minute)
	w.Submit("run1", 1, "buffered")
	w.Forget("run1")

	released := w.FlushAged()
	assert.NotContains(t, released, "run1")
}
