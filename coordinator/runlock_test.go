package coordinator

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunLocks_WithLock_ReturnsFnError(t *testing.T) {
	locks := newRunLocks()
	wantErr := errors.New("boom")

	err := locks.withLock("run1", func() error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
}

func TestRunLocks_SerializesSameRun(t *testing.T) {
	locks := newRunLocks()
	var active int
	var maxActive int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locks.withLock("run1", func() error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "concurrent calls locked on the same run_id must never overlap")
}

func TestRunLocks_DifferentRunsDoNotShareALock(t *testing.T) {
	locks := newRunLocks()
	a := locks.lockFor("run-a")
	b := locks.lockFor("run-b")
	assert.NotSame(t, a, b)

	same := locks.lockFor("run-a")
	assert.Same(t, a, same, "repeated lookups for the same run_id must return the same mutex")
}
