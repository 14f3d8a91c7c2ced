package reentrant

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMutex_ReentrantLockFromSameGoroutine(t *testing.T) {
	var m Mutex
	done := make(chan struct{})

	m.Lock()
	go func() {
		// A different goroutine must block.
		m.Lock()
		close(done)
		m.Unlock()
	}()

	select {
	case <-done:
		t.Fatal("other goroutine should not have acquired the lock yet")
	case <-time.After(50 * time.Millisecond):
	}

	// Re-entering from the same (holding) goroutine must not deadlock.
	m.Lock()
	m.Unlock()

	m.Unlock()
	<-done
}

func TestMutex_MutualExclusion(t *testing.T) {
	var m Mutex
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Lock()
			defer m.Unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestMutex_UnlockByNonOwnerPanics(t *testing.T) {
	var m Mutex
	m.Lock()
	defer m.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Panics(t, func() {
			m.Unlock()
		})
	}()
	<-done
}
