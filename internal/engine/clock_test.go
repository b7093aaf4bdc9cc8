package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsAtValue(t *testing.T) {
	assert.Equal(t, int64(0), NewClock().Current())
	assert.Equal(t, int64(41), NewClockAt(41).Current())
	assert.Equal(t, int64(42), NewClockAt(41).Next())
}

func TestClock_Keys(t *testing.T) {
	c := NewClock()

	key, local := c.Keys("pages")
	assert.Equal(t, "pages#1", key)
	assert.Equal(t, "pages#1.local", local)

	key, local = c.Keys("pages")
	assert.Equal(t, "pages#2", key)
	assert.Equal(t, "pages#2.local", local)

	assert.Equal(t, int64(2), c.Current())
}

func TestClock_KeysUniqueAcrossGoroutines(t *testing.T) {
	c := NewClock()
	const goroutines = 50
	const perGoroutine = 40

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				key, _ := c.Keys("layouts")
				mu.Lock()
				seen[key] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, goroutines*perGoroutine)
}
