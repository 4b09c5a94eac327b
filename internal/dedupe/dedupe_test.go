// ABOUTME: Tests for the dedupe cache
// ABOUTME: Validates TTL expiry, size-bounded eviction and concurrent use

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSeen_FirstTimeIsFalse(t *testing.T) {
	c := New(5*time.Minute, 100)
	defer c.Close()

	assert.False(t, c.Seen("msg-1"))
	assert.True(t, c.Seen("msg-1"))
	assert.False(t, c.Seen("msg-2"))
}

func TestSeen_ExpiresAfterTTL(t *testing.T) {
	c := New(20*time.Millisecond, 100)
	defer c.Close()

	assert.False(t, c.Seen("msg-1"))
	assert.True(t, c.Seen("msg-1"))

	time.Sleep(30 * time.Millisecond)

	// Expired: treated as new again
	assert.False(t, c.Seen("msg-1"))
}

func TestSeen_EvictsOldestAtCapacity(t *testing.T) {
	c := New(5*time.Minute, 3)
	defer c.Close()

	c.Seen("a")
	c.Seen("b")
	c.Seen("c")
	assert.Equal(t, 3, c.Len())

	// Adding a fourth evicts "a". Assert with the non-mutating Check so the
	// reads don't insert and shift the eviction order themselves.
	c.Seen("d")
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Check("a"))
	assert.True(t, c.Check("b"))
	assert.True(t, c.Check("c"))
	assert.True(t, c.Check("d"))
}

func TestSeen_Concurrent(t *testing.T) {
	c := New(time.Minute, 1000)
	defer c.Close()

	// For each key, exactly one goroutine must observe it as new
	var wg sync.WaitGroup
	var mu sync.Mutex
	firsts := make(map[string]int)
	for i := 0; i < 10; i++ {
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				if !c.Seen(key) {
					mu.Lock()
					firsts[key]++
					mu.Unlock()
				}
			}(fmt.Sprintf("key-%d", i))
		}
	}
	wg.Wait()

	for key, n := range firsts {
		assert.Equal(t, 1, n, "key %s claimed new %d times", key, n)
	}
}

func TestClose_Idempotent(t *testing.T) {
	c := New(time.Minute, 10)
	c.Close()
	c.Close()
}
