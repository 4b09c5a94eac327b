// ABOUTME: TTL-based seen-key cache for suppressing redelivered messages and artifacts
// ABOUTME: Size-bounded with oldest-first eviction; safe for concurrent use

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	at   time.Time
	elem *list.Element
}

// Cache remembers keys for a TTL, holding at most maxSize entries. The zero
// value is not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // keys oldest-first, for eviction
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	once    sync.Once
}

// New creates a cache with the given TTL and size bound. A background
// goroutine sweeps expired entries once a minute until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Seen atomically reports whether key was recorded within the TTL, recording
// it if not. A true return means the caller should drop the work as a
// duplicate.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if e, ok := c.entries[key]; ok && now.Sub(e.at) < c.ttl {
		return true
	}

	if e, ok := c.entries[key]; ok {
		// Expired entry for the same key: refresh in place
		e.at = now
		c.order.MoveToBack(e.elem)
		return false
	}

	if len(c.entries) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			delete(c.entries, front.Value.(string))
			c.order.Remove(front)
		}
	}

	c.entries[key] = &entry{at: now, elem: c.order.PushBack(key)}
	return false
}

// Check reports whether key was recorded within the TTL, without recording it.
func (c *Cache) Check(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return ok && time.Since(e.at) < c.ttl
}

// Mark records key without checking. Use with Check when the record should
// only happen after the guarded work succeeds.
func (c *Cache) Mark(key string) {
	c.Seen(key)
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			c.order.Remove(e.elem)
			delete(c.entries, key)
		}
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}
