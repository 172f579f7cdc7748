package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// MinPriority and MaxPriority bound the eviction weight of an entry.
	MinPriority = 1
	MaxPriority = 10

	// DefaultMaxSize is the capacity used when none is configured.
	DefaultMaxSize = 10_000
)

type entry[V any] struct {
	key        string
	value      V
	priority   int
	lastAccess time.Time
	elem       *list.Element
}

// Recall is a bounded key/value store with priority-weighted eviction
// and reinforcement on read: a hit bumps the entry's priority by one
// (capped) and refreshes its recency, treating the read as a relevance
// signal. Orchestrating callers use it to skip redundant recomputation;
// the tunnel engine consults it when resolving peer endpoints.
//
// Eviction always removes the entry with the lowest priority; recency
// only breaks ties between equal priorities (oldest loses). A
// higher-priority entry is never evicted while a lower-priority one
// exists.
//
// Structural mutation is serialized by a single lock, so at most one
// eviction is in flight per instance.
type Recall[V any] struct {
	mu      sync.RWMutex
	maxSize int
	entries map[string]*entry[V]

	// One recency list per priority level; list order is access order
	// (oldest at the front), which makes both eviction and the
	// recency tie-break O(1).
	buckets [MaxPriority + 1]*list.List
}

// New creates a Recall cache holding at most maxSize entries.
func New[V any](maxSize int) *Recall[V] {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	r := &Recall[V]{
		maxSize: maxSize,
		entries: make(map[string]*entry[V], maxSize),
	}
	for i := MinPriority; i <= MaxPriority; i++ {
		r.buckets[i] = list.New()
	}
	return r
}

func clampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Store inserts or overwrites the value for key. At capacity the
// lowest-(priority, recency) entry is evicted first. Store never fails.
func (r *Recall[V]) Store(key string, value V, priority int) {
	priority = clampPriority(priority)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		r.buckets[e.priority].Remove(e.elem)
		e.value = value
		e.priority = priority
		e.lastAccess = time.Now()
		e.elem = r.buckets[priority].PushBack(e)
		return
	}

	if len(r.entries) >= r.maxSize {
		r.evictLocked()
	}

	e := &entry[V]{
		key:        key,
		value:      value,
		priority:   priority,
		lastAccess: time.Now(),
	}
	e.elem = r.buckets[priority].PushBack(e)
	r.entries[key] = e
}

// Recall returns the value for key if present. A hit refreshes the
// entry's timestamp and raises its priority by one, capped at
// MaxPriority.
func (r *Recall[V]) Recall(key string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	r.buckets[e.priority].Remove(e.elem)
	if e.priority < MaxPriority {
		e.priority++
	}
	e.lastAccess = time.Now()
	e.elem = r.buckets[e.priority].PushBack(e)
	return e.value, true
}

// Peek returns the value for key without the reinforcement side
// effect. Concurrent Peeks do not contend with each other.
func (r *Recall[V]) Peek(key string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Delete removes key if present and reports whether it was.
func (r *Recall[V]) Delete(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return false
	}
	r.buckets[e.priority].Remove(e.elem)
	delete(r.entries, key)
	return true
}

// Len returns the number of stored entries.
func (r *Recall[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Cap returns the configured capacity.
func (r *Recall[V]) Cap() int { return r.maxSize }

// evictLocked removes the entry with the lowest priority, oldest
// first within that priority. Caller holds the write lock.
func (r *Recall[V]) evictLocked() {
	for p := MinPriority; p <= MaxPriority; p++ {
		if front := r.buckets[p].Front(); front != nil {
			e := front.Value.(*entry[V])
			r.buckets[p].Remove(front)
			delete(r.entries, e.key)
			return
		}
	}
}
