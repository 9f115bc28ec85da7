package reactor

import "sync"

// typeEntry is the per-type-key bookkeeping the bus maintains: the ordered
// subscriber list and the last-value cache cell.
type typeEntry struct {
	mu          sync.RWMutex
	subscribers []*Reaction
	cached      any
	hasCached   bool
	transient   bool
	cacheable   bool
}

// bus is the type registry and last-value cache described in the
// component design: publish-by-type with cached "last value" semantics,
// and the bookkeeping that lets arbitrarily many reactions subscribe to
// the same type.
type bus struct {
	mu      sync.RWMutex
	entries map[TypeKey]*typeEntry
}

func newBus() *bus {
	return &bus{entries: make(map[TypeKey]*typeEntry)}
}

// entry returns the typeEntry for key, creating it (cacheable by default,
// not transient) if this is the first reference.
func (b *bus) entry(key TypeKey) *typeEntry {
	b.mu.RLock()
	e, ok := b.entries[key]
	b.mu.RUnlock()
	if ok {
		return e
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok = b.entries[key]; ok {
		return e
	}
	e = &typeEntry{cacheable: true}
	b.entries[key] = e
	return e
}

// setTransient flags key as transient: a With(T) whose cache is empty is
// passed through as nil instead of rejecting the task. Independent of
// cacheability, so declaring one doesn't reset the other.
func (b *bus) setTransient(key TypeKey, transient bool) {
	e := b.entry(key)
	e.mu.Lock()
	e.transient = transient
	e.mu.Unlock()
}

// setCacheable flags whether publish should populate key's last-value
// cache cell at all.
func (b *bus) setCacheable(key TypeKey, cacheable bool) {
	e := b.entry(key)
	e.mu.Lock()
	e.cacheable = cacheable
	e.mu.Unlock()
}

// isTransient reports whether key was declared transient: a With(T) whose
// cache is empty is passed through as nil instead of rejecting the task.
func (b *bus) isTransient(key TypeKey) bool {
	e := b.entry(key)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.transient
}

// subscribe appends r to key's subscriber list, preserving insertion
// order so same-priority ties break deterministically, and returns an
// unsubscribe function.
func (b *bus) subscribe(key TypeKey, r *Reaction) func() {
	e := b.entry(key)
	e.mu.Lock()
	e.subscribers = append(e.subscribers, r)
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, sub := range e.subscribers {
			if sub == r {
				e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
				break
			}
		}
	}
}

// snapshot reads key's cache cell under the entry's read lock; it is not
// lock-free.
func (b *bus) snapshot(key TypeKey) (any, bool) {
	e := b.entry(key)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cached, e.hasCached
}

// publish atomically replaces the cache cell (if the type is cacheable and
// the caller asked for caching) and returns a snapshot of the current
// subscriber list, taken under the same write lock as the cache write so
// it reflects a consistent point in time relative to it.
func (b *bus) publish(key TypeKey, payload any, cache bool) []*Reaction {
	e := b.entry(key)
	e.mu.Lock()
	if cache && e.cacheable {
		e.cached = payload
		e.hasCached = true
	}
	subs := make([]*Reaction, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()
	return subs
}

// BusStats is a diagnostic snapshot of one type key's bookkeeping.
type BusStats struct {
	Subscribers int
	Cached      bool
	Transient   bool
}

// Stats returns a diagnostic snapshot for key, for logging purposes only.
func (b *bus) Stats(key TypeKey) BusStats {
	e := b.entry(key)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return BusStats{Subscribers: len(e.subscribers), Cached: e.hasCached, Transient: e.transient}
}
