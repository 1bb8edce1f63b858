// ==================================
// File: internal/tracker/caches.go
// ==================================
package tracker

// orderedMap is a capacity-bounded map that remembers insertion order
// so overflow can evict the oldest entries. It is not goroutine-safe;
// callers hold the tracker mutex.
type orderedMap[K comparable, V any] struct {
	items map[K]V
	order []K
	cap   int
	// evictBatch entries are removed per overflow; 0 means half the
	// capacity.
	evictBatch int
}

func newOrderedMap[K comparable, V any](capacity, evictBatch int) *orderedMap[K, V] {
	return &orderedMap[K, V]{
		items:      make(map[K]V, capacity),
		cap:        capacity,
		evictBatch: evictBatch,
	}
}

func (m *orderedMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

func (m *orderedMap[K, V]) Len() int { return len(m.items) }

// Put inserts or overwrites. Inserting at capacity evicts the oldest
// batch first, so the map never exceeds its bound.
func (m *orderedMap[K, V]) Put(key K, value V) {
	if _, exists := m.items[key]; !exists {
		if len(m.items) >= m.cap {
			m.evictOldest()
		}
		m.order = append(m.order, key)
	}
	m.items[key] = value
}

func (m *orderedMap[K, V]) Delete(key K) {
	if _, exists := m.items[key]; !exists {
		return
	}
	delete(m.items, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *orderedMap[K, V]) evictOldest() {
	batch := m.evictBatch
	if batch <= 0 {
		batch = m.cap / 2
	}
	if batch > len(m.order) {
		batch = len(m.order)
	}
	for _, k := range m.order[:batch] {
		delete(m.items, k)
	}
	m.order = append(m.order[:0], m.order[batch:]...)
}

// Range visits entries in insertion order; returning false stops.
func (m *orderedMap[K, V]) Range(fn func(key K, value V) bool) {
	for _, k := range m.order {
		if v, ok := m.items[k]; ok {
			if !fn(k, v) {
				return
			}
		}
	}
}

// DeleteWhere removes every entry the predicate selects.
func (m *orderedMap[K, V]) DeleteWhere(fn func(key K, value V) bool) int {
	var keep []K
	removed := 0
	for _, k := range m.order {
		v, ok := m.items[k]
		if !ok {
			continue
		}
		if fn(k, v) {
			delete(m.items, k)
			removed++
			continue
		}
		keep = append(keep, k)
	}
	m.order = keep
	return removed
}

// boundedSet is an insertion-ordered membership set; overflow drops
// the oldest half.
type boundedSet struct {
	inner *orderedMap[string, struct{}]
}

func newBoundedSet(capacity int) *boundedSet {
	return &boundedSet{inner: newOrderedMap[string, struct{}](capacity, capacity/2)}
}

func (s *boundedSet) Contains(key string) bool {
	_, ok := s.inner.Get(key)
	return ok
}

func (s *boundedSet) Add(key string) {
	s.inner.Put(key, struct{}{})
}

func (s *boundedSet) Len() int { return s.inner.Len() }
