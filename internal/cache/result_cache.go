// Package cache provides the hybrid result cache: whole result sets keyed
// by compiled statement (tagged by table for bulk invalidation) plus
// single hydrated rows keyed by table and primary-key value. Both sides
// are bounded with LRU eviction and support optional TTL expiry.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultCapacity is the default maximum number of query-level entries.
	DefaultCapacity = 1000
	// DefaultRowCapacity is the default maximum number of row entries per table.
	DefaultRowCapacity = 10000
)

// Row is a single raw result row.
type Row = map[string]interface{}

// Store is the query-level cache contract.
type Store interface {
	// Get retrieves a cached result set. Expired entries are treated as a
	// miss and evicted.
	Get(key string) ([]Row, bool)
	// Set stores a result set under the key, tagged with the given table
	// names. A zero ttl means no expiry.
	Set(key string, rows []Row, tags []string, ttl time.Duration)
	// Invalidate removes every entry tagged with any of the tables and
	// clears those tables' row caches.
	Invalidate(tables ...string)
	// Clear removes all entries.
	Clear()
	// Size returns the current number of query-level entries.
	Size() int
}

// RowStore is the optional row-level extension of Store. Engines fall
// back to query-level-only caching when the configured store does not
// implement it.
type RowStore interface {
	// GetRow retrieves a cached row by table and primary-key value.
	GetRow(table string, id interface{}) (Row, bool)
	// SetRow stores a single hydrated row. A zero ttl means no expiry.
	SetRow(table string, id interface{}, row Row, ttl time.Duration)
}

// entry is a query-level cache entry.
type entry struct {
	key       string
	rows      []Row
	tags      []string
	expiresAt time.Time // zero means no expiry
}

// rowEntry is a row-level cache entry.
type rowEntry struct {
	key       string
	row       Row
	expiresAt time.Time
}

// rowTable is the bounded row cache for a single table.
type rowTable struct {
	capacity int
	items    map[string]*list.Element
	lru      *list.List
}

// Memory is an in-memory Store and RowStore with LRU eviction.
// Recency is tracked by last access, not insertion.
type Memory struct {
	mu          sync.Mutex
	capacity    int
	rowCapacity int
	items       map[string]*list.Element
	lru         *list.List
	tagged      map[string]map[string]struct{} // tag -> set of entry keys
	rows        map[string]*rowTable           // table -> row cache

	now func() time.Time // stubbed in tests

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewMemory creates an in-memory cache with default capacities.
func NewMemory() *Memory {
	return NewMemoryWithCapacity(DefaultCapacity, DefaultRowCapacity)
}

// NewMemoryWithCapacity creates an in-memory cache with the given
// query-entry and per-table row-entry capacities.
func NewMemoryWithCapacity(capacity, rowCapacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if rowCapacity <= 0 {
		rowCapacity = DefaultRowCapacity
	}
	return &Memory{
		capacity:    capacity,
		rowCapacity: rowCapacity,
		items:       make(map[string]*list.Element, capacity),
		lru:         list.New(),
		tagged:      make(map[string]map[string]struct{}),
		rows:        make(map[string]*rowTable),
		now:         time.Now,
	}
}

// Get retrieves a cached result set. Accessing an entry moves it to the
// front of the LRU list; an expired entry is evicted and reported as a miss.
func (m *Memory) Get(key string) ([]Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses.Add(1)
		return nil, false
	}

	e := elem.Value.(*entry)
	if e.expired(m.now()) {
		m.removeEntry(elem)
		m.misses.Add(1)
		return nil, false
	}

	m.lru.MoveToFront(elem)
	m.hits.Add(1)
	return e.rows, true
}

// Set stores a result set under the key. Every tag indexes the entry so
// Invalidate can reach it; at capacity the least-recently-used entry is
// evicted first.
func (m *Memory) Set(key string, rows []Row, tags []string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if elem, ok := m.items[key]; ok {
		m.untag(elem.Value.(*entry))
		e := elem.Value.(*entry)
		e.rows = rows
		e.tags = tags
		e.expiresAt = expiresAt
		m.lru.MoveToFront(elem)
		m.tag(e)
		return
	}

	if m.lru.Len() >= m.capacity {
		m.evictOldest()
	}

	e := &entry{key: key, rows: rows, tags: tags, expiresAt: expiresAt}
	m.items[key] = m.lru.PushFront(e)
	m.tag(e)
}

// GetRow retrieves a cached row by table and primary-key value.
func (m *Memory) GetRow(table string, id interface{}) (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.rows[table]
	if !ok {
		m.misses.Add(1)
		return nil, false
	}

	elem, ok := rt.items[RowKey(id)]
	if !ok {
		m.misses.Add(1)
		return nil, false
	}

	e := elem.Value.(*rowEntry)
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		rt.lru.Remove(elem)
		delete(rt.items, e.key)
		m.misses.Add(1)
		return nil, false
	}

	rt.lru.MoveToFront(elem)
	m.hits.Add(1)
	return e.row, true
}

// SetRow stores a single hydrated row under (table, id).
func (m *Memory) SetRow(table string, id interface{}, row Row, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.rows[table]
	if !ok {
		rt = &rowTable{
			capacity: m.rowCapacity,
			items:    make(map[string]*list.Element),
			lru:      list.New(),
		}
		m.rows[table] = rt
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	key := RowKey(id)
	if elem, ok := rt.items[key]; ok {
		e := elem.Value.(*rowEntry)
		e.row = row
		e.expiresAt = expiresAt
		rt.lru.MoveToFront(elem)
		return
	}

	if rt.lru.Len() >= rt.capacity {
		if back := rt.lru.Back(); back != nil {
			rt.lru.Remove(back)
			delete(rt.items, back.Value.(*rowEntry).key)
			m.evictions.Add(1)
		}
	}

	rt.items[key] = rt.lru.PushFront(&rowEntry{key: key, row: row, expiresAt: expiresAt})
}

// Invalidate removes every query entry tagged with any of the given
// tables and drops those tables' entire row caches. Coarse, no per-row
// diffing on write.
func (m *Memory) Invalidate(tables ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, table := range tables {
		for key := range m.tagged[table] {
			if elem, ok := m.items[key]; ok {
				m.removeEntry(elem)
			}
		}
		delete(m.tagged, table)
		delete(m.rows, table)
	}
}

// Clear removes all query-level and row-level entries.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element, m.capacity)
	m.lru.Init()
	m.tagged = make(map[string]map[string]struct{})
	m.rows = make(map[string]*rowTable)
}

// Size returns the current number of query-level entries.
func (m *Memory) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Stats holds cache performance metrics.
type Stats struct {
	Size      int     // Current number of query-level entries.
	Capacity  int     // Maximum query-level capacity.
	Hits      uint64  // Number of successful lookups (query and row).
	Misses    uint64  // Number of misses (query and row).
	Evictions uint64  // Number of evicted entries.
	HitRate   float64 // Hits / total lookups.
}

// Stats returns cache statistics.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	size := m.lru.Len()
	m.mu.Unlock()

	hits := m.hits.Load()
	misses := m.misses.Load()
	s := Stats{
		Size:      size,
		Capacity:  m.capacity,
		Hits:      hits,
		Misses:    misses,
		Evictions: m.evictions.Load(),
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// tag indexes the entry under each of its tags. Must be called with lock held.
func (m *Memory) tag(e *entry) {
	for _, t := range e.tags {
		set, ok := m.tagged[t]
		if !ok {
			set = make(map[string]struct{})
			m.tagged[t] = set
		}
		set[e.key] = struct{}{}
	}
}

// untag removes the entry from the tag index. Must be called with lock held.
func (m *Memory) untag(e *entry) {
	for _, t := range e.tags {
		if set, ok := m.tagged[t]; ok {
			delete(set, e.key)
			if len(set) == 0 {
				delete(m.tagged, t)
			}
		}
	}
}

// removeEntry drops an entry from the LRU list, key map and tag index.
// Must be called with lock held.
func (m *Memory) removeEntry(elem *list.Element) {
	e := elem.Value.(*entry)
	m.lru.Remove(elem)
	delete(m.items, e.key)
	m.untag(e)
}

// evictOldest removes the least recently used entry. Must be called with
// lock held.
func (m *Memory) evictOldest() {
	if back := m.lru.Back(); back != nil {
		m.removeEntry(back)
		m.evictions.Add(1)
	}
}
