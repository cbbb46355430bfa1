package sqladapter

import (
	"container/list"
	"database/sql"
	"sync"
)

// defaultStmtCapacity is the default maximum number of cached prepared statements.
const defaultStmtCapacity = 1000

// stmtCache stores prepared statements with LRU eviction. Evicted and
// replaced statements are closed best effort.
type stmtCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	lru      *list.List
}

type stmtEntry struct {
	key  string
	stmt *sql.Stmt
}

func newStmtCache(capacity int) *stmtCache {
	if capacity <= 0 {
		capacity = defaultStmtCapacity
	}
	return &stmtCache{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Get retrieves a cached statement and marks it most recently used.
func (c *stmtCache) Get(key string) (*sql.Stmt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*stmtEntry).stmt, true
}

// Set stores a prepared statement, evicting the least recently used one
// at capacity.
func (c *stmtCache) Set(key string, stmt *sql.Stmt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*stmtEntry)
		_ = entry.stmt.Close()
		entry.stmt = stmt
		c.lru.MoveToFront(elem)
		return
	}

	if c.lru.Len() >= c.capacity {
		if back := c.lru.Back(); back != nil {
			entry := back.Value.(*stmtEntry)
			c.lru.Remove(back)
			delete(c.items, entry.key)
			_ = entry.stmt.Close()
		}
	}

	c.items[key] = c.lru.PushFront(&stmtEntry{key: key, stmt: stmt})
}

// Clear closes and removes all cached statements.
func (c *stmtCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		_ = elem.Value.(*stmtEntry).stmt.Close()
	}
	c.items = make(map[string]*list.Element, c.capacity)
	c.lru.Init()
}
