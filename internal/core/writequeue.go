package core

import "sync"

// WriteQueue serializes write operations on one connection. Each
// enqueued op waits for the previous op to finish before running, so
// writes execute strictly in enqueue order. A failed op does not block
// the ops behind it.
type WriteQueue struct {
	mu   sync.Mutex
	tail chan struct{}
}

// NewWriteQueue returns an empty queue ready for use.
func NewWriteQueue() *WriteQueue {
	return &WriteQueue{}
}

// Enqueue runs op after every previously enqueued op has completed and
// returns op's error to the caller.
func (q *WriteQueue) Enqueue(op func() error) error {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	defer close(done)
	if prev != nil {
		<-prev
	}
	return op()
}
