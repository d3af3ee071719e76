package session

import "sync"

// lineQueues runs tasks for the same cart line one at a time, in the order
// they were enqueued. Tasks for different lines run concurrently.
type lineQueues struct {
	mu     sync.Mutex
	queues map[string][]func()
}

func newLineQueues() *lineQueues {
	return &lineQueues{queues: make(map[string][]func())}
}

// enqueue appends task to the queue for key and starts a worker when the
// queue was idle. It never blocks on task execution.
func (q *lineQueues) enqueue(key string, task func()) {
	q.mu.Lock()
	pending, running := q.queues[key]
	q.queues[key] = append(pending, task)
	q.mu.Unlock()

	if !running {
		go q.drain(key)
	}
}

// drain runs queued tasks for key until the queue is empty, then removes it.
func (q *lineQueues) drain(key string) {
	for {
		q.mu.Lock()
		pending := q.queues[key]
		if len(pending) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		task := pending[0]
		q.queues[key] = pending[1:]
		q.mu.Unlock()

		task()
	}
}

func lineKey(productID, size string) string {
	return productID + "\x00" + size
}
