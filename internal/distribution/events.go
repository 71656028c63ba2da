package distribution

import (
	"sync"

	"distscan/internal/model"
)

// eventQueue is the FIFO hand-off between the add_event RPC handler
// (producer) and a strategy's dispatch loop (sole consumer). No other
// cross-goroutine mutable state is needed between them. The queue has
// no capacity limit: push always appends and never blocks or drops.
type eventQueue struct {
	mu    sync.Mutex
	items []model.Event
}

func newEventQueue() *eventQueue {
	return &eventQueue{}
}

func (q *eventQueue) push(e model.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, e)
}

// drain returns every currently queued event, in FIFO order, clearing
// the queue. Non-blocking: if empty, returns nil immediately.
func (q *eventQueue) drain() []model.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}
