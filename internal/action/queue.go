package action

import "sync"

// Queue is an ordered, thread-safe collection of pending actions. It is FIFO
// unless an action is enqueued at the front.
type Queue struct {
	mu      sync.Mutex
	pending []*Action
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends the action, or prepends it when front is true.
func (q *Queue) Enqueue(a *Action, front bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if front {
		q.pending = append([]*Action{a}, q.pending...)
		return
	}

	q.pending = append(q.pending, a)
}

// Dequeue removes and returns the head of the queue, or nil when empty.
func (q *Queue) Dequeue() *Action {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	head := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]

	return head
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// Names returns the verbs of the pending actions in order.
func (q *Queue) Names() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	names := make([]string, 0, len(q.pending))
	for _, a := range q.pending {
		names = append(names, a.Name())
	}

	return names
}
