package inbox

import (
	"sync"

	"github.com/hexabus/gwbus/message"
)

// Memory is the in-memory inbox: an ordered slice guarded by a mutex
// and condition variable. Stop is signaled by an explicit stopped bool
// plus a Broadcast rather than a sentinel value in the queue, so a
// blocked Next wakes without consuming anything.
type Memory struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*message.Message
	stopped bool
}

// NewMemory returns an empty, running Memory inbox.
func NewMemory() *Memory {
	m := &Memory{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (q *Memory) Enqueue(m *message.Message) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	q.queue = append(q.queue, m)
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

func (q *Memory) Next() (*message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		// stopped is checked before the queue: once Stop has been
		// observed, queued-but-undelivered messages are never handed
		// out again, only drained and released by Close.
		if q.stopped {
			return nil, false
		}
		if len(q.queue) > 0 {
			m := q.queue[0]
			q.queue[0] = nil
			q.queue = q.queue[1:]
			return m, true
		}
		q.cond.Wait()
	}
}

func (q *Memory) Stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *Memory) Close() error {
	q.mu.Lock()
	residual := q.queue
	q.queue = nil
	q.mu.Unlock()

	for _, m := range residual {
		m.Release()
	}
	return nil
}
