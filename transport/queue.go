package transport

import (
	"sync"
	"sync/atomic"

	"github.com/agentpulse/agentpulse/types"
)

// Queue is the bounded per-session event buffer. Enqueue never blocks: when
// the queue is full the oldest entry is evicted and counted, so a stalled
// collector costs bounded memory and observable loss, never host latency.
type Queue struct {
	mu     sync.Mutex
	events []types.Event // index 0 is the oldest

	capacity int
	evicted  atomic.Uint64
	notify   chan struct{}
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue appends an event, evicting the oldest entry when full. Reports
// whether an eviction happened.
func (q *Queue) Enqueue(ev types.Event) bool {
	q.mu.Lock()
	evicted := false
	if len(q.events) >= q.capacity {
		q.events = q.events[1:]
		q.evicted.Add(1)
		evicted = true
	}
	q.events = append(q.events, ev)
	q.mu.Unlock()

	q.wake()
	return evicted
}

// PushFront returns undelivered events to the head of the queue, preserving
// their order ahead of everything enqueued since. The capacity still holds:
// overflow evicts from the oldest end, which is the front of the returned
// batch itself. Reports how many events were evicted.
func (q *Queue) PushFront(events []types.Event) int {
	if len(events) == 0 {
		return 0
	}
	q.mu.Lock()
	combined := make([]types.Event, 0, len(events)+len(q.events))
	combined = append(combined, events...)
	combined = append(combined, q.events...)

	evicted := 0
	if len(combined) > q.capacity {
		evicted = len(combined) - q.capacity
		combined = combined[evicted:]
		q.evicted.Add(uint64(evicted))
	}
	q.events = combined
	q.mu.Unlock()

	q.wake()
	return evicted
}

// Drain removes and returns up to maxCount events from the front, stopping
// early once sizer reports the accumulated serialized size would exceed
// maxBytes. At least one event is returned when the queue is non-empty.
func (q *Queue) Drain(maxCount, maxBytes int, sizer func(types.Event) int) []types.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	n := 0
	bytes := 0
	for n < len(q.events) && n < maxCount {
		sz := 0
		if sizer != nil {
			sz = sizer(q.events[n])
		}
		if n > 0 && maxBytes > 0 && bytes+sz > maxBytes {
			break
		}
		bytes += sz
		n++
	}

	out := make([]types.Event, n)
	copy(out, q.events[:n])
	q.events = q.events[n:]
	return out
}

// DrainAll removes and returns everything. Used at shutdown to hand
// undelivered events to the spill store.
func (q *Queue) DrainAll() []types.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Evictions returns the running count of drop-oldest evictions.
func (q *Queue) Evictions() uint64 {
	return q.evicted.Load()
}

// Notify returns a channel that receives a signal after enqueues. Signals
// coalesce; a receiver must drain the queue, not count signals.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
