package mux

import "sync"

// writeQueueSoftCap is the maximum number of un-sent frames a tunnel will
// buffer before Enqueue starts failing (an explicit back-pressure signal;
// the caller is expected to drop the frame rather than block).
const writeQueueSoftCap = 100

// compactThreshold is how far the head index must advance past zero before
// WriteQueue bothers compacting the underlying slice.
const compactThreshold = 64

// WriteQueue is the single per-tunnel FIFO of outbound frames awaiting a
// WebSocket send. It tracks a head index instead of removing from the front
// of the slice on every Dequeue, to avoid an O(n) shift per frame; the slice
// is only compacted once the head has advanced far enough to be worth it.
type WriteQueue struct {
	mu      sync.Mutex
	buf     [][]byte
	head    int
	primed  bool
	prefix  []byte
	Signal  chan struct{} // buffered(1); Enqueue pings it so a consumer can wait on it
}

// NewWriteQueue creates a queue whose first dequeued frame is prefixed with
// prefix (the VLESS response prefix, sent exactly once per tunnel).
func NewWriteQueue(prefix []byte) *WriteQueue {
	return &WriteQueue{
		prefix: prefix,
		Signal: make(chan struct{}, 1),
	}
}

// Enqueue appends frame to the queue. It returns false without enqueuing if
// the soft cap is exceeded — the caller must treat this as a dropped frame,
// never block waiting for room.
func (q *WriteQueue) Enqueue(frame []byte) bool {
	q.mu.Lock()
	if len(q.buf)-q.head >= writeQueueSoftCap {
		q.mu.Unlock()
		return false
	}
	q.buf = append(q.buf, frame)
	q.mu.Unlock()

	select {
	case q.Signal <- struct{}{}:
	default:
	}
	return true
}

// Dequeue removes and returns the oldest frame, prepending the response
// prefix if this is the very first frame ever dequeued from this queue.
func (q *WriteQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.buf) {
		return nil, false
	}
	frame := q.buf[q.head]
	q.head++

	if !q.primed {
		q.primed = true
		primed := make([]byte, 0, len(q.prefix)+len(frame))
		primed = append(primed, q.prefix...)
		primed = append(primed, frame...)
		frame = primed
	}

	if q.head >= compactThreshold && q.head*2 >= len(q.buf) {
		remaining := copy(q.buf, q.buf[q.head:])
		q.buf = q.buf[:remaining]
		q.head = 0
	}

	return frame, true
}

// Len returns the number of frames currently queued (not yet dequeued).
func (q *WriteQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}
