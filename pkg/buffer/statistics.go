package buffer

import (
	"sync/atomic"
)

// Statistics tracks a pad queue's packet counters. Every BoundedQueuePad
// carries one regardless of whether Prometheus metrics are also wired in
// through WithMetrics, so a caller can always inspect queue behavior
// without a scrape in place.
type Statistics struct {
	writes    int64
	reads     int64
	peeks     int64
	overflows int64
	drops     int64

	currentSize int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

// Write records a packet enqueue.
func (s *Statistics) Write() {
	atomic.AddInt64(&s.writes, 1)
}

// Read records a packet dequeue.
func (s *Statistics) Read() {
	atomic.AddInt64(&s.reads, 1)
}

// Peek records an inspection of the head packet without removing it.
func (s *Statistics) Peek() {
	atomic.AddInt64(&s.peeks, 1)
}

// Overflow records a Write that found the queue full under the DropOldest
// or DropNewest policy.
func (s *Statistics) Overflow() {
	atomic.AddInt64(&s.overflows, 1)
}

// Drop records a packet discarded by the overflow policy.
func (s *Statistics) Drop() {
	atomic.AddInt64(&s.drops, 1)
}

// UpdateSize records the queue's occupancy after a write or read.
func (s *Statistics) UpdateSize(size int64) {
	atomic.StoreInt64(&s.currentSize, size)
}

// Writes returns the total number of packets enqueued.
func (s *Statistics) Writes() int64 {
	return atomic.LoadInt64(&s.writes)
}

// Reads returns the total number of packets dequeued.
func (s *Statistics) Reads() int64 {
	return atomic.LoadInt64(&s.reads)
}

// Peeks returns the total number of head inspections.
func (s *Statistics) Peeks() int64 {
	return atomic.LoadInt64(&s.peeks)
}

// Overflows returns the total number of Writes that found the queue full
// under a drop policy. Blocking, timed and non-blocking (TryWrite) writes
// that meet a full queue are not counted.
func (s *Statistics) Overflows() int64 {
	return atomic.LoadInt64(&s.overflows)
}

// Drops returns the total number of packets the overflow policy discarded.
func (s *Statistics) Drops() int64 {
	return atomic.LoadInt64(&s.drops)
}

// CurrentSize returns the queue's occupancy as of the last write or read.
func (s *Statistics) CurrentSize() int64 {
	return atomic.LoadInt64(&s.currentSize)
}
