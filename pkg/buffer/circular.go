package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/lexus2k/pipeline/errors"
)

// circularBuffer is the thread-safe ring a BoundedQueuePad uses to hold
// packets between the pad's Push and the node's worker goroutine draining
// it, with a configurable policy for what happens when the ring is full.
type circularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int            // Points to the next write position
	tail     int            // Points to the next read position
	stats    *Statistics    // ALWAYS initialized for observability
	metrics  *bufferMetrics // Optional Prometheus metrics
	opts     *bufferOptions[T]

	// For Block policy
	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool
}

// newCircularBuffer creates a new circular buffer instance.
// Returns an error if metrics registration fails when requested.
func newCircularBuffer[T any](capacity int, opts *bufferOptions[T]) (*circularBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1 // Minimum capacity
	}

	// Stats are ALWAYS initialized - observability is not optional
	stats := NewStatistics()

	var metrics *bufferMetrics
	// Optionally expose stats as Prometheus metrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			// Return classified error instead of silently ignoring
			return nil, errors.WrapTransient(err, "buffer", "newCircularBuffer", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    stats,   // ALWAYS present
		metrics:  metrics, // Optional
		opts:     opts,
	}

	// Set up condition variables for Block policy
	cb.notEmpty = sync.NewCond(&cb.mu)
	cb.notFull = sync.NewCond(&cb.mu)

	return cb, nil
}

// Write enqueues a packet according to the configured overflow policy.
func (cb *circularBuffer[T]) Write(item T) error {
	var dropped []T
	cb.mu.Lock()
	defer func() {
		cb.mu.Unlock()
		// Call dropCallback outside the lock to avoid deadlock
		for _, d := range dropped {
			cb.opts.dropCallback(d)
		}
	}()

	if cb.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write", "buffer closed")
	}

	// Handle different overflow policies when the ring is full
	if cb.size == cb.capacity {
		switch cb.opts.overflowPolicy {
		case DropOldest:
			// Evict the oldest queued packet to make room for this one
			droppedItem := cb.items[cb.tail]
			cb.tail = (cb.tail + 1) % cb.capacity
			cb.size--

			// ALWAYS track in stats
			cb.stats.Overflow()
			cb.stats.Drop()

			// ALSO track in metrics if enabled
			if cb.metrics != nil {
				cb.metrics.recordOverflow()
				cb.metrics.recordDrop()
			}

			if cb.opts.dropCallback != nil {
				dropped = append(dropped, droppedItem)
			}

		case DropNewest:
			// Drop the incoming packet rather than anything already queued
			// ALWAYS track in stats
			cb.stats.Overflow()
			cb.stats.Drop()

			// ALSO track in metrics if enabled
			if cb.metrics != nil {
				cb.metrics.recordOverflow()
				cb.metrics.recordDrop()
			}

			if cb.opts.dropCallback != nil {
				dropped = append(dropped, item)
			}
			return nil

		case Block:
			// Wait for the worker goroutine to drain a slot
			for cb.size == cb.capacity && !cb.closed {
				cb.notFull.Wait()
			}

			if cb.closed {
				return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "Write",
					"buffer closed during blocking wait")
			}
		}
	}

	// Enqueue the packet
	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	// ALWAYS track in stats
	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))

	// ALSO track in metrics if enabled
	if cb.metrics != nil {
		cb.metrics.recordWrite(cb.size, cb.capacity)
	}

	// Wake a worker goroutine blocked on an empty queue
	cb.notEmpty.Signal()

	return nil
}

// TryWrite makes one non-blocking attempt to enqueue a packet: it succeeds
// iff the ring has room right now, regardless of overflow policy. It never
// waits, drops, or evicts. BoundedQueuePad's zero-timeout Push uses this.
func (cb *circularBuffer[T]) TryWrite(item T) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed || cb.size == cb.capacity {
		return false
	}

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordWrite(cb.size, cb.capacity)
	}

	cb.notEmpty.Signal()
	return true
}

// Read dequeues the oldest queued packet, if any.
func (cb *circularBuffer[T]) Read() (T, bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T

	if cb.size == 0 {
		// Don't record a miss for empty reads, just return
		return zero, false
	}

	// Dequeue the packet
	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero // Clear for GC
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	// ALWAYS track in stats
	cb.stats.Read()
	cb.stats.UpdateSize(int64(cb.size))

	// ALSO track in metrics if enabled
	if cb.metrics != nil {
		cb.metrics.recordRead(cb.size, cb.capacity)
	}

	// Wake a writer blocked on a full queue
	cb.notFull.Signal()

	return item, true
}

// ReadBatch dequeues up to max queued packets in one call, for a worker
// that wants to drain several at once instead of one per wakeup.
func (cb *circularBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.size == 0 {
		return nil
	}

	// Determine how many packets to dequeue
	readCount := max
	if readCount > cb.size {
		readCount = cb.size
	}

	result := make([]T, readCount)
	var zero T

	for i := 0; i < readCount; i++ {
		result[i] = cb.items[cb.tail]
		cb.items[cb.tail] = zero // Clear for GC
		cb.tail = (cb.tail + 1) % cb.capacity
		cb.size--

		// ALWAYS track in stats
		cb.stats.Read()
	}

	// ALWAYS track in stats
	cb.stats.UpdateSize(int64(cb.size))

	// ALSO track in metrics if enabled - use final state after all reads
	if cb.metrics != nil {
		cb.metrics.updateSize(cb.size, cb.capacity)
	}

	// Wake waiting writers if we freed up space
	if readCount > 0 {
		for i := 0; i < readCount; i++ {
			cb.notFull.Signal()
		}
	}

	return result
}

// Peek inspects the oldest queued packet without dequeuing it.
func (cb *circularBuffer[T]) Peek() (T, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	var zero T

	if cb.size == 0 {
		return zero, false
	}

	item := cb.items[cb.tail]

	// ALWAYS track in stats
	cb.stats.Peek()

	// ALSO track in metrics if enabled
	if cb.metrics != nil {
		cb.metrics.recordPeek()
	}

	return item, true
}

// Size returns the number of packets currently queued.
func (cb *circularBuffer[T]) Size() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size
}

// Capacity returns the maximum number of packets the queue can hold.
func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity // This is immutable, so no lock needed
}

// IsFull returns true if the queue is at maximum capacity.
func (cb *circularBuffer[T]) IsFull() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size == cb.capacity
}

// IsEmpty returns true if the queue holds no packets.
func (cb *circularBuffer[T]) IsEmpty() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.size == 0
}

// Clear discards every queued packet, invoking the drop callback for each
// if one was configured.
func (cb *circularBuffer[T]) Clear() {
	var itemsToDrop []T
	cb.mu.Lock()
	// Call callbacks outside the lock to avoid deadlock
	defer func() {
		cb.mu.Unlock()
		for _, item := range itemsToDrop {
			cb.opts.dropCallback(item)
		}
	}()

	var zero T

	// Collect every queued packet for dropCallback if a callback is set
	if cb.opts.dropCallback != nil {
		itemsToDrop = make([]T, cb.size)
		for i := 0; i < cb.size; i++ {
			idx := (cb.tail + i) % cb.capacity
			itemsToDrop[i] = cb.items[idx]
		}
	}

	// Drop every queued packet
	for i := 0; i < cb.capacity; i++ {
		cb.items[i] = zero
	}

	cb.head = 0
	cb.tail = 0
	cb.size = 0

	// ALWAYS track in stats
	cb.stats.UpdateSize(0)

	// ALSO track in metrics if enabled
	if cb.metrics != nil {
		cb.metrics.updateSize(0, cb.capacity)
	}

	// Wake every writer blocked on a full queue
	cb.notFull.Broadcast()
}

// Stats returns the queue's packet counters (always available for
// observability, independent of whether Prometheus metrics are attached).
func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close shuts the queue down and wakes any goroutine blocked on it.
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}

	cb.closed = true

	// Wake up all waiting goroutines
	cb.notEmpty.Broadcast()
	cb.notFull.Broadcast()

	return nil
}

// WriteWithTimeout attempts to enqueue a packet, waiting up to timeout for
// room when the overflow policy is Block.
func (cb *circularBuffer[T]) WriteWithTimeout(item T, timeout time.Duration) error {
	if cb.opts.overflowPolicy != Block {
		return cb.Write(item)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return cb.WriteWithContext(ctx, item)
}

// WriteWithContext attempts to enqueue a packet, honoring ctx cancellation
// while waiting for room when the overflow policy is Block. This is what
// BoundedQueuePad's timed Push blocks on.
func (cb *circularBuffer[T]) WriteWithContext(ctx context.Context, item T) error {
	if cb.opts.overflowPolicy != Block {
		return cb.Write(item)
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "WriteWithContext", "buffer closed")
	}

	// Check if context is already cancelled
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Create a done channel to signal when we're done waiting
	done := make(chan struct{})
	defer close(done)

	// The watcher goroutine exits once done is closed or ctx ends; ctxWg
	// records it, but nothing here waits on it.
	var ctxWg sync.WaitGroup
	ctxWg.Add(1)

	// Set up context cancellation handler without holding the lock
	go func() {
		defer ctxWg.Done()
		select {
		case <-ctx.Done():
			// Wake up waiting goroutines when context is cancelled. Taking
			// the mutex orders the Broadcast after the waiter's context check,
			// so the wakeup cannot fall between that check and Wait.
			cb.mu.Lock()
			cb.notFull.Broadcast()
			cb.mu.Unlock()
		case <-done:
			// Function completed successfully, exit goroutine
		}
	}()

	// Wait for room or context cancellation
	for cb.size == cb.capacity && !cb.closed {
		// Check context before waiting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Wait for the worker goroutine to drain a slot
		cb.notFull.Wait()

		// Check context after being woken up
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	if cb.closed {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "WriteWithContext", "buffer closed during wait")
	}

	// Enqueue the packet
	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	// ALWAYS track in stats
	cb.stats.Write()
	cb.stats.UpdateSize(int64(cb.size))

	// ALSO track in metrics if enabled
	if cb.metrics != nil {
		cb.metrics.recordWrite(cb.size, cb.capacity)
	}

	// Wake a worker goroutine blocked on an empty queue
	cb.notEmpty.Signal()

	return nil
}

// ReadWithContext blocks until a packet is available, the queue is closed,
// or ctx is done. Mirrors WriteWithContext's cancellation handling; this is
// what BoundedQueuePad's worker goroutine blocks on between packets.
func (cb *circularBuffer[T]) ReadWithContext(ctx context.Context) (T, error) {
	var zero T

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	default:
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	done := make(chan struct{})
	defer close(done)

	var ctxWg sync.WaitGroup
	ctxWg.Add(1)
	go func() {
		defer ctxWg.Done()
		select {
		case <-ctx.Done():
			cb.notEmpty.Broadcast()
		case <-done:
		}
	}()

	for cb.size == 0 && !cb.closed {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}

		cb.notEmpty.Wait()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		default:
		}
	}

	if cb.size == 0 {
		return zero, errors.WrapInvalid(errors.ErrAlreadyStopped, "Buffer", "ReadWithContext", "buffer closed")
	}

	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	cb.stats.Read()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordRead(cb.size, cb.capacity)
	}

	cb.notFull.Signal()
	return item, nil
}
