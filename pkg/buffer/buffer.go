// Package buffer implements the fixed-capacity ring a BoundedQueuePad uses
// to decouple a fast producer from a node's worker goroutine: packets land
// in the ring via Write/TryWrite and the configured overflow policy decides
// what happens once it fills (drop the oldest queued packet, drop the new
// one, or make the caller block). Packet counters are always collected;
// Prometheus metrics are an optional layer on top via WithMetrics.
package buffer

import (
	"context"
)

// Buffer is the packet queue a BoundedQueuePad holds, parameterized by the
// queued type T (in practice always Packet).
type Buffer[T any] interface {
	// Write enqueues a packet. Returns an error if the operation fails.
	// Behavior depends on the overflow policy when the queue is full.
	Write(item T) error

	// TryWrite makes one non-blocking attempt to enqueue a packet,
	// regardless of overflow policy: it succeeds immediately if there is
	// room, and reports false immediately if the queue is full or closed.
	// Unlike WriteWithContext(ctx, item) with an already-expired ctx,
	// TryWrite never rejects a write the queue had room for.
	TryWrite(item T) bool

	// WriteWithContext attempts to enqueue a packet, honoring ctx
	// cancellation while waiting for room when the overflow policy is
	// Block. Returns an error if the queue is closed, full under a
	// non-blocking policy, or ctx is done before room becomes available.
	WriteWithContext(ctx context.Context, item T) error

	// Read dequeues the oldest queued packet.
	// Returns the packet and true if successful, zero value and false if the queue is empty.
	Read() (T, bool)

	// ReadWithContext blocks until a packet is available, the queue is
	// closed, or ctx is done, whichever happens first.
	ReadWithContext(ctx context.Context) (T, error)

	// ReadBatch dequeues up to max queued packets.
	// Returns a slice containing the dequeued packets (may be shorter than max).
	ReadBatch(max int) []T

	// Peek inspects the oldest queued packet without dequeuing it.
	// Returns the packet and true if successful, zero value and false if the queue is empty.
	Peek() (T, bool)

	// Size returns the number of packets currently queued.
	Size() int

	// Capacity returns the maximum number of packets the queue can hold.
	Capacity() int

	// IsFull returns true if the queue is at maximum capacity.
	IsFull() bool

	// IsEmpty returns true if the queue holds no packets.
	IsEmpty() bool

	// Clear discards every queued packet.
	Clear()

	// Stats returns the queue's packet counters (always available for observability).
	Stats() *Statistics

	// Close shuts the queue down and releases any resources.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest

	// Block causes Write operations to block until space is available.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// DropCallback is called when a packet is dropped due to the overflow
// policy. It receives the packet that was dropped.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates the ring backing a BoundedQueuePad with the
// given capacity and options. Stats are ALWAYS collected for observability.
// Metrics are optional via WithMetrics(). Returns an error if metrics
// registration fails when metrics are requested. Capacity is required -
// all other configuration is via functional options.
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
