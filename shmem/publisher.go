package shmem

import (
	"context"
	"sync"
	"time"

	"github.com/lexus2k/pipeline"
	"github.com/lexus2k/pipeline/errors"
	"github.com/lexus2k/pipeline/metric"
)

// DefaultPublisherTimeout bounds how long ProcessPacket waits for a free
// ring slot when the caller's context carries no deadline.
const DefaultPublisherTimeout = 5 * time.Second

// SharedPublisherNode owns a shared-memory region and serializes packets
// pushed to its channels into the ring for a SharedSubscriberNodeT in
// another process to read. Each channel is an input pad; the pad's index
// is the wire channel field.
type SharedPublisherNode struct {
	*pipeline.BaseNode

	name         string
	size         int
	maxQueueSize uint32
	timeout      time.Duration
	metrics      *metric.Metrics

	mu  sync.Mutex
	seg *segment
}

// NewSharedPublisherNode creates a publisher for the named region. size is
// the total mapped region size in bytes; maxQueueSize is the ring
// capacity. Zero values fall back to DefaultRegionSize and
// DefaultMaxQueueSize.
func NewSharedPublisherNode(name string, size int, maxQueueSize uint32) *SharedPublisherNode {
	if size <= 0 {
		size = DefaultRegionSize
	}
	if maxQueueSize == 0 {
		maxQueueSize = DefaultMaxQueueSize
	}
	n := &SharedPublisherNode{
		BaseNode:     pipeline.NewBaseNode(),
		name:         name,
		size:         size,
		maxQueueSize: maxQueueSize,
		timeout:      DefaultPublisherTimeout,
	}
	n.Init(n)
	return n
}

// SetTimeout overrides the default wait for a free slot used when the
// caller's context has no deadline.
func (n *SharedPublisherNode) SetTimeout(d time.Duration) {
	n.timeout = d
}

// SetMetrics attaches the metrics this node reports ring occupancy, bytes
// published, and classified failures through.
func (n *SharedPublisherNode) SetMetrics(m *metric.Metrics) {
	n.metrics = m
}

func (n *SharedPublisherNode) recordFailure(err error) {
	if err == nil || n.metrics == nil {
		return
	}
	n.metrics.RecordError(n.name, metric.ClassLabel(err))
	n.metrics.RecordPacketDropped(n.ID(), "shmem_publish_failed")
}

// AddChannel adds an input pad whose index becomes the wire channel field
// for every packet pushed to it.
func (n *SharedPublisherNode) AddChannel(name string) pipeline.Pad {
	return n.AddInput(name)
}

// StartHook creates and publishes the shared-memory region. Equivalent to
// create-or-replace: any prior region of the same name is unlinked first.
func (n *SharedPublisherNode) StartHook(_ context.Context) error {
	seg, err := createSegment(n.name, n.size, n.maxQueueSize)
	if err != nil {
		return errors.WrapFatal(err, "SharedPublisherNode", "StartHook", "create shared memory segment")
	}
	n.mu.Lock()
	n.seg = seg
	n.mu.Unlock()
	return nil
}

// StopHook invalidates the region, wakes any blocked subscriber, and tears
// it down.
func (n *SharedPublisherNode) StopHook(_ context.Context) {
	n.mu.Lock()
	seg := n.seg
	n.seg = nil
	n.mu.Unlock()
	destroySegment(seg)
}

// ProcessPacket serializes packet into the ring under the region's robust
// mutex, recording input's pad index as the wire channel. Returns false on
// a non-serializable packet, an invalid region, a timed-out wait for a
// free slot, or a failed serialization.
func (n *SharedPublisherNode) ProcessPacket(ctx context.Context, packet pipeline.Packet, input pipeline.Pad) bool {
	ser, ok := packet.(pipeline.Serializer)
	if !ok {
		return false
	}

	n.mu.Lock()
	seg := n.seg
	n.mu.Unlock()
	if seg == nil {
		n.recordFailure(errors.WrapFatal(errors.ErrSegmentInvalid, "SharedPublisherNode", "ProcessPacket", "no segment attached"))
		return false
	}

	ownerDead, err := seg.lock()
	if err != nil {
		n.recordFailure(errors.WrapFatal(err, "SharedPublisherNode", "ProcessPacket", "lock segment mutex"))
		return false
	}
	if ownerDead {
		seg.makeConsistent()
	}
	defer seg.unlock()

	if !seg.isValid() {
		n.recordFailure(errors.WrapFatal(errors.ErrSegmentInvalid, "SharedPublisherNode", "ProcessPacket", "segment no longer valid"))
		return false
	}

	if !seg.waitForFreeSlot(deadlineTimeout(ctx, n.timeout)) {
		n.recordFailure(errors.WrapTransient(errors.ErrQueueFull, "SharedPublisherNode", "ProcessPacket", "ring has no free slot"))
		return false
	}
	if !seg.isValid() {
		n.recordFailure(errors.WrapFatal(errors.ErrSegmentInvalid, "SharedPublisherNode", "ProcessPacket", "segment invalidated while waiting"))
		return false
	}

	size, err := n.serializeToRing(seg, ser, uint32(input.Index()))
	if err != nil {
		n.recordFailure(err)
		return false
	}
	seg.signalPacketReady()

	if n.metrics != nil {
		n.metrics.RecordShmBytesPublished(n.name, size)
		n.metrics.RecordShmRingOccupancy(n.name, int(seg.count()))
	}
	return true
}

// serializeToRing writes packet's bytes at the arena's current write
// cursor. If there isn't enough room before the end of the mapped region,
// it wraps the cursor back to the start of the arena and retries once; if
// the packet doesn't fit even at the arena's start, the arena is too
// small for this payload and ErrArenaExhausted is returned. Must be
// called with the region's mutex held.
func (n *SharedPublisherNode) serializeToRing(seg *segment, ser pipeline.Serializer, channel uint32) (int, error) {
	mem := seg.data()
	off := seg.writeOffset()

	size, ok := ser.SerializeTo(mem[off:])
	if !ok {
		off = seg.arenaStart()
		size, ok = ser.SerializeTo(mem[off:])
		if !ok {
			return 0, errors.WrapFatal(errors.ErrArenaExhausted, "SharedPublisherNode", "serializeToRing", "packet does not fit in the arena")
		}
	}

	seg.writeSlot(uint32(size), channel, off)

	next := off + uint64(size)
	if next >= uint64(len(mem)) {
		next = seg.arenaStart()
	}
	seg.setWriteOffset(next)
	return size, nil
}

// deadlineTimeout returns the time remaining until ctx's deadline, or
// fallback if ctx carries none.
func deadlineTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}
