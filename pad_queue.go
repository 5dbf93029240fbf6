package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/lexus2k/pipeline/errors"
	"github.com/lexus2k/pipeline/metric"
	"github.com/lexus2k/pipeline/pkg/buffer"
)

// DefaultQueueCapacity is the BoundedQueuePad capacity used when none is
// given via WithBoundedQueue.
const DefaultQueueCapacity = 4

// BoundedQueuePad is an Input pad backed by a capacity-C FIFO and one
// dedicated worker goroutine. Push blocks up to its timeout for room in
// the queue; the worker drains the queue and invokes the owning node's
// ProcessPacket outside any lock, one packet at a time, so ordering along
// this pad is FIFO.
type BoundedQueuePad struct {
	*basePad

	queue      buffer.Buffer[Packet]
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
	metricsReg *metric.MetricsRegistry
}

func newBoundedQueuePad(node Node, name string, index int, capacity int, registry *metric.MetricsRegistry) *BoundedQueuePad {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	opts := []buffer.Option[Packet]{buffer.WithOverflowPolicy[Packet](buffer.Block)}
	if registry != nil {
		opts = append(opts, buffer.WithMetrics[Packet](registry, name))
	}
	q, err := buffer.NewCircularBuffer[Packet](capacity, opts...)
	if err != nil {
		// capacity > 0, so only the metrics option can fail here: its
		// registration fails when the registry already holds collectors
		// for a pad of the same name.
		panic(err)
	}
	p := &BoundedQueuePad{
		basePad:    &basePad{name: name, node: node, kind: KindInput, index: index},
		queue:      q,
		metricsReg: registry,
	}
	p.enqueue = p.tryEnqueue
	return p
}

func (p *BoundedQueuePad) tryEnqueue(ctx context.Context, packet Packet, timeout time.Duration) bool {
	if timeout <= 0 {
		ok := p.queue.TryWrite(packet)
		if !ok {
			p.recordFailure(errors.WrapTransient(errors.ErrQueueFull, "BoundedQueuePad", p.name, "queue full on non-blocking push"))
		}
		p.recordDepth()
		return ok
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := p.queue.WriteWithContext(cctx, packet)
	if err != nil {
		var wrapped error
		if cctx.Err() != nil {
			wrapped = errors.WrapTransient(errors.ErrEnqueueTimeout, "BoundedQueuePad", p.name, "enqueue timed out waiting for room")
		} else {
			wrapped = errors.WrapTransient(errors.ErrQueueFull, "BoundedQueuePad", p.name, "queue closed or full")
		}
		p.recordFailure(wrapped)
		p.recordDepth()
		return false
	}
	p.recordDepth()
	return true
}

// recordFailure reports a classified enqueue failure to the owning node's
// error counter and this pad's drop counter, if a metrics registry is
// attached.
func (p *BoundedQueuePad) recordFailure(err error) {
	p.node.RecordError(err)
	if p.metricsReg != nil {
		p.metricsReg.CoreMetrics().RecordPadQueueDropped(p.node.ID(), p.name)
	}
}

// recordDepth exports the queue's current occupancy, if a metrics registry
// is attached.
func (p *BoundedQueuePad) recordDepth() {
	if p.metricsReg != nil {
		p.metricsReg.CoreMetrics().RecordPadQueueDepth(p.node.ID(), p.name, p.queue.Size())
	}
}

// start is idempotent: a second call while already running is a no-op.
func (p *BoundedQueuePad) start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.wg.Add(1)
	go p.runWorker()
	return nil
}

// stop closes the queue, which wakes the worker, lets it drain any
// remaining packets, and then returns. Idempotent.
func (p *BoundedQueuePad) stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	_ = p.queue.Close()
	p.wg.Wait()
}

func (p *BoundedQueuePad) runWorker() {
	defer p.wg.Done()
	for {
		packet, err := p.queue.ReadWithContext(context.Background())
		if err != nil {
			return
		}
		p.node.ProcessPacket(context.Background(), packet, p)
	}
}
