package shmem

import (
	"context"
	"sync"
	"time"

	"github.com/lexus2k/pipeline"
	"github.com/lexus2k/pipeline/errors"
	"github.com/lexus2k/pipeline/metric"
	"github.com/lexus2k/pipeline/pkg/retry"
)

// DefaultDeliverTimeout bounds how long the subscriber's worker waits for
// a downstream pad to accept a reconstructed packet.
const DefaultDeliverTimeout = time.Second

// SharedSubscriberNodeT reads a shared-memory ring written by a
// SharedPublisherNode in another process, reconstructs packets of type T,
// and pushes them to its output pads by channel index. factory builds a
// fresh, zero-valued T for every packet; T must implement
// pipeline.Deserializer.
type SharedSubscriberNodeT[T pipeline.Deserializer] struct {
	*pipeline.BaseNode

	name           string
	factory        func() T
	deliverTimeout time.Duration
	metrics        *metric.Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSharedSubscriberNodeT creates a subscriber for the named region.
func NewSharedSubscriberNodeT[T pipeline.Deserializer](name string, factory func() T) *SharedSubscriberNodeT[T] {
	n := &SharedSubscriberNodeT[T]{
		BaseNode:       pipeline.NewBaseNode(),
		name:           name,
		factory:        factory,
		deliverTimeout: DefaultDeliverTimeout,
	}
	n.Init(n)
	return n
}

// SetDeliverTimeout overrides how long a reconstructed packet's push to its
// output pad may block.
func (n *SharedSubscriberNodeT[T]) SetDeliverTimeout(d time.Duration) {
	n.deliverTimeout = d
}

// SetMetrics attaches the metrics this node reports reattach/owner-dead
// counts and classified failures through.
func (n *SharedSubscriberNodeT[T]) SetMetrics(m *metric.Metrics) {
	n.metrics = m
}

func (n *SharedSubscriberNodeT[T]) recordFailure(err error) {
	if err == nil || n.metrics == nil {
		return
	}
	n.metrics.RecordError(n.name, metric.ClassLabel(err))
}

// AddChannel adds an output pad whose index must match the publisher
// channel it mirrors.
func (n *SharedSubscriberNodeT[T]) AddChannel(name string) pipeline.Pad {
	return n.AddOutput(name)
}

// StartHook launches the worker. It does not require the publisher's
// region to exist yet; the worker retries attach until it does.
func (n *SharedSubscriberNodeT[T]) StartHook(_ context.Context) error {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = true
	stop := make(chan struct{})
	n.stopCh = stop
	n.mu.Unlock()

	n.wg.Add(1)
	go n.run(stop)
	return nil
}

// StopHook signals the worker to exit and waits for it.
func (n *SharedSubscriberNodeT[T]) StopHook(_ context.Context) {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	close(n.stopCh)
	n.mu.Unlock()

	n.wg.Wait()
}

// run implements the reattach-tolerant read loop: attach, lock, detect a
// dead owner, wait for a packet, read it, deliver it, release.
func (n *SharedSubscriberNodeT[T]) run(stop <-chan struct{}) {
	defer n.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var seg *segment
	everAttached := false
	defer func() {
		if seg != nil {
			detachSegment(seg)
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if seg == nil {
			var s *segment
			attachErr := retry.Do(ctx, retry.Quick(), func() error {
				var err error
				s, err = attachSegment(n.name)
				return err
			})
			if attachErr != nil {
				n.recordFailure(errors.WrapTransient(errors.ErrSegmentNotFound, "SharedSubscriberNodeT", "run", "attach retries exhausted"))
				if sleepOrStop(stop, 100*time.Millisecond) {
					return
				}
				continue
			}
			seg = s
			if everAttached && n.metrics != nil {
				n.metrics.RecordShmReattach(n.name)
			}
			everAttached = true
		}

		ownerDead, err := seg.lock()
		if err != nil {
			n.recordFailure(errors.WrapFatal(errors.ErrSegmentInvalid, "SharedSubscriberNodeT", "run", "lock segment mutex"))
			detachSegment(seg)
			seg = nil
			if sleepOrStop(stop, 100*time.Millisecond) {
				return
			}
			continue
		}
		if ownerDead {
			// The publisher died while holding the mutex. The region is
			// poisoned; unlock, detach, and reattach rather than call
			// pthread_mutex_consistent and trust its contents.
			n.recordFailure(errors.WrapFatal(errors.ErrOwnerDead, "SharedSubscriberNodeT", "run", "publisher died holding the segment mutex"))
			if n.metrics != nil {
				n.metrics.RecordShmOwnerDead(n.name)
			}
			seg.unlock()
			detachSegment(seg)
			seg = nil
			if sleepOrStop(stop, 100*time.Millisecond) {
				return
			}
			continue
		}
		if !seg.isValid() {
			n.recordFailure(errors.WrapFatal(errors.ErrSegmentInvalid, "SharedSubscriberNodeT", "run", "segment no longer valid"))
			seg.unlock()
			detachSegment(seg)
			seg = nil
			if sleepOrStop(stop, 100*time.Millisecond) {
				return
			}
			continue
		}

		switch seg.waitForPacket(100 * time.Millisecond) {
		case waitTimedOut:
			seg.unlock()
			continue
		case waitInvalid:
			n.recordFailure(errors.WrapFatal(errors.ErrSegmentInvalid, "SharedSubscriberNodeT", "run", "wait for packet failed"))
			seg.unlock()
			detachSegment(seg)
			seg = nil
			continue
		}

		slot := seg.readSlot()
		// Copy out before unlocking: the arena has no live-range check, so
		// the publisher may overwrite this span as soon as the slot is
		// freed below.
		payload := append([]byte(nil), seg.payloadAt(slot)...)
		seg.signalSlotAvailable()
		seg.unlock()

		n.deliver(slot.Channel, payload)
	}
}

func (n *SharedSubscriberNodeT[T]) deliver(channel uint32, payload []byte) {
	pad, ok := n.PadByIndex(int(channel))
	if !ok || pad.Kind() != pipeline.KindOutput {
		return
	}
	packet := n.factory()
	if !packet.DeserializeFrom(payload) {
		return
	}
	pad.Push(context.Background(), packet, n.deliverTimeout)
}

// sleepOrStop waits for d or until stop closes, whichever comes first. It
// reports whether stop fired.
func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return true
	case <-time.After(d):
		return false
	}
}
