package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lexus2k/pipeline/errors"
	"github.com/lexus2k/pipeline/metric"
)

// Node owns an insertion-ordered collection of named, indexed Pads and is
// the delivery point for packets arriving on any of them.
type Node interface {
	// AddInput appends a new Input pad, Direct by default; pass
	// WithBoundedQueue to get a BoundedQueuePad instead.
	AddInput(name string, opts ...PadOption) Pad
	// AddOutput appends a new Output pad.
	AddOutput(name string) Pad

	// PadByName returns the first pad named name whose kind matches
	// (KindUndefined matches any kind).
	PadByName(name string, kind PadKind) (Pad, bool)
	PadByIndex(index int) (Pad, bool)

	// ID is a per-instance identifier, stable for the node's lifetime, used
	// as a log and metric label.
	ID() string

	// RecordError classifies err and reports it against this node's error
	// counter, if a metrics registry is attached. A nil err is a no-op.
	RecordError(err error)

	// PushTo looks up an input pad by name and pushes to it.
	PushTo(ctx context.Context, name string, packet Packet, timeout time.Duration) bool

	// ProcessPacket is the delivery point, called by a Direct pad inline
	// or a BoundedQueuePad worker. The default implementation returns
	// false; specializations override it.
	ProcessPacket(ctx context.Context, packet Packet, input Pad) bool

	// StartHook and StopHook are user-overridable lifecycle callbacks.
	// StartHook failing aborts Pipeline.Start and rolls back.
	StartHook(ctx context.Context) error
	StopHook(ctx context.Context)

	start() error
	stop()
}

// padVariant selects a Pad implementation for AddInput.
type padVariant int

const (
	variantDirect padVariant = iota
	variantBoundedQueue
)

type padOptions struct {
	variant  padVariant
	capacity int
	metrics  *metric.MetricsRegistry
}

// PadOption configures an AddInput call.
type PadOption func(*padOptions)

// WithBoundedQueue makes the new input pad a BoundedQueuePad with the
// given capacity. A non-positive capacity falls back to
// DefaultQueueCapacity.
func WithBoundedQueue(capacity int) PadOption {
	return func(o *padOptions) {
		o.variant = variantBoundedQueue
		o.capacity = capacity
	}
}

// WithQueueMetrics exports the bounded queue's depth, writes, and drops as
// Prometheus metrics under the given registry, labeled by the pad's name.
// Ignored on a Direct pad.
func WithQueueMetrics(registry *metric.MetricsRegistry) PadOption {
	return func(o *padOptions) {
		o.metrics = registry
	}
}

// BaseNode implements the pad bookkeeping shared by every Node
// specialization. Embedders must call Init with themselves immediately
// after construction, so that pads dispatch to the embedder's overridden
// ProcessPacket rather than BaseNode's default.
type BaseNode struct {
	id   string
	self Node

	mu      sync.RWMutex
	pads    []Pad
	metrics *metric.MetricsRegistry
}

// NewBaseNode creates an unattached BaseNode. Call Init before adding pads.
func NewBaseNode() *BaseNode {
	return &BaseNode{id: uuid.NewString()}
}

// Init binds the node to the concrete type embedding it, so pads created
// afterward hold the right owner for dispatch.
func (n *BaseNode) Init(self Node) {
	n.self = self
}

// ID is a per-instance identifier, stable for the node's lifetime, used as
// a log and metric label.
func (n *BaseNode) ID() string { return n.id }

// SetMetrics attaches a metrics registry so the node's wiring failures
// (e.g. PushTo against a missing pad) are exported as error counters.
func (n *BaseNode) SetMetrics(registry *metric.MetricsRegistry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.metrics = registry
}

// RecordError classifies err and, if a metrics registry is attached,
// increments the per-component error counter.
func (n *BaseNode) RecordError(err error) {
	if err == nil {
		return
	}
	n.mu.RLock()
	reg := n.metrics
	n.mu.RUnlock()
	if reg == nil {
		return
	}
	reg.CoreMetrics().RecordError(n.id, metric.ClassLabel(err))
}

func (n *BaseNode) AddInput(name string, opts ...PadOption) Pad {
	cfg := padOptions{variant: variantDirect, capacity: DefaultQueueCapacity}
	for _, opt := range opts {
		opt(&cfg)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	index := len(n.pads)
	var pad Pad
	if cfg.variant == variantBoundedQueue {
		pad = newBoundedQueuePad(n.self, name, index, cfg.capacity, cfg.metrics)
	} else {
		pad = newDirectPad(n.self, name, KindInput, index)
	}
	n.pads = append(n.pads, pad)
	return pad
}

func (n *BaseNode) AddOutput(name string) Pad {
	n.mu.Lock()
	defer n.mu.Unlock()
	index := len(n.pads)
	pad := newDirectPad(n.self, name, KindOutput, index)
	n.pads = append(n.pads, pad)
	return pad
}

func (n *BaseNode) PadByName(name string, kind PadKind) (Pad, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, p := range n.pads {
		if p.Name() == name && (kind == KindUndefined || p.Kind() == kind) {
			return p, true
		}
	}
	return nil, false
}

func (n *BaseNode) PadByIndex(index int) (Pad, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if index < 0 || index >= len(n.pads) {
		return nil, false
	}
	return n.pads[index], true
}

func (n *BaseNode) PushTo(ctx context.Context, name string, packet Packet, timeout time.Duration) bool {
	pad, ok := n.PadByName(name, KindInput)
	if !ok {
		n.RecordError(errors.WrapInvalid(errors.ErrPadNotFound, "BaseNode", "PushTo", "no input pad named "+name))
		return false
	}
	return pad.Push(ctx, packet, timeout)
}

// ProcessPacket is the default no-op; specializations override it.
func (n *BaseNode) ProcessPacket(_ context.Context, _ Packet, _ Pad) bool { return false }

func (n *BaseNode) StartHook(_ context.Context) error { return nil }
func (n *BaseNode) StopHook(_ context.Context)        {}

func (n *BaseNode) snapshotPads() []Pad {
	n.mu.RLock()
	defer n.mu.RUnlock()
	pads := make([]Pad, len(n.pads))
	copy(pads, n.pads)
	return pads
}

// start starts every pad in insertion order. On failure it stops the pads
// that were already started, in reverse, and returns the error.
func (n *BaseNode) start() error {
	pads := n.snapshotPads()
	for i, p := range pads {
		if err := p.start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				pads[j].stop()
			}
			return err
		}
	}
	return nil
}

// stop stops every pad in reverse insertion order. Idempotent because
// each pad's own stop is idempotent.
func (n *BaseNode) stop() {
	pads := n.snapshotPads()
	for i := len(pads) - 1; i >= 0; i-- {
		pads[i].stop()
	}
}
