package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/lexus2k/pipeline/errors"
)

// PadKind is the role of a Pad on its owning Node.
type PadKind int

const (
	// KindUndefined pads have not yet been used in a Then() call; the
	// first call promotes them to KindOutput (if self) or KindInput (if
	// the target of someone else's Then()).
	KindUndefined PadKind = iota
	KindInput
	KindOutput
)

func (k PadKind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	default:
		return "undefined"
	}
}

// Pad is a named, indexed endpoint on a Node. Index is assigned at
// creation in insertion order and never changes.
type Pad interface {
	Name() string
	Index() int
	Kind() PadKind
	Node() Node

	// Push delivers packet to the pad. An Output pad (or an Undefined
	// pad that has been linked) forwards to its linked pad; an Input pad
	// enqueues according to its variant. timeout bounds how long Push
	// may block waiting for room; zero means try once without waiting.
	// Returns false on missing link, full queue, timeout, or shutdown.
	Push(ctx context.Context, packet Packet, timeout time.Duration) bool

	// Then links self, promoting it to KindOutput if still Undefined, to
	// other, promoting other to KindInput if still Undefined. Replaces
	// any prior link on self. Returns other's owning node so calls chain:
	// a.Then(b).AddOutput("fanout").Then(c)
	Then(other Pad) Node

	// Unlink clears a previously set link.
	Unlink()

	start() error
	stop()
}

// basePad holds the state and behavior common to every Pad variant. The
// enqueue field supplies the variant-specific behavior for an Input pad;
// Output pads never call it.
type basePad struct {
	name    string
	index   int
	node    Node
	mu      sync.Mutex
	kind    PadKind
	linked  Pad
	enqueue func(ctx context.Context, packet Packet, timeout time.Duration) bool
}

func (p *basePad) Name() string { return p.name }
func (p *basePad) Index() int   { return p.index }
func (p *basePad) Node() Node   { return p.node }

func (p *basePad) Kind() PadKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kind
}

func (p *basePad) Push(ctx context.Context, packet Packet, timeout time.Duration) bool {
	p.mu.Lock()
	kind := p.kind
	linked := p.linked
	enqueue := p.enqueue
	p.mu.Unlock()

	if kind == KindInput {
		if enqueue == nil {
			return false
		}
		return enqueue(ctx, packet, timeout)
	}

	// Output, or Undefined-but-linked.
	if linked == nil {
		if p.node != nil {
			p.node.RecordError(errors.WrapInvalid(errors.ErrNotLinked, "Pad", p.name, "output pad has no linked pad"))
		}
		return false
	}
	return linked.Push(ctx, packet, timeout)
}

func (p *basePad) Then(other Pad) Node {
	p.mu.Lock()
	if p.kind == KindUndefined {
		p.kind = KindOutput
	}
	p.linked = other
	p.mu.Unlock()

	if target, ok := other.(interface{ promoteInput() }); ok {
		target.promoteInput()
	}
	return other.Node()
}

func (p *basePad) Unlink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.linked = nil
}

func (p *basePad) promoteInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.kind == KindUndefined {
		p.kind = KindInput
	}
}

// start and stop default to no-ops; BoundedQueuePad overrides both.
func (p *basePad) start() error { return nil }
func (p *basePad) stop()        {}
