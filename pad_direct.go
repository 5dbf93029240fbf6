package pipeline

import (
	"context"
	"time"
)

// DirectPad dispatches synchronously on the pusher's goroutine: enqueue is
// just an inline call into the owning node's ProcessPacket. No goroutine,
// no queue. Used for both Input pads that want zero-copy, inline delivery
// and for every Output pad, whose Push only ever forwards to a link.
type DirectPad struct {
	*basePad
}

func newDirectPad(node Node, name string, kind PadKind, index int) *DirectPad {
	p := &DirectPad{basePad: &basePad{name: name, node: node, kind: kind, index: index}}
	if kind == KindInput {
		p.enqueue = p.processInline
	}
	return p
}

func (p *DirectPad) processInline(ctx context.Context, packet Packet, _ time.Duration) bool {
	return p.node.ProcessPacket(ctx, packet, p)
}
