package pipeline

import (
	"context"
	"fmt"
)

// SplitterNode fans one input out to N outputs, named output_1..output_N.
// ProcessPacket pushes to every output with a zero timeout — a full
// downstream queue drops that branch's delivery for this packet rather
// than blocking the splitter's caller. The return value is the logical
// AND of every branch's push result.
type SplitterNode struct {
	*BaseNode
}

// NewSplitterNode creates a splitter with one input pad and n output
// pads.
func NewSplitterNode(n int) *SplitterNode {
	s := &SplitterNode{BaseNode: NewBaseNode()}
	s.Init(s)
	s.AddInput("input")
	for i := 1; i <= n; i++ {
		s.AddOutput(fmt.Sprintf("output_%d", i))
	}
	return s
}

func (s *SplitterNode) ProcessPacket(ctx context.Context, packet Packet, _ Pad) bool {
	ok := true
	for i := 0; ; i++ {
		pad, found := s.PadByIndex(i)
		if !found {
			break
		}
		if pad.Kind() != KindOutput {
			continue
		}
		if !pad.Push(ctx, packet, 0) {
			ok = false
		}
	}
	return ok
}
