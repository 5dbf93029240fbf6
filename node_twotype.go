package pipeline

import "context"

// TwoTypeNode dispatches by the input pad's index, not by the packet's
// runtime type: a packet delivered on pad index 0 is only ever attempted
// against T1, one delivered on index 1 only against T2. Pads beyond index
// 1 always fall through to false.
//
// This means a T1 packet pushed to the pad at index 1 is rejected even
// though a T1 handler exists on this node. That is surprising but
// intentional: it avoids the engine needing to try every registered type
// against every packet. Connect pads in the order matching the type
// order passed to NewTwoTypeNode.
type TwoTypeNode[T1, T2 any] struct {
	*BaseNode
	handler1 TypedHandler[T1]
	handler2 TypedHandler[T2]
}

// NewTwoTypeNode creates a node with input pad 0 dispatching to h1 as T1
// and input pad 1 dispatching to h2 as T2.
func NewTwoTypeNode[T1, T2 any](h1 TypedHandler[T1], h2 TypedHandler[T2]) *TwoTypeNode[T1, T2] {
	n := &TwoTypeNode[T1, T2]{BaseNode: NewBaseNode(), handler1: h1, handler2: h2}
	n.Init(n)
	return n
}

func (n *TwoTypeNode[T1, T2]) ProcessPacket(ctx context.Context, packet Packet, input Pad) bool {
	switch input.Index() {
	case 0:
		payload, ok := packet.(T1)
		if !ok || n.handler1 == nil {
			return false
		}
		return n.handler1(ctx, payload, input)
	case 1:
		payload, ok := packet.(T2)
		if !ok || n.handler2 == nil {
			return false
		}
		return n.handler2(ctx, payload, input)
	default:
		return false
	}
}
