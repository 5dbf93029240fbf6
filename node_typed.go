package pipeline

import "context"

// TypedHandler is a strongly-typed packet handler bound to a TypedNode or
// TwoTypeNode input.
type TypedHandler[T any] func(ctx context.Context, payload T, input Pad) bool

// TypedNode gives user code a strongly-typed ProcessPacket entry point
// without requiring the engine to parameterize pads themselves: any
// packet whose runtime type doesn't assert to T is rejected.
type TypedNode[T any] struct {
	*BaseNode
	handler TypedHandler[T]
}

// NewTypedNode creates a node whose ProcessPacket attempts a type
// assertion to T and, on success, calls handler.
func NewTypedNode[T any](handler TypedHandler[T]) *TypedNode[T] {
	n := &TypedNode[T]{BaseNode: NewBaseNode(), handler: handler}
	n.Init(n)
	return n
}

func (n *TypedNode[T]) ProcessPacket(ctx context.Context, packet Packet, input Pad) bool {
	payload, ok := packet.(T)
	if !ok || n.handler == nil {
		return false
	}
	return n.handler(ctx, payload, input)
}
