package pipeline

import "context"

// ProcessFunc is a user-supplied ProcessPacket body for a LambdaNode.
type ProcessFunc func(ctx context.Context, packet Packet, input Pad) bool

// LambdaNode executes a user closure as its ProcessPacket, for the
// common case where a full Node type isn't worth defining.
type LambdaNode struct {
	*BaseNode
	fn ProcessFunc
}

// NewLambdaNode creates a node whose ProcessPacket delegates to fn.
func NewLambdaNode(fn ProcessFunc) *LambdaNode {
	n := &LambdaNode{BaseNode: NewBaseNode(), fn: fn}
	n.Init(n)
	return n
}

func (n *LambdaNode) ProcessPacket(ctx context.Context, packet Packet, input Pad) bool {
	if n.fn == nil {
		return false
	}
	return n.fn(ctx, packet, input)
}
