// Package testutil provides small test doubles shared across the pipeline
// packages: a hook-counting Node and a minimal serializable packet type
// (IntPacket) for exercising the shared-memory transport.
package testutil

import (
	"context"
	"sync"

	"github.com/lexus2k/pipeline"
)

// MockNode is a pipeline.Node whose lifecycle hooks and ProcessPacket are
// overridable closures, with call counts for test assertions. The
// zero-value closures are no-ops that succeed.
type MockNode struct {
	*pipeline.BaseNode

	mu sync.Mutex

	StartHookFunc    func(ctx context.Context) error
	StopHookFunc     func(ctx context.Context)
	ProcessPacketFunc func(ctx context.Context, packet pipeline.Packet, input pipeline.Pad) bool

	StartHookCalls    int
	StopHookCalls     int
	ProcessPacketCalls int
}

// NewMockNode creates a MockNode with default no-op, success-returning hooks.
func NewMockNode() *MockNode {
	n := &MockNode{BaseNode: pipeline.NewBaseNode()}
	n.Init(n)
	return n
}

func (n *MockNode) StartHook(ctx context.Context) error {
	n.mu.Lock()
	n.StartHookCalls++
	fn := n.StartHookFunc
	n.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return nil
}

func (n *MockNode) StopHook(ctx context.Context) {
	n.mu.Lock()
	n.StopHookCalls++
	fn := n.StopHookFunc
	n.mu.Unlock()

	if fn != nil {
		fn(ctx)
	}
}

func (n *MockNode) ProcessPacket(ctx context.Context, packet pipeline.Packet, input pipeline.Pad) bool {
	n.mu.Lock()
	n.ProcessPacketCalls++
	fn := n.ProcessPacketFunc
	n.mu.Unlock()

	if fn != nil {
		return fn(ctx, packet, input)
	}
	return true
}
