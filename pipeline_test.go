package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexus2k/pipeline/metric"
)

func TestBasicFanThrough(t *testing.T) {
	var received Packet
	var calls int32

	consumer := NewLambdaNode(func(_ context.Context, packet Packet, _ Pad) bool {
		atomic.AddInt32(&calls, 1)
		received = packet
		return true
	})
	consumerIn := consumer.AddInput("in")

	producer := NewLambdaNode(func(_ context.Context, packet Packet, _ Pad) bool { return true })
	producerOut := producer.AddOutput("out")
	producerOut.Then(consumerIn)

	p := NewPipeline()
	p.AddNode(producer)
	p.AddNode(consumer)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	ok := producerOut.Push(context.Background(), "hello", 0)
	assert.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "hello", received)
}

func TestThenChainingWithIntermediateQueue(t *testing.T) {
	var calls int32
	consumer := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool {
		atomic.AddInt32(&calls, 1)
		return true
	})
	consumerIn := consumer.AddInput("in")

	transformer := NewLambdaNode(func(ctx context.Context, packet Packet, _ Pad) bool {
		return consumerIn.Push(ctx, packet, time.Second)
	})
	transformerIn := transformer.AddInput("in", WithBoundedQueue(4))

	producer := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool { return true })
	producerOut := producer.AddOutput("out")
	producerOut.Then(transformerIn)

	p := NewPipeline()
	p.AddNode(producer)
	p.AddNode(transformer)
	p.AddNode(consumer)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	ok := producerOut.Push(context.Background(), "hi", time.Second)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFanOut(t *testing.T) {
	var calls1, calls2 int32
	consumer1 := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool {
		atomic.AddInt32(&calls1, 1)
		return true
	})
	consumer2 := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool {
		atomic.AddInt32(&calls2, 1)
		return true
	})
	c1in := consumer1.AddInput("in")
	c2in := consumer2.AddInput("in")

	splitter := NewSplitterNode(2)
	out1, _ := splitter.PadByName("output_1", KindOutput)
	out2, _ := splitter.PadByName("output_2", KindOutput)
	out1.Then(c1in)
	out2.Then(c2in)

	splitterIn, _ := splitter.PadByName("input", KindInput)

	p := NewPipeline()
	p.AddNode(splitter)
	p.AddNode(consumer1)
	p.AddNode(consumer2)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	ok := splitterIn.Push(context.Background(), 42, 0)
	assert.True(t, ok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls1))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls2))
}

type typeA struct{ v int }
type typeB struct{ v string }

func TestTypeDispatchingNode(t *testing.T) {
	var aCalls, bCalls int32
	node := NewTypedNode[typeA](func(_ context.Context, payload typeA, _ Pad) bool {
		atomic.AddInt32(&aCalls, 1)
		_ = payload
		return true
	})
	in := node.AddInput("in")

	assert.True(t, in.Push(context.Background(), typeA{v: 1}, 0))
	assert.False(t, in.Push(context.Background(), typeB{v: "x"}, 0))
	assert.Equal(t, int32(1), atomic.LoadInt32(&aCalls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&bCalls))
}

func TestTwoTypeNode(t *testing.T) {
	var aCalls, bCalls int32
	node := NewTwoTypeNode[typeA, typeB](
		func(_ context.Context, _ typeA, _ Pad) bool { atomic.AddInt32(&aCalls, 1); return true },
		func(_ context.Context, _ typeB, _ Pad) bool { atomic.AddInt32(&bCalls, 1); return true },
	)
	in0 := node.AddInput("input_0")
	in1 := node.AddInput("input_1")

	assert.True(t, in0.Push(context.Background(), typeA{v: 1}, 0))
	assert.True(t, in1.Push(context.Background(), typeB{v: "y"}, 0))
	// An A pushed to input_1 is rejected: dispatch is by pad index, not
	// packet type.
	assert.False(t, in1.Push(context.Background(), typeA{v: 2}, 0))

	assert.Equal(t, int32(1), atomic.LoadInt32(&aCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&bCalls))
}

func TestBoundedQueuePadCapacity(t *testing.T) {
	block := make(chan struct{})
	var processed int32
	consumer := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool {
		<-block
		atomic.AddInt32(&processed, 1)
		return true
	})
	in := consumer.AddInput("in", WithBoundedQueue(2))
	require.NoError(t, consumer.start())
	defer consumer.stop()

	// First push occupies the worker; the next two fill the queue.
	require.True(t, in.Push(context.Background(), 1, time.Second))
	require.True(t, in.Push(context.Background(), 2, time.Second))
	require.True(t, in.Push(context.Background(), 3, time.Second))

	// The queue is now full (capacity 2, one item already handed to the
	// blocked worker): a zero-timeout push must fail.
	assert.False(t, in.Push(context.Background(), 4, 0))

	close(block)
}

func TestBoundedQueuePadZeroTimeoutSucceedsWithRoom(t *testing.T) {
	consumer := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool { return true })
	in := consumer.AddInput("in", WithBoundedQueue(4))
	require.NoError(t, consumer.start())
	defer consumer.stop()

	// A zero timeout means "try once without waiting", not "always fail":
	// with room in the queue, the push must succeed immediately.
	assert.True(t, in.Push(context.Background(), 1, 0))
}

func TestBoundedQueuePadExportsMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	consumer := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool { return true })
	in := consumer.AddInput("in", WithBoundedQueue(4), WithQueueMetrics(registry))
	require.NoError(t, consumer.start())
	defer consumer.stop()

	assert.True(t, in.Push(context.Background(), 1, time.Second))

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["pipeline_pad_queue_depth"])
	assert.True(t, names["pipeline_buffer_writes_total"])
}

func TestPipelineStartRollsBackOnPadFailure(t *testing.T) {
	good := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool { return true })
	good.AddInput("in")

	failing := &failingStartNode{BaseNode: NewBaseNode()}
	failing.Init(failing)
	failing.AddInput("in")

	p := NewPipeline()
	p.AddNode(good)
	p.AddNode(failing)

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.False(t, p.Started())

	// Stop after a failed start must be a no-op, not a panic.
	p.Stop(context.Background())
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	node := NewLambdaNode(func(_ context.Context, _ Packet, _ Pad) bool { return true })
	node.AddInput("in", WithBoundedQueue(2))

	p := NewPipeline()
	p.AddNode(node)
	require.NoError(t, p.Start(context.Background()))

	p.Stop(context.Background())
	p.Stop(context.Background())
}

type failingStartPad struct {
	*basePad
}

func (p *failingStartPad) start() error { return assert.AnError }

type failingStartNode struct {
	*BaseNode
}

func (n *failingStartNode) AddInput(name string, _ ...PadOption) Pad {
	n.mu.Lock()
	defer n.mu.Unlock()
	pad := &failingStartPad{basePad: &basePad{name: name, node: n, kind: KindInput, index: len(n.pads)}}
	n.pads = append(n.pads, pad)
	return pad
}

func TestDirectPadConcurrentPush(t *testing.T) {
	var mu sync.Mutex
	var sum int
	node := NewLambdaNode(func(_ context.Context, packet Packet, _ Pad) bool {
		mu.Lock()
		sum += packet.(int)
		mu.Unlock()
		return true
	})
	in := node.AddInput("in")

	var wg sync.WaitGroup
	for i := 1; i <= 999; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			in.Push(context.Background(), v, 0)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 499500, sum)
}
