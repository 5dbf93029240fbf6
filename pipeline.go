package pipeline

import (
	"context"
	"sync"

	"github.com/lexus2k/pipeline/errors"
	"github.com/lexus2k/pipeline/metric"
)

// Pipeline state values for the pipeline_runtime_state gauge.
const (
	stateStopped  = 0
	stateStarting = 1
	stateRunning  = 2
	stateStopping = 3
	stateFailed   = 4
)

// Pipeline owns an insertion-ordered list of nodes and drives their
// combined lifecycle. After a successful Start, every node and every pad
// has completed its start phase; after Stop, every node has run its stop
// phase exactly once.
type Pipeline struct {
	mu      sync.Mutex
	nodes   []Node
	started bool
	name    string
	metrics *metric.Metrics
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{name: "pipeline"}
}

// SetName labels this pipeline's state metric; defaults to "pipeline".
func (p *Pipeline) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// SetMetrics attaches the metrics this pipeline reports its lifecycle
// state transitions through.
func (p *Pipeline) SetMetrics(m *metric.Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics = m
}

func (p *Pipeline) recordState(state int) {
	if p.metrics != nil {
		p.metrics.RecordPipelineState(p.name, state)
	}
}

// AddNode appends a node to the pipeline. Ownership of its lifecycle
// transfers to the pipeline.
func (p *Pipeline) AddNode(n Node) Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes = append(p.nodes, n)
	return n
}

// Connect is a thin wrapper over output.Then(input).
func (p *Pipeline) Connect(output, input Pad) Node {
	return output.Then(input)
}

// Start runs in two phases: every node's pads are started in forward
// order, then every node's StartHook runs in forward order. A failure in
// either phase rolls back everything already started and returns the
// error; no node or pad is left in a started state.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Pipeline", "Start", "pipeline already started")
	}

	p.recordState(stateStarting)

	started := 0
	for _, n := range p.nodes {
		if err := n.start(); err != nil {
			for j := started - 1; j >= 0; j-- {
				p.nodes[j].StopHook(ctx)
				p.nodes[j].stop()
			}
			p.recordState(stateFailed)
			return errors.WrapFatal(err, "Pipeline", "Start", "node pad start failed")
		}
		started++
	}

	hooked := 0
	for _, n := range p.nodes {
		if err := n.StartHook(ctx); err != nil {
			for j := hooked - 1; j >= 0; j-- {
				p.nodes[j].StopHook(ctx)
			}
			for j := len(p.nodes) - 1; j >= 0; j-- {
				p.nodes[j].stop()
			}
			p.recordState(stateFailed)
			return errors.WrapFatal(err, "Pipeline", "Start", "node start hook failed")
		}
		hooked++
	}

	p.started = true
	p.recordState(stateRunning)
	return nil
}

// Stop runs every node's StopHook in reverse order, then every node's pad
// stop in reverse order. Idempotent: a second call is a no-op.
func (p *Pipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.recordState(stateStopping)
	for i := len(p.nodes) - 1; i >= 0; i-- {
		p.nodes[i].StopHook(ctx)
	}
	for i := len(p.nodes) - 1; i >= 0; i-- {
		p.nodes[i].stop()
	}
	p.started = false
	p.recordState(stateStopped)
}

// Started reports whether the pipeline has completed Start without a
// matching Stop.
func (p *Pipeline) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}
