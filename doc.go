// Package pipeline is an embeddable dataflow runtime: a directed graph of
// nodes connected by typed pads through which packets flow.
//
// A Pipeline owns a list of Nodes, started and stopped together. A Node
// owns a list of Pads; packets pushed into an input pad are delivered to
// the node's ProcessPacket. Two Pad variants control delivery: DirectPad
// runs ProcessPacket synchronously on the pusher's goroutine, BoundedQueuePad
// hands the packet to a dedicated worker goroutine through a bounded,
// blocking queue.
//
// The shmem subpackage bridges two pipelines running in separate processes
// over a shared-memory ring.
package pipeline
