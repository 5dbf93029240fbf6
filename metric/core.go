package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics shared by every pipeline,
// independent of what any particular node does with its packets.
type Metrics struct {
	PipelineState     *prometheus.GaugeVec
	PacketsProcessed  *prometheus.CounterVec
	PacketsDropped    *prometheus.CounterVec
	ProcessingSeconds *prometheus.HistogramVec
	ErrorsTotal       *prometheus.CounterVec
	HealthStatus      *prometheus.GaugeVec

	PadQueueDepth   *prometheus.GaugeVec
	PadQueueDropped *prometheus.CounterVec

	ShmRingOccupancy  *prometheus.GaugeVec
	ShmBytesPublished *prometheus.CounterVec
	ShmReattachTotal  *prometheus.CounterVec
	ShmOwnerDeadTotal *prometheus.CounterVec
}

// NewMetrics builds a fresh, unregistered Metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{
		PipelineState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pipeline",
				Subsystem: "runtime",
				Name:      "state",
				Help:      "Pipeline state (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"pipeline"},
		),
		PacketsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeline",
				Subsystem: "node",
				Name:      "packets_processed_total",
				Help:      "Total number of packets processed by a node",
			},
			[]string{"node", "status"},
		),
		PacketsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeline",
				Subsystem: "node",
				Name:      "packets_dropped_total",
				Help:      "Total number of packets dropped (e.g. by a splitter branch or a full queue)",
			},
			[]string{"node", "reason"},
		),
		ProcessingSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pipeline",
				Subsystem: "node",
				Name:      "processing_seconds",
				Help:      "Packet processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"node"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeline",
				Subsystem: "runtime",
				Name:      "errors_total",
				Help:      "Total number of errors observed by component",
			},
			[]string{"component", "class"},
		),
		HealthStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pipeline",
				Subsystem: "health",
				Name:      "status",
				Help:      "Component health status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),
		PadQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pipeline",
				Subsystem: "pad",
				Name:      "queue_depth",
				Help:      "Current number of packets buffered in a bounded queue pad",
			},
			[]string{"node", "pad"},
		),
		PadQueueDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeline",
				Subsystem: "pad",
				Name:      "queue_dropped_total",
				Help:      "Total number of packets that failed to enqueue on a bounded queue pad",
			},
			[]string{"node", "pad"},
		),
		ShmRingOccupancy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "pipeline",
				Subsystem: "shmem",
				Name:      "ring_occupancy",
				Help:      "Number of slots currently occupied in a shared-memory ring",
			},
			[]string{"segment"},
		),
		ShmBytesPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeline",
				Subsystem: "shmem",
				Name:      "bytes_published_total",
				Help:      "Total number of payload bytes written into the shared-memory arena",
			},
			[]string{"segment"},
		),
		ShmReattachTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeline",
				Subsystem: "shmem",
				Name:      "reattach_total",
				Help:      "Total number of times a subscriber re-attached to its segment",
			},
			[]string{"segment"},
		),
		ShmOwnerDeadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pipeline",
				Subsystem: "shmem",
				Name:      "owner_dead_total",
				Help:      "Total number of times a subscriber observed EOWNERDEAD on the segment mutex",
			},
			[]string{"segment"},
		),
	}
}

// RecordPipelineState updates the pipeline state gauge.
func (m *Metrics) RecordPipelineState(pipeline string, state int) {
	m.PipelineState.WithLabelValues(pipeline).Set(float64(state))
}

// RecordPacketProcessed increments the processed-packets counter.
func (m *Metrics) RecordPacketProcessed(node, status string) {
	m.PacketsProcessed.WithLabelValues(node, status).Inc()
}

// RecordPacketDropped increments the dropped-packets counter.
func (m *Metrics) RecordPacketDropped(node, reason string) {
	m.PacketsDropped.WithLabelValues(node, reason).Inc()
}

// RecordProcessingDuration records how long a node took to process a packet.
func (m *Metrics) RecordProcessingDuration(node string, d time.Duration) {
	m.ProcessingSeconds.WithLabelValues(node).Observe(d.Seconds())
}

// RecordError increments the error counter for a component/class pair.
func (m *Metrics) RecordError(component, class string) {
	m.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordHealth updates the health gauge for a component.
func (m *Metrics) RecordHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.HealthStatus.WithLabelValues(component).Set(v)
}

// RecordPadQueueDepth updates the queue-depth gauge for a bounded queue pad.
func (m *Metrics) RecordPadQueueDepth(node, pad string, depth int) {
	m.PadQueueDepth.WithLabelValues(node, pad).Set(float64(depth))
}

// RecordPadQueueDropped increments the drop counter for a bounded queue pad.
func (m *Metrics) RecordPadQueueDropped(node, pad string) {
	m.PadQueueDropped.WithLabelValues(node, pad).Inc()
}

// RecordShmRingOccupancy updates the ring-occupancy gauge for a segment.
func (m *Metrics) RecordShmRingOccupancy(segment string, count int) {
	m.ShmRingOccupancy.WithLabelValues(segment).Set(float64(count))
}

// RecordShmBytesPublished adds n bytes to the published-bytes counter.
func (m *Metrics) RecordShmBytesPublished(segment string, n int) {
	m.ShmBytesPublished.WithLabelValues(segment).Add(float64(n))
}

// RecordShmReattach increments the reattach counter for a segment.
func (m *Metrics) RecordShmReattach(segment string) {
	m.ShmReattachTotal.WithLabelValues(segment).Inc()
}

// RecordShmOwnerDead increments the owner-dead counter for a segment.
func (m *Metrics) RecordShmOwnerDead(segment string) {
	m.ShmOwnerDeadTotal.WithLabelValues(segment).Inc()
}
