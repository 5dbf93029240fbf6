// Package metric wires pipeline, node, pad, and shared-memory observability
// into Prometheus.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/lexus2k/pipeline/errors"
)

// Registrar is the subset of MetricsRegistry used by components that only
// need to register their own collectors, without depending on the rest of
// the registry's surface.
type Registrar interface {
	RegisterCounter(component, name string, counter prometheus.Counter) error
	RegisterGauge(component, name string, gauge prometheus.Gauge) error
	RegisterHistogram(component, name string, histogram prometheus.Histogram) error
	RegisterCounterVec(component, name string, counterVec *prometheus.CounterVec) error
	RegisterGaugeVec(component, name string, gaugeVec *prometheus.GaugeVec) error
	RegisterHistogramVec(component, name string, histogramVec *prometheus.HistogramVec) error
	Unregister(component, name string) bool
}

// MetricsRegistry owns a Prometheus registry, the core Metrics set, and the
// collectors registered on top of it by individual components.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registered         map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a registry with the core Metrics already
// registered, plus the standard Go runtime and process collectors.
func NewMetricsRegistry() *MetricsRegistry {
	promReg := prometheus.NewRegistry()
	r := &MetricsRegistry{
		prometheusRegistry: promReg,
		registered:         make(map[string]prometheus.Collector),
	}
	r.Metrics = NewMetrics()
	r.registerCoreMetrics()
	r.prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// PrometheusRegistry returns the underlying Prometheus registry, for
// exposition via promhttp.
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core pipeline metrics.
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

func (r *MetricsRegistry) registerCoreMetrics() {
	r.prometheusRegistry.MustRegister(
		r.Metrics.PipelineState,
		r.Metrics.PacketsProcessed,
		r.Metrics.PacketsDropped,
		r.Metrics.ProcessingSeconds,
		r.Metrics.ErrorsTotal,
		r.Metrics.HealthStatus,
		r.Metrics.PadQueueDepth,
		r.Metrics.PadQueueDropped,
		r.Metrics.ShmRingOccupancy,
		r.Metrics.ShmBytesPublished,
		r.Metrics.ShmReattachTotal,
		r.Metrics.ShmOwnerDeadTotal,
	)
}

func (r *MetricsRegistry) register(component, name string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	if _, exists := r.registered[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for component %s", name, component),
			"MetricsRegistry", "register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegistered) {
			return errors.WrapInvalid(err, "MetricsRegistry", "register",
				fmt.Sprintf("prometheus conflict for metric %s", name))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "register", "failed to register with prometheus")
	}

	r.registered[key] = collector
	return nil
}

// RegisterCounter registers a counter metric for a component.
func (r *MetricsRegistry) RegisterCounter(component, name string, counter prometheus.Counter) error {
	return r.register(component, name, counter)
}

// RegisterGauge registers a gauge metric for a component.
func (r *MetricsRegistry) RegisterGauge(component, name string, gauge prometheus.Gauge) error {
	return r.register(component, name, gauge)
}

// RegisterHistogram registers a histogram metric for a component.
func (r *MetricsRegistry) RegisterHistogram(component, name string, histogram prometheus.Histogram) error {
	return r.register(component, name, histogram)
}

// RegisterCounterVec registers a counter vector metric for a component.
func (r *MetricsRegistry) RegisterCounterVec(component, name string, counterVec *prometheus.CounterVec) error {
	return r.register(component, name, counterVec)
}

// RegisterGaugeVec registers a gauge vector metric for a component.
func (r *MetricsRegistry) RegisterGaugeVec(component, name string, gaugeVec *prometheus.GaugeVec) error {
	return r.register(component, name, gaugeVec)
}

// RegisterHistogramVec registers a histogram vector metric for a component.
func (r *MetricsRegistry) RegisterHistogramVec(
	component, name string, histogramVec *prometheus.HistogramVec) error {
	return r.register(component, name, histogramVec)
}

// Unregister removes a previously registered metric.
func (r *MetricsRegistry) Unregister(component, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", component, name)
	collector, exists := r.registered[key]
	if !exists {
		return false
	}

	if r.prometheusRegistry.Unregister(collector) {
		delete(r.registered, key)
		return true
	}
	return false
}
