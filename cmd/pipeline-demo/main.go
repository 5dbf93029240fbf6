// Package main wires a small demonstration pipeline: a producer ticks out
// integers, a splitter fans them to a logging consumer and a
// shared-memory publisher, and a second pipeline's shared-memory
// subscriber re-injects them into a summing consumer. It runs until
// interrupted.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lexus2k/pipeline"
	"github.com/lexus2k/pipeline/health"
	"github.com/lexus2k/pipeline/metric"
	"github.com/lexus2k/pipeline/pkg/timestamp"
	"github.com/lexus2k/pipeline/shmem"
)

const (
	Version = "0.1.0"
	appName = "pipeline-demo"
)

type demoPacket struct {
	n int
}

func (p *demoPacket) SerializeTo(buf []byte) (int, bool) {
	if len(buf) < 8 {
		return 0, false
	}
	binary.LittleEndian.PutUint64(buf, uint64(p.n))
	return 8, true
}

func (p *demoPacket) DeserializeFrom(buf []byte) bool {
	if len(buf) < 8 {
		return false
	}
	p.n = int(binary.LittleEndian.Uint64(buf))
	return true
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("pipeline-demo failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "log format: json, text")
	metricsPort := flag.Int("metrics-port", 9090, "metrics HTTP port, 0 to disable")
	region := flag.String("region", "/pipeline-demo", "shared memory region name")
	regionSize := flag.Int("region-size", shmem.DefaultRegionSize, "shared memory region size in bytes")
	tickInterval := flag.Duration("interval", 200*time.Millisecond, "producer tick interval")
	flag.Parse()

	logger := setupLogger(*logLevel, *logFormat)
	slog.SetDefault(logger)
	slog.Info("starting pipeline-demo", "version", Version, "started_at", timestamp.Format(timestamp.Now()))

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()
	monitor := health.NewMonitor()

	var metricsServer *metric.Server
	if *metricsPort != 0 {
		metricsServer = metric.NewServer(*metricsPort, "/metrics", registry, monitor)
		go func() {
			if err := metricsServer.Start(); err != nil {
				slog.Warn("metrics server stopped", "error", err)
			}
		}()
		slog.Info("metrics server listening", "address", metricsServer.Address())
	}

	publisherPipeline, producerStop := buildPublisherSide(*region, *regionSize, *tickInterval, metrics, monitor, registry)
	subscriberPipeline := buildSubscriberSide(*region, metrics, monitor, registry)

	publisherPipeline.SetName("publisher")
	publisherPipeline.SetMetrics(metrics)
	subscriberPipeline.SetName("subscriber")
	subscriberPipeline.SetMetrics(metrics)

	ctx := context.Background()
	if err := publisherPipeline.Start(ctx); err != nil {
		return fmt.Errorf("start publisher pipeline: %w", err)
	}
	if err := subscriberPipeline.Start(ctx); err != nil {
		publisherPipeline.Stop(ctx)
		return fmt.Errorf("start subscriber pipeline: %w", err)
	}
	monitor.UpdateHealthy("pipeline-demo", "both pipelines started")
	slog.Info("pipelines started")

	signalCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-signalCtx.Done()
	slog.Info("shutdown signal received")

	close(producerStop)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	subscriberPipeline.Stop(shutdownCtx)
	publisherPipeline.Stop(shutdownCtx)
	if metricsServer != nil {
		metricsServer.Stop(shutdownCtx)
	}
	slog.Info("pipeline-demo stopped", "stopped_at", timestamp.Format(timestamp.Now()))
	return nil
}

// buildPublisherSide wires producer -> splitter -> (log consumer, shared
// memory channel) and returns the pipeline plus a channel that stops the
// producer's ticking goroutine.
func buildPublisherSide(region string, regionSize int, interval time.Duration, metrics *metric.Metrics, monitor *health.Monitor, registry *metric.MetricsRegistry) (*pipeline.Pipeline, chan struct{}) {
	splitter := pipeline.NewSplitterNode(2)
	splitter.SetMetrics(registry)
	splitterIn, _ := splitter.PadByName("input", pipeline.KindInput)
	out1, _ := splitter.PadByName("output_1", pipeline.KindOutput)
	out2, _ := splitter.PadByName("output_2", pipeline.KindOutput)

	logger := pipeline.NewLambdaNode(func(_ context.Context, packet pipeline.Packet, _ pipeline.Pad) bool {
		metrics.RecordPacketProcessed("demo-logger", "ok")
		slog.Debug("producer tick", "value", packet.(*demoPacket).n)
		return true
	})
	loggerIn := logger.AddInput("in")
	out1.Then(loggerIn)

	pub := shmem.NewSharedPublisherNode(region, regionSize, shmem.DefaultMaxQueueSize+7)
	pub.SetMetrics(metrics)
	ch1 := pub.AddChannel("channel1")
	out2.Then(ch1)

	p := pipeline.NewPipeline()
	p.AddNode(splitter)
	p.AddNode(logger)
	p.AddNode(pub)

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		var n int64
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				n++
				start := time.Now()
				ok := splitterIn.Push(context.Background(), &demoPacket{n: int(n)}, 0)
				metrics.RecordProcessingDuration("producer", time.Since(start))
				monitor.Update("producer", health.NewHealthy("producer", fmt.Sprintf("%d ticks", n)))
				if !ok {
					metrics.RecordPacketDropped("producer", "push_failed")
				}
			}
		}
	}()

	return p, stop
}

// buildSubscriberSide wires a shared-memory subscriber into a summing
// consumer.
func buildSubscriberSide(region string, metrics *metric.Metrics, monitor *health.Monitor, registry *metric.MetricsRegistry) *pipeline.Pipeline {
	var sum int64

	sub := shmem.NewSharedSubscriberNodeT(region, func() *demoPacket { return &demoPacket{} })
	sub.SetMetrics(metrics)
	subOut := sub.AddChannel("channel1")

	summer := pipeline.NewLambdaNode(func(_ context.Context, packet pipeline.Packet, _ pipeline.Pad) bool {
		v := atomic.AddInt64(&sum, int64(packet.(*demoPacket).n))
		metrics.RecordPacketProcessed("demo-summer", "ok")
		metrics.RecordHealth("subscriber", true)
		monitor.Update("subscriber", health.NewHealthy("subscriber", fmt.Sprintf("running sum %d", v)))
		return true
	})
	summer.SetMetrics(registry)
	summerIn := summer.AddInput("in", pipeline.WithBoundedQueue(16), pipeline.WithQueueMetrics(registry))
	subOut.Then(summerIn)

	p := pipeline.NewPipeline()
	p.AddNode(sub)
	p.AddNode(summer)
	return p
}
