// Package adapter integrates the process monitor with external
// observability systems.
package adapter

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MonitorInstrumentation records monitor timings through OpenTelemetry.
// It implements the monitor package's Instrumenter interface. A nil
// receiver is a no-op, so wiring can be unconditional.
type MonitorInstrumentation struct {
	tracer     trace.Tracer
	tickDur    metric.Float64Histogram
	terminated metric.Int64Counter
}

// NewMonitorInstrumentation builds instruments on the given meter and
// tracer.
func NewMonitorInstrumentation(meter metric.Meter, tracer trace.Tracer) (*MonitorInstrumentation, error) {
	tickDur, err := meter.Float64Histogram(
		"startupmgr.monitor.tick.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Poll tick duration, including any termination pass."),
	)
	if err != nil {
		return nil, err
	}
	terminated, err := meter.Int64Counter(
		"startupmgr.monitor.terminated.processes",
		metric.WithDescription("Addon processes ended by termination batches."),
	)
	if err != nil {
		return nil, err
	}
	return &MonitorInstrumentation{
		tracer:     tracer,
		tickDur:    tickDur,
		terminated: terminated,
	}, nil
}

// ObserveTick records one poll tick duration.
func (i *MonitorInstrumentation) ObserveTick(d time.Duration) {
	if i == nil {
		return
	}
	i.tickDur.Record(context.Background(), d.Seconds())
}

// ObserveTermination records a completed termination batch as a span plus
// a counter increment.
func (i *MonitorInstrumentation) ObserveTermination(count int) {
	if i == nil {
		return
	}
	ctx := context.Background()
	if i.tracer != nil {
		var span trace.Span
		_, span = i.tracer.Start(ctx, "monitor.termination_batch")
		defer span.End()
	}
	i.terminated.Add(ctx, int64(count))
}
