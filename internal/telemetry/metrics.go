package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce          sync.Once
	metricsInitErr       error
	pipeExecutions       metric.Int64Counter
	pipeLatencyHistogram metric.Float64Histogram
)

// PipeMetrics describes one finished pipe invocation.
type PipeMetrics struct {
	PipeCode string
	Kind     string
	Outcome  string
	Duration time.Duration
}

// RecordPipe emits the counter and latency histogram of one invocation.
func RecordPipe(ctx context.Context, m PipeMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("pipe.code", m.PipeCode),
		attribute.String("pipe.kind", m.Kind),
		attribute.String("pipe.outcome", m.Outcome),
	)
	pipeExecutions.Add(ctx, 1, attrs)
	pipeLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), attrs)
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter(InstrumentationName)

		pipeExecutions, metricsInitErr = meter.Int64Counter(
			"pipegrid.pipe.executions_total",
			metric.WithDescription("Pipe invocations partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		pipeLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"pipegrid.pipe.duration_ms",
			metric.WithDescription("Pipe invocation latency"),
			metric.WithUnit("ms"),
		)
	})
	return metricsInitErr
}

// ResetMetricsForTest clears cached instruments so tests can bind them to a
// fresh MeterProvider.
func ResetMetricsForTest() {
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	pipeExecutions = nil
	pipeLatencyHistogram = nil
}
