package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability bundles the otel meter and tracer used by the knowledge
// pipeline and the job runtime. The zero value is safe and records nothing.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerShutdown func(context.Context) error
	meter          otelmetric.Meter
	tracer         trace.Tracer

	jobCounter          otelmetric.Int64Counter
	jobDuration         otelmetric.Float64Histogram
	aggregationDuration otelmetric.Float64Histogram
	summaryDuration     otelmetric.Float64Histogram
}

// New builds the meter (prometheus exporter) and, when jaegerEndpoint is set,
// a tracer exporting to jaeger.
func New(serviceName, jaegerEndpoint string) *Observability {
	o := &Observability{tracer: noop.NewTracerProvider().Tracer(serviceName)}

	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return o
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o.meterProvider = provider
	o.meter = provider.Meter(serviceName)

	o.jobCounter, _ = o.meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = o.meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.aggregationDuration, _ = o.meter.Float64Histogram(
		"knowledge.aggregation.duration",
		otelmetric.WithDescription("Time spent fetching all knowledge sources for one medicine"),
		otelmetric.WithUnit("ms"),
	)
	o.summaryDuration, _ = o.meter.Float64Histogram(
		"knowledge.summary.duration",
		otelmetric.WithDescription("Time spent summarizing aggregated source text"),
		otelmetric.WithUnit("ms"),
	)

	if jaegerEndpoint != "" {
		tp, err := newJaegerTracerProvider(serviceName, jaegerEndpoint)
		if err != nil {
			log.Printf("Failed to create Jaeger exporter: %v", err)
		} else {
			otel.SetTracerProvider(tp)
			o.tracer = tp.Tracer(serviceName)
			o.tracerShutdown = tp.Shutdown
		}
	}

	return o
}

// Tracer returns the configured tracer, or a no-op tracer.
func (o *Observability) Tracer() trace.Tracer {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return o.tracer
}

// RecordJob counts one handled job of taskType and records how long it took.
func (o *Observability) RecordJob(ctx context.Context, taskType string, duration time.Duration) {
	if o == nil || o.jobCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(attribute.String("task_type", taskType))
	o.jobCounter.Add(ctx, 1, attrs)
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) RecordAggregation(ctx context.Context, duration time.Duration, successes int) {
	if o != nil && o.aggregationDuration != nil {
		o.aggregationDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.Int("successes", successes),
		))
	}
}

func (o *Observability) RecordSummary(ctx context.Context, duration time.Duration, ok bool) {
	if o != nil && o.summaryDuration != nil {
		o.summaryDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.Bool("ok", ok),
		))
	}
}

func (o *Observability) Shutdown() {
	if o == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerShutdown != nil {
		_ = o.tracerShutdown(ctx)
	}
}
