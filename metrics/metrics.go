package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("github.com/a-h/pkgpipe")

	if m.TasksTotal, err = meter.Int64Counter("publish_tasks_total", metric.WithDescription("Total number of publish tasks that reached a terminal state")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create publish_tasks_total counter: %w", err)
	}
	if m.IngestedBytesTotal, err = meter.Int64Counter("ingested_bytes_total", metric.WithDescription("Total bytes read from uploaded tarballs")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create ingested_bytes_total counter: %w", err)
	}
	if m.NpmTarballBytesTotal, err = meter.Int64Counter("npm_tarball_bytes_total", metric.WithDescription("Total bytes written as npm-compat tarballs")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create npm_tarball_bytes_total counter: %w", err)
	}
	if m.PolicyRejectionsTotal, err = meter.Int64Counter("policy_rejections_total", metric.WithDescription("Total number of publish tasks rejected by a policy check, by error code")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create policy_rejections_total counter: %w", err)
	}
	if m.TaskDurationSeconds, err = meter.Float64Histogram("publish_task_duration_seconds", metric.WithDescription("Wall-clock time from a task entering processing to reaching a terminal state")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create publish_task_duration_seconds histogram: %w", err)
	}

	return m, nil
}

type Metrics struct {
	TasksTotal            metric.Int64Counter
	IngestedBytesTotal    metric.Int64Counter
	NpmTarballBytesTotal  metric.Int64Counter
	PolicyRejectionsTotal metric.Int64Counter
	TaskDurationSeconds   metric.Float64Histogram
}

func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

// IncrementTaskOutcome records a publish task reaching the terminal state
// outcome ("success" or "failure"), tagged by outcome only, and records
// its duration.
func (m Metrics) IncrementTaskOutcome(ctx context.Context, outcome string, durationSeconds float64) {
	if m.TasksTotal == nil {
		return
	}
	m.TasksTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if m.TaskDurationSeconds != nil {
		m.TaskDurationSeconds.Record(ctx, durationSeconds, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (m Metrics) IncrementIngestedBytes(ctx context.Context, bytes int64) {
	if m.IngestedBytesTotal == nil {
		return
	}
	m.IngestedBytesTotal.Add(ctx, bytes)
}

func (m Metrics) IncrementNpmTarballBytes(ctx context.Context, bytes int64) {
	if m.NpmTarballBytesTotal == nil {
		return
	}
	m.NpmTarballBytesTotal.Add(ctx, bytes)
}

// IncrementPolicyRejection records a publish task rejected at the policy
// check stage, tagged by the pipelineerr code that caused the rejection.
func (m Metrics) IncrementPolicyRejection(ctx context.Context, code string) {
	if m.PolicyRejectionsTotal == nil {
		return
	}
	m.PolicyRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}
