package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/watchmen-go/kernel/logger"
)

// MeterConfig configures OTLP metric export.
type MeterConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	ServiceName    string `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	Environment    string `yaml:"environment" mapstructure:"environment"`
	Endpoint       string `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure       bool   `yaml:"insecure" mapstructure:"insecure"`
	// Interval between exports, as a duration string.
	Interval string `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults fills in development defaults.
func (c *MeterConfig) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Interval == "" {
		c.Interval = "15s"
	}
}

// Validate validates the configuration.
func (c *MeterConfig) Validate() error {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return fmt.Errorf("metrics.interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("metrics.interval must be positive (got: %s)", c.Interval)
	}
	if c.Enabled && c.ServiceName == "" {
		return fmt.Errorf("metrics.service_name is required when metrics are enabled")
	}
	return nil
}

// InitMeter installs a global meter provider exporting over OTLP HTTP.
// Shut the provider down on exit to flush the last interval.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	interval, err := time.ParseDuration(config.Interval)
	if err != nil {
		return nil, fmt.Errorf("metrics.interval: %w", err)
	}
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}
	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", interval.String(),
	))
	return mp, nil
}

// Meter returns the kernel meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// Metrics holds the instruments recorded by pipeline runs.
type Metrics struct {
	runTotal      metric.Int64Counter
	runDuration   metric.Float64Histogram
	actionErrors  metric.Int64Counter
	mergeRetries  metric.Int64Counter
	cascadesTotal metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	runTotal, err := meter.Int64Counter("pipeline.run.total",
		metric.WithDescription("Total number of pipeline runs by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.run.total counter: %w", err)
	}

	runDuration, err := meter.Float64Histogram("pipeline.run.duration",
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.run.duration histogram: %w", err)
	}

	actionErrors, err := meter.Int64Counter("pipeline.action.errors",
		metric.WithDescription("Failed actions by action type"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.action.errors counter: %w", err)
	}

	mergeRetries, err := meter.Int64Counter("pipeline.merge.retries",
		metric.WithDescription("Optimistic lock retries of merge actions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.merge.retries counter: %w", err)
	}

	cascadesTotal, err := meter.Int64Counter("pipeline.cascades.total",
		metric.WithDescription("Pipelines scheduled by topic triggers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline.cascades.total counter: %w", err)
	}

	return &Metrics{
		runTotal:      runTotal,
		runDuration:   runDuration,
		actionErrors:  actionErrors,
		mergeRetries:  mergeRetries,
		cascadesTotal: cascadesTotal,
	}, nil
}

// RecordRun records a completed pipeline run. Safe on a nil receiver.
func (m *Metrics) RecordRun(ctx context.Context, pipelineID, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("pipeline", pipelineID),
		attribute.String("status", status),
	))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("pipeline", pipelineID),
	))
}

// RecordActionError records a failed action.
func (m *Metrics) RecordActionError(ctx context.Context, actionType string) {
	if m == nil {
		return
	}
	m.actionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", actionType)))
}

// RecordMergeRetry records one optimistic lock retry.
func (m *Metrics) RecordMergeRetry(ctx context.Context, topicID string) {
	if m == nil {
		return
	}
	m.mergeRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topicID)))
}

// RecordCascades records pipelines scheduled by one run.
func (m *Metrics) RecordCascades(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cascadesTotal.Add(ctx, int64(n))
}
