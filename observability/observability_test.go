package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func attrOf(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracerConfigDefaults(t *testing.T) {
	cfg := TracerConfig{ServiceName: "kernel"}
	cfg.ApplyDefaults()

	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected default endpoint, got %q", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %v", cfg.SampleRate)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected development, got %q", cfg.Environment)
	}
}

func TestTracerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TracerConfig
		wantErr bool
	}{
		{"disabled without name", TracerConfig{SampleRate: 1}, false},
		{"enabled with name", TracerConfig{Enabled: true, ServiceName: "k", SampleRate: 0.5}, false},
		{"enabled without name", TracerConfig{Enabled: true, SampleRate: 1}, true},
		{"rate above one", TracerConfig{SampleRate: 1.5}, true},
		{"negative rate", TracerConfig{SampleRate: -0.1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tc := range tests {
		if got := samplerFor(tc.rate).Description(); got != tc.want {
			t.Errorf("samplerFor(%v) = %q, want %q", tc.rate, got, tc.want)
		}
	}
}

func TestStartPipelineSpan(t *testing.T) {
	recorder := withRecorder(t)

	ctx, span := StartPipelineSpan(context.Background(), "p1", "t1", "tenant", "trace-1")
	SetSpanAttribute(ctx, AttrCascades, 2)
	EndSpan(span, "DONE", nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != SpanPipelineRun {
		t.Errorf("expected span %q, got %q", SpanPipelineRun, s.Name())
	}
	if v, ok := attrOf(s.Attributes(), AttrPipelineID); !ok || v.AsString() != "p1" {
		t.Errorf("pipeline id attribute = %v", v)
	}
	if v, ok := attrOf(s.Attributes(), AttrCascades); !ok || v.AsInt64() != 2 {
		t.Errorf("cascades attribute = %v", v)
	}
	if v, _ := attrOf(s.Attributes(), AttrStatus); v.AsString() != "DONE" {
		t.Errorf("status attribute = %v", v)
	}
}

func TestEndSpanWithError(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartPipelineSpan(context.Background(), "p1", "t1", "", "")
	EndSpan(span, "ERROR", errors.New("boom"))

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status().Code)
	}
	if len(s.Events()) == 0 {
		t.Error("expected recorded error event")
	}
}

func TestSetSpanAttributeNoSpan(t *testing.T) {
	// must not panic without a recording span
	SetSpanAttribute(context.Background(), "k", "v")
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	ctx := context.Background()
	m.RecordRun(ctx, "p1", "DONE", 10*time.Millisecond)
	m.RecordActionError(ctx, "alarm")
	m.RecordMergeRetry(ctx, "t1")
	m.RecordCascades(ctx, 3)
}

func TestMetricsNilReceiver(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordRun(ctx, "p1", "DONE", time.Second)
	m.RecordActionError(ctx, "alarm")
	m.RecordMergeRetry(ctx, "t1")
	m.RecordCascades(ctx, 1)
}

func TestMetricsCollected(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter(InstrumentationName))
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	ctx := context.Background()
	m.RecordRun(ctx, "p1", "DONE", 10*time.Millisecond)
	m.RecordRun(ctx, "p1", "ERROR", 20*time.Millisecond)
	m.RecordCascades(ctx, 0)
	m.RecordCascades(ctx, 2)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if sum, ok := metric.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[metric.Name] += dp.Value
				}
			}
		}
	}
	if sums["pipeline.run.total"] != 2 {
		t.Errorf("pipeline.run.total = %d, want 2", sums["pipeline.run.total"])
	}
	if sums["pipeline.cascades.total"] != 2 {
		t.Errorf("pipeline.cascades.total = %d, want 2", sums["pipeline.cascades.total"])
	}
}

func TestMeterConfigValidate(t *testing.T) {
	cfg := MeterConfig{}
	cfg.ApplyDefaults()
	if cfg.Interval != "15s" || cfg.Endpoint != "localhost:4318" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled config should be valid: %v", err)
	}

	cfg.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("enabled config without service name should fail")
	}
	cfg.ServiceName = "kernel"
	cfg.Interval = "soon"
	if err := cfg.Validate(); err == nil {
		t.Error("bad interval should fail")
	}
}
