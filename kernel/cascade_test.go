package kernel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/observability"
)

func TestReacts(t *testing.T) {
	tests := []struct {
		pipeline model.TriggerType
		trigger  model.TriggerType
		want     bool
	}{
		{model.TriggerInsert, model.TriggerInsert, true},
		{model.TriggerInsertOrMerge, model.TriggerInsert, true},
		{model.TriggerMerge, model.TriggerInsert, false},
		{model.TriggerDelete, model.TriggerInsert, false},
		{model.TriggerMerge, model.TriggerMerge, true},
		{model.TriggerInsertOrMerge, model.TriggerMerge, true},
		{model.TriggerInsert, model.TriggerMerge, false},
		{model.TriggerDelete, model.TriggerDelete, true},
		{model.TriggerInsertOrMerge, model.TriggerDelete, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.pipeline)+"/"+string(tt.trigger), func(t *testing.T) {
			if got := Reacts(tt.pipeline, tt.trigger); got != tt.want {
				t.Errorf("Reacts(%s, %s) = %v, want %v", tt.pipeline, tt.trigger, got, tt.want)
			}
		})
	}
}

func TestResolveCascades(t *testing.T) {
	topic := &model.Topic{TopicID: "t1", Name: "t1"}
	p := func(id, topicID string, typ model.TriggerType, enabled bool) *model.Pipeline {
		return &model.Pipeline{PipelineID: id, TopicID: topicID, Type: typ, Enabled: enabled}
	}
	pipelines := []*model.Pipeline{
		p("insert", "t1", model.TriggerInsert, true),
		p("any", "t1", model.TriggerInsertOrMerge, true),
		p("merge", "t1", model.TriggerMerge, true),
		p("disabled", "t1", model.TriggerInsert, false),
		p("other-topic", "t2", model.TriggerInsert, true),
		nil,
	}
	trigger := model.TopicTrigger{
		Current:        map[string]any{"v": 1},
		TriggerType:    model.TriggerInsert,
		InternalDataID: "row-1",
	}

	runs := ResolveCascades(trigger, topic, pipelines, "trace-9")
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	for i, want := range []string{"insert", "any"} {
		run := runs[i]
		if run.Pipeline.PipelineID != want {
			t.Errorf("runs[%d] = %s, want %s", i, run.Pipeline.PipelineID, want)
		}
		if run.Topic != topic || run.TraceID != "trace-9" || run.InternalDataID != "row-1" || run.Current["v"] != 1 || run.Previous != nil {
			t.Errorf("runs[%d] = %+v", i, run)
		}
	}

	if runs := ResolveCascades(model.TopicTrigger{TriggerType: model.TriggerDelete}, topic, pipelines, ""); len(runs) != 0 {
		t.Errorf("delete trigger started %d runs", len(runs))
	}
}

func TestCascadeFollowsDisabledAndMissingPipelines(t *testing.T) {
	f := newFixture(t)
	off := pipelineOf("p-off", topicSummary, model.TriggerInsert)
	off.Enabled = false
	f.registry.PutPipeline(off)

	p := pipelineOf("p", topicOrders, model.TriggerInsert, stageOf("s1", unitOf("u1", insertTitle("a1"), insertTitle("a2"))))
	result := f.run(t, &p, nil, map[string]any{"name": "A"})
	if result.Err != nil || len(result.Pending) != 0 {
		t.Fatalf("Run() = %d pending, %v", len(result.Pending), result.Err)
	}

	on := f.registry.PutPipeline(pipelineOf("p-on", topicSummary, model.TriggerInsert))
	result = f.run(t, &p, nil, map[string]any{"name": "B"})
	if len(result.Pending) != 2 || result.Pending[0].Pipeline != on || result.Pending[1].Pipeline != on {
		t.Fatalf("pending = %+v", result.Pending)
	}
	if result.Pending[0].InternalDataID == result.Pending[1].InternalDataID {
		t.Error("both pending runs carry the same row")
	}
}

func TestRunSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	f := newFixture(t)
	f.registry.PutPipeline(pipelineOf("p-summary", topicSummary, model.TriggerInsert))
	p := pipelineOf("p", topicOrders, model.TriggerInsert, stageOf("s1", unitOf("u1", insertTitle("a1"))))
	if result := f.run(t, &p, nil, map[string]any{"name": "A"}); result.Err != nil {
		t.Fatalf("Run() error = %v", result.Err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != observability.SpanPipelineRun {
		t.Fatalf("spans = %d", len(spans))
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs[observability.AttrStatus].AsString(); got != "DONE" {
		t.Errorf("status = %q", got)
	}
	if got := attrs[observability.AttrPipelineID].AsString(); got != "p" {
		t.Errorf("pipeline id = %q", got)
	}
	if got := attrs[observability.AttrTraceID].AsString(); got != "trace-1" {
		t.Errorf("trace id = %q", got)
	}
	if got := attrs[observability.AttrCascades].AsInt64(); got != 1 {
		t.Errorf("cascades = %d", got)
	}
}
