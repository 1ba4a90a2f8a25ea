package metadata

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/principal"
)

const sampleYAML = `
topics:
  - topicId: t-order
    name: order
    type: raw
    factors:
      - {factorId: f-id, name: orderId, type: text}
      - {factorId: f-amount, name: amount, type: number}
  - topicId: t-total
    name: order_total
    type: aggregate
    factors:
      - {factorId: f-key, name: orderId, type: text}
      - {factorId: f-sum, name: total, type: number}
pipelines:
  - pipelineId: p-total
    topicId: t-order
    name: accumulate
    type: insert-or-merge
    enabled: true
    stages:
      - stageId: s1
        units:
          - unitId: u1
            do:
              - actionId: a1
                type: insert-or-merge-row
                topicId: t-total
                mapping:
                  - factorId: f-key
                    source: {kind: topic, topicId: t-order, factorId: f-id}
                  - factorId: f-sum
                    source: {kind: topic, topicId: t-order, factorId: f-amount}
                    arithmetic: sum
                by:
                  jointType: and
                  filters:
                    - left: {kind: topic, topicId: t-total, factorId: f-key}
                      operator: equals
                      right: {kind: topic, topicId: t-order, factorId: f-id}
`

func TestParse(t *testing.T) {
	defs, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(defs.Topics) != 2 || len(defs.Pipelines) != 1 {
		t.Fatalf("got %d topics, %d pipelines", len(defs.Topics), len(defs.Pipelines))
	}
	a := defs.Pipelines[0].Stages[0].Units[0].Do[0]
	if a.Type != model.ActionInsertOrMergeRow {
		t.Errorf("action type = %s", a.Type)
	}
	if len(a.Mapping) != 2 || a.Mapping[1].Arithmetic != model.ArithmeticSum {
		t.Errorf("unexpected mapping: %+v", a.Mapping)
	}
	if err := Validate(defs, nil); err != nil {
		t.Errorf("sample should be valid: %v", err)
	}
}

func TestParseMultipleDocuments(t *testing.T) {
	data := "topics:\n  - {topicId: a, name: a}\n---\ntopics:\n  - {topicId: b, name: b}\n"
	defs, err := Parse([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(defs.Topics) != 2 {
		t.Errorf("expected 2 topics, got %d", len(defs.Topics))
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("topics:\n  - {topicId: a, name: a, colour: red}\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("b.yaml", "topics:\n  - {topicId: b, name: b}\n")
	write("a.yml", "topics:\n  - {topicId: a, name: a}\n")
	write("notes.txt", "not yaml")

	defs, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(defs.Topics) != 2 || defs.Topics[0].TopicID != "a" {
		t.Errorf("unexpected topics: %+v", defs.Topics)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Definitions {
		defs, err := Parse([]byte(sampleYAML))
		if err != nil {
			t.Fatal(err)
		}
		return defs
	}

	tests := []struct {
		name   string
		mutate func(d *Definitions)
		field  string
	}{
		{"missing pipeline type", func(d *Definitions) { d.Pipelines[0].Type = "" }, "pipelines[0].type"},
		{"bad pipeline type", func(d *Definitions) { d.Pipelines[0].Type = "update" }, "pipelines[0].type"},
		{"unknown trigger topic", func(d *Definitions) { d.Pipelines[0].TopicID = "t-none" }, "pipelines[0].topicId"},
		{"duplicate topic", func(d *Definitions) { d.Topics[1].TopicID = "t-order" }, "topics[1].topicId"},
		{"duplicate factor", func(d *Definitions) { d.Topics[0].Factors[1].FactorID = "f-id" }, "topics[0].factors[1].factorId"},
		{"bad encrypt", func(d *Definitions) { d.Topics[0].Factors[0].Encrypt = "rot13" }, "topics[0].factors[0].encrypt"},
		{"unknown mapping factor", func(d *Definitions) {
			d.Pipelines[0].Stages[0].Units[0].Do[0].Mapping[0].FactorID = "f-none"
		}, "pipelines[0].stages[0].units[0].do[0].mapping[0].factorId"},
		{"missing by", func(d *Definitions) { d.Pipelines[0].Stages[0].Units[0].Do[0].By = nil }, "pipelines[0].stages[0].units[0].do[0].by"},
		{"unsupported action", func(d *Definitions) { d.Pipelines[0].Stages[0].Units[0].Do[0].Type = "explode" }, "pipelines[0].stages[0].units[0].do[0].type"},
		{"conditional without on", func(d *Definitions) { d.Pipelines[0].Stages[0].Conditional = true }, "pipelines[0].stages[0].on"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			defs := base()
			tc.mutate(defs)
			err := Validate(defs, nil)
			if !apperrors.IsCode(err, apperrors.ErrCodeInvalidDefinition) {
				t.Fatalf("expected invalid definition, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.field) {
				t.Errorf("error %q does not mention %s", err.Error(), tc.field)
			}
		})
	}
}

func TestValidatePipelineAgainstRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.PutTopic(model.Topic{TopicID: "t1", Name: "one", Factors: []model.Factor{{FactorID: "f1", Name: "x"}}})

	p := &model.Pipeline{
		PipelineID: "p1", TopicID: "t1", Type: model.TriggerInsert,
		Stages: []model.Stage{{Units: []model.Unit{{Do: []model.Action{
			{Type: model.ActionCopyToMemory, VariableName: "x", Source: &model.Parameter{Kind: model.ParameterConstant, Value: "1"}},
			{Type: model.ActionReadFactor, TopicID: "t1", FactorID: "f2", VariableName: "y",
				By: &model.ParameterJoint{JointType: model.JointAnd, Filters: []model.ParameterCondition{{
					Left:     &model.Parameter{Kind: model.ParameterTopic, TopicID: "t1", FactorID: "f1"},
					Operator: model.OperatorEquals,
					Right:    &model.Parameter{Kind: model.ParameterConstant, Value: "1"},
				}}}},
		}}}}},
	}
	err := ValidatePipeline(p, reg)
	if err == nil || !strings.Contains(err.Error(), "unknown factor f2") {
		t.Errorf("expected unknown factor error, got %v", err)
	}
	p.Stages[0].Units[0].Do[1].FactorID = "f1"
	if err := ValidatePipeline(p, reg); err != nil {
		t.Errorf("expected valid pipeline, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	defs, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Load(defs); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	topic, err := reg.FindByName(ctx, "order")
	if err != nil || topic.TopicID != "t-order" {
		t.Fatalf("FindByName = %v, %v", topic, err)
	}
	if _, err := reg.FindByID(ctx, "t-none"); !apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	pipelines := reg.Pipelines()
	list, err := pipelines.FindByTopicID(ctx, "t-order")
	if err != nil || len(list) != 1 {
		t.Fatalf("FindByTopicID = %v, %v", list, err)
	}
	first := list[0]

	// an update replaces the stored pointer
	changed := *first
	changed.Name = "renamed"
	reg.PutPipeline(changed)
	again, err := pipelines.FindByID(ctx, "p-total")
	if err != nil {
		t.Fatal(err)
	}
	if again == first || again.Name != "renamed" || first.Name != "accumulate" {
		t.Error("expected a new pointer with the new definition")
	}

	if !reg.RemovePipeline("p-total") || reg.RemovePipeline("p-total") {
		t.Error("RemovePipeline should report presence once")
	}
}

func TestRegistryLoadRejectsInvalid(t *testing.T) {
	reg := NewRegistry()
	defs := &Definitions{Pipelines: []model.Pipeline{{PipelineID: "p", TopicID: "missing", Type: model.TriggerInsert}}}
	if err := reg.Load(defs); err == nil {
		t.Fatal("expected validation error")
	}
	if list, _ := reg.FindByTopicID(context.Background(), "missing"); len(list) != 0 {
		t.Error("nothing should be stored when validation fails")
	}
}

func TestRegistryTenantScope(t *testing.T) {
	reg := NewRegistry()
	reg.PutTopic(model.Topic{TopicID: "shared", Name: "dim"})
	reg.PutTopic(model.Topic{TopicID: "t-a", Name: "dim", TenantID: "a"})
	reg.PutPipeline(model.Pipeline{PipelineID: "pa", TopicID: "shared", TenantID: "a"})
	reg.PutPipeline(model.Pipeline{PipelineID: "pb", TopicID: "shared", TenantID: "b"})

	ctxA := principal.Set(context.Background(), principal.Principal{TenantID: "a"})
	ctxC := principal.Set(context.Background(), principal.Principal{TenantID: "c"})

	if topic, _ := reg.FindByName(ctxA, "dim"); topic == nil || topic.TopicID != "t-a" {
		t.Errorf("tenant a should see its own topic, got %+v", topic)
	}
	if topic, _ := reg.FindByName(ctxC, "dim"); topic == nil || topic.TopicID != "shared" {
		t.Errorf("tenant c should fall back to the shared topic, got %+v", topic)
	}
	if _, err := reg.FindByID(ctxC, "t-a"); err == nil {
		t.Error("tenant c must not see tenant a topic")
	}
	list, _ := reg.FindByTopicID(ctxA, "shared")
	if len(list) != 1 || list[0].PipelineID != "pa" {
		t.Errorf("unexpected pipelines for tenant a: %+v", list)
	}
}
