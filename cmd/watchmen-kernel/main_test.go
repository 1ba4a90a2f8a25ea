package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/watchmen-go/kernel/config"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/version"
)

const definitions = `
topics:
  - topicId: orders
    name: orders
    type: raw
    factors:
      - {factorId: o-name, name: name, type: text}
      - {factorId: o-amount, name: amount, type: number}
  - topicId: totals
    name: totals
    type: aggregate
    factors:
      - {factorId: t-name, name: name, type: text}
      - {factorId: t-amount, name: amount, type: number}
pipelines:
  - pipelineId: p-totals
    topicId: orders
    name: totals
    type: insert
    enabled: true
    stages:
      - stageId: s1
        units:
          - unitId: u1
            do:
              - actionId: a1
                type: insert-or-merge-row
                topicId: totals
                by:
                  jointType: and
                  filters:
                    - left: {kind: topic, topicId: totals, factorId: t-name}
                      operator: equals
                      right: {kind: topic, topicId: orders, factorId: o-name}
                mapping:
                  - factorId: t-name
                    source: {kind: topic, topicId: orders, factorId: o-name}
                  - factorId: t-amount
                    source: {kind: topic, topicId: orders, factorId: o-amount}
                    arithmetic: sum
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseTrigger(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
		ingest  bool
		typ     model.TriggerType
	}{
		{
			name:   "ingest by default",
			input:  "topic: orders\nprincipal: {tenantId: t1}\ncurrent: {name: a}",
			ingest: true,
			typ:    model.TriggerInsert,
		},
		{
			name:   "dispatch a merge",
			input:  "topic: orders\ntype: merge\ningest: false\nprincipal: {tenantId: t1}\nprevious: {name: a}\ncurrent: {name: b}",
			ingest: false,
			typ:    model.TriggerMerge,
		},
		{
			name:    "merge cannot be ingested",
			input:   "topic: orders\ntype: merge\nprincipal: {tenantId: t1}\ncurrent: {name: b}",
			wantErr: "only insert",
		},
		{
			name:    "missing topic",
			input:   "principal: {tenantId: t1}\ncurrent: {name: a}",
			wantErr: "topic is required",
		},
		{
			name:    "missing tenant",
			input:   "topic: orders\ncurrent: {name: a}",
			wantErr: "tenant",
		},
		{
			name:    "missing current",
			input:   "topic: orders\nprincipal: {tenantId: t1}",
			wantErr: "current is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTrigger([]byte(tt.input))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseTrigger() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseTrigger() error = %v", err)
			}
			if got.ingest() != tt.ingest || got.Type != tt.typ {
				t.Errorf("ingest = %v, type = %s", got.ingest(), got.Type)
			}
		})
	}
}

func TestAppFiresTrigger(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "definitions.yaml", definitions)

	cfg := &config.KernelConfig{}
	cfg.Logging.Level = "error"
	cfg.ApplyDefaults()

	a, err := newApp(context.Background(), cfg, defs)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.Close(context.Background())

	for i, amount := range []int{3, 4} {
		trig, err := parseTrigger([]byte(fmt.Sprintf("topic: orders\nprincipal: {tenantId: t1}\ncurrent: {name: widget, amount: %d}", amount)))
		if err != nil {
			t.Fatalf("parseTrigger() error = %v", err)
		}
		report, err := a.fire(context.Background(), trig)
		if err != nil {
			t.Fatalf("fire() error = %v", err)
		}
		if len(report.Results) != 1 || report.Failed() != 0 {
			t.Fatalf("runs = %d, failed = %d", len(report.Results), report.Failed())
		}
		inserted, updated, _ := report.Results[0].Log.Counts()
		if i == 0 && inserted != 1 || i == 1 && updated != 1 {
			t.Errorf("trigger %d: inserted = %d, updated = %d", i, inserted, updated)
		}
	}

	topic, _ := a.registry.FindByID(context.Background(), "totals")
	if topic == nil || topic.Type != model.TopicAggregate {
		t.Fatalf("totals topic = %+v", topic)
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "definitions.yaml", definitions)
	cfgFile := writeFile(t, dir, "config.yaml", "name: kernel-cli\nlogging:\n  level: error\n")
	trig := writeFile(t, dir, "trigger.yaml", "topic: orders\ntraceId: cli-1\nprincipal: {tenantId: t1}\ncurrent: {name: widget, amount: 2}\n")

	var out bytes.Buffer
	err := runTrigger(context.Background(), []string{"-config", cfgFile, "-definitions", defs, "-trigger", trig}, &out)
	if err != nil {
		t.Fatalf("runTrigger() error = %v", err)
	}
	var logs []map[string]any
	if err := json.Unmarshal(out.Bytes(), &logs); err != nil {
		t.Fatalf("output is not a log list: %v\n%s", err, out.String())
	}
	if len(logs) != 1 || logs[0]["pipelineId"] != "p-totals" || logs[0]["traceId"] != "cli-1" || logs[0]["status"] != "DONE" {
		t.Errorf("logs = %v", logs)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	defs := writeFile(t, dir, "definitions.yaml", definitions)

	var out bytes.Buffer
	if err := runValidate(context.Background(), []string{"-definitions", defs}, &out); err != nil {
		t.Fatalf("runValidate() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "2 topics, 1 pipelines ok" {
		t.Errorf("output = %q", got)
	}

	bad := writeFile(t, dir, "bad.yaml", "pipelines:\n  - pipelineId: p\n    topicId: nowhere\n    type: insert\n")
	if err := runValidate(context.Background(), []string{"-definitions", bad}, &out); err == nil {
		t.Error("runValidate() should reject an unknown topic")
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	if err := runVersion(context.Background(), nil, &out); err != nil {
		t.Fatalf("runVersion() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), version.Version) {
		t.Errorf("output = %q", out.String())
	}
}
