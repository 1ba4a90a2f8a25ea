package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newJSONLogger(buf *bytes.Buffer, level string) *Logger {
	return NewWithWriter(&Config{Level: level, Format: FormatJSON}, "kernel", buf)
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line")
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("invalid json log line %q: %v", line, err)
	}
	return out
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestLogger_FieldsAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "info").WithComponent("kernel")
	l.Info("pipeline finished", Fields(FieldPipelineID, "p-1", FieldStatus, "DONE"))

	out := decodeLine(t, &buf)
	if out["message"] != "pipeline finished" {
		t.Errorf("unexpected message %v", out["message"])
	}
	if out[FieldComponent] != "kernel" {
		t.Errorf("expected component=kernel, got %v", out[FieldComponent])
	}
	if out[FieldPipelineID] != "p-1" {
		t.Errorf("expected pipeline_id=p-1, got %v", out[FieldPipelineID])
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := newJSONLogger(&buf, "warn")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn message, got %q", buf.String())
	}
}

func TestLogger_WithContextTraceID(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithTraceID(context.Background(), "trace-9")
	newJSONLogger(&buf, "info").WithContext(ctx).Info("run")

	out := decodeLine(t, &buf)
	if out[FieldTraceID] != "trace-9" {
		t.Errorf("expected trace_id=trace-9, got %v", out[FieldTraceID])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	newJSONLogger(&buf, "info").WithError(errors.New("boom")).Error("failed")
	out := decodeLine(t, &buf)
	if out["error"] != "boom" {
		t.Errorf("expected error=boom, got %v", out["error"])
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", func() Config { c := Config{}; c.ApplyDefaults(); return c }(), false},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegistry_GetFallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalLogger(newJSONLogger(&buf, "info"))
	defer SetGlobalLogger(nil)

	Get("cascade").Info("resolved")
	out := decodeLine(t, &buf)
	if out[FieldComponent] != "cascade" {
		t.Errorf("expected component=cascade, got %v", out[FieldComponent])
	}
}

func TestRegistry_RegisterDefaults(t *testing.T) {
	var buf bytes.Buffer
	SetGlobalLogger(newJSONLogger(&buf, "info"))
	defer SetGlobalLogger(nil)
	defer Reset()

	RegisterDefaults(ComponentKernel, ComponentRunner)
	SetGlobalLogger(NewNop())

	Get(ComponentRunner).Info("kept")
	out := decodeLine(t, &buf)
	if out[FieldComponent] != ComponentRunner {
		t.Errorf("expected component=%s, got %v", ComponentRunner, out[FieldComponent])
	}

	Reset()
	buf.Reset()
	Get(ComponentRunner).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("registry not reset, got %q", buf.String())
	}
}
