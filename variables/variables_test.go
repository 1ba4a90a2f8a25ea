package variables

import (
	"testing"
)

func TestCloneIsolation(t *testing.T) {
	parent := New(nil, map[string]any{"name": "A"})
	parent.Put("x", 1)
	parent.Put("items", []any{map[string]any{"v": 1}})

	child := parent.Clone()
	child.Put("x", 2)
	child.Put("y", "only in child")
	items, _ := child.Get("items")
	items.([]any)[0].(map[string]any)["v"] = 99

	if x, _ := parent.Get("x"); x != 1 {
		t.Errorf("parent x changed to %v", x)
	}
	if _, ok := parent.Get("y"); ok {
		t.Error("child variable leaked into parent")
	}
	orig, _ := parent.Get("items")
	if orig.([]any)[0].(map[string]any)["v"] != 1 {
		t.Error("nested mutation leaked into parent")
	}
}

func TestResolve(t *testing.T) {
	v := New(
		map[string]any{"amount": 5},
		map[string]any{"amount": 7, "order": map[string]any{"no": "O-1"}},
	)
	v.Put("items", []any{"a", "b", "c"})
	v.Put("amount", 100)

	tests := []struct {
		path   string
		want   any
		wantOk bool
	}{
		{"amount", 100, true},
		{"&old.amount", 5, true},
		{"&cur.amount", 7, true},
		{"order.no", "O-1", true},
		{"items.1", "b", true},
		{"items.&count", 3, true},
		{"order.no.&length", 3, true},
		{"missing", nil, false},
		{"", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			got, ok := v.Resolve(tc.path)
			if ok != tc.wantOk || got != tc.want {
				t.Errorf("Resolve(%q) = (%v, %v), want (%v, %v)", tc.path, got, ok, tc.want, tc.wantOk)
			}
		})
	}
}

func TestProvenanceChaining(t *testing.T) {
	v := New(nil, map[string]any{"customer": map[string]any{"name": "A"}})
	v.PutFrom("c", map[string]any{"name": "A"}, "current.customer")

	from, ok := v.TraceFrom("c.name")
	if !ok || from != "current.customer.name" {
		t.Errorf("expected current.customer.name, got %q (ok=%v)", from, ok)
	}

	v.Put("c", "overwritten")
	if _, ok := v.From("c"); ok {
		t.Error("Put must clear provenance")
	}
}

func TestWithCurrentKeepsOriginal(t *testing.T) {
	v := New(map[string]any{"n": 1}, map[string]any{"n": 2})
	prev := v.WithCurrent(v.Previous())
	if got, _ := prev.Resolve("n"); got != 1 {
		t.Errorf("expected previous row as current, got %v", got)
	}
	if got, _ := v.Resolve("n"); got != 2 {
		t.Errorf("original context changed: %v", got)
	}
}

func TestEnv(t *testing.T) {
	v := New(nil, map[string]any{"n": 2})
	v.Put("x", 1)
	env := v.Env()
	if env["x"] != 1 {
		t.Errorf("expected top-level x, got %v", env["x"])
	}
	if env["current"].(map[string]any)["n"] != 2 {
		t.Error("expected current row in env")
	}
	if env["variables"].(map[string]any)["x"] != 1 {
		t.Error("expected variables map in env")
	}
	if names := v.Names(); len(names) != 1 || names[0] != "x" {
		t.Errorf("unexpected names %v", names)
	}
}
