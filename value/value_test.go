package value

import (
	"testing"
	"time"
)

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, true},
		{"blank string", "  ", true},
		{"string", "a", false},
		{"empty list", []any{}, true},
		{"typed empty list", []string{}, true},
		{"list", []int{1}, false},
		{"zero number", 0, false},
		{"empty map", map[string]any{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsEmpty(tc.in); got != tc.want {
				t.Errorf("IsEmpty(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestEquals(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"int and float", 1, 1.0, true},
		{"number and string", int64(42), "42", true},
		{"strings", "a", "a", true},
		{"different strings", "a", "b", false},
		{"bool and string", true, "true", true},
		{"time and string", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "2024-01-02", true},
		{"nil and empty", nil, "", true},
		{"nil and value", nil, "x", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Equals(tc.a, tc.b); got != tc.want {
				t.Errorf("Equals(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	if c, err := Compare(2, "10"); err != nil || c != -1 {
		t.Errorf("expected 2 < 10 numerically, got %d (%v)", c, err)
	}
	if c, err := Compare("b", "a"); err != nil || c != 1 {
		t.Errorf("expected b > a, got %d (%v)", c, err)
	}
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if c, err := Compare(d1, "2024-02-01"); err != nil || c != -1 {
		t.Errorf("expected earlier date to sort first, got %d (%v)", c, err)
	}
	if _, err := Compare(d1, "not a date"); err == nil {
		t.Error("expected an error comparing a time with garbage")
	}
}

func TestIn(t *testing.T) {
	if !In(2, []any{1, 2, 3}) {
		t.Error("expected 2 in list")
	}
	if !In("b", "a, b, c") {
		t.Error("expected b in comma separated string")
	}
	if In(4, []int{1, 2, 3}) {
		t.Error("expected 4 not in list")
	}
}

func TestNumberArithmetic(t *testing.T) {
	sum := Add(Int(2), Int(3))
	if sum.Value() != int64(5) {
		t.Errorf("expected int64(5), got %#v", sum.Value())
	}
	mixed := Add(Int(2), Float(0.5))
	if mixed.Value() != 2.5 {
		t.Errorf("expected 2.5, got %#v", mixed.Value())
	}
	q, err := Divide(Int(9), Int(3))
	if err != nil || q.Value() != int64(3) {
		t.Errorf("expected integral quotient 3, got %#v (%v)", q.Value(), err)
	}
	if _, err := Divide(Int(1), Int(0)); err == nil {
		t.Error("expected division by zero error")
	}
}

func TestLookup(t *testing.T) {
	root := map[string]any{
		"order": map[string]any{
			"items": []any{map[string]any{"sku": "A"}, map[string]any{"sku": "B"}},
		},
	}
	got, ok := Lookup(root, "order.items.1.sku")
	if !ok || got != "B" {
		t.Errorf("expected B, got %v (ok=%v)", got, ok)
	}
	if _, ok := Lookup(root, "order.missing"); ok {
		t.Error("expected missing path to fail")
	}
}

func TestDeepCopyIsolation(t *testing.T) {
	src := map[string]any{"nested": map[string]any{"x": 1}, "list": []any{1}}
	cp := CopyMap(src)
	cp["nested"].(map[string]any)["x"] = 2
	cp["list"].([]any)[0] = 9
	if src["nested"].(map[string]any)["x"] != 1 || src["list"].([]any)[0] != 1 {
		t.Error("mutating the copy leaked into the source")
	}
}

func TestCastForFactor(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		in      any
		want    any
		wantErr bool
	}{
		{"number from string", KindNumber, "12", int64(12), false},
		{"number garbage", KindNumber, "x", nil, true},
		{"unsigned negative", KindUnsigned, -1, nil, true},
		{"boolean", KindBoolean, "yes", true, false},
		{"date truncates", KindDate, "2024-03-04 10:11:12", time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), false},
		{"time", KindTime, "10:11:12", "10:11:12", false},
		{"empty to nil", KindNumber, "", nil, false},
		{"text keeps blank", KindText, "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CastForFactor(tc.kind, tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
			if tc.wantErr {
				return
			}
			if gt, ok := got.(time.Time); ok {
				if !gt.Equal(tc.want.(time.Time)) {
					t.Errorf("expected %v, got %v", tc.want, gt)
				}
				return
			}
			if got != tc.want {
				t.Errorf("expected %#v, got %#v", tc.want, got)
			}
		})
	}
}
