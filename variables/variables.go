// Package variables holds the per-run variable context of a pipeline: the
// previous and current trigger rows, named intermediate values and the
// provenance of values copied from other sources.
//
// A context is created once per run and cloned for every loop iteration so
// writes inside the loop body never reach sibling iterations or the parent.
package variables

import (
	"sort"
	"strings"
	"sync"

	"github.com/watchmen-go/kernel/value"
)

// Path tokens understood by Resolve.
const (
	// PreviousPrefix addresses the previous trigger row, e.g. "&old.amount".
	PreviousPrefix = "&old"
	// CurrentPrefix addresses the current trigger row explicitly.
	CurrentPrefix = "&cur"
	// CountSuffix yields the length of a list or string, e.g. "items.&count".
	CountSuffix = "&count"
	// LengthSuffix is an alias of CountSuffix.
	LengthSuffix = "&length"
)

// PipelineVariables is the variable context of one pipeline run.
type PipelineVariables struct {
	mu         sync.RWMutex
	previous   map[string]any
	current    map[string]any
	vars       map[string]any
	provenance map[string]string
}

// New creates a context from trigger data. Either row may be nil.
func New(previous, current map[string]any) *PipelineVariables {
	return &PipelineVariables{
		previous:   previous,
		current:    current,
		vars:       make(map[string]any),
		provenance: make(map[string]string),
	}
}

// Previous returns the previous trigger row, nil for inserts.
func (v *PipelineVariables) Previous() map[string]any { return v.previous }

// Current returns the current trigger row, nil for deletes.
func (v *PipelineVariables) Current() map[string]any { return v.current }

// HasPrevious reports whether the trigger carries a previous row.
func (v *PipelineVariables) HasPrevious() bool { return v.previous != nil }

// Get returns a named variable.
func (v *PipelineVariables) Get(name string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.vars[name]
	return val, ok
}

// Put assigns a named variable and clears its provenance.
func (v *PipelineVariables) Put(name string, val any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vars[name] = val
	delete(v.provenance, name)
}

// PutFrom assigns a named variable and records the dotted path it was read
// from. An empty from behaves like Put.
func (v *PipelineVariables) PutFrom(name string, val any, from string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vars[name] = val
	if from == "" {
		delete(v.provenance, name)
		return
	}
	v.provenance[name] = from
}

// From returns the provenance recorded for a variable.
func (v *PipelineVariables) From(name string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	from, ok := v.provenance[name]
	return from, ok
}

// TraceFrom resolves the provenance of a dotted variable path. When the
// first segment has provenance, the remaining segments are appended to it,
// so chained copies keep pointing at the original source.
func (v *PipelineVariables) TraceFrom(path string) (string, bool) {
	name, rest, _ := strings.Cut(path, ".")
	from, ok := v.From(name)
	if !ok {
		return "", false
	}
	if rest == "" {
		return from, true
	}
	return from + "." + rest, true
}

// Names returns the variable names in sorted order.
func (v *PipelineVariables) Names() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	names := make([]string, 0, len(v.vars))
	for name := range v.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an isolated copy. Variables are deep copied; trigger rows
// are shared since the kernel never mutates them.
func (v *PipelineVariables) Clone() *PipelineVariables {
	v.mu.RLock()
	defer v.mu.RUnlock()
	provenance := make(map[string]string, len(v.provenance))
	for k, from := range v.provenance {
		provenance[k] = from
	}
	return &PipelineVariables{
		previous:   v.previous,
		current:    v.current,
		vars:       value.CopyMap(v.vars),
		provenance: provenance,
	}
}

// WithCurrent returns a clone whose current row is replaced. It is used to
// evaluate mappings against the previous row when rolling back aggregates.
func (v *PipelineVariables) WithCurrent(current map[string]any) *PipelineVariables {
	c := v.Clone()
	c.current = current
	return c
}

// Resolve looks up a dotted path. The first segment is matched against
// variables, then the &old and &cur prefixes, then the current row.
// A trailing &count or &length yields the size of the resolved value.
func (v *PipelineVariables) Resolve(path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}
	segments := strings.Split(path, ".")
	countOf := false
	if last := segments[len(segments)-1]; last == CountSuffix || last == LengthSuffix {
		countOf = true
		segments = segments[:len(segments)-1]
	}

	var resolved any
	var ok bool
	switch {
	case len(segments) == 0:
		return nil, false
	case segments[0] == PreviousPrefix:
		resolved, ok = value.Lookup(toAny(v.previous), strings.Join(segments[1:], "."))
	case segments[0] == CurrentPrefix:
		resolved, ok = value.Lookup(toAny(v.current), strings.Join(segments[1:], "."))
	default:
		if root, found := v.Get(segments[0]); found {
			resolved, ok = value.Lookup(root, strings.Join(segments[1:], "."))
		} else {
			resolved, ok = value.Lookup(toAny(v.current), strings.Join(segments, "."))
		}
	}
	if !ok {
		return nil, false
	}
	if countOf {
		return sizeOf(resolved), true
	}
	return resolved, true
}

// Env flattens the context for expression programs: every variable at the
// top level plus "current", "previous" and "variables".
func (v *PipelineVariables) Env() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	env := make(map[string]any, len(v.vars)+3)
	for k, val := range v.vars {
		env[k] = val
	}
	vars := make(map[string]any, len(v.vars))
	for k, val := range v.vars {
		vars[k] = val
	}
	env["variables"] = vars
	env["current"] = v.current
	env["previous"] = v.previous
	return env
}

func toAny(row map[string]any) any {
	if row == nil {
		return nil
	}
	return row
}

func sizeOf(v any) int {
	if v == nil {
		return 0
	}
	if s, ok := v.(string); ok {
		return len([]rune(s))
	}
	if list, ok := value.ToList(v); ok {
		return len(list)
	}
	if m, ok := v.(map[string]any); ok {
		return len(m)
	}
	return 1
}
