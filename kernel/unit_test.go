package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/variables"
)

func TestResolveLoopSource(t *testing.T) {
	vars := variables.New(nil, map[string]any{
		"items": []any{1, 2},
		"tags":  []string{"a", "b", "c"},
		"name":  "A",
		"empty": nil,
	})
	vars.Put("rows", []map[string]any{{"id": 1}})

	tests := []struct {
		name  string
		kind  LoopSourceKind
		count int
	}{
		{"items", LoopList, 2},
		{"tags", LoopList, 3},
		{"rows", LoopList, 1},
		{"missing", LoopAbsent, 0},
		{"empty", LoopAbsent, 0},
		{"name", LoopInvalid, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveLoopSource(vars, tt.name)
			if got.Kind != tt.kind || len(got.Items) != tt.count {
				t.Errorf("ResolveLoopSource(%q) = %s with %d items, want %s with %d", tt.name, got.Kind, len(got.Items), tt.kind, tt.count)
			}
		})
	}
}

func TestLoopVariablesAreIsolated(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			f := newFixture(t, func(o *Options) { o.Pipeline.ParallelActionsInLoopUnit = parallel })
			loop := unitOf("u2",
				copyTo("a2", "x", constant("{items}")),
				copyTo("a3", "seen", constant("item {x}")),
			)
			loop.LoopVariableName = "items"
			p := pipelineOf("p", topicOrders, model.TriggerInsert, stageOf("s1",
				unitOf("u1", copyTo("a1", "x", constant("outer"))),
				loop,
				unitOf("u3", copyTo("a4", "after", constant("{x}"))),
			))

			result := f.run(t, &p, nil, map[string]any{"name": "A", "items": []any{1, 2, 3}})
			if result.Err != nil {
				t.Fatalf("Run() error = %v", result.Err)
			}
			units := result.Log.Stages[0].Units
			if len(units) != 5 {
				t.Fatalf("unit logs = %d, want 5", len(units))
			}
			for i, u := range units[1:4] {
				if u.LoopVariableName != "items" || u.LoopVariableValue != i+1 {
					t.Errorf("iteration %d = %s:%v", i, u.LoopVariableName, u.LoopVariableValue)
				}
				if got := u.Actions[1].Value; got != fmt.Sprintf("item %d", i+1) {
					t.Errorf("iteration %d saw %v", i, got)
				}
			}
			if got := units[4].Actions[0].Value; got != "outer" {
				t.Errorf("x after loop = %v, want outer", got)
			}
		})
	}
}

func TestLoopSources(t *testing.T) {
	f := newFixture(t)
	loopOver := func(name string) model.Pipeline {
		u := unitOf("u1", copyTo("a1", "x", constant("1")))
		u.LoopVariableName = name
		return pipelineOf("p", topicOrders, model.TriggerInsert, stageOf("s1", u, unitOf("u2", copyTo("a2", "y", constant("2")))))
	}

	t.Run("absent runs zero times", func(t *testing.T) {
		p := loopOver("nothing")
		result := f.run(t, &p, nil, map[string]any{"name": "A"})
		if result.Err != nil {
			t.Fatalf("Run() error = %v", result.Err)
		}
		units := result.Log.Stages[0].Units
		if len(units) != 2 || units[0].Status != monitor.StatusDone || len(units[0].Actions) != 0 {
			t.Errorf("units = %d, first = %+v", len(units), units[0])
		}
	})

	t.Run("scalar fails the unit", func(t *testing.T) {
		p := loopOver("name")
		result := f.run(t, &p, nil, map[string]any{"name": "A"})
		if !apperrors.IsCode(result.Err, apperrors.ErrCodeInvalidLoopSource) {
			t.Fatalf("Run() error = %v, want invalid loop source", result.Err)
		}
		units := result.Log.Stages[0].Units
		if len(units) != 1 || units[0].Status != monitor.StatusError {
			t.Errorf("units = %d, first = %s", len(units), units[0].Status)
		}
	})

	t.Run("failed iteration stops the loop", func(t *testing.T) {
		u := unitOf("u1", model.Action{ActionID: "a1", Type: model.ActionReadRow, VariableName: "row", TopicID: topicSummary,
			By: equals(topicParam(topicSummary, "s-title"), constant("{items}"))})
		u.LoopVariableName = "items"
		p := pipelineOf("p", topicOrders, model.TriggerInsert, stageOf("s1", u))
		f.seed(t, f.summary, map[string]any{"title": "a"})

		result := f.run(t, &p, nil, map[string]any{"items": []any{"a", "b", "a"}})
		if !apperrors.IsCode(result.Err, apperrors.ErrCodeNotFound) {
			t.Fatalf("Run() error = %v", result.Err)
		}
		units := result.Log.Stages[0].Units
		if len(units) != 2 || units[0].Status != monitor.StatusDone || units[1].Status != monitor.StatusError {
			t.Errorf("iterations = %d", len(units))
		}
	})
}

func iterationLog(item any) *monitor.UnitLog {
	log := monitor.NewUnitLog(&model.Unit{UnitID: "u"})
	log.LoopVariableValue = item
	log.Done()
	return log
}

func TestParallelLoop(t *testing.T) {
	t.Run("keeps item order", func(t *testing.T) {
		items := make([]any, 20)
		for i := range items {
			items[i] = i
		}
		var running, peak atomic.Int32
		logs, err := ParallelLoop{Limit: 3}.Run(context.Background(), items, func(_ context.Context, item any) (*monitor.UnitLog, error) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			defer running.Add(-1)
			return iterationLog(item), nil
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(logs) != len(items) {
			t.Fatalf("logs = %d, want %d", len(logs), len(items))
		}
		for i, log := range logs {
			if log.LoopVariableValue != i {
				t.Errorf("logs[%d] = %v", i, log.LoopVariableValue)
			}
		}
		if peak.Load() > 3 {
			t.Errorf("peak concurrency = %d, want <= 3", peak.Load())
		}
	})

	t.Run("skips iterations after a failure", func(t *testing.T) {
		boom := errors.New("boom")
		var calls atomic.Int32
		logs, err := ParallelLoop{Limit: 1}.Run(context.Background(), []any{1, 2, 3}, func(_ context.Context, item any) (*monitor.UnitLog, error) {
			calls.Add(1)
			log := iterationLog(item)
			if item == 1 {
				log.Fail(boom, "")
				return log, boom
			}
			return log, nil
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Run() error = %v", err)
		}
		if calls.Load() != 1 || len(logs) != 1 {
			t.Errorf("calls = %d, logs = %d, want 1 and 1", calls.Load(), len(logs))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		logs, err := ParallelLoop{}.Run(ctx, []any{1, 2}, func(_ context.Context, item any) (*monitor.UnitLog, error) {
			return iterationLog(item), nil
		})
		if !errors.Is(err, context.Canceled) || len(logs) != 0 {
			t.Errorf("Run() = %d logs, %v", len(logs), err)
		}
	})
}

func TestSequentialLoopStopsAtFailure(t *testing.T) {
	boom := errors.New("boom")
	logs, err := SequentialLoop{}.Run(context.Background(), []any{1, 2, 3}, func(_ context.Context, item any) (*monitor.UnitLog, error) {
		if item == 2 {
			return iterationLog(item), boom
		}
		return iterationLog(item), nil
	})
	if !errors.Is(err, boom) || len(logs) != 2 {
		t.Errorf("Run() = %d logs, %v", len(logs), err)
	}
}
