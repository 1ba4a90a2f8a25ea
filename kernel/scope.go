package kernel

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/topicdata"
	"github.com/watchmen-go/kernel/variables"
)

// scope is what the levels of one run see. Loop iterations get a copy
// with their own variables; the trigger collector is shared.
type scope struct {
	kernel    *Kernel
	pipeline  *model.Pipeline
	principal principal.Principal
	traceID   string
	dataID    string
	vars      *variables.PipelineVariables
	triggers  *triggerCollector
	log       *logger.Logger
}

func (s *scope) withVars(vars *variables.PipelineVariables) *scope {
	c := *s
	c.vars = vars
	return &c
}

func (s *scope) service(ctx context.Context, topic *model.Topic) (topicdata.Service, error) {
	return s.kernel.storage.ServiceFor(ctx, topic, s.principal)
}

// emit records a persisted change for cascading.
func (s *scope) emit(topic *model.Topic, trigger model.TopicTrigger) {
	s.triggers.add(topic, trigger)
}

type collectedTrigger struct {
	topic   *model.Topic
	trigger model.TopicTrigger
}

// triggerCollector gathers the triggers of a run in emission order. Parallel
// loop iterations write to it concurrently.
type triggerCollector struct {
	mu    sync.Mutex
	items []collectedTrigger
}

func (c *triggerCollector) add(topic *model.Topic, trigger model.TopicTrigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, collectedTrigger{topic: topic, trigger: trigger})
}

func (c *triggerCollector) all() []collectedTrigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]collectedTrigger, len(c.items))
	copy(out, c.items)
	return out
}

// evaluate runs a compiled prerequisite. Failures and panics come back as
// an error with its stack text.
func evaluate(when expression.PredicateFunc, s *scope) (ok bool, stack string, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			stack = string(debug.Stack())
			err = apperrors.Internal(fmt.Errorf("prerequisite panicked: %v", r))
		}
	}()
	if ok, err = when(s.vars, s.principal); err != nil {
		return false, stackOf(err), err
	}
	return ok, "", nil
}
