package kernel

import (
	"context"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/value"
	"github.com/watchmen-go/kernel/variables"
)

// LoopSourceKind tags what a loop variable resolved to.
type LoopSourceKind int

const (
	// LoopAbsent means the variable is missing or nil; the loop runs zero times.
	LoopAbsent LoopSourceKind = iota
	// LoopList means the variable holds a list to iterate.
	LoopList
	// LoopInvalid means the variable holds something that is not a list.
	LoopInvalid
)

func (k LoopSourceKind) String() string {
	switch k {
	case LoopAbsent:
		return "absent"
	case LoopList:
		return "list"
	default:
		return "invalid"
	}
}

// LoopSource is a loop variable resolved once before its iterations are
// dispatched.
type LoopSource struct {
	Kind  LoopSourceKind
	Items []any
	// Value is the offending value of an invalid source.
	Value any
}

// ResolveLoopSource reads the loop variable name from vars.
func ResolveLoopSource(vars *variables.PipelineVariables, name string) LoopSource {
	v, ok := vars.Resolve(name)
	if !ok || v == nil {
		return LoopSource{Kind: LoopAbsent}
	}
	items, ok := value.ToList(v)
	if !ok {
		return LoopSource{Kind: LoopInvalid, Value: v}
	}
	return LoopSource{Kind: LoopList, Items: items}
}

type compiledUnit struct {
	definition *model.Unit
	when       expression.PredicateFunc
	actions    []compiledAction
	loop       LoopStrategy
}

// run executes the unit and returns one log per execution: a single log
// for plain units and for absent or invalid loop sources, one per item
// otherwise.
func (u *compiledUnit) run(ctx context.Context, s *scope) ([]*monitor.UnitLog, error) {
	if !u.definition.HasLoop() {
		log, err := u.runOnce(ctx, s)
		return []*monitor.UnitLog{log}, err
	}

	name := u.definition.LoopVariableName
	source := ResolveLoopSource(s.vars, name)
	switch source.Kind {
	case LoopAbsent:
		log := monitor.NewUnitLog(u.definition)
		log.Done()
		return []*monitor.UnitLog{log}, nil
	case LoopInvalid:
		err := apperrors.InvalidLoopSource(name, source.Value)
		log := monitor.NewUnitLog(u.definition)
		log.Fail(err, apperrors.StackOf(err))
		s.log.Error("loop variable is not a list", logger.Fields(
			logger.FieldUnit, u.definition.UnitID,
			logger.FieldError, err.Error(),
		))
		return []*monitor.UnitLog{log}, err
	}

	return u.loop.Run(ctx, source.Items, func(ctx context.Context, item any) (*monitor.UnitLog, error) {
		vars := s.vars.Clone()
		vars.Put(name, item)
		log, err := u.runOnce(ctx, s.withVars(vars))
		log.LoopVariableValue = item
		return log, err
	})
}

// runOnce tests the prerequisite and runs the actions in order, stopping at
// the first failure.
func (u *compiledUnit) runOnce(ctx context.Context, s *scope) (*monitor.UnitLog, error) {
	log := monitor.NewUnitLog(u.definition)
	ok, stack, err := evaluate(u.when, s)
	if err != nil {
		log.Fail(err, stack)
		return log, err
	}
	if !ok {
		log.Skip()
		return log, nil
	}
	for _, action := range u.actions {
		if err := safeRun(ctx, action, s, log); err != nil {
			log.Fail(err, apperrors.StackOf(err))
			return log, err
		}
	}
	log.Done()
	return log, nil
}
