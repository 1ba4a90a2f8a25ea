package expression

import (
	"context"
	"fmt"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/topicdata"
	"github.com/watchmen-go/kernel/variables"
)

// CompilePrerequisite compiles the gate of a pipeline, stage, unit or alarm.
// A non-conditional element, or one without filters, always passes.
func (c *Compiler) CompilePrerequisite(ctx context.Context, conditional bool, on *model.ParameterJoint) (PredicateFunc, error) {
	if !conditional || on == nil || len(on.Filters) == 0 {
		return Always, nil
	}
	return c.compileJoint(ctx, on.JointType, on.Filters)
}

func (c *Compiler) compileJoint(ctx context.Context, joint model.JointType, filters []model.ParameterCondition) (PredicateFunc, error) {
	children := make([]PredicateFunc, 0, len(filters))
	for i := range filters {
		child, err := c.compileCondition(ctx, &filters[i])
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	disjunction := joint == model.JointOr
	return func(vars *variables.PipelineVariables, p principal.Principal) (bool, error) {
		for _, child := range children {
			ok, err := child(vars, p)
			if err != nil {
				return false, err
			}
			if disjunction && ok {
				return true, nil
			}
			if !disjunction && !ok {
				return false, nil
			}
		}
		return !disjunction || len(children) == 0, nil
	}, nil
}

func (c *Compiler) compileCondition(ctx context.Context, cond *model.ParameterCondition) (PredicateFunc, error) {
	if cond.IsJoint() {
		return c.compileJoint(ctx, cond.JointType, cond.Filters)
	}
	if cond.Left == nil || cond.Operator == "" {
		return nil, apperrors.InvalidDefinition("condition requires left and operator")
	}
	left, err := c.CompileParameter(ctx, cond.Left)
	if err != nil {
		return nil, err
	}
	right, err := c.CompileParameter(ctx, cond.Right)
	if err != nil {
		return nil, err
	}
	op := cond.Operator
	return func(vars *variables.PipelineVariables, p principal.Principal) (bool, error) {
		l, err := left(vars, p)
		if err != nil {
			return false, err
		}
		var r any
		if !op.Unary() {
			if r, err = right(vars, p); err != nil {
				return false, err
			}
		}
		ok, err := topicdata.ApplyOperator(op, l, r)
		if err != nil {
			return false, apperrors.Evaluation(fmt.Sprintf("condition %s", op), err)
		}
		return ok, nil
	}, nil
}

// CompileCriteria compiles the by-condition of a read, write or delete
// action against its target topic. Each comparison must reference a factor
// of the target topic on one side; the other side is evaluated in memory.
// A nil joint matches every row.
func (c *Compiler) CompileCriteria(ctx context.Context, target *model.Topic, by *model.ParameterJoint) (CriteriaFunc, error) {
	if by == nil || len(by.Filters) == 0 {
		return func(*variables.PipelineVariables, principal.Principal) (topicdata.Criteria, error) {
			return topicdata.Criteria{}, nil
		}, nil
	}
	return c.compileCriteriaJoint(ctx, target, by.JointType, by.Filters)
}

func (c *Compiler) compileCriteriaJoint(ctx context.Context, target *model.Topic, joint model.JointType, filters []model.ParameterCondition) (CriteriaFunc, error) {
	if joint == "" {
		joint = model.JointAnd
	}
	children := make([]CriteriaFunc, 0, len(filters))
	for i := range filters {
		var child CriteriaFunc
		var err error
		if filters[i].IsJoint() {
			child, err = c.compileCriteriaJoint(ctx, target, filters[i].JointType, filters[i].Filters)
		} else {
			child, err = c.compileCriteriaLeaf(ctx, target, &filters[i])
		}
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return func(vars *variables.PipelineVariables, p principal.Principal) (topicdata.Criteria, error) {
		out := topicdata.Criteria{Joint: joint, Children: make([]topicdata.Criteria, 0, len(children))}
		for _, child := range children {
			criteria, err := child(vars, p)
			if err != nil {
				return topicdata.Criteria{}, err
			}
			out.Children = append(out.Children, criteria)
		}
		return out, nil
	}, nil
}

// columnOf returns the target factor name when param references the target topic.
func (c *Compiler) columnOf(ctx context.Context, target *model.Topic, param *model.Parameter) (string, bool, error) {
	if param == nil || param.Kind != model.ParameterTopic || param.TopicID != target.TopicID {
		return "", false, nil
	}
	factor, ok := target.FactorByID(param.FactorID)
	if !ok {
		return "", false, apperrors.NotFound(fmt.Sprintf("factor of topic %s", target.Name), param.FactorID)
	}
	return factor.Name, true, nil
}

func (c *Compiler) compileCriteriaLeaf(ctx context.Context, target *model.Topic, cond *model.ParameterCondition) (CriteriaFunc, error) {
	op := cond.Operator
	column, ok, err := c.columnOf(ctx, target, cond.Left)
	if err != nil {
		return nil, err
	}
	other := cond.Right
	if !ok {
		column, ok, err = c.columnOf(ctx, target, cond.Right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperrors.InvalidDefinition(fmt.Sprintf("condition must reference a factor of topic %s", target.Name))
		}
		reversed, canReverse := op.Reverse()
		if !canReverse {
			return nil, apperrors.InvalidDefinition(fmt.Sprintf("operator %s requires the topic factor on the left", op))
		}
		op = reversed
		other = cond.Left
	}
	if op.Unary() {
		return func(*variables.PipelineVariables, principal.Principal) (topicdata.Criteria, error) {
			return topicdata.Where(column, op, nil), nil
		}, nil
	}
	right, err := c.CompileParameter(ctx, other)
	if err != nil {
		return nil, err
	}
	return func(vars *variables.PipelineVariables, p principal.Principal) (topicdata.Criteria, error) {
		v, err := right(vars, p)
		if err != nil {
			return topicdata.Criteria{}, err
		}
		return topicdata.Where(column, op, v), nil
	}, nil
}

// CompileMapping compiles the factor mapping of a write action.
func (c *Compiler) CompileMapping(ctx context.Context, target *model.Topic, mapping []model.MappingFactor) (MappingFunc, error) {
	type entry struct {
		factor     model.Factor
		source     ValueFunc
		arithmetic model.Arithmetic
	}
	entries := make([]entry, 0, len(mapping))
	for i := range mapping {
		m := mapping[i]
		factor, ok := target.FactorByID(m.FactorID)
		if !ok {
			return nil, apperrors.NotFound(fmt.Sprintf("factor of topic %s", target.Name), m.FactorID)
		}
		source, err := c.CompileParameter(ctx, m.Source)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{factor: *factor, source: source, arithmetic: m.Arithmetic})
	}
	return func(vars *variables.PipelineVariables, p principal.Principal) ([]MappedValue, error) {
		out := make([]MappedValue, 0, len(entries))
		for _, e := range entries {
			v, err := e.source(vars, p)
			if err != nil {
				return nil, err
			}
			out = append(out, MappedValue{Factor: e.factor, Value: v, Arithmetic: e.arithmetic})
		}
		return out, nil
	}, nil
}
