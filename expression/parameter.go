package expression

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/value"
	"github.com/watchmen-go/kernel/variables"
)

// NowToken resolves to the evaluation time inside a constant.
const NowToken = "&now"

var placeholder = regexp.MustCompile(`\{([^{}]+)\}`)

// CompileParameter compiles a parameter for in-memory evaluation.
func (c *Compiler) CompileParameter(ctx context.Context, param *model.Parameter) (ValueFunc, error) {
	if param == nil {
		return func(*variables.PipelineVariables, principal.Principal) (any, error) { return nil, nil }, nil
	}
	switch param.Kind {
	case model.ParameterTopic:
		return c.compileTopicParameter(ctx, param)
	case model.ParameterConstant:
		return compileConstant(param.Value), nil
	case model.ParameterComputed:
		return c.compileComputed(ctx, param)
	case model.ParameterExpression:
		return compileExpression(param.Expression)
	}
	return nil, apperrors.InvalidDefinition(fmt.Sprintf("unsupported parameter kind %q", param.Kind))
}

// PathFunc reports the dotted path a copied value came from.
type PathFunc func(vars *variables.PipelineVariables) (string, bool)

// CompileSourcePath compiles the provenance of a parameter that is a plain
// reference: a topic factor or a constant holding exactly one {path}.
// Chained variables resolve through their own provenance when the returned
// func runs. Other parameters have no path.
func (c *Compiler) CompileSourcePath(ctx context.Context, param *model.Parameter) (PathFunc, error) {
	none := func(*variables.PipelineVariables) (string, bool) { return "", false }
	if param == nil {
		return none, nil
	}
	switch param.Kind {
	case model.ParameterTopic:
		_, factor, err := c.factorOf(ctx, param.TopicID, param.FactorID)
		if err != nil {
			return nil, err
		}
		from := "current." + factor.Name
		return func(*variables.PipelineVariables) (string, bool) { return from, true }, nil
	case model.ParameterConstant:
		path, ok := singlePath(param.Value)
		if !ok || path == NowToken {
			return none, nil
		}
		head, rest, _ := strings.Cut(path, ".")
		switch head {
		case variables.PreviousPrefix:
			return func(*variables.PipelineVariables) (string, bool) { return "previous." + rest, rest != "" }, nil
		case variables.CurrentPrefix:
			return func(*variables.PipelineVariables) (string, bool) { return "current." + rest, rest != "" }, nil
		}
		return func(vars *variables.PipelineVariables) (string, bool) {
			if _, isVar := vars.Get(head); !isVar {
				return "current." + path, true
			}
			if from, traced := vars.TraceFrom(path); traced {
				return from, true
			}
			return path, true
		}, nil
	}
	return none, nil
}

func (c *Compiler) compileTopicParameter(ctx context.Context, param *model.Parameter) (ValueFunc, error) {
	_, factor, err := c.factorOf(ctx, param.TopicID, param.FactorID)
	if err != nil {
		return nil, err
	}
	name := factor.Name
	return func(vars *variables.PipelineVariables, _ principal.Principal) (any, error) {
		current := vars.Current()
		if current == nil {
			return nil, nil
		}
		if v, ok := current[name]; ok {
			return v, nil
		}
		v, _ := value.Lookup(current, name)
		return v, nil
	}, nil
}

// singlePath reports whether s is exactly one {path} placeholder.
func singlePath(s string) (string, bool) {
	s = strings.TrimSpace(s)
	m := placeholder.FindStringSubmatchIndex(s)
	if m == nil || m[0] != 0 || m[1] != len(s) {
		return "", false
	}
	return strings.TrimSpace(s[m[2]:m[3]]), true
}

func resolvePath(vars *variables.PipelineVariables, path string) any {
	if path == NowToken {
		return time.Now()
	}
	v, _ := vars.Resolve(path)
	return v
}

// compileConstant substitutes {path} references. A constant that is exactly
// one reference yields the referenced value with its type intact.
func compileConstant(text string) ValueFunc {
	if path, ok := singlePath(text); ok {
		return func(vars *variables.PipelineVariables, _ principal.Principal) (any, error) {
			return resolvePath(vars, path), nil
		}
	}
	if !placeholder.MatchString(text) {
		return func(*variables.PipelineVariables, principal.Principal) (any, error) {
			if text == "" {
				return nil, nil
			}
			return text, nil
		}
	}
	return func(vars *variables.PipelineVariables, _ principal.Principal) (any, error) {
		return placeholder.ReplaceAllStringFunc(text, func(match string) string {
			path := strings.TrimSpace(match[1 : len(match)-1])
			return value.ToString(resolvePath(vars, path))
		}), nil
	}
}

// compileExpression compiles an expr-lang program once. The program sees
// every variable at the top level, plus current, previous, variables and
// principal.
func compileExpression(source string) (ValueFunc, error) {
	if strings.TrimSpace(source) == "" {
		return nil, apperrors.InvalidDefinition("expression parameter is empty")
	}
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("invalid expression %q", source)).WithCause(err)
	}
	return func(vars *variables.PipelineVariables, p principal.Principal) (any, error) {
		return runProgram(program, source, vars, p)
	}, nil
}

func runProgram(program *vm.Program, source string, vars *variables.PipelineVariables, p principal.Principal) (any, error) {
	env := vars.Env()
	env["principal"] = map[string]any{
		"tenantId": p.TenantID,
		"userId":   p.UserID,
		"name":     p.Name,
		"role":     string(p.Role),
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, apperrors.Evaluation(fmt.Sprintf("expression %q", source), err)
	}
	return out, nil
}

func (c *Compiler) compileComputed(ctx context.Context, param *model.Parameter) (ValueFunc, error) {
	switch param.Type {
	case model.ComputeAdd, model.ComputeSubtract, model.ComputeMultiply, model.ComputeDivide, model.ComputeModulus:
		return c.compileArithmetic(ctx, param)
	case model.ComputeYearOf, model.ComputeHalfYearOf, model.ComputeQuarterOf, model.ComputeMonthOf,
		model.ComputeWeekOfYear, model.ComputeDayOfMonth, model.ComputeDayOfWeek:
		return c.compileDatePart(ctx, param)
	case model.ComputeCaseThen:
		return c.compileCaseThen(ctx, param)
	}
	return nil, apperrors.InvalidDefinition(fmt.Sprintf("unsupported computation %q", param.Type))
}

func (c *Compiler) compileAll(ctx context.Context, params []model.Parameter) ([]ValueFunc, error) {
	out := make([]ValueFunc, len(params))
	for i := range params {
		fn, err := c.CompileParameter(ctx, &params[i])
		if err != nil {
			return nil, err
		}
		out[i] = fn
	}
	return out, nil
}

func (c *Compiler) compileArithmetic(ctx context.Context, param *model.Parameter) (ValueFunc, error) {
	if len(param.Parameters) < 2 {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("%s requires at least two parameters", param.Type))
	}
	operands, err := c.compileAll(ctx, param.Parameters)
	if err != nil {
		return nil, err
	}
	op := string(param.Type)
	return func(vars *variables.PipelineVariables, p principal.Principal) (any, error) {
		var acc value.Number
		for i, operand := range operands {
			raw, err := operand(vars, p)
			if err != nil {
				return nil, err
			}
			n, err := value.MustNumber(op, raw)
			if err != nil {
				return nil, apperrors.Evaluation(op, err)
			}
			if i == 0 {
				acc = n
				continue
			}
			switch param.Type {
			case model.ComputeAdd:
				acc = value.Add(acc, n)
			case model.ComputeSubtract:
				acc = value.Subtract(acc, n)
			case model.ComputeMultiply:
				acc = value.Multiply(acc, n)
			case model.ComputeDivide:
				acc, err = value.Divide(acc, n)
			case model.ComputeModulus:
				acc, err = value.Modulus(acc, n)
			}
			if err != nil {
				return nil, apperrors.Evaluation(op, err)
			}
		}
		return acc.Value(), nil
	}, nil
}

func (c *Compiler) compileDatePart(ctx context.Context, param *model.Parameter) (ValueFunc, error) {
	if len(param.Parameters) != 1 {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("%s requires exactly one parameter", param.Type))
	}
	source, err := c.CompileParameter(ctx, &param.Parameters[0])
	if err != nil {
		return nil, err
	}
	kind := param.Type
	return func(vars *variables.PipelineVariables, p principal.Principal) (any, error) {
		raw, err := source(vars, p)
		if err != nil {
			return nil, err
		}
		if value.IsEmpty(raw) {
			return nil, nil
		}
		t, ok := value.ToTime(raw)
		if !ok {
			return nil, apperrors.Evaluation(fmt.Sprintf("%s of %v", kind, raw), fmt.Errorf("not a date"))
		}
		return int64(datePart(kind, t)), nil
	}, nil
}

func datePart(kind model.ComputeType, t time.Time) int {
	switch kind {
	case model.ComputeYearOf:
		return t.Year()
	case model.ComputeHalfYearOf:
		if t.Month() <= 6 {
			return 1
		}
		return 2
	case model.ComputeQuarterOf:
		return (int(t.Month())-1)/3 + 1
	case model.ComputeMonthOf:
		return int(t.Month())
	case model.ComputeWeekOfYear:
		_, week := t.ISOWeek()
		return week
	case model.ComputeDayOfMonth:
		return t.Day()
	default:
		// Sunday is 1
		return int(t.Weekday()) + 1
	}
}

func (c *Compiler) compileCaseThen(ctx context.Context, param *model.Parameter) (ValueFunc, error) {
	type branch struct {
		when PredicateFunc
		then ValueFunc
	}
	var branches []branch
	var otherwise ValueFunc
	for i := range param.Parameters {
		sub := param.Parameters[i]
		then, err := c.CompileParameter(ctx, &sub)
		if err != nil {
			return nil, err
		}
		if !sub.Conditional || sub.On == nil {
			if otherwise != nil {
				return nil, apperrors.InvalidDefinition("case-then allows one default branch")
			}
			otherwise = then
			continue
		}
		when, err := c.CompilePrerequisite(ctx, true, sub.On)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch{when: when, then: then})
	}
	return func(vars *variables.PipelineVariables, p principal.Principal) (any, error) {
		for _, b := range branches {
			ok, err := b.when(vars, p)
			if err != nil {
				return nil, err
			}
			if ok {
				return b.then(vars, p)
			}
		}
		if otherwise != nil {
			return otherwise(vars, p)
		}
		return nil, nil
	}, nil
}
