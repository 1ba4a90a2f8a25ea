package kernel

import (
	"context"
	"fmt"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/topicdata"
	"github.com/watchmen-go/kernel/value"
)

// readRowsAction implements exists, read-row and read-rows.
type readRowsAction struct {
	kernel   *Kernel
	action   *model.Action
	topic    *model.Topic
	criteria expression.CriteriaFunc
}

func (k *Kernel) parseReadRows(ctx context.Context, action *model.Action) (compiledAction, error) {
	if action.VariableName == "" {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("%s requires a variable name", action.Type))
	}
	topic, err := k.targetTopic(ctx, action)
	if err != nil {
		return nil, err
	}
	criteria, err := k.compiler.CompileCriteria(ctx, topic, action.By)
	if err != nil {
		return nil, err
	}
	return &readRowsAction{kernel: k, action: action, topic: topic, criteria: criteria}, nil
}

func (a *readRowsAction) definition() *model.Action { return a.action }

func (a *readRowsAction) run(ctx context.Context, s *scope, log *monitor.ActionLog) error {
	criteria, err := a.criteria(s.vars, s.principal)
	if err != nil {
		return err
	}
	svc, err := s.service(ctx, a.topic)
	if err != nil {
		return err
	}

	if a.action.Type == model.ActionExists {
		exists, err := svc.Exists(ctx, criteria)
		if err != nil {
			return err
		}
		s.vars.Put(a.action.VariableName, exists)
		log.Value = exists
		return nil
	}

	rows, err := svc.Find(ctx, criteria)
	if err != nil {
		return err
	}
	for i := range rows {
		if rows[i], err = a.kernel.open(a.topic, rows[i]); err != nil {
			return err
		}
	}

	if a.action.Type == model.ActionReadRow {
		switch len(rows) {
		case 0:
			return apperrors.NotFound(a.topic.Name, criteria.String())
		case 1:
			s.vars.Put(a.action.VariableName, rows[0])
			log.Value = rows[0]
			return nil
		default:
			return apperrors.TooManyMatches(a.topic.Name, len(rows))
		}
	}

	list := make([]any, len(rows))
	for i, row := range rows {
		list[i] = row
	}
	s.vars.Put(a.action.VariableName, list)
	log.Value = list
	return nil
}

// readFactorAction implements read-factor and read-factors.
type readFactorAction struct {
	kernel   *Kernel
	action   *model.Action
	topic    *model.Topic
	factor   *model.Factor
	criteria expression.CriteriaFunc
}

func (k *Kernel) parseReadFactor(ctx context.Context, action *model.Action) (compiledAction, error) {
	if action.VariableName == "" {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("%s requires a variable name", action.Type))
	}
	topic, err := k.targetTopic(ctx, action)
	if err != nil {
		return nil, err
	}
	factor, err := targetFactor(topic, action)
	if err != nil {
		return nil, err
	}
	criteria, err := k.compiler.CompileCriteria(ctx, topic, action.By)
	if err != nil {
		return nil, err
	}
	return &readFactorAction{kernel: k, action: action, topic: topic, factor: factor, criteria: criteria}, nil
}

func (a *readFactorAction) definition() *model.Action { return a.action }

func (a *readFactorAction) run(ctx context.Context, s *scope, log *monitor.ActionLog) error {
	criteria, err := a.criteria(s.vars, s.principal)
	if err != nil {
		return err
	}
	svc, err := s.service(ctx, a.topic)
	if err != nil {
		return err
	}
	values, err := a.values(ctx, svc, criteria)
	if err != nil {
		return err
	}

	var result any
	switch {
	case a.action.Type == model.ActionReadFactors:
		result = values
	case !a.action.Arithmetic.IsNone():
		if result, err = aggregate(a.action.Arithmetic, values); err != nil {
			return apperrors.Evaluation(fmt.Sprintf("%s of factor %s", a.action.Arithmetic, a.factor.Name), err)
		}
	default:
		switch len(values) {
		case 0:
			result = nil
		case 1:
			result = values[0]
		default:
			return apperrors.TooManyMatches(a.topic.Name, len(values))
		}
	}
	s.vars.Put(a.action.VariableName, result)
	log.Value = result
	return nil
}

func (a *readFactorAction) values(ctx context.Context, svc topicdata.Service, criteria topicdata.Criteria) ([]any, error) {
	rows, err := svc.FindStraightValues(ctx, []string{a.factor.Name}, criteria)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		opened, err := a.kernel.open(a.topic, row)
		if err != nil {
			return nil, err
		}
		out = append(out, opened[a.factor.Name])
	}
	return out, nil
}

// aggregate folds values read by a read-factor action. Empty values are
// ignored except by count.
func aggregate(arithmetic model.Arithmetic, values []any) (any, error) {
	if arithmetic == model.ArithmeticCount {
		return int64(len(values)), nil
	}
	var (
		acc   value.Number
		n     int64
		best  any
		first = true
	)
	for _, v := range values {
		if value.IsEmpty(v) {
			continue
		}
		switch arithmetic {
		case model.ArithmeticMax, model.ArithmeticMin:
			if first {
				best, first = v, false
				continue
			}
			cmp, err := value.Compare(v, best)
			if err != nil {
				return nil, err
			}
			if (arithmetic == model.ArithmeticMax && cmp > 0) || (arithmetic == model.ArithmeticMin && cmp < 0) {
				best = v
			}
		default:
			num, err := value.MustNumber(string(arithmetic), v)
			if err != nil {
				return nil, err
			}
			acc = value.Add(acc, num)
			n++
		}
	}
	switch arithmetic {
	case model.ArithmeticMax, model.ArithmeticMin:
		return best, nil
	case model.ArithmeticSum:
		return acc.Value(), nil
	case model.ArithmeticAverage:
		if n == 0 {
			return nil, nil
		}
		avg, err := value.Divide(acc, value.Int(n))
		if err != nil {
			return nil, err
		}
		return avg.Value(), nil
	}
	return nil, fmt.Errorf("unsupported arithmetic %q", arithmetic)
}

// open decrypts the reversible factors of a row read by an action when
// configured to.
func (k *Kernel) open(topic *model.Topic, row map[string]any) (map[string]any, error) {
	if !k.cfg.DecryptFactorValue {
		return row, nil
	}
	return k.crypto.Decrypt(topic, row)
}
