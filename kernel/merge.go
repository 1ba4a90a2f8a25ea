package kernel

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/resilience"
	"github.com/watchmen-go/kernel/topicdata"
	"github.com/watchmen-go/kernel/value"
)

const (
	assistSum   = "sum"
	assistCount = "count"
)

// applyMapping writes mapped values into row. With existing set the
// arithmetic factors accumulate onto the values already in row, and when
// previous is given its contribution is taken back first, so a merge
// trigger replaces rather than adds. Average keeps its running sum and
// count under the aggregate assist column.
func applyMapping(row map[string]any, mapped, previous []expression.MappedValue, existing bool) (map[string]any, error) {
	var assist map[string]any
	if raw, ok := row[model.ColumnAggregateAssist].(map[string]any); ok {
		assist = value.CopyMap(raw)
	}

	for i, m := range mapped {
		name := m.Factor.Name
		if m.Arithmetic.IsNone() {
			row[name] = m.Value
			continue
		}
		var prev any
		rollback := existing && i < len(previous)
		if rollback {
			prev = previous[i].Value
		}

		switch m.Arithmetic {
		case model.ArithmeticSum:
			v, err := numberOf(name, m.Value)
			if err != nil {
				return nil, err
			}
			if !existing {
				row[name] = v.Value()
				continue
			}
			old, err := numberOf(name, row[name])
			if err != nil {
				return nil, err
			}
			sum := value.Add(old, v)
			if rollback {
				p, err := numberOf(name, prev)
				if err != nil {
					return nil, err
				}
				sum = value.Subtract(sum, p)
			}
			row[name] = sum.Value()

		case model.ArithmeticCount:
			if !existing {
				row[name] = int64(1)
				continue
			}
			old, err := numberOf(name, row[name])
			if err != nil {
				return nil, err
			}
			if !rollback {
				old = value.Add(old, value.Int(1))
			}
			row[name] = old.Value()

		case model.ArithmeticAverage:
			v, err := numberOf(name, m.Value)
			if err != nil {
				return nil, err
			}
			sum, count := v, value.Int(1)
			if existing {
				if sum, count, err = assistOf(assist, name, row[name]); err != nil {
					return nil, err
				}
				sum = value.Add(sum, v)
				if rollback {
					p, err := numberOf(name, prev)
					if err != nil {
						return nil, err
					}
					sum = value.Subtract(sum, p)
				} else {
					count = value.Add(count, value.Int(1))
				}
			}
			if assist == nil {
				assist = map[string]any{}
			}
			if err := setAverage(row, assist, name, sum, count); err != nil {
				return nil, err
			}

		case model.ArithmeticMax, model.ArithmeticMin:
			if value.IsEmpty(m.Value) {
				continue
			}
			old := row[name]
			if !existing || value.IsEmpty(old) {
				row[name] = m.Value
				continue
			}
			cmp, err := value.Compare(m.Value, old)
			if err != nil {
				return nil, apperrors.Evaluation(fmt.Sprintf("%s of factor %s", m.Arithmetic, name), err)
			}
			if (m.Arithmetic == model.ArithmeticMax && cmp > 0) || (m.Arithmetic == model.ArithmeticMin && cmp < 0) {
				row[name] = m.Value
			}

		default:
			return nil, apperrors.InvalidDefinition(fmt.Sprintf("unsupported arithmetic %q on factor %s", m.Arithmetic, name))
		}
	}

	if len(assist) > 0 {
		row[model.ColumnAggregateAssist] = assist
	}
	return row, nil
}

// rowUpdate changes the opened values of a stored row and returns the
// factors it touched.
type rowUpdate func(row map[string]any) ([]string, error)

// accumulate merges mapped onto the row, replacing the contribution of
// previous when it is given.
func accumulate(mapped, previous []expression.MappedValue) rowUpdate {
	return func(row map[string]any) ([]string, error) {
		if _, err := applyMapping(row, mapped, previous, true); err != nil {
			return nil, err
		}
		names := make([]string, len(mapped))
		for i, m := range mapped {
			names[i] = m.Factor.Name
		}
		return names, nil
	}
}

// retract takes the contribution of previous back from the sum, count and
// avg factors of the row. Other factors are left as stored.
func retract(previous []expression.MappedValue) rowUpdate {
	return func(row map[string]any) ([]string, error) {
		assist := map[string]any{}
		if raw, ok := row[model.ColumnAggregateAssist].(map[string]any); ok {
			assist = value.CopyMap(raw)
		}
		var names []string
		for _, m := range previous {
			name := m.Factor.Name
			switch m.Arithmetic {
			case model.ArithmeticSum:
				old, err := numberOf(name, row[name])
				if err != nil {
					return nil, err
				}
				p, err := numberOf(name, m.Value)
				if err != nil {
					return nil, err
				}
				row[name] = value.Subtract(old, p).Value()
			case model.ArithmeticCount:
				old, err := numberOf(name, row[name])
				if err != nil {
					return nil, err
				}
				row[name] = value.Subtract(old, value.Int(1)).Value()
			case model.ArithmeticAverage:
				sum, count, err := assistOf(assist, name, row[name])
				if err != nil {
					return nil, err
				}
				p, err := numberOf(name, m.Value)
				if err != nil {
					return nil, err
				}
				if err := setAverage(row, assist, name, value.Subtract(sum, p), value.Subtract(count, value.Int(1))); err != nil {
					return nil, err
				}
			default:
				continue
			}
			names = append(names, name)
		}
		if len(assist) > 0 {
			row[model.ColumnAggregateAssist] = assist
		}
		return names, nil
	}
}

// setAverage stores the running sum and count of an average factor and
// the average they give. An empty group has no average.
func setAverage(row, assist map[string]any, name string, sum, count value.Number) error {
	assist[name] = map[string]any{assistSum: sum.Value(), assistCount: count.Value()}
	if count.IsZero() {
		row[name] = nil
		return nil
	}
	avg, err := value.Divide(sum, count)
	if err != nil {
		return apperrors.Evaluation("avg of factor "+name, err)
	}
	row[name] = avg.Value()
	return nil
}

// assistOf reads the running sum and count of an average factor. Rows
// written before the factor was averaged count their current value once.
func assistOf(assist map[string]any, name string, current any) (value.Number, value.Number, error) {
	if entry, ok := assist[name].(map[string]any); ok {
		sum, err := numberOf(name, entry[assistSum])
		if err != nil {
			return value.Number{}, value.Number{}, err
		}
		count, err := numberOf(name, entry[assistCount])
		if err != nil {
			return value.Number{}, value.Number{}, err
		}
		return sum, count, nil
	}
	if value.IsEmpty(current) {
		return value.Int(0), value.Int(0), nil
	}
	sum, err := numberOf(name, current)
	if err != nil {
		return value.Number{}, value.Number{}, err
	}
	return sum, value.Int(1), nil
}

// numberOf treats empty values as zero.
func numberOf(name string, v any) (value.Number, error) {
	if value.IsEmpty(v) {
		return value.Int(0), nil
	}
	n, err := value.MustNumber("arithmetic", v)
	if err != nil {
		return value.Number{}, apperrors.InvalidInput(name, err.Error())
	}
	return n, nil
}

type attemptFunc func(ctx context.Context, svc topicdata.Service, locked bool) (*writeOutcome, error)

// writeWithRetry runs attempt under optimistic locking, retrying version
// conflicts with backoff. When retries are exhausted and forced locking is
// on, one last attempt runs inside a transaction holding the row lock.
func (k *Kernel) writeWithRetry(ctx context.Context, s *scope, topic *model.Topic, svc topicdata.Service, attempt attemptFunc) (*writeOutcome, error) {
	var out *writeOutcome
	err := resilience.RetryFunc(ctx, resilience.RetryConfig{
		MaxAttempts: k.cfg.RetryTimes,
		Backoff:     k.backoff,
		RetryIf:     isVersionConflict,
		OnRetry: func(n int, err error, wait time.Duration) {
			k.metrics.RecordMergeRetry(ctx, topic.TopicID)
			s.log.Debug("retrying write after version conflict", logger.Fields(
				logger.FieldTopic, topic.TopicID,
				logger.FieldAttempt, n,
				"wait", wait.String(),
			))
		},
	}, func(int) error {
		var err error
		out, err = attempt(ctx, svc, false)
		return err
	})
	if err == nil || !isVersionConflict(err) || !k.cfg.ForceRetryWithLock {
		return out, err
	}

	s.log.Warn("optimistic retries exhausted, writing under row lock", logger.Fields(logger.FieldTopic, topic.TopicID))
	err = svc.WithTransaction(ctx, func(ctx context.Context, tx topicdata.Service) error {
		var err error
		out, err = attempt(ctx, tx, true)
		return err
	})
	return out, err
}

func isVersionConflict(err error) bool {
	return apperrors.IsCode(err, apperrors.ErrCodeVersionConflict)
}
