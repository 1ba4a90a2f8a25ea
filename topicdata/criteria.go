package topicdata

import (
	"fmt"
	"strings"

	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/value"
)

// Criteria is a storage filter. A joint combines Children; a leaf compares
// Column against Value. The zero Criteria matches every row.
type Criteria struct {
	Joint    model.JointType
	Children []Criteria
	Column   string
	Operator model.Operator
	Value    any
}

// And joins criteria with a conjunction.
func And(children ...Criteria) Criteria {
	return Criteria{Joint: model.JointAnd, Children: children}
}

// Or joins criteria with a disjunction.
func Or(children ...Criteria) Criteria {
	return Criteria{Joint: model.JointOr, Children: children}
}

// Where builds a leaf criteria.
func Where(column string, op model.Operator, v any) Criteria {
	return Criteria{Column: column, Operator: op, Value: v}
}

// ByID matches the row with the given internal data id.
func ByID(id string) Criteria {
	return Where(model.ColumnID, model.OperatorEquals, id)
}

// IsJoint reports whether the criteria combines children.
func (c Criteria) IsJoint() bool { return c.Joint != "" }

// IsZero reports whether the criteria matches everything.
func (c Criteria) IsZero() bool {
	return c.Joint == "" && c.Column == "" && len(c.Children) == 0
}

// String renders the criteria for logs.
func (c Criteria) String() string {
	if c.IsZero() {
		return "*"
	}
	if !c.IsJoint() {
		if c.Operator.Unary() {
			return fmt.Sprintf("%s %s", c.Column, c.Operator)
		}
		return fmt.Sprintf("%s %s %v", c.Column, c.Operator, c.Value)
	}
	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		parts[i] = child.String()
	}
	return "(" + strings.Join(parts, " "+string(c.Joint)+" ") + ")"
}

// Match evaluates the criteria against a stored row.
func (c Criteria) Match(row map[string]any) (bool, error) {
	if c.IsZero() {
		return true, nil
	}
	if c.IsJoint() {
		if len(c.Children) == 0 {
			return true, nil
		}
		for _, child := range c.Children {
			ok, err := child.Match(row)
			if err != nil {
				return false, err
			}
			if c.Joint == model.JointOr && ok {
				return true, nil
			}
			if c.Joint != model.JointOr && !ok {
				return false, nil
			}
		}
		return c.Joint != model.JointOr, nil
	}
	ok, err := ApplyOperator(c.Operator, columnValue(row, c.Column), c.Value)
	if err != nil {
		return false, fmt.Errorf("column %s: %w", c.Column, err)
	}
	return ok, nil
}

func columnValue(row map[string]any, column string) any {
	if v, ok := row[column]; ok {
		return v
	}
	v, _ := value.Lookup(row, column)
	return v
}

// ApplyOperator compares an actual value with an expected one. Ordering
// operators are false when either side is nil.
func ApplyOperator(op model.Operator, actual, expected any) (bool, error) {
	switch op {
	case model.OperatorEmpty:
		return value.IsEmpty(actual), nil
	case model.OperatorNotEmpty:
		return !value.IsEmpty(actual), nil
	case model.OperatorEquals:
		return value.Equals(actual, expected), nil
	case model.OperatorNotEquals:
		return !value.Equals(actual, expected), nil
	case model.OperatorIn:
		return value.In(actual, expected), nil
	case model.OperatorNotIn:
		return !value.In(actual, expected), nil
	case model.OperatorLess, model.OperatorLessEquals, model.OperatorMore, model.OperatorMoreEquals:
		if actual == nil || expected == nil {
			return false, nil
		}
		cmp, err := value.Compare(actual, expected)
		if err != nil {
			return false, err
		}
		switch op {
		case model.OperatorLess:
			return cmp < 0, nil
		case model.OperatorLessEquals:
			return cmp <= 0, nil
		case model.OperatorMore:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	}
	return false, fmt.Errorf("unsupported operator %q", op)
}

// filterRows returns the rows matching the criteria.
func filterRows(rows []map[string]any, criteria Criteria) ([]map[string]any, error) {
	var out []map[string]any
	for _, row := range rows {
		ok, err := criteria.Match(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}
