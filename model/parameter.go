package model

// ParameterKind tags a parameter.
type ParameterKind string

const (
	ParameterTopic      ParameterKind = "topic"
	ParameterConstant   ParameterKind = "constant"
	ParameterComputed   ParameterKind = "computed"
	ParameterExpression ParameterKind = "expression"
)

// ComputeType is the operator of a computed parameter.
type ComputeType string

const (
	ComputeAdd        ComputeType = "add"
	ComputeSubtract   ComputeType = "subtract"
	ComputeMultiply   ComputeType = "multiply"
	ComputeDivide     ComputeType = "divide"
	ComputeModulus    ComputeType = "modulus"
	ComputeYearOf     ComputeType = "year-of"
	ComputeHalfYearOf ComputeType = "half-year-of"
	ComputeQuarterOf  ComputeType = "quarter-of"
	ComputeMonthOf    ComputeType = "month-of"
	ComputeWeekOfYear ComputeType = "week-of-year"
	ComputeDayOfMonth ComputeType = "day-of-month"
	ComputeDayOfWeek  ComputeType = "day-of-week"
	ComputeCaseThen   ComputeType = "case-then"
)

// Parameter produces a value. Topic parameters name a factor, constants may
// embed {path} references, computed parameters combine sub-parameters and
// expression parameters hold an expr-lang program.
type Parameter struct {
	Kind ParameterKind `yaml:"kind" json:"kind" validate:"required,oneof=topic constant computed expression"`

	// topic
	TopicID  string `yaml:"topicId,omitempty" json:"topicId,omitempty"`
	FactorID string `yaml:"factorId,omitempty" json:"factorId,omitempty"`

	// constant
	Value string `yaml:"value,omitempty" json:"value,omitempty"`

	// computed
	Type       ComputeType `yaml:"type,omitempty" json:"type,omitempty"`
	Parameters []Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`

	// expression
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`

	// case-then branches carry their own condition; a branch without one is the default.
	Conditional bool            `yaml:"conditional,omitempty" json:"conditional,omitempty"`
	On          *ParameterJoint `yaml:"on,omitempty" json:"on,omitempty"`
}

// JointType combines conditions.
type JointType string

const (
	JointAnd JointType = "and"
	JointOr  JointType = "or"
)

// Operator compares the two sides of a condition expression.
type Operator string

const (
	OperatorEmpty      Operator = "empty"
	OperatorNotEmpty   Operator = "not-empty"
	OperatorEquals     Operator = "equals"
	OperatorNotEquals  Operator = "not-equals"
	OperatorLess       Operator = "less"
	OperatorLessEquals Operator = "less-equals"
	OperatorMore       Operator = "more"
	OperatorMoreEquals Operator = "more-equals"
	OperatorIn         Operator = "in"
	OperatorNotIn      Operator = "not-in"
)

// Unary reports whether the operator ignores its right side.
func (o Operator) Unary() bool { return o == OperatorEmpty || o == OperatorNotEmpty }

// Reverse returns the operator with sides swapped, e.g. less becomes more.
// The second result is false for operators that cannot be swapped.
func (o Operator) Reverse() (Operator, bool) {
	switch o {
	case OperatorEquals, OperatorNotEquals:
		return o, true
	case OperatorLess:
		return OperatorMore, true
	case OperatorLessEquals:
		return OperatorMoreEquals, true
	case OperatorMore:
		return OperatorLess, true
	case OperatorMoreEquals:
		return OperatorLessEquals, true
	}
	return o, false
}

// ParameterJoint is a boolean tree of conditions.
type ParameterJoint struct {
	JointType JointType            `yaml:"jointType" json:"jointType"`
	Filters   []ParameterCondition `yaml:"filters" json:"filters" validate:"dive"`
}

// ParameterCondition is either a nested joint (JointType set) or a
// comparison of Left and Right.
type ParameterCondition struct {
	JointType JointType            `yaml:"jointType,omitempty" json:"jointType,omitempty"`
	Filters   []ParameterCondition `yaml:"filters,omitempty" json:"filters,omitempty"`

	Left     *Parameter `yaml:"left,omitempty" json:"left,omitempty"`
	Operator Operator   `yaml:"operator,omitempty" json:"operator,omitempty"`
	Right    *Parameter `yaml:"right,omitempty" json:"right,omitempty"`
}

// IsJoint reports whether the condition nests further conditions.
func (c ParameterCondition) IsJoint() bool { return c.JointType != "" }

// Joint returns the nested joint of a joint condition.
func (c ParameterCondition) Joint() *ParameterJoint {
	return &ParameterJoint{JointType: c.JointType, Filters: c.Filters}
}
