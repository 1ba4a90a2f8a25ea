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

// ValueFunc evaluates a compiled parameter.
type ValueFunc func(vars *variables.PipelineVariables, p principal.Principal) (any, error)

// PredicateFunc evaluates a compiled prerequisite or condition.
type PredicateFunc func(vars *variables.PipelineVariables, p principal.Principal) (bool, error)

// CriteriaFunc builds a storage criteria from the variable context.
type CriteriaFunc func(vars *variables.PipelineVariables, p principal.Principal) (topicdata.Criteria, error)

// MappingFunc evaluates every mapped factor of a write action.
type MappingFunc func(vars *variables.PipelineVariables, p principal.Principal) ([]MappedValue, error)

// MappedValue is one evaluated mapping entry.
type MappedValue struct {
	Factor     model.Factor
	Value      any
	Arithmetic model.Arithmetic
}

// TopicResolver looks up topic schemas referenced by parameters.
type TopicResolver interface {
	FindByID(ctx context.Context, topicID string) (*model.Topic, error)
}

// Compiler turns parameter and condition trees into closures. Compilation
// resolves topic and factor references once; the closures only read the
// variable context.
type Compiler struct {
	topics TopicResolver
}

// NewCompiler creates a compiler resolving topics through topics.
func NewCompiler(topics TopicResolver) *Compiler {
	return &Compiler{topics: topics}
}

// Always is a predicate that always passes.
func Always(*variables.PipelineVariables, principal.Principal) (bool, error) { return true, nil }

func (c *Compiler) factorOf(ctx context.Context, topicID, factorID string) (*model.Topic, *model.Factor, error) {
	if topicID == "" || factorID == "" {
		return nil, nil, apperrors.InvalidDefinition("topic parameter requires topicId and factorId")
	}
	topic, err := c.topics.FindByID(ctx, topicID)
	if err != nil {
		return nil, nil, err
	}
	if topic == nil {
		return nil, nil, apperrors.NotFound("topic", topicID)
	}
	factor, ok := topic.FactorByID(factorID)
	if !ok {
		return nil, nil, apperrors.NotFound(fmt.Sprintf("factor of topic %s", topic.Name), factorID)
	}
	return topic, factor, nil
}
