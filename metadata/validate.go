package metadata

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/model"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// Field names in errors follow the definition file keys.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// FieldError is one problem found in a definition.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Checker collects definition problems.
type Checker struct {
	errors []FieldError
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker { return &Checker{} }

// AddError records a problem with field.
func (c *Checker) AddError(field, message string) {
	c.errors = append(c.errors, FieldError{Field: field, Message: message})
}

// Required records an error when value is blank.
func (c *Checker) Required(field, value string) *Checker {
	if strings.TrimSpace(value) == "" {
		c.AddError(field, "is required")
	}
	return c
}

// Custom records message when condition does not hold.
func (c *Checker) Custom(condition bool, field, message string) *Checker {
	if !condition {
		c.AddError(field, message)
	}
	return c
}

// Struct runs the validate tags of s, reporting fields under prefix.
func (c *Checker) Struct(prefix string, s any) *Checker {
	err := getValidator().Struct(s)
	if err == nil {
		return c
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		c.AddError(prefix, err.Error())
		return c
	}
	for _, e := range verrs {
		// Namespace starts with the struct type name.
		ns := e.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		c.AddError(join(prefix, ns), formatValidationError(e))
	}
	return c
}

// HasErrors reports whether any problem was recorded.
func (c *Checker) HasErrors() bool { return len(c.errors) > 0 }

// Errors returns the recorded problems.
func (c *Checker) Errors() []FieldError { return c.errors }

// Err returns an invalid definition error listing every problem, or nil.
func (c *Checker) Err() error {
	if !c.HasErrors() {
		return nil
	}
	messages := make([]string, len(c.errors))
	for i, e := range c.errors {
		messages[i] = e.Field + ": " + e.Message
	}
	return apperrors.InvalidDefinition(strings.Join(messages, "; ")).
		WithDetail("fields", c.errors)
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

func join(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}

// Validate checks defs structurally and semantically. Topics referenced by
// pipelines are looked up in defs first, then in known, which may be nil.
func Validate(defs *Definitions, known TopicService) error {
	c := NewChecker()
	topics := make(map[string]*model.Topic, len(defs.Topics))
	for i := range defs.Topics {
		t := &defs.Topics[i]
		field := fmt.Sprintf("topics[%d]", i)
		c.Struct(field, t)
		if _, dup := topics[t.TopicID]; dup && t.TopicID != "" {
			c.AddError(field+".topicId", "duplicates topic "+t.TopicID)
		}
		topics[t.TopicID] = t
		checkTopic(c, field, t)
	}

	lookup := func(id string) *model.Topic {
		if t, ok := topics[id]; ok {
			return t
		}
		if known != nil && id != "" {
			if t, err := known.FindByID(context.Background(), id); err == nil {
				return t
			}
		}
		return nil
	}

	seen := make(map[string]bool, len(defs.Pipelines))
	for i := range defs.Pipelines {
		p := &defs.Pipelines[i]
		field := fmt.Sprintf("pipelines[%d]", i)
		c.Struct(field, p)
		if seen[p.PipelineID] && p.PipelineID != "" {
			c.AddError(field+".pipelineId", "duplicates pipeline "+p.PipelineID)
		}
		seen[p.PipelineID] = true
		checkPipeline(c, field, p, lookup)
	}
	return c.Err()
}

// ValidatePipeline checks a single pipeline against known topics.
func ValidatePipeline(p *model.Pipeline, known TopicService) error {
	return Validate(&Definitions{Pipelines: []model.Pipeline{*p}}, known)
}

func checkTopic(c *Checker, field string, t *model.Topic) {
	ids := make(map[string]bool, len(t.Factors))
	names := make(map[string]bool, len(t.Factors))
	for i, f := range t.Factors {
		ff := fmt.Sprintf("%s.factors[%d]", field, i)
		c.Custom(!ids[f.FactorID], ff+".factorId", "duplicates factor "+f.FactorID)
		c.Custom(!names[f.Name], ff+".name", "duplicates factor name "+f.Name)
		ids[f.FactorID], names[f.Name] = true, true
		switch f.Encrypt {
		case "", model.EncryptNone, model.EncryptAES256, model.EncryptChaCha20,
			model.EncryptMaskMail, model.EncryptMaskCenter3, model.EncryptMaskLast6:
		default:
			c.AddError(ff+".encrypt", "unsupported encrypt method "+string(f.Encrypt))
		}
	}
}

func checkPipeline(c *Checker, field string, p *model.Pipeline, lookup func(string) *model.Topic) {
	if p.TopicID != "" && lookup(p.TopicID) == nil {
		c.AddError(field+".topicId", "unknown topic "+p.TopicID)
	}
	checkJoint(c, field+".on", p.Conditional, p.On)
	for si, stage := range p.Stages {
		sf := fmt.Sprintf("%s.stages[%d]", field, si)
		checkJoint(c, sf+".on", stage.Conditional, stage.On)
		for ui, unit := range stage.Units {
			uf := fmt.Sprintf("%s.units[%d]", sf, ui)
			checkJoint(c, uf+".on", unit.Conditional, unit.On)
			for ai := range unit.Do {
				checkAction(c, fmt.Sprintf("%s.do[%d]", uf, ai), &unit.Do[ai], lookup)
			}
		}
	}
}

func checkJoint(c *Checker, field string, conditional bool, on *model.ParameterJoint) {
	if conditional && (on == nil || len(on.Filters) == 0) {
		c.AddError(field, "is required when conditional")
	}
}

func checkAction(c *Checker, field string, a *model.Action, lookup func(string) *model.Topic) {
	needTopic := func() *model.Topic {
		c.Required(field+".topicId", a.TopicID)
		if a.TopicID == "" {
			return nil
		}
		t := lookup(a.TopicID)
		if t == nil {
			c.AddError(field+".topicId", "unknown topic "+a.TopicID)
		}
		return t
	}
	needFactor := func(t *model.Topic) {
		c.Required(field+".factorId", a.FactorID)
		if t != nil && a.FactorID != "" {
			_, ok := t.FactorByID(a.FactorID)
			c.Custom(ok, field+".factorId", "unknown factor "+a.FactorID+" of topic "+t.Name)
		}
	}
	needBy := func() {
		c.Custom(a.By != nil && len(a.By.Filters) > 0, field+".by", "is required")
	}
	needMapping := func(t *model.Topic) {
		c.Custom(len(a.Mapping) > 0, field+".mapping", "is required")
		if t == nil {
			return
		}
		for i, m := range a.Mapping {
			_, ok := t.FactorByID(m.FactorID)
			c.Custom(ok, fmt.Sprintf("%s.mapping[%d].factorId", field, i),
				"unknown factor "+m.FactorID+" of topic "+t.Name)
		}
	}

	switch a.Type {
	case model.ActionAlarm:
		switch a.Severity {
		case "", model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow:
		default:
			c.AddError(field+".severity", "unsupported severity "+string(a.Severity))
		}
		checkJoint(c, field+".on", a.Conditional, a.On)
	case model.ActionCopyToMemory:
		c.Required(field+".variableName", a.VariableName)
		c.Custom(a.Source != nil, field+".source", "is required")
	case model.ActionWriteToExternal:
		c.Required(field+".externalWriterId", a.ExternalWriterID)
	case model.ActionExists, model.ActionReadRow, model.ActionReadRows:
		needTopic()
		c.Required(field+".variableName", a.VariableName)
		needBy()
	case model.ActionReadFactor, model.ActionReadFactors:
		needFactor(needTopic())
		c.Required(field+".variableName", a.VariableName)
		needBy()
	case model.ActionInsertRow:
		needMapping(needTopic())
	case model.ActionMergeRow, model.ActionInsertOrMergeRow:
		needMapping(needTopic())
		needBy()
	case model.ActionWriteFactor:
		needFactor(needTopic())
		c.Custom(a.Source != nil, field+".source", "is required")
		needBy()
	case model.ActionDeleteRow, model.ActionDeleteRows:
		needTopic()
		needBy()
	case "":
		// reported by the struct tags
	default:
		c.AddError(field+".type", "unsupported action type "+string(a.Type))
	}
}
