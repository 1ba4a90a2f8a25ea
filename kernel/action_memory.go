package kernel

import (
	"context"
	"fmt"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/external"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/value"
)

type alarmAction struct {
	action  *model.Action
	when    expression.PredicateFunc
	message expression.ValueFunc
}

func (k *Kernel) parseAlarm(ctx context.Context, action *model.Action) (compiledAction, error) {
	when, err := k.compiler.CompilePrerequisite(ctx, action.Conditional, action.On)
	if err != nil {
		return nil, err
	}
	text := action.Message
	if text == "" {
		text = fmt.Sprintf("alarm[%s] raised", action.ActionID)
	}
	message, err := k.compiler.CompileParameter(ctx, &model.Parameter{Kind: model.ParameterConstant, Value: text})
	if err != nil {
		return nil, err
	}
	return &alarmAction{action: action, when: when, message: message}, nil
}

func (a *alarmAction) definition() *model.Action { return a.action }

func (a *alarmAction) run(_ context.Context, s *scope, log *monitor.ActionLog) error {
	ok, err := a.when(s.vars, s.principal)
	if err != nil {
		return err
	}
	if !ok {
		log.Prerequisite = false
		return nil
	}
	raw, err := a.message(s.vars, s.principal)
	if err != nil {
		return err
	}
	message := value.ToString(raw)
	log.Value = message

	fields := logger.Fields(
		logger.FieldActionID, a.action.ActionID,
		"severity", a.action.Severity,
	)
	switch a.action.Severity {
	case model.SeverityCritical, model.SeverityHigh:
		s.log.Error(message, fields)
	case model.SeverityMedium:
		s.log.Warn(message, fields)
	default:
		s.log.Info(message, fields)
	}
	return nil
}

type copyToMemoryAction struct {
	action *model.Action
	source expression.ValueFunc
	from   expression.PathFunc
}

func (k *Kernel) parseCopyToMemory(ctx context.Context, action *model.Action) (compiledAction, error) {
	if action.VariableName == "" {
		return nil, apperrors.InvalidDefinition("copy-to-memory requires a variable name")
	}
	source, err := k.compiler.CompileParameter(ctx, action.Source)
	if err != nil {
		return nil, err
	}
	from, err := k.compiler.CompileSourcePath(ctx, action.Source)
	if err != nil {
		return nil, err
	}
	return &copyToMemoryAction{action: action, source: source, from: from}, nil
}

func (a *copyToMemoryAction) definition() *model.Action { return a.action }

func (a *copyToMemoryAction) run(_ context.Context, s *scope, log *monitor.ActionLog) error {
	v, err := a.source(s.vars, s.principal)
	if err != nil {
		return err
	}
	from, _ := a.from(s.vars)
	s.vars.PutFrom(a.action.VariableName, v, from)
	log.Value = v
	return nil
}

type writeToExternalAction struct {
	kernel *Kernel
	action *model.Action
}

func (k *Kernel) parseWriteToExternal(action *model.Action) (compiledAction, error) {
	if action.ExternalWriterID == "" {
		return nil, apperrors.InvalidDefinition("write-to-external requires an external writer id")
	}
	return &writeToExternalAction{kernel: k, action: action}, nil
}

func (a *writeToExternalAction) definition() *model.Action { return a.action }

func (a *writeToExternalAction) run(ctx context.Context, s *scope, log *monitor.ActionLog) error {
	if a.kernel.external == nil {
		return apperrors.NotFound("external writer", a.action.ExternalWriterID)
	}
	writer, err := a.kernel.external.Get(a.action.ExternalWriterID)
	if err != nil {
		return err
	}

	vars := make(map[string]any)
	for _, name := range s.vars.Names() {
		v, _ := s.vars.Get(name)
		vars[name] = v
	}
	req := &external.Request{
		EventCode:  a.action.EventCode,
		PipelineID: s.pipeline.PipelineID,
		TopicID:    s.pipeline.TopicID,
		TenantID:   s.principal.TenantID,
		TraceID:    s.traceID,
		DataID:     s.dataID,
		Previous:   value.CopyMap(s.vars.Previous()),
		Current:    value.CopyMap(s.vars.Current()),
		Variables:  value.CopyMap(vars),
	}
	if err := writer.Write(ctx, req); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeExternalWriter) {
			return err
		}
		return apperrors.ExternalWriter(writer.ID(), err)
	}
	log.Value = map[string]any{"writer": writer.ID(), "code": a.action.EventCode}
	return nil
}
