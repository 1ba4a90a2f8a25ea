package kernel

import (
	"context"
	"fmt"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/topicdata"
)

// deleteAction implements delete-row and delete-rows.
type deleteAction struct {
	kernel   *Kernel
	action   *model.Action
	topic    *model.Topic
	criteria expression.CriteriaFunc
}

func (k *Kernel) parseDelete(ctx context.Context, action *model.Action) (compiledAction, error) {
	topic, err := k.targetTopic(ctx, action)
	if err != nil {
		return nil, err
	}
	if action.By == nil || len(action.By.Filters) == 0 {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("%s requires a by condition", action.Type))
	}
	criteria, err := k.compiler.CompileCriteria(ctx, topic, action.By)
	if err != nil {
		return nil, err
	}
	return &deleteAction{kernel: k, action: action, topic: topic, criteria: criteria}, nil
}

func (a *deleteAction) definition() *model.Action { return a.action }

func (a *deleteAction) run(ctx context.Context, s *scope, log *monitor.ActionLog) error {
	criteria, err := a.criteria(s.vars, s.principal)
	if err != nil {
		return err
	}
	svc, err := s.service(ctx, a.topic)
	if err != nil {
		return err
	}
	rows, err := svc.Find(ctx, criteria)
	if err != nil {
		return err
	}

	if a.action.Type == model.ActionDeleteRow {
		switch len(rows) {
		case 0:
			return apperrors.NotFound(a.topic.Name, criteria.String())
		case 1:
		default:
			return apperrors.TooManyMatches(a.topic.Name, len(rows))
		}
	}

	deleted := make([]string, 0, len(rows))
	defer func() {
		log.DeleteCount = len(deleted)
		log.Value = deleted
	}()
	for _, row := range rows {
		id, err := a.delete(ctx, s, svc, row)
		if err != nil {
			return err
		}
		deleted = append(deleted, id)
	}
	return nil
}

// delete removes one row at the version it was read at and emits the
// delete trigger.
func (a *deleteAction) delete(ctx context.Context, s *scope, svc topicdata.Service, row map[string]any) (string, error) {
	helper := svc.EntityHelper()
	id, ok := helper.IDOf(row)
	if !ok {
		return "", apperrors.InvalidInput(model.ColumnID, fmt.Sprintf("row of topic %s has no id", a.topic.Name))
	}
	version := helper.VersionOf(row)
	n, err := svc.DeleteByIDAndVersion(ctx, id, version)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", apperrors.VersionConflict(a.topic.Name, id, version)
	}
	s.emit(a.topic, model.TopicTrigger{
		Previous:       row,
		TriggerType:    model.TriggerDelete,
		InternalDataID: id,
	})
	return id, nil
}
