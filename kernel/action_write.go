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

// writeAction implements insert-row, merge-row, insert-or-merge-row and
// write-factor.
type writeAction struct {
	kernel      *Kernel
	action      *model.Action
	topic       *model.Topic
	mapping     expression.MappingFunc
	criteria    expression.CriteriaFunc
	allowInsert bool
	allowMerge  bool
	// rollback is set when a mapped factor accumulates and a merge trigger
	// must take back the contribution of the previous row.
	rollback bool
}

// writeOutcome is the persisted result of one write.
type writeOutcome struct {
	trigger  model.TopicTrigger
	inserted bool
}

func (k *Kernel) parseWrite(ctx context.Context, action *model.Action) (compiledAction, error) {
	topic, err := k.targetTopic(ctx, action)
	if err != nil {
		return nil, err
	}

	mapping := action.Mapping
	if action.Type == model.ActionWriteFactor {
		factor, err := targetFactor(topic, action)
		if err != nil {
			return nil, err
		}
		mapping = []model.MappingFactor{{FactorID: factor.FactorID, Source: action.Source, Arithmetic: action.Arithmetic}}
	}
	if len(mapping) == 0 {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("%s requires a mapping", action.Type))
	}
	mapped, err := k.compiler.CompileMapping(ctx, topic, mapping)
	if err != nil {
		return nil, err
	}

	a := &writeAction{kernel: k, action: action, topic: topic, mapping: mapped}
	for _, m := range mapping {
		switch m.Arithmetic {
		case model.ArithmeticSum, model.ArithmeticCount, model.ArithmeticAverage:
			a.rollback = true
		}
	}
	switch action.Type {
	case model.ActionInsertRow:
		a.allowInsert = true
		return a, nil
	case model.ActionMergeRow, model.ActionWriteFactor:
		a.allowMerge = true
	default:
		a.allowInsert, a.allowMerge = true, true
	}
	if action.By == nil || len(action.By.Filters) == 0 {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("%s requires a by condition", action.Type))
	}
	if a.criteria, err = k.compiler.CompileCriteria(ctx, topic, action.By); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *writeAction) definition() *model.Action { return a.action }

func (a *writeAction) run(ctx context.Context, s *scope, log *monitor.ActionLog) error {
	mapped, err := a.mapping(s.vars, s.principal)
	if err != nil {
		return err
	}
	svc, err := s.service(ctx, a.topic)
	if err != nil {
		return err
	}
	if !a.allowMerge {
		out, err := a.insert(ctx, svc, mapped)
		if err != nil {
			return err
		}
		a.record(s, log, out)
		return nil
	}

	criteria, err := a.criteria(s.vars, s.principal)
	if err != nil {
		return err
	}
	var previous []expression.MappedValue
	if a.rollback && s.vars.HasPrevious() {
		prevVars := s.vars.WithCurrent(s.vars.Previous())
		if previous, err = a.mapping(prevVars, s.principal); err != nil {
			return err
		}
		prevCriteria, err := a.criteria(prevVars, s.principal)
		if err != nil {
			return err
		}
		detached, err := a.detach(ctx, s, log, svc, criteria, prevCriteria, previous)
		if err != nil {
			return err
		}
		if detached {
			previous = nil
		}
	}

	out, err := a.kernel.writeWithRetry(ctx, s, a.topic, svc, func(ctx context.Context, svc topicdata.Service, locked bool) (*writeOutcome, error) {
		return a.attempt(ctx, svc, criteria, mapped, previous, locked)
	})
	if err != nil {
		return err
	}
	a.record(s, log, out)
	return nil
}

// record counts a persisted write and emits its trigger.
func (a *writeAction) record(s *scope, log *monitor.ActionLog, out *writeOutcome) {
	if out.inserted {
		log.InsertCount++
	} else {
		log.UpdateCount++
	}
	log.Value = out.trigger.Current
	s.emit(a.topic, out.trigger)
}

// detach takes the contribution of the previous row back from the row its
// own key selects, when that is not the row the current key selects. It
// reports whether the current write must only add. A previous key that
// selects nothing has no contribution to take back.
func (a *writeAction) detach(ctx context.Context, s *scope, log *monitor.ActionLog, svc topicdata.Service,
	criteria, prevCriteria topicdata.Criteria, previous []expression.MappedValue) (bool, error) {
	helper := svc.EntityHelper()
	held, err := svc.Find(ctx, prevCriteria)
	if err != nil {
		return false, err
	}
	switch len(held) {
	case 0:
		return true, nil
	case 1:
	default:
		return false, apperrors.TooManyMatches(a.topic.Name, len(held))
	}
	heldID, _ := helper.IDOf(held[0])
	rows, err := svc.Find(ctx, criteria)
	if err != nil {
		return false, err
	}
	if len(rows) == 1 {
		if id, _ := helper.IDOf(rows[0]); id == heldID {
			return false, nil
		}
	}

	out, err := a.kernel.writeWithRetry(ctx, s, a.topic, svc, func(ctx context.Context, svc topicdata.Service, locked bool) (*writeOutcome, error) {
		rows, err := svc.Find(ctx, topicdata.ByID(heldID))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return a.merge(ctx, svc, rows[0], retract(previous), locked)
	})
	if err != nil {
		return false, err
	}
	if out != nil {
		a.record(s, log, out)
	}
	return true, nil
}

// attempt runs one lookup-then-write sequence. With locked the row is
// read under a row lock and updated without a version check.
func (a *writeAction) attempt(ctx context.Context, svc topicdata.Service, criteria topicdata.Criteria,
	mapped, previous []expression.MappedValue, locked bool) (*writeOutcome, error) {
	rows, err := svc.Find(ctx, criteria)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		if !a.allowInsert {
			return nil, apperrors.InsertNotAllowed(a.topic.Name)
		}
		return a.insert(ctx, svc, mapped)
	case 1:
		return a.merge(ctx, svc, rows[0], accumulate(mapped, previous), locked)
	default:
		return nil, apperrors.TooManyMatches(a.topic.Name, len(rows))
	}
}

func (a *writeAction) insert(ctx context.Context, svc topicdata.Service, mapped []expression.MappedValue) (*writeOutcome, error) {
	row, err := applyMapping(map[string]any{}, mapped, nil, false)
	if err != nil {
		return nil, err
	}
	applyDefaults(a.topic, row)
	if err := castRow(a.topic, row); err != nil {
		return nil, err
	}
	sealed, err := a.kernel.crypto.Encrypt(a.topic, row)
	if err != nil {
		return nil, err
	}
	stored, err := svc.Insert(ctx, sealed)
	if err != nil {
		return nil, err
	}
	id, _ := svc.EntityHelper().IDOf(stored)
	return &writeOutcome{
		trigger: model.TopicTrigger{
			Current:        stored,
			TriggerType:    model.TriggerInsert,
			InternalDataID: id,
		},
		inserted: true,
	}, nil
}

func (a *writeAction) merge(ctx context.Context, svc topicdata.Service, existing map[string]any,
	update rowUpdate, locked bool) (*writeOutcome, error) {
	helper := svc.EntityHelper()
	id, ok := helper.IDOf(existing)
	if !ok {
		return nil, apperrors.InvalidInput(model.ColumnID, fmt.Sprintf("row of topic %s has no id", a.topic.Name))
	}
	if locked {
		var err error
		if existing, err = svc.FindAndLockByID(ctx, id); err != nil {
			return nil, err
		}
	}
	version := helper.VersionOf(existing)

	// Accumulating factors are computed on opened values; only the touched
	// factors are sealed again, the others keep their stored form.
	opened, err := a.kernel.crypto.Decrypt(a.topic, helper.Strip(existing))
	if err != nil {
		return nil, err
	}
	names, err := update(opened)
	if err != nil {
		return nil, err
	}
	changes := make(map[string]any, len(names)+1)
	for _, name := range names {
		changes[name] = opened[name]
	}
	if assist, ok := opened[model.ColumnAggregateAssist]; ok {
		changes[model.ColumnAggregateAssist] = assist
	}
	if err := castRow(a.topic, changes); err != nil {
		return nil, err
	}
	sealed, err := a.kernel.crypto.Encrypt(a.topic, changes)
	if err != nil {
		return nil, err
	}
	row := helper.Strip(existing)
	for k, v := range sealed {
		row[k] = v
	}

	var stored map[string]any
	if locked {
		stored, err = svc.UpdateWithLockByID(ctx, id, row)
	} else {
		stored, err = svc.UpdateByIDAndVersion(ctx, id, version, row)
	}
	if err != nil {
		return nil, err
	}
	if stored == nil {
		if locked {
			return nil, apperrors.NotFound(a.topic.Name, id)
		}
		return nil, apperrors.VersionConflict(a.topic.Name, id, version)
	}
	return &writeOutcome{
		trigger: model.TopicTrigger{
			Previous:       existing,
			Current:        stored,
			TriggerType:    model.TriggerMerge,
			InternalDataID: id,
		},
	}, nil
}

// applyDefaults fills empty factors that declare a default value.
func applyDefaults(topic *model.Topic, row map[string]any) {
	for _, f := range topic.Factors {
		if f.DefaultValue == "" {
			continue
		}
		if v, ok := row[f.Name]; !ok || value.IsEmpty(v) {
			row[f.Name] = f.DefaultValue
		}
	}
}

// castRow converts the factor values present in row to their declared types.
func castRow(topic *model.Topic, row map[string]any) error {
	for _, f := range topic.Factors {
		v, ok := row[f.Name]
		if !ok {
			continue
		}
		cast, err := value.CastForFactor(f.Type, v)
		if err != nil {
			return apperrors.InvalidInput(f.Name, err.Error())
		}
		row[f.Name] = cast
	}
	return nil
}
