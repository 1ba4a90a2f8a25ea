package kernel

import (
	"context"
	"fmt"
	"runtime/debug"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
)

// compiledAction is one executable action. run does the work and fills
// the counters of its log; status and timing are set by safeRun.
type compiledAction interface {
	definition() *model.Action
	run(ctx context.Context, s *scope, log *monitor.ActionLog) error
}

// safeRun is the only place action errors and panics become a log status.
// The returned error stops the rest of the run.
func safeRun(ctx context.Context, action compiledAction, s *scope, unitLog *monitor.UnitLog) (err error) {
	def := action.definition()
	log := monitor.NewActionLog(def)
	unitLog.AddAction(log)

	defer func() {
		if r := recover(); r != nil {
			err = apperrors.Internal(fmt.Errorf("action panicked: %v", r))
			log.Fail(err, string(debug.Stack()))
		}
		if err != nil {
			s.kernel.metrics.RecordActionError(ctx, string(def.Type))
			s.log.Error("action failed", logger.Fields(
				logger.FieldActionID, def.ActionID,
				logger.FieldActionType, def.Type,
				logger.FieldError, err.Error(),
			))
		}
	}()

	if err = action.run(ctx, s, log); err != nil {
		log.Fail(err, stackOf(err))
		return err
	}
	log.Done()
	return nil
}

// stackOf returns the stack captured where err was created, falling back to
// the current stack for errors that carry none.
func stackOf(err error) string {
	if stack := apperrors.StackOf(err); stack != "" {
		return stack
	}
	return string(debug.Stack())
}

// parseAction compiles one action definition.
func (k *Kernel) parseAction(ctx context.Context, action *model.Action) (compiledAction, error) {
	var (
		compiled compiledAction
		err      error
	)
	switch action.Type {
	case model.ActionAlarm:
		compiled, err = k.parseAlarm(ctx, action)
	case model.ActionCopyToMemory:
		compiled, err = k.parseCopyToMemory(ctx, action)
	case model.ActionWriteToExternal:
		compiled, err = k.parseWriteToExternal(action)
	case model.ActionExists, model.ActionReadRow, model.ActionReadRows:
		compiled, err = k.parseReadRows(ctx, action)
	case model.ActionReadFactor, model.ActionReadFactors:
		compiled, err = k.parseReadFactor(ctx, action)
	case model.ActionInsertRow, model.ActionMergeRow, model.ActionInsertOrMergeRow, model.ActionWriteFactor:
		compiled, err = k.parseWrite(ctx, action)
	case model.ActionDeleteRow, model.ActionDeleteRows:
		compiled, err = k.parseDelete(ctx, action)
	default:
		err = apperrors.UnsupportedAction(string(action.Type))
	}
	if err != nil {
		return nil, withPath(err, "action", action.ActionID)
	}
	return compiled, nil
}

// targetTopic resolves the topic an action reads or writes.
func (k *Kernel) targetTopic(ctx context.Context, action *model.Action) (*model.Topic, error) {
	if action.TopicID == "" {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("action type[%s] requires a topic", action.Type))
	}
	return k.topics.FindByID(ctx, action.TopicID)
}

// targetFactor resolves the factor a factor action reads or writes.
func targetFactor(topic *model.Topic, action *model.Action) (*model.Factor, error) {
	if action.FactorID == "" {
		return nil, apperrors.InvalidDefinition(fmt.Sprintf("action type[%s] requires a factor", action.Type))
	}
	factor, ok := topic.FactorByID(action.FactorID)
	if !ok {
		return nil, apperrors.NotFound(fmt.Sprintf("factor of topic %s", topic.Name), action.FactorID)
	}
	return factor, nil
}
