package kernel

import (
	"context"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
)

type compiledStage struct {
	definition *model.Stage
	when       expression.PredicateFunc
	units      []*compiledUnit
}

// run tests the stage prerequisite and runs its units in order. The first
// failing unit ends the stage in ERROR.
func (st *compiledStage) run(ctx context.Context, s *scope) (*monitor.StageLog, error) {
	log := monitor.NewStageLog(st.definition)
	ok, stack, err := evaluate(st.when, s)
	if err != nil {
		log.Fail(err, stack)
		return log, err
	}
	if !ok {
		log.Skip()
		return log, nil
	}
	for _, unit := range st.units {
		logs, err := unit.run(ctx, s)
		log.AddUnits(logs...)
		if err != nil {
			log.Fail(err, apperrors.StackOf(err))
			return log, err
		}
	}
	log.Done()
	return log, nil
}
