package kernel

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/observability"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/variables"
)

// CompiledPipeline is a pipeline ready to run. It is immutable and safe
// for concurrent runs.
type CompiledPipeline struct {
	kernel     *Kernel
	definition *model.Pipeline
	topic      *model.Topic
	when       expression.PredicateFunc
	stages     []*compiledStage
}

// Definition returns the pipeline the compiled form was built from.
func (c *CompiledPipeline) Definition() *model.Pipeline { return c.definition }

// Topic returns the trigger topic of the pipeline.
func (c *CompiledPipeline) Topic() *model.Topic { return c.topic }

// RunResult is the outcome of one run. Log is always set and has already
// been handed to the monitor handler.
type RunResult struct {
	Log *monitor.PipelineLog
	// Pending holds the runs triggered by the writes of this run, including
	// writes that happened before a failure.
	Pending []PendingRun
	// Err is the error that ended the run in ERROR.
	Err error
}

// Failed reports whether the run ended in ERROR.
func (r *RunResult) Failed() bool { return r.Err != nil }

// Run executes the pipeline on the trigger data of run. It never panics and
// never returns without a log.
func (c *CompiledPipeline) Run(ctx context.Context, run PendingRun, p principal.Principal) (result *RunResult) {
	k := c.kernel
	traceID := run.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx = principal.Set(logger.ContextWithTraceID(ctx, traceID), p)
	ctx, span := observability.StartPipelineSpan(ctx, c.definition.PipelineID, c.definition.TopicID, p.TenantID, traceID)

	log := monitor.NewPipelineLog(c.definition, traceID, run.InternalDataID, run.Previous, run.Current)
	s := &scope{
		kernel:    k,
		pipeline:  c.definition,
		principal: p,
		traceID:   traceID,
		dataID:    run.InternalDataID,
		vars:      variables.New(run.Previous, run.Current),
		triggers:  &triggerCollector{},
		log: k.log.WithContext(ctx).WithFields(logger.Fields(
			logger.FieldPipelineID, c.definition.PipelineID,
			logger.FieldTenantID, p.TenantID,
		)),
	}
	result = &RunResult{Log: log}
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result.Err = apperrors.Internal(fmt.Errorf("pipeline panicked: %v", r))
			log.Fail(result.Err, string(debug.Stack()))
		}
		result.Pending = k.cascades(ctx, s)
		k.metrics.RecordCascades(ctx, len(result.Pending))
		observability.SetSpanAttribute(ctx, observability.AttrCascades, len(result.Pending))

		k.handleLog(ctx, log)
		elapsed := time.Since(start)
		k.metrics.RecordRun(ctx, c.definition.PipelineID, string(log.Status), elapsed)
		observability.EndSpan(span, string(log.Status), result.Err)

		fields := logger.Fields(
			logger.FieldStatus, log.Status,
			logger.FieldDuration, elapsed.Milliseconds(),
			"cascades", len(result.Pending),
		)
		if result.Err != nil {
			fields[logger.FieldError] = result.Err.Error()
			s.log.Warn("pipeline run failed", fields)
			return
		}
		s.log.Debug("pipeline run finished", fields)
	}()

	result.Err = c.run(ctx, s, log)
	return result
}

func (c *CompiledPipeline) run(ctx context.Context, s *scope, log *monitor.PipelineLog) error {
	ok, stack, err := evaluate(c.when, s)
	if err != nil {
		log.Fail(err, stack)
		return err
	}
	if !ok {
		log.Skip()
		return nil
	}
	for _, stage := range c.stages {
		stageLog, err := stage.run(ctx, s)
		log.AddStage(stageLog)
		if err != nil {
			log.Fail(err, apperrors.StackOf(err))
			return err
		}
	}
	log.Done()
	return nil
}
