package kernel

import (
	"context"
	"errors"
	"fmt"

	"github.com/watchmen-go/kernel/config"
	"github.com/watchmen-go/kernel/encryption"
	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/expression"
	"github.com/watchmen-go/kernel/external"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/metadata"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/observability"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/resilience"
	"github.com/watchmen-go/kernel/topicdata"
)

// Options are the collaborators of a Kernel. Topics, Pipelines and Storage
// are required.
type Options struct {
	Topics    metadata.TopicService
	Pipelines metadata.PipelineService
	Storage   topicdata.Provider

	// External resolves write-to-external targets. Nil fails those actions.
	External *external.Registry
	// Crypto applies factor encryption. Nil allows mask methods only.
	Crypto *encryption.FactorCrypto
	// Monitor receives the log of every run. Nil discards logs.
	Monitor monitor.Handler

	Pipeline config.PipelineConfig
	// Backoff spaces optimistic retries. Defaults to Pipeline.RetryInterval
	// plus 1 to 20 ms of jitter.
	Backoff resilience.Backoff
	// Loop runs the iterations of looping units. Defaults to SequentialLoop,
	// or ParallelLoop when Pipeline.ParallelActionsInLoopUnit is set.
	Loop    LoopStrategy
	Metrics *observability.Metrics
	Logger  *logger.Logger
}

// Kernel compiles pipelines and holds what their runs share.
type Kernel struct {
	topics    metadata.TopicService
	pipelines metadata.PipelineService
	storage   topicdata.Provider
	external  *external.Registry
	crypto    *encryption.FactorCrypto
	monitor   monitor.Handler
	cfg       config.PipelineConfig
	backoff   resilience.Backoff
	loop      LoopStrategy
	metrics   *observability.Metrics
	log       *logger.Logger
	compiler  *expression.Compiler
}

// New creates a kernel.
func New(opts Options) (*Kernel, error) {
	if opts.Topics == nil || opts.Pipelines == nil || opts.Storage == nil {
		return nil, fmt.Errorf("kernel: topics, pipelines and storage are required")
	}
	cfg := opts.Pipeline
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}

	k := &Kernel{
		topics:    opts.Topics,
		pipelines: opts.Pipelines,
		storage:   opts.Storage,
		external:  opts.External,
		crypto:    opts.Crypto,
		monitor:   opts.Monitor,
		cfg:       cfg,
		backoff:   opts.Backoff,
		loop:      opts.Loop,
		metrics:   opts.Metrics,
		log:       opts.Logger,
		compiler:  expression.NewCompiler(opts.Topics),
	}
	if k.crypto == nil {
		crypto, err := encryption.NewFactorCrypto(encryption.Config{})
		if err != nil {
			return nil, fmt.Errorf("kernel: %w", err)
		}
		k.crypto = crypto
	}
	if k.monitor == nil {
		k.monitor = monitor.HandlerFunc(func(context.Context, *monitor.PipelineLog, bool) error { return nil })
	}
	if k.backoff == nil {
		k.backoff = resilience.NewJitterBackoff(cfg.RetryInterval)
	}
	if k.loop == nil {
		if cfg.ParallelActionsInLoopUnit {
			k.loop = ParallelLoop{Limit: cfg.ParallelLoopLimit}
		} else {
			k.loop = SequentialLoop{}
		}
	}
	if k.log == nil {
		k.log = logger.Get("kernel")
	}
	if k.metrics == nil {
		m, err := observability.NewMetrics(observability.Meter())
		if err != nil {
			return nil, fmt.Errorf("kernel: %w", err)
		}
		k.metrics = m
	}
	return k, nil
}

// Compile resolves every reference of pipeline and compiles its conditions,
// criteria and mappings. The result is bound to the pipeline pointer it was
// compiled from.
func (k *Kernel) Compile(ctx context.Context, pipeline *model.Pipeline) (*CompiledPipeline, error) {
	if pipeline == nil {
		return nil, apperrors.InvalidDefinition("pipeline is required")
	}
	topic, err := k.topics.FindByID(ctx, pipeline.TopicID)
	if err != nil {
		return nil, err
	}
	when, err := k.compiler.CompilePrerequisite(ctx, pipeline.Conditional, pipeline.On)
	if err != nil {
		return nil, withPath(err, "pipeline", pipeline.PipelineID)
	}
	stages := make([]*compiledStage, 0, len(pipeline.Stages))
	for i := range pipeline.Stages {
		stage, err := k.compileStage(ctx, &pipeline.Stages[i])
		if err != nil {
			return nil, withPath(err, "pipeline", pipeline.PipelineID)
		}
		stages = append(stages, stage)
	}
	return &CompiledPipeline{
		kernel:     k,
		definition: pipeline,
		topic:      topic,
		when:       when,
		stages:     stages,
	}, nil
}

// Reject records a run that could not start, e.g. because its pipeline
// failed to compile. The monitor handler still sees exactly one log.
func (k *Kernel) Reject(ctx context.Context, run PendingRun, p principal.Principal, cause error) *RunResult {
	log := monitor.NewPipelineLog(run.Pipeline, run.TraceID, run.InternalDataID, run.Previous, run.Current)
	log.Fail(cause, apperrors.StackOf(cause))
	k.handleLog(ctx, log)
	k.metrics.RecordRun(ctx, run.Pipeline.PipelineID, string(log.Status), 0)
	k.log.WithContext(ctx).Error("pipeline rejected", logger.Fields(
		logger.FieldPipelineID, run.Pipeline.PipelineID,
		logger.FieldTenantID, p.TenantID,
		logger.FieldError, cause.Error(),
	))
	return &RunResult{Log: log, Err: cause}
}

func (k *Kernel) handleLog(ctx context.Context, log *monitor.PipelineLog) {
	if err := k.monitor.Handle(ctx, log, k.cfg.AsyncMonitorLog); err != nil {
		k.log.WithContext(ctx).Warn("monitor log not handled", logger.Fields(
			logger.FieldPipelineID, log.PipelineID,
			logger.FieldError, err.Error(),
		))
	}
}

func (k *Kernel) compileStage(ctx context.Context, stage *model.Stage) (*compiledStage, error) {
	when, err := k.compiler.CompilePrerequisite(ctx, stage.Conditional, stage.On)
	if err != nil {
		return nil, withPath(err, "stage", stage.StageID)
	}
	units := make([]*compiledUnit, 0, len(stage.Units))
	for i := range stage.Units {
		unit, err := k.compileUnit(ctx, &stage.Units[i])
		if err != nil {
			return nil, withPath(err, "stage", stage.StageID)
		}
		units = append(units, unit)
	}
	return &compiledStage{definition: stage, when: when, units: units}, nil
}

func (k *Kernel) compileUnit(ctx context.Context, unit *model.Unit) (*compiledUnit, error) {
	when, err := k.compiler.CompilePrerequisite(ctx, unit.Conditional, unit.On)
	if err != nil {
		return nil, withPath(err, "unit", unit.UnitID)
	}
	actions := make([]compiledAction, 0, len(unit.Do))
	for i := range unit.Do {
		action, err := k.parseAction(ctx, &unit.Do[i])
		if err != nil {
			return nil, withPath(err, "unit", unit.UnitID)
		}
		actions = append(actions, action)
	}
	return &compiledUnit{definition: unit, when: when, actions: actions, loop: k.loop}, nil
}

// withPath records where in the definition a compile error occurred.
func withPath(err error, level, id string) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return fmt.Errorf("%s[%s]: %w", level, id, err)
	}
	path, _ := appErr.Details["path"].(string)
	if path == "" {
		path = level + "[" + id + "]"
	} else {
		path = level + "[" + id + "]." + path
	}
	return appErr.WithDetail("path", path)
}
