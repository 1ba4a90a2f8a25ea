package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/kernel"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/metadata"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/observability"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/topicdata"
)

// Options configure a Runner. Kernel, Topics and Pipelines are required;
// Storage is needed by Ingest only.
type Options struct {
	Kernel    *kernel.Kernel
	Topics    metadata.TopicService
	Pipelines metadata.PipelineService
	Storage   topicdata.Provider
	// Cache holds compiled pipelines. Defaults to a cache over Kernel.
	Cache *kernel.PipelineCache
	// MaxRuns bounds the runs started by one trigger. Zero is unbounded.
	MaxRuns int
	Logger  *logger.Logger
}

// Runner starts the pipelines of a topic trigger and the pipelines their
// writes trigger in turn.
type Runner struct {
	kernel    *kernel.Kernel
	topics    metadata.TopicService
	pipelines metadata.PipelineService
	storage   topicdata.Provider
	cache     *kernel.PipelineCache
	maxRuns   int
	log       *logger.Logger
}

// New creates a runner.
func New(opts Options) (*Runner, error) {
	if opts.Kernel == nil || opts.Topics == nil || opts.Pipelines == nil {
		return nil, fmt.Errorf("runner: kernel, topics and pipelines are required")
	}
	if opts.MaxRuns < 0 {
		return nil, fmt.Errorf("runner: max runs must be >= 0 (got: %d)", opts.MaxRuns)
	}
	r := &Runner{
		kernel:    opts.Kernel,
		topics:    opts.Topics,
		pipelines: opts.Pipelines,
		storage:   opts.Storage,
		cache:     opts.Cache,
		maxRuns:   opts.MaxRuns,
		log:       opts.Logger,
	}
	if r.cache == nil {
		r.cache = kernel.NewPipelineCache(opts.Kernel)
	}
	if r.log == nil {
		r.log = logger.Get("runner")
	}
	return r, nil
}

// Cache returns the compiled pipeline cache, for invalidation when
// definitions change.
func (r *Runner) Cache() *kernel.PipelineCache { return r.cache }

// Trigger is a change to a topic row that starts pipelines.
type Trigger struct {
	Topic *model.Topic
	model.TopicTrigger
	// TraceID is shared by every run started from the trigger. Generated
	// when empty.
	TraceID string
}

// Run executes every pipeline reacting to trig, then every pipeline
// reacting to the writes of those runs, breadth first, until no run is
// pending. A failed run does not stop the others. The error is set only
// when the trigger could not be dispatched or ctx ended.
func (r *Runner) Run(ctx context.Context, trig Trigger, p principal.Principal) (*Report, error) {
	if trig.Topic == nil {
		return nil, apperrors.InvalidDefinition("trigger topic is required")
	}
	traceID := trig.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx = principal.Set(logger.ContextWithTraceID(ctx, traceID), p)
	ctx, span := observability.Tracer().Start(ctx, observability.SpanTriggerRun, trace.WithAttributes(
		attribute.String(observability.AttrTopicID, trig.Topic.TopicID),
		attribute.String(observability.AttrTenantID, p.TenantID),
		attribute.String(observability.AttrTraceID, traceID),
		attribute.String(observability.AttrDataID, trig.InternalDataID),
	))
	log := r.log.WithContext(ctx).WithFields(logger.Fields(
		logger.FieldTopic, trig.Topic.TopicID,
		logger.FieldTenantID, p.TenantID,
	))

	report := &Report{TraceID: traceID}
	start := time.Now()
	var runErr error
	defer func() {
		report.Duration = time.Since(start)
		observability.SetSpanAttribute(ctx, observability.AttrRuns, len(report.Results))
		status := string(monitor.StatusDone)
		if report.Failed() > 0 {
			status = string(monitor.StatusError)
		}
		observability.EndSpan(span, status, runErr)
		log.Info("trigger finished", logger.Fields(
			"runs", len(report.Results),
			"failed", report.Failed(),
			"truncated", report.Truncated,
			logger.FieldDuration, report.Duration.Milliseconds(),
		))
	}()

	pipelines, err := r.pipelines.FindByTopicID(ctx, trig.Topic.TopicID)
	if err != nil {
		runErr = err
		return report, err
	}
	queue := kernel.ResolveCascades(trig.TopicTrigger, trig.Topic, pipelines, traceID)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			runErr = err
			return report, err
		}
		if r.maxRuns > 0 && len(report.Results) >= r.maxRuns {
			report.Truncated = true
			log.Warn("run limit reached, pending runs dropped", logger.Fields(
				"limit", r.maxRuns,
				"dropped", len(queue),
			))
			break
		}
		run := queue[0]
		queue = queue[1:]
		result := r.runOne(ctx, run, p)
		report.Results = append(report.Results, result)
		queue = append(queue, result.Pending...)
	}
	return report, nil
}

func (r *Runner) runOne(ctx context.Context, run kernel.PendingRun, p principal.Principal) *kernel.RunResult {
	compiled, err := r.cache.GetOrCompile(ctx, run.Pipeline)
	if err != nil {
		return r.kernel.Reject(ctx, run, p, err)
	}
	return compiled.Run(ctx, run, p)
}

// Ingest stores row as a new row of the topic and runs the pipelines the
// insert triggers.
func (r *Runner) Ingest(ctx context.Context, topicID string, row map[string]any, p principal.Principal, traceID string) (*Report, error) {
	if r.storage == nil {
		return nil, fmt.Errorf("runner: ingest requires storage")
	}
	ctx = principal.Set(ctx, p)
	topic, err := r.topics.FindByID(ctx, topicID)
	if err != nil {
		return nil, err
	}
	svc, err := r.storage.ServiceFor(ctx, topic, p)
	if err != nil {
		return nil, err
	}
	stored, err := svc.Insert(ctx, row)
	if err != nil {
		return nil, err
	}
	id, _ := svc.EntityHelper().IDOf(stored)
	return r.Run(ctx, Trigger{
		Topic: topic,
		TopicTrigger: model.TopicTrigger{
			Current:        stored,
			TriggerType:    model.TriggerInsert,
			InternalDataID: id,
		},
		TraceID: traceID,
	}, p)
}

// Report is the outcome of one trigger: every run in execution order.
type Report struct {
	TraceID string
	Results []*kernel.RunResult
	// Truncated is set when MaxRuns stopped the cascade.
	Truncated bool
	Duration  time.Duration
}

// Failed returns the number of runs that ended in ERROR.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Failed() {
			n++
		}
	}
	return n
}

// Logs returns the monitor logs of the runs in execution order.
func (r *Report) Logs() []*monitor.PipelineLog {
	logs := make([]*monitor.PipelineLog, len(r.Results))
	for i, res := range r.Results {
		logs[i] = res.Log
	}
	return logs
}
