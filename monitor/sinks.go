package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/watchmen-go/kernel/kafka/producer"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/redis"
)

// LoggerSink writes a one-line summary of each run.
type LoggerSink struct {
	log *logger.Logger
}

// NewLoggerSink creates a sink over log.
func NewLoggerSink(log *logger.Logger) *LoggerSink {
	return &LoggerSink{log: log.WithComponent("monitor.log")}
}

func (s *LoggerSink) Name() string { return SinkLogger }

func (s *LoggerSink) Write(_ context.Context, l *PipelineLog) error {
	inserted, updated, deleted := l.Counts()
	fields := logger.Fields(
		logger.FieldPipelineID, l.PipelineID,
		logger.FieldTopic, l.TopicID,
		logger.FieldTraceID, l.TraceID,
		logger.FieldStatus, string(l.Status),
		logger.FieldDuration, l.SpentInMills,
		"prerequisite", l.Prerequisite,
		"stages", len(l.Stages),
		"inserted", inserted,
		"updated", updated,
		"deleted", deleted,
	)
	if l.Failed() {
		fields[logger.FieldError] = l.FirstError()
		s.log.Error("pipeline run failed", fields)
		return nil
	}
	s.log.Info("pipeline run finished", fields)
	return nil
}

// RedisSink stores each log by trace id and keeps capped lists of recent
// logs, one overall and one per pipeline.
type RedisSink struct {
	journal *redis.Journal[PipelineLog]
}

const recentList = "recent"

func pipelineList(pipelineID string) string { return "pipeline:" + pipelineID }

// NewRedisSink creates a sink over client.
func NewRedisSink(client *redis.Client, cfg Config) *RedisSink {
	cfg.ApplyDefaults()
	return &RedisSink{
		journal: redis.NewJournal[PipelineLog](client, cfg.RedisKey, cfg.MaxEntries, cfg.TTLDuration()),
	}
}

func (s *RedisSink) Name() string { return SinkRedis }

func (s *RedisSink) Write(ctx context.Context, l *PipelineLog) error {
	if err := s.journal.Append(ctx, l.TraceID+":"+l.UID, l, recentList, pipelineList(l.PipelineID)); err != nil {
		return fmt.Errorf("redis monitor sink: %w", err)
	}
	return nil
}

// Recent returns up to n of the newest logs, newest last. An empty
// pipelineID reads the overall list.
func (s *RedisSink) Recent(ctx context.Context, pipelineID string, n int64) ([]*PipelineLog, error) {
	list := recentList
	if pipelineID != "" {
		list = pipelineList(pipelineID)
	}
	return s.journal.Recent(ctx, list, n)
}

// Load returns one log by trace id and uid, or nil when it expired.
func (s *RedisSink) Load(ctx context.Context, traceID, uid string) (*PipelineLog, error) {
	return s.journal.Get(ctx, traceID+":"+uid)
}

// KafkaSink publishes each log as an event keyed by trace id.
type KafkaSink struct {
	publisher producer.Publisher
	topic     string
}

// NewKafkaSink creates a sink publishing to topic.
func NewKafkaSink(publisher producer.Publisher, topic string) *KafkaSink {
	return &KafkaSink{publisher: publisher, topic: topic}
}

func (s *KafkaSink) Name() string { return SinkKafka }

func (s *KafkaSink) Write(ctx context.Context, l *PipelineLog) error {
	if err := s.publisher.PublishJSON(ctx, s.topic, l.TraceID, l); err != nil {
		return fmt.Errorf("kafka monitor sink: %w", err)
	}
	return nil
}

// Recorder keeps logs in memory.
type Recorder struct {
	mu   sync.Mutex
	logs []*PipelineLog
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Write(_ context.Context, l *PipelineLog) error {
	r.mu.Lock()
	r.logs = append(r.logs, l)
	r.mu.Unlock()
	return nil
}

// Handle records log, ignoring async.
func (r *Recorder) Handle(ctx context.Context, l *PipelineLog, _ bool) error {
	return r.Write(ctx, l)
}

// Logs returns the recorded logs in arrival order.
func (r *Recorder) Logs() []*PipelineLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*PipelineLog(nil), r.logs...)
}

// Reset drops the recorded logs.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.logs = nil
	r.mu.Unlock()
}
