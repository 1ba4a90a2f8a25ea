package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/watchmen-go/kernel/config"
	"github.com/watchmen-go/kernel/database"
	"github.com/watchmen-go/kernel/encryption"
	"github.com/watchmen-go/kernel/external"
	"github.com/watchmen-go/kernel/kafka/producer"
	"github.com/watchmen-go/kernel/kernel"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/metadata"
	"github.com/watchmen-go/kernel/model"
	"github.com/watchmen-go/kernel/monitor"
	"github.com/watchmen-go/kernel/observability"
	"github.com/watchmen-go/kernel/principal"
	"github.com/watchmen-go/kernel/redis"
	"github.com/watchmen-go/kernel/runner"
	"github.com/watchmen-go/kernel/topicdata"
	"github.com/watchmen-go/kernel/version"
)

// triggerFile is a change to run pipelines on. With Ingest the row is
// stored first and the insert triggers the pipelines; otherwise the
// trigger is dispatched as given.
type triggerFile struct {
	Topic     string              `yaml:"topic"`
	Type      model.TriggerType   `yaml:"type"`
	Ingest    *bool               `yaml:"ingest"`
	TraceID   string              `yaml:"traceId"`
	DataID    string              `yaml:"dataId"`
	Principal principal.Principal `yaml:"principal"`
	Previous  map[string]any      `yaml:"previous"`
	Current   map[string]any      `yaml:"current"`
}

func (t *triggerFile) ingest() bool { return t.Ingest == nil || *t.Ingest }

func parseTrigger(data []byte) (*triggerFile, error) {
	var t triggerFile
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse trigger: %w", err)
	}
	if t.Topic == "" {
		return nil, fmt.Errorf("trigger: topic is required")
	}
	if t.Current == nil && t.Type != model.TriggerDelete {
		return nil, fmt.Errorf("trigger: current is required")
	}
	if t.Type == "" {
		t.Type = model.TriggerInsert
	}
	if t.ingest() && t.Type != model.TriggerInsert {
		return nil, fmt.Errorf("trigger: only insert triggers can be ingested (got: %s)", t.Type)
	}
	if err := t.Principal.Validate(); err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}
	return &t, nil
}

func loadTriggerFile(path string) (*triggerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger file: %w", err)
	}
	return parseTrigger(data)
}

// app holds the wired kernel and everything that must be closed with it.
type app struct {
	registry *metadata.Registry
	runner   *runner.Runner
	log      *logger.Logger
	closers  []func(ctx context.Context) error
}

func newApp(ctx context.Context, cfg *config.KernelConfig, definitions string) (_ *app, err error) {
	logger.Init(cfg.Logging)
	logger.RegisterDefaults(logger.ComponentKernel, logger.ComponentRunner, logger.ComponentMonitor)
	a := &app{registry: metadata.NewRegistry(), log: logger.Get(logger.ComponentRunner)}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	defs, err := metadata.Load(definitions)
	if err != nil {
		return nil, err
	}
	if err := a.registry.Load(defs); err != nil {
		return nil, err
	}
	a.log.Info("definitions loaded", logger.Fields(
		"topics", len(defs.Topics),
		"pipelines", len(defs.Pipelines),
		"build", version.Current().String(),
	))

	if cfg.Tracing.Enabled {
		tp, err := observability.InitTracer(ctx, cfg.Tracing)
		if err != nil {
			return nil, err
		}
		a.onClose(tp.Shutdown)
	}

	storage, err := a.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	handler, err := a.openMonitor(cfg)
	if err != nil {
		return nil, err
	}
	crypto, err := encryption.NewFactorCrypto(cfg.Encryption)
	if err != nil {
		return nil, err
	}
	writers, err := external.Build(ctx, cfg.External, logger.Get("external"))
	if err != nil {
		return nil, err
	}

	k, err := kernel.New(kernel.Options{
		Topics:    a.registry,
		Pipelines: a.registry.Pipelines(),
		Storage:   storage,
		External:  writers,
		Crypto:    crypto,
		Monitor:   handler,
		Pipeline:  cfg.Pipeline,
		Logger:    logger.Get(logger.ComponentKernel),
	})
	if err != nil {
		return nil, err
	}
	a.runner, err = runner.New(runner.Options{
		Kernel:    k,
		Topics:    a.registry,
		Pipelines: a.registry.Pipelines(),
		Storage:   storage,
		MaxRuns:   cfg.Pipeline.MaxRunsPerTrigger,
		Logger:    a.log,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context, cfg *config.KernelConfig) (topicdata.Provider, error) {
	if cfg.Storage != config.StorageGorm {
		return topicdata.NewMemoryStore(), nil
	}
	db, err := database.Open(ctx, cfg.Database, logger.Get("database"))
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return db.Close() })
	return topicdata.NewGormStore(db)
}

func (a *app) openMonitor(cfg *config.KernelConfig) (monitor.Handler, error) {
	var backends monitor.Backends
	if cfg.Monitor.Uses(monitor.SinkRedis) {
		client, err := redis.New(cfg.Redis, logger.Get("redis"))
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return client.Close() })
		backends.Redis = client
	}
	if cfg.Monitor.Uses(monitor.SinkKafka) {
		p, err := producer.NewProducer(cfg.Kafka, logger.Get("kafka"))
		if err != nil {
			return nil, err
		}
		publisher := producer.NewPublisher(p, cfg.Name, logger.Get("kafka"))
		a.onClose(func(context.Context) error { return publisher.Close() })
		backends.Publisher = publisher
		backends.KafkaTopic = cfg.Kafka.Topic
	}
	sinks, err := monitor.BuildSinks(cfg.Monitor, logger.Get(logger.ComponentMonitor), backends)
	if err != nil {
		return nil, err
	}
	dispatcher := monitor.NewDispatcher(cfg.Monitor, logger.Get(logger.ComponentMonitor), sinks...)
	a.onClose(func(context.Context) error { return dispatcher.Close() })
	return dispatcher, nil
}

func (a *app) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition. The monitor
// dispatcher is closed before the clients its sinks write to.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// fire dispatches a trigger file through the runner.
func (a *app) fire(ctx context.Context, t *triggerFile) (*runner.Report, error) {
	p := t.Principal
	if t.ingest() {
		return a.runner.Ingest(ctx, t.Topic, t.Current, p, t.TraceID)
	}
	topic, err := a.registry.FindByID(principal.Set(ctx, p), t.Topic)
	if err != nil {
		return nil, err
	}
	return a.runner.Run(ctx, runner.Trigger{
		Topic: topic,
		TopicTrigger: model.TopicTrigger{
			Previous:       t.Previous,
			Current:        t.Current,
			TriggerType:    t.Type,
			InternalDataID: t.DataID,
		},
		TraceID: t.TraceID,
	}, p)
}
