package monitor

import (
	"context"
	"errors"
	"sync"

	"github.com/watchmen-go/kernel/logger"
)

// Handler receives the completed log tree of every run.
type Handler interface {
	// Handle is called exactly once per run. With async the handler may
	// return before the log is persisted.
	Handle(ctx context.Context, log *PipelineLog, async bool) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, log *PipelineLog, async bool) error

func (f HandlerFunc) Handle(ctx context.Context, log *PipelineLog, async bool) error {
	return f(ctx, log, async)
}

// Sink persists or emits a log.
type Sink interface {
	Name() string
	Write(ctx context.Context, log *PipelineLog) error
}

// Dispatcher fans logs out to sinks. Asynchronous logs are queued and
// written by background workers.
type Dispatcher struct {
	sinks []Sink
	log   *logger.Logger

	queue   chan *PipelineLog
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	closeMu sync.Once
}

var _ Handler = (*Dispatcher)(nil)

// NewDispatcher starts a dispatcher with cfg.Workers workers.
func NewDispatcher(cfg Config, log *logger.Logger, sinks ...Sink) *Dispatcher {
	cfg.ApplyDefaults()
	d := &Dispatcher{
		sinks: sinks,
		log:   log.WithComponent("monitor"),
		queue: make(chan *PipelineLog, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Handle writes log to every sink, inline or through the queue.
func (d *Dispatcher) Handle(ctx context.Context, log *PipelineLog, async bool) error {
	if !async {
		return d.write(ctx, log)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.closed {
		select {
		case d.queue <- log:
			return nil
		default:
			d.log.Warn("monitor queue full, writing inline", logger.Fields(logger.FieldPipelineID, log.PipelineID))
		}
	}
	return d.write(context.WithoutCancel(ctx), log)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for l := range d.queue {
		if err := d.write(context.Background(), l); err != nil {
			d.log.WithError(err).Error("failed to write monitor log", logger.Fields(
				logger.FieldPipelineID, l.PipelineID,
				logger.FieldTraceID, l.TraceID,
			))
		}
	}
}

func (d *Dispatcher) write(ctx context.Context, log *PipelineLog) error {
	var errs []error
	for _, s := range d.sinks {
		if err := s.Write(ctx, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops accepting queued logs and waits for the queue to drain.
func (d *Dispatcher) Close() error {
	d.closeMu.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	d.wg.Wait()
	return nil
}
