// Package monitor records what a pipeline run did.
//
// Every run produces one PipelineLog tree (pipeline, stages, units,
// actions) and hands it to a Handler exactly once. Dispatcher is the
// Handler used in production: it writes to the configured sinks inline, or
// queues the log when the run asks for asynchronous handling.
//
// Sinks:
//   - LoggerSink: a summary line through the kernel logger
//   - RedisSink: the full tree by trace id plus capped recent lists
//   - KafkaSink: the full tree as an event on a topic
package monitor
