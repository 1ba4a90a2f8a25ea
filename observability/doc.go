// Package observability provides OpenTelemetry tracing and metrics for
// pipeline runs.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, cfg.Tracing)
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartPipelineSpan(ctx, pipelineID, topicID, tenantID, traceID)
//	defer observability.EndSpan(span, "DONE", nil)
//
// Metrics are recorded on the global meter provider:
//
//	metrics, err := observability.NewMetrics(observability.Meter())
//	metrics.RecordRun(ctx, pipelineID, "DONE", elapsed)
package observability
