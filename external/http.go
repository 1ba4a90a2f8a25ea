package external

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/watchmen-go/kernel/errors"
	"github.com/watchmen-go/kernel/httpclient"
	"github.com/watchmen-go/kernel/logger"
	"github.com/watchmen-go/kernel/observability"
	"github.com/watchmen-go/kernel/resilience"
)

// HTTPWriter posts requests as JSON to a fixed URL.
type HTTPWriter struct {
	id     string
	url    string
	client *httpclient.Client
	log    *logger.Logger
}

// NewHTTPWriter creates an HTTP writer from cfg. The client is rate limited,
// retries retryable failures and opens its circuit after repeated ones.
func NewHTTPWriter(cfg WriterConfig, log *logger.Logger) (*HTTPWriter, error) {
	cfg.ApplyDefaults()

	var auth httpclient.Auth
	switch {
	case cfg.PAT != "":
		auth = httpclient.PATAuth(cfg.PAT)
	case cfg.Token != "":
		auth = httpclient.BearerAuth(cfg.Token)
	}

	retry := httpclient.DefaultRetryConfig()
	if cfg.Retries > 0 {
		retry.MaxAttempts = cfg.Retries
	}
	limiter := resilience.DefaultRateLimiterConfig("external." + cfg.ID)
	limiter.Rate, limiter.Burst = cfg.RateLimit, cfg.Burst

	client, err := httpclient.New(httpclient.Config{
		Timeout: cfg.Timeout,
		Auth:    auth,
		Headers: map[string]string{"X-Watchmen-Writer": cfg.ID},
		Retry:   retry,
		Breaker: httpclient.DefaultCircuitBreakerConfig("external." + cfg.ID),
		Limiter: &limiter,
	})
	if err != nil {
		return nil, err
	}
	return &HTTPWriter{
		id:     cfg.ID,
		url:    cfg.URL,
		client: client,
		log:    log.WithComponent("external.http"),
	}, nil
}

func (w *HTTPWriter) ID() string { return w.id }

// Write posts req. Non-2xx responses are errors.
func (w *HTTPWriter) Write(ctx context.Context, req *Request) error {
	ctx, span := observability.Tracer().Start(ctx, observability.SpanExternal, trace.WithAttributes(
		attribute.String("watchmen.writer.id", w.id),
		attribute.String(observability.AttrPipelineID, req.PipelineID),
		attribute.String(observability.AttrTraceID, req.TraceID),
	))

	resp, err := w.client.PostJSON(ctx, w.url, req, map[string]string{"X-Watchmen-Trace": req.TraceID})
	if err != nil {
		observability.EndSpan(span, "error", err)
		w.log.WithError(err).Warn("external write failed", logger.Fields(
			logger.FieldPipelineID, req.PipelineID,
			logger.FieldTraceID, req.TraceID,
			"event_code", req.EventCode,
		))
		return apperrors.ExternalWriter(w.id, err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	observability.EndSpan(span, "ok", nil)
	return nil
}
