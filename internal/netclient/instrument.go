package netclient

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type requestIDKey struct{}

// Instrument adds a span and debug logs around every request made by
// client. A nil tracer uses the global provider.
func Instrument(client *resty.Client, logger *slog.Logger, tracer trace.Tracer) {
	if logger == nil {
		logger = slog.Default()
	}
	if tracer == nil {
		tracer = otel.Tracer("github.com/nao1215/leadscan/internal/netclient")
	}

	var counter uint64

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), "http "+req.Method,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("http.url", req.URL),
			),
		)
		id := strconv.FormatUint(atomic.AddUint64(&counter, 1), 10)
		ctx = context.WithValue(ctx, requestIDKey{}, id)
		logger.DebugContext(ctx, "start request", "method", req.Method, "url", req.URL, "request_id", id)
		req.SetContext(ctx)
		return nil
	})

	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		ctx := res.Request.Context()
		span := trace.SpanFromContext(ctx)
		defer span.End()

		span.SetAttributes(attribute.Int("http.status_code", res.StatusCode()))
		if res.IsError() {
			span.SetStatus(codes.Error, res.Status())
		}

		id, _ := ctx.Value(requestIDKey{}).(string)
		logger.DebugContext(ctx, "request finished",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"status", res.StatusCode(),
			"elapsed", res.Time(),
			"request_id", id,
		)
		return nil
	})

	client.OnError(func(req *resty.Request, err error) {
		ctx := req.Context()
		span := trace.SpanFromContext(ctx)
		defer span.End()

		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")

		id, _ := ctx.Value(requestIDKey{}).(string)
		logger.WarnContext(ctx, "request failed",
			"method", req.Method,
			"url", req.URL,
			"error", err,
			"request_id", id,
		)
	})
}
