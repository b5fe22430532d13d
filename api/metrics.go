package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "collabnest.api"
	requestSpanName    = "api.request"
	requestEventName   = "api.request.completed"
	requestEventDomain = "collabnest.api"
	observabilityEvent = "observability.event"
	metricsContextKey  = "request.metrics"
)

type requestMetrics struct {
	logger          log.FieldLogger
	span            trace.Span
	method          string
	route           string
	start           time.Time
	authDuration    time.Duration
	storageDuration time.Duration
	tasks           int
	errorStage      string
}

func newRequestMetrics(ctx context.Context, logger log.FieldLogger, method, route string) (*requestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, requestSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		))
	return &requestMetrics{
		logger: logger,
		span:   span,
		method: method,
		route:  route,
		start:  time.Now(),
	}, spanCtx
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.authDuration = d
}

func (m *requestMetrics) ObserveStorage(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.storageDuration += d
}

func (m *requestMetrics) SetTasks(n int) {
	if m == nil || n < 0 {
		return
	}
	m.tasks = n
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

// Log ends the request span and emits one observability event carrying the
// same attributes.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.method", m.method),
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("collabnest.request.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("collabnest.request.tasks", m.tasks),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("collabnest.request.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.storageDuration > 0 {
		attrs = append(attrs, attribute.Float64("collabnest.request.storage_ms", durationToMillis(m.storageDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("collabnest.request.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	severityText, severityNumber := severityForStatus(status, err)
	m.span.SetAttributes(attrs...)
	m.span.AddEvent(observabilityEvent, trace.WithAttributes(append([]attribute.KeyValue{
		attribute.String("event.name", requestEventName),
		attribute.String("event.domain", requestEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)...))
	if err != nil || status >= http.StatusInternalServerError {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	traceID := m.span.SpanContext().TraceID()
	m.span.End()

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"attributes":      attributeMap(attrs),
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if traceID.IsValid() {
		fields["trace_id"] = traceID.String()
	}
	entry := m.logger.WithFields(fields)
	switch severityText {
	case "ERROR":
		entry.Error(observabilityEvent)
	case "WARN":
		entry.Warn(observabilityEvent)
	default:
		entry.Info(observabilityEvent)
	}
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func attributeMap(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}

// RequestMetricsMiddleware opens a span per request and logs the outcome
// when the handler returns.
func RequestMetricsMiddleware(logger log.FieldLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			m, ctx := newRequestMetrics(req.Context(), logger, req.Method, c.Path())
			c.SetRequest(req.WithContext(ctx))
			c.Set(metricsContextKey, m)

			err := next(c)
			status, logErr := c.Response().Status, err
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
				if status < http.StatusInternalServerError {
					logErr = nil
				}
			}
			m.Log(status, logErr)
			return err
		}
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}
