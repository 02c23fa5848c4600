package api

import (
	"context"
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
	requestSpanName    = "board.request"
	requestEventName   = "board.request.metrics"
	requestEventDomain = "prism-board"
	observabilityEvent = "observability.event"
	metricsContextKey  = "board.metrics"
)

type requestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	route          string
	method         string
	owner          string
	start          time.Time
	authDuration   time.Duration
	loadDuration   time.Duration
	encodeDuration time.Duration
	queued         *bool
	errorStage     string
}

func newRequestMetrics(ctx context.Context, logger *log.Logger, method, route string) (*requestMetrics, context.Context) {
	ctx, span := otel.Tracer("prism-board/api").Start(ctx, requestSpanName, trace.WithAttributes(
		attribute.String("http.route", route),
		attribute.String("http.method", method),
	))
	return &requestMetrics{
		logger: logger,
		span:   span,
		route:  route,
		method: method,
		start:  time.Now(),
	}, ctx
}

// instrument wraps a handler with one span and one metrics entry per request.
func instrument(logger *log.Logger, route string, h echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		req := c.Request()
		m, ctx := newRequestMetrics(req.Context(), logger, req.Method, route)
		c.SetRequest(req.WithContext(ctx))
		c.Set(metricsContextKey, m)
		defer func() {
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			}
			m.Log(status, err)
		}()
		return h(c)
	}
}

func metricsFrom(c echo.Context) *requestMetrics {
	m, _ := c.Get(metricsContextKey).(*requestMetrics)
	return m
}

func (m *requestMetrics) ObserveAuth(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.authDuration = d
}

func (m *requestMetrics) ObserveLoad(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.loadDuration = d
}

func (m *requestMetrics) ObserveEncode(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.encodeDuration = d
}

func (m *requestMetrics) SetOwner(owner string) {
	if m == nil {
		return
	}
	m.owner = owner
}

func (m *requestMetrics) SetQueued(queued bool) {
	if m == nil {
		return
	}
	m.queued = &queued
}

func (m *requestMetrics) SetErrorStage(stage string) {
	if m == nil || stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *requestMetrics) attributes(status int, err error) map[string]any {
	attrs := map[string]any{
		"http.route":              m.route,
		"http.method":             m.method,
		"http.status_code":        status,
		"prism.board.total_ms":    durationToMillis(time.Since(m.start)),
		"prism.board.owner_known": m.owner != "",
	}
	if m.authDuration > 0 {
		attrs["prism.board.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.loadDuration > 0 {
		attrs["prism.board.load_ms"] = durationToMillis(m.loadDuration)
	}
	if m.encodeDuration > 0 {
		attrs["prism.board.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.queued != nil {
		attrs["prism.board.queued"] = *m.queued
	}
	if m.errorStage != "" {
		attrs["prism.board.error_stage"] = m.errorStage
	}
	if err != nil {
		attrs["error.message"] = err.Error()
	}
	return attrs
}

// Log emits the request's observability event to the log and the span, then
// ends the span.
func (m *requestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status, err)
	severityText, severityNumber := severityForStatus(status, err)

	if m.span != nil {
		kvs := make([]attribute.KeyValue, 0, len(attrs)+4)
		kvs = append(kvs,
			attribute.String("event.name", requestEventName),
			attribute.String("event.domain", requestEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		)
		for k, v := range attrs {
			kvs = append(kvs, toAttribute(k, v))
		}
		m.span.AddEvent(observabilityEvent, trace.WithAttributes(kvs...))
		m.span.SetAttributes(attribute.Int("http.status_code", status))
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("prism.board.error_stage", m.errorStage))
		}
		if err != nil || status >= http.StatusInternalServerError {
			desc := http.StatusText(status)
			if err != nil {
				m.span.RecordError(err)
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		defer m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      requestEventName,
		"event.domain":    requestEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attrs,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
			fields["span_id"] = sc.SpanID().String()
		}
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
	case status >= http.StatusInternalServerError:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	case err != nil:
		return "ERROR", 17
	default:
		return "INFO", 9
	}
}

func toAttribute(k string, v any) attribute.KeyValue {
	switch val := v.(type) {
	case string:
		return attribute.String(k, val)
	case bool:
		return attribute.Bool(k, val)
	case int:
		return attribute.Int(k, val)
	case float64:
		return attribute.Float64(k, val)
	default:
		return attribute.String(k, "")
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
