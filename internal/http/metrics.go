package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/signald/internal/http"

var (
	durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sizeBuckets     = []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000}
)

// HTTPMetrics records OpenTelemetry request metrics. Instruments that fail
// to register stay nil and are skipped.
type HTTPMetrics struct {
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	responseSize   metric.Int64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTPMetrics on the global meter provider.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	return newHTTPMetrics(otel.Meter(httpInstrumentationName), logger)
}

func newHTTPMetrics(meter metric.Meter, logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("failed to register http instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &HTTPMetrics{}
	var err error
	m.requestsTotal, err = meter.Int64Counter("signald.http.requests_total",
		metric.WithDescription("HTTP requests by method, route, webhook source and status"),
		metric.WithUnit("{request}"))
	warn("requests_total", err)

	m.requestDur, err = meter.Float64Histogram("signald.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	warn("request_duration_seconds", err)

	m.responseSize, err = meter.Int64Histogram("signald.http.response_size_bytes",
		metric.WithDescription("HTTP response body size"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...))
	warn("response_size_bytes", err)

	m.activeRequests, err = meter.Int64UpDownCounter("signald.http.active_requests",
		metric.WithDescription("In-flight HTTP requests"),
		metric.WithUnit("{request}"))
	warn("active_requests", err)
	return m
}

// MetricsMiddleware records request metrics under the matched route template.
// Webhook routes also carry their source so GitHub and generic feeds can be
// told apart.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
				defer m.activeRequests.Add(ctx, -1)
			}

			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", c.Request().Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.String("source", webhookSource(c)),
				attribute.Int("status", c.Response().Status),
			)
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.responseSize != nil {
				m.responseSize.Record(ctx, c.Response().Size, attrs)
			}
			return err
		}
	}
}

// normalizePath returns the route template, so ids in the URL never become
// label values. Unmatched requests share one label.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}

// webhookSource names the feed for webhook routes. Unvalidated source
// names collapse to "invalid" to keep label cardinality bounded.
func webhookSource(c echo.Context) string {
	switch c.Path() {
	case "/api/v1/workspaces/:workspace/webhooks/github":
		return "github"
	case "/api/v1/workspaces/:workspace/webhooks/:source":
		if c.Response().Status == 400 {
			return "invalid"
		}
		return c.Param("source")
	default:
		return ""
	}
}
