package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"json", "console"} {
		logger, err := NewLogger(LogConfig{Level: "debug", Format: format})
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}

	_, err := NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewLoggerFromZap(zap.New(core))

	ctx := ContextWithRequestID(context.Background(), "rid-1")
	ctx = ContextWithTraceID(ctx, "trace-1")
	logger.WithContext(ctx).Info("hello")
	logger.WithContext(context.Background()).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "rid-1", fields["request_id"])
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Empty(t, entries[1].ContextMap())
}

func TestContextIDs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, TraceIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "abc")
	assert.Equal(t, "abc", RequestIDFromContext(ctx))
}

func TestMetrics_Observe(t *testing.T) {
	t.Parallel()

	m := NewMetrics("")
	m.ObserveRequest(http.MethodGet, "/api/client/:id", http.StatusNotFound, 5*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)
	m.ObserveUpstream("findById", "not_found", 3*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/api/client/:id", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", unmatchedRoute, "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamTotal.WithLabelValues("findById", "not_found")))

	done := m.RequestStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
}

func TestMetrics_Handler(t *testing.T) {
	t.Parallel()

	m := NewMetrics("gateway")
	m.ObserveUpstream("list", "success", time.Millisecond)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "gateway_upstream_requests_total"))
}

func TestTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{ServiceName: "product-gateway"})
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "op")
	span.End()
	assert.NotNil(t, ctx)
	assert.NotNil(t, tracer.Propagator())
	assert.NotNil(t, tracer.TracerProvider())
	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_EnabledWithoutExporter(t *testing.T) {
	tracer, err := NewTracer(TracerConfig{ServiceName: "product-gateway", Enabled: true, SamplingRate: 1})
	require.NoError(t, err)

	_, span := tracer.StartSpan(context.Background(), "op")
	assert.True(t, span.SpanContext().HasTraceID())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	assert.Contains(t, createSampler(1).Description(), "AlwaysOn")
	assert.Contains(t, createSampler(0).Description(), "AlwaysOff")
	assert.Contains(t, createSampler(0.5).Description(), "TraceIDRatioBased")
}
