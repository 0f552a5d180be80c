package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MikeMC777/product-gateway/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	var fromCtx, fromGin string
	r.GET("/x", func(c *gin.Context) {
		fromCtx = observability.RequestIDFromContext(c.Request.Context())
		fromGin = c.GetString("rid")
		c.Status(http.StatusOK)
	})

	// caller supplied
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "given-id")
	r.ServeHTTP(w, req)
	assert.Equal(t, "given-id", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "given-id", fromCtx)
	assert.Equal(t, "given-id", fromGin)

	// generated
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, fromCtx)
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(observability.NewLoggerFromZap(zap.New(core))))
	r.GET("/api/client/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/client/7", nil)
	req.Header.Set(RequestIDHeader, "rid-7")
	r.ServeHTTP(w, req)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/api/client/:id", fields["route"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "rid-7", fields["request_id"])
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(observability.NopLogger()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}

func TestMetrics(t *testing.T) {
	m := observability.NewMetrics("test")
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/api/client/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/client/1", nil))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	n, err := testutil.GatherAndCount(m.Registry(), "test_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per route/status pair")
}

func TestTracing(t *testing.T) {
	tracer, err := observability.NewTracer(observability.TracerConfig{ServiceName: "test"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(Tracing(tracer))
	var traceID string
	r.GET("/x", func(c *gin.Context) {
		traceID = observability.TraceIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)
}
