package httpx

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/MikeMC777/product-gateway/internal/observability"
)

// RequestIDHeader carries the request id in and out of the gateway.
const RequestIDHeader = "X-Request-ID"

// RequestID reuses the caller's X-Request-ID or mints one, and stores it in
// the gin context ("rid") and the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("rid", rid)
		c.Request = c.Request.WithContext(observability.ContextWithRequestID(c.Request.Context(), rid))
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Next()
	}
}

// Logger writes one access log line per request.
func Logger(log observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithContext(c.Request.Context()).Info("http request",
			observability.String("method", c.Request.Method),
			observability.String("path", c.Request.URL.Path),
			observability.String("route", c.FullPath()),
			observability.Int("status", c.Writer.Status()),
			observability.Int("size", c.Writer.Size()),
			observability.Duration("duration", time.Since(start)),
			observability.String("client_ip", c.ClientIP()),
		)
	}
}

// Recovery turns a panic into a 500 JSON body.
func Recovery(log observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.WithContext(c.Request.Context()).Error("panic recovered",
					observability.String("path", c.Request.URL.Path),
					observability.String("method", c.Request.Method),
					observability.Any("error", err),
					observability.String("stack", string(debug.Stack())),
				)
				if !c.Writer.Written() {
					c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// Metrics records request counts, latency and in-flight requests, labelled
// by route template.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		done := m.RequestStarted()
		defer done()
		c.Next()
		m.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}

// Tracing opens a server span per request, continuing any trace the caller
// propagated.
func Tracing(t *observability.Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		ctx := t.Propagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		name := c.FullPath()
		if name == "" {
			name = r.URL.Path
		}
		ctx, span := t.StartSpan(ctx, r.Method+" "+name,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", c.FullPath()),
				attribute.String("url.path", r.URL.Path),
				attribute.String("user_agent.original", r.UserAgent()),
			),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			ctx = observability.ContextWithTraceID(ctx, sc.TraceID().String())
		}
		c.Request = r.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetAttributes(attribute.Bool("error", true))
		}
	}
}
