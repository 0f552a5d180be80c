package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	_ "github.com/MikeMC777/product-gateway/docs"
	"github.com/MikeMC777/product-gateway/internal/config"
	"github.com/MikeMC777/product-gateway/internal/observability"
	"github.com/MikeMC777/product-gateway/internal/product"
)

const serviceName = "product-gateway"

// @title           Product Gateway API
// @version         1.0
// @description     REST facade over the product service.
// @BasePath        /
func main() {
	if err := run(); err != nil {
		log.Fatalf("product-gateway: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  serviceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.SamplingRate,
		Enabled:      cfg.TracingEnabled,
	})
	if err != nil {
		return err
	}

	opts := []product.ClientOption{
		product.WithTransport(otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithTracerProvider(tracer.TracerProvider()),
			otelhttp.WithPropagators(tracer.Propagator()),
		)),
	}
	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.NewMetrics("product_gateway")
		opts = append(opts, product.WithRecorder(metrics))
	}

	d := deps{
		log:      logger,
		metrics:  metrics,
		upstream: product.NewClient(cfg.BaseEndpoint, cfg.UpstreamTimeout, opts...),
	}
	if cfg.TracingEnabled {
		d.tracer = tracer
	}

	srv := &http.Server{
		Addr:              cfg.GatewayAddr,
		Handler:           newRouter(d),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("product gateway listening",
			observability.String("addr", cfg.GatewayAddr),
			observability.String("upstream", cfg.BaseEndpoint),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("server failed", observability.Error(err))
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}

	logger.Info("product gateway stopped")
	return nil
}
