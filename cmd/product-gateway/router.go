package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/MikeMC777/product-gateway/internal/httpx"
	"github.com/MikeMC777/product-gateway/internal/observability"
	"github.com/MikeMC777/product-gateway/internal/product"
)

// deps is everything the router needs. Metrics and tracer may be nil.
type deps struct {
	log      observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	upstream product.Upstream
}

func newRouter(d deps) *gin.Engine {
	r := gin.New()

	r.Use(httpx.Recovery(d.log), httpx.RequestID())
	if d.tracer != nil {
		r.Use(httpx.Tracing(d.tracer))
	}
	if d.metrics != nil {
		r.Use(httpx.Metrics(d.metrics))
	}
	r.Use(httpx.Logger(d.log))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if d.metrics != nil {
		r.GET("/metrics", gin.WrapH(d.metrics.Handler()))
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	product.RegisterRoutes(r, product.NewHandler(d.upstream, d.log))
	return r
}
