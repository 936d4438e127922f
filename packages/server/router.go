package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/vogtb/gridsync/packages/docstore"
	"github.com/vogtb/gridsync/packages/livews"
)

// RouterConfig wires the HTTP router
type RouterConfig struct {
	Store *docstore.Store
	Hub   *livews.Hub

	// Gatherer backs /metrics. nil leaves the endpoint out.
	Gatherer prometheus.Gatherer

	ServiceName string
	Logger      *slog.Logger
}

// NewRouter builds the gin engine with health, metrics and the v1 API
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.ServiceName
	if name == "" {
		name = "gridsync"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(name))
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		resp := HealthResponse{Status: "healthy"}
		if cfg.Hub != nil {
			resp.Connections = cfg.Hub.Connections()
		}
		c.JSON(http.StatusOK, resp)
	})
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(cfg.Store, cfg.Hub, logger))
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
