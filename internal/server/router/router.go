package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mamadbah2/asigest/internal/server/handlers"
)

const streamPath = "/api/dashboard/stream"

// Handlers groups the HTTP adapters mounted by the router.
type Handlers struct {
	Dashboard *handlers.DashboardHandler
	Reports   *handlers.ReportHandler
	Batches   *handlers.BatchHandler
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(zapLoggerMiddleware(logger))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{streamPath})))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/dashboard", h.Dashboard.Get)
		api.POST("/dashboard/refresh", h.Dashboard.Refresh)
		api.GET("/dashboard/stream", h.Dashboard.Stream)

		api.GET("/report", h.Reports.Get)
		api.GET("/report/export", h.Reports.Export)
		api.GET("/report/history", h.Reports.History)

		api.POST("/lotti", h.Batches.Open)
		api.GET("/lotti/:id", h.Batches.Get)
		api.PUT("/lotti/:id/close", h.Batches.Close)
	}

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

// WithCORS wraps the engine with the browser origins allowed to call the API.
func WithCORS(engine http.Handler, allowedOrigins []string) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}).Handler(engine)
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == streamPath {
			logger.Debug("stream closed",
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", c.ClientIP()))
			return
		}

		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}
