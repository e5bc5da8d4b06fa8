package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/face-swap-service/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options holds the router's non-handler collaborators
type Options struct {
	ServiceName string
	// HealthCheck probes backing services; nil means always healthy.
	HealthCheck func(ctx context.Context) error
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	jobHandler := handler.NewJobHandler(deps)

	r.GET("/", jobHandler.Root)

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if opts.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := opts.HealthCheck(ctx); err != nil {
				deps.Logger.Error("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": opts.ServiceName,
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": opts.ServiceName,
		})
	})

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/face-swap/jobs")
		{
			// POST /api/v1/face-swap/jobs - Submit a face-swap job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/face-swap/jobs/:reference_id - Poll job status
			jobs.GET("/:reference_id", jobHandler.GetJob)
		}
	}

	// GET /static/output/:filename - Produced images
	r.GET("/static/output/:filename", jobHandler.ServeOutput)

	return r
}
