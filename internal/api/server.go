package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/optiscale/pulse/internal/audit"
	"github.com/optiscale/pulse/internal/provider"
	"github.com/optiscale/pulse/internal/record"
	"github.com/optiscale/pulse/internal/scheduler"
)

// Trigger is the on-demand collection surface the scheduler provides.
type Trigger interface {
	Submit(providerSlug, customerID string, dataTypes []string) (scheduler.Job, error)
	RunSync(ctx context.Context, providerSlug, customerID string, dataTypes []string) (scheduler.Job, provider.CollectionResult)
	Status(taskID string) (scheduler.Job, bool)
}

// MetricReader reads recently stored metric records back for the API.
type MetricReader interface {
	RecentCost(ctx context.Context, customerID string, limit int) ([]record.CostMetric, error)
	RecentPerformance(ctx context.Context, customerID string, limit int) ([]record.PerformanceMetric, error)
	RecentResource(ctx context.Context, customerID string, limit int) ([]record.ResourceMetric, error)
	RecentApplication(ctx context.Context, customerID string, limit int) ([]record.ApplicationMetric, error)
}

// Server exposes the trigger, status, read-back, and history endpoints.
type Server struct {
	router     *gin.Engine
	logger     zerolog.Logger
	httpServer *http.Server
	trigger    Trigger
	reader     MetricReader
	history    audit.Recorder
	version    string
}

// Options bundles the server's collaborators.
type Options struct {
	Logger   zerolog.Logger
	Addr     string
	Trigger  Trigger
	Reader   MetricReader
	History  audit.Recorder
	Registry *prometheus.Registry
	Version  string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	srv := &Server{
		logger:  opts.Logger.With().Str("component", "api").Logger(),
		trigger: opts.Trigger,
		reader:  opts.Reader,
		history: opts.History,
		version: opts.Version,
	}

	if os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv.router = gin.New()
	srv.router.Use(
		gin.Recovery(),
		requestLogger(srv.logger),
	)

	srv.registerRoutes(opts.Registry)

	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv.httpServer = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}

	return srv
}

// Router returns the underlying gin engine, used by tests.
func (s *Server) Router() http.Handler { return s.router }

// Start starts the API server and blocks until it stops listening.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down API server")
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

// registerRoutes registers all API routes.
func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.router.GET("/health", s.healthCheck)
	if registry != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/api/v1")
	{
		collections := v1.Group("/collections")
		{
			collections.POST("", s.triggerCollection)
			collections.GET("/:id", s.getCollection)
			collections.GET("/:id/result", s.getCollectionResult)
		}
		v1.GET("/metrics/:kind", s.listMetrics)
		v1.GET("/history", s.listHistory)
	}
}

// healthCheck handles the health check endpoint.
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
	})
}

// requestLogger is a middleware that logs HTTP requests.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		errMsg := c.Errors.ByType(gin.ErrorTypePrivate).String()

		event := logger.Info()
		if statusCode >= 400 {
			event = logger.Error().Str("error", errMsg)
		}

		event.Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Str("ip", c.ClientIP()).
			Dur("latency", latency).
			Msg("request processed")
	}
}
