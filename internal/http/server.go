// Package http provides the HTTP API for signald.
package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/signald/internal/logging"
	"github.com/fyrsmithlabs/signald/internal/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server provides HTTP endpoints for signald.
type Server struct {
	echo     *echo.Echo
	services services.Registry
	logger   *zap.Logger
	config   *Config
	limiter  *ipLimiter
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// GitHubSecret validates GitHub webhook signatures. Empty disables the
	// GitHub route.
	GitHubSecret string

	// WebhookRate and WebhookBurst bound webhook requests per client IP.
	WebhookRate  float64
	WebhookBurst int
}

// NewServer creates a new HTTP server.
func NewServer(reg services.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if reg == nil {
		return nil, errors.New("service registry cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}
	if cfg.WebhookRate <= 0 {
		cfg.WebhookRate = 1
	}
	if cfg.WebhookBurst <= 0 {
		cfg.WebhookBurst = 10
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), requestID)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request", append(logging.ContextFields(c.Request().Context()),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)...)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		services: reg,
		logger:   logger,
		config:   cfg,
		limiter:  newIPLimiter(cfg.WebhookRate, cfg.WebhookBurst),
	}
	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")

	ws := v1.Group("/workspaces/:workspace", validateWorkspace)
	ws.POST("/signals", s.handleIngest)
	ws.POST("/webhooks/github", s.handleGitHubWebhook, s.rateLimit)
	ws.POST("/webhooks/:source", s.handleWebhook, s.rateLimit)
	ws.GET("/duplicates", s.handleDuplicates)
	ws.GET("/clusters", s.handleClusters)
	ws.POST("/clusters/notify", s.handleNotifyClusters)
	ws.GET("/notifications", s.handleNotifications)
	ws.GET("/initiatives", s.handleListInitiatives)
	ws.POST("/initiatives/reembed", s.handleReembedInitiatives)
	ws.GET("/initiatives/:id", s.handleGetInitiative)
	ws.PUT("/initiatives/:id", s.handleUpsertInitiative)

	sig := v1.Group("/signals")
	sig.POST("/process", s.handleProcessBatch)
	sig.POST("/merge", s.handleMerge)
	sig.POST("/dismiss", s.handleDismiss)
	sig.GET("/:id", s.handleGetSignal)
	sig.POST("/:id/process", s.handleProcess)
	sig.POST("/:id/classify", s.handleClassify)
	sig.GET("/:id/similar", s.handleSimilar)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() *echo.Echo { return s.echo }

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
