package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/atomic"

	"github.com/browsercluster/browsercluster/internal/cluster"
	"github.com/browsercluster/browsercluster/internal/config"
	"github.com/browsercluster/browsercluster/internal/handler/http/health"
	httpiface "github.com/browsercluster/browsercluster/internal/handler/http/interface"
	"github.com/browsercluster/browsercluster/internal/handler/http/jobs"
	"github.com/browsercluster/browsercluster/internal/metrics"
	_ "github.com/browsercluster/browsercluster/internal/provider"
	"github.com/browsercluster/browsercluster/pkg/logger"
)

// App represents the application with its lifecycle management.
type App struct {
	config       *config.Config
	echo         *echo.Echo
	readiness    *atomic.Bool
	httpHandlers []httpiface.HttpRouter
	cluster      *cluster.Cluster
	cancel       context.CancelFunc
}

// NewApp creates a new App instance with the given configuration.
// Follows constructor injection pattern - all dependencies passed via parameters.
func NewApp(cfg *config.Config) *App {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	app := &App{
		config:    cfg,
		echo:      e,
		readiness: atomic.NewBool(false),
	}

	return app
}

// injectDependency launches the cluster and initializes all HTTP handlers.
// This centralizes handler initialization and makes it easy to add new handlers.
func (a *App) injectDependency() error {
	opts := a.config.ToOptions(jobs.GroupOf)

	c, err := cluster.Launch(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("launch cluster: %w", err)
	}
	a.cluster = c
	logger.Info("cluster launched (concurrency=%s maxConcurrency=%d)", a.config.Concurrency, a.config.MaxConcurrency)

	a.httpHandlers = []httpiface.HttpRouter{
		health.NewHealthHandler(a.readiness),
		jobs.NewHandler(a.cluster),
	}
	return nil
}

// preProcess is called before server starts.
// Use this hook for initialization tasks that need to happen before accepting traffic.
func (a *App) preProcess() {
	logger.Info("Preparing to start server...")
}

// postProcess is called after shutdown signal is received.
// Use this hook for cleanup tasks before graceful shutdown begins.
func (a *App) postProcess() {
	logger.Info("Shutting down gracefully...")
}

// Run starts the Echo server and handles graceful shutdown.
// This implements the full lifecycle: startup -> run -> graceful shutdown.
func (a *App) Run() error {
	// Create context for application lifecycle management
	_, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	// Initialize all dependencies
	if err := a.injectDependency(); err != nil {
		return err
	}
	a.preProcess()

	// Start Echo server in goroutine
	go func() {
		e := a.echo
		addr := fmt.Sprintf(":%d", a.config.ServerPort)

		// Add middleware in correct order (CORS must be FIRST, handling
		// preflight before anything else touches the request).

		// 1. CORS middleware
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     a.config.AllowedOrigins,
			AllowMethods:     []string{http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Content-Type", "Authorization", "Accept", "Origin", "User-Agent", "X-Requested-With"},
			AllowCredentials: true,
		}))

		// 2. Body size limit middleware.
		// Protects against memory exhaustion from large job payloads.
		limit := fmt.Sprintf("%dM", a.config.MaxRequestSizeMB)
		e.Use(middleware.BodyLimit(limit))

		// 3. Logging
		e.Use(middleware.Logger())

		// 4. Panic recovery
		e.Use(middleware.Recover())

		// 5. Readiness check middleware (graceful shutdown).
		// This middleware rejects requests when readiness=false, except for
		// health endpoints.
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if !a.readiness.Load() {
					p := c.Request().URL.Path
					// Allow health check endpoints and metrics even during shutdown
					if p != "/healthz" && p != "/readyz" && p != "/metrics" {
						logger.Info("readiness=false: reject new request path=%s", p)
						return c.NoContent(http.StatusServiceUnavailable)
					}
				}
				return next(c)
			}
		})

		// 6. Prometheus metrics middleware.
		// This automatically tracks HTTP requests and exposes /metrics endpoint
		e.Use(echoprometheus.NewMiddleware("browsercluster"))
		e.GET("/metrics", echoprometheus.NewHandler())

		// 7. Update cluster gauges on each request
		e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				if a.cluster != nil {
					metrics.QueueDepthGauge.Set(float64(a.cluster.QueueDepth()))
					metrics.ActiveWorkersGauge.Set(float64(a.cluster.BusyWorkers()))
				}
				return next(c)
			}
		})

		// 8. Setup all handler routes
		for _, handler := range a.httpHandlers {
			handler.SetupRoutes(e)
		}

		logger.Info("Starting browser cluster server on %s", addr)

		// Mark readiness true just before starting to accept connections
		a.readiness.Store(true)

		// Start server
		// http.ErrServerClosed is expected during graceful shutdown, not an actual error
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal (SIGINT or SIGTERM)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	logger.Info("Server ready. Waiting for interrupt signal...")
	<-quit

	// Post-process hook
	a.postProcess()

	// Begin graceful shutdown sequence
	// Step 1: Mark as not ready (load balancers will stop routing traffic)
	a.readiness.Store(false)
	drainDuration := time.Duration(a.config.ShutdownDrainSeconds) * time.Second
	logger.Info("readiness=false: start drain window duration=%v", drainDuration)

	// Step 2: Drain period - allow load balancers to detect unhealthy state
	time.Sleep(drainDuration)

	// Step 3: Close the cluster (finish in-flight jobs, close every worker)
	shutdownTimeout := time.Duration(a.config.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Info("Closing cluster...")
	if a.cluster != nil {
		if err := a.cluster.Close(shutdownCtx); err != nil {
			logger.Error("cluster close error: %v", err)
		}
	}

	// Step 4: Shutdown Echo server with the same timeout budget
	logger.Info("Shutting down Echo server...")
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error: %v", err)
		a.cancel()
		return err
	}

	// Step 5: Cancel application context (signals cleanup to other goroutines)
	a.cancel()

	logger.Info("Server stopped gracefully")
	return nil
}
