// Package server exposes internal/api.Service over HTTP: the byte-serving
// routes, the JSON operation surface, the admin-only changelog
// websockets, and /metrics. It calls catalog operations only through
// internal/api (using internal/catalog for its types), and reaches the
// storage backends through the registry api.Service.Backends returns.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/api"
	"github.com/lgandecki/convex-versioned-assets-sub001/internal/auth"
)

var tracer = otel.Tracer("convex-versioned-assets/server")

// Config configures the HTTP listener, read once at process startup and
// passed into New as a capability rather than read from the
// environment here.
type Config struct {
	Address            string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
	CORSEnabled        bool
	CORSAllowedOrigins []string
	RequestLogging     bool
	MetricsEnabled     bool
	MetricsPath        string
	HealthCheckEnabled bool
	HealthCheckPath    string
}

// Server wires a gin.Engine to internal/api.Service and internal/auth.Middleware.
type Server struct {
	cfg        Config
	engine     *gin.Engine
	httpServer *http.Server
	svc        *api.Service
	authMw     *auth.Middleware
}

func New(cfg Config, svc *api.Service, authMw *auth.Middleware) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{cfg: cfg, engine: engine, svc: svc, authMw: authMw}

	if cfg.RequestLogging {
		engine.Use(requestLogger())
	}
	if cfg.CORSEnabled {
		engine.Use(corsMiddleware(cfg.CORSAllowedOrigins))
	}
	engine.Use(authMw.Handler())

	if cfg.HealthCheckEnabled {
		path := cfg.HealthCheckPath
		if path == "" {
			path = "/health"
		}
		engine.GET(path, func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	}
	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Run starts the HTTP server and blocks until it returns an error other
// than http.ErrServerClosed.
func (s *Server) Run() error {
	logrus.WithField("address", s.cfg.Address).Info("starting http server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Info("request")
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			if allowAll {
				c.Header("Access-Control-Allow-Origin", "*")
			} else if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
