package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "github.com/wekeepgrowing/academy-payments/internal/adapter/handler/http"
	"github.com/wekeepgrowing/academy-payments/internal/config"
	"github.com/wekeepgrowing/academy-payments/internal/infrastructure/metrics"
	"github.com/wekeepgrowing/academy-payments/internal/middleware/auth"
	"github.com/wekeepgrowing/academy-payments/pkg/logger"
)

// Handlers groups the HTTP handlers mounted by the server.
// Webhook is nil when no webhook secret is configured.
type Handlers struct {
	Payment *handlers.PaymentHandler
	Webhook *handlers.WebhookHandler
	Ledger  *handlers.LedgerHandler
}

type Server struct {
	config  *config.Config
	logger  *zap.Logger
	echo    *echo.Echo
	metrics *metrics.Metrics
}

func NewServer(cfg *config.Config, log *zap.Logger, h Handlers, m *metrics.Metrics, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.HTTP.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.HTTP.WriteTimeout

	logger.WithEchoLogger(e, log)

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.CORSAllowOrigins,
		AllowMethods: []string{echo.GET, echo.POST},
	}))
	if m != nil {
		e.Use(metricsMiddleware(m))
	}
	e.Use(logger.NewEchoRequestLogger(log))

	s := &Server{
		config:  cfg,
		logger:  log,
		echo:    e,
		metrics: m,
	}
	s.setupRoutes(h, gatherer)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	addr := s.config.Server.HTTP.Address()
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes(h Handlers, gatherer prometheus.Gatherer) {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
			"version": s.config.Service.Version,
		})
	})

	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
	}

	// API v1 routes (require JWT authentication)
	v1 := s.echo.Group("/api/v1", auth.JWTMiddleware(jwtConfig))

	v1.POST("/payments/intents", h.Payment.CreateIntent, middleware.BodyLimit("16K"))

	// Ledger reports are for academy staff only
	ledger := v1.Group("/ledger", auth.RequireRole(s.logger, "admin", "coach"))
	ledger.GET("", h.Ledger.ListEntries)
	ledger.GET("/pending", h.Ledger.ListStalePending)
	ledger.GET("/external/:externalId", h.Ledger.GetEntryByExternalID)
	ledger.GET("/:id", h.Ledger.GetEntry)

	// Webhook route (outside API versioning, authenticated by signature)
	if h.Webhook != nil {
		s.echo.POST("/webhook", h.Webhook.HandleWebhook)
	} else {
		s.logger.Warn("Webhook secret not configured, /webhook is disabled")
	}
}

// metricsMiddleware records request counts and latency by route pattern.
func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil && !c.Response().Committed {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequest(c.Request().Method, route, strconv.Itoa(c.Response().Status), time.Since(start))
			return err
		}
	}
}
