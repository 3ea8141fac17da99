package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/vibast-solutions/ms-go-permits/app/controller"
	"github.com/vibast-solutions/ms-go-permits/app/docgen"
	"github.com/vibast-solutions/ms-go-permits/app/gateway"
	"github.com/vibast-solutions/ms-go-permits/app/metrics"
	"github.com/vibast-solutions/ms-go-permits/app/notify"
	"github.com/vibast-solutions/ms-go-permits/app/repository"
	"github.com/vibast-solutions/ms-go-permits/app/runlock"
	"github.com/vibast-solutions/ms-go-permits/app/service"
	"github.com/vibast-solutions/ms-go-permits/app/types"
	"github.com/vibast-solutions/ms-go-permits/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the permits service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

type services struct {
	application *service.ApplicationService
	webhook     *service.WebhookService
	queue       *service.QueueService
	reconcile   *service.ReconcileService
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, svcs, cleanup := mustCreateServices()
	defer cleanup()

	applicationController := controller.NewApplicationController(svcs.application, svcs.webhook, svcs.queue)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	e := setupHTTPServer(applicationController, registry, cfg.App.APIKey)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(applicationController *controller.ApplicationController, registry *prometheus.Registry, apiKey string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(requireRequestID())

	e.GET("/health", applicationController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	applications := e.Group("/applications")
	applications.GET("/:id/status", applicationController.GetApplicationStatus)
	applications.POST("/:id/document-outcome", applicationController.ReportDocumentOutcome)
	applications.POST("/:id/override", applicationController.ManualOverride, requireAPIKey(apiKey))

	webhooks := e.Group("/webhooks/gateway")
	webhooks.POST("/:hash", applicationController.HandleGatewayWebhook)

	return e
}

// The gateway signs its webhooks but does not send a request id, so the
// webhook route is exempt, as are the probe endpoints.
func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			path := ctx.Request().URL.Path
			if path == "/health" || path == "/metrics" || strings.HasPrefix(path, "/webhooks/") {
				return next(ctx)
			}
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

// Manual overrides are operator-only; the route refuses to serve at all when
// no key is configured.
func requireAPIKey(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if apiKey == "" || ctx.Request().Header.Get("X-API-Key") != apiKey {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "unauthorized"})
			}
			return next(ctx)
		}
	}
}

func mustCreateServices() (*config.Config, *services, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
		logrus.Fatal("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	var locker runlock.Locker = runlock.NewRedisLocker(redisClient)
	if cfg.Redis.Addr == "" {
		locker = runlock.NoopLocker{}
	}

	appRepo := repository.NewApplicationRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	entryRepo := repository.NewQueueEntryRepository(db)

	stripeClient := gateway.NewStripeClient(gateway.StripeConfig{
		SecretKey:                 cfg.Stripe.SecretKey,
		WebhookSecret:             cfg.Stripe.WebhookSecret,
		SignatureToleranceSeconds: cfg.Stripe.SignatureToleranceSeconds,
		HTTPTimeout:               cfg.Stripe.HTTPTimeout,
	})

	var sink notify.Sink = notify.NewLogSink()
	if cfg.Notifications.BaseURL != "" {
		sink = notify.NewHTTPSink(notify.HTTPSinkConfig{
			BaseURL: cfg.Notifications.BaseURL,
			APIKey:  cfg.Notifications.APIKey,
			Timeout: cfg.Notifications.HTTPTimeout,
		})
	}

	generator := docgen.NewHTTPClient(docgen.HTTPClientConfig{
		BaseURL: cfg.DocGen.BaseURL,
		APIKey:  cfg.DocGen.APIKey,
		Timeout: cfg.DocGen.HTTPTimeout,
	})

	applier := service.NewFactApplier(appRepo, eventRepo, sink)

	queueService := service.NewQueueService(appRepo, entryRepo, applier, generator, locker, service.QueueConfig{
		MaxRetries:          cfg.Permits.MaxRetries,
		StuckAfter:          cfg.Permits.StuckAfter,
		SweepBatchSize:      cfg.Permits.SweepBatchSize,
		EstimatedJobMinutes: cfg.Permits.EstimatedJobMinutes,
		LockTTL:             cfg.Permits.LockTTL,
	})
	applier.SetQueueAdmitter(queueService)

	reconcileService := service.NewReconcileService(appRepo, applier, stripeClient, locker, sink, service.ReconcileConfig{
		BatchSize:          cfg.Permits.ReconcileBatchSize,
		GatewayTimeout:     cfg.Permits.GatewayTimeout,
		GatewayConcurrency: cfg.Permits.GatewayConcurrency,
		LockTTL:            cfg.Permits.LockTTL,
	})

	applicationService := service.NewApplicationService(appRepo, queueService, applier)
	webhookService := service.NewWebhookService(appRepo, applier, stripeClient)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
		if err := redisClient.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close redis client")
		}
	}

	return cfg, &services{
		application: applicationService,
		webhook:     webhookService,
		queue:       queueService,
		reconcile:   reconcileService,
	}, cleanup
}
