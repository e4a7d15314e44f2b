package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lurnify/backend-payment/internal/di"
	"github.com/lurnify/backend-payment/internal/metrics"
	"github.com/lurnify/backend-payment/internal/notify"
	"github.com/lurnify/backend-payment/internal/poller"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/config"
	"github.com/lurnify/backend-payment/pkg/database"
	"github.com/lurnify/backend-payment/pkg/kafka"
	"github.com/lurnify/backend-payment/pkg/logger"
	"github.com/lurnify/backend-payment/pkg/middleware"
	pkgredis "github.com/lurnify/backend-payment/pkg/redis"
	"github.com/lurnify/backend-payment/pkg/telemetry"
)

func main() {
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.App.Debug {
		logLevel = "debug"
	}
	logCfg := &logger.Config{
		Level:       logLevel,
		ServiceName: "backend-payment",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Payment Service...")

	ctx := context.Background()

	// Initialize telemetry
	if cfg.OTel.Enabled {
		telCfg := &telemetry.Config{
			Enabled:        true,
			ServiceName:    cfg.OTel.ServiceName,
			ServiceVersion: cfg.App.Version,
			Environment:    cfg.App.Environment,
			CollectorAddr:  cfg.OTel.CollectorAddr,
		}
		if _, err := telemetry.Init(ctx, telCfg); err != nil {
			appLog.Warn(fmt.Sprintf("Tracing init failed: %v", err))
		} else {
			defer telemetry.Shutdown(context.Background())
		}
		if err := telemetry.InitMetrics(ctx, telCfg); err != nil {
			appLog.Warn(fmt.Sprintf("Metrics init failed: %v", err))
		} else {
			defer telemetry.ShutdownMetrics(context.Background())
		}
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn(fmt.Sprintf("Payment metrics init failed: %v", err))
	}

	// Initialize database connection
	var db *database.PostgresDB
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
		ServiceName:     cfg.OTel.ServiceName,
	}
	db, err = database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Warn(fmt.Sprintf("Database connection failed: %v", err))
		db = nil
	} else {
		defer db.Close()
		appLog.Info(fmt.Sprintf("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns))
	}

	// Initialize Redis connection
	var redisClient *pkgredis.Client
	redisCfg := &pkgredis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
	redisClient, err = pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Warn(fmt.Sprintf("Redis connection failed: %v", err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Info("Redis connected")
	}

	// Initialize Kafka producer for lifecycle events
	var notifier service.NotificationDispatcher
	if cfg.Kafka.Enabled {
		producer, kErr := kafka.NewProducer(ctx, &kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		})
		if kErr != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, events disabled: %v", kErr))
		} else {
			defer producer.Close()
			notifier = notify.NewKafkaDispatcher(producer)
			appLog.Info(fmt.Sprintf("Kafka connected (brokers: %v)", cfg.Kafka.Brokers))
		}
	}

	// Build dependency injection container
	schedCfg := poller.DefaultSchedulerConfig()
	if cfg.Poller.BaseDelay > 0 {
		schedCfg.BaseDelay = cfg.Poller.BaseDelay
	}
	if cfg.Poller.SoftErrorLimit > 0 {
		schedCfg.SoftErrorLimit = cfg.Poller.SoftErrorLimit
	}
	container, err := di.NewContainer(&di.ContainerConfig{
		DB:              db,
		Redis:           redisClient,
		Gateways:        &cfg.Gateways,
		Notifier:        notifier,
		EnableScheduler: true,
		SchedulerConfig: schedCfg,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to build container: %v", err))
	}

	if container.Scheduler != nil {
		if err := container.Scheduler.Start(ctx); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to start verification scheduler: %v", err))
		}
		defer container.Scheduler.Stop()
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware(cfg.OTel.ServiceName))
	}

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Webhooks bypass idempotency; providers redeliver on purpose and
	// the lifecycle transitions are idempotent on their own
	router.POST("/webhooks/:provider", container.WebhookHandler.Handle)

	// API routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": "backend-payment",
			})
		})

		payments := v1.Group("/payments")
		{
			// Write operations carry idempotency when Redis is available
			if redisClient != nil {
				idemCfg := middleware.DefaultIdempotencyConfig(redisClient)
				payments.POST("", middleware.Idempotency(idemCfg), container.PaymentHandler.InitializePayment)
				payments.POST("/charge", middleware.Idempotency(idemCfg), container.PaymentHandler.ChargeSavedMethod)
				payments.POST("/:id/refund", middleware.Idempotency(idemCfg), container.PaymentHandler.RefundPayment)
			} else {
				payments.POST("", container.PaymentHandler.InitializePayment)
				payments.POST("/charge", container.PaymentHandler.ChargeSavedMethod)
				payments.POST("/:id/refund", container.PaymentHandler.RefundPayment)
			}

			// Verify is safe to repeat; no idempotency key required
			payments.POST("/:id/verify", container.PaymentHandler.VerifyPayment)

			payments.GET("/access", container.PaymentHandler.CheckAccess)
			payments.GET("/user/:userId", container.PaymentHandler.GetUserPayments)
			payments.GET("/:id", container.PaymentHandler.GetPayment)
			payments.GET("/:id/logs", container.PaymentHandler.GetPaymentLogs)
		}
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		appLog.Info(fmt.Sprintf("Payment Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
