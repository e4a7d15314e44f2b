package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lurnify/backend-payment/internal/di"
	"github.com/lurnify/backend-payment/internal/metrics"
	"github.com/lurnify/backend-payment/internal/notify"
	"github.com/lurnify/backend-payment/internal/poller"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/config"
	"github.com/lurnify/backend-payment/pkg/database"
	"github.com/lurnify/backend-payment/pkg/kafka"
	"github.com/lurnify/backend-payment/pkg/logger"
	pkgredis "github.com/lurnify/backend-payment/pkg/redis"
	"github.com/lurnify/backend-payment/pkg/telemetry"
)

// The polling worker owns asynchronous verification: it runs the
// scheduler that drives per-payment polling chains and the sweeper
// that re-attaches orphaned payments and closes expired ones. It
// shares the repository and service layer with the API process.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logLevel := "info"
	if cfg.App.Debug {
		logLevel = "debug"
	}
	if err := logger.Init(&logger.Config{
		Level:       logLevel,
		ServiceName: "payment-poller",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Payment Polling Worker...")

	ctx := context.Background()

	if cfg.OTel.Enabled {
		telCfg := &telemetry.Config{
			Enabled:        true,
			ServiceName:    "payment-poller",
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

	// The worker exists to advance persisted payments; without the
	// database there is nothing for it to do
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
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
		ServiceName:     "payment-poller",
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Redis connection failed, using local inflight markers: %v", err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Info("Redis connected")
	}

	var notifier service.NotificationDispatcher
	if cfg.Kafka.Enabled {
		producer, kErr := kafka.NewProducer(ctx, &kafka.Config{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID + "-poller",
		})
		if kErr != nil {
			appLog.Warn(fmt.Sprintf("Kafka connection failed, events disabled: %v", kErr))
		} else {
			defer producer.Close()
			notifier = notify.NewKafkaDispatcher(producer)
			appLog.Info(fmt.Sprintf("Kafka connected (brokers: %v)", cfg.Kafka.Brokers))
		}
	}

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

	sweepCfg := poller.DefaultSweeperConfig()
	if cfg.Poller.SweepInterval > 0 {
		sweepCfg.ScanInterval = cfg.Poller.SweepInterval
	}
	if cfg.Poller.SweepBatchSize > 0 {
		sweepCfg.BatchSize = cfg.Poller.SweepBatchSize
		sweepCfg.ExpiryBatchSize = cfg.Poller.SweepBatchSize
	}
	sweeper := poller.NewSweeper(container.PaymentRepo, container.PaymentService, container.Scheduler, sweepCfg)

	if err := container.Scheduler.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start scheduler: %v", err))
	}
	if err := sweeper.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start sweeper: %v", err))
	}

	appLog.Info(fmt.Sprintf("Polling worker running (sweep interval: %s, batch: %d)", sweepCfg.ScanInterval, sweepCfg.BatchSize))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down polling worker...")

	sweeper.Stop()
	container.Scheduler.Stop()

	stats := container.Scheduler.GetStats()
	appLog.Info(fmt.Sprintf("Polling worker exited (chains started: %d, resolved: %d, exhausted: %d)",
		stats.ChainsStarted, stats.ChainsResolved, stats.ChainsExhausted))
}
