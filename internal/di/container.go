package di

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lurnify/backend-payment/internal/audit"
	"github.com/lurnify/backend-payment/internal/gateway"
	"github.com/lurnify/backend-payment/internal/handler"
	"github.com/lurnify/backend-payment/internal/notify"
	"github.com/lurnify/backend-payment/internal/poller"
	"github.com/lurnify/backend-payment/internal/repository"
	"github.com/lurnify/backend-payment/internal/service"
	"github.com/lurnify/backend-payment/pkg/config"
	"github.com/lurnify/backend-payment/pkg/database"
	"github.com/lurnify/backend-payment/pkg/logger"
	"github.com/lurnify/backend-payment/pkg/redis"
)

// Container holds all dependencies for the payment service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Gateways
	Gateways *gateway.Registry

	// Repositories
	PaymentRepo repository.PaymentRepository
	LogRepo     repository.PaymentLogRepository

	// Services
	Recorder       *audit.Recorder
	PaymentService service.PaymentService
	AccessResolver *service.AccessResolver

	// Polling
	Scheduler *poller.Scheduler

	// Handlers
	HealthHandler  *handler.HealthHandler
	PaymentHandler *handler.PaymentHandler
	WebhookHandler *handler.WebhookHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB       *database.PostgresDB
	Redis    *redis.Client
	Gateways *config.GatewaysConfig

	// Items and Entitlements default to in-memory stores when nil
	Items        service.ItemRegistry
	Entitlements service.EntitlementStore

	// Notifier defaults to a no-op dispatcher when nil
	Notifier service.NotificationDispatcher

	// EnableScheduler builds an in-process verification scheduler so
	// this instance starts polling chains itself. Without it the
	// polling worker's sweeper picks pending payments up.
	EnableScheduler bool
	SchedulerConfig *poller.SchedulerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	c := &Container{
		DB:    cfg.DB,
		Redis: cfg.Redis,
	}

	registry, err := BuildGatewayRegistry(cfg.Gateways)
	if err != nil {
		return nil, err
	}
	c.Gateways = registry

	if c.DB != nil {
		c.PaymentRepo = repository.NewPostgresPaymentRepository(c.DB)
		c.LogRepo = repository.NewPostgresPaymentLogRepository(c.DB)
	} else {
		logger.Get().Warn("Using in-memory repositories (data will not persist)")
		c.PaymentRepo = repository.NewMemoryPaymentRepository()
		c.LogRepo = repository.NewMemoryPaymentLogRepository()
	}

	items := cfg.Items
	if items == nil {
		items = service.NewMemoryItemRegistry()
	}
	entitlements := cfg.Entitlements
	if entitlements == nil {
		entitlements = service.NewMemoryEntitlementStore()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NoopDispatcher{}
	}

	c.Recorder = audit.NewRecorder(c.LogRepo)
	c.PaymentService = service.NewPaymentService(c.PaymentRepo, c.Gateways, items, entitlements, notifier, c.Recorder)
	c.AccessResolver = service.NewAccessResolver(c.PaymentRepo, items, entitlements, c.Gateways)

	var sched handler.PollScheduler
	if cfg.EnableScheduler {
		var markers poller.InflightMarker
		if c.Redis != nil {
			markers = poller.NewRedisMarker(c.Redis)
		} else {
			markers = poller.NewLocalMarker()
		}
		c.Scheduler = poller.NewScheduler(c.PaymentService, markers, cfg.SchedulerConfig)
		sched = c.Scheduler
	}

	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis, c.Gateways)
	c.PaymentHandler = handler.NewPaymentHandler(c.PaymentService, c.AccessResolver, sched)
	c.WebhookHandler = handler.NewWebhookHandler(c.PaymentService, c.Gateways)

	return c, nil
}

// BuildGatewayRegistry registers every enabled provider. With no real
// provider enabled the mock adapter serves all methods under the
// paystack name so development flows work end to end.
func BuildGatewayRegistry(cfg *config.GatewaysConfig) (*gateway.Registry, error) {
	registry := gateway.NewRegistry()
	log := logger.Get()

	if cfg == nil {
		registry.Register(namedMock("paystack", nil), gateway.FeeSchedule{})
		return registry, nil
	}

	registered := 0

	if cfg.Paystack.Enabled {
		adapter, err := gateway.NewPaystackAdapter(gatewayConfig(&cfg.Paystack))
		if err != nil {
			return nil, fmt.Errorf("failed to create paystack adapter: %w", err)
		}
		registry.Register(adapter, feeSchedule(&cfg.Paystack))
		log.Info("Registered paystack gateway")
		registered++
	}

	if cfg.Stripe.Enabled {
		adapter, err := gateway.NewStripeAdapter(gatewayConfig(&cfg.Stripe))
		if err != nil {
			return nil, fmt.Errorf("failed to create stripe adapter: %w", err)
		}
		registry.Register(adapter, feeSchedule(&cfg.Stripe))
		log.Info("Registered stripe gateway")
		registered++
	}

	if cfg.Razorpay.Enabled {
		adapter, err := gateway.NewRazorpayAdapter(gatewayConfig(&cfg.Razorpay))
		if err != nil {
			return nil, fmt.Errorf("failed to create razorpay adapter: %w", err)
		}
		registry.Register(adapter, feeSchedule(&cfg.Razorpay))
		log.Info("Registered razorpay gateway")
		registered++
	}

	if registered == 0 && cfg.Mock.Enabled {
		mockCfg := &gateway.MockConfig{
			SuccessRate: cfg.Mock.SuccessRate,
			DelayMs:     cfg.Mock.DelayMs,
		}
		registry.Register(namedMock("paystack", mockCfg), feeSchedule(&cfg.Paystack))
		log.Warn(fmt.Sprintf("No real gateway enabled, using mock (success_rate=%.2f, delay_ms=%d)", cfg.Mock.SuccessRate, cfg.Mock.DelayMs))
		registered++
	}

	if registered == 0 {
		return nil, fmt.Errorf("no payment gateway enabled")
	}

	return registry, nil
}

func gatewayConfig(gc *config.GatewayConfig) *gateway.Config {
	return &gateway.Config{
		Enabled:       gc.Enabled,
		SecretKey:     gc.SecretKey,
		PublicKey:     gc.PublicKey,
		WebhookSecret: gc.WebhookSecret,
		BaseURL:       gc.BaseURL,
		Fees:          feeSchedule(gc),
	}
}

func feeSchedule(gc *config.GatewayConfig) gateway.FeeSchedule {
	return gateway.FeeSchedule{
		Flat:    decimal.NewFromFloat(gc.FeeFlat),
		Percent: decimal.NewFromFloat(gc.FeePercent),
	}
}

// namedMock wraps the mock adapter so it answers for a real gateway name
type mockNamed struct {
	*gateway.MockAdapter
	name string
}

func (m *mockNamed) Name() string { return m.name }

func namedMock(name string, cfg *gateway.MockConfig) gateway.Adapter {
	return &mockNamed{MockAdapter: gateway.NewMockAdapter(cfg), name: name}
}
