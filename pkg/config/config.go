package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	OTel     OTelConfig     `mapstructure:"otel"`
	Gateways GatewaysConfig `mapstructure:"gateways"`
	Poller   PollerConfig   `mapstructure:"poller"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// GatewayConfig holds one payment provider's credentials and fees
type GatewayConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	SecretKey     string  `mapstructure:"secret_key"`
	PublicKey     string  `mapstructure:"public_key"`
	WebhookSecret string  `mapstructure:"webhook_secret"`
	BaseURL       string  `mapstructure:"base_url"`
	FeeFlat       float64 `mapstructure:"fee_flat"`
	FeePercent    float64 `mapstructure:"fee_percent"`
}

// MockGatewayConfig holds settings for the development gateway
type MockGatewayConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	SuccessRate float64 `mapstructure:"success_rate"`
	DelayMs     int     `mapstructure:"delay_ms"`
}

// GatewaysConfig holds all provider configurations
type GatewaysConfig struct {
	Paystack GatewayConfig     `mapstructure:"paystack"`
	Stripe   GatewayConfig     `mapstructure:"stripe"`
	Razorpay GatewayConfig     `mapstructure:"razorpay"`
	Mock     MockGatewayConfig `mapstructure:"mock"`
}

// PollerConfig holds polling worker settings
type PollerConfig struct {
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	SoftErrorLimit int           `mapstructure:"soft_error_limit"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional; environment variables can carry everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Continue; env vars might be set
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "backend-payment")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8086)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "payment_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 100)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "backend-payment")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_SERVICE_NAME", "backend-payment")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Gateway defaults. All providers disabled until keys arrive; the
	// mock carries development.
	v.SetDefault("GATEWAY_PAYSTACK_ENABLED", false)
	v.SetDefault("GATEWAY_PAYSTACK_SECRET_KEY", "")
	v.SetDefault("GATEWAY_PAYSTACK_PUBLIC_KEY", "")
	v.SetDefault("GATEWAY_PAYSTACK_WEBHOOK_SECRET", "")
	v.SetDefault("GATEWAY_PAYSTACK_BASE_URL", "")
	v.SetDefault("GATEWAY_PAYSTACK_FEE_FLAT", 100.0)
	v.SetDefault("GATEWAY_PAYSTACK_FEE_PERCENT", 1.5)

	v.SetDefault("GATEWAY_STRIPE_ENABLED", false)
	v.SetDefault("GATEWAY_STRIPE_SECRET_KEY", "")
	v.SetDefault("GATEWAY_STRIPE_PUBLIC_KEY", "")
	v.SetDefault("GATEWAY_STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("GATEWAY_STRIPE_FEE_FLAT", 0.0)
	v.SetDefault("GATEWAY_STRIPE_FEE_PERCENT", 2.9)

	v.SetDefault("GATEWAY_RAZORPAY_ENABLED", false)
	v.SetDefault("GATEWAY_RAZORPAY_SECRET_KEY", "")
	v.SetDefault("GATEWAY_RAZORPAY_PUBLIC_KEY", "")
	v.SetDefault("GATEWAY_RAZORPAY_WEBHOOK_SECRET", "")
	v.SetDefault("GATEWAY_RAZORPAY_BASE_URL", "")
	v.SetDefault("GATEWAY_RAZORPAY_FEE_FLAT", 0.0)
	v.SetDefault("GATEWAY_RAZORPAY_FEE_PERCENT", 2.0)

	v.SetDefault("GATEWAY_MOCK_ENABLED", true)
	v.SetDefault("GATEWAY_MOCK_SUCCESS_RATE", 0.95)
	v.SetDefault("GATEWAY_MOCK_DELAY_MS", 100)

	// Poller defaults
	v.SetDefault("POLLER_BASE_DELAY", "5s")
	v.SetDefault("POLLER_SOFT_ERROR_LIMIT", 10)
	v.SetDefault("POLLER_SWEEP_INTERVAL", "30s")
	v.SetDefault("POLLER_SWEEP_BATCH_SIZE", 100)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = strings.Split(v.GetString("KAFKA_BROKERS"), ",")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Gateways
	bindGateway(v, &cfg.Gateways.Paystack, "PAYSTACK")
	bindGateway(v, &cfg.Gateways.Stripe, "STRIPE")
	bindGateway(v, &cfg.Gateways.Razorpay, "RAZORPAY")
	cfg.Gateways.Mock.Enabled = v.GetBool("GATEWAY_MOCK_ENABLED")
	cfg.Gateways.Mock.SuccessRate = v.GetFloat64("GATEWAY_MOCK_SUCCESS_RATE")
	cfg.Gateways.Mock.DelayMs = v.GetInt("GATEWAY_MOCK_DELAY_MS")

	// Poller
	cfg.Poller.BaseDelay = v.GetDuration("POLLER_BASE_DELAY")
	cfg.Poller.SoftErrorLimit = v.GetInt("POLLER_SOFT_ERROR_LIMIT")
	cfg.Poller.SweepInterval = v.GetDuration("POLLER_SWEEP_INTERVAL")
	cfg.Poller.SweepBatchSize = v.GetInt("POLLER_SWEEP_BATCH_SIZE")

	return nil
}

func bindGateway(v *viper.Viper, gc *GatewayConfig, name string) {
	prefix := "GATEWAY_" + name + "_"
	gc.Enabled = v.GetBool(prefix + "ENABLED")
	gc.SecretKey = v.GetString(prefix + "SECRET_KEY")
	gc.PublicKey = v.GetString(prefix + "PUBLIC_KEY")
	gc.WebhookSecret = v.GetString(prefix + "WEBHOOK_SECRET")
	gc.BaseURL = v.GetString(prefix + "BASE_URL")
	gc.FeeFlat = v.GetFloat64(prefix + "FEE_FLAT")
	gc.FeePercent = v.GetFloat64(prefix + "FEE_PERCENT")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Gateways.Paystack.Enabled && c.Gateways.Paystack.SecretKey == "" {
		return fmt.Errorf("GATEWAY_PAYSTACK_SECRET_KEY is required when paystack is enabled")
	}
	if c.Gateways.Stripe.Enabled && c.Gateways.Stripe.SecretKey == "" {
		return fmt.Errorf("GATEWAY_STRIPE_SECRET_KEY is required when stripe is enabled")
	}
	if c.Gateways.Razorpay.Enabled && (c.Gateways.Razorpay.SecretKey == "" || c.Gateways.Razorpay.PublicKey == "") {
		return fmt.Errorf("GATEWAY_RAZORPAY_SECRET_KEY and GATEWAY_RAZORPAY_PUBLIC_KEY are required when razorpay is enabled")
	}

	if c.IsProduction() && !c.Gateways.Paystack.Enabled && !c.Gateways.Stripe.Enabled && !c.Gateways.Razorpay.Enabled {
		return fmt.Errorf("at least one real gateway must be enabled in production")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
