package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/onlineshop/orderflow/pkg/config"
)

// Config holds all configuration for the order service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"ORDER_HTTP_PORT" envDefault:"8081"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"orderflow"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"orderflow_secret"`
	PostgresDB   string `env:"ORDER_DB_NAME" envDefault:"order_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Redis (response cache)
	RedisHost      string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort      int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword  string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB        int    `env:"REDIS_DB" envDefault:"0"`
	CacheTTLSecs   int    `env:"ORDER_CACHE_TTL_SECONDS" envDefault:"3"`
	CacheEnabled   bool   `env:"ORDER_CACHE_ENABLED" envDefault:"true"`

	// Downstream service gateways. GatewayMode "stub" replaces the REST
	// gateway with an in-process stub for local development.
	GatewayMode        string `env:"GATEWAY_MODE" envDefault:"rest"`
	InventoryURL       string `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8082"`
	PaymentURL         string `env:"PAYMENT_SERVICE_URL" envDefault:"http://localhost:8083"`
	ShippingURL        string `env:"SHIPPING_SERVICE_URL" envDefault:"http://localhost:8084"`
	GatewayTimeoutSecs int    `env:"GATEWAY_TIMEOUT_SECONDS" envDefault:"10"`

	// Saga engine
	SagaMaxRetries         int `env:"SAGA_MAX_RETRIES" envDefault:"5"`
	SagaMaxRetryDelaySecs  int `env:"SAGA_MAX_RETRY_DELAY_SECONDS" envDefault:"300"`
	SagaStepTimeoutSecs    int `env:"SAGA_STEP_TIMEOUT_SECONDS" envDefault:"30"`
	SagaWorkers            int `env:"SAGA_WORKERS" envDefault:"4"`
	SagaQueueSize          int `env:"SAGA_QUEUE_SIZE" envDefault:"64"`
	SagaRetrySweepSecs     int `env:"SAGA_RETRY_SWEEP_SECONDS" envDefault:"30"`
	SagaStuckSweepSecs     int `env:"SAGA_STUCK_SWEEP_SECONDS" envDefault:"300"`
	SagaStuckAfterSecs     int `env:"SAGA_STUCK_AFTER_SECONDS" envDefault:"600"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load order config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CacheTTL returns the response cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSecs) * time.Second
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.GatewayMode != "rest" && c.GatewayMode != "stub" {
		return fmt.Errorf("GATEWAY_MODE must be rest or stub, got %q", c.GatewayMode)
	}
	if c.SagaMaxRetries < 0 {
		return fmt.Errorf("SAGA_MAX_RETRIES must not be negative")
	}
	if c.SagaWorkers < 1 {
		return fmt.Errorf("SAGA_WORKERS must be at least 1")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}
