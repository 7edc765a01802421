package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "STOREFRONT_APP_ENV"
	EnvPort        = "STOREFRONT_APP_PORT"
	EnvDBDSN       = "STOREFRONT_DB_DSN"
	EnvDBHost      = "STOREFRONT_DB_HOST"
	EnvDBUser      = "STOREFRONT_DB_USER"
	EnvDBName      = "STOREFRONT_DB_NAME"
	EnvRedisURL    = "STOREFRONT_REDIS_URL"
	EnvJWTSecret   = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer   = "STOREFRONT_JWT_ISSUER"
	EnvGCPProject  = "STOREFRONT_GCP_PROJECT_ID"
	EnvOrdersTopic = "STOREFRONT_PUBSUB_ORDERS_TOPIC"

	EnvLowStockStore     = "STOREFRONT_LOW_STOCK_STORE"
	EnvLowStockThreshold = "STOREFRONT_LOW_STOCK_THRESHOLD"
	EnvNearThreshold     = "STOREFRONT_NEAR_STOCK_THRESHOLD"
	EnvLowStockWebhook   = "STOREFRONT_LOW_STOCK_WEBHOOK_URL"

	LowStockStoreDB     = "db"
	LowStockStoreMemory = "memory"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	FeatureFlag FeatureFlagsConfig
	Orders      OrdersConfig
	LowStock    LowStockConfig
	GCP         GCPConfig
	PubSub      PubSubConfig
	Outbox      OutboxConfig
	Cron        CronConfig
	CORS        CORSConfig
	RateLimit   RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.LowStock.validate(); err != nil {
		return nil, err
	}
	if cfg.Orders.DefaultShipping.IsNegative() {
		return nil, fmt.Errorf("STOREFRONT_ORDERS_DEFAULT_SHIPPING must be >= 0")
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only covers verification; tokens are minted by the identity service.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

type OrdersConfig struct {
	DefaultCurrency string          `envconfig:"STOREFRONT_ORDERS_DEFAULT_CURRENCY" default:"USD"`
	DefaultShipping decimal.Decimal `envconfig:"STOREFRONT_ORDERS_DEFAULT_SHIPPING" default:"0"`
}

type LowStockConfig struct {
	Store          string        `envconfig:"STOREFRONT_LOW_STOCK_STORE" default:"db"`
	LowThreshold   int           `envconfig:"STOREFRONT_LOW_STOCK_THRESHOLD" default:"2"`
	NearThreshold  int           `envconfig:"STOREFRONT_NEAR_STOCK_THRESHOLD" default:"5"`
	DedupWindow    time.Duration `envconfig:"STOREFRONT_LOW_STOCK_DEDUP_WINDOW" default:"6h"`
	MemoryCapacity int           `envconfig:"STOREFRONT_LOW_STOCK_MEMORY_CAPACITY" default:"500"`
	WebhookURL     string        `envconfig:"STOREFRONT_LOW_STOCK_WEBHOOK_URL"`
	WebhookTimeout time.Duration `envconfig:"STOREFRONT_LOW_STOCK_WEBHOOK_TIMEOUT" default:"5s"`
}

func (l LowStockConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(l.Store)) {
	case LowStockStoreDB, LowStockStoreMemory:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvLowStockStore, LowStockStoreDB, LowStockStoreMemory)
	}
	if l.LowThreshold < 0 {
		return fmt.Errorf("%s must be >= 0", EnvLowStockThreshold)
	}
	if l.NearThreshold < l.LowThreshold {
		return fmt.Errorf("%s must be >= %s", EnvNearThreshold, EnvLowStockThreshold)
	}
	return nil
}

// UsesMemory reports whether alerts live only in process memory.
func (l LowStockConfig) UsesMemory() bool {
	return strings.EqualFold(strings.TrimSpace(l.Store), LowStockStoreMemory)
}

type GCPConfig struct {
	ProjectID string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"STOREFRONT_PUBSUB_ORDERS_TOPIC" default:"storefront-order-events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"STOREFRONT_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"10m"`
}

// RateLimitConfig throttles the unauthenticated low-stock ingestion endpoint.
type RateLimitConfig struct {
	LowStockEventsLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_LOW_STOCK_EVENTS" default:"120"`
	LowStockEventsWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_LOW_STOCK_WINDOW" default:"1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"STOREFRONT_CORS_ALLOWED_ORIGINS" default:"*"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
