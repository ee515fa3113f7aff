package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Payments     PaymentsConfig
	Bidding      BiddingConfig
	Stripe       StripeConfig
	Square       SquareConfig
	Zarinpal     ZarinpalConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FREIGHT_APP_ENV" required:"true"`
	Port         string `envconfig:"FREIGHT_APP_PORT" required:"true" validate:"numeric"`
	LogLevel     string `envconfig:"FREIGHT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FREIGHT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FREIGHT_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics. Blank disables it.
	MetricsAddr string `envconfig:"FREIGHT_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"FREIGHT_DB_DSN"`
	Driver string `envconfig:"FREIGHT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FREIGHT_DB_HOST"`
	LegacyPort     int    `envconfig:"FREIGHT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FREIGHT_DB_USER"`
	LegacyPassword string `envconfig:"FREIGHT_DB_PASSWORD"`
	LegacyName     string `envconfig:"FREIGHT_DB_NAME"`
	LegacySSLMode  string `envconfig:"FREIGHT_DB_SSLMODE" default:"disable"`

	// SQLitePath is used instead of the DSN when FeatureFlags.UseSQLite is set.
	SQLitePath string `envconfig:"FREIGHT_SQLITE_PATH" default:"freightmarket.db"`

	MaxOpenConns    int           `envconfig:"FREIGHT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FREIGHT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FREIGHT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FREIGHT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FREIGHT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FREIGHT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FREIGHT_REDIS_ADDR"`
	Password     string        `envconfig:"FREIGHT_REDIS_PASSWORD"`
	DB           int           `envconfig:"FREIGHT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FREIGHT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FREIGHT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FREIGHT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FREIGHT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FREIGHT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FREIGHT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FREIGHT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	Sink              string        `envconfig:"FREIGHT_EVENTING_SINK" default:"pubsub"`
	CallbackDedupeTTL time.Duration `envconfig:"FREIGHT_EVENTING_CALLBACK_DEDUPE_TTL" default:"24h"`
}

func (e EventingConfig) validate() error {
	switch e.NormalizedSink() {
	case EventSinkPubSub, EventSinkKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q, got %q", EnvEventingSink, EventSinkPubSub, EventSinkKafka, e.Sink)
	}
}

// NormalizedSink returns the lower-cased sink name, defaulting to Pub/Sub.
func (e EventingConfig) NormalizedSink() string {
	sink := strings.ToLower(strings.TrimSpace(e.Sink))
	if sink == "" {
		return EventSinkPubSub
	}
	return sink
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FREIGHT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FREIGHT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FREIGHT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic  string `envconfig:"FREIGHT_PUBSUB_DOMAIN_TOPIC" default:"freight-domain-events"`
	PaymentTopic string `envconfig:"FREIGHT_PUBSUB_PAYMENT_TOPIC" default:"freight-payment-events"`
}

type KafkaConfig struct {
	BrokerList   string        `envconfig:"FREIGHT_KAFKA_BROKERS" default:"localhost:9092"`
	DomainTopic  string        `envconfig:"FREIGHT_KAFKA_DOMAIN_TOPIC" default:"freight.domain-events"`
	PaymentTopic string        `envconfig:"FREIGHT_KAFKA_PAYMENT_TOPIC" default:"freight.payment-events"`
	ClientID     string        `envconfig:"FREIGHT_KAFKA_CLIENT_ID" default:"freightmarket"`
	WriteTimeout time.Duration `envconfig:"FREIGHT_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

// Brokers splits the comma separated broker list.
func (k KafkaConfig) Brokers() []string {
	parts := strings.Split(k.BrokerList, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type OutboxConfig struct {
	BatchSize        int `envconfig:"FREIGHT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50" validate:"min=1,max=1000"`
	PollIntervalMS   int `envconfig:"FREIGHT_OUTBOX_PUBLISH_POLL_MS" default:"500" validate:"min=10"`
	MaxAttempts      int `envconfig:"FREIGHT_OUTBOX_MAX_ATTEMPTS" default:"10" validate:"min=1"`
	RetentionDays    int `envconfig:"FREIGHT_OUTBOX_RETENTION_DAYS" default:"30" validate:"min=1"`
	DLQRetentionDays int `envconfig:"FREIGHT_OUTBOX_DLQ_RETENTION_DAYS" default:"90" validate:"min=1"`
}

type PaymentsConfig struct {
	DefaultGateway string        `envconfig:"FREIGHT_PAYMENTS_DEFAULT_GATEWAY" default:"zarinpal"`
	GatewayTimeout time.Duration `envconfig:"FREIGHT_PAYMENTS_GATEWAY_TIMEOUT" default:"15s"`
	CallbackURL    string        `envconfig:"FREIGHT_PAYMENTS_CALLBACK_URL" default:"http://localhost:8080/webhooks/payments"`
	// PlatformOwnerID owns the wallet that collects commission.
	PlatformOwnerID string        `envconfig:"FREIGHT_PAYMENTS_PLATFORM_OWNER_ID" default:"00000000-0000-0000-0000-000000000001"`
	DefaultCurrency string        `envconfig:"FREIGHT_PAYMENTS_DEFAULT_CURRENCY" default:"IRR"`
	ReconcileAfter  time.Duration `envconfig:"FREIGHT_PAYMENTS_RECONCILE_AFTER" default:"30m"`
	ReconcileBatch  int           `envconfig:"FREIGHT_PAYMENTS_RECONCILE_BATCH" default:"100" validate:"min=1"`
	// CallbackRateLimit caps callbacks per client IP within CallbackRateWindow. Zero disables it.
	CallbackRateLimit  int           `envconfig:"FREIGHT_PAYMENTS_CALLBACK_RATE_LIMIT" default:"120" validate:"min=0"`
	CallbackRateWindow time.Duration `envconfig:"FREIGHT_PAYMENTS_CALLBACK_RATE_WINDOW" default:"1m"`
}

type CronConfig struct {
	TickInterval time.Duration `envconfig:"FREIGHT_CRON_TICK_INTERVAL" default:"1m" validate:"gt=0"`
	LockTTL      time.Duration `envconfig:"FREIGHT_CRON_LOCK_TTL" default:"10m" validate:"gt=0"`
	// RetentionInterval spaces out outbox cleanup runs.
	RetentionInterval time.Duration `envconfig:"FREIGHT_CRON_RETENTION_INTERVAL" default:"24h"`
}

type BiddingConfig struct {
	DefaultValidity time.Duration `envconfig:"FREIGHT_BIDDING_DEFAULT_VALIDITY" default:"24h"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"FREIGHT_STRIPE_API_KEY"`
	Env           string `envconfig:"FREIGHT_STRIPE_ENV" default:"test"`
	WebhookSecret string `envconfig:"FREIGHT_STRIPE_WEBHOOK_SECRET"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SquareConfig struct {
	AccessToken string `envconfig:"FREIGHT_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"FREIGHT_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"FREIGHT_SQUARE_LOCATION_ID"`
	// WebhookSignatureKey and WebhookURL together verify Square notifications.
	WebhookSignatureKey string `envconfig:"FREIGHT_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL          string `envconfig:"FREIGHT_SQUARE_WEBHOOK_URL"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type ZarinpalConfig struct {
	MerchantID string `envconfig:"FREIGHT_ZARINPAL_MERCHANT_ID"`
	BaseURL    string `envconfig:"FREIGHT_ZARINPAL_BASE_URL"`
	Sandbox    bool   `envconfig:"FREIGHT_ZARINPAL_SANDBOX" default:"true"`
}

// Host returns the explicit base URL, or the sandbox/production host.
func (z ZarinpalConfig) Host() string {
	if trimmed := strings.TrimSpace(z.BaseURL); trimmed != "" {
		return trimmed
	}
	if z.Sandbox {
		return "https://sandbox.zarinpal.com"
	}
	return "https://payment.zarinpal.com"
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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
