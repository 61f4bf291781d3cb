package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every MegaHub environment variable.
	EnvPrefix = "MEGAHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "MEGAHUB_DB_DSN"
	EnvDBHost = "MEGAHUB_DB_HOST"
	EnvDBUser = "MEGAHUB_DB_USER"
	EnvDBName = "MEGAHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	Tenancy       TenancyConfig
	Billing       BillingConfig
	Stripe        StripeConfig
	Credentials   CredentialsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	Worker        WorkerConfig
	AuthRateLimit AuthRateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MEGAHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"MEGAHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MEGAHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MEGAHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MEGAHUB_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MEGAHUB_DB_DSN"`
	Driver string `envconfig:"MEGAHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MEGAHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"MEGAHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MEGAHUB_DB_USER"`
	LegacyPassword string `envconfig:"MEGAHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"MEGAHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"MEGAHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MEGAHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MEGAHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MEGAHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MEGAHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MEGAHUB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MEGAHUB_REDIS_ADDR"`
	Password     string        `envconfig:"MEGAHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"MEGAHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MEGAHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MEGAHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MEGAHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MEGAHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MEGAHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MEGAHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MEGAHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MEGAHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MEGAHUB_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MEGAHUB_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MEGAHUB_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MEGAHUB_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MEGAHUB_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MEGAHUB_AUTO_MIGRATE" default:"false"`
}

// TenancyConfig carries the defaults applied when a company is bootstrapped.
type TenancyConfig struct {
	DefaultBrandSlots int `envconfig:"MEGAHUB_DEFAULT_BRAND_SLOTS" default:"5"`
	DefaultUserSlots  int `envconfig:"MEGAHUB_DEFAULT_USER_SLOTS" default:"10"`
	TrialDays         int `envconfig:"MEGAHUB_TRIAL_DAYS" default:"14"`
}

type BillingConfig struct {
	InvoiceDueDays int `envconfig:"MEGAHUB_INVOICE_DUE_DAYS" default:"30"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"MEGAHUB_STRIPE_API_KEY" required:"true"`
	WebhookSecret string `envconfig:"MEGAHUB_STRIPE_WEBHOOK_SECRET" required:"true"`
	Env           string `envconfig:"MEGAHUB_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CredentialsConfig holds the key used to seal stored AI provider credentials.
type CredentialsConfig struct {
	EncryptionKey string `envconfig:"MEGAHUB_CREDENTIAL_ENCRYPTION_KEY" required:"true"`
}

// GCPConfig identifies the Google Cloud project hosting Pub/Sub resources.
type GCPConfig struct {
	ProjectID string `envconfig:"MEGAHUB_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	BillingTopic        string `envconfig:"MEGAHUB_PUBSUB_BILLING_TOPIC" default:"mh-billing-events"`
	BillingSubscription string `envconfig:"MEGAHUB_PUBSUB_BILLING_SUBSCRIPTION"`
	AlertsTopic         string `envconfig:"MEGAHUB_PUBSUB_ALERTS_TOPIC" default:"mh-alert-events"`
	AlertsSubscription  string `envconfig:"MEGAHUB_PUBSUB_ALERTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MEGAHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MEGAHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MEGAHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// AuthRateLimitConfig throttles login attempts per source IP and per email.
type AuthRateLimitConfig struct {
	LoginWindow     time.Duration `envconfig:"MEGAHUB_AUTH_LOGIN_WINDOW" default:"15m"`
	LoginIPLimit    int           `envconfig:"MEGAHUB_AUTH_LOGIN_IP_LIMIT" default:"30"`
	LoginEmailLimit int           `envconfig:"MEGAHUB_AUTH_LOGIN_EMAIL_LIMIT" default:"10"`
}

type WorkerConfig struct {
	CronInterval      time.Duration `envconfig:"MEGAHUB_CRON_INTERVAL" default:"1h"`
	TaskPollInterval  time.Duration `envconfig:"MEGAHUB_TASK_POLL_INTERVAL" default:"5s"`
	TaskMaxAttempts   int           `envconfig:"MEGAHUB_TASK_MAX_ATTEMPTS" default:"5"`
	WebhookMaxRetries int           `envconfig:"MEGAHUB_WEBHOOK_MAX_RETRIES" default:"3"`
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
