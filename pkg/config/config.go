package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	Market       MarketConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARMBID_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMBID_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FARMBID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FARMBID_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"FARMBID_LOG_FORMAT" default:"json"`

	// CORSOrigins is a comma separated allow-list for browser clients.
	CORSOrigins []string `envconfig:"FARMBID_CORS_ORIGINS" default:"http://localhost:3000"`

	// BidRateLimit caps bids per merchant per minute; zero disables it.
	BidRateLimit int `envconfig:"FARMBID_BID_RATE_LIMIT" default:"30"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FARMBID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FARMBID_DB_DSN"`
	Driver string `envconfig:"FARMBID_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"FARMBID_DB_HOST"`
	Port     int    `envconfig:"FARMBID_DB_PORT" default:"5432"`
	User     string `envconfig:"FARMBID_DB_USER"`
	Password string `envconfig:"FARMBID_DB_PASSWORD"`
	Name     string `envconfig:"FARMBID_DB_NAME"`
	SSLMode  string `envconfig:"FARMBID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FARMBID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMBID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMBID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMBID_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FARMBID_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMBID_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMBID_REDIS_ADDR"`
	Password     string        `envconfig:"FARMBID_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMBID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMBID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMBID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMBID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMBID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMBID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens minted by the identity provider. The
// marketplace only verifies them.
type JWTConfig struct {
	Secret            string `envconfig:"FARMBID_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMBID_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMBID_JWT_EXPIRATION_MINUTES" default:"60"`
	// LeewaySeconds absorbs clock skew between the identity provider and us.
	LeewaySeconds int `envconfig:"FARMBID_JWT_LEEWAY_SECONDS" default:"30"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FARMBID_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FARMBID_AUTO_MIGRATE" default:"false"`
	// AllowTestNotifications exposes the debug notification endpoint outside prod.
	AllowTestNotifications bool `envconfig:"FARMBID_ALLOW_TEST_NOTIFICATIONS" default:"true"`
}

type EventingConfig struct {
	// Mode selects how marketplace events reach the notification fan-out:
	// "inline" writes notifications in the API process, "outbox" stages them
	// for the outbox publisher and the notification worker.
	Mode                  string        `envconfig:"FARMBID_EVENTING_MODE" default:"inline"`
	OutboxIdempotencyTTL  time.Duration `envconfig:"FARMBID_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	RequestIdempotencyTTL time.Duration `envconfig:"FARMBID_EVENTING_REQUEST_IDEMPOTENCY_TTL" default:"24h"`
}

func (e EventingConfig) UsesOutbox() bool {
	return strings.EqualFold(strings.TrimSpace(e.Mode), EventingModeOutbox)
}

func (e EventingConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(e.Mode))
	if mode != EventingModeInline && mode != EventingModeOutbox {
		return fmt.Errorf("%s must be %q or %q", EnvEventingMode, EventingModeInline, EventingModeOutbox)
	}
	return nil
}

// MarketConfig holds the auction and settlement tunables.
type MarketConfig struct {
	Currency           string        `envconfig:"FARMBID_MARKET_CURRENCY" default:"INR"`
	DeliveryWindow     time.Duration `envconfig:"FARMBID_MARKET_DELIVERY_WINDOW" default:"48h"`
	MaxAuctionDuration time.Duration `envconfig:"FARMBID_MARKET_MAX_AUCTION_DURATION" default:"720h"`
	MaxImages          int           `envconfig:"FARMBID_MARKET_MAX_IMAGES" default:"10"`
}

// CronConfig paces cmd/cron-worker. Tick drives the auction and delivery
// sweeps; RetentionEvery spaces out the outbox and DLQ pruning.
type CronConfig struct {
	Tick           time.Duration `envconfig:"FARMBID_CRON_TICK" default:"1m"`
	LockTTL        time.Duration `envconfig:"FARMBID_CRON_LOCK_TTL" default:"2m"`
	RetentionEvery time.Duration `envconfig:"FARMBID_CRON_RETENTION_EVERY" default:"24h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FARMBID_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FARMBID_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FARMBID_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	MarketTopic              string `envconfig:"FARMBID_PUBSUB_MARKET_TOPIC" default:"fb-market-events"`
	NotificationSubscription string `envconfig:"FARMBID_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"fb-market-events-notifications"`
	// EmulatorHost points the client at a local Pub/Sub emulator over
	// plaintext gRPC, e.g. localhost:8085.
	EmulatorHost string `envconfig:"FARMBID_PUBSUB_EMULATOR_HOST"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"FARMBID_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"FARMBID_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"FARMBID_OUTBOX_MAX_ATTEMPTS" default:"10"`

	// Published rows and dead letters are pruned by the cron worker once
	// they are older than these.
	Retention    time.Duration `envconfig:"FARMBID_OUTBOX_RETENTION" default:"720h"`
	DLQRetention time.Duration `envconfig:"FARMBID_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" {
		return nil
	}
	if useSQLite {
		db.Driver = DriverSQLite
		db.DSN = "file:farmbid.db?cache=shared&_busy_timeout=5000"
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
