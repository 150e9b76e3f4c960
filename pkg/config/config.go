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
	Rotation     RotationConfig
	Reset        ResetConfig
	Gateway      GatewayConfig
	Webhooks     WebhooksConfig
	Security     SecurityConfig
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
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Reset.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"PAYSWITCH_APP_ENV" required:"true"`
	Port           string   `envconfig:"PAYSWITCH_APP_PORT" default:"8080"`
	LogLevel       string   `envconfig:"PAYSWITCH_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"PAYSWITCH_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"PAYSWITCH_CORS_ALLOWED_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind        string `envconfig:"PAYSWITCH_SERVICE_KIND" default:"api"`
	// MetricsAddr is where background workers expose /metrics, e.g. ":9102".
	MetricsAddr string `envconfig:"PAYSWITCH_METRICS_ADDR"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAYSWITCH_DB_DSN"`
	Driver string `envconfig:"PAYSWITCH_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PAYSWITCH_DB_HOST"`
	LegacyPort     int    `envconfig:"PAYSWITCH_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PAYSWITCH_DB_USER"`
	LegacyPassword string `envconfig:"PAYSWITCH_DB_PASSWORD"`
	LegacyName     string `envconfig:"PAYSWITCH_DB_NAME"`
	LegacySSLMode  string `envconfig:"PAYSWITCH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAYSWITCH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAYSWITCH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAYSWITCH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAYSWITCH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the service runs against the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PAYSWITCH_REDIS_URL"`
	Address      string        `envconfig:"PAYSWITCH_REDIS_ADDR"`
	Password     string        `envconfig:"PAYSWITCH_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAYSWITCH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAYSWITCH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAYSWITCH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAYSWITCH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAYSWITCH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAYSWITCH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PAYSWITCH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PAYSWITCH_JWT_ISSUER" default:"payswitch"`
	ExpirationMinutes int    `envconfig:"PAYSWITCH_JWT_EXPIRATION_MINUTES" default:"60"`
}

// TTL returns the admin token lifetime.
func (j JWTConfig) TTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type FeatureFlagsConfig struct {
	AutoMigrate          bool `envconfig:"PAYSWITCH_AUTO_MIGRATE" default:"false"`
	AutoSwitchEnabled    bool `envconfig:"PAYSWITCH_AUTO_SWITCH_ENABLED" default:"true"`
	NotificationsEnabled bool `envconfig:"PAYSWITCH_NOTIFICATIONS_ENABLED" default:"true"`
	AllowManualReset     bool `envconfig:"PAYSWITCH_ALLOW_MANUAL_RESET" default:"true"`
	ClampNegativeUsage   bool `envconfig:"PAYSWITCH_CLAMP_NEGATIVE_USAGE" default:"false"`
}

type RotationConfig struct {
	SwitchHistoryCap   int `envconfig:"PAYSWITCH_SWITCH_HISTORY_CAP" default:"100"`
	ProcessedOrdersCap int `envconfig:"PAYSWITCH_PROCESSED_ORDERS_CAP" default:"10000"`
	HistoryPageSize    int `envconfig:"PAYSWITCH_HISTORY_PAGE_SIZE" default:"50"`
}

type ResetConfig struct {
	DayOfMonth      int    `envconfig:"PAYSWITCH_RESET_DAY_OF_MONTH" default:"1"`
	Hour            int    `envconfig:"PAYSWITCH_RESET_HOUR" default:"2"`
	Minute          int    `envconfig:"PAYSWITCH_RESET_MINUTE" default:"0"`
	TimeZone        string `envconfig:"PAYSWITCH_RESET_TIME_ZONE" default:"Asia/Taipei"`
	BackupCap       int    `envconfig:"PAYSWITCH_RESET_BACKUP_CAP" default:"12"`
	ResetHistoryCap int    `envconfig:"PAYSWITCH_RESET_HISTORY_CAP" default:"100"`
}

// Location resolves the configured reset time zone, falling back to UTC.
func (r ResetConfig) Location() *time.Location {
	if strings.TrimSpace(r.TimeZone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (r ResetConfig) validate() error {
	if r.DayOfMonth < 1 || r.DayOfMonth > 28 {
		return fmt.Errorf("%s must be between 1 and 28", EnvResetDayOfMonth)
	}
	if r.Hour < 0 || r.Hour > 23 {
		return fmt.Errorf("%s must be between 0 and 23", EnvResetHour)
	}
	if r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("%s must be between 0 and 59", EnvResetMinute)
	}
	return nil
}

type GatewayConfig struct {
	SettingsNamespace string   `envconfig:"PAYSWITCH_GATEWAY_SETTINGS_NAMESPACE" default:"gateway"`
	PaymentMethods    []string `envconfig:"PAYSWITCH_GATEWAY_PAYMENT_METHODS" default:"newebpay,newebpay_atm,newebpay_cc,newebpay_cvs,newebpay_webatm"`
}

type WebhooksConfig struct {
	SigningSecret  string        `envconfig:"PAYSWITCH_WEBHOOK_SIGNING_SECRET"`
	IdempotencyTTL time.Duration `envconfig:"PAYSWITCH_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

type SecurityConfig struct {
	// CredentialKey is a base64 encoded 32 byte key used to seal merchant secrets.
	CredentialKey string `envconfig:"PAYSWITCH_CREDENTIAL_KEY" required:"true"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"PAYSWITCH_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"PAYSWITCH_PUBSUB_NOTIFICATION_TOPIC" default:"payswitch-notifications"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAYSWITCH_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAYSWITCH_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAYSWITCH_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"PAYSWITCH_OUTBOX_RETENTION_DAYS" default:"30"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"PAYSWITCH_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"PAYSWITCH_CRON_LOCK_TTL" default:"30m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
