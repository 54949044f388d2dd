package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CARGOLINK_DB_DSN"
	EnvDBHost = "CARGOLINK_DB_HOST"
	EnvDBUser = "CARGOLINK_DB_USER"
	EnvDBName = "CARGOLINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Idempotency  IdempotencyConfig
	Reconcile    ReconcileConfig
	Gateway      GatewayConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Policy       PolicyConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"CARGOLINK_APP_ENV" required:"true"`
	Port         string `envconfig:"CARGOLINK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CARGOLINK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CARGOLINK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"CARGOLINK_DB_DSN"`
	Driver string `envconfig:"CARGOLINK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CARGOLINK_DB_HOST"`
	LegacyPort     int    `envconfig:"CARGOLINK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CARGOLINK_DB_USER"`
	LegacyPassword string `envconfig:"CARGOLINK_DB_PASSWORD"`
	LegacyName     string `envconfig:"CARGOLINK_DB_NAME"`
	LegacySSLMode  string `envconfig:"CARGOLINK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CARGOLINK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CARGOLINK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CARGOLINK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CARGOLINK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CARGOLINK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CARGOLINK_REDIS_ADDR"`
	Password     string        `envconfig:"CARGOLINK_REDIS_PASSWORD"`
	DB           int           `envconfig:"CARGOLINK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CARGOLINK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CARGOLINK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CARGOLINK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CARGOLINK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CARGOLINK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type IdempotencyConfig struct {
	TTL time.Duration `envconfig:"CARGOLINK_IDEMPOTENCY_TTL" default:"24h"`
}

type ReconcileConfig struct {
	PollInterval   time.Duration `envconfig:"CARGOLINK_RECONCILE_POLL_INTERVAL" default:"30s"`
	BatchSize      int           `envconfig:"CARGOLINK_RECONCILE_BATCH_SIZE" default:"50"`
	MaxRetries     int           `envconfig:"CARGOLINK_RECONCILE_MAX_RETRIES" default:"3"`
	HandlerTimeout time.Duration `envconfig:"CARGOLINK_RECONCILE_HANDLER_TIMEOUT" default:"15s"`
	LockTTL        time.Duration `envconfig:"CARGOLINK_RECONCILE_LOCK_TTL" default:"2m"`
}

type GatewayConfig struct {
	AccessToken   string `envconfig:"CARGOLINK_GATEWAY_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"CARGOLINK_GATEWAY_WEBHOOK_SECRET"`
	WebhookURL    string `envconfig:"CARGOLINK_GATEWAY_WEBHOOK_URL"`
	Env           string `envconfig:"CARGOLINK_GATEWAY_ENV" default:"sandbox"`
}

// Environment returns the normalized gateway environment (sandbox/production).
func (g GatewayConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(g.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CARGOLINK_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"CARGOLINK_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"CARGOLINK_PUBSUB_NOTIFICATION_TOPIC" default:"cl-notification-events"`
	NotificationSubscription string `envconfig:"CARGOLINK_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

// PolicyConfig is the platform pricing policy in force. Orders snapshot these
// values at registration; changing them never affects in-flight orders.
// Rates are decimal strings parsed at capture time.
type PolicyConfig struct {
	Version           int    `envconfig:"CARGOLINK_POLICY_VERSION" default:"1"`
	CommissionBase    string `envconfig:"CARGOLINK_POLICY_COMMISSION_BASE" default:"total"`
	CommissionRate    string `envconfig:"CARGOLINK_POLICY_COMMISSION_RATE" default:"0.10"`
	UrgentFeeRate     string `envconfig:"CARGOLINK_POLICY_URGENT_FEE_RATE" default:"0.20"`
	UrgentFeeMax      int64  `envconfig:"CARGOLINK_POLICY_URGENT_FEE_MAX" default:"0"`
	VATRate           string `envconfig:"CARGOLINK_POLICY_VAT_RATE" default:"0.10"`
	MinGuaranteeTotal int64  `envconfig:"CARGOLINK_POLICY_MIN_GUARANTEE_TOTAL" default:"0"`
	MinPlatformFee    int64  `envconfig:"CARGOLINK_POLICY_MIN_PLATFORM_FEE" default:"0"`
	MaxPlatformFee    int64  `envconfig:"CARGOLINK_POLICY_MAX_PLATFORM_FEE" default:"0"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CARGOLINK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CARGOLINK_AUTO_MIGRATE" default:"false"`
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
