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
	Gateway      GatewayConfig
	Checkout     CheckoutConfig
	Sweeper      SweeperConfig
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
	Env          string `envconfig:"TIJARA_APP_ENV" required:"true"`
	Port         string `envconfig:"TIJARA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TIJARA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TIJARA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TIJARA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TIJARA_DB_DSN"`
	Driver string `envconfig:"TIJARA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TIJARA_DB_HOST"`
	LegacyPort     int    `envconfig:"TIJARA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TIJARA_DB_USER"`
	LegacyPassword string `envconfig:"TIJARA_DB_PASSWORD"`
	LegacyName     string `envconfig:"TIJARA_DB_NAME"`
	LegacySSLMode  string `envconfig:"TIJARA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TIJARA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TIJARA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TIJARA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TIJARA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TIJARA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TIJARA_REDIS_ADDR"`
	Password     string        `envconfig:"TIJARA_REDIS_PASSWORD"`
	DB           int           `envconfig:"TIJARA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TIJARA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TIJARA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TIJARA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TIJARA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TIJARA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TIJARA_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TIJARA_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TIJARA_JWT_EXPIRATION_MINUTES" default:"60"`
}

// GatewayConfig points the charge adapter at the external payment gateway.
type GatewayConfig struct {
	BaseURL        string        `envconfig:"TIJARA_GATEWAY_BASE_URL"`
	APIKey         string        `envconfig:"TIJARA_GATEWAY_API_KEY"`
	Timeout        time.Duration `envconfig:"TIJARA_GATEWAY_TIMEOUT" default:"10s"`
	VerifyRetries  int           `envconfig:"TIJARA_GATEWAY_VERIFY_RETRIES" default:"3"`
	WebhookIDTTL   time.Duration `envconfig:"TIJARA_GATEWAY_WEBHOOK_ID_TTL" default:"72h"`
	SuccessURL     string        `envconfig:"TIJARA_GATEWAY_SUCCESS_URL" default:"/payment/success"`
	FailureURL     string        `envconfig:"TIJARA_GATEWAY_FAILURE_URL" default:"/payment/fail"`
}

// CheckoutConfig carries order-creation tunables.
type CheckoutConfig struct {
	OrderTTL time.Duration `envconfig:"TIJARA_CHECKOUT_ORDER_TTL" default:"30m"`
}

// SweeperConfig carries expiry sweeper tunables.
type SweeperConfig struct {
	Interval  time.Duration `envconfig:"TIJARA_SWEEPER_INTERVAL" default:"5m"`
	BatchSize int           `envconfig:"TIJARA_SWEEPER_BATCH_SIZE" default:"100"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TIJARA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TIJARA_AUTO_MIGRATE" default:"false"`
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
		Path:   "/" + db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
