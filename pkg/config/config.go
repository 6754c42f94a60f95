package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix scopes every environment variable consumed by the service.
const EnvPrefix = "SHOPMESH"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Lock         LockConfig
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
	Env          string `envconfig:"SHOPMESH_APP_ENV" required:"true"`
	Port         string `envconfig:"SHOPMESH_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SHOPMESH_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPMESH_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPMESH_DB_DSN"`
	Driver string `envconfig:"SHOPMESH_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"SHOPMESH_DB_HOST"`
	Port     int    `envconfig:"SHOPMESH_DB_PORT" default:"5432"`
	User     string `envconfig:"SHOPMESH_DB_USER"`
	Password string `envconfig:"SHOPMESH_DB_PASSWORD"`
	Name     string `envconfig:"SHOPMESH_DB_NAME"`
	SSLMode  string `envconfig:"SHOPMESH_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPMESH_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPMESH_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPMESH_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPMESH_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SHOPMESH_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SHOPMESH_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPMESH_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPMESH_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPMESH_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPMESH_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPMESH_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPMESH_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPMESH_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SHOPMESH_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SHOPMESH_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SHOPMESH_JWT_EXPIRATION_MINUTES" default:"60"`
}

// LockConfig tunes the product-scoped reservation lock. A short TTL bounds
// the blast radius of a crashed holder; the attempt budget bounds the wait
// so checkout never blocks indefinitely on a contended product.
type LockConfig struct {
	TTL      time.Duration `envconfig:"SHOPMESH_LOCK_TTL" default:"3s"`
	Backoff  time.Duration `envconfig:"SHOPMESH_LOCK_RETRY_BACKOFF" default:"50ms"`
	Attempts int           `envconfig:"SHOPMESH_LOCK_RETRY_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SHOPMESH_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for _, pair := range []struct{ env, value string }{
		{"SHOPMESH_DB_HOST", db.Host},
		{"SHOPMESH_DB_USER", db.User},
		{"SHOPMESH_DB_NAME", db.Name},
	} {
		if pair.value == "" {
			missing = append(missing, pair.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either SHOPMESH_DB_DSN or %s are required", strings.Join(missing, ", "))
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
