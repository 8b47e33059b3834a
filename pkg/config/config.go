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
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Catalog      CatalogConfig
	Bargaining   BargainingConfig
	Metrics      MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	} else if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Bargaining.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BARGAIN_APP_ENV" required:"true"`
	Port         string `envconfig:"BARGAIN_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BARGAIN_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BARGAIN_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BARGAIN_DB_DSN"`
	Driver string `envconfig:"BARGAIN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BARGAIN_DB_HOST"`
	LegacyPort     int    `envconfig:"BARGAIN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BARGAIN_DB_USER"`
	LegacyPassword string `envconfig:"BARGAIN_DB_PASSWORD"`
	LegacyName     string `envconfig:"BARGAIN_DB_NAME"`
	LegacySSLMode  string `envconfig:"BARGAIN_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"BARGAIN_SQLITE_PATH" default:"bargaining.db"`

	MaxOpenConns    int           `envconfig:"BARGAIN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BARGAIN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BARGAIN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BARGAIN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is optional; an empty URL and address keeps every Redis-backed
// feature on its in-process fallback.
type RedisConfig struct {
	URL          string        `envconfig:"BARGAIN_REDIS_URL"`
	Address      string        `envconfig:"BARGAIN_REDIS_ADDR"`
	Password     string        `envconfig:"BARGAIN_REDIS_PASSWORD"`
	DB           int           `envconfig:"BARGAIN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BARGAIN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BARGAIN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BARGAIN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BARGAIN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BARGAIN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"BARGAIN_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"BARGAIN_AUTO_MIGRATE" default:"false"`
}

type CatalogConfig struct {
	BaseURLTemplate string        `envconfig:"BARGAIN_CATALOG_BASE_URL" default:"https://%s.myshopify.com/admin/api/%s"`
	Timeout         time.Duration `envconfig:"BARGAIN_CATALOG_TIMEOUT" default:"10s"`
	PageSize        int           `envconfig:"BARGAIN_CATALOG_PAGE_SIZE" default:"250"`
	RetryAttempts   uint64        `envconfig:"BARGAIN_CATALOG_RETRY_ATTEMPTS" default:"0"`
	RetryBaseDelay  time.Duration `envconfig:"BARGAIN_CATALOG_RETRY_BASE_DELAY" default:"200ms"`
	CategoryTTL     time.Duration `envconfig:"BARGAIN_CATEGORY_CACHE_TTL" default:"0"`
}

type BargainingConfig struct {
	AdmissionCap    int           `envconfig:"BARGAIN_ADMISSION_CAP" default:"10"`
	ToggleLockTTL   time.Duration `envconfig:"BARGAIN_TOGGLE_LOCK_TTL" default:"10s"`
	ToggleLockWait  time.Duration `envconfig:"BARGAIN_TOGGLE_LOCK_WAIT" default:"2s"`
	SampleCalcLimit int           `envconfig:"BARGAIN_SAMPLE_CALCULATIONS" default:"3"`
}

func (b BargainingConfig) validate() error {
	if b.AdmissionCap <= 0 {
		return fmt.Errorf("%s must be positive", EnvAdmissionCap)
	}
	return nil
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"BARGAIN_METRICS_ENABLED" default:"true"`
	Path    string `envconfig:"BARGAIN_METRICS_PATH" default:"/metrics"`
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
