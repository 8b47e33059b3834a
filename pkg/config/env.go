package config

// EnvPrefix is empty because every field carries its fully-qualified name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv       = "BARGAIN_APP_ENV"
	EnvPort         = "BARGAIN_APP_PORT"
	EnvDBDSN        = "BARGAIN_DB_DSN"
	EnvDBHost       = "BARGAIN_DB_HOST"
	EnvDBUser       = "BARGAIN_DB_USER"
	EnvDBName       = "BARGAIN_DB_NAME"
	EnvUseSQLite    = "BARGAIN_USE_SQLITE"
	EnvRedisURL     = "BARGAIN_REDIS_URL"
	EnvAdmissionCap = "BARGAIN_ADMISSION_CAP"
	EnvCategoryTTL  = "BARGAIN_CATEGORY_CACHE_TTL"
	EnvRetryAttempt = "BARGAIN_CATALOG_RETRY_ATTEMPTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
