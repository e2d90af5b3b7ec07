package config

// EnvPrefix is passed to envconfig; individual fields carry fully qualified
// names so the prefix stays empty and keys remain greppable.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags (tests, errors).
const (
	EnvAppEnv     = "TIJARA_APP_ENV"
	EnvPort       = "TIJARA_APP_PORT"
	EnvDBDSN      = "TIJARA_DB_DSN"
	EnvDBHost     = "TIJARA_DB_HOST"
	EnvDBUser     = "TIJARA_DB_USER"
	EnvDBName     = "TIJARA_DB_NAME"
	EnvRedisURL   = "TIJARA_REDIS_URL"
	EnvJWTSecret  = "TIJARA_JWT_SECRET"
	EnvJWTIssuer  = "TIJARA_JWT_ISSUER"
	EnvGatewayURL = "TIJARA_GATEWAY_BASE_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
