package config

// EnvPrefix is passed to envconfig; every field carries its full variable name.
const EnvPrefix = "PAYSWITCH"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv          = "PAYSWITCH_APP_ENV"
	EnvPort            = "PAYSWITCH_APP_PORT"
	EnvDBDSN           = "PAYSWITCH_DB_DSN"
	EnvDBDriver        = "PAYSWITCH_DB_DRIVER"
	EnvDBHost          = "PAYSWITCH_DB_HOST"
	EnvDBUser          = "PAYSWITCH_DB_USER"
	EnvDBName          = "PAYSWITCH_DB_NAME"
	EnvRedisURL        = "PAYSWITCH_REDIS_URL"
	EnvJWTSecret       = "PAYSWITCH_JWT_SECRET"
	EnvCredentialKey   = "PAYSWITCH_CREDENTIAL_KEY"
	EnvAutoSwitch      = "PAYSWITCH_AUTO_SWITCH_ENABLED"
	EnvManualReset     = "PAYSWITCH_ALLOW_MANUAL_RESET"
	EnvResetDayOfMonth = "PAYSWITCH_RESET_DAY_OF_MONTH"
	EnvResetHour       = "PAYSWITCH_RESET_HOUR"
	EnvResetMinute     = "PAYSWITCH_RESET_MINUTE"
	EnvGatewayMethods  = "PAYSWITCH_GATEWAY_PAYMENT_METHODS"
	EnvCORSOrigins     = "PAYSWITCH_CORS_ALLOWED_ORIGINS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
