package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so it
// only matters for error messages.
const EnvPrefix = "FARMBID"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	EventingModeInline = "inline"
	EventingModeOutbox = "outbox"
)

const (
	EnvAppEnv         = "FARMBID_APP_ENV"
	EnvPort           = "FARMBID_APP_PORT"
	EnvDBDSN          = "FARMBID_DB_DSN"
	EnvDBHost         = "FARMBID_DB_HOST"
	EnvDBUser         = "FARMBID_DB_USER"
	EnvDBName         = "FARMBID_DB_NAME"
	EnvRedisURL       = "FARMBID_REDIS_URL"
	EnvJWTSecret      = "FARMBID_JWT_SECRET"
	EnvJWTIssuer      = "FARMBID_JWT_ISSUER"
	EnvUseSQLite      = "FARMBID_USE_SQLITE"
	EnvEventingMode   = "FARMBID_EVENTING_MODE"
	EnvDeliveryWindow = "FARMBID_MARKET_DELIVERY_WINDOW"
	EnvGCPProjectID   = "FARMBID_GCP_PROJECT_ID"
	EnvPubSubTopic    = "FARMBID_PUBSUB_MARKET_TOPIC"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
