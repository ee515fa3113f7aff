package config

const (
	EnvPrefix = "FREIGHT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EventSinkPubSub = "pubsub"
	EventSinkKafka  = "kafka"
)

const (
	EnvAppEnv          = "FREIGHT_APP_ENV"
	EnvPort            = "FREIGHT_APP_PORT"
	EnvDBDSN           = "FREIGHT_DB_DSN"
	EnvDBHost          = "FREIGHT_DB_HOST"
	EnvDBUser          = "FREIGHT_DB_USER"
	EnvDBName          = "FREIGHT_DB_NAME"
	EnvRedisURL        = "FREIGHT_REDIS_URL"
	EnvUseSQLite       = "FREIGHT_USE_SQLITE"
	EnvEventingSink    = "FREIGHT_EVENTING_SINK"
	EnvKafkaBrokers    = "FREIGHT_KAFKA_BROKERS"
	EnvPaymentsTimeout = "FREIGHT_PAYMENTS_GATEWAY_TIMEOUT"
	EnvBiddingValidity = "FREIGHT_BIDDING_DEFAULT_VALIDITY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
