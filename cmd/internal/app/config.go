package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL   string
	DBSchema      string
	DBMaxConns    int32
	DBMinConns    int32
	DBAutoMigrate bool

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	RedisURL          string
	RedisKeyPrefix    string
	KafkaBrokers      []string
	KafkaTopic        string
	KafkaWriteTimeout time.Duration

	PhoneCountryCode string
	PhoneTrunkPrefix string

	DeliveryKakaoURL    string
	DeliveryPassURL     string
	DeliveryBearerToken string
	DeliveryTimeout     time.Duration
	DeliveryLogCodes    bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool

	// Security policy:
	// If true, ACCESSGATE_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and session tokens are hashed with HMAC.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("ACCESSGATE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("ACCESSGATE_LOG_LEVEL", "info"),
		LogFormat: EnvString("ACCESSGATE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("ACCESSGATE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("ACCESSGATE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("ACCESSGATE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("ACCESSGATE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("ACCESSGATE_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("ACCESSGATE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("ACCESSGATE_DATABASE_URL", ""),
		DBSchema:      EnvString("ACCESSGATE_DB_SCHEMA", "accessgate"),
		DBMaxConns:    EnvInt32("ACCESSGATE_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("ACCESSGATE_DB_MIN_CONNS", 0),
		DBAutoMigrate: EnvBool("ACCESSGATE_DB_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("ACCESSGATE_READINESS_REQUIRE_DB", false),

		RedisURL:          EnvString("ACCESSGATE_REDIS_URL", ""),
		RedisKeyPrefix:    EnvString("ACCESSGATE_REDIS_KEY_PREFIX", "accessgate:throttle:"),
		KafkaBrokers:      EnvList("ACCESSGATE_KAFKA_BROKERS"),
		KafkaTopic:        EnvString("ACCESSGATE_KAFKA_TOPIC", "accessgate.auth.attempts"),
		KafkaWriteTimeout: EnvDuration("ACCESSGATE_KAFKA_WRITE_TIMEOUT", 5*time.Second),

		PhoneCountryCode: EnvString("ACCESSGATE_PHONE_COUNTRY_CODE", "82"),
		PhoneTrunkPrefix: EnvString("ACCESSGATE_PHONE_TRUNK_PREFIX", "0"),

		DeliveryKakaoURL:    EnvString("ACCESSGATE_DELIVERY_KAKAO_URL", ""),
		DeliveryPassURL:     EnvString("ACCESSGATE_DELIVERY_PASS_URL", ""),
		DeliveryBearerToken: EnvString("ACCESSGATE_DELIVERY_BEARER_TOKEN", ""),
		DeliveryTimeout:     EnvDuration("ACCESSGATE_DELIVERY_TIMEOUT", 5*time.Second),
		DeliveryLogCodes:    EnvBool("ACCESSGATE_DELIVERY_LOG_CODES", false),

		CORSAllowedOrigins:   EnvList("ACCESSGATE_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("ACCESSGATE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("ACCESSGATE_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: EnvBool("ACCESSGATE_METRICS_ENABLED", true),

		RequireTokenHMAC: EnvBool("ACCESSGATE_REQUIRE_TOKEN_HMAC", false),
	}
}
