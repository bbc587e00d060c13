package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	DatabaseURL string

	RedisURL string

	JWTSecret string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	TemplateBucket string

	CORSOrigins string

	ResendAPIKey string
	FromEmail    string
	FromName     string
	Domain       string

	VAPIDSubject    string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	PushTTL         int

	DeliveryWorkers     int
	DeliveryQueueSize   int
	DeliveryTaskTimeout time.Duration
	DeliverySubmitWait  time.Duration
	EmailMaxAttempts    int

	ListenerMinReconnect time.Duration
	ListenerMaxReconnect time.Duration

	SchedulerEnabled bool
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		MinIOEndpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
		MinIOAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinIOSecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
		MinIOUseSSL:    getBoolEnv("MINIO_USE_SSL", false),
		TemplateBucket: getEnv("TEMPLATE_BUCKET", ""),

		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:5173"),

		ResendAPIKey: getEnv("RESEND_API_KEY", ""),
		FromEmail:    getEnv("FROM_EMAIL", "noreply@example.com"),
		FromName:     getEnv("FROM_NAME", "Civic Platform"),
		Domain:       getEnv("DOMAIN", "localhost:5173"),

		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@example.com"),
		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		PushTTL:         getIntEnv("PUSH_TTL", 86400),

		DeliveryWorkers:     getIntEnv("DELIVERY_WORKERS", 8),
		DeliveryQueueSize:   getIntEnv("DELIVERY_QUEUE_SIZE", 1000),
		DeliveryTaskTimeout: getDurationEnv("DELIVERY_TASK_TIMEOUT", 30*time.Second),
		DeliverySubmitWait:  getDurationEnv("DELIVERY_SUBMIT_WAIT", 5*time.Second),
		EmailMaxAttempts:    getIntEnv("EMAIL_MAX_ATTEMPTS", 0),

		ListenerMinReconnect: getDurationEnv("LISTENER_MIN_RECONNECT", 10*time.Second),
		ListenerMaxReconnect: getDurationEnv("LISTENER_MAX_RECONNECT", time.Minute),

		SchedulerEnabled: getBoolEnv("SCHEDULER_ENABLED", true),
	}
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AppURL is the public base URL used in links sent to users.
func (c *Config) AppURL() string {
	if c.IsProduction() {
		return "https://" + c.Domain
	}
	return "http://" + c.Domain
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
