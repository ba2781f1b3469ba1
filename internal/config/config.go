package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	Port           string
	MetricsPort    string
	ConsulAddress  string
	ServiceName    string
	ServiceID      string
	ServiceAddress string
	RabbitMQURI    string
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	MongoURI       string
	MongoDatabase  string
	JWTSecret      string

	// Session policy.
	SessionTTLHours        int
	RememberMeDays         int
	MaxSessionsPerUser     int
	MaxEditingSessions     int
	CleanupIntervalMinutes int
}

func New() *Config {
	return &Config{
		Port:           getEnv("PORT", "9200"),
		MetricsPort:    getEnv("METRICS_PORT", "9201"),
		ConsulAddress:  getEnv("CONSUL_ADDR", ""),
		ServiceName:    getEnv("AUTHZ_SERVICE_NAME", "authz-service"),
		ServiceID:      getEnv("AUTHZ_SERVICE_NAME", "authz-service") + "-" + getEnv("AUTHZ_HOSTNAME", "1"),
		ServiceAddress: getEnv("AUTHZ_SERVICE_ADDRESS", "authz-service"),
		RabbitMQURI:    getEnv("RABBITMQ_URI", ""),
		RedisAddress:   getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PWD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		MongoURI:       getEnv("MONGO_URI", ""),
		MongoDatabase:  getEnv("MONGO_DB", "authz"),
		JWTSecret:      getEnv("JWT_SECRET", ""),

		SessionTTLHours:        getEnvInt("SESSION_TTL_HOURS", 24),
		RememberMeDays:         getEnvInt("REMEMBER_ME_DAYS", 30),
		MaxSessionsPerUser:     getEnvInt("MAX_SESSIONS_PER_USER", 3),
		MaxEditingSessions:     getEnvInt("MAX_EDITING_SESSIONS_PER_USER", 5),
		CleanupIntervalMinutes: getEnvInt("SESSION_CLEANUP_INTERVAL_MINUTES", 5),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}
