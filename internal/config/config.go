package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// App Store configuration
	AppStoreSharedSecret string
	AppStoreTimeout      time.Duration

	// Admin routes
	AdminAPIKey string

	// Requests per minute per project when the project sets none
	DefaultRateLimit int

	// Brevo email configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string

	AlertCooldown time.Duration
	ServiceName   string
}

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                 getEnv("PORT", "8080"),
		Mode:                 getEnv("GIN_MODE", "debug"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		RedisURL:             getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AppStoreSharedSecret: getEnv("APPSTORE_SHARED_SECRET", ""),
		AppStoreTimeout:      time.Duration(getEnvInt("APPSTORE_TIMEOUT_SECONDS", 5)) * time.Second,
		AdminAPIKey:          getEnv("ADMIN_API_KEY", ""),
		DefaultRateLimit:     getEnvInt("DEFAULT_RATE_LIMIT", 60),
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:       getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:        getEnv("BREVO_FROM_NAME", "Receipt Service"),
		AlertCooldown:        time.Duration(getEnvInt("ALERT_COOLDOWN_MINUTES", 60)) * time.Minute,
		ServiceName:          getEnv("SERVICE_NAME", "Receipt Validation Service"),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
