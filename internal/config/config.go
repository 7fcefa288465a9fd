package config

import (
	"os"
	"strconv"

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

	// Veriff configuration
	VeriffAPIURL    string
	VeriffAPIKey    string
	VeriffSecretKey string

	// Stripe Identity configuration
	StripeAPIURL        string
	StripeSecretKey     string
	StripeWebhookSecret string

	// Resend email configuration
	ResendAPIURL string
	ResendAPIKey string
	ResendFrom   string

	// Shopify configuration
	ShopifyWebhookSecret string
	ShopifyAdminToken    string
	ShopifyAPIVersion    string

	// Storefront proxy token signing
	JWTSecret string

	// Verification policy
	TriggerPriceDefault float64
	PendingTTLHours     int
	TrialLengthDays     int
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
		VeriffAPIURL:         getEnv("VERIFF_API_URL", "https://stationapi.veriff.com/v1"),
		VeriffAPIKey:         getEnv("VERIFF_API_KEY", ""),
		VeriffSecretKey:      getEnv("VERIFF_SECRET_KEY", ""),
		StripeAPIURL:         getEnv("STRIPE_API_URL", "https://api.stripe.com"),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		ResendAPIURL:         getEnv("RESEND_API_URL", "https://api.resend.com"),
		ResendAPIKey:         getEnv("RESEND_API_KEY", ""),
		ResendFrom:           getEnv("RESEND_FROM", "Verifly <info@verifly.shop>"),
		ShopifyWebhookSecret: getEnv("SHOPIFY_WEBHOOK_SECRET", ""),
		ShopifyAdminToken:    getEnv("SHOPIFY_ADMIN_TOKEN", ""),
		ShopifyAPIVersion:    getEnv("SHOPIFY_API_VERSION", "2024-01"),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		TriggerPriceDefault:  getEnvFloat("TRIGGER_PRICE_DEFAULT", 100),
		PendingTTLHours:      getEnvInt("PENDING_TTL_HOURS", 168),
		TrialLengthDays:      getEnvInt("TRIAL_LENGTH_DAYS", 7),
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
