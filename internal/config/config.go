// Package config provides environment configuration for the client core
// and the development stub server.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Remote API
	APIBaseURL string
	AppName    string
	AppVersion string

	// Platform entitlement SDK
	AdaptySDKKey      string
	AdaptyAccessLevel string
	AdaptyPlacementID string

	// Payments
	StripePriceID        string
	StripePublishableKey string

	// Behavior
	DevMode  bool
	LogLevel string

	// Devserver settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	JWTSecret          string
	JWTExpiration      time.Duration
	AssistantProvider  string
	OpenAIAPIKey       string
	AnthropicAPIKey    string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	TracingEndpoint    string
	TracingEnabled     bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Remote API
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
		AppName:    getEnv("APP_NAME", "BankrAI"),
		AppVersion: getEnv("APP_VERSION", "1.0.0"),

		// Platform entitlement SDK
		AdaptySDKKey:      getEnv("ADAPTY_SDK_KEY", ""),
		AdaptyAccessLevel: getEnv("ADAPTY_ACCESS_LEVEL", "premium"),
		AdaptyPlacementID: getEnv("ADAPTY_PLACEMENT_ID", ""),

		// Payments
		StripePriceID:        getEnv("STRIPE_PRICE_ID", ""),
		StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),

		// Behavior
		DevMode:  getBoolEnv("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Devserver
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		JWTSecret:          getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration:      getDurationEnv("JWT_EXPIRATION", 24*time.Hour),
		AssistantProvider:  getEnv("ASSISTANT_PROVIDER", "canned"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		RateLimitRequests:  getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		TracingEndpoint:    getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:     getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
