package config

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port          string
	OpsAPIKeyHash string

	// Matching
	TickPeriodSeconds    int
	TickSafetyMarginSecs int
	LeaseTTLSeconds      int
	LoadDelaySeconds     int
	ExpiryBufferSeconds  int
	EwmaAlpha            float64
	PairingThreshold     float64
	ModeratedLow         float64
	ModeratedHigh        float64
	WeightAnswered       float64
	WeightCorrect        float64
	QuestionsInSession   int
	ScoreDecimalPlaces   int
	SessionAmount        float64
	WinRatio             float64
	RefundRatio          float64
	PartialRefundRatio   float64

	// Notifications
	AMQPUrl     string
	NotifyQueue string

	// SMS (HostPinnacle)
	SMSServiceBaseURL       string
	SMSServiceUserID        string
	SMSServicePassword      string
	SMSSenderID             string
	SMSRateLimitSeconds     int
	SMSTokenFallbackSeconds int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/majibu?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:          getEnv("APP_PORT", "8080"),
		OpsAPIKeyHash: getEnv("OPS_API_KEY_HASH", ""),

		// Matching
		TickPeriodSeconds:    getEnvInt("TICK_PERIOD_SECONDS", 180),
		TickSafetyMarginSecs: getEnvInt("TICK_SAFETY_MARGIN_SECONDS", 15),
		LeaseTTLSeconds:      getEnvInt("LEASE_TTL_SECONDS", 600),
		LoadDelaySeconds:     getEnvInt("LOAD_DELAY_SECONDS", 180),
		ExpiryBufferSeconds:  getEnvInt("EXPIRY_BUFFER_SECONDS", 300),
		EwmaAlpha:            getEnvFloat("EWMA_ALPHA", 0.7),
		PairingThreshold:     getEnvFloat("PAIRING_THRESHOLD", 0.85),
		ModeratedLow:         getEnvFloat("MODERATED_LOW", 70.0),
		ModeratedHigh:        getEnvFloat("MODERATED_HIGH", 85.0),
		WeightAnswered:       getEnvFloat("W_ANSWERED", 0.2),
		WeightCorrect:        getEnvFloat("W_CORRECT", 0.8),
		QuestionsInSession:   getEnvInt("QUESTIONS_IN_SESSION", 5),
		ScoreDecimalPlaces:   getEnvInt("SCORE_DECIMAL_PLACES", 7),
		SessionAmount:        getEnvFloat("SESSION_AMOUNT", 1000),
		WinRatio:             getEnvFloat("WIN_RATIO", 1.79),
		RefundRatio:          getEnvFloat("REFUND_RATIO", 1.03),
		PartialRefundRatio:   getEnvFloat("PARTIAL_REFUND_RATIO", 1.00),

		// Notifications
		AMQPUrl:     getEnv("AMQP_URL", ""),
		NotifyQueue: getEnv("NOTIFY_QUEUE", "notifications"),

		// SMS
		SMSServiceBaseURL:       getEnv("SMS_SERVICE_BASE_URL", ""),
		SMSServiceUserID:        getEnv("SMS_SERVICE_USER_ID", ""),
		SMSServicePassword:      getEnv("SMS_SERVICE_PASSWORD", ""),
		SMSSenderID:             getEnv("SMS_SENDER_ID", "MAJIBU"),
		SMSRateLimitSeconds:     getEnvInt("SMS_RATE_LIMIT_SECONDS", 10),
		SMSTokenFallbackSeconds: getEnvInt("SMS_TOKEN_FALLBACK_SECONDS", 3600),
	}
}

// Validate checks cross-field constraints that a bad environment could break.
func (c *Config) Validate() error {
	if math.Abs(c.WeightAnswered+c.WeightCorrect-1.0) > 1e-9 {
		return fmt.Errorf("W_ANSWERED + W_CORRECT must sum to 1.0, got %v", c.WeightAnswered+c.WeightCorrect)
	}
	if c.PairingThreshold <= 0 || c.PairingThreshold > 1 {
		return fmt.Errorf("PAIRING_THRESHOLD must be in (0, 1], got %v", c.PairingThreshold)
	}
	if c.ModeratedHigh <= c.ModeratedLow {
		return fmt.Errorf("MODERATED_HIGH (%v) must exceed MODERATED_LOW (%v)", c.ModeratedHigh, c.ModeratedLow)
	}
	if c.QuestionsInSession <= 0 {
		return fmt.Errorf("QUESTIONS_IN_SESSION must be positive, got %d", c.QuestionsInSession)
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
