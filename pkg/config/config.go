package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             string
	LogLevel         string
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	GoogleClientID     string
	GoogleClientSecret string

	GeminiAPIKey string

	FirebaseCredentials string

	RedisAddr string

	// Ingestion tuning.
	PollInterval     time.Duration
	DedupWindow      time.Duration
	ReminderInterval time.Duration

	// Monthly ceiling of AI-derived tasks per user.
	AITaskQuota int

	// Offset (hours from UTC) applied when classifier output or fallback
	// parsing refers to local-time phrases like "tomorrow morning".
	TimezoneOffsetHours int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:  getDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		JWTRefreshExpiry: getDuration("JWT_REFRESH_EXPIRY", 168*time.Hour),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "taskmind"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		PollInterval:     getDuration("POLL_INTERVAL", 45*time.Second),
		DedupWindow:      getDuration("DEDUP_WINDOW", 10*time.Second),
		ReminderInterval: getDuration("REMINDER_INTERVAL", 60*time.Second),

		AITaskQuota: getInt("AI_TASK_QUOTA", 50),

		TimezoneOffsetHours: getInt("TIMEZONE_OFFSET_HOURS", 7),
	}
}

// Location returns the fixed local zone used for time phrase resolution.
func (c *Config) Location() *time.Location {
	return time.FixedZone("local", c.TimezoneOffsetHours*3600)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}
