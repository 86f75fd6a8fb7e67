package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend names for the persistence layer.
const (
	BackendSupabase = "supabase"
	BackendMemory   = "memory"
)

// Config holds all configuration for the bot service
type Config struct {
	// Server settings
	Port int

	// LINE Messaging API settings
	ChannelSecret      string
	ChannelAccessToken string

	// Persistence settings
	StoreBackend       string // "supabase" or "memory"
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Auth settings
	JWTSecret string

	// Speech-to-text settings (optional)
	SpeechAPIKey string

	// Cache settings
	CacheTTL      time.Duration
	CacheCapacity int

	// Retry settings
	RetryMaxAttempts       int
	RetryInitialDelay      time.Duration
	RetryMaxDelay          time.Duration
	RetryBackoffMultiplier float64

	// Reminder settings
	ReminderEnabled  bool
	ReminderSchedule string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:                   getEnvInt("PORT", 3000),
		ChannelSecret:          os.Getenv("LINE_CHANNEL_SECRET"),
		ChannelAccessToken:     os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		StoreBackend:           getEnv("STORE_BACKEND", BackendSupabase),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseAnonKey:        os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseServiceKey:     os.Getenv("SUPABASE_SERVICE_KEY"),
		JWTSecret:              getEnv("JWT_SECRET", "xiaowang-jiji-default-secret"),
		SpeechAPIKey:           os.Getenv("GOOGLE_SPEECH_API_KEY"),
		CacheTTL:               time.Duration(getEnvInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		CacheCapacity:          getEnvInt("CACHE_CAPACITY", 100),
		RetryMaxAttempts:       getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:      time.Duration(getEnvInt("RETRY_INITIAL_MS", 1000)) * time.Millisecond,
		RetryMaxDelay:          time.Duration(getEnvInt("RETRY_MAX_MS", 10000)) * time.Millisecond,
		RetryBackoffMultiplier: getEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
		ReminderEnabled:        getEnvBool("REMINDER_ENABLED", true),
		ReminderSchedule:       getEnv("REMINDER_SCHEDULE", "@every 1m"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SupabaseKey returns the service key when set, falling back to the anon key.
func (c *Config) SupabaseKey() string {
	if c.SupabaseServiceKey != "" {
		return c.SupabaseServiceKey
	}
	return c.SupabaseAnonKey
}

// validate checks that all required configuration is present
func (c *Config) validate() error {
	if err := c.validateLineCredentials(); err != nil {
		return err
	}

	if err := c.validateStoreConfig(); err != nil {
		return err
	}

	c.applyDefaults()
	return nil
}

func (c *Config) validateLineCredentials() error {
	if c.ChannelSecret == "" {
		return fmt.Errorf("LINE_CHANNEL_SECRET is required")
	}
	if c.ChannelAccessToken == "" {
		return fmt.Errorf("LINE_CHANNEL_ACCESS_TOKEN is required")
	}
	return nil
}

func (c *Config) validateStoreConfig() error {
	switch c.StoreBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required for the supabase backend")
		}
		if c.SupabaseKey() == "" {
			return fmt.Errorf("SUPABASE_ANON_KEY or SUPABASE_SERVICE_KEY is required for the supabase backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid store backend: %s (must be 'supabase' or 'memory')", c.StoreBackend)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 60 * time.Second
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = 100
	}
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = 3
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = time.Second
	}
	if c.RetryMaxDelay < c.RetryInitialDelay {
		c.RetryMaxDelay = 10 * time.Second
	}
	if c.RetryBackoffMultiplier < 1 {
		c.RetryBackoffMultiplier = 2
	}
	if c.ReminderSchedule == "" {
		c.ReminderSchedule = "@every 1m"
	}
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
