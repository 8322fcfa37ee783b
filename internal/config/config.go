package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPersonaPrompt = `You are Sunny, a warm and supportive wellbeing companion that students reach over WhatsApp.

Listen first. Acknowledge how the person feels before offering anything else.
Keep replies short (2-4 sentences), plain text, no markdown, no lists.
Offer one small, practical step when it fits (a breathing exercise, a study break, reaching out to a friend).
You are not a therapist and must never diagnose or give medical advice.
If someone mentions self-harm or being in danger, gently encourage them to contact local emergency services or a crisis line right away.`

	DefaultFallbackReply = "Sorry, I'm having trouble replying right now. Please try again in a little while."
)

// Dedupe backends.
const (
	DedupeNone     = "none"
	DedupeMemory   = "memory"
	DedupeRedis    = "redis"
	DedupePostgres = "postgres"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// WhatsApp Cloud API
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string
	WhatsAppAPIBase       string
	WhatsAppAPIVersion    string

	// Gemini
	GeminiAPIKey          string
	GeminiModel           string
	GeminiTemperature     float32
	GeminiMaxOutputTokens int32

	// Bedrock fallback provider (optional)
	BedrockModelID     string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Relay behavior
	PersonaPrompt     string
	FallbackReply     string
	SessionMaxSenders int
	SessionMaxTurns   int
	GenerationTimeout time.Duration
	DeliveryTimeout   time.Duration

	// Idempotency cache (optional)
	DedupeBackend string
	DedupeTTL     time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string
}

// ConfigError reports every required setting that is missing or invalid.
type ConfigError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required environment variables: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "3000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAPIBase:       getEnv("WHATSAPP_API_BASE", "https://graph.facebook.com"),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v18.0"),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiTemperature:     getEnvAsFloat32("GEMINI_TEMPERATURE", 0.7),
		GeminiMaxOutputTokens: int32(getEnvAsInt("GEMINI_MAX_OUTPUT_TOKENS", 512)),

		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		PersonaPrompt:     getEnv("PERSONA_PROMPT", DefaultPersonaPrompt),
		FallbackReply:     getEnv("FALLBACK_REPLY", DefaultFallbackReply),
		SessionMaxSenders: getEnvAsInt("SESSION_MAX_SENDERS", 1000),
		SessionMaxTurns:   getEnvAsInt("SESSION_MAX_TURNS", 40),
		GenerationTimeout: getEnvAsDuration("GENERATION_TIMEOUT", 30*time.Second),
		DeliveryTimeout:   getEnvAsDuration("DELIVERY_TIMEOUT", 10*time.Second),

		DedupeBackend: strings.ToLower(strings.TrimSpace(getEnv("DEDUPE_BACKEND", DedupeNone))),
		DedupeTTL:     getEnvAsDuration("DEDUPE_TTL", 24*time.Hour),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
	}
}

// Validate checks that every setting needed to serve traffic is present.
// It returns a *ConfigError listing all problems at once.
func (c *Config) Validate() error {
	cfgErr := &ConfigError{}
	required := []struct {
		key   string
		value string
	}{
		{"WHATSAPP_TOKEN", c.WhatsAppToken},
		{"GEMINI_API_KEY", c.GeminiAPIKey},
		{"WHATSAPP_PHONE_NUMBER_ID", c.WhatsAppPhoneNumberID},
		{"WHATSAPP_VERIFY_TOKEN", c.WhatsAppVerifyToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			cfgErr.Missing = append(cfgErr.Missing, r.key)
		}
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("PORT=%q", c.Port))
	}

	switch c.DedupeBackend {
	case "", DedupeNone, DedupeMemory:
	case DedupeRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			cfgErr.Missing = append(cfgErr.Missing, "REDIS_ADDR")
		}
	case DedupePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			cfgErr.Missing = append(cfgErr.Missing, "DATABASE_URL")
		}
	default:
		cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("DEDUPE_BACKEND=%q", c.DedupeBackend))
	}

	if len(cfgErr.Missing) > 0 || len(cfgErr.Invalid) > 0 {
		return cfgErr
	}
	return nil
}

// DedupeEnabled reports whether inbound message ids should be deduplicated.
func (c *Config) DedupeEnabled() bool {
	return c.DedupeBackend != "" && c.DedupeBackend != DedupeNone
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
