package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string
	TablePrefix string

	// Session auth
	JWTSecret    string
	CookieSecure bool

	// Upload storage
	UploadDir      string
	MaxUploadBytes int64
	MaxImageBytes  int64

	// Attachment context budgets
	MaxTextAttachments int
	MaxAttachmentChars int
	MaxCharsPerFile    int

	// OpenRouter (or any chat-completions compatible endpoint)
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	HTTPReferer       string
	AppTitle          string

	// Optional native Anthropic provider
	AnthropicAPIKey string

	DefaultModel string

	// ChatIdleTimeout is the silence window on the upstream stream,
	// not a total-request deadline.
	ChatIdleTimeout time.Duration

	PricingCacheTTL time.Duration

	// Optional log file directory. Empty means stdout only.
	LogDir      string
	LogMaxFiles int

	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:5173"),
		TablePrefix: getTablePrefix(env),

		JWTSecret:    getEnv("JWT_SECRET", "dev-secret"),
		CookieSecure: getEnv("COOKIE_SECURE", "false") == "true",

		UploadDir:      getEnv("UPLOAD_DIR", "data/uploads"),
		MaxUploadBytes: getInt64("MAX_UPLOAD_BYTES", 25<<20),
		MaxImageBytes:  getInt64("MAX_IMAGE_BYTES", 8<<20),

		MaxTextAttachments: getInt("MAX_TEXT_ATTACHMENTS", 5),
		MaxAttachmentChars: getInt("MAX_TEXT_ATTACHMENT_CHARS", 220_000),
		MaxCharsPerFile:    getInt("MAX_TEXT_ATTACHMENT_CHARS_PER_FILE", 80_000),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		HTTPReferer:       getEnv("OPENROUTER_HTTP_REFERER", "http://localhost"),
		AppTitle:          getEnv("OPENROUTER_APP_TITLE", "ai-chat-webui"),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		DefaultModel: getEnv("DEFAULT_MODEL", "openai/gpt-4o-mini"),

		ChatIdleTimeout: getDuration("CHAT_IDLE_TIMEOUT", 5*time.Minute),
		PricingCacheTTL: getDuration("PRICING_CACHE_TTL", time.Hour),

		LogDir:      getEnv("LOG_DIR", ""),
		LogMaxFiles: getInt("LOG_MAX_FILES", 10),

		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
