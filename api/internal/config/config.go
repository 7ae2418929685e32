package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

type Config struct {
	Host        string
	Port        string
	Environment string

	VisionProvider string
	VisionTimeout  time.Duration

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	GeminiAPIKey  string
	GeminiModel   string

	// strict | tolerant
	ParseMode       string
	OptimizeUploads bool
	ImageMaxSize    int
	ImageQuality    int
	ImageMaxPixels  int
	MaxUploadBytes  int64
	AllowedFormats  []string

	CORSAllowedOrigins []string

	LogLevel  string
	LogFormat string

	TelegramBotToken string
	WebhookURL       string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getIntEnv(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
		log.Warnf("invalid %s=%q, using %d", k, v, def)
	}
	return def
}

func getBoolEnv(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		log.Warnf("invalid %s=%q, using %t", k, v, def)
	}
	return def
}

func getDurationEnv(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && d > 0 {
			return d
		}
		log.Warnf("invalid %s=%q, using %s", k, v, def)
	}
	return def
}

// getListEnv splits a comma-separated value, dropping empty items.
func getListEnv(k, def string) []string {
	var out []string
	for _, s := range strings.Split(getEnv(k, def), ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Load reads the process environment once at start. A .env file in the
// working directory is applied first; real env vars win over it.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Info("loaded .env")
	}

	return &Config{
		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        getEnv("PORT", "8000"),
		Environment: getEnv("ENVIRONMENT", "production"),

		VisionProvider: strings.ToLower(getEnv("VISION_PROVIDER", "openai")),
		VisionTimeout:  getDurationEnv("VISION_TIMEOUT", 120*time.Second),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL: strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		ParseMode:       strings.ToLower(getEnv("PARSE_MODE", "strict")),
		OptimizeUploads: getBoolEnv("OPTIMIZE_UPLOADS", false),
		ImageMaxSize:    getIntEnv("IMAGE_MAX_SIZE", 1024),
		ImageQuality:    getIntEnv("IMAGE_QUALITY", 85),
		ImageMaxPixels:  getIntEnv("IMAGE_MAX_PIXELS", 40_000_000),
		MaxUploadBytes:  int64(getIntEnv("MAX_UPLOAD_BYTES", 20<<20)),
		AllowedFormats:  getListEnv("ALLOWED_FORMATS", ""),

		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", "*"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c *Config) OpenAIConfigured() bool {
	return c.OpenAIAPIKey != ""
}

// MaskedKey returns a short prefix of the key suitable for logs.
func MaskedKey(key string) string {
	if key == "" {
		return ""
	}
	n := 7
	if len(key) <= n*2 {
		n = len(key) / 3
	}
	return key[:n] + "..."
}
