package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	DatabaseURL      string
	RedisURL         string
	QueuePrefix      string
	BotToken         string
	AdminChatIDs     []int64
	DefaultLocale    string
	GeoIPDBPath      string
	StoragePath      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	StandardModel    string
	ArkAPIKey        string
	ArkBaseURL       string
	PremiumModel     string
	OTLPEndpoint     string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int

	WorkerConcurrency int
	ProviderTimeout   time.Duration
	DeliveryTimeout   time.Duration
	QueuePollTimeout  time.Duration
	RetryCeiling      int
	RetryBackoff      []time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	backoff, err := parseDurations(getEnv("RETRY_BACKOFF_SECONDS", "10,30,60"))
	if err != nil {
		return nil, fmt.Errorf("RETRY_BACKOFF_SECONDS: %w", err)
	}
	admins, err := parseInt64List(os.Getenv("ADMIN_CHAT_IDS"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_CHAT_IDS: %w", err)
	}

	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueuePrefix:       getEnv("REDIS_QUEUE_PREFIX", "imagebot:tasks"),
		BotToken:          os.Getenv("BOT_TOKEN"),
		AdminChatIDs:      admins,
		DefaultLocale:     getEnv("DEFAULT_LOCALE", "ru"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		StandardModel:     getEnv("STANDARD_MODEL", "gpt-image-1"),
		ArkAPIKey:         os.Getenv("ARK_API_KEY"),
		ArkBaseURL:        os.Getenv("ARK_BASE_URL"),
		PremiumModel:      getEnv("PREMIUM_MODEL", "seedream-4-5-251128"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HTTPReadTimeout:   getEnvSeconds("HTTP_READ_TIMEOUT_SECONDS", 15),
		HTTPWriteTimeout:  getEnvSeconds("HTTP_WRITE_TIMEOUT_SECONDS", 30),
		HTTPIdleTimeout:   getEnvSeconds("HTTP_IDLE_TIMEOUT_SECONDS", 60),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		ProviderTimeout:   getEnvSeconds("PROVIDER_TIMEOUT_SECONDS", 300),
		DeliveryTimeout:   getEnvSeconds("DELIVERY_TIMEOUT_SECONDS", 60),
		QueuePollTimeout:  getEnvSeconds("QUEUE_POLL_TIMEOUT_SECONDS", 2),
		RetryCeiling:      getEnvInt("RETRY_CEILING", 3),
		RetryBackoff:      backoff,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.WorkerConcurrency <= 0 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be positive")
	}
	if cfg.RetryCeiling <= 0 {
		return nil, fmt.Errorf("RETRY_CEILING must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Second * time.Duration(getEnvInt(key, fallback))
}

func parseDurations(raw string) ([]time.Duration, error) {
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		secs, err := strconv.Atoi(part)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid seconds %q", part)
		}
		out = append(out, time.Duration(secs)*time.Second)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one delay is required")
	}
	return out, nil
}

func parseInt64List(raw string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}
