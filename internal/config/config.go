package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultModelCandidates is the Groq fallback order used when MODEL_CANDIDATES is not set.
var DefaultModelCandidates = []string{
	"llama-3.3-70b-versatile",
	"llama-3.1-70b-versatile",
	"llama-3.1-8b-instant",
	"mixtral-8x7b-32768",
	"gemma2-9b-it",
}

// ErrMissingAPIKey is returned when neither GROQ_API_KEY nor GEMINI_API_KEY is set.
var ErrMissingAPIKey = errors.New("GROQ_API_KEY environment variable not set")

// Config holds the configuration for the application.
type Config struct {
	GroqAPIKey   string
	GeminiAPIKey string
	// Chat completions endpoint; any OpenAI-compatible server works.
	GroqBaseURL string

	// Ordered list of model identifiers, most preferred first.
	ModelCandidates []string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	StageInterval    time.Duration
	WebSearchEnabled bool

	DatabasePath string
	Port         string
	RateLimitRPS float64

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
}

// LoadDotEnv loads a .env file from the working directory if one exists.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	groqAPIKey := os.Getenv("GROQ_API_KEY")
	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	if groqAPIKey == "" && geminiAPIKey == "" {
		return nil, ErrMissingAPIKey
	}

	candidates := DefaultModelCandidates
	if raw := os.Getenv("MODEL_CANDIDATES"); raw != "" {
		candidates = splitList(raw)
		if len(candidates) == 0 {
			return nil, fmt.Errorf("MODEL_CANDIDATES must list at least one model")
		}
	}

	retryMaxAttempts, err := intFromEnv("RETRY_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	if retryMaxAttempts < 1 {
		return nil, fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", retryMaxAttempts)
	}

	retryBaseDelay, err := durationFromEnv("RETRY_BASE_DELAY", 2*time.Second)
	if err != nil {
		return nil, err
	}

	stageInterval, err := durationFromEnv("STAGE_INTERVAL", time.Second)
	if err != nil {
		return nil, err
	}

	webSearchEnabled := true
	if raw := os.Getenv("WEB_SEARCH_ENABLED"); raw != "" {
		webSearchEnabled, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid WEB_SEARCH_ENABLED %q: %w", raw, err)
		}
	}

	rateLimitRPS := 1.0
	if raw := os.Getenv("RATE_LIMIT_RPS"); raw != "" {
		rateLimitRPS, err = strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", raw, err)
		}
	}

	databasePath := os.Getenv("DATABASE_PATH")
	if databasePath == "" {
		databasePath = "data/smart-health.db"
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Telegram Config (Optional for CLI, required for Bot)
	var allowedIDs []int64
	for _, raw := range splitList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS")) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS entry %q: %w", raw, err)
		}
		allowedIDs = append(allowedIDs, id)
	}

	return &Config{
		GroqAPIKey:             groqAPIKey,
		GeminiAPIKey:           geminiAPIKey,
		GroqBaseURL:            os.Getenv("GROQ_BASE_URL"),
		ModelCandidates:        candidates,
		RetryMaxAttempts:       retryMaxAttempts,
		RetryBaseDelay:         retryBaseDelay,
		StageInterval:          stageInterval,
		WebSearchEnabled:       webSearchEnabled,
		DatabasePath:           databasePath,
		Port:                   port,
		RateLimitRPS:           rateLimitRPS,
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowedIDs,
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intFromEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	return v, nil
}
