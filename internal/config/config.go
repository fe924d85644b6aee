// Package config provides environment configuration for the assistant.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageNATS   = "nats"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Tool providers.
const (
	ToolProviderArcade = "arcade"
	ToolProviderLocal  = "local"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultProvider string
	DefaultModel    string
	ModelsFile      string
	LLMMaxRetries   int
	LLMMaxTokens    int

	// Tools
	ToolProvider            string
	ArcadeAPIKey            string
	ArcadeBaseURL           string
	Toolkits                []string
	GitHubClientID          string
	GitHubClientSecret      string
	OAuthRedirectBaseURL    string
	ShortenToolDescriptions bool

	// Engine
	DedupCapacity          int
	MaxTurnSteps           int
	ToolConcurrency        int
	SerializeUserTurns     bool
	SnapshotTTL            time.Duration
	SnapshotDeleteOnResume bool

	// Storage
	StorageType string
	SQLitePath  string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Slack
	SlackBotToken      string
	SlackSigningSecret string
	SlackHistoryLimit  int

	// Redaction
	RedactionEnabled         bool
	RedactEmailPattern       string
	RedactPhonePattern       string
	RedactCreditCardPattern  string
	RedactSSNPattern         string
	RedactUserDefinedPattern string

	// Logging
	LogLevel  string
	LogFormat string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSOrigins:        getListEnv("CORS_ORIGINS", nil),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultProvider: getEnv("DEFAULT_PROVIDER", "openai"),
		DefaultModel:    getEnv("DEFAULT_MODEL", "gpt-4o"),
		ModelsFile:      getEnv("MODELS_FILE", ""),
		LLMMaxRetries:   getIntEnv("LLM_MAX_RETRIES", 3),
		LLMMaxTokens:    getIntEnv("LLM_MAX_TOKENS", 4096),

		// Tools
		ToolProvider:            getEnv("TOOL_PROVIDER", ToolProviderArcade),
		ArcadeAPIKey:            getEnv("ARCADE_API_KEY", ""),
		ArcadeBaseURL:           getEnv("ARCADE_BASE_URL", ""),
		Toolkits:                getListEnv("TOOLKITS", []string{"github", "google", "slack"}),
		GitHubClientID:          getEnv("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret:      getEnv("GITHUB_CLIENT_SECRET", ""),
		OAuthRedirectBaseURL:    getEnv("OAUTH_REDIRECT_BASE_URL", "http://localhost:8080"),
		ShortenToolDescriptions: getBoolEnv("SHORTEN_TOOL_DESCRIPTIONS", false),

		// Engine
		DedupCapacity:          getIntEnv("DEDUP_CAPACITY", 1000),
		MaxTurnSteps:           getIntEnv("MAX_TURN_STEPS", 10),
		ToolConcurrency:        getIntEnv("TOOL_CONCURRENCY", 4),
		SerializeUserTurns:     getBoolEnv("SERIALIZE_USER_TURNS", true),
		SnapshotTTL:            getDurationEnv("SNAPSHOT_TTL", 0),
		SnapshotDeleteOnResume: getBoolEnv("SNAPSHOT_DELETE_ON_RESUME", false),

		// Storage
		StorageType: strings.ToLower(getEnv("STORAGE_TYPE", StorageNATS)),
		SQLitePath:  getEnv("SQLITE_PATH", "./data/assistant.db"),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Slack
		SlackBotToken:      getEnv("SLACK_BOT_TOKEN", ""),
		SlackSigningSecret: getEnv("SLACK_SIGNING_SECRET", ""),
		SlackHistoryLimit:  getIntEnv("SLACK_HISTORY_LIMIT", 15),

		// Redaction
		RedactionEnabled:         getBoolEnv("REDACTION_ENABLED", false),
		RedactEmailPattern:       getEnv("REDACT_EMAIL_PATTERN", ""),
		RedactPhonePattern:       getEnv("REDACT_PHONE_PATTERN", ""),
		RedactCreditCardPattern:  getEnv("REDACT_CREDIT_CARD_PATTERN", ""),
		RedactSSNPattern:         getEnv("REDACT_SSN_PATTERN", ""),
		RedactUserDefinedPattern: getEnv("REDACT_USER_DEFINED_PATTERN", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageType {
	case StorageNATS, StorageSQLite, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType))
	}

	switch c.ToolProvider {
	case ToolProviderArcade:
		if c.ArcadeAPIKey == "" {
			errs = append(errs, errors.New("ARCADE_API_KEY is required for the arcade tool provider"))
		}
	case ToolProviderLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown TOOL_PROVIDER %q", c.ToolProvider))
	}

	if c.OpenAIAPIKey == "" && c.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("one of OPENAI_API_KEY or ANTHROPIC_API_KEY is required"))
	}
	if c.SlackBotToken != "" && c.SlackSigningSecret == "" {
		errs = append(errs, errors.New("SLACK_SIGNING_SECRET is required when SLACK_BOT_TOKEN is set"))
	}

	positive := []struct {
		name  string
		value int
	}{
		{"DEDUP_CAPACITY", c.DedupCapacity},
		{"MAX_TURN_STEPS", c.MaxTurnSteps},
		{"TOOL_CONCURRENCY", c.ToolConcurrency},
		{"LLM_MAX_TOKENS", c.LLMMaxTokens},
		{"SLACK_HISTORY_LIMIT", c.SlackHistoryLimit},
		{"RATE_LIMIT_REQUESTS", c.RateLimitRequests},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}
	if c.LLMMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_RETRIES must not be negative, got %d", c.LLMMaxRetries))
	}
	if c.SnapshotTTL < 0 {
		errs = append(errs, fmt.Errorf("SNAPSHOT_TTL must not be negative, got %s", c.SnapshotTTL))
	}

	return errors.Join(errs...)
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

// getListEnv splits a comma separated value, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
