// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	DBPath         string
	GRPCHealthPort string

	Session         SessionConfig
	LLM             LLMConfig
	Rewards         RewardsConfig
	RateLimit       RateLimitConfig
	Worker          WorkerConfig
	ConversationLog ConversationLogConfig

	// AvatarThresholdsPath points to a YAML threshold table; empty uses the defaults.
	AvatarThresholdsPath string
	// HistoryLimit is the number of recent messages sent to the model.
	HistoryLimit int
}

// SessionConfig selects where conversation sessions live.
type SessionConfig struct {
	Backend     string // "sqlite" or "redis"
	RedisAddr   string
	RedisPrefix string
}

// LLMConfig configures the language model collaborator.
type LLMConfig struct {
	Provider     string // "openai", "ollama" or "gemini"
	Model        string
	BaseURL      string
	OpenAIAPIKey string
	GeminiAPIKey string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
}

// APIKey returns the key of the selected provider.
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	default:
		return ""
	}
}

// RewardsConfig holds the points granted per completion kind.
type RewardsConfig struct {
	Action    int
	Milestone int
	Goal      int
}

// RateLimitConfig bounds chat requests per user.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// WorkerConfig configures the periodic progress recompute.
type WorkerConfig struct {
	Interval   time.Duration
	PendingTTL time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		FrontendURL:          getEnv("FRONTEND_URL", ""),
		AllowedOrigins:       getEnvList("ALLOWED_ORIGINS"),
		DBPath:               getEnv("DB_PATH", "./data/mentor.db"),
		GRPCHealthPort:       getEnv("GRPC_HEALTH_PORT", ""),
		AvatarThresholdsPath: getEnv("AVATAR_THRESHOLDS_PATH", ""),
		HistoryLimit:         getEnvInt("HISTORY_LIMIT", 20),
		Session: SessionConfig{
			Backend:     strings.ToLower(getEnv("SESSION_BACKEND", "sqlite")),
			RedisAddr:   getEnv("REDIS_ADDR", ""),
			RedisPrefix: getEnv("REDIS_SESSION_PREFIX", "mentor:session:"),
		},
		LLM: LLMConfig{
			Provider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:        getEnv("LLM_MODEL", ""),
			BaseURL:      getEnv("LLM_BASE_URL", ""),
			OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			Temperature:  getEnvFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:    getEnvInt("LLM_MAX_TOKENS", 512),
			Timeout:      getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		Rewards: RewardsConfig{
			Action:    getEnvInt("REWARD_ACTION", 10),
			Milestone: getEnvInt("REWARD_MILESTONE", 25),
			Goal:      getEnvInt("REWARD_GOAL", 100),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("CHAT_RATE_LIMIT", 20),
			Window:   getEnvDuration("CHAT_RATE_WINDOW", time.Minute),
		},
		Worker: WorkerConfig{
			Interval:   getEnvDuration("RECOMPUTE_INTERVAL", 15*time.Minute),
			PendingTTL: getEnvDuration("PENDING_CONFIRMATION_TTL", 24*time.Hour),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	switch c.Session.Backend {
	case "sqlite":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be sqlite or redis, got %q", c.Session.Backend)
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
		if c.LLM.APIKey() == "" {
			return fmt.Errorf("an API key is required for LLM_PROVIDER=%s", c.LLM.Provider)
		}
	case "ollama":
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai, ollama or gemini, got %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.Rewards.Action < 0 || c.Rewards.Milestone < 0 || c.Rewards.Goal < 0 {
		return fmt.Errorf("rewards cannot be negative")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT and CHAT_RATE_WINDOW must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
