// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Sentinel causes wrapped by *Error.
var (
	ErrMissing = errors.New("required setting is missing")
	ErrInvalid = errors.New("setting has an invalid value")
)

// Error reports a configuration problem with one setting.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Key, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

func missing(key string) error { return &Error{Key: key, Err: ErrMissing} }

func invalid(key, format string, args ...any) error {
	return &Error{Key: key, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)}
}

// Config holds all application configuration.
type Config struct {
	Port           string
	GRPCPort       string
	LogLevel       slog.Level
	FrontendURL    string
	AllowedOrigins []string
	// TrustUserHeader accepts X-User-ID as the caller identity. Enable only
	// behind a front end that sets the header itself.
	TrustUserHeader    bool
	SessionTTL         time.Duration
	CleanupInterval    time.Duration
	RateLimitPerMinute int
	Store              StoreConfig
	Generation         GenerationConfig
	Remote             RemoteConfig
	Dialogue           DialogueConfig
	ConversationLog    ConversationLogConfig
}

// StoreConfig selects and configures the session store.
type StoreConfig struct {
	Driver        string // "sqlite" or "redis"
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// GenerationConfig configures the local model runtime and its scheduler.
type GenerationConfig struct {
	OllamaHost    string
	OllamaModel   string
	PromptFamily  string
	MaxActiveJobs int
	JobTimeout    time.Duration
	RemindToEnd   bool
}

// RemoteConfig configures the remote completion provider. An empty Provider
// disables the remote backend.
type RemoteConfig struct {
	Provider      string // "gemini" or "openai"
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

// DialogueConfig tunes the booking dialogue.
type DialogueConfig struct {
	DefaultBackend    string // "local" or "remote"
	UnsureAsNo        bool
	DisableParaphrase bool
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
		Port:               getEnv("PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "9090"),
		LogLevel:           getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		AllowedOrigins:     getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		TrustUserHeader:    getEnvBool("TRUST_USER_HEADER", false),
		SessionTTL:         getEnvDuration("SESSION_TTL", 60*time.Minute),
		CleanupInterval:    getEnvDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		Store: StoreConfig{
			Driver:        strings.ToLower(getEnv("STORE_DRIVER", "sqlite")),
			DBPath:        getEnv("DB_PATH", "./data/aicare.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Generation: GenerationConfig{
			OllamaHost:    getEnv("OLLAMA_HOST", ""),
			OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),
			PromptFamily:  getEnv("PROMPT_FAMILY", "llama3"),
			MaxActiveJobs: getEnvInt("GEN_MAX_ACTIVE_JOBS", 16),
			JobTimeout:    getEnvDuration("GEN_JOB_TIMEOUT", 60*time.Second),
			RemindToEnd:   getEnvBool("GEN_REMIND_TO_END", true),
		},
		Remote: RemoteConfig{
			Provider:      strings.ToLower(getEnv("REMOTE_PROVIDER", "")),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		},
		Dialogue: DialogueConfig{
			DefaultBackend:    strings.ToLower(getEnv("DEFAULT_BACKEND", "local")),
			UnsureAsNo:        getEnvBool("UNSURE_AS_NO", false),
			DisableParaphrase: getEnvBool("DISABLE_PARAPHRASE", false),
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
		return missing("PORT")
	}
	if c.GRPCPort == "" {
		return missing("GRPC_PORT")
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DBPath == "" {
			return missing("DB_PATH")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return missing("REDIS_ADDR")
		}
	default:
		return invalid("STORE_DRIVER", "%q (want sqlite or redis)", c.Store.Driver)
	}
	if c.SessionTTL <= 0 {
		return invalid("SESSION_TTL", "must be > 0")
	}

	if c.Generation.OllamaHost == "" {
		return missing("OLLAMA_HOST")
	}
	if c.Generation.OllamaModel == "" {
		return missing("OLLAMA_MODEL")
	}
	switch strings.ToLower(c.Generation.PromptFamily) {
	case "llama3", "llama-3", "phi3", "phi-3":
	default:
		return invalid("PROMPT_FAMILY", "%q (want llama3 or phi3)", c.Generation.PromptFamily)
	}
	if c.Generation.MaxActiveJobs <= 0 {
		return invalid("GEN_MAX_ACTIVE_JOBS", "must be > 0")
	}
	if c.Generation.JobTimeout <= 0 {
		return invalid("GEN_JOB_TIMEOUT", "must be > 0")
	}

	switch c.Remote.Provider {
	case "":
	case "gemini":
		if c.Remote.GeminiAPIKey == "" {
			return missing("GEMINI_API_KEY")
		}
	case "openai":
		if c.Remote.OpenAIAPIKey == "" {
			return missing("OPENAI_API_KEY")
		}
	default:
		return invalid("REMOTE_PROVIDER", "%q (want gemini or openai)", c.Remote.Provider)
	}

	switch c.Dialogue.DefaultBackend {
	case "local":
	case "remote":
		if c.Remote.Provider == "" {
			return missing("REMOTE_PROVIDER")
		}
	default:
		return invalid("DEFAULT_BACKEND", "%q (want local or remote)", c.Dialogue.DefaultBackend)
	}

	if c.RateLimitPerMinute < 0 {
		return invalid("RATE_LIMIT_PER_MINUTE", "must be >= 0")
	}
	if c.ConversationLog.Dir == "" {
		return missing("CONVERSATION_LOG_DIR")
	}
	if c.ConversationLog.GlobalPath == "" {
		return missing("CONVERSATION_LOG_GLOBAL_PATH")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return invalid("CONVERSATION_LOG_QUEUE_SIZE", "must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env == "development"
	}
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

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
