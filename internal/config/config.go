package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	OpenAI       OpenAIConfig
	Retrieval    RetrievalConfig
	Booking      BookingConfig
	Orchestrator OrchestratorConfig
	Redis        RedisConfig
	NATS         NATSConfig
	Catalog      CatalogConfig
	Logging      LoggingConfig
	RateLimit    RateLimitConfig

	// Warnings collects malformed values that fell back to defaults.
	// They are logged once the logger exists.
	Warnings []string
}

// DatabaseConfig holds the transactional store configuration
type DatabaseConfig struct {
	Driver             string // "postgres" or "sqlite3"
	DSN                string // full connection string (preferred)
	Host               string
	Port               int
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

// OpenAIConfig holds OpenAI-compatible API configuration
type OpenAIConfig struct {
	APIKey              string
	APIBase             string
	ChatModel           string // Model for slot extraction and planning
	ChatTemperature     float64
	ChatMaxTokens       int
	EmbeddingModel      string
	EmbeddingDimensions int
	BatchSize           int
	Timeout             int
	Enabled             bool
	PlannerEnabled      bool
}

// RetrievalConfig holds knowledge retriever settings
type RetrievalConfig struct {
	DefaultTopK   int
	MaxTopK       int
	SnippetRunes  int
	KnowledgePath string
}

// BookingConfig holds validator and reservation engine settings
type BookingConfig struct {
	HorizonDays     int
	MaxNights       int
	ConflictRetries int
	StaleTolerance  float64
}

// OrchestratorConfig holds turn timeouts and the retry policy
type OrchestratorConfig struct {
	TurnTimeout time.Duration
	ToolTimeout time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64
}

// RedisConfig holds conversation memory configuration
type RedisConfig struct {
	URL         string
	TTL         time.Duration
	MaxMessages int
}

// NATSConfig holds the NATS transport configuration
type NATSConfig struct {
	URL     string
	Subject string
	Timeout time.Duration
}

// CatalogConfig points at the hotel catalog file
type CatalogConfig struct {
	Path string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// RateLimitConfig holds per-client HTTP rate limits
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.Database = DatabaseConfig{
		Driver:             cfg.getEnv("DB_DRIVER", "postgres"),
		DSN:                cfg.getEnv("DATABASE_URL", cfg.getEnv("PG_DSN", "")),
		Host:               cfg.getEnv("PG_HOST", "localhost"),
		Port:               cfg.getEnvAsInt("PG_PORT", 5432),
		User:               cfg.getEnv("PG_USER", "postgres"),
		Password:           cfg.getEnv("PG_PASSWORD", ""),
		Name:               cfg.getEnv("PG_DATABASE", "concierge"),
		SSLMode:            cfg.getEnv("PG_SSLMODE", "disable"),
		MaxConnections:     cfg.getEnvAsInt("PG_MAX_CONNECTIONS", 25),
		MaxIdleConnections: cfg.getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
	}
	cfg.Server = ServerConfig{
		Port:           cfg.getEnvAsInt("SERVER_PORT", 8080),
		Host:           cfg.getEnv("SERVER_HOST", "0.0.0.0"),
		GinMode:        cfg.getEnv("GIN_MODE", "release"),
		AllowedOrigins: cfg.getEnv("CORS_ALLOWED_ORIGINS", "*"),
		AllowedMethods: cfg.getEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS"),
		AllowedHeaders: cfg.getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
	}
	cfg.OpenAI = OpenAIConfig{
		APIKey:              cfg.getEnv("OPENAI_API_KEY", ""),
		APIBase:             cfg.getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"),
		ChatModel:           cfg.getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		ChatTemperature:     cfg.getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0),
		ChatMaxTokens:       cfg.getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 1024),
		EmbeddingModel:      cfg.getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: cfg.getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1536),
		BatchSize:           cfg.getEnvAsInt("OPENAI_BATCH_SIZE", 100),
		Timeout:             cfg.getEnvAsInt("OPENAI_TIMEOUT", 30),
		Enabled:             cfg.getEnv("OPENAI_API_KEY", "") != "",
		PlannerEnabled:      cfg.getEnvAsBool("PLANNER_LLM_ENABLED", true),
	}
	cfg.Retrieval = RetrievalConfig{
		DefaultTopK:   cfg.getEnvAsInt("RETRIEVAL_TOP_K", 3),
		MaxTopK:       cfg.getEnvAsInt("RETRIEVAL_MAX_TOP_K", 20),
		SnippetRunes:  cfg.getEnvAsInt("RETRIEVAL_SNIPPET_RUNES", 400),
		KnowledgePath: cfg.getEnv("KNOWLEDGE_PATH", "config/knowledge.yaml"),
	}
	cfg.Booking = BookingConfig{
		HorizonDays:     cfg.getEnvAsInt("BOOKING_HORIZON_DAYS", 730),
		MaxNights:       cfg.getEnvAsInt("BOOKING_MAX_NIGHTS", 30),
		ConflictRetries: cfg.getEnvAsInt("BOOKING_CONFLICT_RETRIES", 3),
		StaleTolerance:  cfg.getEnvAsFloat("BOOKING_STALE_TOLERANCE", 0.01),
	}
	cfg.Orchestrator = OrchestratorConfig{
		TurnTimeout: cfg.getEnvAsDuration("TURN_TIMEOUT", 20*time.Second),
		ToolTimeout: cfg.getEnvAsDuration("TOOL_TIMEOUT", 8*time.Second),
		MaxAttempts: cfg.getEnvAsInt("TOOL_MAX_ATTEMPTS", 3),
		BaseDelay:   cfg.getEnvAsDuration("TOOL_RETRY_BASE_DELAY", 200*time.Millisecond),
		MaxDelay:    cfg.getEnvAsDuration("TOOL_RETRY_MAX_DELAY", 2*time.Second),
		Jitter:      cfg.getEnvAsFloat("TOOL_RETRY_JITTER", 0.2),
	}
	cfg.Redis = RedisConfig{
		URL:         cfg.getEnv("REDIS_URL", ""),
		TTL:         cfg.getEnvAsDuration("MEMORY_TTL", 24*time.Hour),
		MaxMessages: cfg.getEnvAsInt("MEMORY_MAX_MESSAGES", 20),
	}
	cfg.NATS = NATSConfig{
		URL:     cfg.getEnv("NATS_URL", "nats://localhost:4222"),
		Subject: cfg.getEnv("NATS_SUBJECT", "concierge.turn"),
		Timeout: cfg.getEnvAsDuration("NATS_REQUEST_TIMEOUT", 30*time.Second),
	}
	cfg.Catalog = CatalogConfig{
		Path: cfg.getEnv("CATALOG_PATH", ""),
	}
	cfg.Logging = LoggingConfig{
		Level:  cfg.getEnv("LOG_LEVEL", "info"),
		Format: cfg.getEnv("LOG_FORMAT", "json"),
	}
	cfg.RateLimit = RateLimitConfig{
		PerMinute: cfg.getEnvAsInt("RATE_LIMIT_PER_MINUTE", 60),
		Burst:     cfg.getEnvAsInt("RATE_LIMIT_BURST", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Booking.StaleTolerance < 0 {
		return fmt.Errorf("BOOKING_STALE_TOLERANCE must be >= 0")
	}
	if c.Orchestrator.MaxAttempts < 1 {
		return fmt.Errorf("TOOL_MAX_ATTEMPTS must be >= 1")
	}
	if c.Retrieval.MaxTopK < 1 {
		return fmt.Errorf("RETRIEVAL_MAX_TOP_K must be >= 1")
	}
	return nil
}

// GetDatabaseDSN returns the connection string for the configured driver
func (c *Config) GetDatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	if c.Database.Driver == "sqlite3" {
		return "file:concierge.db?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// Helper functions

func (c *Config) getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func (c *Config) getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		c.warn("invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func (c *Config) getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		c.warn("invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func (c *Config) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		c.warn("invalid bool value for %s, using default %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func (c *Config) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		c.warn("invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}
