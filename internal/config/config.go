package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration values loaded from environment variables.
type Config struct {
	DatabaseURL     string
	JWTSecret       string
	HTTPPort        string
	TokenExpiration time.Duration

	// LLM backend (OpenAI-compatible; set OPENAI_BASE_URL for OpenRouter).
	OpenAIAPIKey  string
	OpenAIBaseURL string
	DefaultModel  string

	// Tool subprocess settings.
	ToolRunner      string        // interpreter used to launch tool server scripts
	ToolEnvKeys     []string      // env var names forwarded to tool subprocesses
	AgentRunTimeout time.Duration // 0 = no deadline on an agent run
	StreamDebounce  time.Duration // minimum interval between streamed frames
}

// LoadConfig loads configuration from environment variables.
// It looks for a .env file first, then checks actual environment variables.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables only.")
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	cfg := &Config{
		DatabaseURL:     dbURL,
		JWTSecret:       getEnv("JWT_SECRET", "default-super-secret-key"), // CHANGE THIS IN PRODUCTION!
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		TokenExpiration: time.Hour * time.Duration(getEnvInt("JWT_EXPIRATION_HOURS", 24)),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "gpt-4o"),
		ToolRunner:      getEnv("TOOL_RUNNER", "python3"),
		AgentRunTimeout: time.Duration(getEnvInt("AGENT_RUN_TIMEOUT_SECONDS", 0)) * time.Second,
		StreamDebounce:  time.Duration(getEnvInt("STREAM_DEBOUNCE_MS", 10)) * time.Millisecond,
	}

	// Comma-separated list of env var names whose values are forwarded to
	// tool subprocesses (API keys the tool servers need). Never user input.
	if raw := getEnv("TOOL_ENV_KEYS", "SERPER_API_KEY"); raw != "" {
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.ToolEnvKeys = append(cfg.ToolEnvKeys, key)
			}
		}
	}

	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY is not set; agent runs will fail until configured.")
	}

	log.Printf("Loaded config: Port=%s, DB_URL=***, TokenExp=%s, Model=%s, ToolRunner=%s",
		cfg.HTTPPort, cfg.TokenExpiration, cfg.DefaultModel, cfg.ToolRunner)

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable or returns a default value.
func getEnvInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Warning: invalid %s '%s', using default %d. Error: %v", key, raw, fallback, err)
		return fallback
	}
	return v
}
