// Package config loads the service's environment-variable driven
// configuration.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full set of knobs the service reads from its environment.
type Config struct {
	Port     string
	LogLevel string

	// DatabaseDSN selects the Workflow Store backend: empty uses the
	// in-memory store, set uses Postgres via bun.
	DatabaseDSN string

	// LLM/chat client, see internal/llm.Config.
	ChatBaseURL     string
	ChatModel       string
	ChatAuthURL     string
	ChatClientID    string
	ChatSecret      string
	ChatHTTPTimeout time.Duration

	NodeTimeout       time.Duration
	MaxGotoIterations int

	WebhookBaseURL string
}

// Load reads Config from the process environment, applying the same
// defaults the original service shipped with.
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:       getEnv("DATABASE_DSN", ""),
		ChatBaseURL:       getEnv("CHAT_BASE_URL", ""),
		ChatModel:         getEnv("CHAT_MODEL", "GigaChat"),
		ChatAuthURL:       getEnv("CHAT_AUTH_URL", ""),
		ChatClientID:      getEnv("CHAT_CLIENT_ID", ""),
		ChatSecret:        getEnv("CHAT_CLIENT_SECRET", ""),
		ChatHTTPTimeout:   getDuration("CHAT_HTTP_TIMEOUT", 60*time.Second),
		NodeTimeout:       getDuration("NODE_TIMEOUT", 0),
		MaxGotoIterations: getInt("MAX_GOTO_ITERATIONS", 10),
		WebhookBaseURL:    getEnv("WEBHOOK_BASE_URL", ""),
	}
}

// PortInt returns Port parsed as an integer, 0 if it does not parse.
func (c *Config) PortInt() int {
	p, _ := strconv.Atoi(c.Port)
	return p
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
