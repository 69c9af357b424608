package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Default upstream candidates, tried in order.
var (
	DefaultChatUpstreams   = []string{"https://api.llm7.io/v1", "https://llm7.io/v1"}
	DefaultModelsUpstreams = []string{"https://api.llm7.io/v1", "https://llm7.io/v1"}
	DefaultSearxUpstreams  = []string{"https://searx.be", "https://search.inetol.net"}
	DefaultNVDUpstreams    = []string{"https://services.nvd.nist.gov"}
)

// Config holds application configuration loaded from environment and file.
// Priority: Env vars → config.toml → defaults
type Config struct {
	// ServerPort is the address to bind the server to (e.g., ":8080")
	ServerPort string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// ModelsCacheTTL is how long a successful model listing is reused per
	// credential. Zero disables the cache.
	ModelsCacheTTL time.Duration

	// ConnectTimeout bounds dialing and the TLS handshake of upstream calls.
	ConnectTimeout time.Duration

	// RequestTimeout bounds a whole upstream exchange, body included.
	// Zero leaves streamed responses unbounded.
	RequestTimeout time.Duration

	// Upstreams lists candidate base URLs per operation.
	Upstreams Upstreams

	// DBPath is the SQLite database file.
	DBPath string

	// MaxConversations caps stored conversations.
	MaxConversations int

	// LogRetention is how long request logs are kept. Zero keeps them forever.
	LogRetention time.Duration

	// AdminToken is the bearer token for the /admin routes. Empty leaves
	// them unmounted.
	AdminToken string
}

// Upstreams lists candidate base URLs per operation.
type Upstreams struct {
	Chat   []string
	Models []string
	Searx  []string
	NVD    []string
}

// Load reads configuration from file and environment variables.
// Environment variables override file config values.
func Load() *Config {
	fileConfig, err := LoadFile()
	if err != nil || fileConfig == nil {
		fileConfig = &FileConfig{} // Ignore error, use defaults
	}
	up := fileConfig.Upstreams

	return &Config{
		ServerPort:       getEnvOrFile("SERVER_PORT", fileConfig.ServerPort, ":8080"),
		LogLevel:         getEnvOrFile("LOG_LEVEL", fileConfig.LogLevel, "info"),
		ModelsCacheTTL:   getEnvDurationOrFile("MODELS_CACHE_TTL", fileConfig.ModelsCacheTTL, 5*time.Minute),
		ConnectTimeout:   getEnvDurationOrFile("CONNECT_TIMEOUT", fileConfig.ConnectTimeout, 10*time.Second),
		RequestTimeout:   getEnvDurationOrFile("REQUEST_TIMEOUT", fileConfig.RequestTimeout, 0),
		DBPath:           getEnvOrFile("DB_PATH", fileConfig.DBPath, DBPath()),
		MaxConversations: getEnvIntOrFile("MAX_CONVERSATIONS", fileConfig.MaxConversations, 50),
		LogRetention:     getEnvDurationOrFile("LOG_RETENTION", fileConfig.LogRetention, 30*24*time.Hour),
		AdminToken:       getEnvOrFile("ADMIN_TOKEN", fileConfig.AdminToken, ""),
		Upstreams: Upstreams{
			Chat:   getEnvListOrFile("CHAT_UPSTREAMS", up.Chat, DefaultChatUpstreams),
			Models: getEnvListOrFile("MODELS_UPSTREAMS", up.Models, DefaultModelsUpstreams),
			Searx:  getEnvListOrFile("SEARX_UPSTREAMS", up.Searx, DefaultSearxUpstreams),
			NVD:    getEnvListOrFile("NVD_UPSTREAMS", up.NVD, DefaultNVDUpstreams),
		},
	}
}

// getEnvOrFile returns env value, file value, or default (in priority order)
func getEnvOrFile(key, fileValue, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if fileValue != "" {
		return fileValue
	}
	return defaultValue
}

// getEnvIntOrFile returns env int, file int, or default (in priority order).
// Unparsable env values are ignored.
func getEnvIntOrFile(key string, fileValue *int, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	if fileValue != nil {
		return *fileValue
	}
	return defaultValue
}

// getEnvDurationOrFile returns env duration, file duration, or default (in
// priority order). Values use time.ParseDuration syntax.
func getEnvDurationOrFile(key string, fileValue *Duration, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	if fileValue != nil {
		return fileValue.Duration
	}
	return defaultValue
}

// getEnvListOrFile returns a comma-separated env list, file list, or default
// (in priority order).
func getEnvListOrFile(key string, fileValue, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if len(fileValue) > 0 {
		return fileValue
	}
	return append([]string(nil), defaultValue...)
}
