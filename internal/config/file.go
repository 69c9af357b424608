package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file structure.
type FileConfig struct {
	ServerPort       string        `toml:"server_port"`
	LogLevel         string        `toml:"log_level"`
	ModelsCacheTTL   *Duration     `toml:"models_cache_ttl"`
	ConnectTimeout   *Duration     `toml:"connect_timeout"`
	RequestTimeout   *Duration     `toml:"request_timeout"`
	DBPath           string        `toml:"db_path"`
	MaxConversations *int          `toml:"max_conversations"`
	LogRetention     *Duration     `toml:"log_retention"`
	AdminToken       string        `toml:"admin_token"`
	Upstreams        FileUpstreams `toml:"upstreams"`
}

// FileUpstreams is the [upstreams] table.
type FileUpstreams struct {
	Chat   []string `toml:"chat"`
	Models []string `toml:"models"`
	Searx  []string `toml:"searx"`
	NVD    []string `toml:"nvd"`
}

// Duration decodes TOML strings such as "90s" or "5m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// ConfigPath returns the path to the config file (~/.chatrelay/config.toml).
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// LoadFile loads configuration from the TOML file.
// Returns an empty FileConfig if the file doesn't exist.
func LoadFile() (*FileConfig, error) {
	return LoadFileFrom(ConfigPath())
}

// LoadFileFrom loads configuration from the TOML file at path.
func LoadFileFrom(path string) (*FileConfig, error) {
	cfg := &FileConfig{}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EnsureConfigFile creates a default config file with commented examples if none exists.
func EnsureConfigFile() error {
	path := ConfigPath()

	// If config already exists, do nothing
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	// Ensure directory exists
	if err := EnsureDataDir(); err != nil {
		return err
	}

	defaultConfig := `# Chatrelay Configuration
# server_port = ":8080"
# log_level = "info"
# models_cache_ttl = "5m"
# connect_timeout = "10s"
# request_timeout = "0s"        # 0 leaves streamed completions unbounded
# db_path = "/var/lib/chatrelay/chatrelay.db"
# max_conversations = 50
# log_retention = "720h"
# admin_token = ""              # enables /admin when set

# Candidate upstreams, tried in order.
# [upstreams]
# chat = ["https://api.llm7.io/v1", "https://llm7.io/v1"]
# models = ["https://api.llm7.io/v1", "https://llm7.io/v1"]
# searx = ["https://searx.be", "https://search.inetol.net"]
# nvd = ["https://services.nvd.nist.gov"]
`

	return os.WriteFile(path, []byte(defaultConfig), 0644)
}
