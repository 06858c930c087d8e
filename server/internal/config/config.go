package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort = 14000
	DefaultHeader   = "x-api-key"
)

// Config holds the server-side configuration parsed from the `server:` section
// of the config file. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// Listen is the bind host; empty listens on all interfaces.
	Listen string `yaml:"listen"`

	// HTTPPort is the port of the WebHDFS API and the tail hub (default 14000).
	HTTPPort int `yaml:"http_port"`

	// Auth configures how requests are authenticated.
	Auth AuthConfig `yaml:"auth"`

	// Storage controls in-memory file retention.
	Storage StorageConfig `yaml:"storage"`
}

// AuthConfig controls client authentication.
type AuthConfig struct {
	// Mode is one of: pseudo | apikey | none.
	// pseudo requires a user.name query parameter naming one of Users.
	// apikey requires Header to carry the key held in KeyEnv.
	Mode string `yaml:"mode"`

	Users []string `yaml:"users"`

	// KeyEnv is the name of the environment variable that holds the expected key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultHeader
}

// StorageConfig controls in-memory file retention.
type StorageConfig struct {
	// Retention evicts files not written for this long. Zero keeps them forever.
	Retention time.Duration `yaml:"retention"`
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Listen, s.HTTPPort)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "pseudo":
		if len(cfg.Server.Auth.Users) == 0 {
			return fmt.Errorf("server.auth.users is required with mode pseudo")
		}
	case "apikey":
		if cfg.Server.Auth.KeyEnv == "" {
			return fmt.Errorf("server.auth.key_env is required with mode apikey")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want pseudo|apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Storage.Retention < 0 {
		return fmt.Errorf("server.storage.retention must not be negative")
	}
	return nil
}
