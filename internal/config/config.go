// Package config provides configuration management for the application.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	Identity IdentityConfig `mapstructure:"identity"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// RequestTimeout bounds each request when positive. Zero leaves
	// requests unbounded.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// GitHubConfig holds upstream GitHub API configuration.
type GitHubConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"` // http.Client timeout, 0 = none
}

// IdentityConfig holds the trusted identity provider settings.
type IdentityConfig struct {
	TeamDomain string        `mapstructure:"team_domain"`
	CertsURL   string        `mapstructure:"certs_url"` // overrides the URL derived from TeamDomain
	Audience   string        `mapstructure:"audience"`
	KeysTTL    time.Duration `mapstructure:"keys_ttl"` // 0 re-fetches the key set on every request
}

// StorageConfig holds session storage configuration.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or bolt
	Path   string `mapstructure:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", time.Duration(0))
	v.SetDefault("github.base_url", "https://api.github.com/")
	v.SetDefault("github.user_agent", "Codeflare-App")
	v.SetDefault("github.timeout", time.Duration(0))
	v.SetDefault("identity.team_domain", "")
	v.SetDefault("identity.certs_url", "")
	v.SetDefault("identity.audience", "")
	v.SetDefault("identity.keys_ttl", 5*time.Minute)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "./data/codeflare.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Read environment variables
	v.SetEnvPrefix("CODEFLARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks if all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Identity.TeamDomain == "" && c.Identity.CertsURL == "" {
		return fmt.Errorf("identity team_domain or certs_url is required")
	}
	if c.Identity.Audience == "" {
		return fmt.Errorf("identity audience is required")
	}
	switch c.Storage.Driver {
	case "sqlite", "bolt":
	default:
		return fmt.Errorf("unsupported storage driver %q (expected sqlite or bolt)", c.Storage.Driver)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if !strings.HasSuffix(c.GitHub.BaseURL, "/") {
		c.GitHub.BaseURL += "/"
	}
	return nil
}

// ServerAddress returns the full server address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// KeySetURL returns the endpoint serving the identity provider's key set.
func (c *IdentityConfig) KeySetURL() string {
	if c.CertsURL != "" {
		return c.CertsURL
	}
	return fmt.Sprintf("https://%s.cloudflareaccess.com/cdn-cgi/access/certs", c.TeamDomain)
}
