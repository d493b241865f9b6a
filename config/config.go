// Package config loads the service configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yoku-app/MERIDIA/localauth"
)

const (
	AuthSupabase = "supabase"
	AuthLocal    = "local"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	API      APIConfig      `yaml:"api"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Local    LocalConfig    `yaml:"local"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// HostedURL is the public origin of the site, with a trailing slash.
	HostedURL       string `yaml:"hosted_url"`
	FlowTTL         string `yaml:"flow_ttl"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	Mode string `yaml:"mode"` // supabase, local
	// Social maps a provider name (google, github, ...) to its client.
	Social map[string]localauth.ClientConfig `yaml:"social"`
}

type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	AnonKey    string `yaml:"anon_key"`
	StorageURL string `yaml:"storage_url"`
}

type LocalConfig struct {
	DatabasePath string `yaml:"database_path"`
	SessionTTL   string `yaml:"session_ttl"`
	CodeTTL      string `yaml:"code_ttl"`
}

type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			HostedURL:       "http://localhost:8080/",
			FlowTTL:         "30m",
			ShutdownTimeout: "10s",
		},
		Auth: AuthConfig{Mode: AuthLocal},
		API: APIConfig{
			BaseURL: "http://localhost:8081/api/v1/",
			Timeout: "30s",
		},
		Local: LocalConfig{
			DatabasePath: "data/yoku.db",
			SessionTTL:   "24h",
			CodeTTL:      "10m",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults. A missing file
// yields the defaults. Environment variables win over both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// firstEnv returns the first non-empty variable of names.
func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// applyEnvOverrides reads the variables of the web deployment, so one
// environment file serves both.
func (c *Config) applyEnvOverrides() {
	if v := firstEnv("YOKU_API_URL", "NEXT_PUBLIC_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := firstEnv("SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"); v != "" {
		c.Supabase.URL = v
		if os.Getenv("YOKU_AUTH_MODE") == "" {
			c.Auth.Mode = AuthSupabase
		}
	}
	if v := firstEnv("SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY"); v != "" {
		c.Supabase.AnonKey = v
	}
	if v := os.Getenv("NEXT_PUBLIC_SUPABASE_STORAGE_URL"); v != "" {
		c.Supabase.StorageURL = v
	}
	if v := os.Getenv("NEXT_PUBLIC_HOSTED_URL"); v != "" {
		c.Server.HostedURL = v
	}
	if v := os.Getenv("YOKU_AUTH_MODE"); v != "" {
		c.Auth.Mode = v
	}
	if v := os.Getenv("YOKU_DATABASE"); v != "" {
		c.Local.DatabasePath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if !strings.HasSuffix(c.Server.HostedURL, "/") {
		c.Server.HostedURL += "/"
	}
}

func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func (c *Config) FlowTTL() time.Duration { return duration(c.Server.FlowTTL, 30*time.Minute) }

func (c *Config) ShutdownTimeout() time.Duration {
	return duration(c.Server.ShutdownTimeout, 10*time.Second)
}

func (c *Config) APITimeout() time.Duration { return duration(c.API.Timeout, 30*time.Second) }

func (c *Config) SessionTTL() time.Duration { return duration(c.Local.SessionTTL, 24*time.Hour) }

func (c *Config) CodeTTL() time.Duration { return duration(c.Local.CodeTTL, 10*time.Minute) }

// CallbackURL is where social providers send the user back to.
func (c *Config) CallbackURL() string {
	return c.Server.HostedURL + "api/auth/token/callback"
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }

// LocalAuth translates the local section into the provider's config. The
// callback of each social provider names it in the query. Unknown provider
// names are errors.
func (c *Config) LocalAuth() (localauth.Config, error) {
	cfg := localauth.Config{
		SessionTTL:    c.SessionTTL(),
		CodeTTL:       c.CodeTTL(),
		AvatarBaseURL: c.Server.HostedURL + "avatars",
	}
	for name, client := range c.Auth.Social {
		if client.RedirectURL == "" {
			client.RedirectURL = c.CallbackURL() + "?provider=" + name
		}
		p, err := localauth.SocialProvider(name, client)
		if err != nil {
			return localauth.Config{}, fmt.Errorf("social provider %q: %w", name, err)
		}
		cfg.OAuthProviders = append(cfg.OAuthProviders, p)
	}
	return cfg, nil
}

var ValidAuthModes = []string{AuthSupabase, AuthLocal}

func (c *Config) Validate() error {
	switch c.Auth.Mode {
	case AuthSupabase:
		if c.Supabase.URL == "" || c.Supabase.AnonKey == "" {
			return fmt.Errorf("supabase auth needs a URL and an anon key (set SUPABASE_URL and SUPABASE_ANON_KEY)")
		}
		if c.API.BaseURL == "" {
			return fmt.Errorf("supabase auth needs the API base URL (set YOKU_API_URL)")
		}
	case AuthLocal:
		if c.Local.DatabasePath == "" {
			return fmt.Errorf("local auth needs a database path")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (valid: %v)", c.Auth.Mode, ValidAuthModes)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	return nil
}
