// Package config provides layered configuration loading.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default endpoint and client settings.
const (
	DefaultBaseURL      = "https://api.lightcast.io"
	DefaultOAuthURL     = "https://auth.emsicloud.com/connect/token"
	DefaultScope        = "emsi_open"
	DefaultServerName   = "lightcast-mcp-server"
	DefaultTimeout      = 30 * time.Second
	DefaultMaxInFlight  = 10
	DefaultSafetyMargin = 60 * time.Second
)

// Config holds the resolved configuration.
type Config struct {
	// Credentials
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Endpoints
	BaseURL  string `yaml:"base_url"`
	OAuthURL string `yaml:"oauth_url"`

	// Auth settings
	DefaultScope string            `yaml:"default_scope"`
	Scopes       map[string]string `yaml:"scopes,omitempty"`
	SafetyMargin time.Duration     `yaml:"safety_margin"`

	// Transport settings
	Timeout          time.Duration `yaml:"timeout"`
	RateLimitPerHour int           `yaml:"rate_limit_per_hour"`
	MaxInFlight      int           `yaml:"max_in_flight"`
	Retry            RetryConfig   `yaml:"retry"`
	StateDir         string        `yaml:"state_dir"`

	// Server settings
	ServerName       string `yaml:"server_name"`
	LogLevel         string `yaml:"log_level"`
	MaskErrorDetails bool   `yaml:"mask_error_details"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `yaml:"-"`
}

// RetryConfig configures transient-failure retry and rate-limit waiting.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	AutoWait    bool          `yaml:"auto_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

// Credentials is the immutable credential tuple handed to the token
// manager and API client.
type Credentials struct {
	ClientID     string
	ClientSecret string
	OAuthURL     string
	BaseURL      string
}

// String redacts the secret so credentials are safe to log.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{ClientID:%s OAuthURL:%s BaseURL:%s ClientSecret:%s}",
		c.ClientID, c.OAuthURL, c.BaseURL, Redact(c.ClientSecret))
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
	SourceKeyring Source = "keyring"
	SourcePrompt  Source = "prompt"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	ConfigFile string
	BaseURL    string
	LogLevel   string
	StateDir   string
}

// ErrMissingCredentials is returned by Validate when the client ID or
// secret is unset.
var ErrMissingCredentials = errors.New("lightcast client credentials are not configured")

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:          DefaultBaseURL,
		OAuthURL:         DefaultOAuthURL,
		DefaultScope:     DefaultScope,
		SafetyMargin:     DefaultSafetyMargin,
		Timeout:          DefaultTimeout,
		MaxInFlight:      DefaultMaxInFlight,
		StateDir:         defaultStateDir(),
		ServerName:       DefaultServerName,
		LogLevel:         "info",
		MaskErrorDetails: true,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			MaxWait:     60 * time.Second,
		},
		Sources: make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	if err := loadFromFile(cfg, systemConfigPath(), SourceSystem); err != nil {
		return nil, err
	}

	globalPath := GlobalConfigPath()
	if overrides.ConfigFile != "" {
		globalPath = overrides.ConfigFile
		if _, err := os.Stat(globalPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", globalPath, err)
		}
	}
	if err := loadFromFile(cfg, globalPath, SourceGlobal); err != nil {
		return nil, err
	}

	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	return cfg, nil
}

// fileConfig mirrors Config with pointer fields so that keys absent from
// the file leave lower layers untouched.
type fileConfig struct {
	ClientID         *string           `yaml:"client_id"`
	ClientSecret     *string           `yaml:"client_secret"`
	BaseURL          *string           `yaml:"base_url"`
	OAuthURL         *string           `yaml:"oauth_url"`
	DefaultScope     *string           `yaml:"default_scope"`
	Scopes           map[string]string `yaml:"scopes"`
	SafetyMargin     *time.Duration    `yaml:"safety_margin"`
	Timeout          *time.Duration    `yaml:"timeout"`
	RateLimitPerHour *int              `yaml:"rate_limit_per_hour"`
	MaxInFlight      *int              `yaml:"max_in_flight"`
	StateDir         *string           `yaml:"state_dir"`
	ServerName       *string           `yaml:"server_name"`
	LogLevel         *string           `yaml:"log_level"`
	MaskErrorDetails *bool             `yaml:"mask_error_details"`
	Retry            *struct {
		MaxAttempts *int           `yaml:"max_attempts"`
		BaseDelay   *time.Duration `yaml:"base_delay"`
		MaxDelay    *time.Duration `yaml:"max_delay"`
		AutoWait    *bool          `yaml:"auto_wait"`
		MaxWait     *time.Duration `yaml:"max_wait"`
	} `yaml:"retry"`
}

func loadFromFile(cfg *Config, path string, source Source) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	src := string(source)
	setString(cfg, &cfg.ClientID, fc.ClientID, "client_id", src)
	setString(cfg, &cfg.ClientSecret, fc.ClientSecret, "client_secret", src)
	setString(cfg, &cfg.BaseURL, fc.BaseURL, "base_url", src)
	setString(cfg, &cfg.OAuthURL, fc.OAuthURL, "oauth_url", src)
	setString(cfg, &cfg.DefaultScope, fc.DefaultScope, "default_scope", src)
	setString(cfg, &cfg.StateDir, fc.StateDir, "state_dir", src)
	setString(cfg, &cfg.ServerName, fc.ServerName, "server_name", src)
	setString(cfg, &cfg.LogLevel, fc.LogLevel, "log_level", src)

	if len(fc.Scopes) > 0 {
		if cfg.Scopes == nil {
			cfg.Scopes = make(map[string]string, len(fc.Scopes))
		}
		for family, scope := range fc.Scopes {
			cfg.Scopes[family] = scope
		}
		cfg.Sources["scopes"] = src
	}
	if fc.SafetyMargin != nil {
		cfg.SafetyMargin = *fc.SafetyMargin
		cfg.Sources["safety_margin"] = src
	}
	if fc.Timeout != nil {
		cfg.Timeout = *fc.Timeout
		cfg.Sources["timeout"] = src
	}
	if fc.RateLimitPerHour != nil {
		cfg.RateLimitPerHour = *fc.RateLimitPerHour
		cfg.Sources["rate_limit_per_hour"] = src
	}
	if fc.MaxInFlight != nil {
		cfg.MaxInFlight = *fc.MaxInFlight
		cfg.Sources["max_in_flight"] = src
	}
	if fc.MaskErrorDetails != nil {
		cfg.MaskErrorDetails = *fc.MaskErrorDetails
		cfg.Sources["mask_error_details"] = src
	}
	if r := fc.Retry; r != nil {
		if r.MaxAttempts != nil {
			cfg.Retry.MaxAttempts = *r.MaxAttempts
		}
		if r.BaseDelay != nil {
			cfg.Retry.BaseDelay = *r.BaseDelay
		}
		if r.MaxDelay != nil {
			cfg.Retry.MaxDelay = *r.MaxDelay
		}
		if r.AutoWait != nil {
			cfg.Retry.AutoWait = *r.AutoWait
		}
		if r.MaxWait != nil {
			cfg.Retry.MaxWait = *r.MaxWait
		}
		cfg.Sources["retry"] = src
	}
	return nil
}

func setString(cfg *Config, dst *string, v *string, key, source string) {
	if v == nil || *v == "" {
		return
	}
	*dst = *v
	cfg.Sources[key] = source
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	env := string(SourceEnv)
	envString := func(name string, dst *string, key string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
			cfg.Sources[key] = env
		}
	}

	envString("LIGHTCAST_CLIENT_ID", &cfg.ClientID, "client_id")
	envString("LIGHTCAST_CLIENT_SECRET", &cfg.ClientSecret, "client_secret")
	envString("LIGHTCAST_BASE_URL", &cfg.BaseURL, "base_url")
	envString("LIGHTCAST_OAUTH_URL", &cfg.OAuthURL, "oauth_url")
	envString("LIGHTCAST_OAUTH_SCOPE", &cfg.DefaultScope, "default_scope")
	envString("LIGHTCAST_STATE_DIR", &cfg.StateDir, "state_dir")
	envString("MCP_SERVER_NAME", &cfg.ServerName, "server_name")
	envString("LOG_LEVEL", &cfg.LogLevel, "log_level")

	if v := os.Getenv("LIGHTCAST_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RateLimitPerHour = n
			cfg.Sources["rate_limit_per_hour"] = env
		}
	}
	if v := os.Getenv("MASK_ERROR_DETAILS"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.MaskErrorDetails = b
			cfg.Sources["mask_error_details"] = env
		}
	}
}

// parseEnvBool parses a boolean environment variable strictly.
// Unrecognized values are ignored.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
		cfg.Sources["log_level"] = string(SourceFlag)
	}
	if o.StateDir != "" {
		cfg.StateDir = o.StateDir
		cfg.Sources["state_dir"] = string(SourceFlag)
	}
}

// SecretLookup finds a stored client secret for a client ID.
type SecretLookup func(clientID string) (string, error)

// ResolveSecret fills in the client secret from lookup when no other
// layer provided one. A lookup failure leaves the config unchanged.
func (c *Config) ResolveSecret(lookup SecretLookup) {
	if c.ClientSecret != "" || c.ClientID == "" || lookup == nil {
		return
	}
	secret, err := lookup(c.ClientID)
	if err != nil || secret == "" {
		return
	}
	c.ClientSecret = secret
	c.Sources["client_secret"] = string(SourceKeyring)
}

// Validate checks that the configuration can be used to talk to the API.
func (c *Config) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrMissingCredentials
	}
	for key, raw := range map[string]string{"base_url": c.BaseURL, "oauth_url": c.OAuthURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
		}
	}
	if c.RateLimitPerHour < 0 {
		return fmt.Errorf("rate_limit_per_hour must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	return nil
}

// Credentials builds the immutable credential tuple.
func (c *Config) Credentials() Credentials {
	return Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		OAuthURL:     c.OAuthURL,
		BaseURL:      NormalizeBaseURL(c.BaseURL),
	}
}

// Redact shortens a secret to a recognizable prefix.
func Redact(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return s[:4] + "****"
	}
}

// Path helpers

func systemConfigPath() string {
	return "/etc/lightcast-mcp/config.yaml"
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "lightcast-mcp")
}

// GlobalConfigPath returns the path of the per-user config file.
func GlobalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.yaml")
}

func defaultStateDir() string {
	if cacheDir := os.Getenv("XDG_CACHE_HOME"); cacheDir != "" {
		return filepath.Join(cacheDir, "lightcast-mcp")
	}
	if cacheDir, err := os.UserCacheDir(); err == nil && cacheDir != "" {
		return filepath.Join(cacheDir, "lightcast-mcp")
	}
	return filepath.Join(os.TempDir(), "lightcast-mcp")
}

// SaveGlobal merges updates into the YAML config file at path, preserving
// keys already present.
func SaveGlobal(path string, updates map[string]string) error {
	existing := map[string]any{}
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // G304: trusted path
		if err := yaml.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	for k, v := range updates {
		existing[k] = v
	}

	data, err := yaml.Marshal(existing)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "config-*.yaml.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(url, "/")
}
