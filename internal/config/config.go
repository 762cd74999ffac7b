// ABOUTME: Configuration loading and parsing for flickr-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete flickr-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Flickr   FlickrConfig   `yaml:"flickr" toml:"flickr"`
	Cache    CacheConfig    `yaml:"cache" toml:"cache"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the hosting HTTP server configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// BaseURL is the external URL of this server. It is sent as the auth
	// callback's extra value when the caller gives none.
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// FlickrConfig holds the remote API credentials and calling conventions
type FlickrConfig struct {
	APIKey    string `yaml:"api_key" toml:"api_key"`
	APISecret string `yaml:"api_secret" toml:"api_secret"`

	Scheme     string            `yaml:"scheme" toml:"scheme"`
	Hosts      map[string]string `yaml:"hosts" toml:"hosts"`
	APIService string            `yaml:"api_service" toml:"api_service"`
	AuthPath   string            `yaml:"auth_path" toml:"auth_path"`

	Perms          string   `yaml:"perms" toml:"perms"`
	Format         string   `yaml:"format" toml:"format"`
	Discovery      string   `yaml:"discovery" toml:"discovery"`
	Preload        []string `yaml:"preload" toml:"preload"`
	PermissionCode int      `yaml:"permission_code" toml:"permission_code"`
	HistorySize    int      `yaml:"history_size" toml:"history_size"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// CacheConfig selects the method cache backend
type CacheConfig struct {
	Adapter string `yaml:"adapter" toml:"adapter"`

	TTL    time.Duration `yaml:"-" toml:"-"`
	TTLRaw string        `yaml:"ttl" toml:"ttl"`
}

// SessionConfig selects the session backend and the session cookie
type SessionConfig struct {
	Adapter    string `yaml:"adapter" toml:"adapter"`
	CookieName string `yaml:"cookie_name" toml:"cookie_name"`
	Secret     string `yaml:"secret" toml:"secret"`

	MaxAge    time.Duration `yaml:"-" toml:"-"`
	MaxAgeRaw string        `yaml:"max_age" toml:"max_age"`
}

// DatabaseConfig holds the SQLite database location
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Defaults applied to empty fields after loading
const (
	DefaultHTTPAddr    = "127.0.0.1:8080"
	DefaultScheme      = "https"
	DefaultAPIService  = "/services/rest/"
	DefaultAuthPath    = "/services/auth/"
	DefaultPerms       = "read"
	DefaultFormat      = "json"
	DefaultDiscovery   = "lazy"
	DefaultPermCode    = 99
	DefaultTimeout     = 15 * time.Second
	DefaultHistorySize = 16
	DefaultAdapter     = "sqlite"
	DefaultCacheTTL    = 24 * time.Hour
	DefaultCookieName  = "flickr_session"
	DefaultMaxAge      = 30 * 24 * time.Hour
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

var (
	validAdapters  = []string{"memory", "sqlite", "redis"}
	validFormats   = []string{"json", "php", "php_serial", "xml", "rest", "simplexml", "raw"}
	validDiscovery = []string{"eager", "lazy", "disabled"}
	validPerms     = []string{"read", "write", "delete"}
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.ApplyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills every empty field with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}

	f := &c.Flickr
	if f.Scheme == "" {
		f.Scheme = DefaultScheme
	}
	if f.APIService == "" {
		f.APIService = DefaultAPIService
	}
	if f.AuthPath == "" {
		f.AuthPath = DefaultAuthPath
	}
	if f.Perms == "" {
		f.Perms = DefaultPerms
	}
	if f.Format == "" {
		f.Format = DefaultFormat
	}
	if f.Discovery == "" {
		f.Discovery = DefaultDiscovery
	}
	if f.PermissionCode == 0 {
		f.PermissionCode = DefaultPermCode
	}
	if f.Timeout == 0 {
		f.Timeout = DefaultTimeout
	}
	if f.HistorySize == 0 {
		f.HistorySize = DefaultHistorySize
	}

	if c.Cache.Adapter == "" {
		c.Cache.Adapter = DefaultAdapter
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Session.Adapter == "" {
		c.Session.Adapter = DefaultAdapter
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = DefaultCookieName
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = DefaultMaxAge
	}

	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath()
	}
	c.Database.Path = expandHome(c.Database.Path)

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// DefaultDatabasePath returns ~/.local/share/flickr-gateway/gateway.db,
// honoring XDG_DATA_HOME.
func DefaultDatabasePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "gateway.db"
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "flickr-gateway", "gateway.db")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Flickr.APIKey == "" {
		return fmt.Errorf("flickr.api_key is required")
	}
	if c.Flickr.APISecret == "" {
		return fmt.Errorf("flickr.api_secret is required")
	}

	if !oneOf(c.Flickr.Format, validFormats) {
		return fmt.Errorf("flickr.format %q is not one of %v", c.Flickr.Format, validFormats)
	}
	if !oneOf(c.Flickr.Discovery, validDiscovery) {
		return fmt.Errorf("flickr.discovery %q is not one of %v", c.Flickr.Discovery, validDiscovery)
	}
	if !oneOf(c.Flickr.Perms, validPerms) {
		return fmt.Errorf("flickr.perms %q is not one of %v", c.Flickr.Perms, validPerms)
	}
	if c.Flickr.HistorySize < 0 {
		return fmt.Errorf("flickr.history_size must not be negative")
	}

	if !oneOf(c.Cache.Adapter, validAdapters) {
		return fmt.Errorf("cache.adapter %q is not one of %v", c.Cache.Adapter, validAdapters)
	}
	if !oneOf(c.Session.Adapter, validAdapters) {
		return fmt.Errorf("session.adapter %q is not one of %v", c.Session.Adapter, validAdapters)
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if len(c.Session.Secret) < 32 {
		return fmt.Errorf("session.secret must be at least 32 bytes")
	}

	usesRedis := c.Cache.Adapter == "redis" || c.Session.Adapter == "redis"
	if usesRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when an adapter is redis")
	}
	usesSQLite := c.Cache.Adapter == "sqlite" || c.Session.Adapter == "sqlite"
	if usesSQLite && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when an adapter is sqlite")
	}

	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Flickr.TimeoutRaw != "" {
		cfg.Flickr.Timeout, err = time.ParseDuration(cfg.Flickr.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing flickr.timeout %q: %w", cfg.Flickr.TimeoutRaw, err)
		}
	}

	if cfg.Cache.TTLRaw != "" {
		cfg.Cache.TTL, err = time.ParseDuration(cfg.Cache.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache.ttl %q: %w", cfg.Cache.TTLRaw, err)
		}
	}

	if cfg.Session.MaxAgeRaw != "" {
		cfg.Session.MaxAge, err = time.ParseDuration(cfg.Session.MaxAgeRaw)
		if err != nil {
			return fmt.Errorf("parsing session.max_age %q: %w", cfg.Session.MaxAgeRaw, err)
		}
	}

	return nil
}
