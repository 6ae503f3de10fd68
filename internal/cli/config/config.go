package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the base name of the project configuration file
const FileName = "metagraph"

// Config represents the metagraph configuration
type Config struct {
	Schema   SchemaConfig   `mapstructure:"schema"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

// SchemaConfig locates the schema sources and the entity manifest
type SchemaConfig struct {
	Dirs         []string      `mapstructure:"dirs"`
	RegistryFile string        `mapstructure:"registry_file"`
	Watch        bool          `mapstructure:"watch"`    // reload on file changes while serving
	Debounce     time.Duration `mapstructure:"debounce"` // quiet period before a reload
}

// DatabaseConfig represents schema store configuration
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// CacheConfig represents query cache configuration
type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	Pprof       bool     `mapstructure:"pprof"` // mount /debug/pprof behind the admin scope

	// RateLimit is the number of /v1 requests a client may make per
	// RateWindow. Zero disables limiting.
	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`

	// TrustedProxies lists the addresses or CIDR ranges of reverse proxies
	// whose X-Forwarded-For header names the client. Empty trusts no one.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// AuthConfig holds the HS256 secret guarding admin endpoints
type AuthConfig struct {
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration from metagraph.yml in the working directory,
// overlaid with METAGRAPH_* environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile loads the configuration from path, or searches the working
// directory for metagraph.yml when path is empty
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("schema.dirs", []string{"schemas"})
	v.SetDefault("schema.registry_file", "entity-registry.yml")
	v.SetDefault("schema.watch", false)
	v.SetDefault("schema.debounce", 200*time.Millisecond)
	v.SetDefault("database.url", "")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.pprof", false)
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_window", time.Minute)
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		if root, err := GetProjectRoot(); err == nil {
			v.AddConfigPath(root)
		} else {
			v.AddConfigPath(".")
		}
	}

	// Enable environment variable support: METAGRAPH_SERVER_ADDR -> server.addr
	v.SetEnvPrefix("METAGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// DATABASE_URL is the conventional fallback for the store
	if config.Database.URL == "" {
		config.Database.URL = os.Getenv("DATABASE_URL")
	}

	// Relative paths in a config file are relative to that file
	if used := v.ConfigFileUsed(); used != "" {
		config.resolvePaths(filepath.Dir(used))
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetProjectRoot walks up from the working directory to the nearest metagraph.yml
func GetProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{FileName + ".yml", FileName + ".yaml"} {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not in a metagraph project (no %s.yml found)", FileName)
		}
		dir = parent
	}
}

func (c *Config) resolvePaths(base string) {
	for i, dir := range c.Schema.Dirs {
		if !filepath.IsAbs(dir) {
			c.Schema.Dirs[i] = filepath.Join(base, dir)
		}
	}
	if c.Schema.RegistryFile != "" && !filepath.IsAbs(c.Schema.RegistryFile) {
		c.Schema.RegistryFile = filepath.Join(base, c.Schema.RegistryFile)
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if len(cfg.Schema.Dirs) == 0 {
		return fmt.Errorf("schema.dirs must list at least one directory")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got: %s", cfg.Cache.TTL)
	}
	if cfg.Schema.Debounce < 0 {
		return fmt.Errorf("schema.debounce must not be negative, got: %s", cfg.Schema.Debounce)
	}
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative, got: %d", cfg.Server.RateLimit)
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateWindow <= 0 {
		return fmt.Errorf("server.rate_window must be positive when server.rate_limit is set")
	}
	for _, p := range cfg.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("server.trusted_proxies must list IP addresses or CIDR ranges, got: %s", p)
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got: %s", cfg.Log.Level)
	}
	if cfg.Database.URL != "" && !strings.Contains(cfg.Database.URL, ":") {
		return fmt.Errorf("database.url must be a URL such as sqlite://metagraph.db, got: %s", cfg.Database.URL)
	}
	return nil
}
