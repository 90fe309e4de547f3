package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/triage-engine/")
	v.AddConfigPath("$HOME/.triage-engine")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("TRIAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "failed to read config file")
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.label_threshold", 0.8)
	v.SetDefault("engine.batch_workers", 4)

	// Bundle defaults
	v.SetDefault("bundle.dir", "/etc/triage-engine/bundle")
	v.SetDefault("bundle.watch", true)
	v.SetDefault("bundle.watch_debounce", "500ms")
	v.SetDefault("bundle.sync.type", "local")
	v.SetDefault("bundle.sync.interval", "5m")
	v.SetDefault("bundle.sync.s3_bucket", "")
	v.SetDefault("bundle.sync.s3_prefix", "bundles/current")

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.sqlite_path", "/data/triage_store.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/triage")

	// Audit defaults
	v.SetDefault("audit.type", "memory")
	v.SetDefault("audit.memory_capacity", 1024)
	v.SetDefault("audit.sqlite_path", "/data/triage_audit.db")
	v.SetDefault("audit.retention", "720h")
	v.SetDefault("audit.cleanup_frequency", "1h")

	// Feed defaults
	v.SetDefault("feed.type", "stdio")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
