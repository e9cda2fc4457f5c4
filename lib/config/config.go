// Package config loads the settings of the hxnet server from flags,
// environment variables and an optional .hxnet.yaml file.
//
// Precedence, highest first:
//  1. Command-line flags (--port, --static, ...)
//  2. Environment variables with the HXNET_ prefix (HXNET_SERVER_PORT, HXNET_SITE_DEBUG, ...)
//  3. The configuration file (--config, HXNET_CONFIG_FILE, or .hxnet.yaml)
//  4. Defaults
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by the server.
const EnvPrefix = "HXNET"

// Config is the resolved server configuration.
type Config struct {
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Site   SiteConfig   `yaml:"site" mapstructure:"site"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port"`
}

type SiteConfig struct {
	StaticDir   string `yaml:"static_dir" mapstructure:"static_dir"`
	Compression bool   `yaml:"compression" mapstructure:"compression"`
	CSRF        bool   `yaml:"csrf" mapstructure:"csrf"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	// Key signs and seals component parameters. Empty means a random key
	// per process.
	Key string `yaml:"key,omitempty" mapstructure:"key"`
}

type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// New returns a viper instance with defaults set and HXNET_ environment
// variables bound.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key with its default. AutomaticEnv only
// reaches keys viper knows about, so each key needs a default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("site.static_dir", "")
	v.SetDefault("site.compression", true)
	v.SetDefault("site.csrf", true)
	v.SetDefault("site.debug", false)
	v.SetDefault("site.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// ReadFile points v at path, or at .hxnet.yaml in the working directory
// when path is empty, and reads it. A missing default file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".hxnet")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && path == "" && errors.As(err, &notFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
	}
	return nil
}

// Load resolves the configuration held by v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level %q: %w", c.Log.Level, err)
	}
	return lvl, nil
}

// Logger builds the structured logger described by the log section.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// YAML renders the configuration with the key redacted.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	if out.Site.Key != "" {
		out.Site.Key = "<redacted>"
	}
	return yaml.Marshal(&out)
}
