// Package conf loads assetsync configuration with viper.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// config file, ASSETSYNC_* environment variables, and command-line flags
// bound by the CLI. Nested keys map to environment variables with dots
// replaced by underscores: fetch.timeout is ASSETSYNC_FETCH_TIMEOUT.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/assetsync/internal/worker"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "ASSETSYNC"

// Config is the complete runtime configuration.
type Config struct {
	Listen     string            `mapstructure:"listen" yaml:"listen"`
	Origin     string            `mapstructure:"origin" yaml:"origin"`
	Database   string            `mapstructure:"database" yaml:"database"`
	Manifest   string            `mapstructure:"manifest" yaml:"manifest"`
	Watch      bool              `mapstructure:"watch" yaml:"watch"`
	Log        Log               `mapstructure:"log" yaml:"log"`
	Fetch      Fetch             `mapstructure:"fetch" yaml:"fetch"`
	Partitions worker.Partitions `mapstructure:"partitions" yaml:"partitions"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug|info|warn|error
	Format string `mapstructure:"format" yaml:"format"` // text|json
}

// Fetch configures the network client.
type Fetch struct {
	Timeout      Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxBodyBytes int64    `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	Parallel     int      `mapstructure:"parallel" yaml:"parallel"`

	// Rate limits offline downloads to this many requests per second.
	// Zero disables the limit.
	Rate  float64 `mapstructure:"rate" yaml:"rate"`
	Burst int     `mapstructure:"burst" yaml:"burst"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	p := worker.DefaultPartitions()

	v.SetDefault("listen", "127.0.0.1:8080")
	v.SetDefault("origin", "")
	v.SetDefault("database", "assetsync.db")
	v.SetDefault("manifest", "")
	v.SetDefault("watch", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_body_bytes", int64(64<<20))
	v.SetDefault("fetch.parallel", worker.DefaultParallelFetches)
	v.SetDefault("fetch.rate", 0.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("partitions.content", p.Content)
	v.SetDefault("partitions.staging", p.Staging)
	v.SetDefault("partitions.manifest", p.Manifest)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (if not empty) into v and decodes the
// result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return Decode(v)
}

// Decode unmarshals v into a Config and validates it.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DecodeHook())); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. Required-ness of origin and manifest is
// left to the commands that need them.
func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: must be text or json", c.Log.Format))
	}
	if c.Fetch.Timeout.Std() < 0 || c.Fetch.Timeout.Std() > time.Hour {
		errs = append(errs, fmt.Errorf("fetch.timeout %s: must be between 0 and 1h", c.Fetch.Timeout))
	}
	if c.Fetch.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_body_bytes must not be negative"))
	}
	if c.Fetch.Rate < 0 {
		errs = append(errs, fmt.Errorf("fetch.rate must not be negative"))
	}
	if c.Fetch.Parallel < 0 {
		errs = append(errs, fmt.Errorf("fetch.parallel must not be negative"))
	}
	if c.Database == "" {
		errs = append(errs, fmt.Errorf("database must be set"))
	}
	return errors.Join(errs...)
}
