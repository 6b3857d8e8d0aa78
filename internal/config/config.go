package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/erazemk/ecoleta/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Uploads UploadsConfig `yaml:"uploads" mapstructure:"uploads"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP listener. PublicURL, when set, overrides
// the request-derived origin in image URLs. TrustProxy lets X-Forwarded-*
// headers set that origin and must only be enabled behind a proxy that
// overwrites them.
type ServerConfig struct {
	Addr        string   `yaml:"addr" mapstructure:"addr"`
	PublicURL   string   `yaml:"public_url" mapstructure:"public_url"`
	TrustProxy  bool     `yaml:"trust_proxy" mapstructure:"trust_proxy"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// UploadsConfig configures image storage.
type UploadsConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	MaxBytes     int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
	MaxDimension int    `yaml:"max_dimension" mapstructure:"max_dimension"`
	MaxPixels    int    `yaml:"max_pixels" mapstructure:"max_pixels"`
}

// RedisConfig configures the optional item cache. An empty URL disables it.
type RedisConfig struct {
	URL string        `yaml:"url" mapstructure:"url"`
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and ECOLETA_* environment
// variables, in increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ECOLETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":3333")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ecoleta.sqlite3")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.max_bytes", 5<<20)
	v.SetDefault("uploads.max_dimension", 1024)
	v.SetDefault("uploads.max_pixels", 24_000_000)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	if c.Uploads.Dir == "" {
		return eris.New("config: uploads.dir is required")
	}
	if c.Uploads.MaxBytes <= 0 {
		return eris.New("config: uploads.max_bytes must be positive")
	}
	if c.Uploads.MaxDimension <= 0 {
		return eris.New("config: uploads.max_dimension must be positive")
	}
	if c.Uploads.MaxPixels <= 0 {
		return eris.New("config: uploads.max_pixels must be positive")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
