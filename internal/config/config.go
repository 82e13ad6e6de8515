package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/conduit-lang/docmap/pkg/docmap"
)

// Config represents the docmap configuration
type Config struct {
	Mapping  MappingConfig  `mapstructure:"mapping" yaml:"mapping"`
	Criteria CriteriaConfig `mapstructure:"criteria" yaml:"criteria"`
	Decode   DecodeConfig   `mapstructure:"decode" yaml:"decode"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// MappingConfig configures the type model
type MappingConfig = docmap.MappingSettings

// CriteriaConfig configures query validation
type CriteriaConfig = docmap.CriteriaSettings

// DecodeConfig configures decoding
type DecodeConfig = docmap.DecodeSettings

// StoreConfig selects and configures the storage backend
type StoreConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`
	SQL     SQLConfig   `mapstructure:"sql" yaml:"sql"`
}

// RedisConfig represents Redis connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

// SQLConfig represents SQL database configuration
type SQLConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// LogConfig configures logging
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Address returns host:port
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Backends lists the supported store backends
var Backends = []string{"memory", "redis", "postgres", "sqlite"}

// EnvPrefix is the prefix of environment overrides: DOCMAP_STORE_BACKEND sets store.backend
const EnvPrefix = "DOCMAP"

// New returns a viper instance with defaults and environment overrides applied
func New() *viper.Viper {
	v := viper.New()

	defaults := docmap.DefaultSettings()
	v.SetDefault("mapping.discriminator_key", defaults.Mapping.DiscriminatorKey)
	v.SetDefault("mapping.always_discriminate", defaults.Mapping.AlwaysDiscriminate)
	v.SetDefault("criteria.validate_names", defaults.Criteria.ValidateNames)
	v.SetDefault("criteria.strict_types", defaults.Criteria.StrictTypes)
	v.SetDefault("decode.lenient_type_mismatch", defaults.Decode.LenientTypeMismatch)
	v.SetDefault("decode.max_depth", defaults.Decode.MaxDepth)
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "docmap:")
	v.SetDefault("store.sql.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.encoding", "json")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load loads the configuration from path, or from docmap.yaml in the working directory
// when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("docmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Mapping.DiscriminatorKey) == "" {
		return fmt.Errorf("mapping.discriminator_key must not be empty")
	}
	if cfg.Decode.MaxDepth <= 0 {
		return fmt.Errorf("decode.max_depth must be positive, got: %d", cfg.Decode.MaxDepth)
	}

	known := false
	for _, b := range Backends {
		if cfg.Store.Backend == b {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("store.backend must be one of %s, got: %s", strings.Join(Backends, ", "), cfg.Store.Backend)
	}
	if (cfg.Store.Backend == "postgres" || cfg.Store.Backend == "sqlite") && cfg.Store.SQL.DSN == "" {
		return fmt.Errorf("store.sql.dsn is required for the %s backend", cfg.Store.Backend)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	return nil
}
