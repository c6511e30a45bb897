// Package config loads CLI configuration from flags, ANNOTATOR_* environment
// variables, an optional .env file and an optional YAML, TOML or JSON config
// file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. ANNOTATOR_STORE_BACKEND.
const EnvPrefix = "ANNOTATOR"

// Store backends.
const (
	BackendBadger   = "badger"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Metrics sinks.
const (
	MetricsNone       = "none"
	MetricsLog        = "log"
	MetricsPrometheus = "prometheus"
)

// Config is the full CLI configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	Verbose  bool   `mapstructure:"verbose"`
	Metrics  string `mapstructure:"metrics"`
	RowCache int    `mapstructure:"row_cache"`

	Store  StoreConfig    `mapstructure:"store"`
	Search SearchConfig   `mapstructure:"search"`
	Scalar EngineConfig   `mapstructure:"scalar"`
	WDL    EngineConfig   `mapstructure:"wdl"`
	Server ServerSettings `mapstructure:"server"`
}

// StoreConfig selects and configures the cache backend.
type StoreConfig struct {
	Backend  string         `mapstructure:"backend"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	CreateTable bool   `mapstructure:"create_table"`
}

// MongoConfig configures the mongo backend.
type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// SearchConfig holds the budgets and pipeline settings.
type SearchConfig struct {
	Depth   int   `mapstructure:"depth"`
	Nodes   int64 `mapstructure:"nodes"`
	Upgrade bool  `mapstructure:"upgrade"`
	Workers int   `mapstructure:"workers"`
}

// EngineConfig describes one engine pool. An empty Path disables the engine.
type EngineConfig struct {
	Path      string            `mapstructure:"path"`
	Args      []string          `mapstructure:"args"`
	Options   map[string]string `mapstructure:"options"`
	Instances int               `mapstructure:"instances"`
	Timeout   time.Duration     `mapstructure:"timeout"`
}

// ServerSettings configures annotator serve.
type ServerSettings struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"data-dir":         "data_dir",
	"verbose":          "verbose",
	"metrics":          "metrics",
	"row-cache":        "row_cache",
	"store":            "store.backend",
	"redis-addr":       "store.redis.addr",
	"postgres-dsn":     "store.postgres.dsn",
	"mongo-uri":        "store.mongo.uri",
	"depth":            "search.depth",
	"nodes":            "search.nodes",
	"upgrade":          "search.upgrade",
	"workers":          "search.workers",
	"scalar-engine":    "scalar.path",
	"scalar-option":    "scalar.options",
	"scalar-instances": "scalar.instances",
	"wdl-engine":       "wdl.path",
	"wdl-option":       "wdl.options",
	"wdl-instances":    "wdl.instances",
	"engine-timeout":   "scalar.timeout",
	"addr":             "server.addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("verbose", false)
	v.SetDefault("metrics", MetricsNone)
	v.SetDefault("row_cache", 100000)

	v.SetDefault("store.backend", BackendBadger)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "")
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.table", "")
	v.SetDefault("store.postgres.create_table", true)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "")
	v.SetDefault("store.mongo.collection", "")

	v.SetDefault("search.depth", 20)
	v.SetDefault("search.nodes", 5000)
	v.SetDefault("search.upgrade", false)
	v.SetDefault("search.workers", 1)

	for _, engine := range []string{"scalar", "wdl"} {
		v.SetDefault(engine+".path", "")
		v.SetDefault(engine+".args", []string{})
		v.SetDefault(engine+".options", map[string]string{})
		v.SetDefault(engine+".instances", 1)
		v.SetDefault(engine+".timeout", time.Duration(0))
	}

	v.SetDefault("server.addr", ":8080")
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// File is a config file path. Empty means none.
	File string

	// EnvFiles are dotenv files loaded into the environment. Missing files
	// are ignored; existing variables are not overridden.
	EnvFiles []string

	// Flags are bound by name; only flags the user changed take precedence
	// over the environment.
	Flags *pflag.FlagSet
}

// Load builds the configuration.
func Load(opts LoadOptions) (*Config, error) {
	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", opts.File, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding --%s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.WDL.Timeout == 0 {
		cfg.WDL.Timeout = cfg.Scalar.Timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendBadger:
		if c.DataDir == "" {
			return errors.New("config: data_dir is required for the badger store")
		}
	case BackendMemory, BackendRedis, BackendMongo:
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return errors.New("config: store.postgres.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}

	switch c.Metrics {
	case MetricsNone, MetricsLog, MetricsPrometheus:
	default:
		return fmt.Errorf("config: unknown metrics sink %q", c.Metrics)
	}

	if c.Search.Depth < 1 || c.Search.Nodes < 1 {
		return fmt.Errorf("config: budgets must be positive (depth %d, nodes %d)", c.Search.Depth, c.Search.Nodes)
	}
	if c.Search.Workers < 1 {
		return fmt.Errorf("config: workers must be positive, got %d", c.Search.Workers)
	}
	if c.RowCache < 0 {
		return fmt.Errorf("config: row_cache must not be negative, got %d", c.RowCache)
	}
	return nil
}
