// Package config loads nlink settings from a TOML file.
//
// Precedence is flags over file over [Default]. The CLI applies flags after
// [Load]; this package only merges the file into the defaults.
//
// Example file:
//
//	[engine]
//	max_depth = 0
//	max_nodes = 5000000
//	max_duration = "10m"
//	top_k = 10
//	trunk_threshold = 0.95
//	workers = 4
//
//	[cache]
//	backend = "badger"
//	dir = "/var/cache/nlink"
//
//	[output]
//	dir = "./out"
//	sink = "file"
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/nlink/pkg/errors"
)

const appName = "nlink"

// Cache backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// Output sinks.
const (
	SinkFile  = "file"
	SinkMongo = "mongo"
)

// Config is the full configuration file.
type Config struct {
	Engine Engine `toml:"engine"`
	Cache  Cache  `toml:"cache"`
	Output Output `toml:"output"`
}

// Engine holds traversal budgets and analysis defaults.
type Engine struct {
	MaxDepth       int           `toml:"max_depth"`
	MaxNodes       int           `toml:"max_nodes"`
	MaxDuration    time.Duration `toml:"max_duration"`
	TopK           int           `toml:"top_k"`
	TrunkThreshold float64       `toml:"trunk_threshold"`
	Workers        int           `toml:"workers"`
}

// Cache selects and configures the index cache backend.
type Cache struct {
	Backend       string        `toml:"backend"`
	Dir           string        `toml:"dir"`
	RedisAddr     string        `toml:"redis_addr"`
	RedisPassword string        `toml:"redis_password"`
	RedisDB       int           `toml:"redis_db"`
	// TTL is the expiry of cached basins. Indices never expire.
	TTL           time.Duration `toml:"ttl"`
}

// Output selects where artifacts are published.
type Output struct {
	Dir           string `toml:"dir"`
	Sink          string `toml:"sink"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: Engine{
			TopK:           10,
			TrunkThreshold: 0.95,
			Workers:        runtime.NumCPU(),
		},
		Cache: Cache{
			Backend:   BackendFile,
			Dir:       cacheDir(),
			RedisAddr: "localhost:6379",
		},
		Output: Output{
			Dir:           ".",
			Sink:          SinkFile,
			MongoDatabase: appName,
		},
	}
}

// Load reads the file at path over [Default] and validates the result.
//
// An empty path loads [DefaultPath] and tolerates it being absent. An
// explicit path that does not exist is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case !explicit && os.IsNotExist(err):
		return cfg, cfg.Validate()
	default:
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}
	return Parse(data, cfg)
}

// Parse decodes TOML data over base. Keys missing from data keep their
// value in base; unknown keys are rejected.
func Parse(data []byte, base Config) (Config, error) {
	md, err := toml.Decode(string(data), &base)
	if err != nil {
		return base, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		return base, errors.New(errors.ErrCodeInvalidConfig, "unknown config key %q", undec[0].String())
	}
	return base, base.Validate()
}

// Validate checks every section.
func (c Config) Validate() error {
	e := c.Engine
	if err := errors.ValidateBudget(e.MaxDepth, e.MaxNodes); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "engine")
	}
	if e.MaxDuration < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "engine.max_duration must be >= 0")
	}
	if e.TopK < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "engine.top_k must be >= 1, got %d", e.TopK)
	}
	if err := errors.ValidateThreshold("engine.trunk_threshold", e.TrunkThreshold); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "engine")
	}
	if e.Workers < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "engine.workers must be >= 1, got %d", e.Workers)
	}

	switch c.Cache.Backend {
	case BackendFile, BackendBadger:
		if c.Cache.Dir == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.dir is required for the %s backend", c.Cache.Backend)
		}
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "cache.redis_addr is required for the redis backend")
		}
	case BackendNone:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache.ttl must be >= 0")
	}

	switch c.Output.Sink {
	case SinkFile:
		if c.Output.Dir == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "output.dir is required for the file sink")
		}
	case SinkMongo:
		if c.Output.MongoURI == "" || c.Output.MongoDatabase == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "output.mongo_uri and output.mongo_database are required for the mongo sink")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown output sink %q", c.Output.Sink)
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/nlink/config.toml, falling back to
// ~/.config/nlink/config.toml.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appName+".toml")
	}
	return filepath.Join(home, ".config", appName, "config.toml")
}

// cacheDir returns the cache directory using XDG standard (~/.cache/nlink/).
func cacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName)
	}
	return filepath.Join(home, ".cache", appName)
}
