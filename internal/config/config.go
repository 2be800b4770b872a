// Package config loads service configuration from an optional YAML file,
// a .env file and environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port            int           `yaml:"port"`
	APIKey          string        `yaml:"api_key"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level   string `yaml:"level"`   // debug, info, warn, error
	Backend string `yaml:"backend"` // zap, logrus, slog
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxPoolSize    uint64        `yaml:"max_pool_size"`
}

type StoreConfig struct {
	Backend string      `yaml:"backend"` // mongo, memory
	Mongo   MongoConfig `yaml:"mongo"`
	// MaxTxAttempts bounds optimistic retries of the memory backend.
	MaxTxAttempts int `yaml:"max_tx_attempts"`
}

type RistrettoConfig struct {
	NumCounters int64 `yaml:"num_counters"`
	MaxCost     int64 `yaml:"max_cost"`
}

type BigcacheConfig struct {
	LifeWindow   time.Duration `yaml:"life_window"`
	MaxSizeMB    int           `yaml:"max_size_mb"`
	MaxEntrySize int           `yaml:"max_entry_size"`
}

type SturdycConfig struct {
	Capacity  int           `yaml:"capacity"`
	Shards    int           `yaml:"shards"`
	TTL       time.Duration `yaml:"ttl"`
	EvictPerc int           `yaml:"evict_percentage"`
}

type CacheConfig struct {
	Provider       string          `yaml:"provider"` // redis, ristretto, bigcache, sturdyc, none
	Prefix         string          `yaml:"prefix"`
	TTL            time.Duration   `yaml:"ttl"`
	Codec          string          `yaml:"codec"` // json, msgpack, cbor, protobuf
	// MaxSnapshot skips decoding cached snapshots larger than this many bytes; 0 = no limit.
	MaxSnapshot    int             `yaml:"max_snapshot_bytes"`
	RedisURL       string          `yaml:"redis_url"`
	DisableScripts bool            `yaml:"disable_scripts"`
	Ristretto      RistrettoConfig `yaml:"ristretto"`
	Bigcache       BigcacheConfig  `yaml:"bigcache"`
	Sturdyc        SturdycConfig   `yaml:"sturdyc"`
	AsyncHooks     bool            `yaml:"async_hooks"`
	OutcomeLogRate uint64          `yaml:"outcome_log_every"`
}

type VersionsConfig struct {
	Backend   string        `yaml:"backend"` // mongo, redis, local
	Retention time.Duration `yaml:"retention"`
}

type ChatConfig struct {
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"` // OTLP/HTTP host:port; empty disables export
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Cache     CacheConfig     `yaml:"cache"`
	Versions  VersionsConfig  `yaml:"versions"`
	Chat      ChatConfig      `yaml:"chat"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Error is a configuration problem tied to one setting.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %s", e.Field, e.Message) }

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:   LogConfig{Level: "info", Backend: "zap"},
		Store: StoreConfig{Mongo: MongoConfig{Database: "pocketbook", ConnectTimeout: 10 * time.Second}},
		Cache: CacheConfig{
			Codec:          "json",
			MaxSnapshot:    16 << 20,
			Ristretto:      RistrettoConfig{NumCounters: 100_000, MaxCost: 64 << 20},
			Bigcache:       BigcacheConfig{LifeWindow: 24 * time.Hour, MaxSizeMB: 64, MaxEntrySize: 64 << 10},
			Sturdyc:        SturdycConfig{Capacity: 10_000, Shards: 16, TTL: 24 * time.Hour, EvictPerc: 10},
			OutcomeLogRate: 100,
		},
		Chat:      ChatConfig{Model: "gpt-4o-mini", Timeout: 30 * time.Second, MaxRetries: 2},
		Telemetry: TelemetryConfig{ServiceName: "pocketbook", SampleRatio: 1},
	}
}

// Load reads .env (if present), then the YAML file at path (if non-empty),
// then environment overrides, fills backend defaults and validates.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}
	cfg := Default()
	if path != "" {
		// #nosec G304: path comes from the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.resolveBackends()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if err := envInt("PORT", &c.Server.Port); err != nil {
		return err
	}
	envString("API_KEY", &c.Server.APIKey)
	envString("MONGO_URI", &c.Store.Mongo.URI)
	envString("MONGO_DATABASE", &c.Store.Mongo.Database)
	envString("REDIS_URL", &c.Cache.RedisURL)
	envString("OPENAI_API_KEY", &c.Chat.APIKey)
	envString("OPENAI_MODEL", &c.Chat.Model)
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_BACKEND", &c.Log.Backend)
	envString("CACHE_PROVIDER", &c.Cache.Provider)
	envString("CACHE_CODEC", &c.Cache.Codec)
	if err := envDuration("CACHE_TTL", &c.Cache.TTL); err != nil {
		return err
	}
	envString("STORE_BACKEND", &c.Store.Backend)
	envString("VERSION_BACKEND", &c.Versions.Backend)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	return nil
}

// resolveBackends picks backends left empty from what is configured:
// Mongo when a URI is set, Redis when a URL is set, in-process otherwise.
func (c *Config) resolveBackends() {
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
		if c.Store.Mongo.URI != "" {
			c.Store.Backend = "mongo"
		}
	}
	if c.Cache.Provider == "" {
		c.Cache.Provider = "ristretto"
		if c.Cache.RedisURL != "" {
			c.Cache.Provider = "redis"
		}
	}
	if c.Versions.Backend == "" {
		switch {
		case c.Store.Backend == "mongo":
			c.Versions.Backend = "mongo"
		case c.Cache.Provider == "redis":
			c.Versions.Backend = "redis"
		default:
			c.Versions.Backend = "local"
		}
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &Error{Field: "server.port", Message: fmt.Sprintf("must be in 1..65535, got %d", c.Server.Port)}
	}
	if !oneOf(c.Log.Level, "debug", "info", "warn", "error") {
		return &Error{Field: "log.level", Message: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	if !oneOf(c.Log.Backend, "zap", "logrus", "slog") {
		return &Error{Field: "log.backend", Message: fmt.Sprintf("unknown backend %q", c.Log.Backend)}
	}
	switch c.Store.Backend {
	case "memory":
	case "mongo":
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			return &Error{Field: "store.mongo", Message: "uri and database are required for the mongo backend"}
		}
	default:
		return &Error{Field: "store.backend", Message: fmt.Sprintf("unknown backend %q", c.Store.Backend)}
	}
	if !oneOf(c.Cache.Provider, "redis", "ristretto", "bigcache", "sturdyc", "none") {
		return &Error{Field: "cache.provider", Message: fmt.Sprintf("unknown provider %q", c.Cache.Provider)}
	}
	if !oneOf(c.Cache.Codec, "json", "msgpack", "cbor", "protobuf") {
		return &Error{Field: "cache.codec", Message: fmt.Sprintf("unknown codec %q", c.Cache.Codec)}
	}
	if c.Cache.TTL < 0 {
		return &Error{Field: "cache.ttl", Message: "must not be negative"}
	}
	needRedis := c.Cache.Provider == "redis" || c.Versions.Backend == "redis"
	if needRedis {
		if c.Cache.RedisURL == "" {
			return &Error{Field: "cache.redis_url", Message: "required by the redis cache or version backend"}
		}
		if _, err := redis.ParseURL(c.Cache.RedisURL); err != nil {
			return &Error{Field: "cache.redis_url", Message: err.Error()}
		}
	}
	switch c.Versions.Backend {
	case "local", "redis":
	case "mongo":
		if c.Store.Backend != "mongo" {
			return &Error{Field: "versions.backend", Message: "mongo versions need the mongo store"}
		}
	default:
		return &Error{Field: "versions.backend", Message: fmt.Sprintf("unknown backend %q", c.Versions.Backend)}
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return &Error{Field: "telemetry.sample_ratio", Message: "must be in [0, 1]"}
	}
	return nil
}

// RedisOptions parses the Redis URL (redis:// or rediss:// for TLS).
func (c *Config) RedisOptions() (*redis.Options, error) {
	opts, err := redis.ParseURL(c.Cache.RedisURL)
	if err != nil {
		return nil, &Error{Field: "cache.redis_url", Message: err.Error()}
	}
	return opts, nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(key string, dst *int) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return &Error{Field: key, Message: fmt.Sprintf("not an integer: %q", v)}
	}
	*dst = n
	return nil
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	v = strings.TrimSpace(v)
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return &Error{Field: key, Message: fmt.Sprintf("not a duration: %q", v)}
	}
	*dst = d
	return nil
}
