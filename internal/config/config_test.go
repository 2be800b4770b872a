package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "API_KEY", "MONGO_URI", "MONGO_DATABASE", "REDIS_URL", "OPENAI_API_KEY", "OPENAI_MODEL",
	"LOG_LEVEL", "LOG_BACKEND", "CACHE_PROVIDER", "CACHE_CODEC", "CACHE_TTL", "STORE_BACKEND",
	"VERSION_BACKEND", "OTEL_EXPORTER_OTLP_ENDPOINT",
}

// clearEnv blanks every variable Load reads; blank counts as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "ristretto", cfg.Cache.Provider)
	assert.Equal(t, "local", cfg.Versions.Backend)
	assert.Equal(t, "zap", cfg.Log.Backend)
	assert.Zero(t, cfg.Cache.TTL)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 9000
  api_key: from-file
log:
  level: debug
  backend: logrus
store:
  mongo:
    uri: mongodb://db:27017
    database: books
cache:
  ttl: 10m
  codec: msgpack
`)
	t.Setenv("API_KEY", "from-env")
	t.Setenv("REDIS_URL", "rediss://:secret@cache:6380/2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Server.APIKey)
	assert.Equal(t, "logrus", cfg.Log.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "mongo", cfg.Store.Backend)
	assert.Equal(t, "redis", cfg.Cache.Provider)
	assert.Equal(t, "mongo", cfg.Versions.Backend)

	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.NotNil(t, opts.TLSConfig)
}

func TestEnvDurationFormats(t *testing.T) {
	clearEnv(t)
	t.Setenv("CACHE_TTL", "90")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)

	t.Setenv("CACHE_TTL", "1h")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
}

func TestValidationErrors(t *testing.T) {
	cases := map[string]struct {
		env   map[string]string
		field string
	}{
		"bad port":       {map[string]string{"PORT": "abc"}, "PORT"},
		"port range":     {map[string]string{"PORT": "70000"}, "server.port"},
		"log level":      {map[string]string{"LOG_LEVEL": "loud"}, "log.level"},
		"provider":       {map[string]string{"CACHE_PROVIDER": "memcached"}, "cache.provider"},
		"redis no url":   {map[string]string{"CACHE_PROVIDER": "redis"}, "cache.redis_url"},
		"redis bad url":  {map[string]string{"REDIS_URL": "http://x"}, "cache.redis_url"},
		"mongo versions": {map[string]string{"VERSION_BACKEND": "mongo"}, "versions.backend"},
		"mongo no uri":   {map[string]string{"STORE_BACKEND": "mongo"}, "store.mongo"},
		"bad ttl":        {map[string]string{"CACHE_TTL": "soon"}, "CACHE_TTL"},
		"unknown codec":  {map[string]string{"CACHE_CODEC": "xml"}, "cache.codec"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			var ce *Error
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
