package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/pocketbook/internal/config"
	"github.com/unkn0wn-root/pocketbook/internal/server"
)

func init() { gin.SetMode(gin.TestMode) }

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.Backend = "memory"
	cfg.Cache.Provider = "sturdyc"
	cfg.Versions.Backend = "local"
	return &cfg
}

func TestNewInMemory(t *testing.T) {
	var logs bytes.Buffer
	a, err := New(context.Background(), memoryConfig(), &logs)
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	assert.True(t, a.Gateway.Enabled())
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, logs.String(), "pocketbook ready")
}

func TestNewEveryInProcessProvider(t *testing.T) {
	for _, p := range []string{"ristretto", "bigcache", "sturdyc", "none"} {
		t.Run(p, func(t *testing.T) {
			cfg := memoryConfig()
			cfg.Cache.Provider = p
			cfg.Cache.Codec = "msgpack"
			a, err := New(context.Background(), cfg, &bytes.Buffer{})
			require.NoError(t, err)
			defer a.Shutdown(context.Background())
			assert.Equal(t, p != "none", a.Gateway.Enabled())
		})
	}
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.Cache.Provider = "redis"
	cfg.Versions.Backend = "redis"
	cfg.Cache.RedisURL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	body := `{"loan_id":"missing","paidDate":"2024-01-01","principalPaid":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/loans/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.HeaderAction, server.ActionAddLoanPayment)
	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRedisUnreachable(t *testing.T) {
	cfg := memoryConfig()
	cfg.Cache.Provider = "redis"
	cfg.Cache.RedisURL = "redis://127.0.0.1:1"
	_, err := New(context.Background(), cfg, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.Server.Port = 0
	a, err := New(context.Background(), cfg, &bytes.Buffer{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, a.Run(ctx))
}
