package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pr "github.com/unkn0wn-root/pocketbook/provider"
)

func newMini(t *testing.T, disableScripts bool) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := New(Config{Client: rdb, CloseClient: true, DisableScripts: disableScripts})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, mr
}

func entry(version, payload string) pr.Entry {
	return pr.Entry{
		PayloadKey: "cache:books",
		Payload:    []byte(payload),
		VersionKey: "version:books",
		Version:    version,
	}
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestSetEntryAndGetEntry(t *testing.T) {
	for _, disable := range []bool{false, true} {
		p, mr := newMini(t, disable)
		ctx := context.Background()

		payload, version, err := p.GetEntry(ctx, "cache:books", "version:books")
		require.NoError(t, err)
		assert.Nil(t, payload)
		assert.Empty(t, version)

		ok, err := p.SetEntry(ctx, entry("100", "v100"), time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		payload, version, err = p.GetEntry(ctx, "cache:books", "version:books")
		require.NoError(t, err)
		assert.Equal(t, []byte("v100"), payload)
		assert.Equal(t, "100", version)
		assert.Greater(t, mr.TTL("cache:books"), time.Duration(0))
		assert.Greater(t, mr.TTL("version:books"), time.Duration(0))
	}
}

func TestSetEntryRefusesOlderVersion(t *testing.T) {
	p, _ := newMini(t, false)
	ctx := context.Background()

	ok, err := p.SetEntry(ctx, entry("200", "new"), 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.SetEntry(ctx, entry("150", "old"), 0)
	require.NoError(t, err)
	assert.False(t, ok, "older snapshot must not overwrite newer one")

	payload, version, err := p.GetEntry(ctx, "cache:books", "version:books")
	require.NoError(t, err)
	assert.Equal(t, "new", string(payload))
	assert.Equal(t, "200", version)

	ok, err = p.SetEntry(ctx, entry("250", "newer"), 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDel(t *testing.T) {
	p, mr := newMini(t, false)
	ctx := context.Background()
	_, err := p.SetEntry(ctx, entry("1", "x"), 0)
	require.NoError(t, err)

	require.NoError(t, p.Del(ctx, "cache:books", "version:books"))
	assert.False(t, mr.Exists("cache:books"))
	assert.False(t, mr.Exists("version:books"))
	require.NoError(t, p.Del(ctx))
}

func TestGetEntryTransportError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p, err := New(Config{Client: db})
	require.NoError(t, err)

	mock.ExpectMGet("cache:books", "version:books").SetErr(errors.New("connection refused"))

	_, _, err = p.GetEntry(context.Background(), "cache:books", "version:books")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
