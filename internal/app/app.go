// Package app wires configuration into running services and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/chat"
	"github.com/unkn0wn-root/pocketbook/codec"
	"github.com/unkn0wn-root/pocketbook/crud"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/docstore/memstore"
	docmongo "github.com/unkn0wn-root/pocketbook/docstore/mongo"
	"github.com/unkn0wn-root/pocketbook/expenses"
	asynchook "github.com/unkn0wn-root/pocketbook/hooks/async"
	sloghook "github.com/unkn0wn-root/pocketbook/hooks/slog"
	"github.com/unkn0wn-root/pocketbook/internal/config"
	"github.com/unkn0wn-root/pocketbook/internal/logging"
	"github.com/unkn0wn-root/pocketbook/internal/server"
	"github.com/unkn0wn-root/pocketbook/internal/telemetry"
	"github.com/unkn0wn-root/pocketbook/ledger"
	"github.com/unkn0wn-root/pocketbook/library"
	pr "github.com/unkn0wn-root/pocketbook/provider"
	bigprov "github.com/unkn0wn-root/pocketbook/provider/bigcache"
	redisprov "github.com/unkn0wn-root/pocketbook/provider/redis"
	ristprov "github.com/unkn0wn-root/pocketbook/provider/ristretto"
	sturdyprov "github.com/unkn0wn-root/pocketbook/provider/sturdyc"
	vs "github.com/unkn0wn-root/pocketbook/versionstore"
)

type closer struct {
	name string
	fn   func(context.Context) error
}

// App holds the wired services and everything that must be closed on exit.
type App struct {
	Cfg     *config.Config
	Log     *logging.Logger
	Gateway *pocketbook.Gateway
	Handler http.Handler

	server  *http.Server
	closers []closer
}

func (a *App) onClose(name string, fn func(context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// New connects the backends named by cfg and builds the HTTP handler.
// Logs go to out. On error everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, out io.Writer) (_ *App, err error) {
	logger, err := logging.New(cfg.Log, out)
	if err != nil {
		return nil, err
	}
	a := &App{Cfg: cfg, Log: logger}
	a.onClose("logger", func(context.Context) error { _ = logger.Sync(); return nil })
	defer func() {
		if err != nil {
			a.closeAll(context.Background())
		}
	}()

	tracer, shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	a.onClose("telemetry", shutdownTracing)

	store, mdb, health, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var rdb *goredis.Client
	if cfg.Cache.Provider == "redis" || cfg.Versions.Backend == "redis" {
		if rdb, err = a.openRedis(ctx); err != nil {
			return nil, err
		}
	}

	versions, err := a.versionStore(mdb, rdb)
	if err != nil {
		return nil, err
	}
	provider, err := a.cacheProvider(rdb)
	if err != nil {
		_ = versions.Close(ctx)
		return nil, err
	}

	var hooks pocketbook.Hooks = sloghook.New(logger.Slog, sloghook.Options{
		OutcomeEvery:  cfg.Cache.OutcomeLogRate,
		SelfHealEvery: 1,
	})
	if cfg.Cache.AsyncHooks {
		ah := asynchook.New(hooks, 1, 1024)
		a.onClose("hooks", func(context.Context) error {
			ah.Close()
			if n := ah.Dropped(); n > 0 {
				logger.Warn("gateway hook events dropped", pocketbook.Fields{"count": n})
			}
			return nil
		})
		hooks = ah
	}

	gw, err := pocketbook.New(pocketbook.Options{
		Provider: provider,
		Versions: versions,
		Prefix:   cfg.Cache.Prefix,
		TTL:      cfg.Cache.TTL,
		Disabled: cfg.Cache.Provider == "none",
		Logger:   logger,
		Hooks:    hooks,
		Tracer:   tracer,
	})
	if err != nil {
		return nil, err
	}
	a.Gateway = gw
	a.onClose("gateway", gw.Close)
	if rp, ok := provider.(*ristprov.Provider); ok {
		// runs before the gateway closes the cache, which resets the counters
		a.onClose("cache stats", func(context.Context) error {
			m := rp.Metrics()
			a.Log.Info("ristretto stats", pocketbook.Fields{
				"hits":      m.Hits(),
				"misses":    m.Misses(),
				"hit_ratio": m.Ratio(),
			})
			return nil
		})
	}

	svc, err := a.services(store, gw)
	if err != nil {
		return nil, err
	}
	a.Handler = server.NewRouter(svc, server.Options{
		APIKey:      cfg.Server.APIKey,
		ServiceName: cfg.Telemetry.ServiceName,
		Logger:      logger,
		Health:      health,
	})
	logger.Info("pocketbook ready", pocketbook.Fields{
		"store":    cfg.Store.Backend,
		"cache":    cfg.Cache.Provider,
		"versions": cfg.Versions.Backend,
		"codec":    cfg.Cache.Codec,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) (docstore.Store, *mongo.Database, func(context.Context) error, error) {
	cfg := a.Cfg.Store
	if cfg.Backend != "mongo" {
		s := memstore.New(memstore.Options{MaxAttempts: cfg.MaxTxAttempts})
		a.onClose("store", s.Close)
		a.Log.Warn("using in-memory document store; data is lost on exit", nil)
		return s, nil, nil, nil
	}

	client, db, err := docmongo.Connect(ctx, docmongo.ConnectConfig{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: cfg.Mongo.ConnectTimeout,
		MaxPoolSize:    cfg.Mongo.MaxPoolSize,
	}, a.Log)
	if err != nil {
		return nil, nil, nil, err
	}
	a.onClose("mongo", client.Disconnect)

	s := docmongo.New(db, docmongo.Options{Collection: cfg.Mongo.Collection})
	if err := s.EnsureIndexes(ctx); err != nil {
		a.Log.Warn("mongo index creation failed", pocketbook.Fields{"err": err})
	}
	a.onClose("store", s.Close)
	health := func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }
	return s, db, health, nil
}

func (a *App) openRedis(ctx context.Context) (*goredis.Client, error) {
	opts, err := a.Cfg.RedisOptions()
	if err != nil {
		return nil, err
	}
	rdb := goredis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	a.onClose("redis", func(context.Context) error { return rdb.Close() })
	a.Log.Info("connected to redis", pocketbook.Fields{"addr": opts.Addr, "db": strconv.Itoa(opts.DB)})
	return rdb, nil
}

func (a *App) versionStore(mdb *mongo.Database, rdb *goredis.Client) (vs.Store, error) {
	switch a.Cfg.Versions.Backend {
	case "mongo":
		if mdb == nil {
			return nil, errors.New("mongo versions need the mongo store")
		}
		return vs.NewMongo(mdb, vs.MongoOptions{}), nil
	case "redis":
		return vs.NewRedis(rdb, a.Cfg.Cache.Prefix), nil
	default:
		return vs.NewLocal(time.Minute, a.Cfg.Versions.Retention), nil
	}
}

func (a *App) cacheProvider(rdb *goredis.Client) (pr.Provider, error) {
	c := a.Cfg.Cache
	switch c.Provider {
	case "redis":
		return redisprov.New(redisprov.Config{Client: rdb, DisableScripts: c.DisableScripts})
	case "ristretto":
		p, err := ristprov.New(ristprov.Config{
			NumCounters: c.Ristretto.NumCounters,
			MaxCost:     c.Ristretto.MaxCost,
			BufferItems: 64,
			Metrics:     true,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case "bigcache":
		return bigprov.New(bigprov.Config{
			LifeWindow:         c.Bigcache.LifeWindow,
			MaxEntrySize:       c.Bigcache.MaxEntrySize,
			HardMaxCacheSizeMB: c.Bigcache.MaxSizeMB,
		})
	case "sturdyc":
		return sturdyprov.New(sturdyprov.Config{
			Capacity:           c.Sturdyc.Capacity,
			NumShards:          c.Sturdyc.Shards,
			TTL:                c.Sturdyc.TTL,
			EvictionPercentage: c.Sturdyc.EvictPerc,
		})
	default:
		return nil, nil
	}
}

func (a *App) services(store docstore.Store, gw *pocketbook.Gateway) (server.Services, error) {
	docs, tree, err := snapshotCodecs(a.Cfg.Cache)
	if err != nil {
		return server.Services{}, err
	}
	copts := crud.Options{Codec: docs, Logger: a.Log}
	lib, err := library.New(store, gw, copts)
	if err != nil {
		return server.Services{}, err
	}

	var completer chat.Completer
	if a.Cfg.Chat.APIKey != "" {
		completer = chat.NewOpenAI(chat.OpenAIConfig{
			APIKey:     a.Cfg.Chat.APIKey,
			Model:      a.Cfg.Chat.Model,
			BaseURL:    a.Cfg.Chat.BaseURL,
			Timeout:    a.Cfg.Chat.Timeout,
			MaxRetries: a.Cfg.Chat.MaxRetries,
		})
	} else {
		a.Log.Warn("OPENAI_API_KEY not set; chatbot disabled", nil)
	}

	return server.Services{
		Collections: crud.NewRegistry(store, gw, copts),
		Catalog:     crud.NewCatalog(store, chat.HistoryCollection, library.LayoutCollection),
		Expenses:    expenses.New(store, gw, expenses.Options{Logger: a.Log, Codec: tree}),
		Ledger:      ledger.New(store, gw, ledger.Options{Logger: a.Log, Codec: docs}),
		Library:     lib,
		Chat:        chat.NewService(completer, store, a.Log),
	}, nil
}

// snapshotCodecs picks the cache encoding for document listings and the
// expense tree. Protobuf stores listings as google.protobuf.Value; the tree
// stays JSON under it.
func snapshotCodecs(c config.CacheConfig) (codec.Codec[[]docstore.Document], codec.Codec[expenses.Tree], error) {
	var (
		docs codec.Codec[[]docstore.Document]
		tree codec.Codec[expenses.Tree]
		err  error
	)
	if c.Codec == "protobuf" {
		docs = codec.Structpb[[]docstore.Document]{To: docstore.ToValue, From: docstore.FromValue}
		tree = codec.JSON[expenses.Tree]{}
	} else {
		if docs, err = codec.Named[[]docstore.Document](c.Codec); err != nil {
			return nil, nil, err
		}
		if tree, err = codec.Named[expenses.Tree](c.Codec); err != nil {
			return nil, nil, err
		}
	}
	return codec.Limit[[]docstore.Document]{Inner: docs, MaxDecode: c.MaxSnapshot},
		codec.Limit[expenses.Tree]{Inner: tree, MaxDecode: c.MaxSnapshot}, nil
}

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	srv := a.Cfg.Server
	a.server = &http.Server{
		Addr:              ":" + strconv.Itoa(srv.Port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       srv.ReadTimeout,
		WriteTimeout:      srv.WriteTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		a.Log.Info("http server listening", pocketbook.Fields{"addr": a.server.Addr})
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.Log.Info("shutdown requested", nil)
	case runErr = <-errc:
		a.Log.Error("http server failed", pocketbook.Fields{"err": runErr})
	}

	timeout := srv.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	a.Shutdown(sctx)
	return runErr
}

// Shutdown stops the HTTP server, then closes resources in reverse order of creation.
func (a *App) Shutdown(ctx context.Context) {
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.Log.Error("http server shutdown", pocketbook.Fields{"err": err})
		}
	}
	a.closeAll(ctx)
}

func (a *App) closeAll(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Log.Warn("close failed", pocketbook.Fields{"resource": c.name, "err": err})
		}
	}
	a.closers = nil
}
