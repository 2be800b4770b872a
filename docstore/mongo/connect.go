package mongo

import (
	"context"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/apperr"
)

type ConnectConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration // default 10s
	MaxPoolSize    uint64        // 0 => driver default
}

// Connect dials MongoDB, pings the primary and returns the client with the
// configured database. The caller owns the client.
func Connect(ctx context.Context, cfg ConnectConfig, log pocketbook.Logger) (*mongo.Client, *mongo.Database, error) {
	log = pocketbook.LoggerOrNop(log)
	if cfg.URI == "" || cfg.Database == "" {
		return nil, nil, apperr.E(apperr.InvalidInput, "mongo.connect", "uri and database are required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	safe := redactURI(cfg.URI)
	log.Info("connecting to mongodb", pocketbook.Fields{"uri": safe, "database": cfg.Database})

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout * 2).
		SetHeartbeatInterval(10 * time.Second).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		log.Error("mongodb connect failed", pocketbook.Fields{"uri": safe, "err": err})
		return nil, nil, apperr.Wrap(apperr.BackendUnavailable, "mongo.connect", err)
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		log.Error("mongodb ping failed", pocketbook.Fields{"uri": safe, "err": err})
		return nil, nil, apperr.Wrap(apperr.BackendUnavailable, "mongo.connect", err)
	}

	log.Info("connected to mongodb", pocketbook.Fields{"uri": safe, "database": cfg.Database})
	return client, client.Database(cfg.Database), nil
}

// redactURI hides credentials from a connection string.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "<unparseable uri>"
	}
	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}
	return u.String()
}
