// Package logging builds the process logger from configuration and carries
// request-scoped fields through contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	stdslog "log/slog"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/internal/config"
	logruslog "github.com/unkn0wn-root/pocketbook/log/logrus"
	slogadapter "github.com/unkn0wn-root/pocketbook/log/slog"
	zaplog "github.com/unkn0wn-root/pocketbook/log/zap"
)

// Logger is the built process logger. Slog writes to the same output and is
// handed to components that take a *slog.Logger (gateway hooks).
type Logger struct {
	pocketbook.Logger
	Slog *stdslog.Logger
	sync func() error
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l.sync == nil {
		return nil
	}
	return l.sync()
}

// New builds a JSON logger for cfg.Backend writing to w.
func New(cfg config.LogConfig, w io.Writer) (*Logger, error) {
	lvl := strings.ToLower(strings.TrimSpace(cfg.Level))
	slogLevel, err := slogLevelOf(lvl)
	if err != nil {
		return nil, err
	}
	sl := stdslog.New(stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: slogLevel}))

	switch cfg.Backend {
	case "", "zap":
		zl, err := zapLevelOf(lvl)
		if err != nil {
			return nil, err
		}
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
		enc.LevelKey = "log_level"
		enc.MessageKey = "message"
		enc.TimeKey = "timestamp"
		enc.CallerKey = ""
		enc.StacktraceKey = ""
		core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), zl)
		z := zap.New(core)
		return &Logger{Logger: zaplog.ZapLogger{L: z}, Slog: sl, sync: z.Sync}, nil
	case "logrus":
		ll, err := logrus.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		lr := logrus.New()
		lr.SetOutput(w)
		lr.SetLevel(ll)
		lr.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "log_level",
				logrus.FieldKeyMsg:   "message",
			},
		})
		return &Logger{Logger: logruslog.LogrusLogger{E: logrus.NewEntry(lr)}, Slog: sl}, nil
	case "slog":
		return &Logger{Logger: slogadapter.Logger{L: sl}, Slog: sl}, nil
	default:
		return nil, fmt.Errorf("logging: unknown backend %q", cfg.Backend)
	}
}

func zapLevelOf(lvl string) (zapcore.Level, error) {
	switch lvl {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	}
	return zap.InfoLevel, fmt.Errorf("logging: unknown level %q", lvl)
}

func slogLevelOf(lvl string) (stdslog.Level, error) {
	switch lvl {
	case "debug":
		return stdslog.LevelDebug, nil
	case "", "info":
		return stdslog.LevelInfo, nil
	case "warn":
		return stdslog.LevelWarn, nil
	case "error":
		return stdslog.LevelError, nil
	}
	return stdslog.LevelInfo, fmt.Errorf("logging: unknown level %q", lvl)
}

type ctxKey struct{}

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// FromContext returns base with the request id of ctx attached to every entry.
func FromContext(ctx context.Context, base pocketbook.Logger) pocketbook.Logger {
	base = pocketbook.LoggerOrNop(base)
	id := RequestID(ctx)
	if id == "" {
		return base
	}
	return With(base, pocketbook.Fields{"request_id": id})
}

// With returns a logger that adds fixed fields to every entry. Per-call
// fields win on key collisions.
func With(base pocketbook.Logger, fixed pocketbook.Fields) pocketbook.Logger {
	if len(fixed) == 0 {
		return base
	}
	return withFields{base: base, fixed: fixed}
}

type withFields struct {
	base  pocketbook.Logger
	fixed pocketbook.Fields
}

func (w withFields) merge(f pocketbook.Fields) pocketbook.Fields {
	out := make(pocketbook.Fields, len(w.fixed)+len(f))
	for k, v := range w.fixed {
		out[k] = v
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (w withFields) Debug(msg string, f pocketbook.Fields) { w.base.Debug(msg, w.merge(f)) }
func (w withFields) Info(msg string, f pocketbook.Fields)  { w.base.Info(msg, w.merge(f)) }
func (w withFields) Warn(msg string, f pocketbook.Fields)  { w.base.Warn(msg, w.merge(f)) }
func (w withFields) Error(msg string, f pocketbook.Fields) { w.base.Error(msg, w.merge(f)) }
