// Package zap adapts a *zap.Logger to pocketbook.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/pocketbook"
)

var _ pocketbook.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

func (z ZapLogger) Debug(msg string, f pocketbook.Fields) { z.L.Debug(msg, fields(f)...) }
func (z ZapLogger) Info(msg string, f pocketbook.Fields)  { z.L.Info(msg, fields(f)...) }
func (z ZapLogger) Warn(msg string, f pocketbook.Fields)  { z.L.Warn(msg, fields(f)...) }
func (z ZapLogger) Error(msg string, f pocketbook.Fields) { z.L.Error(msg, fields(f)...) }

// fields emits f in key order; errors go through zap.NamedError so they
// render as their message.
func fields(f pocketbook.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		case string:
			out = append(out, zap.String(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
