// Package logrus adapts a *logrus.Entry to pocketbook.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/pocketbook"
)

var _ pocketbook.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f pocketbook.Fields) { l.entry(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f pocketbook.Fields)  { l.entry(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f pocketbook.Fields)  { l.entry(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f pocketbook.Fields) { l.entry(f).Error(msg) }

// entry attaches f. Error values are stored as their message since the JSON
// formatter would otherwise marshal them to {}.
func (l LogrusLogger) entry(f pocketbook.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	lf := make(logrus.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok && err != nil {
			lf[k] = err.Error()
			continue
		}
		lf[k] = v
	}
	return l.E.WithFields(lf)
}
