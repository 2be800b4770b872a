// Package chat proxies questions to a completion backend and keeps a history.
package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/unkn0wn-root/pocketbook"
	"github.com/unkn0wn-root/pocketbook/apperr"
	"github.com/unkn0wn-root/pocketbook/docstore"
	"github.com/unkn0wn-root/pocketbook/internal/money"
)

const (
	HistoryCollection = "chat_history"
	MaxMessageLen     = 4000
)

type Exchange struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
}

type Service struct {
	completer Completer
	store     docstore.Store
	log       pocketbook.Logger
	now       func() time.Time
}

func NewService(c Completer, store docstore.Store, log pocketbook.Logger) *Service {
	return &Service{completer: c, store: store, log: pocketbook.LoggerOrNop(log), now: time.Now}
}

// Ask completes message and records the exchange. A failure to record is
// logged; the reply is still returned.
func (s *Service) Ask(ctx context.Context, message string) (Exchange, error) {
	const op = "chat.ask"
	message = strings.TrimSpace(message)
	if message == "" {
		return Exchange{}, apperr.E(apperr.InvalidInput, op, "message is required")
	}
	if len(message) > MaxMessageLen {
		return Exchange{}, apperr.Errorf(apperr.InvalidInput, op, "message longer than %d bytes", MaxMessageLen)
	}
	if s.completer == nil {
		return Exchange{}, apperr.E(apperr.BackendUnavailable, op, "chat completion is not configured")
	}

	reply, err := s.completer.Complete(ctx, message)
	if err != nil {
		return Exchange{}, err
	}
	ex := Exchange{Message: message, Reply: reply, Timestamp: s.now().UTC()}
	id, err := s.store.Add(ctx, HistoryCollection, docstore.Fields{
		"message":   ex.Message,
		"reply":     ex.Reply,
		"timestamp": ex.Timestamp,
	})
	if err != nil {
		s.log.Warn("chat history not saved", pocketbook.Fields{"err": err})
		return ex, nil
	}
	ex.ID = id
	return ex, nil
}

// History returns the exchanges oldest first. A positive limit keeps only the
// latest limit of them.
func (s *Service) History(ctx context.Context, limit int) ([]Exchange, error) {
	docs, err := s.store.List(ctx, HistoryCollection)
	if err != nil {
		return nil, err
	}
	out := make([]Exchange, 0, len(docs))
	for _, d := range docs {
		ex := Exchange{ID: d.ID}
		ex.Message, _ = d.Get("message").(string)
		ex.Reply, _ = d.Get("reply").(string)
		ex.Timestamp, _ = money.TimeValue(d.Get("timestamp"))
		out = append(out, ex)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
