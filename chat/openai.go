package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/unkn0wn-root/pocketbook/apperr"
)

const (
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 30 * time.Second

	systemPrompt = "You are a concise assistant for a personal finance and home library app."
)

// Completer turns a prompt into a reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type OpenAIConfig struct {
	APIKey     string
	Model      string        // default gpt-4o-mini
	BaseURL    string        // default is the SDK's production endpoint
	Timeout    time.Duration // per request, default 30s
	MaxRetries int           // retries of 429/5xx/connection errors; 0 disables
}

// OpenAI calls the chat completions endpoint through the official SDK.
type OpenAI struct {
	client openai.Client
	model  string
	ready  bool
}

var _ Completer = (*OpenAI)(nil)

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	c := &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		ready:  cfg.APIKey != "",
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	return c
}

func (c *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	const op = "chat.complete"
	if !c.ready {
		return "", apperr.E(apperr.BackendUnavailable, op, "chat completion is not configured")
	}
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = http.StatusText(apiErr.StatusCode)
			}
			return "", apperr.Errorf(apperr.BackendUnavailable, op, "status %d: %s", apiErr.StatusCode, msg)
		}
		return "", apperr.Wrap(apperr.BackendUnavailable, op, err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.E(apperr.BackendUnavailable, op, "empty completion")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
