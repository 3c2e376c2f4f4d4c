// Package genai provides assistant replies backed by the OpenAI Chat Completions API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BTreeMap/HelpLine/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default generation settings
const (
	DefaultModel               = "gpt-4o-mini"
	DefaultTemperature         = 0.3
	DefaultMaxCompletionTokens = 400
)

// SystemPrompt frames the assistant as the first-line support agent.
const SystemPrompt = "Voce e o assistente de suporte tecnico da HelpLine. Responda em portugues, " +
	"de forma curta e objetiva, com passos praticos que o usuario possa executar sozinho. " +
	"Nunca invente numeros de chamado. Se o problema exigir um analista, sugira tocar em \"Falar com um analista\"."

// Error variables
var (
	ErrMissingAPIKey     = errors.New("OpenAI API key not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionService adapts the SDK completion service to chatService.
type completionService struct {
	svc *openai.ChatCompletionService
}

func (s completionService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey              string
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) {
		o.Temperature = t
	}
}

// WithMaxCompletionTokens bounds the reply length.
func WithMaxCompletionTokens(n int64) Option {
	return func(o *Opts) {
		o.MaxCompletionTokens = n
	}
}

// Client generates assistant replies with OpenAI.
type Client struct {
	chat                chatService
	model               string
	temperature         float64
	maxCompletionTokens int64
}

// NewClient initializes a client. The API key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:               DefaultModel,
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("genai.NewClient: created", "model", cfg.Model, "temperature", cfg.Temperature)
	return &Client{
		chat:                completionService{svc: &cli.Chat.Completions},
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
	}, nil
}

// Reply returns the assistant's answer to the conversation. The support
// system prompt is prepended to the given messages.
func (c *Client) Reply(ctx context.Context, messages []models.ChatMessage) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toParams(messages),
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxCompletionTokens)
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("genai.Client.Reply: completion failed", "model", c.model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("genai.Client.Reply: reply generated", "model", c.model, "length", len(content))
	return content, nil
}

func toParams(messages []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	out = append(out, openai.SystemMessage(SystemPrompt))
	for _, m := range messages {
		switch m.Role {
		case models.ChatRoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.ChatRoleUser:
			out = append(out, openai.UserMessage(m.Content))
		default:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	return out
}
