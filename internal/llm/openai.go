package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Config selects the model endpoint and default sampling parameters.
type Config struct {
	APIKey      string
	BaseURL     string // empty uses the OpenAI default
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// generator is the subset of an eino chat model the client uses.
type generator interface {
	Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	chat  generator
	cfg   Config
	stats *Stats
	log   *slog.Logger
}

// NewOpenAIClient builds a client backed by the eino OpenAI chat model.
func NewOpenAIClient(ctx context.Context, cfg Config, stats *Stats, log *slog.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return newClient(chat, cfg, stats, log), nil
}

func newClient(chat generator, cfg Config, stats *Stats, log *slog.Logger) *OpenAIClient {
	if stats == nil {
		stats = NewStats(time.Hour)
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAIClient{chat: chat, cfg: cfg, stats: stats, log: log}
}

// Stats returns the client's latency tracker.
func (c *OpenAIClient) Stats() *Stats {
	return c.stats
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.cfg.Model
}

// Complete sends one system+user exchange and returns the trimmed reply.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msgs := make([]*schema.Message, 0, 2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, schema.UserMessage(req.Prompt))

	var opts []model.Option
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}

	start := time.Now()
	resp, err := c.chat.Generate(callCtx, msgs, opts...)
	elapsed := time.Since(start)
	c.stats.Record(req.Op, elapsed, err)

	if err != nil {
		err = classify(ctx, req.Op, err)
		c.log.Debug("llm call failed", "op", req.Op, "duration_ms", elapsed.Milliseconds(), "error", err)
		return "", err
	}
	if resp == nil {
		return "", &RemoteServiceError{Op: req.Op, Retryable: true, Err: ErrEmptyResponse}
	}
	text := normalizeReply(resp.Content)
	if text == "" {
		return "", &RemoteServiceError{Op: req.Op, Retryable: true, Err: ErrEmptyResponse}
	}
	c.log.Debug("llm call complete", "op", req.Op, "duration_ms", elapsed.Milliseconds(), "chars", len(text))
	return text, nil
}
