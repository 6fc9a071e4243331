// Package openaiclient adapts go-openai's streaming chat completion API
// to the agent.ModelClient interface.
//
// Grounded on the teacher's pkg/llm/openai/openai.go: opens a stream via
// client.CreateChatCompletionStream, ranges over stream.Recv() until
// io.EOF, and accumulates choice deltas — generalized here into
// guardrail.Part emissions on a channel. The outer transport-level retry
// (distinct from the guardrail correction loop in pkg/agent/retry.go)
// follows the teacher's createChatCompletionWithRetry: avast/retry-go/v4
// wrapping the whole streaming call, retried only on retryable errors.
package openaiclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sashabaranov/go-openai"

	"github.com/weftctx/weft/pkg/agent"
	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/guardrail"
	"github.com/weftctx/weft/pkg/logger"
)

// RetryConfig mirrors the teacher's per-provider retry knobs
// (pkg/llm/openai/openai.go's Config.Retry).
type RetryConfig struct {
	Attempts     uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func (c RetryConfig) orDefaults() RetryConfig {
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = 500 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// Client adapts *openai.Client to agent.ModelClient.
type Client struct {
	sdk   *openai.Client
	retry RetryConfig
}

// New constructs a Client. baseURL is optional (empty uses the SDK's
// default), letting callers point at Ollama/LM Studio-compatible
// endpoints the way the teacher's provider presets do.
func New(apiKey, baseURL string, retryCfg RetryConfig) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{sdk: openai.NewClientWithConfig(cfg), retry: retryCfg.orDefaults()}
}

func isRetryableError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func toOpenAIMessages(req agent.Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		var text string
		for _, p := range m.Parts {
			text += p.Text
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: m.Role, Content: text})
	}
	return msgs
}

// Stream opens a chat-completion stream, retrying the whole call on
// transport-level failures, and translates choice deltas into
// guardrail.Part values.
func (c *Client) Stream(ctx context.Context, req agent.Request) (<-chan guardrail.Part, error) {
	params := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toOpenAIMessages(req),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	out := make(chan guardrail.Part)
	go func() {
		defer close(out)

		err := retry.Do(
			func() error { return c.pumpStream(ctx, params, out) },
			retry.RetryIf(isRetryableError),
			retry.Attempts(c.retry.Attempts),
			retry.Delay(c.retry.InitialDelay),
			retry.MaxDelay(c.retry.MaxDelay),
			retry.Context(ctx),
			retry.OnRetry(func(n uint, err error) {
				logger.G(ctx).WithError(err).WithField("attempt", n+1).Warn("retrying openai stream")
			}),
		)
		if err != nil {
			out <- guardrail.Error(errs.Model("openai stream failed: %v", err).Error())
		}
	}()
	return out, nil
}

// pumpStream reads one stream to completion and emits parts. It is the
// unit retry.Do retries as a whole on transport failure, matching the
// teacher's whole-call retry (it does not resume mid-stream).
func (c *Client) pumpStream(ctx context.Context, params openai.ChatCompletionRequest, out chan<- guardrail.Part) error {
	stream, err := c.sdk.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return err
	}
	defer stream.Close()

	textID := "text-0"
	started := false
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			if started {
				out <- guardrail.TextEnd(textID)
			}
			return nil
		}
		if err != nil {
			return err
		}

		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if !started {
				out <- guardrail.TextStart(textID)
				started = true
			}
			out <- guardrail.TextDelta(textID, choice.Delta.Content)
		}
	}
}
