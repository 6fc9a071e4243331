// Package anthropicclient adapts the Anthropic SDK's streaming message
// API to the agent.ModelClient interface.
//
// Grounded on the teacher's pkg/llm/anthropic/anthropic.go: opens a
// streaming call via client.Messages.NewStreaming, ranges over
// stream.Next()/stream.Current(), and switches on event.AsAny() for
// content-block start/delta/stop — generalized from the teacher's
// handler-callback style into emitting guardrail.Part values on a
// channel, per spec §4.3.1's stream(contextVars) contract.
package anthropicclient

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/weftctx/weft/pkg/agent"
	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/guardrail"
	"github.com/weftctx/weft/pkg/logger"
)

// Client adapts *anthropic.Client to agent.ModelClient.
type Client struct {
	sdk         anthropic.Client
	maxSDKRetries int
}

// New constructs a Client from an API key, matching the teacher's
// client construction style (pkg/llm/anthropic/anthropic.go).
func New(apiKey string, maxSDKRetries int) *Client {
	return &Client{
		sdk:           anthropic.NewClient(option.WithAPIKey(apiKey)),
		maxSDKRetries: maxSDKRetries,
	}
}

func toAnthropicMessages(req agent.Request) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		var text string
		for _, p := range m.Parts {
			text += p.Text
		}
		switch m.Role {
		case "user":
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(text)))
		}
	}
	return msgs
}

// Stream opens an Anthropic streaming message call and translates
// content-block events into guardrail.Part values.
func (c *Client) Stream(ctx context.Context, req agent.Request) (<-chan guardrail.Part, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: 4096,
		Messages:  toAnthropicMessages(req),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	stream := c.sdk.Messages.NewStreaming(ctx, params, option.WithMaxRetries(c.maxSDKRetries))
	if stream.Err() != nil {
		return nil, errs.Model("failed to start anthropic stream: %v", stream.Err())
	}

	out := make(chan guardrail.Part)
	go func() {
		defer close(out)
		defer stream.Close()

		message := anthropic.Message{}
		textID := "text-0"
		started := false
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				logger.G(ctx).WithError(err).Warn("failed to accumulate anthropic message event")
				continue
			}

			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if textDelta, ok := variant.Delta.AsAny().(anthropic.TextDelta); ok {
					if !started {
						out <- guardrail.TextStart(textID)
						started = true
					}
					out <- guardrail.TextDelta(textID, textDelta.Text)
				}
			case anthropic.ContentBlockStopEvent:
				if started {
					out <- guardrail.TextEnd(textID)
					started = false
				}
			}
		}
		if stream.Err() != nil {
			out <- guardrail.Error(stream.Err().Error())
		}
	}()
	return out, nil
}
