// Package agent implements the Streaming Agent + Guardrail Loop (spec
// §4.3): an agent resolves context from the engine, opens a model
// stream, and runs every emitted part through a guardrail chain that can
// transparently splice in self-correction and re-stream without
// duplicating assistant turns.
//
// Grounded on the teacher's provider-dispatch Thread (pkg/llm/thread.go,
// pkg/llm/client.go): one Agent value holds the model handle, tool set,
// and retry policy behind a narrow generate/stream surface, the way the
// teacher's Thread holds provider state behind SendMessage/SendMessageStreaming.
package agent

import (
	"context"

	"github.com/weftctx/weft/pkg/engine"
	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/guardrail"
	"github.com/weftctx/weft/pkg/render"
)

// Tool is the minimal shape the agent needs from a tool definition: a
// name (used for guardrail context and tool-choice validation) and a
// JSON schema for its input (spec §4.3.1 "tool set").
type Tool struct {
	Name        string
	Description string
	InputSchema any // opaque to the agent; the bundled provider adapters do not send tools upstream
}

// ModelClient is the provider-agnostic surface an agent drives (spec
// §4.3.1 "model handle"). Concrete adapters (anthropicclient,
// openaiclient) wrap the respective SDK's streaming call behind this
// interface.
type ModelClient interface {
	// Stream opens a new upstream model stream given the resolved system
	// prompt, message history, and tool set, and returns a channel of
	// guardrail parts. The channel is closed when the upstream stream
	// ends (naturally or via ctx cancellation).
	Stream(ctx context.Context, req Request) (<-chan guardrail.Part, error)
}

// Request is everything a ModelClient needs to open one upstream stream.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []engine.Message
	Tools        []Tool
	MaxSteps     int
}

const (
	// StepCountGenerate bounds non-streaming generate() calls (spec §4.3.1).
	StepCountGenerate = 25
	// StepCountStream bounds stream() calls (spec §4.3.1).
	StepCountStream = 50

	// DefaultMaxRetries is the guardrail retry budget (spec §4.3.3).
	DefaultMaxRetries = 3
)

// Agent holds the configuration described in spec §4.3.1: a name, model
// handle, context engine, tool set, optional structured-output schema,
// optional provider options, optional guardrail list, and optional
// max-retry override.
type Agent struct {
	Name            string
	Model           string
	Engine          *engine.Engine
	Client          ModelClient
	Tools           []Tool
	Guardrails      *guardrail.Chain
	MaxRetries      int
	StructuredSchema any
	ProviderOptions map[string]any

	Renderer     render.Renderer
	CodecFactory func(role, text string) fragment.Codec
}

func (a *Agent) maxRetries() int {
	if a.MaxRetries > 0 {
		return a.MaxRetries
	}
	return DefaultMaxRetries
}

func (a *Agent) toolNames() []string {
	names := make([]string, len(a.Tools))
	for i, t := range a.Tools {
		names[i] = t.Name
	}
	return names
}

// Generate resolves the context and runs a bounded, non-streaming turn,
// returning the accumulated text (spec §4.3.1 generate(contextVars)).
func (a *Agent) Generate(ctx context.Context, contextVars map[string]any) (string, error) {
	parts, err := a.drainStream(ctx, contextVars, StepCountGenerate)
	if err != nil {
		return "", err
	}
	var text string
	for _, p := range parts {
		if p.IsTextDelta() {
			text += p.Delta
		}
	}
	return text, nil
}

// Stream resolves the context and runs the guardrail retry loop,
// returning the full ordered sequence of parts the caller observes
// (spec §4.3.1 stream(contextVars); in a true streaming surface this
// would instead be a channel, collected here for a single return value
// callers can still range over).
func (a *Agent) Stream(ctx context.Context, contextVars map[string]any) ([]guardrail.Part, error) {
	return a.drainStream(ctx, contextVars, StepCountStream)
}
