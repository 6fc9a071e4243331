package agent_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/agent"
	"github.com/weftctx/weft/pkg/engine"
	"github.com/weftctx/weft/pkg/engine/chatlock"
	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/guardrail"
	"github.com/weftctx/weft/pkg/render"
	"github.com/weftctx/weft/pkg/store/sqlite"
)

// textCodec mirrors pkg/engine's test codec: a plain text message tagged
// with a role.
type textCodec struct {
	role string
	text string
}

type textWire struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (c *textCodec) Encode() ([]byte, error) { return json.Marshal(textWire{c.role, c.text}) }

func (c *textCodec) Decode() (fragment.LLMMessage, error) {
	return fragment.LLMMessage{Role: c.role, Parts: []fragment.Part{{Kind: "text", Text: c.text}}}, nil
}

func codecFactory(role string) engine.CodecFactory {
	return func(data []byte) (fragment.Codec, error) {
		var w textWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return &textCodec{role: w.Role, text: w.Text}, nil
	}
}

type joinRenderer struct{}

func (joinRenderer) Name() string { return "join" }

func (joinRenderer) Render(frags []*fragment.Fragment, _ render.Options) (string, error) {
	out := ""
	for _, f := range frags {
		if s, ok := f.Data.(fragment.Scalar); ok {
			if text, ok := s.V.(string); ok {
				out += text + "\n"
			}
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T, chatID string) *engine.Engine {
	t.Helper()
	s, err := sqlite.New(context.Background(), t.TempDir()+"/weft.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	e := engine.New(s, chatlock.NewTable(), chatID, "u1")
	e.RegisterCodec("user", codecFactory("user"))
	e.RegisterCodec("assistant", codecFactory("assistant"))
	return e
}

// failOnceClient implements agent.ModelClient: the first Stream call
// emits two text deltas then an unknown-tool error; the second call (the
// guardrail-triggered retry) streams a short continuation to completion.
// Grounded on spec §8 scenario 3.
type failOnceClient struct {
	calls int
}

func (c *failOnceClient) Stream(ctx context.Context, req agent.Request) (<-chan guardrail.Part, error) {
	c.calls++
	out := make(chan guardrail.Part, 8)
	if c.calls == 1 {
		out <- guardrail.TextStart("t1")
		out <- guardrail.TextDelta("t1", "I will")
		out <- guardrail.TextDelta("t1", " use")
		out <- guardrail.Error("attempted to call tool 'x' which was not in request.tools")
		close(out)
		return out, nil
	}
	out <- guardrail.TextStart("t2")
	out <- guardrail.TextDelta("t2", " bash instead.")
	out <- guardrail.TextEnd("t2")
	close(out)
	return out, nil
}

func TestGuardrailRetrySpliceAndRestream(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "c1")

	e.Set(fragment.NewMessage("m1", "user", fragment.Scalar{V: "run something"}, &textCodec{role: "user", text: "run something"}))
	_, err := e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)

	e.Set(fragment.NewMessage("m2", "assistant", fragment.Scalar{V: ""}, &textCodec{role: "assistant", text: ""}))
	_, err = e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)

	client := &failOnceClient{}
	a := &agent.Agent{
		Name:         "tester",
		Model:        "anthropic:claude",
		Engine:       e,
		Client:       client,
		Tools:        []agent.Tool{{Name: "bash"}},
		Guardrails:   guardrail.NewChain(guardrail.NewErrorRecoveryGuardrail()),
		Renderer:     joinRenderer{},
		CodecFactory: func(role, text string) fragment.Codec { return &textCodec{role: role, text: text} },
	}

	parts, err := a.Stream(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 2, client.calls)

	var deltas []string
	for _, p := range parts {
		if p.IsTextDelta() {
			deltas = append(deltas, p.Delta)
		}
	}
	require.Len(t, deltas, 4)
	assert.Equal(t, "I will", deltas[0])
	assert.Equal(t, " use", deltas[1])
	assert.Contains(t, deltas[2], `I tried to call "x" but it doesn't exist. Available tools: bash.`)
	assert.Equal(t, " bash instead.", deltas[3])
	assert.Equal(t, guardrail.KindFinish, parts[len(parts)-1].Kind)

	// The retry protocol persists the corrected turn at the moment of
	// correction (spec §4.3.3 step 2); it does not re-save after the
	// retried stream's continuation, so "bash instead." only ever
	// appears in the caller-visible stream, not in the stored message.
	resolved, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)
	require.Len(t, resolved.Messages, 2)
	assert.Equal(t, "m2", resolved.Messages[1].ID)
	assert.Contains(t, resolved.Messages[1].Parts[0].Text, "I will use")
	assert.Contains(t, resolved.Messages[1].Parts[0].Text, `I tried to call "x"`)
}
