package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/engine"
	"github.com/weftctx/weft/pkg/engine/chatlock"
	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
	"github.com/weftctx/weft/pkg/store/sqlite"
)

// textCodec is a minimal fragment.Codec for tests: a plain text message
// tagged with a role, grounded on the engine's CodecFactory contract.
type textCodec struct {
	role string
	text string
}

type textWire struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (c *textCodec) Encode() ([]byte, error) {
	return json.Marshal(textWire{Role: c.role, Text: c.text})
}

func (c *textCodec) Decode() (fragment.LLMMessage, error) {
	return fragment.LLMMessage{Role: c.role, Parts: []fragment.Part{{Kind: "text", Text: c.text}}}, nil
}

func textCodecFactory(role string) engine.CodecFactory {
	return func(data []byte) (fragment.Codec, error) {
		var w textWire
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, err
		}
		return &textCodec{role: w.Role, text: w.Text}, nil
	}
}

func userMessage(id, text string) *fragment.Fragment {
	return fragment.NewMessage(id, "user", fragment.Scalar{V: text}, &textCodec{role: "user", text: text})
}

func assistantMessage(id, text string) *fragment.Fragment {
	return fragment.NewMessage(id, "assistant", fragment.Scalar{V: text}, &textCodec{role: "assistant", text: text})
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
	e.RegisterCodec("user", textCodecFactory("user"))
	e.RegisterCodec("assistant", textCodecFactory("assistant"))
	return e
}

func TestTwoTurnBranch(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "c1")

	e.Set(userMessage("m1", "Hello"))
	res, err := e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "m1", res.HeadMessageID)

	e.Set(assistantMessage("m2", "Hi"))
	res, err = e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "m2", res.HeadMessageID)

	resolved, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)
	require.Len(t, resolved.Messages, 2)
	assert.Equal(t, "m1", resolved.Messages[0].ID)
	assert.Equal(t, "m2", resolved.Messages[1].ID)
}

func TestRewind(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "c1")

	e.Set(userMessage("m1", "Hello"))
	_, err := e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)
	e.Set(assistantMessage("m2", "Hi"))
	_, err = e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)

	info, err := e.Rewind(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "main-v2", info.Name)
	assert.True(t, info.IsActive)

	resolved, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)
	require.Len(t, resolved.Messages, 1)
	assert.Equal(t, "m1", resolved.Messages[0].ID)
}

func TestSaveEmptyPendingIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "c1")

	e.Set(userMessage("m1", "Hello"))
	first, err := e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)

	second, err := e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, first.HeadMessageID, second.HeadMessageID)
}

func TestResolveDoesNotMutateStore(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "c1")

	e.Set(userMessage("m1", "Hello"))
	first, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)
	second, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = e.Save(ctx, engine.SaveOptions{Branch: boolPtr(false)})
	require.NoError(t, err)
}

func TestGuardrailInPlaceCorrectionUpdatesSameMessage(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "c1")

	e.Set(userMessage("m1", "Hello"))
	_, err := e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)

	e.Set(assistantMessage("m2", "partial"))
	res, err := e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)
	require.Equal(t, "m2", res.HeadMessageID)

	e.Set(assistantMessage("m2", "partial corrected"))
	res, err = e.Save(ctx, engine.SaveOptions{Branch: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "m2", res.HeadMessageID)

	resolved, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)
	require.Len(t, resolved.Messages, 2)
	assert.Equal(t, "partial corrected", resolved.Messages[1].Parts[0].Text)
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "c1")

	e.Set(userMessage("m1", "Hello"))
	_, err := e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)
	e.Set(assistantMessage("m2", "Hi"))
	_, err = e.Save(ctx, engine.SaveOptions{})
	require.NoError(t, err)

	before, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)

	_, err = e.Checkpoint(ctx, "cp1")
	require.NoError(t, err)

	_, err = e.Rewind(ctx, "m2")
	require.NoError(t, err)

	_, err = e.Restore(ctx, "cp1")
	require.NoError(t, err)

	after, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)
	assert.Equal(t, before.Messages, after.Messages)
}

func TestLastAssistantLazyOnFreshChatMintsNewMessage(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, "c1")

	e.Set(fragment.NewLazyMessage("assistant", fragment.ResolveLastAssistant, fragment.Scalar{V: "first reply"}, &textCodec{role: "assistant", text: "first reply"}))
	res, err := e.Save(ctx, engine.SaveOptions{Branch: boolPtr(false)})
	require.NoError(t, err)
	require.NotEmpty(t, res.HeadMessageID)

	resolved, err := e.Resolve(ctx, joinRenderer{})
	require.NoError(t, err)
	require.Len(t, resolved.Messages, 1)
	assert.Equal(t, res.HeadMessageID, resolved.Messages[0].ID)
	assert.Equal(t, "first reply", resolved.Messages[0].Parts[0].Text)
}

func boolPtr(b bool) *bool { return &b }
