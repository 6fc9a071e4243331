package xmlrenderer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
	"github.com/weftctx/weft/pkg/render/xmlrenderer"
)

func TestRenderScalarAndOmitsNull(t *testing.T) {
	r := xmlrenderer.New()
	frags := []*fragment.Fragment{
		fragment.New("hint", fragment.Scalar{V: "You are helpful."}),
		fragment.New("ignored", fragment.Scalar{V: nil}),
	}
	out, err := r.Render(frags, render.Options{})
	require.NoError(t, err)
	assert.Contains(t, out, "<hint>You are helpful.</hint>")
	assert.NotContains(t, out, "ignored")
}

func TestRenderMapOmitsNullFields(t *testing.T) {
	r := xmlrenderer.New()
	frags := []*fragment.Fragment{
		fragment.New("user", fragment.NewMap("name", fragment.Scalar{V: "Ada"}, "nickname", fragment.Scalar{V: nil})),
	}
	out, err := r.Render(frags, render.Options{})
	require.NoError(t, err)
	assert.Contains(t, out, "<name>Ada</name>")
	assert.NotContains(t, out, "nickname")
}

func TestRenderDetectsCycle(t *testing.T) {
	r := xmlrenderer.New()
	a := fragment.New("a", nil)
	b := fragment.New("b", fragment.Nested{Fragment: a})
	a.Data = fragment.Nested{Fragment: b}

	out, err := r.Render([]*fragment.Fragment{a}, render.Options{})
	require.NoError(t, err)
	assert.Contains(t, out, `cycle="true"`)
}

func TestRenderGroupsSiblings(t *testing.T) {
	r := xmlrenderer.New()
	frags := []*fragment.Fragment{
		fragment.New("item", fragment.Scalar{V: "one"}),
		fragment.New("item", fragment.Scalar{V: "two"}),
	}
	out, err := r.Render(frags, render.Options{GroupSiblings: true})
	require.NoError(t, err)
	assert.Contains(t, out, "<items>")
	assert.Contains(t, out, "<item>one</item>")
	assert.Contains(t, out, "<item>two</item>")
}
