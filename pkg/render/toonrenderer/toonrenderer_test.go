package toonrenderer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
	"github.com/weftctx/weft/pkg/render/toonrenderer"
)

func TestRenderScalarAndOmitsNull(t *testing.T) {
	r := toonrenderer.New()
	frags := []*fragment.Fragment{
		fragment.New("hint", fragment.Scalar{V: "You are helpful."}),
		fragment.New("ignored", fragment.Scalar{V: nil}),
	}
	out, err := r.Render(frags, render.Options{})
	require.NoError(t, err)
	assert.Contains(t, out, "hint: You are helpful.")
	assert.NotContains(t, out, "ignored")
}

func TestRenderTabularListOfUniformMaps(t *testing.T) {
	r := toonrenderer.New()
	rows := fragment.List{Items: []fragment.Value{
		fragment.NewMap("id", fragment.Scalar{V: "1"}, "name", fragment.Scalar{V: "Ada"}),
		fragment.NewMap("id", fragment.Scalar{V: "2"}, "name", fragment.Scalar{V: "Grace"}),
	}}
	frags := []*fragment.Fragment{fragment.New("users", rows)}

	out, err := r.Render(frags, render.Options{})
	require.NoError(t, err)
	assert.Contains(t, out, "users[2]{id,name}:")
	assert.Contains(t, out, "1,Ada")
	assert.Contains(t, out, "2,Grace")
}

func TestRenderDetectsCycle(t *testing.T) {
	r := toonrenderer.New()
	a := fragment.New("a", nil)
	b := fragment.New("b", fragment.Nested{Fragment: a})
	a.Data = fragment.Nested{Fragment: b}

	out, err := r.Render([]*fragment.Fragment{a}, render.Options{})
	require.NoError(t, err)
	assert.Contains(t, out, "<cycle>")
}

func TestRenderGroupsSiblings(t *testing.T) {
	r := toonrenderer.New()
	frags := []*fragment.Fragment{
		fragment.New("item", fragment.Scalar{V: "one"}),
		fragment.New("item", fragment.Scalar{V: "two"}),
	}
	out, err := r.Render(frags, render.Options{GroupSiblings: true})
	require.NoError(t, err)
	assert.Contains(t, out, "items[2]:")
}
