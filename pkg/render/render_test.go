package render_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
)

type stubRenderer string

func (s stubRenderer) Name() string { return string(s) }
func (s stubRenderer) Render([]*fragment.Fragment, render.Options) (string, error) {
	return string(s), nil
}

func TestRegistryExactMatch(t *testing.T) {
	reg := render.NewRegistry(stubRenderer("fallback"))
	reg.Register(stubRenderer("xml"))
	assert.Equal(t, "xml", reg.Resolve("xml").Name())
}

func TestRegistryPatternMatch(t *testing.T) {
	reg := render.NewRegistry(stubRenderer("fallback"))
	reg.RegisterPattern("custom-*", stubRenderer("custom"))
	assert.Equal(t, "custom", reg.Resolve("custom-foo").Name())
}

func TestRegistryFallback(t *testing.T) {
	reg := render.NewRegistry(stubRenderer("fallback"))
	assert.Equal(t, "fallback", reg.Resolve("unknown").Name())
}
