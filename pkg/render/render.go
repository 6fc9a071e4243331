// Package render turns an ordered list of fragments into deterministic
// text for a system prompt (spec §6, "Rendered fragment protocol").
// Renderer implementations (xmlrenderer, mdrenderer, tomlrenderer,
// toonrenderer) are registered in a Registry modeled on the teacher's
// RendererRegistry (pkg/tools/renderers/registry.go): exact-name lookup,
// suffix-pattern lookup, and a deterministic fallback.
package render

import "github.com/weftctx/weft/pkg/fragment"

// Options controls rendering behavior.
type Options struct {
	// GroupSiblings, when true, groups identically-named sibling
	// fragments under a pluralized parent element.
	GroupSiblings bool
}

// Renderer produces deterministic text from an ordered fragment list.
// Implementations must: omit null/undefined fragment values and nested
// null object fields; detect cyclic data via a seen-set keyed by
// fragment identity, elide the cycle, and keep rendering past it;
// respect Options.GroupSiblings.
type Renderer interface {
	Name() string
	Render(fragments []*fragment.Fragment, opts Options) (string, error)
}
