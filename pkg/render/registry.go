package render

import "strings"

// Registry resolves a renderer by name, with exact-match and
// suffix-pattern lookup plus a deterministic fallback — grounded on the
// teacher's RendererRegistry (pkg/tools/renderers/registry.go), which
// resolves CLI tool renderers the same way.
type Registry struct {
	exact    map[string]Renderer
	patterns map[string]Renderer
	fallback Renderer
}

// NewRegistry constructs an empty registry. Callers register
// xmlrenderer/mdrenderer/tomlrenderer/toonrenderer (or any custom
// Renderer) and set a fallback.
func NewRegistry(fallback Renderer) *Registry {
	return &Registry{
		exact:    map[string]Renderer{},
		patterns: map[string]Renderer{},
		fallback: fallback,
	}
}

// Register adds a renderer under its own Name().
func (r *Registry) Register(rd Renderer) {
	r.exact[rd.Name()] = rd
}

// RegisterPattern adds a renderer for a "prefix*" suffix pattern.
func (r *Registry) RegisterPattern(pattern string, rd Renderer) {
	r.patterns[pattern] = rd
}

// Resolve finds a renderer by exact name, then by pattern, then falls
// back to the registry's default renderer.
func (r *Registry) Resolve(name string) Renderer {
	if rd, ok := r.exact[name]; ok {
		return rd
	}
	for pattern, rd := range r.patterns {
		if matchesPattern(name, pattern) {
			return rd
		}
	}
	return r.fallback
}

func matchesPattern(name, pattern string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	}
	return name == pattern
}
