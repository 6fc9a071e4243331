// Package tomlrenderer implements the TOML rendered-fragment renderer
// (spec §6): fragments are converted into a plain map/slice tree and
// marshaled with pelletier/go-toml/v2, which the teacher's dependency
// graph already carries transitively (pulled in by spf13/viper) but
// never uses directly for an in-repo rendering concern.
package tomlrenderer

import (
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
)

// Renderer renders fragments as TOML.
type Renderer struct{}

// New constructs the TOML renderer.
func New() *Renderer { return &Renderer{} }

func (r *Renderer) Name() string { return "toml" }

func (r *Renderer) Render(fragments []*fragment.Fragment, opts render.Options) (string, error) {
	c := &converter{seen: map[*fragment.Fragment]bool{}}
	root := map[string]any{}

	if opts.GroupSiblings {
		for _, group := range groupByName(fragments) {
			if len(group) <= 1 {
				assign(root, group[0].Name, c.fragmentValue(group[0]))
				continue
			}
			items := make([]any, 0, len(group))
			for _, f := range group {
				if v, ok := c.value(f.Data); ok {
					items = append(items, v)
				}
			}
			root[pluralize(group[0].Name)] = items
		}
	} else {
		for _, f := range fragments {
			assign(root, f.Name, c.fragmentValue(f))
		}
	}

	out, err := toml.Marshal(root)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func assign(root map[string]any, name string, v any) {
	if v == nil {
		return
	}
	if existing, ok := root[name]; ok {
		if list, ok := existing.([]any); ok {
			root[name] = append(list, v)
			return
		}
		root[name] = []any{existing, v}
		return
	}
	root[name] = v
}

type converter struct {
	seen map[*fragment.Fragment]bool
}

func (c *converter) fragmentValue(f *fragment.Fragment) any {
	if f == nil || f.Data == nil {
		return nil
	}
	if c.seen[f] {
		return map[string]any{"cycle": true}
	}
	c.seen[f] = true
	defer delete(c.seen, f)

	v, ok := c.value(f.Data)
	if !ok {
		return nil
	}
	return v
}

// value converts a fragment.Value into a TOML-marshalable Go value.
// The bool result is false for null/undefined values, which callers
// must omit rather than encode (spec §6's null-omission contract).
func (c *converter) value(v fragment.Value) (any, bool) {
	switch vv := v.(type) {
	case nil:
		return nil, false
	case fragment.Scalar:
		if vv.V == nil {
			return nil, false
		}
		return vv.V, true
	case fragment.List:
		items := make([]any, 0, len(vv.Items))
		for _, item := range vv.Items {
			if iv, ok := c.value(item); ok {
				items = append(items, iv)
			}
		}
		return items, true
	case fragment.Map:
		m := map[string]any{}
		for _, k := range vv.Keys {
			child := vv.Values[k]
			if child == nil {
				continue
			}
			if cv, ok := c.value(child); ok {
				m[k] = cv
			}
		}
		return m, true
	case fragment.Nested:
		if vv.Fragment == nil {
			return nil, false
		}
		fv := c.fragmentValue(vv.Fragment)
		if fv == nil {
			return nil, false
		}
		return fv, true
	default:
		return nil, false
	}
}

func groupByName(fragments []*fragment.Fragment) [][]*fragment.Fragment {
	order := []string{}
	byName := map[string][]*fragment.Fragment{}
	for _, f := range fragments {
		if _, ok := byName[f.Name]; !ok {
			order = append(order, f.Name)
		}
		byName[f.Name] = append(byName[f.Name], f)
	}
	groups := make([][]*fragment.Fragment, 0, len(order))
	for _, name := range order {
		groups = append(groups, byName[name])
	}
	return groups
}

func pluralize(name string) string {
	if strings.HasSuffix(name, "s") {
		return name + "es"
	}
	return name + "s"
}
