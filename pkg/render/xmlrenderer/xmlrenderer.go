// Package xmlrenderer implements the XML rendered-fragment renderer
// (spec §6 "Rendered fragment protocol"): each fragment becomes an
// element named after Fragment.Name, scalars become text content, maps
// become child elements, lists repeat the parent element name.
package xmlrenderer

import (
	"fmt"
	"strings"

	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
)

// Renderer renders fragments as XML-like tagged text.
type Renderer struct{}

// New constructs the XML renderer.
func New() *Renderer { return &Renderer{} }

func (r *Renderer) Name() string { return "xml" }

func (r *Renderer) Render(fragments []*fragment.Fragment, opts render.Options) (string, error) {
	var b strings.Builder
	rd := &renderState{opts: opts, seen: map[*fragment.Fragment]bool{}}
	if opts.GroupSiblings {
		for _, group := range groupByName(fragments) {
			if len(group) > 1 {
				rd.renderGroup(&b, group, 0)
				continue
			}
			rd.renderFragment(&b, group[0], 0)
		}
	} else {
		for _, f := range fragments {
			rd.renderFragment(&b, f, 0)
		}
	}
	return b.String(), nil
}

type renderState struct {
	opts render.Options
	seen map[*fragment.Fragment]bool
}

func indent(depth int) string { return strings.Repeat("  ", depth) }

func (rd *renderState) renderGroup(b *strings.Builder, group []*fragment.Fragment, depth int) {
	plural := pluralize(group[0].Name)
	fmt.Fprintf(b, "%s<%s>\n", indent(depth), plural)
	for _, f := range group {
		rd.renderFragment(b, f, depth+1)
	}
	fmt.Fprintf(b, "%s</%s>\n", indent(depth), plural)
}

func (rd *renderState) renderFragment(b *strings.Builder, f *fragment.Fragment, depth int) {
	if f == nil || f.Data == nil {
		return
	}
	if rd.seen[f] {
		fmt.Fprintf(b, "%s<%s cycle=\"true\"/>\n", indent(depth), f.Name)
		return
	}
	rd.seen[f] = true
	defer delete(rd.seen, f)

	rd.renderValue(b, f.Name, f.Data, depth)
}

func (rd *renderState) renderValue(b *strings.Builder, name string, v fragment.Value, depth int) {
	switch vv := v.(type) {
	case nil:
		return
	case fragment.Scalar:
		if vv.V == nil {
			return
		}
		fmt.Fprintf(b, "%s<%s>%v</%s>\n", indent(depth), name, vv.V, name)
	case fragment.List:
		for _, item := range vv.Items {
			rd.renderValue(b, name, item, depth)
		}
	case fragment.Map:
		fmt.Fprintf(b, "%s<%s>\n", indent(depth), name)
		for _, k := range vv.Keys {
			child := vv.Values[k]
			if child == nil {
				continue
			}
			rd.renderValue(b, k, child, depth+1)
		}
		fmt.Fprintf(b, "%s</%s>\n", indent(depth), name)
	case fragment.Nested:
		if vv.Fragment == nil {
			return
		}
		rd.renderFragment(b, vv.Fragment, depth)
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
