// Package mdrenderer implements the Markdown rendered-fragment renderer
// (spec §6): each top-level fragment becomes a heading, scalars become
// inline text, maps become bullet lists, lists repeat the item under a
// shared heading.
package mdrenderer

import (
	"fmt"
	"strings"

	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
)

// Renderer renders fragments as Markdown.
type Renderer struct{}

// New constructs the Markdown renderer.
func New() *Renderer { return &Renderer{} }

func (r *Renderer) Name() string { return "markdown" }

func (r *Renderer) Render(fragments []*fragment.Fragment, opts render.Options) (string, error) {
	var b strings.Builder
	rd := &renderState{opts: opts, seen: map[*fragment.Fragment]bool{}}

	if opts.GroupSiblings {
		for _, group := range groupByName(fragments) {
			if len(group) <= 1 {
				rd.renderFragment(&b, group[0], 1)
				continue
			}
			fmt.Fprintf(&b, "## %s\n\n", pluralize(group[0].Name))
			for _, f := range group {
				rd.renderValue(&b, f.Data, 0)
			}
			b.WriteString("\n")
		}
	} else {
		for _, f := range fragments {
			rd.renderFragment(&b, f, 1)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

type renderState struct {
	opts render.Options
	seen map[*fragment.Fragment]bool
}

func (rd *renderState) renderFragment(b *strings.Builder, f *fragment.Fragment, level int) {
	if f == nil || f.Data == nil {
		return
	}
	if rd.seen[f] {
		fmt.Fprintf(b, "%s %s: (cycle)\n\n", strings.Repeat("#", level), f.Name)
		return
	}
	rd.seen[f] = true
	defer delete(rd.seen, f)

	fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", level), f.Name)
	rd.renderValue(b, f.Data, 0)
	b.WriteString("\n")
}

func (rd *renderState) renderValue(b *strings.Builder, v fragment.Value, indent int) {
	switch vv := v.(type) {
	case nil:
		return
	case fragment.Scalar:
		if vv.V == nil {
			return
		}
		fmt.Fprintf(b, "%s\n", fmt.Sprint(vv.V))
	case fragment.List:
		for _, item := range vv.Items {
			rd.renderListItem(b, item, indent)
		}
	case fragment.Map:
		for _, k := range vv.Keys {
			child := vv.Values[k]
			if child == nil {
				continue
			}
			rd.renderMapEntry(b, k, child, indent)
		}
	case fragment.Nested:
		if vv.Fragment != nil {
			rd.renderFragment(b, vv.Fragment, 2)
		}
	}
}

func (rd *renderState) renderListItem(b *strings.Builder, v fragment.Value, indent int) {
	switch vv := v.(type) {
	case fragment.Scalar:
		if vv.V == nil {
			return
		}
		fmt.Fprintf(b, "%s- %v\n", strings.Repeat("  ", indent), vv.V)
	case fragment.Nested:
		if vv.Fragment != nil {
			rd.renderFragment(b, vv.Fragment, 2)
		}
	default:
		fmt.Fprintf(b, "%s- ", strings.Repeat("  ", indent))
		rd.renderValue(b, v, indent+1)
	}
}

func (rd *renderState) renderMapEntry(b *strings.Builder, key string, v fragment.Value, indent int) {
	switch vv := v.(type) {
	case fragment.Scalar:
		if vv.V == nil {
			return
		}
		fmt.Fprintf(b, "%s- **%s**: %v\n", strings.Repeat("  ", indent), key, vv.V)
	case fragment.List, fragment.Map:
		fmt.Fprintf(b, "%s- **%s**:\n", strings.Repeat("  ", indent), key)
		rd.renderValue(b, v, indent+1)
	case fragment.Nested:
		fmt.Fprintf(b, "%s- **%s**:\n", strings.Repeat("  ", indent), key)
		if vv.Fragment != nil {
			rd.renderFragment(b, vv.Fragment, 2)
		}
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
