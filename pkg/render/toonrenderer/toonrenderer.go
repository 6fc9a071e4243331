// Package toonrenderer implements the TOON (Token-Oriented Object
// Notation) rendered-fragment renderer (spec §6): a compact,
// indentation-based format that renders uniform lists of maps as a
// tabular block (`name[N]{field1,field2}:` header followed by one
// comma-joined row per item) to avoid repeating field names per item,
// and falls back to `key: value` lines for everything else.
package toonrenderer

import (
	"fmt"
	"strings"

	"github.com/weftctx/weft/pkg/fragment"
	"github.com/weftctx/weft/pkg/render"
)

// Renderer renders fragments as TOON.
type Renderer struct{}

// New constructs the TOON renderer.
func New() *Renderer { return &Renderer{} }

func (r *Renderer) Name() string { return "toon" }

func (r *Renderer) Render(fragments []*fragment.Fragment, opts render.Options) (string, error) {
	var b strings.Builder
	rd := &renderState{seen: map[*fragment.Fragment]bool{}}

	if opts.GroupSiblings {
		for _, group := range groupByName(fragments) {
			if len(group) <= 1 {
				rd.renderFragment(&b, group[0], 0)
				continue
			}
			items := make([]fragment.Value, 0, len(group))
			for _, f := range group {
				items = append(items, f.Data)
			}
			rd.renderList(&b, pluralize(group[0].Name), items, 0)
		}
	} else {
		for _, f := range fragments {
			rd.renderFragment(&b, f, 0)
		}
	}
	return b.String(), nil
}

type renderState struct {
	seen map[*fragment.Fragment]bool
}

func (rd *renderState) renderFragment(b *strings.Builder, f *fragment.Fragment, depth int) {
	if f == nil || f.Data == nil {
		return
	}
	if rd.seen[f] {
		fmt.Fprintf(b, "%s%s: <cycle>\n", indent(depth), f.Name)
		return
	}
	rd.seen[f] = true
	defer delete(rd.seen, f)

	switch vv := f.Data.(type) {
	case fragment.Scalar:
		if vv.V == nil {
			return
		}
		fmt.Fprintf(b, "%s%s: %v\n", indent(depth), f.Name, vv.V)
	case fragment.List:
		rd.renderList(b, f.Name, vv.Items, depth)
	case fragment.Map:
		fmt.Fprintf(b, "%s%s:\n", indent(depth), f.Name)
		rd.renderMap(b, vv, depth+1)
	case fragment.Nested:
		if vv.Fragment != nil {
			rd.renderFragment(b, vv.Fragment, depth)
		}
	}
}

func (rd *renderState) renderList(b *strings.Builder, name string, items []fragment.Value, depth int) {
	if len(items) == 0 {
		fmt.Fprintf(b, "%s%s[0]:\n", indent(depth), name)
		return
	}

	fields, uniform := tabularFields(items)
	if uniform {
		fmt.Fprintf(b, "%s%s[%d]{%s}:\n", indent(depth), name, len(items), strings.Join(fields, ","))
		for _, item := range items {
			m := item.(fragment.Map)
			row := make([]string, len(fields))
			for i, fld := range fields {
				row[i] = scalarText(m.Values[fld])
			}
			fmt.Fprintf(b, "%s  %s\n", indent(depth), strings.Join(row, ","))
		}
		return
	}

	fmt.Fprintf(b, "%s%s[%d]:\n", indent(depth), name, len(items))
	for _, item := range items {
		rd.renderValueAsItem(b, item, depth+1)
	}
}

// tabularFields reports whether every item is a fragment.Map sharing
// the same key set (the uniform-shape case TOON's tabular block form
// is for), returning the shared field order when so.
func tabularFields(items []fragment.Value) ([]string, bool) {
	first, ok := items[0].(fragment.Map)
	if !ok {
		return nil, false
	}
	for _, item := range items {
		m, ok := item.(fragment.Map)
		if !ok || len(m.Keys) != len(first.Keys) {
			return nil, false
		}
		for _, k := range first.Keys {
			if _, ok := m.Values[k]; !ok {
				return nil, false
			}
		}
	}
	return first.Keys, true
}

func scalarText(v fragment.Value) string {
	s, ok := v.(fragment.Scalar)
	if !ok || s.V == nil {
		return ""
	}
	return fmt.Sprint(s.V)
}

func (rd *renderState) renderMap(b *strings.Builder, m fragment.Map, depth int) {
	for _, k := range m.Keys {
		v := m.Values[k]
		if v == nil {
			continue
		}
		rd.renderValueAsField(b, k, v, depth)
	}
}

func (rd *renderState) renderValueAsField(b *strings.Builder, name string, v fragment.Value, depth int) {
	switch vv := v.(type) {
	case fragment.Scalar:
		if vv.V == nil {
			return
		}
		fmt.Fprintf(b, "%s%s: %v\n", indent(depth), name, vv.V)
	case fragment.List:
		rd.renderList(b, name, vv.Items, depth)
	case fragment.Map:
		fmt.Fprintf(b, "%s%s:\n", indent(depth), name)
		rd.renderMap(b, vv, depth+1)
	case fragment.Nested:
		if vv.Fragment != nil {
			rd.renderFragment(b, vv.Fragment, depth)
		}
	}
}

func (rd *renderState) renderValueAsItem(b *strings.Builder, v fragment.Value, depth int) {
	switch vv := v.(type) {
	case fragment.Scalar:
		if vv.V == nil {
			return
		}
		fmt.Fprintf(b, "%s- %v\n", indent(depth), vv.V)
	case fragment.Map:
		fmt.Fprintf(b, "%s-\n", indent(depth))
		rd.renderMap(b, vv, depth+1)
	case fragment.Nested:
		if vv.Fragment != nil {
			rd.renderFragment(b, vv.Fragment, depth)
		}
	}
}

func indent(depth int) string { return strings.Repeat("  ", depth) }

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
