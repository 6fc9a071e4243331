package fragment

import "sort"

// Value is the recursive data payload a Fragment carries (spec §3): a
// scalar, a list of values, a map of values, or a nested fragment. It is
// a sealed tagged union — kind() is unexported so only this package can
// add variants.
type Value interface {
	kind() string
}

// Scalar wraps a string, number, bool, or nil leaf value.
type Scalar struct {
	V any
}

func (Scalar) kind() string { return "scalar" }

// List is an ordered sequence of values.
type List struct {
	Items []Value
}

func (List) kind() string { return "list" }

// Map is an ordered collection of named values. Ordered (rather than a
// plain Go map) so rendering is deterministic across runs.
type Map struct {
	Keys   []string
	Values map[string]Value
}

func (Map) kind() string { return "map" }

// NewMap builds a Map from key/value pairs in the given order.
func NewMap(pairs ...any) Map {
	m := Map{Values: map[string]Value{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		k := pairs[i].(string)
		v := pairs[i+1].(Value)
		if _, exists := m.Values[k]; !exists {
			m.Keys = append(m.Keys, k)
		}
		m.Values[k] = v
	}
	return m
}

// Nested embeds another fragment as a value, per spec §3's recursive data model.
type Nested struct {
	Fragment *Fragment
}

func (Nested) kind() string { return "nested" }

// valueEqual performs a structural comparison of two Value trees.
func valueEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.kind() != b.kind() {
		return false
	}
	switch av := a.(type) {
	case Scalar:
		bv := b.(Scalar)
		return av.V == bv.V
	case List:
		bv := b.(List)
		if len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !valueEqual(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case Map:
		bv := b.(Map)
		if len(av.Keys) != len(bv.Keys) {
			return false
		}
		aKeys := append([]string{}, av.Keys...)
		bKeys := append([]string{}, bv.Keys...)
		sort.Strings(aKeys)
		sort.Strings(bKeys)
		for i := range aKeys {
			if aKeys[i] != bKeys[i] {
				return false
			}
		}
		for k, av2 := range av.Values {
			bv2, ok := bv.Values[k]
			if !ok || !valueEqual(av2, bv2) {
				return false
			}
		}
		return true
	case Nested:
		bv := b.(Nested)
		if av.Fragment == nil || bv.Fragment == nil {
			return av.Fragment == bv.Fragment
		}
		return Equivalent(av.Fragment, bv.Fragment)
	default:
		return false
	}
}

// Walk visits v and every value nested within it, depth-first. visit
// returning false for a value skips descending into it. Walk keeps no
// seen-set of its own, so on cyclic data only the visitor can stop it.
func Walk(v Value, visit func(Value) bool) {
	if v == nil || !visit(v) {
		return
	}
	switch vv := v.(type) {
	case List:
		for _, item := range vv.Items {
			Walk(item, visit)
		}
	case Map:
		for _, k := range vv.Keys {
			Walk(vv.Values[k], visit)
		}
	case Nested:
		if vv.Fragment != nil {
			Walk(vv.Fragment.Data, visit)
		}
	}
}

// DetectCycle reports whether v contains a Nested fragment that (directly
// or transitively) embeds a fragment already on the current path, by
// fragment pointer identity. A self-contained check
// over a single Value with no outside ancestor context — useful for
// validating a fragment's data before it is accepted, as opposed to the
// renderers' own closure-based seen-set, which tracks the live ancestor
// path across an entire recursive render.
func DetectCycle(v Value) bool {
	return detectCycle(v, map[*Fragment]bool{})
}

func detectCycle(v Value, seen map[*Fragment]bool) bool {
	switch vv := v.(type) {
	case List:
		for _, item := range vv.Items {
			if detectCycle(item, seen) {
				return true
			}
		}
	case Map:
		for _, k := range vv.Keys {
			if detectCycle(vv.Values[k], seen) {
				return true
			}
		}
	case Nested:
		if vv.Fragment == nil {
			return false
		}
		if seen[vv.Fragment] {
			return true
		}
		seen[vv.Fragment] = true
		defer delete(seen, vv.Fragment)
		return detectCycle(vv.Fragment.Data, seen)
	}
	return false
}
