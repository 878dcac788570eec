// Package tree flattens nested values into an ordered leaf sequence plus a
// structural Spec, and rebuilds the nesting from the two.
//
// Containers are recognized structurally: slices and arrays are lists,
// Tuple is a tuple, maps with string keys are dicts (visited in sorted key
// order) and an untyped nil is an empty "none" node. Everything else is a
// leaf. The package never inspects leaf values, so callers decide which leaf
// kinds they accept.
package tree

import (
	"fmt"
	"reflect"
	"sort"
)

// Tuple is a fixed-arity container. It flattens like a list but keeps a
// distinct kind in the Spec.
type Tuple []any

// NodeKind tags a Spec node.
type NodeKind uint8

const (
	KindLeaf NodeKind = iota
	KindNone
	KindList
	KindTuple
	KindDict
)

func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindNone:
		return "none"
	case KindList:
		return "list"
	case KindTuple:
		return "tuple"
	case KindDict:
		return "dict"
	default:
		return fmt.Sprintf("NodeKind(%d)", k)
	}
}

// Spec describes the shape of a flattened value.
type Spec struct {
	Kind      NodeKind
	Keys      []string // dict keys, parallel to Children
	Children  []*Spec
	NumLeaves int
}

// Leaf returns the spec of a single leaf.
func Leaf() *Spec {
	return &Spec{Kind: KindLeaf, NumLeaves: 1}
}

// FlatTuple returns the spec of a tuple holding n leaves.
func FlatTuple(n int) *Spec {
	s := &Spec{Kind: KindTuple}
	for i := 0; i < n; i++ {
		s.Children = append(s.Children, Leaf())
	}
	s.NumLeaves = n
	return s
}

// Flatten walks v depth-first and returns its leaves in visiting order
// together with the spec needed to rebuild v.
func Flatten(v any) ([]any, *Spec) {
	var leaves []any
	spec := flatten(v, &leaves)
	return leaves, spec
}

func flatten(v any, leaves *[]any) *Spec {
	if v == nil {
		return &Spec{Kind: KindNone}
	}
	if t, ok := v.(Tuple); ok {
		return flattenSeq(KindTuple, []any(t), leaves)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		// Byte strings are values, not containers.
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return flattenSeq(KindList, items, leaves)

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		s := &Spec{Kind: KindDict, Keys: keys}
		for _, k := range keys {
			child := flatten(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface(), leaves)
			s.Children = append(s.Children, child)
			s.NumLeaves += child.NumLeaves
		}
		return s
	}

	*leaves = append(*leaves, v)
	return Leaf()
}

func flattenSeq(kind NodeKind, items []any, leaves *[]any) *Spec {
	s := &Spec{Kind: kind}
	for _, item := range items {
		child := flatten(item, leaves)
		s.Children = append(s.Children, child)
		s.NumLeaves += child.NumLeaves
	}
	return s
}

// Unflatten rebuilds a value from its spec and leaves. Lists come back as
// []any, tuples as Tuple and dicts as map[string]any.
func Unflatten(spec *Spec, leaves []any) (any, error) {
	if len(leaves) != spec.NumLeaves {
		return nil, fmt.Errorf("tree: spec expects %d leaves, got %d", spec.NumLeaves, len(leaves))
	}
	v, _ := unflatten(spec, leaves)
	return v, nil
}

func unflatten(spec *Spec, leaves []any) (any, []any) {
	switch spec.Kind {
	case KindLeaf:
		return leaves[0], leaves[1:]
	case KindNone:
		return nil, leaves
	case KindDict:
		m := make(map[string]any, len(spec.Children))
		for i, child := range spec.Children {
			m[spec.Keys[i]], leaves = unflatten(child, leaves)
		}
		return m, leaves
	default:
		items := make([]any, len(spec.Children))
		for i, child := range spec.Children {
			items[i], leaves = unflatten(child, leaves)
		}
		if spec.Kind == KindTuple {
			return Tuple(items), leaves
		}
		return items, leaves
	}
}
