package config

import (
	"fmt"
	"sort"

	"github.com/chazu/flatprog/schema"
)

// getterValue converts a decoded TOML value into a primitive-getter value.
// Tables with a single "dtype" or "layout" key are enumeration leaves; other
// tables become dicts and arrays become lists. Scalars pass through and are
// type-checked by the emitter.
func getterValue(v any) (any, error) {
	switch v := v.(type) {
	case map[string]any:
		if len(v) == 1 {
			if name, ok := v["dtype"]; ok {
				return enumLeaf(name, schema.ParseScalarType)
			}
			if name, ok := v["layout"]; ok {
				return enumLeaf(name, schema.ParseLayout)
			}
		}
		out := make(map[string]any, len(v))
		for _, k := range sortedKeys(v) {
			item, err := getterValue(v[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = item
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			conv, err := getterValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			conv, err := getterValue(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}

func enumLeaf[T any](name any, parse func(string) (T, error)) (any, error) {
	s, ok := name.(string)
	if !ok {
		return nil, fmt.Errorf("enumeration name must be a string, got %T", name)
	}
	v, err := parse(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
