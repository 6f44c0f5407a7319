// Package flatten converts nested string-keyed maps to and from flat maps
// with separator-joined keys.
package flatten

import (
	"sort"
	"strings"
)

// Map flattens nested map[string]any values into a single level, joining key
// segments with sep. With recursive set, nesting is followed all the way
// down; otherwise only the first level is expanded and deeper maps are kept
// as values.
func Map(in map[string]any, sep string, recursive bool) map[string]any {
	if sep == "" {
		sep = "."
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		flattenInto(out, k, v, sep, recursive, 0)
	}
	return out
}

func flattenInto(out map[string]any, key string, value any, sep string, recursive bool, depth int) {
	nested, ok := value.(map[string]any)
	if !ok || (!recursive && depth > 0) {
		out[key] = value
		return
	}
	if len(nested) == 0 {
		out[key] = nested
		return
	}
	for k, v := range nested {
		flattenInto(out, key+sep+k, v, sep, recursive, depth+1)
	}
}

// Unflatten rebuilds a nested map from separator-joined keys. Conflicting
// entries (a scalar where a deeper key needs a map) keep the later value by
// sorted key order, so the result is deterministic.
func Unflatten(in map[string]any, sep string) map[string]any {
	if sep == "" {
		sep = "."
	}
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any)
	for _, key := range keys {
		parts := strings.Split(key, sep)
		node := out
		for i, part := range parts {
			if i == len(parts)-1 {
				node[part] = in[key]
				break
			}
			next, ok := node[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				node[part] = next
			}
			node = next
		}
	}
	return out
}
