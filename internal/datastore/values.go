package datastore

import (
	"maps"
	"slices"

	"github.com/tiendc/go-deepcopy"
)

// cloneValue returns a deep copy of composite JSON-like values. Every value
// entering or leaving a record passes through it, so neither callers nor
// history entries share mutable state with stored records.
func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case MapUpdate:
		return cloneMap(typed)
	case []any:
		return cloneList(typed)
	default:
		return value
	}
}

func cloneList(values []any) []any {
	if len(values) == 0 {
		return []any{}
	}
	var copied []any
	if err := deepcopy.Copy(&copied, &values); err != nil {
		copied = slices.Clone(values)
		for index, value := range copied {
			copied[index] = cloneValue(value)
		}
	}
	return copied
}

func cloneMap(values map[string]any) map[string]any {
	if len(values) == 0 {
		return map[string]any{}
	}
	var copied map[string]any
	if err := deepcopy.Copy(&copied, &values); err != nil {
		copied = maps.Clone(values)
		for key, value := range copied {
			copied[key] = cloneValue(value)
		}
	}
	return copied
}

func sortedKeys[K ~string, V any](values map[K]V) []K {
	keys := make([]K, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
