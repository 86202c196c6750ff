package datastore

import (
	"fmt"
	"maps"

	json "github.com/goccy/go-json"
)

// MapUpdate is a partial map update; a nil value deletes the key.
type MapUpdate map[string]any

// MapField stores a string-keyed dictionary edited through partial updates.
type MapField struct{}

// Map declares a map field defaulting to an empty dictionary.
func Map() MapField {
	return MapField{}
}

// Kind implements Field.
func (MapField) Kind() FieldKind { return KindMap }

func (MapField) defaultValue() any {
	return map[string]any{}
}

func (MapField) applyUpdate(value any, update any) (any, FieldChange, error) {
	current, err := asMap(value)
	if err != nil {
		return nil, nil, err
	}
	var entries map[string]any
	switch typed := update.(type) {
	case MapUpdate:
		entries = typed
	case map[string]any:
		entries = typed
	default:
		return nil, nil, fmt.Errorf("%w: expected map update, got %T", ErrInvalidUpdate, update)
	}

	updated := cloneMap(current)
	change := MapChange{
		Previous: make(map[string]any, len(entries)),
		Current:  make(map[string]any, len(entries)),
	}
	for key, entry := range entries {
		if previous, ok := current[key]; ok {
			change.Previous[key] = previous
		} else {
			change.Previous[key] = nil
		}
		change.Current[key] = cloneValue(entry)
		if entry == nil {
			delete(updated, key)
		} else {
			updated[key] = cloneValue(entry)
		}
	}
	return updated, change, nil
}

func (MapField) applyPatch(value any, change FieldChange) (any, error) {
	current, err := asMap(value)
	if err != nil {
		return nil, err
	}
	mapChange, err := asMapChange(change)
	if err != nil {
		return nil, err
	}
	updated := maps.Clone(current)
	if updated == nil {
		updated = map[string]any{}
	}
	for key, entry := range mapChange.Current {
		if entry == nil {
			delete(updated, key)
		} else {
			updated[key] = cloneValue(entry)
		}
	}
	return updated, nil
}

func (MapField) invertChange(change FieldChange) (FieldChange, error) {
	mapChange, err := asMapChange(change)
	if err != nil {
		return nil, err
	}
	return MapChange{Previous: mapChange.Current, Current: mapChange.Previous}, nil
}

// mergeChange keeps the earliest previous value and the latest current value per key.
func (MapField) mergeChange(first, second FieldChange) (FieldChange, error) {
	firstChange, err := asMapChange(first)
	if err != nil {
		return nil, err
	}
	secondChange, err := asMapChange(second)
	if err != nil {
		return nil, err
	}
	previous := cloneMap(secondChange.Previous)
	maps.Copy(previous, firstChange.Previous)
	current := cloneMap(firstChange.Current)
	maps.Copy(current, secondChange.Current)
	return MapChange{Previous: previous, Current: current}, nil
}

func (MapField) decodeUpdate(raw []byte) (any, error) {
	var entries map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	if entries == nil {
		return nil, fmt.Errorf("%w: expected object", ErrInvalidUpdate)
	}
	return MapUpdate(entries), nil
}

func (MapField) decodeValue(raw []byte) (any, error) {
	var entries map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return cloneMap(entries), nil
}

func asMap(value any) (map[string]any, error) {
	if value == nil {
		return nil, nil
	}
	entries, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrInvalidValue, value)
	}
	return entries, nil
}

func asMapChange(change FieldChange) (MapChange, error) {
	typed, ok := change.(MapChange)
	if !ok {
		return MapChange{}, fmt.Errorf("%w: expected map change, got %T", ErrInvalidChange, change)
	}
	return typed, nil
}
