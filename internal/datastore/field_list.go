package datastore

import (
	"bytes"
	"fmt"
	"slices"

	json "github.com/goccy/go-json"
)

// ListSplice is a list update: remove Remove items at Index, then insert Values.
type ListSplice struct {
	Index  int   `json:"index"`
	Remove int   `json:"remove"`
	Values []any `json:"values"`
}

// ListField stores an ordered sequence edited through splices.
type ListField struct{}

// List declares a list field defaulting to an empty sequence.
func List() ListField {
	return ListField{}
}

// Kind implements Field.
func (ListField) Kind() FieldKind { return KindList }

func (ListField) defaultValue() any {
	return []any{}
}

func (ListField) applyUpdate(value any, update any) (any, FieldChange, error) {
	current, err := asList(value)
	if err != nil {
		return nil, nil, err
	}
	var splices []ListSplice
	switch typed := update.(type) {
	case ListSplice:
		splices = []ListSplice{typed}
	case []ListSplice:
		splices = typed
	default:
		return nil, nil, fmt.Errorf("%w: expected list splice, got %T", ErrInvalidUpdate, update)
	}

	items := cloneList(current)
	change := make(ListChange, 0, len(splices))
	for _, splice := range splices {
		index, count := clampSplice(splice.Index, splice.Remove, len(items))
		change = append(change, ListSpliceChange{
			Index:    index,
			Removed:  slices.Clone(items[index : index+count]),
			Inserted: cloneList(splice.Values),
		})
		items = spliceSlice(items, index, count, cloneList(splice.Values))
	}
	return items, change, nil
}

func (ListField) applyPatch(value any, change FieldChange) (any, error) {
	current, err := asList(value)
	if err != nil {
		return nil, err
	}
	listChange, err := asListChange(change)
	if err != nil {
		return nil, err
	}
	items := cloneList(current)
	for _, splice := range listChange {
		index, count := clampSplice(splice.Index, len(splice.Removed), len(items))
		items = spliceSlice(items, index, count, cloneList(splice.Inserted))
	}
	return items, nil
}

// invertChange swaps removed and inserted items for each splice, keeping the
// original splice order.
func (ListField) invertChange(change FieldChange) (FieldChange, error) {
	listChange, err := asListChange(change)
	if err != nil {
		return nil, err
	}
	inverted := make(ListChange, 0, len(listChange))
	for _, splice := range listChange {
		inverted = append(inverted, ListSpliceChange{
			Index:    splice.Index,
			Removed:  splice.Inserted,
			Inserted: splice.Removed,
		})
	}
	return inverted, nil
}

func (ListField) mergeChange(first, second FieldChange) (FieldChange, error) {
	firstChange, err := asListChange(first)
	if err != nil {
		return nil, err
	}
	secondChange, err := asListChange(second)
	if err != nil {
		return nil, err
	}
	merged := make(ListChange, 0, len(firstChange)+len(secondChange))
	merged = append(merged, firstChange...)
	return append(merged, secondChange...), nil
}

func (ListField) decodeUpdate(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var splices []ListSplice
		if err := json.Unmarshal(trimmed, &splices); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
		return splices, nil
	}
	var splice ListSplice
	if err := json.Unmarshal(trimmed, &splice); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	return splice, nil
}

func (ListField) decodeValue(raw []byte) (any, error) {
	var values []any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return cloneList(values), nil
}

func asList(value any) ([]any, error) {
	if value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected list, got %T", ErrInvalidValue, value)
	}
	return items, nil
}

func asListChange(change FieldChange) (ListChange, error) {
	typed, ok := change.(ListChange)
	if !ok {
		return nil, fmt.Errorf("%w: expected list change, got %T", ErrInvalidChange, change)
	}
	return typed, nil
}
