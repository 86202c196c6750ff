package datastore

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// TextSplice is a text update: remove Remove characters at Index, then insert Text.
type TextSplice struct {
	Index  int    `json:"index"`
	Remove int    `json:"remove"`
	Text   string `json:"text"`
}

// TextField stores a string edited through splices. Indices count runes.
type TextField struct{}

// Text declares a text field defaulting to the empty string.
func Text() TextField {
	return TextField{}
}

// Kind implements Field.
func (TextField) Kind() FieldKind { return KindText }

func (TextField) defaultValue() any {
	return ""
}

func (TextField) applyUpdate(value any, update any) (any, FieldChange, error) {
	current, err := asText(value)
	if err != nil {
		return nil, nil, err
	}
	var splices []TextSplice
	switch typed := update.(type) {
	case TextSplice:
		splices = []TextSplice{typed}
	case []TextSplice:
		splices = typed
	default:
		return nil, nil, fmt.Errorf("%w: expected text splice, got %T", ErrInvalidUpdate, update)
	}

	runes := []rune(current)
	change := make(TextChange, 0, len(splices))
	for _, splice := range splices {
		index, count := clampSplice(splice.Index, splice.Remove, len(runes))
		change = append(change, TextSpliceChange{
			Index:    index,
			Removed:  string(runes[index : index+count]),
			Inserted: splice.Text,
		})
		runes = spliceSlice(runes, index, count, []rune(splice.Text))
	}
	return string(runes), change, nil
}

func (TextField) applyPatch(value any, change FieldChange) (any, error) {
	current, err := asText(value)
	if err != nil {
		return nil, err
	}
	textChange, err := asTextChange(change)
	if err != nil {
		return nil, err
	}
	runes := []rune(current)
	for _, splice := range textChange {
		index, count := clampSplice(splice.Index, len([]rune(splice.Removed)), len(runes))
		runes = spliceSlice(runes, index, count, []rune(splice.Inserted))
	}
	return string(runes), nil
}

// invertChange swaps removed and inserted text for each splice, keeping the
// original splice order.
func (TextField) invertChange(change FieldChange) (FieldChange, error) {
	textChange, err := asTextChange(change)
	if err != nil {
		return nil, err
	}
	inverted := make(TextChange, 0, len(textChange))
	for _, splice := range textChange {
		inverted = append(inverted, TextSpliceChange{
			Index:    splice.Index,
			Removed:  splice.Inserted,
			Inserted: splice.Removed,
		})
	}
	return inverted, nil
}

func (TextField) mergeChange(first, second FieldChange) (FieldChange, error) {
	firstChange, err := asTextChange(first)
	if err != nil {
		return nil, err
	}
	secondChange, err := asTextChange(second)
	if err != nil {
		return nil, err
	}
	merged := make(TextChange, 0, len(firstChange)+len(secondChange))
	merged = append(merged, firstChange...)
	return append(merged, secondChange...), nil
}

func (TextField) decodeUpdate(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var splices []TextSplice
		if err := json.Unmarshal(trimmed, &splices); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
		}
		return splices, nil
	}
	var splice TextSplice
	if err := json.Unmarshal(trimmed, &splice); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	return splice, nil
}

func (TextField) decodeValue(raw []byte) (any, error) {
	var value *string
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if value == nil {
		return "", nil
	}
	return *value, nil
}

func asText(value any) (string, error) {
	if value == nil {
		return "", nil
	}
	text, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected string, got %T", ErrInvalidValue, value)
	}
	return text, nil
}

func asTextChange(change FieldChange) (TextChange, error) {
	typed, ok := change.(TextChange)
	if !ok {
		return nil, fmt.Errorf("%w: expected text change, got %T", ErrInvalidChange, change)
	}
	return typed, nil
}
