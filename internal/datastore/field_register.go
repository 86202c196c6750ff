package datastore

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// RegisterField stores an atomic value replaced whole on every update.
type RegisterField struct {
	initial any
}

// Register declares a register field with the provided initial value.
func Register(initial any) RegisterField {
	return RegisterField{initial: initial}
}

// Boolean declares a register field defaulting to false.
func Boolean() RegisterField {
	return Register(false)
}

// Number declares a register field defaulting to zero. Numbers are held as
// float64 so that restored snapshots compare equal to live values.
func Number() RegisterField {
	return Register(float64(0))
}

// String declares a register field defaulting to the empty string.
func String() RegisterField {
	return Register("")
}

// Kind implements Field.
func (RegisterField) Kind() FieldKind { return KindRegister }

func (f RegisterField) defaultValue() any {
	return cloneValue(f.initial)
}

func (RegisterField) applyUpdate(value any, update any) (any, FieldChange, error) {
	return cloneValue(update), RegisterChange{Previous: value, Current: cloneValue(update)}, nil
}

func (RegisterField) applyPatch(_ any, change FieldChange) (any, error) {
	registerChange, err := asRegisterChange(change)
	if err != nil {
		return nil, err
	}
	return cloneValue(registerChange.Current), nil
}

func (RegisterField) invertChange(change FieldChange) (FieldChange, error) {
	registerChange, err := asRegisterChange(change)
	if err != nil {
		return nil, err
	}
	return RegisterChange{Previous: registerChange.Current, Current: registerChange.Previous}, nil
}

func (RegisterField) mergeChange(first, second FieldChange) (FieldChange, error) {
	firstChange, err := asRegisterChange(first)
	if err != nil {
		return nil, err
	}
	secondChange, err := asRegisterChange(second)
	if err != nil {
		return nil, err
	}
	return RegisterChange{Previous: firstChange.Previous, Current: secondChange.Current}, nil
}

func (RegisterField) decodeUpdate(raw []byte) (any, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	return value, nil
}

func (RegisterField) decodeValue(raw []byte) (any, error) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return value, nil
}

func asRegisterChange(change FieldChange) (RegisterChange, error) {
	typed, ok := change.(RegisterChange)
	if !ok {
		return RegisterChange{}, fmt.Errorf("%w: expected register change, got %T", ErrInvalidChange, change)
	}
	return typed, nil
}
