package config

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/datastore"
	"github.com/spf13/cast"
)

// Field types accepted in schema definitions.
const (
	FieldTypeRegister = "register"
	FieldTypeBoolean  = "boolean"
	FieldTypeNumber   = "number"
	FieldTypeString   = "string"
	FieldTypeText     = "text"
	FieldTypeList     = "list"
	FieldTypeMap      = "map"
)

// SchemaDefinition declares one schema in configuration.
type SchemaDefinition struct {
	ID     string            `mapstructure:"id"`
	Fields []FieldDefinition `mapstructure:"fields"`
}

// FieldDefinition declares one field. Default applies to register-backed types only.
type FieldDefinition struct {
	Name    string `mapstructure:"name"`
	Type    string `mapstructure:"type"`
	Default any    `mapstructure:"default"`
}

// BuildSchemas converts definitions into datastore schemas. Schema-level
// rules such as reserved field prefixes are left to datastore.ValidateSchemas.
func BuildSchemas(definitions []SchemaDefinition) ([]datastore.Schema, error) {
	schemas := make([]datastore.Schema, 0, len(definitions))
	for _, definition := range definitions {
		fields := make(map[string]datastore.Field, len(definition.Fields))
		for _, fieldDefinition := range definition.Fields {
			if _, duplicate := fields[fieldDefinition.Name]; duplicate {
				return nil, fmt.Errorf("%w: schema %s declares field %q more than once", ErrInvalidConfig, definition.ID, fieldDefinition.Name)
			}
			field, err := buildField(fieldDefinition)
			if err != nil {
				return nil, fmt.Errorf("%w: schema %s field %q: %v", ErrInvalidConfig, definition.ID, fieldDefinition.Name, err)
			}
			fields[fieldDefinition.Name] = field
		}
		schemas = append(schemas, datastore.Schema{ID: definition.ID, Fields: fields})
	}
	return schemas, nil
}

func buildField(definition FieldDefinition) (datastore.Field, error) {
	fieldType := strings.ToLower(strings.TrimSpace(definition.Type))
	switch fieldType {
	case FieldTypeRegister:
		return datastore.Register(definition.Default), nil
	case FieldTypeBoolean:
		if definition.Default == nil {
			return datastore.Boolean(), nil
		}
		value, err := cast.ToBoolE(definition.Default)
		if err != nil {
			return nil, err
		}
		return datastore.Register(value), nil
	case FieldTypeNumber:
		if definition.Default == nil {
			return datastore.Number(), nil
		}
		value, err := cast.ToFloat64E(definition.Default)
		if err != nil {
			return nil, err
		}
		return datastore.Register(value), nil
	case FieldTypeString:
		if definition.Default == nil {
			return datastore.String(), nil
		}
		value, err := cast.ToStringE(definition.Default)
		if err != nil {
			return nil, err
		}
		return datastore.Register(value), nil
	case FieldTypeText, FieldTypeList, FieldTypeMap:
		if definition.Default != nil {
			return nil, fmt.Errorf("%s fields do not take a default", fieldType)
		}
		switch fieldType {
		case FieldTypeText:
			return datastore.Text(), nil
		case FieldTypeList:
			return datastore.List(), nil
		default:
			return datastore.Map(), nil
		}
	default:
		return nil, fmt.Errorf("unknown field type %q", definition.Type)
	}
}
