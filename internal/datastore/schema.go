package datastore

import (
	"fmt"
	"strings"
)

// FieldKind enumerates the supported field behaviors.
type FieldKind string

const (
	// KindRegister replaces the whole value on update.
	KindRegister FieldKind = "register"
	// KindText edits a string through splices.
	KindText FieldKind = "text"
	// KindList edits an ordered sequence through splices.
	KindList FieldKind = "list"
	// KindMap edits a string-keyed dictionary through partial objects.
	KindMap FieldKind = "map"
)

// Field defines how values of one field are created, updated, patched,
// inverted and merged. The interface is sealed: the implementations are
// RegisterField, TextField, ListField and MapField.
type Field interface {
	Kind() FieldKind

	defaultValue() any
	applyUpdate(value any, update any) (any, FieldChange, error)
	applyPatch(value any, change FieldChange) (any, error)
	invertChange(change FieldChange) (FieldChange, error)
	mergeChange(first, second FieldChange) (FieldChange, error)
	decodeUpdate(raw []byte) (any, error)
	decodeValue(raw []byte) (any, error)
}

// Schema is a named set of field declarations for one record type.
type Schema struct {
	ID     string
	Fields map[string]Field
}

// Field returns the named field declaration.
func (s Schema) Field(name string) (Field, bool) {
	field, ok := s.Fields[name]
	return field, ok && field != nil
}

// FieldNames returns the declared field names in sorted order.
func (s Schema) FieldNames() []string {
	return sortedKeys(s.Fields)
}

var reservedFieldPrefixes = []string{"$", "@"}

// ValidateSchema returns every violation found in the schema.
func ValidateSchema(schema Schema) []string {
	var violations []string
	if strings.TrimSpace(schema.ID) == "" {
		violations = append(violations, "schema id must not be empty")
	}
	for _, name := range schema.FieldNames() {
		if name == "" {
			violations = append(violations, "field names must not be empty")
			continue
		}
		for _, prefix := range reservedFieldPrefixes {
			if strings.HasPrefix(name, prefix) {
				violations = append(violations, fmt.Sprintf("field name '%s' must not begin with '%s'", name, prefix))
			}
		}
		if schema.Fields[name] == nil {
			violations = append(violations, fmt.Sprintf("field '%s' has no field kind", name))
		}
	}
	return violations
}

// SchemaReport lists the violations of one schema.
type SchemaReport struct {
	SchemaID   string
	Violations []string
}

// SchemaError aggregates the reports of every invalid schema.
type SchemaError struct {
	Reports []SchemaReport
}

func (e *SchemaError) Error() string {
	paragraphs := make([]string, 0, len(e.Reports))
	for _, report := range e.Reports {
		paragraphs = append(paragraphs, fmt.Sprintf("Schema '%s' validation failed:\n%s", report.SchemaID, strings.Join(report.Violations, "\n")))
	}
	return strings.Join(paragraphs, "\n\n")
}

func (e *SchemaError) Unwrap() error {
	return ErrInvalidSchema
}

// ValidateSchemas validates every schema and rejects duplicate ids. All
// violations are collected into a single *SchemaError.
func ValidateSchemas(schemas []Schema) error {
	seen := make(map[string]struct{}, len(schemas))
	var reports []SchemaReport
	for _, schema := range schemas {
		violations := ValidateSchema(schema)
		if _, duplicate := seen[schema.ID]; duplicate && schema.ID != "" {
			violations = append(violations, "schema id is declared more than once")
		}
		seen[schema.ID] = struct{}{}
		if len(violations) > 0 {
			reports = append(reports, SchemaReport{SchemaID: schema.ID, Violations: violations})
		}
	}
	if len(reports) == 0 {
		return nil
	}
	return &SchemaError{Reports: reports}
}
