package datastore

import (
	"maps"

	json "github.com/goccy/go-json"
)

const (
	recordIDKey       = "$id"
	recordMetadataKey = "@@metadata"
)

// Record is one immutable version of a keyed value shaped by a schema.
// Writes never mutate a Record; the owning table replaces it with a new one,
// so any *Record obtained from a table remains a valid snapshot.
type Record struct {
	id       RecordID
	metadata map[string]any
	values   map[string]any
}

func newRecord(schema Schema, id RecordID) *Record {
	values := make(map[string]any, len(schema.Fields))
	for name, field := range schema.Fields {
		values[name] = field.defaultValue()
	}
	return &Record{id: id, metadata: map[string]any{}, values: values}
}

func (r *Record) withValues(updated map[string]any) *Record {
	values := maps.Clone(r.values)
	maps.Copy(values, updated)
	return &Record{id: r.id, metadata: r.metadata, values: values}
}

// ID returns the record identifier.
func (r *Record) ID() RecordID {
	return r.id
}

// Metadata returns a copy of the record metadata.
func (r *Record) Metadata() map[string]any {
	return cloneMap(r.metadata)
}

// Get returns the value of a field. Composite values are deep copies.
func (r *Record) Get(name string) (any, bool) {
	value, ok := r.values[name]
	if !ok {
		return nil, false
	}
	return cloneValue(value), true
}

// Value returns the value of a field, or nil when the field is unknown.
func (r *Record) Value(name string) any {
	value, _ := r.Get(name)
	return value
}

// Text returns the value of a text field.
func (r *Record) Text(name string) string {
	text, _ := r.values[name].(string)
	return text
}

// List returns a copy of a list field.
func (r *Record) List(name string) []any {
	items, _ := r.values[name].([]any)
	return cloneList(items)
}

// Map returns a copy of a map field.
func (r *Record) Map(name string) map[string]any {
	entries, _ := r.values[name].(map[string]any)
	return cloneMap(entries)
}

// Values returns a copy of all field values keyed by field name.
func (r *Record) Values() map[string]any {
	values := make(map[string]any, len(r.values))
	for name := range r.values {
		values[name] = r.Value(name)
	}
	return values
}

// MarshalJSON encodes the record with its reserved "$id" and "@@metadata" keys.
func (r *Record) MarshalJSON() ([]byte, error) {
	payload := make(map[string]any, len(r.values)+2)
	for name, value := range r.values {
		payload[name] = value
	}
	payload[recordIDKey] = r.id
	payload[recordMetadataKey] = r.metadata
	return json.Marshal(payload)
}
