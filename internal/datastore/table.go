package datastore

import (
	"fmt"
	"slices"
	"strings"
)

// RecordUpdate maps field names to per-kind update requests:
// any value for registers, TextSplice or []TextSplice for text,
// ListSplice or []ListSplice for lists, MapUpdate for maps.
type RecordUpdate map[string]any

// TableUpdate maps record ids to their update.
type TableUpdate map[RecordID]RecordUpdate

// Table holds the records of one schema within a store.
type Table struct {
	schema  Schema
	context *transactionContext
	records map[RecordID]*Record
}

func newTable(schema Schema, context *transactionContext, records []*Record) *Table {
	table := &Table{
		schema:  schema,
		context: context,
		records: make(map[RecordID]*Record, len(records)),
	}
	for _, record := range records {
		table.records[record.id] = record
	}
	return table
}

// Schema returns the schema of the table.
func (t *Table) Schema() Schema {
	return t.schema
}

// Get returns the record with the given id.
func (t *Table) Get(id RecordID) (*Record, bool) {
	record, ok := t.records[id]
	return record, ok
}

// Has reports whether a record with the given id exists.
func (t *Table) Has(id RecordID) bool {
	_, ok := t.records[id]
	return ok
}

// Records returns the current records ordered by id.
func (t *Table) Records() []*Record {
	records := make([]*Record, 0, len(t.records))
	for _, record := range t.records {
		records = append(records, record)
	}
	slices.SortFunc(records, func(left, right *Record) int {
		return strings.Compare(string(left.id), string(right.id))
	})
	return records
}

// Size returns the number of records.
func (t *Table) Size() int {
	return len(t.records)
}

// IsEmpty reports whether the table holds no records.
func (t *Table) IsEmpty() bool {
	return len(t.records) == 0
}

// Update applies per-field updates to one or more records, creating missing
// records with default values. It fails outside of a transaction. The call
// is all-or-nothing: on error neither the records nor the transaction change
// are modified.
func (t *Table) Update(updates TableUpdate) error {
	if !t.context.inTransaction {
		return ErrNotInTransaction
	}

	type stagedField struct {
		name   string
		change FieldChange
	}
	stagedRecords := make(map[RecordID]*Record, len(updates))
	stagedChanges := make(map[RecordID][]stagedField, len(updates))

	for _, id := range sortedKeys(updates) {
		if err := id.validate(); err != nil {
			return err
		}
		previous, ok := t.records[id]
		if !ok {
			previous = newRecord(t.schema, id)
		}
		recordUpdate := updates[id]
		values := make(map[string]any, len(recordUpdate))
		for _, name := range sortedKeys(recordUpdate) {
			field, ok := t.schema.Field(name)
			if !ok {
				return fmt.Errorf("%w: %s.%s", ErrUnknownField, t.schema.ID, name)
			}
			value, change, err := field.applyUpdate(previous.values[name], recordUpdate[name])
			if err != nil {
				return fmt.Errorf("%s.%s: %w", t.schema.ID, name, err)
			}
			if existing, ok := t.context.fieldChange(t.schema.ID, id, name); ok {
				change, err = field.mergeChange(existing, change)
				if err != nil {
					return fmt.Errorf("%s.%s: %w", t.schema.ID, name, err)
				}
			}
			values[name] = value
			stagedChanges[id] = append(stagedChanges[id], stagedField{name: name, change: change})
		}
		stagedRecords[id] = previous.withValues(values)
	}

	for id, record := range stagedRecords {
		t.records[id] = record
		for _, staged := range stagedChanges[id] {
			t.context.recordFieldChange(t.schema.ID, id, staged.name, staged.change)
		}
	}
	return nil
}

// patch replays a change forward, creating missing records, and returns the
// applied change.
func (t *Table) patch(change TableChange) (TableChange, error) {
	staged, err := t.stagePatch(change)
	if err != nil {
		return nil, err
	}
	t.commitStaged(staged)
	return change, nil
}

// unpatch replays the inverse of a change and returns that inverse, which is
// the change that redoes what was just undone.
func (t *Table) unpatch(change TableChange) (TableChange, error) {
	inverse, err := t.invert(change)
	if err != nil {
		return nil, err
	}
	if _, err := t.patch(inverse); err != nil {
		return nil, err
	}
	return inverse, nil
}

// stagePatch computes the records a change produces without storing them.
func (t *Table) stagePatch(change TableChange) (map[RecordID]*Record, error) {
	staged := make(map[RecordID]*Record, len(change))
	for _, id := range sortedKeys(change) {
		record, err := t.applyRecordPatch(id, change[id])
		if err != nil {
			return nil, err
		}
		staged[id] = record
	}
	return staged, nil
}

func (t *Table) commitStaged(staged map[RecordID]*Record) {
	for id, record := range staged {
		t.records[id] = record
	}
}

// invert returns the inverse of every field change in a table change.
func (t *Table) invert(change TableChange) (TableChange, error) {
	inverse := make(TableChange, len(change))
	for _, id := range sortedKeys(change) {
		recordInverse := make(RecordChange, len(change[id]))
		for _, name := range sortedKeys(change[id]) {
			field, ok := t.schema.Field(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t.schema.ID, name)
			}
			inverted, err := field.invertChange(change[id][name])
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t.schema.ID, name, err)
			}
			recordInverse[name] = inverted
		}
		inverse[id] = recordInverse
	}
	return inverse, nil
}

func (t *Table) applyRecordPatch(id RecordID, change RecordChange) (*Record, error) {
	previous, ok := t.records[id]
	if !ok {
		previous = newRecord(t.schema, id)
	}
	values := make(map[string]any, len(change))
	for _, name := range sortedKeys(change) {
		field, ok := t.schema.Field(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, t.schema.ID, name)
		}
		value, err := field.applyPatch(previous.values[name], change[name])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.schema.ID, name, err)
		}
		values[name] = value
	}
	return previous.withValues(values), nil
}
