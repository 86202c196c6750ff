package datastore

// ChangeType labels the origin of a change notification.
type ChangeType string

const (
	// ChangeTransaction marks a change committed by endTransaction.
	ChangeTransaction ChangeType = "transaction"
	// ChangeUndo marks a change produced by undoing a transaction.
	ChangeUndo ChangeType = "undo"
	// ChangeRedo marks a change produced by redoing a transaction.
	ChangeRedo ChangeType = "redo"
)

// FieldChange is the per-field diff produced by a field kind. The concrete
// type is one of RegisterChange, TextChange, ListChange or MapChange.
type FieldChange interface {
	changeKind() FieldKind
}

// RegisterChange records a whole-value replacement.
type RegisterChange struct {
	Previous any `json:"previous"`
	Current  any `json:"current"`
}

func (RegisterChange) changeKind() FieldKind { return KindRegister }

// TextSpliceChange records one applied text splice.
type TextSpliceChange struct {
	Index    int    `json:"index"`
	Removed  string `json:"removed"`
	Inserted string `json:"inserted"`
}

// TextChange is the ordered list of splices applied to a text field.
type TextChange []TextSpliceChange

func (TextChange) changeKind() FieldKind { return KindText }

// ListSpliceChange records one applied list splice.
type ListSpliceChange struct {
	Index    int   `json:"index"`
	Removed  []any `json:"removed"`
	Inserted []any `json:"inserted"`
}

// ListChange is the ordered list of splices applied to a list field.
type ListChange []ListSpliceChange

func (ListChange) changeKind() FieldKind { return KindList }

// MapChange records the touched keys of a map field. A nil value means the
// key was absent (previous) or deleted (current).
type MapChange struct {
	Previous map[string]any `json:"previous"`
	Current  map[string]any `json:"current"`
}

func (MapChange) changeKind() FieldKind { return KindMap }

// RecordChange maps field names to their change.
type RecordChange map[string]FieldChange

// TableChange maps record ids to their change.
type TableChange map[RecordID]RecordChange

// Change maps schema ids to table changes; it is the diff of one transaction.
type Change map[string]TableChange

// IsEmpty reports whether the change touches no table.
func (c Change) IsEmpty() bool {
	return len(c) == 0
}

// ChangeEvent is the payload of a change notification.
type ChangeEvent struct {
	StoreID       uint32     `json:"storeId"`
	TransactionID string     `json:"transactionId"`
	Type          ChangeType `json:"type"`
	Change        Change     `json:"change"`
}

// FieldCount returns the number of field changes per schema id.
func (e ChangeEvent) FieldCount() map[string]int {
	counts := make(map[string]int, len(e.Change))
	for schemaID, tableChange := range e.Change {
		for _, recordChange := range tableChange {
			counts[schemaID] += len(recordChange)
		}
	}
	return counts
}
