package datastore

import "errors"

var (
	// ErrInvalidSchema indicates that one or more schemas failed validation.
	ErrInvalidSchema = errors.New("datastore: schema validation failed")
	// ErrInvalidRecordID indicates that a record identifier is empty or exceeds storage bounds.
	ErrInvalidRecordID = errors.New("datastore: invalid record id")
	// ErrNotInTransaction indicates a table mutation outside of a transaction.
	ErrNotInTransaction = errors.New("datastore: a table can only be updated during a transaction")
	// ErrAlreadyInTransaction indicates a nested beginTransaction call.
	ErrAlreadyInTransaction = errors.New("datastore: already in a transaction")
	// ErrNoTransaction indicates endTransaction without a matching beginTransaction.
	ErrNoTransaction = errors.New("datastore: no transaction in progress")
	// ErrUnknownSchema indicates a table lookup for a schema the store does not own.
	ErrUnknownSchema = errors.New("datastore: no table found for schema")
	// ErrUnknownField indicates an update or change naming a field absent from the schema.
	ErrUnknownField = errors.New("datastore: unknown field")
	// ErrInvalidUpdate indicates an update request whose shape does not match the field kind.
	ErrInvalidUpdate = errors.New("datastore: invalid field update")
	// ErrInvalidChange indicates a change record whose shape does not match the field kind.
	ErrInvalidChange = errors.New("datastore: invalid field change")
	// ErrInvalidValue indicates a stored or restored value whose shape does not match the field kind.
	ErrInvalidValue = errors.New("datastore: invalid field value")
	// ErrInvalidSnapshot indicates a serialized snapshot that cannot be restored.
	ErrInvalidSnapshot = errors.New("datastore: invalid snapshot")
	// ErrUndoUnsupported is returned by stores without history tracking.
	ErrUndoUnsupported = errors.New("datastore: store does not support undo/redo")
	// ErrNothingToUndo indicates an empty undo history.
	ErrNothingToUndo = errors.New("datastore: nothing to undo")
	// ErrNothingToRedo indicates that no undone transaction is available to redo.
	ErrNothingToRedo = errors.New("datastore: nothing to redo")
	// ErrUndoTargetMismatch indicates an undo request for anything but the latest action.
	ErrUndoTargetMismatch = errors.New("datastore: can only undo the latest action")
	// ErrRedoTargetMismatch indicates a redo request for anything but the previously undone action.
	ErrRedoTargetMismatch = errors.New("datastore: can only redo the previously undone action")
	// ErrInvalidHistorySize indicates a negative undo history bound.
	ErrInvalidHistorySize = errors.New("datastore: history size must not be negative")
)
