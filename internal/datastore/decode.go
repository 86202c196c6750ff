package datastore

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// DecodeTableUpdate parses a JSON object of the shape
// {recordId: {field: update}} into a TableUpdate for the given schema.
// Text updates are {"index","remove","text"} objects or arrays of them,
// list updates are {"index","remove","values"} objects or arrays of them,
// map updates are objects whose null values delete keys, and register
// updates are any JSON value.
func DecodeTableUpdate(schema Schema, raw []byte) (TableUpdate, error) {
	var payload map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	return decodeTablePayload(schema, payload)
}

// DecodeChangeRequest parses {schemaId: {recordId: {field: update}}} into
// table updates keyed by schema id, resolving schemas through lookup.
func DecodeChangeRequest(raw []byte, lookup func(schemaID string) (Schema, error)) (map[string]TableUpdate, error) {
	var payload map[string]map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	updates := make(map[string]TableUpdate, len(payload))
	for _, schemaID := range sortedKeys(payload) {
		schema, err := lookup(schemaID)
		if err != nil {
			return nil, err
		}
		tableUpdate, err := decodeTablePayload(schema, payload[schemaID])
		if err != nil {
			return nil, err
		}
		updates[schemaID] = tableUpdate
	}
	return updates, nil
}

func decodeTablePayload(schema Schema, payload map[string]map[string]json.RawMessage) (TableUpdate, error) {
	updates := make(TableUpdate, len(payload))
	for rawID, fields := range payload {
		id, err := NewRecordID(rawID)
		if err != nil {
			return nil, err
		}
		recordUpdate := make(RecordUpdate, len(fields))
		for name, rawUpdate := range fields {
			field, ok := schema.Field(name)
			if !ok {
				return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, schema.ID, name)
			}
			update, err := field.decodeUpdate(rawUpdate)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", schema.ID, name, err)
			}
			recordUpdate[name] = update
		}
		updates[id] = recordUpdate
	}
	return updates, nil
}
