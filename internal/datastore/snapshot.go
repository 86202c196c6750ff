package datastore

import (
	"fmt"

	json "github.com/goccy/go-json"
)

func encodeSnapshot(tables []*Table) (string, error) {
	state := make(map[string][]*Record, len(tables))
	for _, table := range tables {
		state[table.schema.ID] = table.Records()
	}
	encoded, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// decodeSnapshot parses a snapshot into records per schema id. Schemas the
// snapshot does not mention start empty, unknown schemas are ignored and
// missing fields take their default value.
func decodeSnapshot(state string, schemas []Schema) (map[string][]*Record, error) {
	var raw map[string][]map[string]json.RawMessage
	if err := json.Unmarshal([]byte(state), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	restored := make(map[string][]*Record, len(schemas))
	for _, schema := range schemas {
		rawRecords := raw[schema.ID]
		records := make([]*Record, 0, len(rawRecords))
		for index, rawRecord := range rawRecords {
			record, err := decodeRecord(schema, rawRecord)
			if err != nil {
				return nil, fmt.Errorf("%w: schema %s record %d: %v", ErrInvalidSnapshot, schema.ID, index, err)
			}
			records = append(records, record)
		}
		restored[schema.ID] = records
	}
	return restored, nil
}

func decodeRecord(schema Schema, raw map[string]json.RawMessage) (*Record, error) {
	var rawID string
	if err := json.Unmarshal(raw[recordIDKey], &rawID); err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidRecordID, recordIDKey)
	}
	id, err := NewRecordID(rawID)
	if err != nil {
		return nil, err
	}

	record := newRecord(schema, id)
	if rawMetadata, ok := raw[recordMetadataKey]; ok {
		var metadata map[string]any
		if err := json.Unmarshal(rawMetadata, &metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidValue, err)
		}
		if metadata != nil {
			record.metadata = metadata
		}
	}
	for name, field := range schema.Fields {
		rawValue, ok := raw[name]
		if !ok {
			continue
		}
		value, err := field.decodeValue(rawValue)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		record.values[name] = cloneValue(value)
	}
	return record, nil
}
