package datastore

import (
	"fmt"
	"testing"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/scheduler"
)

const (
	firstSchemaID  = "test-schema-1"
	secondSchemaID = "test-schema-2"
)

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("tx-%d", p.next), nil
}

func newTestSchema(id string) Schema {
	return Schema{
		ID: id,
		Fields: map[string]Field{
			"content":  Text(),
			"count":    Number(),
			"enabled":  Boolean(),
			"tags":     Map(),
			"links":    List(),
			"metadata": Register(map[string]any{"id": "identifier"}),
		},
	}
}

func testStoreConfig(loop Scheduler) StoreConfig {
	return StoreConfig{
		Schemas:    []Schema{newTestSchema(firstSchemaID), newTestSchema(secondSchemaID)},
		Scheduler:  loop,
		IDProvider: &sequenceIDProvider{},
	}
}

func mustStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(testStoreConfig(scheduler.NewLoop()))
	if err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	return store
}

func mustHistoryStore(t *testing.T, maxHistory int) *HistoryStore {
	t.Helper()
	cfg := testStoreConfig(scheduler.NewLoop())
	cfg.MaxHistory = maxHistory
	store, err := NewHistoryStore(cfg)
	if err != nil {
		t.Fatalf("unexpected history store error: %v", err)
	}
	return store
}

func mustTable(t *testing.T, store Datastore, schemaID string) *Table {
	t.Helper()
	table, err := store.TableByID(schemaID)
	if err != nil {
		t.Fatalf("unexpected table error: %v", err)
	}
	return table
}

func mustRecord(t *testing.T, table *Table, id RecordID) *Record {
	t.Helper()
	record, ok := table.Get(id)
	if !ok {
		t.Fatalf("expected record %s to exist", id)
	}
	return record
}

// mustCommit runs one transaction applying update to the table and returns its id.
func mustCommit(t *testing.T, store Datastore, table *Table, update TableUpdate) string {
	t.Helper()
	transactionID, err := store.BeginTransaction()
	if err != nil {
		t.Fatalf("unexpected begin error: %v", err)
	}
	if err := table.Update(update); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}
	if err := store.EndTransaction(); err != nil {
		t.Fatalf("unexpected end error: %v", err)
	}
	return transactionID
}
