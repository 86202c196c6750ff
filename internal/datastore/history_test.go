package datastore

import (
	"errors"
	"reflect"
	"testing"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/scheduler"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHistoryStoreUndoRedoScenario(testContext *testing.T) {
	store := mustHistoryStore(testContext, 0)
	table := mustTable(testContext, store, firstSchemaID)

	var events []ChangeEvent
	store.Changed().Connect(func(event ChangeEvent) { events = append(events, event) })

	t1 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"enabled": true}})
	t2 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"content": TextSplice{Text: "hello"}}})

	if err := store.Undo(t2); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	record := mustRecord(testContext, table, "record-1")
	if record.Text("content") != "" || record.Value("enabled") != true {
		testContext.Fatalf("expected content reverted only, got %v", record.Values())
	}

	if err := store.Undo(t1); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	if mustRecord(testContext, table, "record-1").Value("enabled") != false {
		testContext.Fatalf("expected enabled reverted")
	}

	if err := store.Redo(t1); err != nil {
		testContext.Fatalf("unexpected redo error: %v", err)
	}
	if err := store.Redo(t2); err != nil {
		testContext.Fatalf("unexpected redo error: %v", err)
	}
	record = mustRecord(testContext, table, "record-1")
	if record.Text("content") != "hello" || record.Value("enabled") != true {
		testContext.Fatalf("expected both transactions reapplied, got %v", record.Values())
	}

	expectedTypes := []ChangeType{ChangeTransaction, ChangeTransaction, ChangeUndo, ChangeUndo, ChangeRedo, ChangeRedo}
	expectedIDs := []string{t1, t2, t2, t1, t1, t2}
	if len(events) != len(expectedTypes) {
		testContext.Fatalf("expected %d events, got %d", len(expectedTypes), len(events))
	}
	for index, event := range events {
		if event.Type != expectedTypes[index] || event.TransactionID != expectedIDs[index] {
			testContext.Fatalf("event %d: expected %s/%s, got %s/%s", index, expectedTypes[index], expectedIDs[index], event.Type, event.TransactionID)
		}
	}
}

func TestHistoryStoreUndoEventCarriesInverseChange(testContext *testing.T) {
	store := mustHistoryStore(testContext, 0)
	table := mustTable(testContext, store, firstSchemaID)
	transactionID := mustCommit(testContext, store, table, TableUpdate{"record-1": {"count": float64(5)}})

	var undone ChangeEvent
	store.Changed().Connect(func(event ChangeEvent) { undone = event })
	versionBefore := store.Version()
	if err := store.Undo(transactionID); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	change := undone.Change[firstSchemaID]["record-1"]["count"]
	if !reflect.DeepEqual(change, RegisterChange{Previous: float64(5), Current: float64(0)}) {
		testContext.Fatalf("unexpected undo change %#v", change)
	}
	if store.Version() != versionBefore {
		testContext.Fatalf("expected undo to keep the version, got %d", store.Version())
	}
	if store.InTransaction() {
		testContext.Fatalf("expected internal transaction to be closed")
	}
}

func TestHistoryStoreRejectsOutOfOrderTargets(testContext *testing.T) {
	store := mustHistoryStore(testContext, 0)
	table := mustTable(testContext, store, firstSchemaID)

	if err := store.Undo("tx-unknown"); !errors.Is(err, ErrNothingToUndo) {
		testContext.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
	t1 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"enabled": true}})
	t2 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"enabled": false}})

	if err := store.Undo(t1); !errors.Is(err, ErrUndoTargetMismatch) {
		testContext.Fatalf("expected ErrUndoTargetMismatch, got %v", err)
	}
	if target, _ := store.UndoTarget(); target != t2 {
		testContext.Fatalf("expected failed undo to keep the history, got target %q", target)
	}
	if err := store.Redo(t2); !errors.Is(err, ErrNothingToRedo) {
		testContext.Fatalf("expected ErrNothingToRedo, got %v", err)
	}

	if err := store.Undo(t2); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	if err := store.Redo(t1); !errors.Is(err, ErrRedoTargetMismatch) {
		testContext.Fatalf("expected ErrRedoTargetMismatch, got %v", err)
	}
	if target, ok := store.RedoTarget(); !ok || target != t2 {
		testContext.Fatalf("expected redo target %s, got %q", t2, target)
	}
}

func TestHistoryStoreDiscardsRedoBranchOnCommit(testContext *testing.T) {
	store := mustHistoryStore(testContext, 0)
	table := mustTable(testContext, store, firstSchemaID)

	t1 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"enabled": true}})
	if err := store.Undo(t1); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	t2 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"count": float64(1)}})

	if err := store.Redo(t1); !errors.Is(err, ErrNothingToRedo) {
		testContext.Fatalf("expected discarded branch, got %v", err)
	}
	if target, _ := store.UndoTarget(); target != t2 {
		testContext.Fatalf("expected undo target %s, got %q", t2, target)
	}
}

func TestHistoryStoreBoundsHistory(testContext *testing.T) {
	store := mustHistoryStore(testContext, 2)
	table := mustTable(testContext, store, firstSchemaID)

	t1 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"count": float64(1)}})
	t2 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"count": float64(2)}})
	t3 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"count": float64(3)}})

	if err := store.Undo(t3); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	if err := store.Undo(t2); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	if err := store.Undo(t1); !errors.Is(err, ErrNothingToUndo) {
		testContext.Fatalf("expected evicted transaction to be gone, got %v", err)
	}
	if mustRecord(testContext, table, "record-1").Value("count") != float64(1) {
		testContext.Fatalf("expected count 1 after two undos")
	}
}

func TestHistoryStoreQueuesUndoDuringTransaction(testContext *testing.T) {
	store := mustHistoryStore(testContext, 0)
	table := mustTable(testContext, store, firstSchemaID)

	var events []ChangeEvent
	store.Changed().Connect(func(event ChangeEvent) { events = append(events, event) })

	t1 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"enabled": true}})
	if _, err := store.BeginTransaction(); err != nil {
		testContext.Fatalf("unexpected begin error: %v", err)
	}
	if err := store.Undo(t1); err != nil {
		testContext.Fatalf("expected undo to be queued, got %v", err)
	}
	if store.QueuedUndoRedo() != 1 {
		testContext.Fatalf("expected one queued request, got %d", store.QueuedUndoRedo())
	}
	if mustRecord(testContext, table, "record-1").Value("enabled") != true {
		testContext.Fatalf("expected queued undo to wait for the scheduling boundary")
	}

	store.Flush()

	if store.InTransaction() {
		testContext.Fatalf("expected open transaction to be auto-closed")
	}
	if store.QueuedUndoRedo() != 0 {
		testContext.Fatalf("expected queue to be drained")
	}
	if mustRecord(testContext, table, "record-1").Value("enabled") != false {
		testContext.Fatalf("expected queued undo to be applied")
	}
	last := events[len(events)-1]
	if last.Type != ChangeUndo || last.TransactionID != t1 {
		testContext.Fatalf("expected undo event for %s, got %s/%s", t1, last.Type, last.TransactionID)
	}
	if target, ok := store.RedoTarget(); !ok || target != t1 {
		testContext.Fatalf("expected %s to be redoable, got %q", t1, target)
	}
}

func TestHistoryStoreSkipsUnknownSchemas(testContext *testing.T) {
	store := mustHistoryStore(testContext, 0)
	table := mustTable(testContext, store, firstSchemaID)
	store.history.Push(ChangeEvent{
		TransactionID: "tx-foreign",
		Type:          ChangeTransaction,
		Change: Change{
			"retired":     TableChange{"x": RecordChange{"enabled": RegisterChange{Previous: false, Current: true}}},
			firstSchemaID: TableChange{"record-1": RecordChange{"enabled": RegisterChange{Previous: false, Current: true}}},
		},
	})
	if err := store.Undo("tx-foreign"); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	if mustRecord(testContext, table, "record-1").Value("enabled") != false {
		testContext.Fatalf("expected known schema to be reverted")
	}
}

func TestNewHistoryStoreRejectsNegativeHistory(testContext *testing.T) {
	cfg := testStoreConfig(nil)
	cfg.MaxHistory = -1
	if _, err := NewHistoryStore(cfg); !errors.Is(err, ErrInvalidHistorySize) {
		testContext.Fatalf("expected ErrInvalidHistorySize, got %v", err)
	}
}

func TestHistoryStoreWarnsAboutUnknownSchemas(testContext *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := testStoreConfig(scheduler.NewLoop())
	cfg.Logger = zap.New(core)
	store, err := NewHistoryStore(cfg)
	if err != nil {
		testContext.Fatalf("unexpected store error: %v", err)
	}
	store.history.Push(ChangeEvent{
		TransactionID: "tx-foreign",
		Type:          ChangeTransaction,
		Change: Change{
			"retired": TableChange{"x": RecordChange{"enabled": RegisterChange{Previous: false, Current: true}}},
		},
	})

	if err := store.Undo("tx-foreign"); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	entries := logs.FilterMessage("missing table for schema id").All()
	if len(entries) != 1 {
		testContext.Fatalf("expected one warning, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		testContext.Fatalf("expected warn level, got %s", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["schema_id"] != "retired" || fields["transaction_id"] != "tx-foreign" {
		testContext.Fatalf("unexpected warning fields %v", fields)
	}
}

func TestHistoryStoreDefersUndoQueuedDuringDrain(testContext *testing.T) {
	store := mustHistoryStore(testContext, 0)
	table := mustTable(testContext, store, firstSchemaID)

	t1 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"enabled": true}})
	t2 := mustCommit(testContext, store, table, TableUpdate{"record-1": {"count": float64(5)}})

	reentered := false
	store.Changed().Connect(func(event ChangeEvent) {
		if event.Type != ChangeUndo || event.TransactionID != t2 || reentered {
			return
		}
		reentered = true
		if _, err := store.BeginTransaction(); err != nil {
			testContext.Errorf("unexpected begin error: %v", err)
			return
		}
		if err := store.Undo(t1); err != nil {
			testContext.Errorf("expected undo to be queued, got %v", err)
		}
	})

	if _, err := store.BeginTransaction(); err != nil {
		testContext.Fatalf("unexpected begin error: %v", err)
	}
	if err := store.Undo(t2); err != nil {
		testContext.Fatalf("expected undo to be queued, got %v", err)
	}

	store.Flush()

	record := mustRecord(testContext, table, "record-1")
	if !reentered {
		testContext.Fatalf("expected handler to run during the drain")
	}
	if record.Value("count") != float64(0) {
		testContext.Fatalf("expected first queued undo to be applied, got count %v", record.Value("count"))
	}
	if record.Value("enabled") != true {
		testContext.Fatalf("expected undo queued during the drain to wait for the next flush")
	}
	if store.QueuedUndoRedo() != 1 || !store.InTransaction() {
		testContext.Fatalf("expected one deferred request behind an open transaction, got %d queued", store.QueuedUndoRedo())
	}

	store.Flush()

	if store.InTransaction() || store.QueuedUndoRedo() != 0 {
		testContext.Fatalf("expected second flush to close the transaction and drain the queue")
	}
	if mustRecord(testContext, table, "record-1").Value("enabled") != false {
		testContext.Fatalf("expected deferred undo to be applied on the next flush")
	}
}

func TestHistoryStoreUndoFailureLeavesStoreUntouched(testContext *testing.T) {
	store := mustHistoryStore(testContext, 0)
	first := mustTable(testContext, store, firstSchemaID)
	second := mustTable(testContext, store, secondSchemaID)
	mustCommit(testContext, store, first, TableUpdate{"record-1": {"count": float64(2)}})

	var events []ChangeEvent
	store.Changed().Connect(func(event ChangeEvent) { events = append(events, event) })
	store.history.Push(ChangeEvent{
		TransactionID: "tx-broken",
		Type:          ChangeTransaction,
		Change: Change{
			firstSchemaID:  TableChange{"record-1": RecordChange{"count": RegisterChange{Previous: float64(7), Current: float64(2)}}},
			secondSchemaID: TableChange{"record-9": RecordChange{"missing": RegisterChange{Previous: nil, Current: true}}},
		},
	})
	version := store.Version()

	if err := store.Undo("tx-broken"); !errors.Is(err, ErrUnknownField) {
		testContext.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if mustRecord(testContext, first, "record-1").Value("count") != float64(2) {
		testContext.Fatalf("expected earlier schema to stay unpatched")
	}
	if second.Has("record-9") {
		testContext.Fatalf("expected no record to be created")
	}
	if target, ok := store.UndoTarget(); !ok || target != "tx-broken" {
		testContext.Fatalf("expected failed undo to stay at the top of history, got %q", target)
	}
	if store.InTransaction() || store.Version() != version || len(events) != 0 {
		testContext.Fatalf("expected no transaction state change and no events")
	}

	store.history.Push(ChangeEvent{
		TransactionID: "tx-redo",
		Type:          ChangeTransaction,
		Change: Change{
			secondSchemaID: TableChange{"record-9": RecordChange{"missing": RegisterChange{Previous: nil, Current: true}}},
		},
	})
	if _, err := store.history.Undo(); err != nil {
		testContext.Fatalf("unexpected stack error: %v", err)
	}
	if err := store.Redo("tx-redo"); !errors.Is(err, ErrUnknownField) {
		testContext.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if target, ok := store.RedoTarget(); !ok || target != "tx-redo" {
		testContext.Fatalf("expected failed redo to remain redoable, got %q", target)
	}
}
