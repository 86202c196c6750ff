package datastore

import (
	"fmt"

	"go.uber.org/zap"
)

type undoQueueKey struct {
	store *HistoryStore
}

type queuedUndoRedo struct {
	event ChangeEvent
	kind  ChangeType
}

// HistoryStore is a record store that records every committed transaction
// in a bounded undo history and supports undo and redo of the latest entries.
type HistoryStore struct {
	*storeCore
	history *UndoStack[ChangeEvent]
	queue   []queuedUndoRedo
}

var _ Datastore = (*HistoryStore)(nil)

// NewHistoryStore validates the schemas and constructs a history-tracking store.
func NewHistoryStore(cfg StoreConfig) (*HistoryStore, error) {
	history, err := NewUndoStack[ChangeEvent](cfg.MaxHistory)
	if err != nil {
		return nil, err
	}
	core, err := newStoreCore(cfg)
	if err != nil {
		return nil, err
	}
	store := &HistoryStore{storeCore: core, history: history}
	core.onCommit = store.history.Push
	return store, nil
}

// UndoTarget returns the id of the transaction the next Undo must name.
func (h *HistoryStore) UndoTarget() (string, bool) {
	entry, ok := h.history.Previous()
	if !ok {
		return "", false
	}
	return entry.TransactionID, true
}

// RedoTarget returns the id of the transaction the next Redo must name.
func (h *HistoryStore) RedoTarget() (string, bool) {
	entry, ok := h.history.Next()
	if !ok {
		return "", false
	}
	return entry.TransactionID, true
}

// Undo reverts the latest committed transaction, which must have the given
// id. When a transaction is open the undo is queued and applied after the
// next scheduling boundary.
func (h *HistoryStore) Undo(transactionID string) error {
	target, ok := h.history.Previous()
	if !ok {
		return ErrNothingToUndo
	}
	if target.TransactionID != transactionID {
		return fmt.Errorf("%w: expected %s, got %s", ErrUndoTargetMismatch, target.TransactionID, transactionID)
	}
	entry, err := h.history.Undo()
	if err != nil {
		return err
	}
	if err := h.processUndoRedo(entry, ChangeUndo); err != nil {
		_, _ = h.history.Redo()
		return err
	}
	return nil
}

// Redo reapplies the most recently undone transaction, which must have the
// given id. When a transaction is open the redo is queued like Undo.
func (h *HistoryStore) Redo(transactionID string) error {
	target, ok := h.history.Next()
	if !ok {
		return ErrNothingToRedo
	}
	if target.TransactionID != transactionID {
		return fmt.Errorf("%w: expected %s, got %s", ErrRedoTargetMismatch, target.TransactionID, transactionID)
	}
	entry, err := h.history.Redo()
	if err != nil {
		return err
	}
	if err := h.processUndoRedo(entry, ChangeRedo); err != nil {
		_, _ = h.history.Undo()
		return err
	}
	return nil
}

// processUndoRedo applies a history entry inside an internal transaction that
// reuses the original transaction id, then emits the resulting change. Every
// table change is staged before any is stored, so a failing entry leaves the
// store untouched.
func (h *HistoryStore) processUndoRedo(entry ChangeEvent, kind ChangeType) error {
	if h.context.inTransaction {
		h.queueUndoRedo(entry, kind)
		return nil
	}
	result, staged, err := h.stageUndoRedo(entry, kind)
	if err != nil {
		return err
	}

	if err := h.initTransaction(entry.TransactionID, h.context.version); err != nil {
		return err
	}
	for schemaID, records := range staged {
		h.tables[schemaID].commitStaged(records)
	}
	if err := h.finalizeTransaction(); err != nil {
		return err
	}
	if !result.IsEmpty() {
		h.changed.emit(ChangeEvent{
			StoreID:       h.context.storeID,
			TransactionID: entry.TransactionID,
			Type:          kind,
			Change:        result,
		})
	}
	return nil
}

func (h *HistoryStore) stageUndoRedo(entry ChangeEvent, kind ChangeType) (Change, map[string]map[RecordID]*Record, error) {
	result := Change{}
	staged := make(map[string]map[RecordID]*Record, len(entry.Change))
	for _, schemaID := range sortedKeys(entry.Change) {
		table, ok := h.tables[schemaID]
		if !ok {
			h.logger.Warn("missing table for schema id",
				zap.String("operation", opApplyUndoRedo),
				zap.String(fieldSchemaID, schemaID),
				zap.String(fieldTransaction, entry.TransactionID))
			continue
		}
		tableChange := entry.Change[schemaID]
		if kind != ChangeRedo {
			inverse, err := table.invert(tableChange)
			if err != nil {
				return nil, nil, err
			}
			tableChange = inverse
		}
		records, err := table.stagePatch(tableChange)
		if err != nil {
			return nil, nil, err
		}
		staged[schemaID] = records
		result[schemaID] = tableChange
	}
	return result, staged, nil
}

func (h *HistoryStore) queueUndoRedo(entry ChangeEvent, kind ChangeType) {
	h.queue = append(h.queue, queuedUndoRedo{event: entry, kind: kind})
	h.scheduler.PostConflatable(undoQueueKey{store: h}, h.processQueue)
}

// processQueue applies the requests queued before the drain started;
// requests queued while draining wait for the next cycle.
func (h *HistoryStore) processQueue() {
	batch := len(h.queue)
	for index := 0; index < batch && len(h.queue) > 0; index++ {
		item := h.queue[0]
		h.queue = h.queue[1:]
		if err := h.processUndoRedo(item.event, item.kind); err != nil {
			h.logError(opProcessQueue, "undo_redo_failed", err,
				zap.String(fieldTransaction, item.event.TransactionID),
				zap.String(fieldChangeType, string(item.kind)))
		}
	}
}

// QueuedUndoRedo returns the number of undo/redo requests waiting for a scheduling boundary.
func (h *HistoryStore) QueuedUndoRedo() int {
	return len(h.queue)
}
