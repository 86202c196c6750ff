package datastore

import (
	"errors"
	"testing"
)

func mustUndoStack(t *testing.T, maxSize int) *UndoStack[string] {
	t.Helper()
	stack, err := NewUndoStack[string](maxSize)
	if err != nil {
		t.Fatalf("unexpected stack error: %v", err)
	}
	return stack
}

func TestUndoStackWalksBackAndForth(testContext *testing.T) {
	stack := mustUndoStack(testContext, 0)
	for _, entry := range []string{"a", "b", "c"} {
		stack.Push(entry)
	}
	for _, expected := range []string{"c", "b", "a"} {
		entry, err := stack.Undo()
		if err != nil || entry != expected {
			testContext.Fatalf("expected undo %s, got %s (%v)", expected, entry, err)
		}
	}
	if _, err := stack.Undo(); !errors.Is(err, ErrNothingToUndo) {
		testContext.Fatalf("expected ErrNothingToUndo, got %v", err)
	}
	for _, expected := range []string{"a", "b", "c"} {
		entry, err := stack.Redo()
		if err != nil || entry != expected {
			testContext.Fatalf("expected redo %s, got %s (%v)", expected, entry, err)
		}
	}
	if _, err := stack.Redo(); !errors.Is(err, ErrNothingToRedo) {
		testContext.Fatalf("expected ErrNothingToRedo, got %v", err)
	}
}

func TestUndoStackPushDiscardsRedoEntries(testContext *testing.T) {
	stack := mustUndoStack(testContext, 0)
	stack.Push("a")
	stack.Push("b")
	if _, err := stack.Undo(); err != nil {
		testContext.Fatalf("unexpected undo error: %v", err)
	}
	stack.Push("c")
	if stack.Len() != 2 {
		testContext.Fatalf("expected discarded branch, got %d entries", stack.Len())
	}
	if _, ok := stack.Next(); ok {
		testContext.Fatalf("expected nothing to redo")
	}
	if previous, _ := stack.Previous(); previous != "c" {
		testContext.Fatalf("expected previous c, got %s", previous)
	}
}

func TestUndoStackEvictionKeepsPointerOnNewestEntry(testContext *testing.T) {
	stack := mustUndoStack(testContext, 2)
	for _, entry := range []string{"a", "b", "c", "d"} {
		stack.Push(entry)
	}
	if stack.Len() != 2 {
		testContext.Fatalf("expected 2 retained entries, got %d", stack.Len())
	}
	if previous, _ := stack.Previous(); previous != "d" {
		testContext.Fatalf("expected pointer on newest entry, got %s", previous)
	}
	if _, ok := stack.Next(); ok {
		testContext.Fatalf("expected nothing to redo after eviction")
	}
}

func TestNewUndoStackRejectsNegativeSize(testContext *testing.T) {
	if _, err := NewUndoStack[string](-1); !errors.Is(err, ErrInvalidHistorySize) {
		testContext.Fatalf("expected ErrInvalidHistorySize, got %v", err)
	}
}
