package datastore

import "fmt"

// UndoStack is a pointer-based linear history. Pushing after an undo discards
// the undone entries; a positive maxSize evicts the oldest entries.
type UndoStack[T any] struct {
	entries []T
	current int
	maxSize int
}

// NewUndoStack constructs a stack holding at most maxSize entries; zero means unbounded.
func NewUndoStack[T any](maxSize int) (*UndoStack[T], error) {
	if maxSize < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHistorySize, maxSize)
	}
	return &UndoStack[T]{current: -1, maxSize: maxSize}, nil
}

// Previous returns the entry the next Undo will return.
func (s *UndoStack[T]) Previous() (T, bool) {
	if s.current < 0 || s.current >= len(s.entries) {
		var zero T
		return zero, false
	}
	return s.entries[s.current], true
}

// Next returns the entry the next Redo will return.
func (s *UndoStack[T]) Next() (T, bool) {
	next := s.current + 1
	if next < 0 || next >= len(s.entries) {
		var zero T
		return zero, false
	}
	return s.entries[next], true
}

// Push records a new entry after the pointer, discarding any redoable entries.
func (s *UndoStack[T]) Push(entry T) {
	s.current++
	s.entries = append(s.entries[:s.current], entry)
	if s.maxSize > 0 {
		if overrun := len(s.entries) - s.maxSize; overrun > 0 {
			s.entries = append([]T(nil), s.entries[overrun:]...)
			s.current -= overrun
		}
	}
}

// Undo returns the entry at the pointer and moves the pointer back.
func (s *UndoStack[T]) Undo() (T, error) {
	if s.current < 0 {
		var zero T
		return zero, ErrNothingToUndo
	}
	entry := s.entries[s.current]
	s.current--
	return entry, nil
}

// Redo moves the pointer forward and returns the entry there.
func (s *UndoStack[T]) Redo() (T, error) {
	if s.current >= len(s.entries)-1 {
		var zero T
		return zero, ErrNothingToRedo
	}
	s.current++
	return s.entries[s.current], nil
}

// Len returns the number of retained entries.
func (s *UndoStack[T]) Len() int {
	return len(s.entries)
}
