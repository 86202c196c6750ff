package datastore

import "sync"

// ChangeHandler receives change notifications synchronously.
type ChangeHandler func(ChangeEvent)

// ChangeSignal fans change notifications out to synchronous handlers. Handlers
// run in connection order on the emitting goroutine.
type ChangeSignal struct {
	mu       sync.RWMutex
	handlers []changeConnection
	nextID   int64
}

type changeConnection struct {
	id      int64
	handler ChangeHandler
}

func newChangeSignal() *ChangeSignal {
	return &ChangeSignal{}
}

// Connect registers a synchronous handler and returns its disconnect function.
func (s *ChangeSignal) Connect(handler ChangeHandler) func() {
	if handler == nil {
		return func() {}
	}
	s.mu.Lock()
	s.nextID++
	connectionID := s.nextID
	s.handlers = append(s.handlers, changeConnection{id: connectionID, handler: handler})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for index, connection := range s.handlers {
			if connection.id == connectionID {
				s.handlers = append(s.handlers[:index:index], s.handlers[index+1:]...)
				return
			}
		}
	}
}

// Connections reports the number of connected handlers.
func (s *ChangeSignal) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

func (s *ChangeSignal) emit(event ChangeEvent) {
	s.mu.RLock()
	handlers := make([]ChangeHandler, 0, len(s.handlers))
	for _, connection := range s.handlers {
		handlers = append(handlers, connection.handler)
	}
	s.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (s *ChangeSignal) disconnectAll() {
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
}
