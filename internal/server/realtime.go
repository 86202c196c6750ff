package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/gravity/datastore/internal/datastore"
)

const (
	RealtimeEventChange    = "change"
	realtimeEventHeartbeat = "heartbeat"
	defaultHeartbeat       = 25 * time.Second
	allSchemas             = ""
)

// RealtimeMessage is one change notification projected for a stream subscriber.
type RealtimeMessage struct {
	EventType string
	Event     datastore.ChangeEvent
	Timestamp time.Time
}

// RealtimeDispatcher relays store change notifications to stream subscribers,
// optionally restricted to a single schema.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

// NewRealtimeDispatcher constructs an empty dispatcher.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream for changes touching schemaID, or every change
// when schemaID is empty. The stream is released when ctx is done.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, schemaID string) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(schemaID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(schemaID, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish fans a change notification out without blocking; a subscriber
// whose buffer is full misses the message.
func (d *RealtimeDispatcher) Publish(event datastore.ChangeEvent) {
	if event.Change.IsEmpty() {
		return
	}
	now := d.clock().UTC()
	d.mu.RLock()
	deliveries := make(map[*realtimeSubscriber]RealtimeMessage)
	for _, subscriber := range d.subscribers[allSchemas] {
		deliveries[subscriber] = RealtimeMessage{EventType: RealtimeEventChange, Event: event, Timestamp: now}
	}
	for schemaID, tableChange := range event.Change {
		for _, subscriber := range d.subscribers[schemaID] {
			projected := event
			projected.Change = datastore.Change{schemaID: tableChange}
			deliveries[subscriber] = RealtimeMessage{EventType: RealtimeEventChange, Event: projected, Timestamp: now}
		}
	}
	d.mu.RUnlock()

	for subscriber, message := range deliveries {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(schemaID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[schemaID]; !ok {
		d.subscribers[schemaID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[schemaID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(schemaID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[schemaID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, schemaID)
		}
	}
	d.mu.Unlock()
}
