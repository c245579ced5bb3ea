package events

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

// Handler reacts to an event synchronously, inside the publishing call.
type Handler func(ctx context.Context, event Event)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	BufferSize int
	Clock      func() time.Time
	// OnDrop is called when an asynchronous subscriber's buffer is full.
	OnDrop func(Event)
}

// Dispatcher delivers domain events. Synchronous handlers run in registration
// order before Publish returns; asynchronous subscribers receive events on
// buffered channels and never block the publisher.
type Dispatcher struct {
	mu          sync.RWMutex
	handlers    []registeredHandler
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
	onDrop      func(Event)
}

type registeredHandler struct {
	kinds   kindSet
	handler Handler
}

type subscriber struct {
	id     int64
	kinds  kindSet
	stream chan Event
}

type kindSet map[Kind]struct{}

func newKindSet(kinds []Kind) kindSet {
	if len(kinds) == 0 {
		return nil
	}
	set := make(kindSet, len(kinds))
	for _, kind := range kinds {
		set[kind] = struct{}{}
	}
	return set
}

func (s kindSet) matches(kind Kind) bool {
	if s == nil {
		return true
	}
	_, ok := s[kind]
	return ok
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Dispatcher{
		subscribers: make(map[int64]*subscriber),
		bufferSize:  bufferSize,
		clock:       clock,
		onDrop:      cfg.OnDrop,
	}
}

// Handle registers a synchronous handler. With no kinds it receives every event.
func (d *Dispatcher) Handle(handler Handler, kinds ...Kind) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, registeredHandler{kinds: newKindSet(kinds), handler: handler})
}

// Subscribe registers an asynchronous subscriber. The subscription ends when
// ctx is done or the returned cleanup function is called; the channel is then closed.
func (d *Dispatcher) Subscribe(ctx context.Context, kinds ...Kind) (<-chan Event, func()) {
	subscriber := &subscriber{
		id:     d.nextSequence(),
		kinds:  newKindSet(kinds),
		stream: make(chan Event, d.bufferSize),
	}
	d.registerSubscriber(subscriber)

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish stamps the event and delivers it.
func (d *Dispatcher) Publish(ctx context.Context, event Event) {
	if event.Kind == "" {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = d.clock().UTC()
	}

	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.handlers))
	for _, registered := range d.handlers {
		if registered.kinds.matches(event.Kind) {
			handlers = append(handlers, registered.handler)
		}
	}
	d.mu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, event)
	}

	// Sends happen under the read lock so that unregisterSubscriber cannot
	// close a channel mid-send.
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, subscriber := range d.subscribers {
		if !subscriber.kinds.matches(event.Kind) {
			continue
		}
		select {
		case subscriber.stream <- event:
		default:
			if d.onDrop != nil {
				d.onDrop(event)
			}
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) registerSubscriber(subscriber *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *Dispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if subscriber, ok := d.subscribers[subscriberID]; ok {
		delete(d.subscribers, subscriberID)
		close(subscriber.stream)
	}
}
