package pubsub

import (
	"log"
	"sync"
	"sync/atomic"
)

// EventType identifies what a published event is about. Packages declare their own EventType constants; they
// must not overlap on a shared client.
type EventType int

// SubscriptionOptions configures the behavior of a subscription.
type SubscriptionOptions struct {
	// IsBlocking makes the broker wait until the subscriber's channel accepts the event. A slow blocking
	// subscriber stalls every other subscriber, so this should generally be false.
	IsBlocking bool
}

// SubscriberID identifies a single subscription. It is required to unsubscribe.
type SubscriberID uint64

var nextSubscriberID atomic.Uint64

// Event is a published event with a typed payload. Event[A] and Event[B] are distinct types.
type Event[T any] struct {
	Type    EventType
	Payload T
}

func NewEvent[T any](eventType EventType, payload T) *Event[T] {
	return &Event[T]{Type: eventType, Payload: payload}
}

// subscriber stores typed channels behind closures, so that subscribers of different payload types share one
// registry. The payload type assertion happens inside send.
type subscriber struct {
	send    func(eventType EventType, payload any) bool
	close   func()
	opts    SubscriptionOptions
	dropped atomic.Uint64
}

type published struct {
	eventType EventType
	payload   any
}

// PubSubClient is a thread-safe publish-subscribe broker. Publish only enqueues; a single goroutine fans events
// out to subscribers in publish order.
type PubSubClient struct {
	mu sync.RWMutex
	wg sync.WaitGroup

	registry map[EventType]map[SubscriberID]*subscriber

	// Buffered so Publish returns without waiting for the fan-out of a previous event. Closing it drains the
	// buffer and stops run().
	publishChan chan published

	shuttingDown atomic.Bool
}

// Subscribe registers ch for events of eventType. The caller owns the channel and picks its buffer size; it is
// closed on Unsubscribe.
//
// Subscribe and Publish are free functions because methods cannot declare type parameters.
func Subscribe[T any](p *PubSubClient, eventType EventType, ch chan *Event[T], opts SubscriptionOptions) SubscriberID {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := SubscriberID(nextSubscriberID.Add(1))
	sub := &subscriber{
		opts: opts,
		send: func(evType EventType, payload any) bool {
			typed, ok := payload.(T)
			if !ok {
				log.Printf("[PubSubClient] Warning: Type mismatch for event %v. Expected %T, got %T", evType, *new(T), payload)
				return false
			}
			event := &Event[T]{Type: evType, Payload: typed}
			if opts.IsBlocking {
				ch <- event
				return true
			}
			select {
			case ch <- event:
				return true
			default:
				return false
			}
		},
		close: func() { close(ch) },
	}

	if _, ok := p.registry[eventType]; !ok {
		p.registry[eventType] = make(map[SubscriberID]*subscriber)
	}
	p.registry[eventType][id] = sub
	return id
}

// Unsubscribe removes the subscription and closes its channel. Unknown ids are ignored.
func (p *PubSubClient) Unsubscribe(eventType EventType, id SubscriberID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subscribers, ok := p.registry[eventType]
	if !ok {
		return
	}
	sub, ok := subscribers[id]
	if !ok {
		return
	}
	delete(subscribers, id)
	sub.close()
	if len(subscribers) == 0 {
		delete(p.registry, eventType)
	}
}

// Publish enqueues event for delivery. Events published after shutdown has begun are dropped.
func Publish[T any](p *PubSubClient, event *Event[T]) {
	// Holding the read lock keeps a concurrent shutdown from closing publishChan between the check and the send.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.shuttingDown.Load() {
		log.Printf("[PubSubClient] Warning: Dropping event %v, client is shutting down", event.Type)
		return
	}
	p.publishChan <- published{eventType: event.Type, payload: event.Payload}
}

// Dropped returns how many events a non-blocking subscriber missed because its channel was full.
func (p *PubSubClient) Dropped(eventType EventType, id SubscriberID) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if sub, ok := p.registry[eventType][id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

// ForceShutdown stops accepting events and returns without waiting for the buffer to drain.
func (p *PubSubClient) ForceShutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shuttingDown.Swap(true) {
		return
	}
	close(p.publishChan)
}

// GracefulShutdown stops accepting events and blocks until every buffered event has been fanned out.
func (p *PubSubClient) GracefulShutdown() {
	p.mu.Lock()
	if !p.shuttingDown.Swap(true) {
		close(p.publishChan)
	}
	// run() takes the read lock per event, so it must be released before waiting.
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *PubSubClient) run() {
	defer p.wg.Done()

	for msg := range p.publishChan {
		p.mu.RLock()
		for id, sub := range p.registry[msg.eventType] {
			if !sub.send(msg.eventType, msg.payload) && !sub.opts.IsBlocking {
				dropped := sub.dropped.Add(1)
				log.Printf("[PubSubClient] Dropped event %v for subscriber %d (channel full). Total dropped: %d",
					msg.eventType, id, dropped)
			}
		}
		p.mu.RUnlock()
	}
}

func NewPubSub() *PubSubClient {
	p := &PubSubClient{
		registry:    make(map[EventType]map[SubscriberID]*subscriber),
		publishChan: make(chan published, 100),
	}
	p.wg.Add(1)
	go p.run()
	return p
}
