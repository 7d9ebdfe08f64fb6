package events

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
)

// Kind represents the type of node event
type Kind string

const (
	KindNodeStarted       Kind = "node.started"
	KindNodeReconnect     Kind = "node.reconnect"
	KindNodeStatusUpdate  Kind = "node.status"
	KindNodeLifecycle     Kind = "node.lifecycle"
	KindNodeRemoved       Kind = "node.removed"
	KindContainerFinished Kind = "container.finished"
)

// Transition qualifies a KindNodeLifecycle event.
type Transition string

const (
	TransitionRebooting    Transition = "REBOOTING"
	TransitionDecommission Transition = "DECOMMISSION"
	TransitionShutdown     Transition = "SHUTDOWN"
	TransitionExpire       Transition = "EXPIRE"
)

// Event is one node-tracker event published to the cluster event bus.
// Only the fields relevant to the Kind are populated.
type Event struct {
	ID        string
	Kind      Kind
	Timestamp time.Time

	NodeID     types.NodeID
	Transition Transition

	// Snapshot of the node carried by started/reconnect/removed events.
	State      types.NodeState
	Capability types.Resource

	Containers     []types.ContainerStatus
	RunningApps    []string
	Status         *types.NodeStatus
	LogAggregation []types.LogAggregationReport

	// ContainerFinished payload
	AppAttemptID string
	Container    *types.ContainerStatus
}

// Sink consumes events. Handlers publish through this interface; the
// implementation must be asynchronous and must never panic into the
// caller.
type Sink interface {
	Handle(event *Event)
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 1024),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Handle implements Sink. Publishing never blocks the calling handler:
// when the broker buffer is full the event is dropped.
func (b *Broker) Handle(event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
		// Buffer full; drop rather than stall a heartbeat handler.
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Depth returns the number of events waiting in the broker buffer.
func (b *Broker) Depth() int {
	return len(b.eventCh)
}
