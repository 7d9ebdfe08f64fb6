/*
Package events provides the node-tracker event bus.

Request handlers are the single producers: every register, heartbeat, and
unregister fans its observations out here (node started, reconnected,
status update, lifecycle transition, removal, container finished), and the
rest of the resource manager consumes them. Delivery is fire-and-forget:
publishing never blocks a handler, full buffers drop, and durability is
the consumer's concern.

# Event Kinds

  - node.started: fresh registration admitted into the registry
  - node.reconnect: re-registration of a node already tracked
  - node.status: one accepted heartbeat's remote status
  - node.lifecycle: REBOOTING, DECOMMISSION, SHUTDOWN, or EXPIRE
  - node.removed: registry entry replaced by a new incarnation of the node
  - container.finished: completed application-master container observed
    while work-preserving recovery is disabled

Events published from a single handler reach subscribers in program
order; the broker is a single-producer-per-handler, multi-consumer
fan-out over one buffered channel.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			switch event.Kind {
			case events.KindNodeStarted:
				admit(event.NodeID)
			case events.KindNodeLifecycle:
				transition(event.NodeID, event.Transition)
			}
		}
	}()

The tracker depends only on the Sink interface, so tests substitute a
recording sink and consumers needing durability can wrap the broker.
*/
package events
