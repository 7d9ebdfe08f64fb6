/*
Package tracker implements the node tracker service: the concurrency and
policy chokepoint owning worker-node membership for the cluster.

Node agents call Register once, Heartbeat on the cadence dictated by the
previous response, and Unregister on clean shutdown. Each handler
authenticates the caller against the admission policy, arbitrates its
response counter, reconciles the registry, and fans observations out to
the event bus. The response Action (NORMAL, SHUTDOWN, RESYNC) is the
agent's sole control channel.

# Architecture

	┌─────────────────── NODE TRACKER ───────────────────┐
	│                                                      │
	│  Register ──┬─ admission policy (version floor,     │
	│             │   host resolution, include/exclude,   │
	│             │   minimum allocation)                  │
	│             ├─ dynamic resource override             │
	│             ├─ registry putIfAbsent / reconnect      │
	│             └─ master keys + label/attr propagation  │
	│                                                      │
	│  Heartbeat ─┬─ admission re-check, membership        │
	│             ├─ liveness ping, decommission feed      │
	│             ├─ response-id arbitration (31-bit wrap, │
	│             │   duplicate replay, resync)            │
	│             ├─ pacing, key rotation, credentials     │
	│             └─ status fan-out, capability sync       │
	│                                                      │
	│  Unregister ── idempotent removal + shutdown event   │
	└──────────────────────────────────────────────────────┘

# Concurrency

Handlers run on the transport's worker pool, dozens to low-thousands in
flight. Hot configuration (pacing, admission lists, dynamic resources)
sits behind reader-writer guards taken on the read side per request.
Registry mutation is per-record: two heartbeats for the same node
serialize on the record lock; heartbeats for different nodes overlap
freely. The cluster epoch (rmIdentifier) is fixed at construction and
read without synchronization.

# Collaborators

External managers are injected as narrow ports (NodeLabelManager,
NodeAttributesManager, the two key interfaces, RackResolver,
HostResolver, NodesList, ApplicationIndex, QueuingLimitCalculator).
The key interfaces are adapted from a secrets.Manager; the
QueuingLimitCalculator is optional and nothing is attached when it is
unset; the rest get in-process defaults so the binary runs standalone.
Tests substitute fakes.
*/
package tracker
