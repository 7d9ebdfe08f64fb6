/*
Package types defines the core data structures used throughout Burrow.

This package contains the fundamental types of the node tracker's domain
model: node identity and capacity, lifecycle states, heartbeat status
payloads, master keys, node attributes, timeline collector descriptors,
and the wire records exchanged with node agents.

All types are designed to be:
  - Serializable (JSON survives a round trip for every wire record)
  - Value-typed where possible (NodeID, Resource compare by value)
  - Self-documenting (typed string enums, validation helpers)

# Core Types

Identity & capacity:
  - NodeID: (host, port) pair, stringifies as "host:port"
  - Resource: memory MiB + vcores, optional extended resources
  - NodeState: new, running, unhealthy, decommissioning, decommissioned,
    lost, rebooted, shutdown (terminal: decommissioned, lost, shutdown)

Wire records:
  - RegisterRequest / RegisterResponse
  - HeartbeatRequest / HeartbeatResponse
  - UnregisterRequest / UnregisterResponse

Control:
  - Action: NORMAL, SHUTDOWN, RESYNC — the agent's sole control channel
  - MasterKey: opaque rotating secret (container-token and nm-token kinds)
  - CollectorInfo: timeline collector with (epoch, version) ordering stamp

The response ID carried by NodeStatus and HeartbeatResponse is a 31-bit
counter advancing as (x+1) & 0x7fffffff; the duplicate/out-of-sync
arbitration over it lives in pkg/tracker.
*/
package types
