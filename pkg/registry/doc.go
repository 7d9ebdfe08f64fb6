/*
Package registry holds the authoritative in-memory node membership map.

The registry is a sharded concurrent mapping from NodeID to NodeRecord
with putIfAbsent insertion. Readers of one node never block writers of
another; read-modify-write within a record takes the record's own
short-lived lock. At most one record exists per NodeID at any instant,
and a record in a terminal state is removed before a node with the same
ID can be inserted again.

Nothing here is persisted: membership is rebuilt from agent registration
after a restart, and durability of node observations belongs to the
event bus consumers.
*/
package registry
