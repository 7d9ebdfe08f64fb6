/*
Package secrets manages the rotating master keys shipped to node agents.

Two key families exist: container-token and nm-token. Each has a current
and a next slot; rotation is driven externally (RollNext stages a key,
agents pick it up over heartbeats, ActivateNext promotes it). Material
is opaque to the tracker — it ships bytes and never validates tokens.

The KeyStore capability set (get, put, list, delete, rollVersion) is the
seam for external key backends; MemoryKeyStore is the in-process
default. The per-node nm-token key cache is TTL-bounded and cleared
whenever a node re-registers.
*/
package secrets
