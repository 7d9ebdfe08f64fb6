/*
Package api exposes the tracker over JSON/HTTP.

Three agent-facing verbs (register, heartbeat, unregister) plus the
admin update verbs (dynamic resources, admission, pacing, master-key
rotation, system credentials), an operator node listing, and the
health/ready/metrics endpoints. The transport stays thin: handlers
decode typed records, pass them to the tracker together with the remote
peer address, and encode the typed response. Request routing, counters,
and latency histograms live here; no tracker semantics do.
*/
package api
