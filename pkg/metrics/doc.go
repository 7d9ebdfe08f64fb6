/*
Package metrics defines Burrow's Prometheus collectors.

The nodes-by-state gauge vector is the cluster membership counter the
register and heartbeat handlers keep consistent across node state
transitions. The rest covers handler outcomes and latencies, liveness
expirations, event-bus throughput, and admin configuration updates,
exposed on /metrics by pkg/api.
*/
package metrics
