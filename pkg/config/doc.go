/*
Package config carries the tracker's configuration.

Static fields load once at startup from YAML and are validated with
struct tags. The hot-swappable subset — heartbeat pacing, admission
lists and floors, the minimum node version — lives in Runtime behind a
reader-writer guard: request handlers take the read side on every call,
the admin update verbs take the write side. Pacing is special-cased by
contract: invalid pacing blocks are repaired with warnings, never
rejected, so a bad admin update cannot take heartbeats down.
*/
package config
