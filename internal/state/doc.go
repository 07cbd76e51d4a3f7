// Package state mirrors the hosts' session registries into a presence store.
//
// The in-memory store serves a single process. With a Redis address each
// session becomes a key with a TTL that the owning process refreshes from
// StartMaintenance, so records of a crashed instance expire on their own and
// several instances can report one combined session list.
package state
