// Package sessionstore provides backends for the listsync session mirror:
// a process-local map for a single UI session and a Valkey store that lets a
// reloaded client pick up the lists it fetched before the reload.
//
// Both backends honour the ttl passed to Save, so a mirrored page is never
// served after the time-to-live of the fetch that produced it.
package sessionstore
