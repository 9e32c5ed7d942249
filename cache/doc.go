// Package cache provides the shared TTL store and the fingerprint key builder
// used by list coordinators.
//
// # Overview
//
// This package exports three building blocks:
//
//   - Store: a process-lifetime key to entry map backed by sturdyc
//   - Namespace: a per-resource view of the Store with its own TTL
//   - FingerprintBuilder: derives a stable key from a QueryState
//
// # Basic Usage
//
//	store, err := cache.NewStore(cache.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	bookings, err := store.Namespace("bookings", time.Minute)
//
//	fp := cache.NewFingerprintBuilder(nil).Build("bookings", query, defaults)
//	if entry, ok := bookings.Get(fp.String()); ok {
//		// fresh enough, use entry.Value
//	}
//
// # Expiry
//
// Expiry is lazy. An entry is a miss once now - StoredAt >= TTL of the
// namespace reading it; nothing sweeps the store in the background. Evict
// guarantees the next Get misses regardless of age. The clock is injected
// through Config.Clock so tests can advance time with clockwork.
//
// # Key Serialization Strategy
//
// A QueryState is first normalized against the resource defaults, then
// serialized with the reflection-based KeySerializer:
//
//   - Structs: exported fields in declaration order as Name:value pairs
//   - Maps: key=value pairs sorted lexically
//   - Slices/arrays: recursive serialization of elements
//   - Nil pointers, slices and maps: serialized like their empty value
//
// The canonical string is hashed with xxhash and rendered as
// "namespace::digest", so every key of a resource shares a prefix and can be
// evicted together.
package cache
