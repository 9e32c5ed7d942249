// Package listsync keeps paginated, filtered server lists in sync with a
// local TTL cache.
//
// A Coordinator owns one list resource. Fetch derives a fingerprint from the
// normalized query, serves fresh cache entries without touching the network
// and otherwise asks its Lister for the page, normalizes the records into
// Items, publishes them and writes them through to the shared cache.Store.
// When several fetches overlap only the most recently initiated one may
// publish its result.
//
// Mutations go through a Mutator and are folded into the published list once
// the server confirms them:
//
//	coord, _ := listsync.New(cfg, listsync.Deps{Store: store, Lister: api, Mutator: api})
//	snap, err := coord.Fetch(ctx, cache.QueryState{Status: "pending"})
//	item, err := coord.SetStatus(ctx, snap.Items[0].ID, "arrived")
//
// Realtime invalidation lives in package realtime; it only needs the
// coordinator's Refresh method.
package listsync
