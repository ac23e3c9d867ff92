// Package annotations implements a versioned annotation store on top of a
// docstore.Store.
//
// Each id has exactly one Head record, the current state, stored under the
// key "id<n>" for integer ids and "ids<s>" for string ids. Every superseded
// state is an Archived record under a store-allocated key. The Head carries the history as two index-aligned
// arrays, _archived_versions (descending; writes are not deduplicated, so
// equal versions may repeat) and _archived_keys.
//
// Writes run in one transaction per Head: one Head read, at most one Head
// rewrite and at most one new Archived document. A write at or above the
// Head version promotes the payload to Head and demotes the old Head into
// the chain. A write below it lands in the chain at its sorted position.
//
// Reads resolve the authoritative record for a requested version:
//
//	engine.GetBest(ctx, scope, 7, "v0.1.5") // newest state at or below 1005
//	engine.Changes(ctx, scope, 7, "")        // Head then the whole chain
//	engine.Query(ctx, scope, where, ReadOptions{Version: "v0.1.5"}) // predicate reads
//
// Id lookups are split into chunks no larger than the store's membership
// cap and run concurrently.
package annotations
