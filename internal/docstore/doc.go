// Package docstore defines the document store contract the annotation
// engine is written against, plus the pieces every backend shares.
//
// A backend stores JSON documents addressed by (collection, key) and offers:
//
//   - Get / Set / Delete of single documents
//   - NewKey: a fresh collision-free key for a collection
//   - Query: equality and membership predicates over one collection
//   - Transact: read-modify-write with optimistic retry
//
// Transact may invoke its function more than once when the backend detects
// a conflict. Functions passed to Transact must touch storage only through
// the Tx handle. After the backend's retry budget is spent Transact returns
// an error wrapping ErrConflict.
//
// Membership predicates (In) are capped at MaxInValues() values, mirroring
// document databases that limit "in" queries. Callers chunk larger sets.
//
// Backends live in subpackages: sqlitestore (row-locking SQL table) and
// badgerstore (optimistic key-value store).
package docstore
